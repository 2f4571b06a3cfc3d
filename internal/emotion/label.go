package emotion

import "strings"

type Label string

const (
	Angry    Label = "angry"
	Disgust  Label = "disgust"
	Fear     Label = "fear"
	Happy    Label = "happy"
	Sad      Label = "sad"
	Surprise Label = "surprise"
	Neutral  Label = "neutral"

	// None marks a window in which no frame was classified.
	None Label = "none"
)

var Vocabulary = []Label{Angry, Disgust, Fear, Happy, Sad, Surprise, Neutral}

var aliases = map[string]Label{
	"anger":     Angry,
	"mad":       Angry,
	"disgusted": Disgust,
	"fearful":   Fear,
	"scared":    Fear,
	"happiness": Happy,
	"joy":       Happy,
	"sadness":   Sad,
	"sorrow":    Sad,
	"surprised": Surprise,
	"calm":      Neutral,
}

func (l Label) String() string {
	return string(l)
}

func (l Label) Valid() bool {
	for _, v := range Vocabulary {
		if l == v {
			return true
		}
	}
	return false
}

// ParseLabel maps classifier output onto the vocabulary. Unknown values
// return false.
func ParseLabel(s string) (Label, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if l := Label(s); l.Valid() {
		return l, true
	}
	if l, ok := aliases[s]; ok {
		return l, true
	}
	return "", false
}

func Strings(labels []Label) []string {
	out := make([]string, len(labels))
	for i, l := range labels {
		out[i] = string(l)
	}
	return out
}
