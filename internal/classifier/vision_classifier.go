package classifier

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/kdimtricp/vmood/internal/emotion"
)

const googleVisionAPIURL = "https://vision.googleapis.com/v1/images:annotate"

// VisionClassifier derives an emotion from Google Vision face likelihoods.
type VisionClassifier struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
}

func NewVisionClassifier(apiKey string, httpClient *http.Client) *VisionClassifier {
	return &VisionClassifier{
		apiKey:     apiKey,
		endpoint:   googleVisionAPIURL,
		httpClient: httpClient,
	}
}

type googleVisionRequest struct {
	Requests []imageRequest `json:"requests"`
}

type imageRequest struct {
	Image    imageContent  `json:"image"`
	Features []featureType `json:"features"`
}

type imageContent struct {
	Content string `json:"content"`
}

type featureType struct {
	Type       string `json:"type"`
	MaxResults int    `json:"maxResults,omitempty"`
}

type googleVisionResponse struct {
	Responses []annotateResponse `json:"responses"`
	Error     *googleError       `json:"error"`
}

type googleError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type annotateResponse struct {
	FaceAnnotations []faceAnnotation `json:"faceAnnotations"`
	Error           *googleError     `json:"error"`
}

type faceAnnotation struct {
	DetectionConfidence float64 `json:"detectionConfidence"`
	JoyLikelihood       string  `json:"joyLikelihood"`
	SorrowLikelihood    string  `json:"sorrowLikelihood"`
	AngerLikelihood     string  `json:"angerLikelihood"`
	SurpriseLikelihood  string  `json:"surpriseLikelihood"`
}

var likelihoodRank = map[string]int{
	"UNKNOWN":       0,
	"VERY_UNLIKELY": 1,
	"UNLIKELY":      2,
	"POSSIBLE":      3,
	"LIKELY":        4,
	"VERY_LIKELY":   5,
}

const possible = 3

func (c *VisionClassifier) Classify(ctx context.Context, frame emotion.Frame) (emotion.Label, error) {
	reqBody := googleVisionRequest{
		Requests: []imageRequest{
			{
				Image: imageContent{
					Content: base64.StdEncoding.EncodeToString(frame.Image),
				},
				Features: []featureType{
					{Type: "FACE_DETECTION", MaxResults: 5},
				},
			},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s?key=%s", c.endpoint, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	var visionResp googleVisionResponse
	if err := json.Unmarshal(body, &visionResp); err != nil {
		return "", fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if visionResp.Error != nil {
		return "", fmt.Errorf("Google Vision API error: %s", visionResp.Error.Message)
	}
	if len(visionResp.Responses) == 0 {
		return "", fmt.Errorf("no response from Google Vision API")
	}

	response := visionResp.Responses[0]
	if response.Error != nil {
		return "", fmt.Errorf("Google Vision API error: %s", response.Error.Message)
	}
	if len(response.FaceAnnotations) == 0 {
		return "", fmt.Errorf("%w: no face detected", emotion.ErrUndetermined)
	}

	face := response.FaceAnnotations[0]
	for _, f := range response.FaceAnnotations[1:] {
		if f.DetectionConfidence > face.DetectionConfidence {
			face = f
		}
	}
	return faceEmotion(face), nil
}

// faceEmotion picks the most likely expression; anything below POSSIBLE is
// neutral. Ties go to the earlier entry.
func faceEmotion(face faceAnnotation) emotion.Label {
	candidates := []struct {
		label      emotion.Label
		likelihood string
	}{
		{emotion.Happy, face.JoyLikelihood},
		{emotion.Sad, face.SorrowLikelihood},
		{emotion.Angry, face.AngerLikelihood},
		{emotion.Surprise, face.SurpriseLikelihood},
	}

	best, bestRank := emotion.Neutral, possible-1
	for _, c := range candidates {
		if rank := likelihoodRank[c.likelihood]; rank > bestRank {
			best, bestRank = c.label, rank
		}
	}
	return best
}
