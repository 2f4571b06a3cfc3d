package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kdimtricp/vmood/internal/emotion"
)

// HTTPClassifier talks to a DeepFace-compatible REST service.
type HTTPClassifier struct {
	url        string
	httpClient *http.Client
}

func NewHTTPClassifier(url string, httpClient *http.Client) *HTTPClassifier {
	return &HTTPClassifier{
		url:        strings.TrimRight(url, "/"),
		httpClient: httpClient,
	}
}

type analyzeRequest struct {
	Img              string   `json:"img"`
	Actions          []string `json:"actions"`
	EnforceDetection bool     `json:"enforce_detection"`
}

type analyzeResponse struct {
	Results []faceResult `json:"results"`
	Error   string       `json:"error"`
}

type faceResult struct {
	DominantEmotion string             `json:"dominant_emotion"`
	Emotion         map[string]float64 `json:"emotion"`
	FaceConfidence  float64            `json:"face_confidence"`
}

func (c *HTTPClassifier) Classify(ctx context.Context, frame emotion.Frame) (emotion.Label, error) {
	body, err := json.Marshal(analyzeRequest{
		Img:              dataURL(frame.Image),
		Actions:          []string{"emotion"},
		EnforceDetection: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/analyze", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("emotion service %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	var out analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("emotion decode: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("emotion service error: %s", out.Error)
	}
	if len(out.Results) == 0 {
		return "", fmt.Errorf("%w: no faces in response", emotion.ErrUndetermined)
	}

	// With detection not enforced the service falls back to the whole
	// image and reports zero face confidence.
	best := out.Results[0]
	for _, r := range out.Results[1:] {
		if r.FaceConfidence > best.FaceConfidence {
			best = r
		}
	}
	if best.FaceConfidence <= 0 {
		return "", fmt.Errorf("%w: no face detected", emotion.ErrUndetermined)
	}
	return parseLabel(best.DominantEmotion)
}
