package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/kdimtricp/vmood/internal/emotion"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
)

const (
	defaultOpenAIModel = "gpt-4o-mini"
	undeterminedValue  = "undetermined"

	openAIInstructions = "You label the facial expression of the most prominent person in a video frame. " +
		"Answer with exactly one emotion from the allowed list. " +
		"If no human face is clearly visible, answer \"undetermined\"."
)

type frameEmotion struct {
	Emotion string `json:"emotion" jsonschema:"enum=angry,enum=disgust,enum=fear,enum=happy,enum=sad,enum=surprise,enum=neutral,enum=undetermined"`
	Reason  string `json:"reason" jsonschema_description:"Short visual evidence for the label"`
}

var frameEmotionSchema = generateSchema[frameEmotion]()

type OpenAIClassifier struct {
	client  *openai.Client
	model   string
	backoff []time.Duration
}

func NewOpenAIClassifier(apiKey, model, baseURL string, httpClient *http.Client) *OpenAIClassifier {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = defaultOpenAIModel
	}
	client := openai.NewClient(opts...)
	return &OpenAIClassifier{
		client:  &client,
		model:   model,
		backoff: []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
	}
}

func (c *OpenAIClassifier) Classify(ctx context.Context, frame emotion.Frame) (emotion.Label, error) {
	format := responses.ResponseFormatTextConfigUnionParam{
		OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
			Name:        "FrameEmotion",
			Schema:      frameEmotionSchema,
			Strict:      openai.Bool(true),
			Description: openai.String("Facial emotion of one video frame"),
			Type:        "json_schema",
		},
	}

	image := responses.ResponseInputContentUnionParam{
		OfInputImage: &responses.ResponseInputImageParam{
			ImageURL: openai.String(dataURL(frame.Image)),
			Detail:   responses.ResponseInputImageDetailLow,
		},
	}

	params := responses.ResponseNewParams{
		Model:           c.model,
		MaxOutputTokens: openai.Int(200),
		Instructions:    openai.String(openAIInstructions),
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: []responses.ResponseInputItemUnionParam{
				responses.ResponseInputItemParamOfMessage(
					responses.ResponseInputMessageContentListParam{image},
					responses.EasyInputMessageRoleUser,
				),
			},
		},
		Text: responses.ResponseTextConfigParam{
			Format: format,
		},
	}

	resp, err := c.callWithRetry(ctx, params)
	if err != nil {
		return "", err
	}

	var out frameEmotion
	if err := decodeModelJSON(resp.OutputText(), &out); err != nil {
		return "", fmt.Errorf("unmarshal frame emotion: %w", err)
	}
	if out.Emotion == undeterminedValue {
		return "", fmt.Errorf("%w: %s", emotion.ErrUndetermined, out.Reason)
	}
	return parseLabel(out.Emotion)
}

func (c *OpenAIClassifier) callWithRetry(ctx context.Context, params responses.ResponseNewParams) (*responses.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.client.Responses.New(ctx, params)
		if err == nil {
			return resp, nil
		}
		if !retryable(err) || attempt >= len(c.backoff) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff[attempt]):
		}
	}
}

func retryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}

func generateSchema[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: false,
	}
	var v T
	schema := reflector.Reflect(v)

	b, err := schema.MarshalJSON()
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	// strict mode wants every property required and no extras
	delete(m, "$schema")
	m["additionalProperties"] = false
	if props, ok := m["properties"].(map[string]any); ok {
		required := make([]string, 0, len(props))
		for name := range props {
			required = append(required, name)
		}
		m["required"] = required
	}
	return m
}

// decodeModelJSON tolerates text around the JSON object.
func decodeModelJSON(outputText string, v any) error {
	s := strings.TrimSpace(outputText)
	if s == "" {
		return errors.New("empty model output")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object found in model output (len=%d)", len(s))
	}
	return json.Unmarshal([]byte(s[start:end+1]), v)
}
