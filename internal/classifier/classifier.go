package classifier

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kdimtricp/vmood/internal/emotion"
	"github.com/sirupsen/logrus"
)

const (
	BackendHTTP   = "http"
	BackendVision = "vision"
	BackendOpenAI = "openai"
)

type Config struct {
	Backend         string        `yaml:"backend"`
	URL             string        `yaml:"url"`
	OpenAIAPIKey    string        `yaml:"openai_api_key"`
	OpenAIModel     string        `yaml:"openai_model"`
	OpenAIBaseURL   string        `yaml:"openai_base_url"`
	GoogleVisionKey string        `yaml:"google_vision_api_key"`
	Timeout         time.Duration `yaml:"timeout"`
}

func NewConfig() *Config {
	return &Config{
		Backend:     BackendHTTP,
		URL:         "http://localhost:5005",
		OpenAIModel: defaultOpenAIModel,
		Timeout:     30 * time.Second,
	}
}

// New builds the classifier selected by config.Backend.
func New(config *Config, logger logrus.FieldLogger) (emotion.Classifier, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "classifier")

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	switch strings.ToLower(config.Backend) {
	case "", BackendHTTP:
		if config.URL == "" {
			return nil, fmt.Errorf("classifier URL is required for the %s backend", BackendHTTP)
		}
		logger.WithField("url", config.URL).Info("using HTTP emotion classifier")
		return NewHTTPClassifier(config.URL, httpClient), nil
	case BackendVision:
		if config.GoogleVisionKey == "" {
			return nil, fmt.Errorf("Google Vision API key is required for the %s backend", BackendVision)
		}
		logger.Info("using Google Vision face classifier")
		return NewVisionClassifier(config.GoogleVisionKey, httpClient), nil
	case BackendOpenAI:
		if config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required for the %s backend", BackendOpenAI)
		}
		logger.WithField("model", config.OpenAIModel).Info("using OpenAI vision classifier")
		return NewOpenAIClassifier(config.OpenAIAPIKey, config.OpenAIModel, config.OpenAIBaseURL, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown classifier backend: %s", config.Backend)
	}
}

func dataURL(image []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
}

// parseLabel converts backend output to a vocabulary label.
func parseLabel(raw string) (emotion.Label, error) {
	label, ok := emotion.ParseLabel(raw)
	if !ok {
		return "", fmt.Errorf("%w: unknown label %q", emotion.ErrUndetermined, raw)
	}
	return label, nil
}
