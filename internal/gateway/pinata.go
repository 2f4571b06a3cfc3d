package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const pinataAPIURL = "https://api.pinata.cloud"

var ErrNotFound = errors.New("content not found")

// FetchError is a gateway failure other than missing content.
type FetchError struct {
	ContentID  string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: gateway returned %d", e.ContentID, e.StatusCode)
	}
	return fmt.Sprintf("fetching %s: %v", e.ContentID, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

type Fetcher interface {
	Fetch(ctx context.Context, contentID string) ([]byte, error)
}

type Config struct {
	Gateway string `yaml:"gateway"`
	JWT     string `yaml:"jwt"`
	// MaxSize caps the number of bytes read from the gateway. Zero means
	// unlimited.
	MaxSize int64         `yaml:"max_size"`
	Timeout time.Duration `yaml:"timeout"`
}

type PinataClient struct {
	gatewayURL string
	apiURL     string
	jwt        string
	maxSize    int64
	httpClient *http.Client
}

func NewPinataClient(config Config) *PinataClient {
	gatewayURL := strings.TrimRight(config.Gateway, "/")
	if gatewayURL != "" && !strings.Contains(gatewayURL, "://") {
		gatewayURL = "https://" + gatewayURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &PinataClient{
		gatewayURL: gatewayURL,
		apiURL:     pinataAPIURL,
		jwt:        config.JWT,
		maxSize:    config.MaxSize,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Fetch downloads a file by CID from the dedicated gateway.
func (c *PinataClient) Fetch(ctx context.Context, contentID string) ([]byte, error) {
	if contentID == "" || strings.ContainsAny(contentID, "/?#") {
		return nil, fmt.Errorf("%w: invalid content id %q", ErrNotFound, contentID)
	}

	url := fmt.Sprintf("%s/files/%s", c.gatewayURL, contentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{ContentID: contentID, Err: err}
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &FetchError{ContentID: contentID, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, contentID)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &FetchError{ContentID: contentID, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if c.maxSize > 0 {
		body = io.LimitReader(resp.Body, c.maxSize+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{ContentID: contentID, Err: fmt.Errorf("failed to read body: %w", err)}
	}
	if c.maxSize > 0 && int64(len(data)) > c.maxSize {
		return nil, &FetchError{ContentID: contentID, Err: fmt.Errorf("content exceeds %d bytes", c.maxSize)}
	}
	return data, nil
}

// TestAuthentication reports whether the JWT is accepted by the API.
func (c *PinataClient) TestAuthentication(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/data/testAuthentication", nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK, nil
}

func (c *PinataClient) authorize(req *http.Request) {
	if c.jwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.jwt)
	}
}
