package mt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"overdub/internal/services"
)

const (
	defaultModel       = "nllb-200-distilled"
	defaultHTTPTimeout = 60 * time.Second
)

// Client wraps the text translation API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option customizes the translation client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the default API base (useful for tests/mocks).
func WithBaseURL(base string) Option {
	return func(c *Client) {
		base = strings.TrimSpace(base)
		if base != "" {
			c.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// WithModel overrides the default translation model.
func WithModel(model string) Option {
	return func(c *Client) {
		model = strings.TrimSpace(model)
		if model != "" {
			c.model = model
		}
	}
}

// NewClient constructs a translation client.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return client
}

type translateRequest struct {
	Model          string   `json:"model"`
	SourceLanguage string   `json:"sourceLanguage"`
	TargetLanguage string   `json:"targetLanguage"`
	Segments       []string `json:"segments"`
}

type translateResponse struct {
	Segments []string `json:"segments"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Translate converts the segments from the source to the target language.
// The response preserves segment count and order so timing can be carried
// over from the transcript.
func (c *Client) Translate(ctx context.Context, sourceLang, targetLang string, segments []string) ([]string, error) {
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrValidation, "translate", "mt", "base URL required", nil)
	}
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, "translate", "mt", "no segments to translate", nil)
	}

	encoded, err := json.Marshal(translateRequest{
		Model:          c.model,
		SourceLanguage: sourceLang,
		TargetLanguage: targetLang,
		Segments:       segments,
	})
	if err != nil {
		return nil, fmt.Errorf("mt translate: encode request: %w", err)
	}
	endpoint, err := url.JoinPath(c.baseURL, "/v1/translate")
	if err != nil {
		return nil, fmt.Errorf("mt translate: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("mt translate: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.ClassifyHTTPFailure("translate", "mt", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "translate", "mt", "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return nil, services.ClassifyHTTPStatus("translate", "mt", resp.StatusCode, body)
	}

	var decoded translateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, services.Wrap(services.ErrPermanent, "translate", "mt", "decode response", err)
	}
	if decoded.Error != nil {
		return nil, services.Wrap(services.ErrPermanent, "translate", "mt",
			"api error: "+strings.TrimSpace(decoded.Error.Message), nil)
	}
	if len(decoded.Segments) != len(segments) {
		return nil, services.Wrap(services.ErrPermanent, "translate", "mt",
			fmt.Sprintf("segment count mismatch: sent %d, got %d", len(segments), len(decoded.Segments)), nil)
	}
	return decoded.Segments, nil
}
