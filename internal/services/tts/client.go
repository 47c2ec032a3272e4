package tts

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

const defaultHTTPTimeout = 300 * time.Second

// TimedText is one translated segment with the timing it should occupy in
// the synthesized track.
type TimedText struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Client wraps the speech synthesis API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// Option customizes the synthesis client.
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

// NewClient constructs a text-to-speech client.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	client := &Client{
		apiKey:     strings.TrimSpace(apiKey),
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
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

type synthesizeRequest struct {
	Language   string      `json:"language"`
	VoiceStyle string      `json:"voiceStyle"`
	Segments   []TimedText `json:"segments"`
}

// Synthesize renders the translated segments as a single speech track and
// returns the audio stream. The service aligns segment timing so the dubbed
// audio matches the original pacing.
func (c *Client) Synthesize(ctx context.Context, languageCode, voiceStyle string, segments []TimedText) (io.ReadCloser, error) {
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrValidation, "synthesize", "tts", "base URL required", nil)
	}
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, "synthesize", "tts", "no segments to synthesize", nil)
	}

	encoded, err := json.Marshal(synthesizeRequest{
		Language:   languageCode,
		VoiceStyle: voiceStyle,
		Segments:   segments,
	})
	if err != nil {
		return nil, fmt.Errorf("tts synthesize: encode request: %w", err)
	}
	endpoint, err := url.JoinPath(c.baseURL, "/v1/speech")
	if err != nil {
		return nil, fmt.Errorf("tts synthesize: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("tts synthesize: request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, services.ClassifyHTTPFailure("synthesize", "tts", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		_ = resp.Body.Close()
		return nil, services.ClassifyHTTPStatus("synthesize", "tts", resp.StatusCode, body)
	}
	return resp.Body, nil
}
