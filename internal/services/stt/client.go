package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"overdub/internal/services"
)

const (
	defaultModel       = "whisper-large-v3"
	defaultHTTPTimeout = 120 * time.Second
)

// Segment is a timed span of recognized speech.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the full recognition result for one audio track.
type Transcript struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Text joins all segment texts with spaces.
func (t Transcript) Text() string {
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		if trimmed := strings.TrimSpace(seg.Text); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, " ")
}

// Client wraps the speech-to-text transcription API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

// Option customizes the transcription client.
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

// WithModel overrides the default recognition model.
func WithModel(model string) Option {
	return func(c *Client) {
		model = strings.TrimSpace(model)
		if model != "" {
			c.model = model
		}
	}
}

// NewClient constructs a speech-to-text client.
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

type transcriptionResponse struct {
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
	Error    *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe uploads the audio track and returns timed speech segments.
func (c *Client) Transcribe(ctx context.Context, audio io.Reader, languageCode string) (Transcript, error) {
	var empty Transcript
	if c.baseURL == "" {
		return empty, services.Wrap(services.ErrValidation, "transcribe", "stt", "base URL required", nil)
	}
	languageCode = strings.TrimSpace(languageCode)
	if languageCode == "" {
		return empty, services.Wrap(services.ErrValidation, "transcribe", "stt", "language required", nil)
	}

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := form.WriteField("model", c.model); err != nil {
				return err
			}
			if err := form.WriteField("language", languageCode); err != nil {
				return err
			}
			part, err := form.CreateFormFile("file", "audio.wav")
			if err != nil {
				return err
			}
			if _, err := io.Copy(part, audio); err != nil {
				return err
			}
			return form.Close()
		}()
		pw.CloseWithError(err)
	}()

	endpoint, err := url.JoinPath(c.baseURL, "/v1/transcriptions")
	if err != nil {
		return empty, fmt.Errorf("stt transcribe: build url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		return empty, fmt.Errorf("stt transcribe: request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return empty, services.ClassifyHTTPFailure("transcribe", "stt", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return empty, services.Wrap(services.ErrTransient, "transcribe", "stt", "read body", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return empty, services.ClassifyHTTPStatus("transcribe", "stt", resp.StatusCode, body)
	}

	var decoded transcriptionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return empty, services.Wrap(services.ErrPermanent, "transcribe", "stt", "decode response", err)
	}
	if decoded.Error != nil {
		return empty, services.Wrap(services.ErrPermanent, "transcribe", "stt",
			"api error: "+strings.TrimSpace(decoded.Error.Message), nil)
	}
	if len(decoded.Segments) == 0 {
		return empty, services.Wrap(services.ErrPermanent, "transcribe", "stt", "no speech recognized", nil)
	}
	if decoded.Language == "" {
		decoded.Language = languageCode
	}
	return Transcript{Language: decoded.Language, Segments: decoded.Segments}, nil
}
