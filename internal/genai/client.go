// Package genai calls the hosted image-generation model that produces the
// redesigned room image. The caller pays for each call with a credit debit
// and relies on the classified errors here to decide whether to refund.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rosariomoscato/Design-Buddy/internal/domain"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

var (
	// ErrRegionRestricted means the provider refuses to serve the caller's
	// region. Terminal for the request; the debit must be refunded.
	ErrRegionRestricted = errors.New("image generation is not available in this region")

	// ErrQuotaExhausted means the provider's quota or rate limit is spent.
	ErrQuotaExhausted = errors.New("image generation quota exhausted")

	// ErrNoImage means the provider answered without an image payload.
	ErrNoImage = errors.New("provider response contained no image")
)

type Config struct {
	APIKey         string
	Model          string
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	apiKey         string
	model          string
	baseURL        string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

type GenerateRequest struct {
	RoomType    string
	DesignStyle string
	// ImageJPEG is the preprocessed room photo.
	ImageJPEG []byte
}

type GenerateResult struct {
	// ImageData is the generated design, decoded from the provider's
	// base64 payload.
	ImageData []byte
	MimeType  string
	Prompt    string
}

func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	initialBackoff := cfg.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = 1 * time.Second
	}

	maxBackoff := cfg.MaxBackoff
	if maxBackoff < initialBackoff {
		maxBackoff = initialBackoff
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-2.0-flash-exp"
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		apiKey:         cfg.APIKey,
		model:          model,
		baseURL:        baseURL,
		maxAttempts:    maxAttempts,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
	}
}

type generateContentRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type generationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// GenerateDesign performs one metered generation call. Transient provider
// failures are retried with backoff; region restriction and quota
// exhaustion come back as their sentinel errors without retry.
func (c *Client) GenerateDesign(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if c.apiKey == "" {
		return GenerateResult{}, errors.New("genai: API key is not configured")
	}
	if len(req.ImageJPEG) == 0 {
		return GenerateResult{}, errors.New("genai: source image is required")
	}

	prompt := BuildPrompt(req.RoomType, req.DesignStyle)
	body, err := json.Marshal(generateContentRequest{
		Contents: []content{
			{
				Role: "user",
				Parts: []part{
					{Text: prompt},
					{InlineData: &inlineData{
						MimeType: "image/jpeg",
						Data:     base64.StdEncoding.EncodeToString(req.ImageJPEG),
					}},
				},
			},
		},
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"IMAGE", "TEXT"},
		},
	})
	if err != nil {
		return GenerateResult{}, fmt.Errorf("marshal generation request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)

	backoff := c.initialBackoff
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return GenerateResult{}, err
		}

		result, err := c.doGenerate(ctx, endpoint, prompt, body)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrRegionRestricted) || errors.Is(err, ErrQuotaExhausted) || !retryable(err) {
			return GenerateResult{}, err
		}

		lastErr = err
		if attempt == c.maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return GenerateResult{}, ctx.Err()
		case <-time.After(backoff):
		}

		backoff = minDuration(backoff*2, c.maxBackoff)
	}

	return GenerateResult{}, fmt.Errorf("generation failed after %d attempts: %w", c.maxAttempts, lastErr)
}

func (c *Client) doGenerate(ctx context.Context, endpoint, prompt string, body []byte) (GenerateResult, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return GenerateResult{}, fmt.Errorf("build generation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return GenerateResult{}, &transientError{err: fmt.Errorf("generation request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return GenerateResult{}, &transientError{err: fmt.Errorf("read generation response: %w", err)}
	}

	var parsed generateContentResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		if resp.StatusCode >= 500 {
			return GenerateResult{}, &transientError{err: fmt.Errorf("provider returned status=%d", resp.StatusCode)}
		}
		return GenerateResult{}, fmt.Errorf("decode generation response status=%d: %w", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || parsed.Error != nil {
		return GenerateResult{}, classifyAPIError(resp.StatusCode, parsed.Error)
	}

	for _, candidate := range parsed.Candidates {
		for _, p := range candidate.Content.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(p.InlineData.Data)
			if err != nil {
				return GenerateResult{}, fmt.Errorf("decode generated image: %w", err)
			}
			mime := p.InlineData.MimeType
			if mime == "" {
				mime = "image/png"
			}
			return GenerateResult{ImageData: data, MimeType: mime, Prompt: prompt}, nil
		}
	}

	return GenerateResult{}, ErrNoImage
}

func classifyAPIError(status int, apiErr *apiError) error {
	message := ""
	apiStatus := ""
	if apiErr != nil {
		message = apiErr.Message
		apiStatus = apiErr.Status
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "not available in your country"),
		strings.Contains(lower, "location is not supported"):
		return fmt.Errorf("%w: %s", ErrRegionRestricted, message)
	case status == http.StatusTooManyRequests,
		apiStatus == "RESOURCE_EXHAUSTED",
		strings.Contains(lower, "quota"):
		return fmt.Errorf("%w: %s", ErrQuotaExhausted, message)
	case status >= 500:
		return &transientError{err: fmt.Errorf("provider error status=%d: %s", status, message)}
	default:
		return fmt.Errorf("provider rejected request status=%d: %s", status, message)
	}
}

// FailureReason maps a generation error to the classified reason stored on
// the design job.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrRegionRestricted):
		return domain.FailureRegionRestricted
	case errors.Is(err, ErrQuotaExhausted):
		return domain.FailureQuotaExhausted
	default:
		return domain.FailureProviderError
	}
}

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
