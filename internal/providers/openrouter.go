package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
)

const (
	OpenRouterName         = "openrouter"
	openRouterBaseURL      = "https://openrouter.ai/api/v1"
	openRouterDefaultModel = "anthropic/claude-3.5-sonnet"
)

// OpenRouterConfig holds configuration for the OpenRouter client.
type OpenRouterConfig struct {
	APIKey     string
	Model      string        // default model if request doesn't specify
	BaseURL    string        // optional override (tests)
	RateLimit  float64       // requests per second
	MaxRetries int           // transport retry attempts
	Timeout    time.Duration // HTTP timeout
	HTTPClient *http.Client  // optional (tests)
}

// OpenRouterClient is a Translator backed by the OpenRouter chat API.
type OpenRouterClient struct {
	apiKey      string
	model       string
	baseURL     string
	maxRetries  int
	client      *http.Client
	rateLimiter *RateLimiter
}

// NewOpenRouterClient creates a new OpenRouter translator.
func NewOpenRouterClient(cfg OpenRouterConfig) *OpenRouterClient {
	if cfg.Model == "" {
		cfg.Model = openRouterDefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = openRouterBaseURL
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 1.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenRouterClient{
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		baseURL:     cfg.BaseURL,
		maxRetries:  cfg.MaxRetries,
		client:      client,
		rateLimiter: NewRateLimiter(cfg.RateLimit),
	}
}

// Name returns the provider identifier.
func (c *OpenRouterClient) Name() string {
	return OpenRouterName
}

// RateLimiterStatus exposes the limiter state for observability.
func (c *OpenRouterClient) RateLimiterStatus() RateLimiterStatus {
	return c.rateLimiter.Status()
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openRouterRequest struct {
	Model    string              `json:"model"`
	Messages []openRouterMessage `json:"messages"`
}

type openRouterResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Model string `json:"model"`
	Error *struct {
		Message string `json:"message"`
		Code    any    `json:"code"`
	} `json:"error,omitempty"`
}

// TranslateBatch sends the batch through the chat completions endpoint
// and decodes the numbered response positionally.
func (c *OpenRouterClient) TranslateBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	if len(req.Segments) == 0 {
		return nil, fmt.Errorf("openrouter: empty batch")
	}
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	system, user := BuildPrompt(req)
	orReq := &openRouterRequest{
		Model: c.model,
		Messages: []openRouterMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}

	orResp, err := c.doRequest(ctx, "/chat/completions", orReq)
	if err != nil {
		return nil, err
	}
	if len(orResp.Choices) == 0 {
		return nil, fmt.Errorf("openrouter: response contained no choices")
	}

	content := orResp.Choices[0].Message.Content
	result := &BatchResult{
		Translations:     ParseTranslations(content, len(req.Segments)),
		PromptTokens:     orResp.Usage.PromptTokens,
		CompletionTokens: orResp.Usage.CompletionTokens,
		TotalTokens:      orResp.Usage.TotalTokens,
		ExecutionTime:    time.Since(start),
		Provider:         OpenRouterName,
		ModelUsed:        orResp.Model,
		RequestID:        requestID,
	}
	return result, nil
}

// doRequest posts to OpenRouter, retrying transient failures.
func (c *OpenRouterClient) doRequest(ctx context.Context, path string, body *openRouterRequest) (*openRouterResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var orResp openRouterResponse
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(bodyBytes))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
			req.Header.Set("HTTP-Referer", "https://github.com/jackzampolin/folio")
			req.Header.Set("X-Title", "Folio")

			resp, err := c.client.Do(req)
			if err != nil {
				return fmt.Errorf("request failed: %w", err)
			}
			respBody, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("failed to read response: %w", err)
			}

			if c.shouldRetry(resp.StatusCode) {
				if resp.StatusCode == http.StatusTooManyRequests {
					c.rateLimiter.Record429()
				}
				return fmt.Errorf("openrouter error (status %d): %s", resp.StatusCode, truncate(string(respBody), 200))
			}
			if resp.StatusCode != http.StatusOK {
				return retry.Unrecoverable(fmt.Errorf("openrouter error (status %d): %s", resp.StatusCode, truncate(string(respBody), 200)))
			}

			orResp = openRouterResponse{}
			if err := json.Unmarshal(respBody, &orResp); err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to unmarshal response: %w", err))
			}
			if orResp.Error != nil {
				return fmt.Errorf("openrouter error: %s", orResp.Error.Message)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.maxRetries)),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}
	return &orResp, nil
}

// shouldRetry returns true for status codes worth a transport retry.
func (c *OpenRouterClient) shouldRetry(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests:
		return true
	case 520, 521, 522, 523, 524: // Cloudflare errors
		return true
	default:
		return statusCode >= 500
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Verify interface compliance
var _ Translator = (*OpenRouterClient)(nil)
