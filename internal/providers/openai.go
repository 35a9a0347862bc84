package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-4o-mini"
)

// OpenAIConfig holds configuration for the OpenAI translator.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // "gpt-4o-mini" (default)
	RateLimit  float64       // requests per second
	MaxRetries int           // retry attempts for SDK transport
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // optional (tests)
	HTTPClient *http.Client  // optional (tests)
}

// OpenAIClient implements Translator using the official OpenAI SDK.
type OpenAIClient struct {
	model       string
	client      openai.Client
	rateLimiter *RateLimiter
}

// NewOpenAIClient creates a new OpenAI translator.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 2.0
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:       cfg.Model,
		client:      openai.NewClient(opts...),
		rateLimiter: NewRateLimiter(cfg.RateLimit),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// RateLimiterStatus exposes the limiter state for observability.
func (c *OpenAIClient) RateLimiterStatus() RateLimiterStatus {
	return c.rateLimiter.Status()
}

// TranslateBatch sends the batch through chat completions and decodes
// the numbered response positionally.
func (c *OpenAIClient) TranslateBatch(ctx context.Context, req *BatchRequest) (*BatchResult, error) {
	if len(req.Segments) == 0 {
		return nil, fmt.Errorf("openai: empty batch")
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
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("openai: response contained no choices")
	}

	content := completion.Choices[0].Message.Content
	return &BatchResult{
		Translations:     ParseTranslations(content, len(req.Segments)),
		PromptTokens:     int(completion.Usage.PromptTokens),
		CompletionTokens: int(completion.Usage.CompletionTokens),
		TotalTokens:      int(completion.Usage.TotalTokens),
		ExecutionTime:    time.Since(start),
		Provider:         OpenAIName,
		ModelUsed:        completion.Model,
		RequestID:        requestID,
	}, nil
}

// Verify interface compliance
var _ Translator = (*OpenAIClient)(nil)
