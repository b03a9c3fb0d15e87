package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"github.com/zatekoja/patientinsights/internal/domain/providers"
	"github.com/zatekoja/patientinsights/internal/infrastructure/observability"
	"github.com/zatekoja/patientinsights/pkg/config"
	"github.com/zatekoja/patientinsights/pkg/retry"
)

const (
	defaultModel = "gpt-4o-mini"
	defaultBurst = 5
)

var _ providers.ModelProvider = (*Client)(nil)

// Client implements providers.ModelProvider on the OpenAI chat completions API.
type Client struct {
	api     *openai.Client
	model   string
	limiter *rate.Limiter
	retry   retry.Config
	metrics *observability.Metrics
}

// NewClient creates a new OpenAI client.
func NewClient(cfg *config.OpenAIConfig) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.MaxRetries + 1

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		model:   model,
		limiter: newLimiter(cfg.RateLimitRPM, cfg.RateLimitBurst),
		retry:   retryCfg,
	}, nil
}

// newLimiter returns nil (unlimited) for a negative rpm.
// newLimiter returns nil (unlimited) when rpm is zero.
func newLimiter(rpm, burst int) *rate.Limiter {
	if rpm <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = defaultBurst
	}
	return rate.NewLimiter(rate.Limit(float64(rpm)/60.0), burst)
}

// SetMetrics attaches OpenTelemetry instruments.
func (c *Client) SetMetrics(m *observability.Metrics) {
	c.metrics = m
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Complete sends one stateless chat completion. Refusals and content-filter
// stops wrap providers.ErrModelDeclined; everything else that fails wraps
// providers.ErrModelUnavailable.
func (c *Client) Complete(ctx context.Context, req providers.ModelRequest) (*providers.ModelResponse, error) {
	ctx, span := observability.StartSpan(ctx, "openai.Complete")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.model", c.model),
	)

	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			observability.RecordModelRequest(ctx, c.metrics, c.model, "rate_limited", 0, 0, 0)
			observability.RecordError(span, err)
			return nil, fmt.Errorf("%w: rate limiter: %w", providers.ErrModelUnavailable, err)
		}
		observability.RecordRateLimitWait(ctx, c.metrics, time.Since(waitStart))
	}

	preamble := req.SystemPreamble
	if preamble == "" {
		preamble = providers.SafetyPreamble
	}
	apiReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: preamble},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	logger := observability.LoggerFromContext(ctx)
	start := time.Now()
	var resp openai.ChatCompletionResponse
	err := retry.DoWithLog(ctx, c.retry, "openai", func() error {
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, apiReq)
		if callErr != nil && !retryable(callErr) {
			return retry.Permanent(callErr)
		}
		return callErr
	}, func(attempt int, err error, next time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("next_delay", next).Msg("openai request failed, retrying")
	})
	duration := time.Since(start)

	if err != nil {
		observability.RecordModelRequest(ctx, c.metrics, c.model, "error", duration, 0, 0)
		observability.RecordError(span, err)
		return nil, classifyError(err)
	}

	inputTokens, outputTokens := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	if len(resp.Choices) == 0 {
		observability.RecordModelRequest(ctx, c.metrics, c.model, "empty", duration, inputTokens, outputTokens)
		return nil, fmt.Errorf("%w: openai response had no choices", providers.ErrModelUnavailable)
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter || choice.Message.Refusal != "" {
		observability.RecordModelRequest(ctx, c.metrics, c.model, "declined", duration, inputTokens, outputTokens)
		return nil, fmt.Errorf("%w: finish reason %q", providers.ErrModelDeclined, choice.FinishReason)
	}

	text := strings.TrimSpace(choice.Message.Content)
	if text == "" {
		observability.RecordModelRequest(ctx, c.metrics, c.model, "empty", duration, inputTokens, outputTokens)
		return nil, fmt.Errorf("%w: openai response missing output text", providers.ErrModelUnavailable)
	}

	observability.RecordModelRequest(ctx, c.metrics, c.model, "success", duration, inputTokens, outputTokens)
	observability.SetSpanAttributes(span,
		attribute.Int("ai.tokens.input", inputTokens),
		attribute.Int("ai.tokens.output", outputTokens),
	)

	model := resp.Model
	if model == "" {
		model = c.model
	}
	return &providers.ModelResponse{
		Text:         text,
		Model:        model,
		FinishReason: string(choice.FinishReason),
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
	}, nil
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// retryable reports whether a failed call may succeed on a later attempt:
// transport errors, throttling and server errors.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := statusCode(err)
	return code == 0 || code == http.StatusTooManyRequests || code >= 500
}

func classifyError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && isContentFilterCode(apiErr.Code) {
		return fmt.Errorf("%w: %w", providers.ErrModelDeclined, err)
	}
	return fmt.Errorf("%w: %w", providers.ErrModelUnavailable, err)
}

func isContentFilterCode(code any) bool {
	s, ok := code.(string)
	return ok && (s == "content_filter" || s == "content_policy_violation")
}
