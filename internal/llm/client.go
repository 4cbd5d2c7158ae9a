// Package llm wraps Genkit model calls behind a small completion client.
//
// The client owns the resilience policy for upstream model calls: exponential
// backoff retry on transient failures and a proactive rate limiter applied to
// every attempt. Callers (the chat orchestrator, the recipe converter, the
// translator) treat it as an opaque text-completion capability and never
// retry themselves.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"golang.org/x/time/rate"

	"github.com/cookchat/cookchat/internal/session"
)

// Request carries one completion call: a system instruction, the prior
// conversation, and the final user turn.
type Request struct {
	System  string
	History []session.Message
	Prompt  string
}

// StreamFunc receives each text fragment of a streaming completion as it is
// produced. Returning an error aborts the stream.
type StreamFunc func(ctx context.Context, chunk string) error

// RetryConfig configures retry behavior for model calls.
type RetryConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryConfig returns sensible defaults for LLM API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
	}
}

// retryablePatterns groups transient-error substrings by category.
// Matched case-insensitively against err.Error(). String matching is used
// because Genkit and provider SDKs do not expose typed errors for these.
var retryablePatterns = [][]string{
	{"rate limit", "quota exceeded", "429"},      // rate limiting
	{"500", "502", "503", "504", "unavailable"},  // transient server errors
	{"connection reset", "timeout", "temporary"}, // network errors
}

func retryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, group := range retryablePatterns {
		for _, sub := range group {
			if strings.Contains(msg, sub) {
				return true
			}
		}
	}
	return false
}

// Config contains required parameters for the completion client.
type Config struct {
	Genkit    *genkit.Genkit
	ModelName string // provider-qualified, e.g. "googleai/gemini-2.5-flash"
	Logger    *slog.Logger

	Retry       RetryConfig   // zero value uses defaults
	RateLimiter *rate.Limiter // nil = default 10 req/s, burst 30
}

// Client executes blocking and streaming completions against the configured
// model. Safe for concurrent use.
type Client struct {
	g           *genkit.Genkit
	modelName   string
	logger      *slog.Logger
	retry       RetryConfig
	rateLimiter *rate.Limiter
}

// New creates a completion client.
func New(cfg Config) (*Client, error) {
	if cfg.Genkit == nil {
		return nil, errors.New("genkit instance is required")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}

	retry := cfg.Retry
	if retry.MaxRetries == 0 {
		retry = DefaultRetryConfig()
	}

	rl := cfg.RateLimiter
	if rl == nil {
		rl = rate.NewLimiter(10, 30)
	}

	return &Client{
		g:           cfg.Genkit,
		modelName:   cfg.ModelName,
		logger:      cfg.Logger,
		retry:       retry,
		rateLimiter: rl,
	}, nil
}

// Complete executes a blocking completion and returns the full response text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	return c.generate(ctx, req, nil)
}

// CompleteStream executes a streaming completion, forwarding each text
// fragment to fn in order. The concatenated response is returned after the
// stream is exhausted. The stream is finite and not restartable; a callback
// error or context cancellation aborts generation.
func (c *Client) CompleteStream(ctx context.Context, req Request, fn StreamFunc) (string, error) {
	return c.generate(ctx, req, fn)
}

func (c *Client) generate(ctx context.Context, req Request, fn StreamFunc) (string, error) {
	messages := make([]*ai.Message, 0, len(req.History)+1)
	for _, m := range req.History {
		switch m.Role {
		case session.RoleAssistant:
			messages = append(messages, ai.NewModelMessage(ai.NewTextPart(m.Content)))
		default:
			messages = append(messages, ai.NewUserMessage(ai.NewTextPart(m.Content)))
		}
	}
	messages = append(messages, ai.NewUserMessage(ai.NewTextPart(req.Prompt)))

	opts := []ai.GenerateOption{
		ai.WithSystem(req.System),
		ai.WithMessages(messages...),
	}
	if c.modelName != "" {
		opts = append(opts, ai.WithModelName(c.modelName))
	}
	if fn != nil {
		opts = append(opts, ai.WithStreaming(func(ctx context.Context, chunk *ai.ModelResponseChunk) error {
			if text := chunk.Text(); text != "" {
				return fn(ctx, text)
			}
			return nil
		}))
	}

	resp, err := c.generateWithRetry(ctx, opts, fn != nil)
	if err != nil {
		return "", err
	}
	return resp.Text(), nil
}

// generateWithRetry runs genkit.Generate with exponential backoff.
// Each attempt waits on the rate limiter first. Streaming requests are never
// retried after the first fragment has been delivered: the caller has already
// observed partial output, so a retry would replay fragments.
func (c *Client) generateWithRetry(ctx context.Context, opts []ai.GenerateOption, streaming bool) (*ai.ModelResponse, error) {
	var lastErr error
	delay := c.retry.InitialInterval
	start := time.Now()

	for attempt := 0; attempt <= c.retry.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := genkit.Generate(ctx, c.g, opts...)
		if err == nil {
			c.logger.Debug("completion succeeded",
				"attempts", attempt+1,
				"elapsed", time.Since(start),
			)
			return resp, nil
		}
		lastErr = err

		if streaming || !retryableError(err) || attempt == c.retry.MaxRetries {
			break
		}

		c.logger.Warn("transient model error, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("completion canceled during backoff: %w", ctx.Err())
		case <-time.After(delay):
		}

		delay *= 2
		if delay > c.retry.MaxInterval {
			delay = c.retry.MaxInterval
		}
	}

	return nil, fmt.Errorf("completion failed: %w", lastErr)
}

// Transform executes a single-turn text-to-text call: one system instruction,
// one prompt, no history. Used by the structure converter and the translator.
func (c *Client) Transform(ctx context.Context, system, prompt string) (string, error) {
	return c.Complete(ctx, Request{System: system, Prompt: prompt})
}
