// Package imagegen renders recipe images by driving a public text-to-image
// web demo through a headless browser. The demo exposes no API, so the
// generator fills its prompt box, clicks submit, and polls the DOM until the
// generated image URL appears.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

var (
	// ErrUINotReady indicates the prompt form never appeared on the page.
	ErrUINotReady = errors.New("image generator UI elements not found")

	// ErrGenerationTimeout indicates no image appeared before the deadline.
	ErrGenerationTimeout = errors.New("image generation timed out")
)

const (
	// submitAttempts bounds the wait for the prompt form to render.
	submitAttempts = 10

	pollInterval = time.Second
)

// Config contains parameters for the browser-driven generator.
type Config struct {
	// BaseURL is the demo page to drive.
	BaseURL string

	// Timeout bounds the wait for the generated image, default 60s.
	Timeout time.Duration

	Logger *slog.Logger
}

// Generator produces images via browser automation. Each Generate call
// launches a fresh headless browser; the demo page keeps per-tab state, so
// sharing a tab across generations would mix results.
type Generator struct {
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// New creates a generator.
func New(cfg Config) (*Generator, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("image generator base URL is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Generator{
		baseURL: cfg.BaseURL,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}, nil
}

// Generate submits prompt to the demo and returns the URL of the generated
// image. Blocking; respects ctx cancellation between polls.
func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	g.logger.Info("generating image", "prompt_prefix", truncate(prompt, 50))

	l := launcher.New().Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launching browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connecting to browser: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{URL: g.baseURL})
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", g.baseURL, err)
	}

	if err := g.submitPrompt(ctx, page, prompt); err != nil {
		return "", err
	}
	return g.waitForImage(ctx, page)
}

// submitPrompt waits for the prompt form to render, fills it, and submits.
// The demo is a client-rendered app, so the form may take several seconds to
// appear after page load.
func (g *Generator) submitPrompt(ctx context.Context, page *rod.Page, prompt string) error {
	for attempt := 0; attempt < submitAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("image generation canceled: %w", err)
		}

		err := func() error {
			textarea, err := page.Timeout(pollInterval).Element("textarea")
			if err != nil {
				return err
			}
			button, err := page.Timeout(pollInterval).Element("button.submit-button")
			if err != nil {
				return err
			}
			if err := textarea.SelectAllText(); err != nil {
				return err
			}
			if err := textarea.Input(prompt); err != nil {
				return err
			}
			return button.Click(proto.InputMouseButtonLeft, 1)
		}()
		if err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("image generation canceled: %w", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
	return ErrUINotReady
}

// waitForImage polls the page for an <img> whose src points at the demo's
// generated-image endpoint (recognizable by the "gradio_api" path segment).
func (g *Generator) waitForImage(ctx context.Context, page *rod.Page) (string, error) {
	deadline := time.Now().Add(g.timeout)
	for time.Now().Before(deadline) {
		images, err := page.Timeout(pollInterval).Elements("img")
		if err == nil {
			for _, img := range images {
				src, err := img.Attribute("src")
				if err != nil || src == nil {
					continue
				}
				if strings.Contains(*src, "gradio_api") {
					g.logger.Info("image generated", "src", truncate(*src, 120))
					return *src, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("image generation canceled: %w", ctx.Err())
		case <-time.After(pollInterval):
		}
	}
	return "", ErrGenerationTimeout
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
