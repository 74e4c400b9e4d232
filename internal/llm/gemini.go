package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"ticketsmith/internal/logging"
)

const (
	defaultModel      = "gemini-2.0-flash"
	defaultMaxRetries = 3
	retryBaseDelay    = 2 * time.Second
)

// Gemini is the production Client backed by the Gemini API.
type Gemini struct {
	client     *genai.Client
	model      string
	maxRetries int
}

// NewGemini creates a Gemini client. Model defaults to a flash-tier model
// when empty.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Gemini{client: client, model: model, maxRetries: defaultMaxRetries}, nil
}

// Generate issues one generation call, retrying rate-limit and transient
// server errors with linear backoff.
func (g *Gemini) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		config.Temperature = genai.Ptr(opts.Temperature)
	}
	if opts.TopP > 0 {
		config.TopP = genai.Ptr(opts.TopP)
	}
	if opts.TopK > 0 {
		config.TopK = genai.Ptr(opts.TopK)
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = opts.MaxTokens
	}

	timer := logging.StartTimer(logging.CategoryAPI, "generate")
	defer timer.Stop()

	var lastErr error
	for attempt := 0; attempt <= g.maxRetries; attempt++ {
		if attempt > 0 {
			logging.API("retrying generation (attempt %d/%d): %v", attempt, g.maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryBaseDelay * time.Duration(attempt)):
			}
		}

		resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), config)
		if err != nil {
			if !isRetryable(err) {
				return "", fmt.Errorf("generation call failed: %w", err)
			}
			lastErr = err
			continue
		}

		text := resp.Text()
		if text == "" {
			lastErr = fmt.Errorf("empty response from model %s", g.model)
			continue
		}
		logging.APIDebug("generation returned %d bytes (prompt %d bytes)", len(text), len(prompt))
		return text, nil
	}
	return "", fmt.Errorf("generation failed after %d retries: %w", g.maxRetries, lastErr)
}

func isRetryable(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "UNAVAILABLE")
}
