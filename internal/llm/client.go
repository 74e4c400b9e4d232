// Package llm abstracts the text generator behind a one-method client.
// Calls are independent and retry-safe; no conversation state is shared
// between them.
package llm

import "context"

// Options are per-call sampling parameters. Zero values mean "use the
// model default" except MaxTokens, which callers should set explicitly
// for long structured outputs.
type Options struct {
	Temperature float32
	MaxTokens   int32
	TopP        float32
	TopK        float32
}

// Client issues one generation call.
type Client interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// ClientFunc adapts a plain function to the Client interface.
type ClientFunc func(ctx context.Context, prompt string, opts Options) (string, error)

func (f ClientFunc) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	return f(ctx, prompt, opts)
}
