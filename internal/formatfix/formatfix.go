// Package formatfix retries malformed generator output through a bounded
// reformat loop. The loop is an explicit iterative state machine with an
// attempt counter; it never recurses and carries no state beyond the
// latest text and validation error.
package formatfix

import (
	"context"
	"fmt"

	"ticketsmith/internal/llm"
	"ticketsmith/internal/logging"
)

// ParseFunc validates one response text. It returns the parsed value and
// an empty reason on success, or a non-empty reason describing why the
// text was rejected.
type ParseFunc func(text string) (value any, reason string)

// Target describes one fixable response family: a name for logs, the
// strict shape restated to the generator, and the parser that decides
// completeness.
type Target struct {
	Kind  string
	Shape string
	Parse ParseFunc
}

type state int

const (
	stateParse state = iota
	stateReformat
	stateDone
	stateFailed
)

// DefaultMaxAttempts bounds the number of reformat calls per fix.
const DefaultMaxAttempts = 3

// Fixer drives the reformat loop against a generator client.
type Fixer struct {
	client      llm.Client
	maxAttempts int
}

// New creates a Fixer. maxAttempts <= 0 selects DefaultMaxAttempts.
func New(client llm.Client, maxAttempts int) *Fixer {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Fixer{client: client, maxAttempts: maxAttempts}
}

// Fix parses text, reformatting through the generator on failure. Returns
// nil once maxAttempts reformat calls are exhausted or the generator
// itself fails; the caller supplies its own default.
func (f *Fixer) Fix(ctx context.Context, text string, target Target) any {
	var (
		value    any
		reason   string
		attempts int
	)

	st := stateParse
	for {
		switch st {
		case stateParse:
			value, reason = target.Parse(text)
			if reason == "" {
				st = stateDone
				break
			}
			logging.Get(logging.CategoryFormatFix).Debug("%s parse rejected (attempt %d): %s", target.Kind, attempts, reason)
			if attempts >= f.maxAttempts {
				st = stateFailed
				break
			}
			st = stateReformat

		case stateReformat:
			attempts++
			fixed, err := f.client.Generate(ctx, reformatPrompt(target, text, reason), llm.Options{
				Temperature: 0.1,
				MaxTokens:   8192,
			})
			if err != nil {
				logging.Get(logging.CategoryFormatFix).Warn("%s reformat call failed: %v", target.Kind, err)
				return nil
			}
			text = fixed
			st = stateParse

		case stateDone:
			logging.Get(logging.CategoryFormatFix).Info("%s fixed after %d reformat attempts", target.Kind, attempts)
			return value

		case stateFailed:
			logging.Get(logging.CategoryFormatFix).Warn("%s unfixable after %d attempts: %s", target.Kind, attempts, reason)
			return nil
		}
	}
}

func reformatPrompt(target Target, text, reason string) string {
	return fmt.Sprintf(`The following %s response is not in the required format.

Problem: %s

Required format, exactly and with no commentary:
%s

Rewrite the response below so it conforms. Preserve the content, change only the structure.

Response to rewrite:
%s`, target.Kind, reason, target.Shape, text)
}
