package formatfix

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketsmith/internal/llm"
)

// scriptedClient returns canned responses in order, counting calls.
type scriptedClient struct {
	responses []string
	calls     int
}

func (s *scriptedClient) Generate(ctx context.Context, prompt string, opts llm.Options) (string, error) {
	if s.calls >= len(s.responses) {
		return "", context.DeadlineExceeded
	}
	resp := s.responses[s.calls]
	s.calls++
	return resp, nil
}

func acceptOnlyValid(text string) (any, string) {
	if strings.Contains(text, "VALID") {
		return text, ""
	}
	return nil, "marker not found"
}

var target = Target{Kind: "user stories", Shape: "a JSON array", Parse: acceptOnlyValid}

func TestFixSucceedsOnThirdAttempt(t *testing.T) {
	client := &scriptedClient{responses: []string{"still broken", "nope", "VALID at last"}}
	f := New(client, 3)

	got := f.Fix(context.Background(), "initially broken", target)
	require.NotNil(t, got)
	assert.Equal(t, "VALID at last", got)
	assert.Equal(t, 3, client.calls)
}

func TestFixExhaustsAttempts(t *testing.T) {
	client := &scriptedClient{responses: []string{"still broken", "nope", "VALID at last"}}
	f := New(client, 2)

	got := f.Fix(context.Background(), "initially broken", target)
	assert.Nil(t, got)
	assert.Equal(t, 2, client.calls)
}

func TestFixValidInputSkipsGenerator(t *testing.T) {
	client := &scriptedClient{}
	f := New(client, 3)

	got := f.Fix(context.Background(), "already VALID", target)
	assert.Equal(t, "already VALID", got)
	assert.Equal(t, 0, client.calls)
}

func TestFixGeneratorFailureReturnsNil(t *testing.T) {
	client := &scriptedClient{responses: nil} // every call errors
	f := New(client, 3)

	got := f.Fix(context.Background(), "broken", target)
	assert.Nil(t, got)
}

func TestFixPromptCarriesPriorError(t *testing.T) {
	var seen string
	client := llm.ClientFunc(func(ctx context.Context, prompt string, opts llm.Options) (string, error) {
		seen = prompt
		return "VALID", nil
	})
	f := New(client, 1)

	f.Fix(context.Background(), "broken", target)
	assert.Contains(t, seen, "marker not found")
	assert.Contains(t, seen, "a JSON array")
}
