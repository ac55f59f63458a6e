// Package llm defines the language model contract used by flow steps.
//
// Providers live in subpackages (llm/openai, llm/anthropic) and are created
// from configuration with llm/provider. Steps depend only on Model, so tests
// substitute llmtest.Scripted.
package llm

import (
	"context"
	"errors"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Options tune a single generation. Zero values defer to the provider's
// configured defaults.
type Options struct {
	Temperature *float64
	MaxTokens   int64
}

// Temperature returns an Options pointer value for t.
func Temperature(t float64) *float64 {
	return &t
}

// Model generates the next assistant message for a conversation.
// System messages in the conversation are passed to the provider as its
// system prompt.
type Model interface {
	// Name identifies the provider and model, e.g. "openai/gpt-4o-mini".
	Name() string
	Generate(ctx context.Context, messages []protocol.Message, opts Options) (string, error)
}

// Streamer is implemented by models that can deliver text incrementally.
// onChunk receives each piece as it arrives; returning an error aborts the
// stream. The full text is returned on success.
type Streamer interface {
	Stream(ctx context.Context, messages []protocol.Message, opts Options, onChunk func(string) error) (string, error)
}

// Stream uses the model's Streamer when available and otherwise delivers
// the whole generated text as one chunk.
func Stream(ctx context.Context, model Model, messages []protocol.Message, opts Options, onChunk func(string) error) (string, error) {
	if s, ok := model.(Streamer); ok {
		return s.Stream(ctx, messages, opts, onChunk)
	}

	text, err := model.Generate(ctx, messages, opts)
	if err != nil {
		return "", err
	}
	if err := onChunk(text); err != nil {
		return "", err
	}
	return text, nil
}

// SplitSystem separates system messages from the conversation turns. The
// system contents are joined with blank lines.
func SplitSystem(messages []protocol.Message) (system string, turns []protocol.Message) {
	turns = make([]protocol.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role != protocol.RoleSystem {
			turns = append(turns, msg)
			continue
		}
		if system != "" {
			system += "\n\n"
		}
		system += msg.Content
	}
	return system, turns
}
