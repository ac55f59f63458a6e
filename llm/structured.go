package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
)

// ErrStructuredOutput is returned when no attempt produced a valid object.
var ErrStructuredOutput = errors.New("model did not produce valid structured output")

const defaultMaxRetries = 3

// StructuredOptions configure GenerateStructured.
type StructuredOptions struct {
	Options

	// Schema is a JSON Schema object shown to the model.
	Schema map[string]any

	// MaxRetries is the number of corrective retries after the first attempt.
	// Zero uses the default of 3; negative disables retries.
	MaxRetries int
}

// GenerateStructured asks the model for a JSON object, decodes it into T and
// runs validate (when non-nil). Invalid replies are answered with a
// correction message and retried up to MaxRetries times.
//
// Example:
//
//	type score struct {
//	    Score int `json:"score"`
//	}
//	out, err := llm.GenerateStructured[score](ctx, model, messages, llm.StructuredOptions{
//	    Schema: map[string]any{"type": "object", "required": []string{"score"}},
//	}, nil)
func GenerateStructured[T any](ctx context.Context, model Model, messages []protocol.Message, opts StructuredOptions, validate func(*T) error) (*T, error) {
	retries := opts.MaxRetries
	switch {
	case retries == 0:
		retries = defaultMaxRetries
	case retries < 0:
		retries = 0
	}

	instruction, err := structuredInstruction(opts.Schema)
	if err != nil {
		return nil, err
	}

	conversation := make([]protocol.Message, 0, len(messages)+1+2*retries)
	conversation = append(conversation, messages...)
	conversation = append(conversation, protocol.NewMessage(protocol.RoleSystem, instruction))

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		text, err := model.Generate(ctx, conversation, opts.Options)
		if err != nil {
			return nil, err
		}

		out, err := decodeStructured(text, validate)
		if err == nil {
			return out, nil
		}
		lastErr = err

		conversation = append(conversation,
			protocol.NewMessage(protocol.RoleAssistant, text),
			protocol.NewMessage(protocol.RoleUser, fmt.Sprintf(
				"That reply was not valid: %v. Reply again with only the JSON object.", err)),
		)
	}

	return nil, fmt.Errorf("%w after %d attempts: %v", ErrStructuredOutput, retries+1, lastErr)
}

func structuredInstruction(schema map[string]any) (string, error) {
	if len(schema) == 0 {
		return "Respond with a single JSON object and nothing else.", nil
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", fmt.Errorf("invalid schema: %w", err)
	}
	return "Respond with a single JSON object and nothing else. It must match this JSON Schema:\n" + string(data), nil
}

func decodeStructured[T any](text string, validate func(*T) error) (*T, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return nil, err
	}

	out := new(T)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if validate != nil {
		if err := validate(out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ExtractJSON returns the outermost JSON object in text, skipping code
// fences and prose around it.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end < start {
		return "", errors.New("no JSON object found")
	}

	raw := text[start : end+1]
	if !json.Valid([]byte(raw)) {
		return "", errors.New("malformed JSON object")
	}
	return raw, nil
}
