package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/llm"
)

const toolInstruction = `You can call tools. To call tools reply with {"tool_calls": [{"name": "<tool>", "arguments": {...}}]}.
When you can answer without further tools reply with {"answer": "<your answer>"}.
Tool results arrive as the next messages. Available tools:
`

// decision is one model turn under the tool protocol.
type decision struct {
	Thought   string              `json:"thought,omitempty"`
	ToolCalls []protocol.ToolCall `json:"tool_calls,omitempty"`
	Answer    string              `json:"answer,omitempty"`
}

var decisionSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"thought": map[string]any{"type": "string"},
		"tool_calls": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":      map[string]any{"type": "string"},
					"arguments": map[string]any{"type": "object"},
				},
				"required": []string{"name"},
			},
		},
		"answer": map[string]any{"type": "string"},
	},
}

func (d *decision) validate() error {
	if len(d.ToolCalls) == 0 {
		if strings.TrimSpace(d.Answer) == "" {
			return errors.New(`either "answer" or "tool_calls" is required`)
		}
		return nil
	}
	for i, tc := range d.ToolCalls {
		if tc.Name == "" {
			return fmt.Errorf("tool_calls[%d] has no name", i)
		}
	}
	return nil
}

// decide runs one model turn. Without tools the reply is taken as the
// answer verbatim.
func (a *Agent) decide(ctx context.Context, messages []protocol.Message, withTools bool) (*decision, error) {
	if !withTools {
		text, err := a.model.Generate(ctx, messages, a.options)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(text) == "" {
			return nil, llm.ErrEmptyResponse
		}
		return &decision{Answer: text}, nil
	}

	return llm.GenerateStructured(ctx, a.model, messages, llm.StructuredOptions{
		Options: a.options,
		Schema:  decisionSchema,
	}, (*decision).validate)
}
