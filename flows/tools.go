package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/llm"
	"github.com/tailored-agentic-units/stepflow/tools"
)

const (
	AskToolName    = "ask"
	TravelToolName = "travel_agent"
)

// AskTool lets an agent put a self-contained question to model, for
// drafting or summarizing without the agent's conversation.
func AskTool(model llm.Model) (protocol.Tool, tools.Handler) {
	def := protocol.Tool{
		Name:        AskToolName,
		Description: "Sends a self-contained instruction to a language model and returns its reply.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input": map[string]any{"type": "string", "description": "The full instruction."},
			},
			"required": []string{"input"},
		},
	}

	handler := func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
		args, err := tools.DecodeArgs[struct {
			Input string `json:"input"`
		}](raw)
		if err != nil {
			return tools.Result{Content: err.Error(), IsError: true}, nil
		}
		if strings.TrimSpace(args.Input) == "" {
			return tools.Result{Content: "input is empty", IsError: true}, nil
		}

		text, err := model.Generate(ctx, []protocol.Message{
			protocol.NewMessage(protocol.RoleUser, args.Input),
		}, llm.Options{})
		if err != nil {
			return tools.Result{}, err
		}
		return tools.Result{Content: text}, nil
	}

	return def, handler
}

// Destination is one travel suggestion.
type Destination struct {
	Rank      int    `json:"rank"`
	City      string `json:"city"`
	Country   string `json:"country"`
	Reason    string `json:"reason_to_travel"`
	Interests string `json:"main_interests_covered"`
}

type destinations struct {
	Destinations []Destination `json:"destinations"`
}

const travelPrompt = `# Role
You are a travel agent who suggests the best vacation trips.

# Instructions
List exactly %d destinations, ranked from 1, that answer the traveler's question.

# Question
%s`

// TravelTool suggests ranked vacation destinations for a traveler's
// question, asking model for count entries.
func TravelTool(model llm.Model, count int) (protocol.Tool, tools.Handler) {
	if count <= 0 {
		count = 2
	}

	def := protocol.Tool{
		Name:        TravelToolName,
		Description: "Suggests vacation destinations with the reasons to travel to each city.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"question_input": map[string]any{"type": "string", "description": "Question of the traveler."},
			},
			"required": []string{"question_input"},
		},
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"destinations": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"rank":                   map[string]any{"type": "integer"},
						"city":                   map[string]any{"type": "string"},
						"country":                map[string]any{"type": "string"},
						"reason_to_travel":       map[string]any{"type": "string"},
						"main_interests_covered": map[string]any{"type": "string"},
					},
					"required": []string{"rank", "city", "country"},
				},
			},
		},
		"required": []string{"destinations"},
	}

	validate := func(d *destinations) error {
		if len(d.Destinations) == 0 {
			return errors.New("no destinations listed")
		}
		for i, dest := range d.Destinations {
			if dest.City == "" || dest.Country == "" {
				return fmt.Errorf("destination %d needs a city and a country", i+1)
			}
		}
		return nil
	}

	handler := func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
		args, err := tools.DecodeArgs[struct {
			Question string `json:"question_input"`
		}](raw)
		if err != nil {
			return tools.Result{Content: err.Error(), IsError: true}, nil
		}
		if strings.TrimSpace(args.Question) == "" {
			return tools.Result{Content: "question_input is empty", IsError: true}, nil
		}

		out, err := llm.GenerateStructured(ctx, model, []protocol.Message{
			protocol.NewMessage(protocol.RoleUser, fmt.Sprintf(travelPrompt, count, args.Question)),
		}, llm.StructuredOptions{Options: llm.Options{MaxTokens: 1000}, Schema: schema}, validate)
		if err != nil {
			return tools.Result{}, err
		}
		return tools.JSONResult(out.Destinations)
	}

	return def, handler
}
