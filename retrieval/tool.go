package retrieval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/tools"
)

// SearchToolName is the name models use to call the search tool.
const SearchToolName = "search"

type searchArgs struct {
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
	Filter Filter `json:"filter,omitempty"`
}

// SearchTool exposes s as a tool. Calls return up to limit hits (default k)
// as a JSON array; an empty query is reported to the model as a tool error.
func SearchTool(s Searcher, k int) (protocol.Tool, tools.Handler) {
	def := protocol.Tool{
		Name:        SearchToolName,
		Description: "Searches the knowledge base and returns the most relevant documents.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":  map[string]any{"type": "string", "description": "What to look for."},
				"limit":  map[string]any{"type": "integer", "description": "Maximum number of documents."},
				"filter": map[string]any{"type": "object", "description": "Metadata values documents must have."},
			},
			"required": []string{"query"},
		},
	}

	handler := func(ctx context.Context, raw json.RawMessage) (tools.Result, error) {
		args, err := tools.DecodeArgs[searchArgs](raw)
		if err != nil {
			return tools.Result{Content: err.Error(), IsError: true}, nil
		}
		if strings.TrimSpace(args.Query) == "" {
			return tools.Result{Content: ErrEmptyQuery.Error(), IsError: true}, nil
		}

		limit := k
		if args.Limit > 0 {
			limit = args.Limit
		}

		hits, err := s.Search(ctx, args.Query, limit, args.Filter)
		if err != nil {
			return tools.Result{}, fmt.Errorf("search failed: %w", err)
		}
		return tools.JSONResult(hits)
	}

	return def, handler
}
