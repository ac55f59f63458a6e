package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/stepflow/agent"
	"github.com/tailored-agentic-units/stepflow/config"
	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/flows"
	"github.com/tailored-agentic-units/stepflow/llm"
	"github.com/tailored-agentic-units/stepflow/llm/openai"
	"github.com/tailored-agentic-units/stepflow/memory"
	"github.com/tailored-agentic-units/stepflow/observability"
	"github.com/tailored-agentic-units/stepflow/retrieval"
	"github.com/tailored-agentic-units/stepflow/tools"
)

const searchResults = 3

var datetimeTool = protocol.Tool{
	Name:        "datetime",
	Description: "Returns the current date and time in RFC3339 format.",
	Parameters: map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	},
}

func handleDatetime(_ context.Context, _ json.RawMessage) (tools.Result, error) {
	return tools.Result{Content: time.Now().Format(time.RFC3339)}, nil
}

// delegationTools builds the registry of the delegation flow's complex
// agent: the clock, the travel agent and, when memory holds documents,
// search.
func (a *app) delegationTools(ctx context.Context, model llm.Model) (*tools.Registry, error) {
	registry := tools.NewRegistry(a.observer)

	if err := registry.Register(datetimeTool, handleDatetime); err != nil {
		return nil, err
	}
	if err := registry.Register(flows.TravelTool(model, 0)); err != nil {
		return nil, err
	}

	index, err := a.index(ctx)
	if err != nil {
		return nil, err
	}
	if index == nil {
		return registry, nil
	}
	if err := registry.Register(retrieval.SearchTool(index, searchResults)); err != nil {
		return nil, err
	}
	return registry, nil
}

// teamTools returns the researcher's search tool, nil without documents, and
// the weather forecaster's clock.
func (a *app) teamTools(ctx context.Context) (research, weather agent.ToolExecutor, err error) {
	clock := tools.NewRegistry(a.observer)
	if err := clock.Register(datetimeTool, handleDatetime); err != nil {
		return nil, nil, err
	}

	index, err := a.index(ctx)
	if err != nil {
		return nil, nil, err
	}
	if index == nil {
		return nil, clock, nil
	}

	search := tools.NewRegistry(a.observer)
	if err := search.Register(retrieval.SearchTool(index, searchResults)); err != nil {
		return nil, nil, err
	}
	return search, clock, nil
}

// index embeds the memory documents once per process. It is nil when memory
// holds none.
func (a *app) index(ctx context.Context) (*retrieval.Index, error) {
	if a.indexed {
		return a.idx, nil
	}
	if a.memory == nil {
		a.indexed = true
		return nil, nil
	}

	docs, err := memory.Documents(ctx, a.memory)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		a.indexed = true
		return nil, nil
	}

	embedder, err := a.embedder()
	if err != nil {
		return nil, err
	}
	index := retrieval.NewIndex(embedder)
	if err := index.Add(ctx, docs...); err != nil {
		return nil, fmt.Errorf("failed to index documents: %w", err)
	}
	a.logger.Info("indexed memory documents", "documents", index.Len())

	a.idx, a.indexed = index, true
	return index, nil
}

// embedder uses hosted embeddings with the OpenAI provider and the offline
// hash embedder otherwise.
func (a *app) embedder() (retrieval.Embedder, error) {
	if a.cfg.Provider.Name != config.ProviderOpenAI {
		return retrieval.HashEmbedder{}, nil
	}
	e, err := openai.NewEmbedder(a.cfg.Provider, "")
	if err != nil {
		return nil, err
	}
	return e, nil
}

func contentTools(model llm.Model, observer observability.Observer) *tools.Registry {
	registry := tools.NewRegistry(observer)
	must(registry.Register(datetimeTool, handleDatetime))
	must(registry.Register(flows.AskTool(model)))
	return registry
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("failed to register tool: %v", err))
	}
}
