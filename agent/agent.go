// Package agent implements the tool-using model loop that flow steps call:
// ask the model, run any tools it requests, feed the results back, repeat
// until it answers.
//
// Tool calls use a JSON protocol rather than a provider's native function
// calling, so every llm.Model can drive tools:
//
//	{"tool_calls": [{"name": "search", "arguments": {"query": "..."}}]}
//	{"answer": "..."}
//
// An agent holds no conversation state. Run reads the history from the
// session it is given and records the new turns there; with a read-only
// session the turns are kept for the duration of the call only.
//
//	a := agent.New("planner", model, &cfg, agent.WithTools(registry))
//	result, err := a.Run(ctx, sess, "Plan a post about Go generics")
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/llm"
	"github.com/tailored-agentic-units/stepflow/memory"
	"github.com/tailored-agentic-units/stepflow/observability"
	"github.com/tailored-agentic-units/stepflow/session"
	"github.com/tailored-agentic-units/stepflow/tools"
)

// Result holds the outcome of a Run.
type Result struct {
	Response   string           // Final answer.
	Iterations int              // Model turns taken.
	ToolCalls  []ToolCallRecord // Every tool invocation, in order.
}

type ToolCallRecord struct {
	protocol.ToolCall
	Iteration int    // Model turn that requested the call.
	Result    string // Tool output, or the error text.
	IsError   bool
}

// ToolExecutor lists and runs tools. *tools.Registry implements it.
type ToolExecutor interface {
	List() []protocol.Tool
	Execute(ctx context.Context, name string, args json.RawMessage) (tools.Result, error)
}

// Option configures an Agent after construction.
type Option func(*Agent)

// WithTools lets the model call the tools of e.
func WithTools(e ToolExecutor) Option {
	return func(a *Agent) { a.tools = e }
}

// WithMemory appends the notes in store to the system prompt on every Run.
func WithMemory(store memory.Store) Option {
	return func(a *Agent) { a.memory = store }
}

// WithObserver reports loop events to o.
func WithObserver(o observability.Observer) Option {
	return func(a *Agent) { a.observer = o }
}

// WithOptions sets the generation options used for every model turn.
func WithOptions(opts llm.Options) Option {
	return func(a *Agent) { a.options = opts }
}

// Agent drives a model through the tool loop. It is safe for concurrent
// use when its model and tools are.
type Agent struct {
	name          string
	model         llm.Model
	tools         ToolExecutor
	memory        memory.Store
	observer      observability.Observer
	options       llm.Options
	maxIterations int
	systemPrompt  string
}

// New creates an Agent. cfg is merged over DefaultConfig and may be nil.
func New(name string, model llm.Model, cfg *Config, opts ...Option) *Agent {
	c := DefaultConfig()
	if cfg != nil {
		c.Merge(cfg)
	}

	a := &Agent{
		name:          name,
		model:         model,
		observer:      observability.NoOpObserver{},
		maxIterations: c.MaxIterations,
		systemPrompt:  c.SystemPrompt,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.observer == nil {
		a.observer = observability.NoOpObserver{}
	}
	return a
}

func (a *Agent) Name() string {
	return a.name
}

// Run continues the conversation in sess. A non-empty prompt is added as a
// user turn first; an empty prompt answers the conversation as it stands.
// The answer is recorded in sess as an assistant turn.
func (a *Agent) Run(ctx context.Context, sess session.Session, prompt string) (*Result, error) {
	result := &Result{}

	conversation := sess.Messages()
	record := func(msg protocol.Message) {
		conversation = append(conversation, msg)
		sess.AddMessage(msg)
	}
	if prompt != "" {
		record(protocol.NewMessage(protocol.RoleUser, prompt))
	}
	if len(conversation) == 0 {
		return result, errors.New("agent has nothing to respond to")
	}

	available := a.availableTools()
	system, err := a.buildSystemContent(ctx, available)
	if err != nil {
		return result, err
	}

	a.emit(ctx, EventRunStart, observability.LevelInfo, map[string]any{
		"agent":          a.name,
		"model":          a.model.Name(),
		"messages":       len(conversation),
		"max_iterations": a.maxIterations,
		"tools":          len(available),
	})

	for iteration := 1; a.maxIterations < 0 || iteration <= a.maxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Iterations = iteration

		a.emit(ctx, EventIterationStart, observability.LevelVerbose, map[string]any{
			"iteration": iteration,
		})

		messages := withSystem(system, conversation)

		d, err := a.decide(ctx, messages, len(available) > 0)
		if err != nil {
			a.emit(ctx, EventError, observability.LevelError, map[string]any{
				"iteration": iteration,
				"error":     err.Error(),
			})
			return result, fmt.Errorf("agent %s: model call failed: %w", a.name, err)
		}

		if len(d.ToolCalls) == 0 {
			record(protocol.NewMessage(protocol.RoleAssistant, d.Answer))
			result.Response = d.Answer

			a.emit(ctx, EventResponse, observability.LevelInfo, map[string]any{
				"iteration":       iteration,
				"response_length": len(d.Answer),
			})
			return result, nil
		}

		request, err := json.Marshal(d)
		if err != nil {
			return result, fmt.Errorf("agent %s: encode tool calls: %w", a.name, err)
		}
		record(protocol.NewMessage(protocol.RoleAssistant, string(request)))

		for _, tc := range d.ToolCalls {
			rec := a.callTool(ctx, tc, iteration)
			record(protocol.ToolResultMessage(tc.Name, rec.Result))
			result.ToolCalls = append(result.ToolCalls, rec)
		}
	}

	a.emit(ctx, EventError, observability.LevelWarning, map[string]any{
		"error":      ErrMaxIterations.Error(),
		"iterations": a.maxIterations,
	})
	return result, ErrMaxIterations
}

func (a *Agent) callTool(ctx context.Context, tc protocol.ToolCall, iteration int) ToolCallRecord {
	a.emit(ctx, EventToolCall, observability.LevelVerbose, map[string]any{
		"iteration": iteration,
		"name":      tc.Name,
	})

	rec := ToolCallRecord{ToolCall: tc, Iteration: iteration}

	res, err := a.tools.Execute(ctx, tc.Name, tc.Arguments)
	if err != nil {
		rec.Result = fmt.Sprintf("error: %s", err)
		rec.IsError = true
	} else {
		rec.Result = res.Content
		rec.IsError = res.IsError
	}

	a.emit(ctx, EventToolComplete, observability.LevelVerbose, map[string]any{
		"iteration": iteration,
		"name":      tc.Name,
		"error":     rec.IsError,
	})
	return rec
}

func (a *Agent) availableTools() []protocol.Tool {
	if a.tools == nil {
		return nil
	}
	return a.tools.List()
}

func (a *Agent) buildSystemContent(ctx context.Context, available []protocol.Tool) (string, error) {
	parts := make([]string, 0, 3)
	if a.systemPrompt != "" {
		parts = append(parts, a.systemPrompt)
	}

	if a.memory != nil {
		notes, err := memory.Notes(ctx, a.memory)
		if err != nil {
			return "", fmt.Errorf("failed to load memory notes: %w", err)
		}
		if notes != "" {
			parts = append(parts, notes)
		}
	}

	if len(available) > 0 {
		catalog, err := json.MarshalIndent(available, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode tools: %w", err)
		}
		parts = append(parts, toolInstruction+string(catalog))
	}

	return strings.Join(parts, "\n\n"), nil
}

func (a *Agent) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	a.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "agent." + a.name,
		Data:      data,
	})
}

func withSystem(system string, conversation []protocol.Message) []protocol.Message {
	if system == "" {
		return conversation
	}
	messages := make([]protocol.Message, 0, len(conversation)+1)
	messages = append(messages, protocol.NewMessage(protocol.RoleSystem, system))
	return append(messages, conversation...)
}
