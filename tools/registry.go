// Package tools holds the functions a model may call during a flow step.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/observability"
)

const (
	EventToolStart    observability.EventType = "tool.start"
	EventToolComplete observability.EventType = "tool.complete"
	EventToolError    observability.EventType = "tool.error"
)

// Handler is the function signature for tool implementations.
// Handlers receive the request context and JSON-encoded arguments.
type Handler func(ctx context.Context, args json.RawMessage) (Result, error)

// Result is the tool output fed back into the next model turn. IsError
// tells the model the invocation failed without failing the step.
type Result struct {
	Content string `json:"content"`
	IsError bool   `json:"is_error,omitempty"`
}

// JSONResult encodes v as the result content.
func JSONResult(v any) (Result, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Result{}, err
	}
	return Result{Content: string(data)}, nil
}

type entry struct {
	tool    protocol.Tool
	handler Handler
}

// Registry maps tool names to handlers. Safe for concurrent use.
type Registry struct {
	entries  map[string]entry
	observer observability.Observer
	mu       sync.RWMutex
}

// NewRegistry creates an empty Registry reporting to observer (nil
// discards events).
func NewRegistry(observer observability.Observer) *Registry {
	if observer == nil {
		observer = observability.NoOpObserver{}
	}
	return &Registry{
		entries:  make(map[string]entry),
		observer: observer,
	}
}

// Register adds a new tool. Returns ErrAlreadyExists if the name is taken;
// use Replace to update an existing tool.
func (r *Registry) Register(tool protocol.Tool, handler Handler) error {
	if tool.Name == "" {
		return ErrEmptyName
	}
	if handler == nil {
		return fmt.Errorf("tool %s handler cannot be nil", tool.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	return nil
}

// Replace updates an existing tool's definition and handler.
func (r *Registry) Replace(tool protocol.Tool, handler Handler) error {
	if tool.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[tool.Name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, tool.Name)
	}

	r.entries[tool.Name] = entry{tool: tool, handler: handler}
	return nil
}

// Get retrieves a handler by tool name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	if !exists {
		return nil, false
	}
	return e.handler, true
}

// List returns the definitions of all registered tools sorted by name.
func (r *Registry) List() []protocol.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tools := make([]protocol.Tool, 0, len(r.entries))
	for _, e := range r.entries {
		tools = append(tools, e.tool)
	}
	slices.SortFunc(tools, func(a, b protocol.Tool) int {
		return strings.Compare(a.Name, b.Name)
	})
	return tools
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Execute dispatches a call to the registered handler. Returns ErrNotFound
// for unknown tools; handler errors are wrapped with the tool name.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (Result, error) {
	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	start := time.Now()
	r.emit(ctx, EventToolStart, observability.LevelVerbose, map[string]any{
		"tool": name,
	})

	result, err := e.handler(ctx, args)
	if err != nil {
		r.emit(ctx, EventToolError, observability.LevelWarning, map[string]any{
			"tool":     name,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return Result{}, fmt.Errorf("tool %s execution failed: %w", name, err)
	}

	r.emit(ctx, EventToolComplete, observability.LevelVerbose, map[string]any{
		"tool":     name,
		"is_error": result.IsError,
		"duration": time.Since(start),
	})
	return result, nil
}

func (r *Registry) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	r.observer.OnEvent(ctx, observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "tools",
		Data:      data,
	})
}
