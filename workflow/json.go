package workflow

import (
	"context"
	"encoding/json"
	"fmt"
)

// Runner executes a workflow over JSON-encoded state. Every *Graph
// implements it, which lets transports serve graphs of any state type.
type Runner interface {
	Name() string
	RunJSON(ctx context.Context, input []byte) ([]byte, *Trace, error)
}

// RunJSON decodes input into S, runs the graph and encodes the final state.
// A decode failure is reported as *StateValidationError. On a run failure
// the partial trace is still returned.
func (g *Graph[S]) RunJSON(ctx context.Context, input []byte) ([]byte, *Trace, error) {
	var initial S
	if len(input) > 0 {
		if err := json.Unmarshal(input, &initial); err != nil {
			return nil, nil, &StateValidationError{Err: fmt.Errorf("decode state: %w", err)}
		}
	}

	res, err := g.Run(ctx, initial)
	if err != nil {
		return nil, res.Trace, err
	}

	out, err := json.Marshal(res.State)
	if err != nil {
		return nil, res.Trace, fmt.Errorf("encode state: %w", err)
	}
	return out, res.Trace, nil
}

// Resumer continues checkpointed runs over JSON-encoded state. Every *Graph
// implements it.
type Resumer interface {
	Name() string
	ResumeJSON(ctx context.Context, runID string) ([]byte, *Trace, error)
}

// ResumeJSON resumes runID from its checkpoint and encodes the final state.
// The trace is nil when the checkpoint could not be loaded.
func (g *Graph[S]) ResumeJSON(ctx context.Context, runID string) ([]byte, *Trace, error) {
	res, err := g.Resume(ctx, runID)
	if res == nil {
		return nil, nil, err
	}
	if err != nil {
		return nil, res.Trace, err
	}

	out, err := json.Marshal(res.State)
	if err != nil {
		return nil, res.Trace, fmt.Errorf("encode state: %w", err)
	}
	return out, res.Trace, nil
}
