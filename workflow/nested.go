package workflow

import (
	"context"
	"fmt"
)

// AsStep adapts g into a handler of another graph over the same state type.
// The nested run works on the outer state directly. When it ends, the
// wrapping step returns next; pass "" to fall back to the outer step's
// default successor.
func (g *Graph[S]) AsStep(next StepName) Handler[S] {
	return Nest(g, func(s *S) *S { return s }, next)
}

// Nest adapts inner into a handler of a graph over a different state type.
// project selects the part of the outer state the inner graph works on; the
// returned pointer must stay valid for the duration of the step, and
// mutations through it are visible to the outer run.
//
// The nested run gets its own run ID and trace, linked into the outer trace
// as a child. Its events go to the outer run's observer. Any failure is
// returned as the wrapping step's error. Nested runs never checkpoint.
func Nest[O, I any](inner *Graph[I], project func(*O) *I, next StepName) Handler[O] {
	return func(ctx context.Context, outer *O) (StepName, error) {
		state := project(outer)
		if state == nil {
			return "", fmt.Errorf("graph %s: projected state is nil", inner.name)
		}

		if _, err := inner.runNested(ctx, state); err != nil {
			return "", err
		}
		return next, nil
	}
}

func (g *Graph[S]) runNested(ctx context.Context, state *S) (*Trace, error) {
	observer := g.observer
	parent := scopeFrom(ctx)
	if parent != nil {
		observer = parent.observer
	}

	r := g.newRun("", state, observer)
	r.nested = true

	if parent != nil {
		r.trace.ParentRunID = parent.runID
		r.trace.ParentStep = parent.step
		parent.trace.attach(r.trace)
	}

	err := r.execute(ctx, g.start, true)
	return r.trace, err
}
