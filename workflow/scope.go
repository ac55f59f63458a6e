package workflow

import (
	"context"

	"github.com/tailored-agentic-units/stepflow/observability"
)

// scope describes the step currently executing. It travels in the handler
// context so nested graphs can link themselves to the outer run.
type scope struct {
	runID    string
	graph    string
	step     StepName
	trace    *Trace
	observer observability.Observer
}

type scopeKey struct{}

func withScope(ctx context.Context, sc *scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, sc)
}

func scopeFrom(ctx context.Context) *scope {
	sc, _ := ctx.Value(scopeKey{}).(*scope)
	return sc
}

// RunIDFromContext returns the ID of the run executing the current step.
func RunIDFromContext(ctx context.Context) (string, bool) {
	sc := scopeFrom(ctx)
	if sc == nil {
		return "", false
	}
	return sc.runID, true
}

// StepFromContext returns the name of the step whose handler received ctx.
func StepFromContext(ctx context.Context) (StepName, bool) {
	sc := scopeFrom(ctx)
	if sc == nil {
		return "", false
	}
	return sc.step, true
}
