package workflow

import "context"

// StepName identifies a step within a graph. The zero value means "no
// directive" when returned from a handler.
type StepName string

// Reserved directives. They can be returned by handlers but never registered
// as step names.
const (
	Self StepName = "__self__"
	End  StepName = "__end__"
)

// IsReserved reports whether n is one of the reserved directives.
func (n StepName) IsReserved() bool {
	return n == Self || n == End
}

func (n StepName) String() string {
	return string(n)
}

// Handler is the unit of work of a step. It receives the live state of the
// run and returns the directive that picks the next step. Handlers that
// block must honor ctx.
type Handler[S any] func(ctx context.Context, state *S) (StepName, error)

type step[S any] struct {
	name    StepName
	handler Handler[S]
	schema  Schema[S]
	next    StepName
}

// StepOption configures a step at registration time.
type StepOption func(*stepOptions)

type stepOptions struct {
	next StepName
}

// WithNext declares the default successor used when the handler returns no
// directive. Pass End to make the step terminal by default. The target is
// checked by Validate, so it may be registered later.
func WithNext(next StepName) StepOption {
	return func(o *stepOptions) { o.next = next }
}
