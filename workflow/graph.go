package workflow

import (
	"fmt"

	"github.com/tailored-agentic-units/stepflow/checkpoint"
	"github.com/tailored-agentic-units/stepflow/config"
	"github.com/tailored-agentic-units/stepflow/observability"
)

// Graph is a set of named steps over state type S. Build it with AddStep,
// AddStrictStep and SetStart, then call Run as often as needed. Builder
// methods are not safe for concurrent use; Run is.
type Graph[S any] struct {
	name     string
	steps    map[StepName]*step[S]
	order    []StepName
	start    StepName
	schema   Schema[S]
	defaults func(*S)

	observer            observability.Observer
	maxSteps            int
	explicit            bool
	checkpointStore     checkpoint.Store
	checkpointInterval  int
	preserveCheckpoints bool
}

// Option configures a Graph at construction.
type Option func(*options)

type options struct {
	observer            observability.Observer
	maxSteps            int
	explicit            bool
	checkpointStore     checkpoint.Store
	checkpointInterval  int
	preserveCheckpoints bool
}

// WithObserver sets the observer notified of every run of the graph. When
// the graph runs nested inside another graph, the outer run's observer is
// used instead.
func WithObserver(observer observability.Observer) Option {
	return func(o *options) { o.observer = observer }
}

// WithMaxSteps bounds the number of steps a single run may execute.
// Zero leaves runs unbounded.
func WithMaxSteps(n int) Option {
	return func(o *options) { o.maxSteps = n }
}

// WithExplicitTransitions disables falling through to the next registered
// step. A handler returning no directive then ends the run unless the step
// declared a successor with WithNext or SetNext.
func WithExplicitTransitions() Option {
	return func(o *options) { o.explicit = true }
}

// WithCheckpoints saves a checkpoint to store after every interval executed
// steps. Checkpoints are deleted when a run completes unless preserve is set.
func WithCheckpoints(store checkpoint.Store, interval int, preserve bool) Option {
	return func(o *options) {
		o.checkpointStore = store
		o.checkpointInterval = interval
		o.preserveCheckpoints = preserve
	}
}

// New creates an empty graph. Without WithObserver, events are discarded.
func New[S any](name string, opts ...Option) *Graph[S] {
	o := options{observer: observability.NoOpObserver{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.observer == nil {
		o.observer = observability.NoOpObserver{}
	}

	return &Graph[S]{
		name:                name,
		steps:               make(map[StepName]*step[S]),
		observer:            o.observer,
		maxSteps:            o.maxSteps,
		explicit:            o.explicit,
		checkpointStore:     o.checkpointStore,
		checkpointInterval:  o.checkpointInterval,
		preserveCheckpoints: o.preserveCheckpoints,
	}
}

// NewFromConfig creates a graph whose observer and checkpoint store are
// resolved by name from their registries.
//
// Example:
//
//	cfg := config.DefaultGraphConfig("content-creator")
//	cfg.Checkpoint.Interval = 1
//	g, err := workflow.NewFromConfig[Post](cfg)
func NewFromConfig[S any](cfg config.GraphConfig, opts ...Option) (*Graph[S], error) {
	base, err := ConfigOptions(cfg)
	if err != nil {
		return nil, err
	}
	return New[S](cfg.Name, append(base, opts...)...), nil
}

// ConfigOptions resolves the observer, step bound and checkpoint settings of
// cfg into options, for graphs whose constructor picks its own name.
func ConfigOptions(cfg config.GraphConfig) ([]Option, error) {
	observer, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}

	opts := []Option{WithObserver(observer), WithMaxSteps(cfg.MaxSteps)}

	if cfg.Checkpoint.Interval > 0 {
		store, err := checkpoint.Get(cfg.Checkpoint.Store)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve checkpoint store: %w", err)
		}
		opts = append(opts, WithCheckpoints(store, cfg.Checkpoint.Interval, cfg.Checkpoint.Preserve))
	}

	return opts, nil
}

// Name returns the graph identifier used in events and traces.
func (g *Graph[S]) Name() string {
	return g.name
}

// Steps lists step names in registration order.
func (g *Graph[S]) Steps() []StepName {
	out := make([]StepName, len(g.order))
	copy(out, g.order)
	return out
}

// Start returns the start step, empty if unset.
func (g *Graph[S]) Start() StepName {
	return g.start
}

// AddStep registers a step. The first registered step does not become the
// start step implicitly; call SetStart.
func (g *Graph[S]) AddStep(name StepName, handler Handler[S], opts ...StepOption) error {
	return g.addStep(name, nil, handler, opts)
}

// AddStrictStep registers a step whose schema must accept the state before
// the handler runs. On rejection the run fails with *StateValidationError
// and the handler is not invoked.
func (g *Graph[S]) AddStrictStep(name StepName, schema Schema[S], handler Handler[S], opts ...StepOption) error {
	if schema == nil {
		return fmt.Errorf("strict step %q requires a schema", name)
	}
	if err := checkSchema(schema); err != nil {
		return fmt.Errorf("strict step %q: %w", name, err)
	}
	return g.addStep(name, schema, handler, opts)
}

func (g *Graph[S]) addStep(name StepName, schema Schema[S], handler Handler[S], opts []StepOption) error {
	if name == "" || name.IsReserved() {
		return fmt.Errorf("%w: %q", ErrInvalidStepName, name)
	}
	if handler == nil {
		return fmt.Errorf("step %q handler cannot be nil", name)
	}
	if _, exists := g.steps[name]; exists {
		return &DuplicateStepError{Step: name}
	}

	var so stepOptions
	for _, opt := range opts {
		opt(&so)
	}

	g.steps[name] = &step[S]{
		name:    name,
		handler: handler,
		schema:  schema,
		next:    so.next,
	}
	g.order = append(g.order, name)
	return nil
}

// SetStart designates the step every run begins with.
func (g *Graph[S]) SetStart(name StepName) error {
	if _, exists := g.steps[name]; !exists {
		return &UnknownStepError{Step: name}
	}
	g.start = name
	return nil
}

// SetNext declares the default successor of from. to must be registered or
// End.
func (g *Graph[S]) SetNext(from, to StepName) error {
	st, exists := g.steps[from]
	if !exists {
		return &UnknownStepError{Step: from}
	}
	if to != End {
		if _, exists := g.steps[to]; !exists {
			return &UnknownStepError{Step: to, From: from}
		}
	}
	st.next = to
	return nil
}

// SetSchema sets the root schema checked against the initial state of every
// run, after defaults are applied.
func (g *Graph[S]) SetSchema(schema Schema[S]) error {
	if err := checkSchema(schema); err != nil {
		return fmt.Errorf("graph %s schema: %w", g.name, err)
	}
	g.schema = schema
	return nil
}

// SetDefaults registers a function that fills unset fields of the initial
// state before the root schema is checked.
func (g *Graph[S]) SetDefaults(fn func(*S)) {
	g.defaults = fn
}

// Validate checks the graph is runnable: a start step is set and every
// declared successor exists.
func (g *Graph[S]) Validate() error {
	if g.start == "" {
		return ErrNoStartStep
	}
	if _, exists := g.steps[g.start]; !exists {
		return &UnknownStepError{Step: g.start}
	}
	for _, name := range g.order {
		next := g.steps[name].next
		if next == "" || next == End {
			continue
		}
		if _, exists := g.steps[next]; !exists {
			return &UnknownStepError{Step: next, From: name}
		}
	}
	return nil
}

// successor resolves the step that follows current when its handler
// returned no directive. done is true when the run should end.
func (g *Graph[S]) successor(current *step[S]) (next StepName, done bool) {
	switch current.next {
	case End:
		return "", true
	case "":
	default:
		return current.next, false
	}

	if g.explicit {
		return "", true
	}
	for i, name := range g.order {
		if name == current.name && i+1 < len(g.order) {
			return g.order[i+1], false
		}
	}
	return "", true
}
