package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/stepflow/checkpoint"
	"github.com/tailored-agentic-units/stepflow/observability"
)

// Result is the outcome of a run. It is returned alongside errors too, with
// the state as the failing step left it and the partial trace.
type Result[S any] struct {
	RunID string
	State *S
	Trace *Trace
}

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	runID     string
	observers []observability.Observer
}

// WithRunObserver adds an observer for this run only, in addition to the
// graph's observer.
func WithRunObserver(observer observability.Observer) RunOption {
	return func(o *runOptions) {
		o.observers = append(o.observers, observer)
	}
}

// WithRunID overrides the generated run identifier.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

type run[S any] struct {
	graph    *Graph[S]
	id       string
	state    *S
	trace    *Trace
	observer observability.Observer
	nested   bool
	executed int
}

// Run executes the graph from its start step on a copy of initial. Defaults
// are applied and the root schema checked before the first step. Run
// returns when a step ends the run, a step fails, or ctx is done.
//
// Errors are *ExecutionError; use errors.As to reach the cause.
func (g *Graph[S]) Run(ctx context.Context, initial S, opts ...RunOption) (*Result[S], error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	observer := g.observer
	if len(ro.observers) > 0 {
		observer = observability.NewMultiObserver(append([]observability.Observer{g.observer}, ro.observers...)...)
	}

	state := initial
	r := g.newRun(ro.runID, &state, observer)

	err := r.execute(ctx, g.start, true)
	return r.result(), err
}

// Resume continues a run from its last checkpoint. The checkpoint's state is
// decoded into S, defaults are applied again to restore fields the encoding
// drops, and execution restarts at the step recorded as next.
func (g *Graph[S]) Resume(ctx context.Context, runID string, opts ...RunOption) (*Result[S], error) {
	if g.checkpointStore == nil || g.checkpointInterval <= 0 {
		return nil, fmt.Errorf("checkpointing not enabled for graph %s", g.name)
	}

	cp, err := g.checkpointStore.Load(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp.Graph != g.name {
		return nil, fmt.Errorf("checkpoint %s belongs to graph %s, not %s", runID, cp.Graph, g.name)
	}

	var state S
	if err := json.Unmarshal(cp.State, &state); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint state: %w", err)
	}
	if g.defaults != nil {
		g.defaults(&state)
	}

	opts = append(opts, WithRunID(runID))
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	observer := g.observer
	if len(ro.observers) > 0 {
		observer = observability.NewMultiObserver(append([]observability.Observer{g.observer}, ro.observers...)...)
	}

	r := g.newRun(ro.runID, &state, observer)
	for _, s := range cp.Steps {
		r.trace.Steps = append(r.trace.Steps, StepName(s))
	}
	r.executed = len(cp.Steps)

	r.emit(ctx, EventCheckpointResume, observability.LevelInfo, map[string]any{
		"step":       cp.Next,
		"checkpoint": cp.Timestamp,
		"completed":  len(cp.Steps),
	})

	err = r.execute(ctx, StepName(cp.Next), false)
	return r.result(), err
}

func (g *Graph[S]) newRun(id string, state *S, observer observability.Observer) *run[S] {
	if id == "" {
		id = newRunID()
	}
	return &run[S]{
		graph:    g,
		id:       id,
		state:    state,
		trace:    newTrace(id, g.name),
		observer: observer,
	}
}

func newRunID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

func (r *run[S]) result() *Result[S] {
	return &Result[S]{
		RunID: r.id,
		State: r.state,
		Trace: r.trace,
	}
}

func (r *run[S]) execute(ctx context.Context, from StepName, prepare bool) error {
	start := time.Now()

	r.emit(ctx, EventRunStart, observability.LevelInfo, map[string]any{
		"start": from,
	})

	var err error
	if prepare {
		err = r.prepare()
	}
	if err == nil {
		err = r.loop(ctx, from)
	}

	r.finish(ctx, err, time.Since(start))
	return err
}

func (r *run[S]) prepare() error {
	g := r.graph

	if err := g.Validate(); err != nil {
		return r.fail("", err)
	}

	if g.defaults != nil {
		g.defaults(r.state)
	}

	if g.schema != nil {
		if err := g.schema.Validate(r.state); err != nil {
			return r.fail("", &StateValidationError{Err: err})
		}
	}

	return nil
}

func (r *run[S]) loop(ctx context.Context, current StepName) error {
	g := r.graph

	for {
		if err := ctx.Err(); err != nil {
			return r.fail(current, &RunCancelledError{Step: current, Err: err})
		}

		if g.maxSteps > 0 && r.executed >= g.maxSteps {
			return r.fail(current, fmt.Errorf("%w (%d)", ErrMaxSteps, g.maxSteps))
		}

		st, exists := g.steps[current]
		if !exists {
			return r.fail(current, &UnknownStepError{Step: current})
		}

		if st.schema != nil {
			if err := st.schema.Validate(r.state); err != nil {
				invalid := &StateValidationError{Step: current, Err: err}
				r.emit(ctx, EventStepError, observability.LevelError, map[string]any{
					"step":   current,
					"error":  invalid.Error(),
					"fields": invalid.Fields(),
				})
				return r.fail(current, invalid)
			}
		}

		r.emit(ctx, EventStepStart, observability.LevelVerbose, map[string]any{
			"step":      current,
			"iteration": r.executed + 1,
			"state":     r.snapshot(),
		})

		outcome, err := r.invoke(ctx, st)
		if err != nil {
			r.emit(ctx, EventStepError, observability.LevelError, map[string]any{
				"step":  current,
				"error": err.Error(),
			})

			if ctxErr := ctx.Err(); ctxErr != nil {
				return r.fail(current, &RunCancelledError{Step: current, Err: ctxErr})
			}
			return r.fail(current, &StepExecutionError{Step: current, Err: err})
		}

		r.trace.append(current)
		r.executed++

		next, done, err := r.resolve(st, outcome)

		r.emit(ctx, EventStepSuccess, observability.LevelVerbose, map[string]any{
			"step":    current,
			"outcome": outcome,
			"next":    next,
			"state":   r.snapshot(),
		})

		// A handler that succeeded on a cancelled context still ends the run.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return r.fail(current, &RunCancelledError{Step: current, Err: ctxErr})
		}

		if err != nil {
			return r.fail(current, err)
		}

		if done {
			return nil
		}

		if err := r.checkpoint(ctx, next); err != nil {
			return r.fail(current, err)
		}

		current = next
	}
}

// invoke runs the handler with the run scope in its context and turns a
// panic into an error.
func (r *run[S]) invoke(ctx context.Context, st *step[S]) (outcome StepName, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("step panicked: %v", rec)
		}
	}()

	sc := &scope{
		runID:    r.id,
		graph:    r.graph.name,
		step:     st.name,
		trace:    r.trace,
		observer: r.observer,
	}

	return st.handler(withScope(ctx, sc), r.state)
}

func (r *run[S]) resolve(st *step[S], outcome StepName) (next StepName, done bool, err error) {
	switch outcome {
	case End:
		return "", true, nil
	case Self:
		return st.name, false, nil
	case "":
		next, done = r.graph.successor(st)
		return next, done, nil
	}

	if _, exists := r.graph.steps[outcome]; !exists {
		return "", false, &UnknownStepError{Step: outcome, From: st.name}
	}
	return outcome, false, nil
}

func (r *run[S]) checkpoint(ctx context.Context, next StepName) error {
	g := r.graph
	if r.nested || g.checkpointStore == nil || g.checkpointInterval <= 0 {
		return nil
	}
	if r.executed%g.checkpointInterval != 0 {
		return nil
	}

	data, err := json.Marshal(r.state)
	if err != nil {
		return fmt.Errorf("checkpoint encode failed: %w", err)
	}

	cp := checkpoint.Checkpoint{
		RunID:     r.id,
		Graph:     g.name,
		Next:      string(next),
		State:     data,
		Steps:     r.trace.Strings(),
		Timestamp: time.Now(),
	}
	if err := g.checkpointStore.Save(ctx, cp); err != nil {
		return fmt.Errorf("checkpoint save failed: %w", err)
	}

	r.emit(ctx, EventCheckpointSave, observability.LevelInfo, map[string]any{
		"next":      next,
		"completed": r.executed,
	})
	return nil
}

func (r *run[S]) finish(ctx context.Context, err error, elapsed time.Duration) {
	g := r.graph

	data := map[string]any{
		"steps":    r.trace.Len(),
		"duration": elapsed,
	}

	level := observability.LevelInfo
	switch {
	case err == nil:
		data["status"] = StatusCompleted
		if !r.nested && g.checkpointStore != nil && g.checkpointInterval > 0 && !g.preserveCheckpoints {
			if delErr := g.checkpointStore.Delete(ctx, r.id); delErr != nil {
				data["checkpoint_error"] = delErr.Error()
			}
		}
	case isCancelled(err):
		data["status"] = StatusCancelled
		data["error"] = err.Error()
		level = observability.LevelWarning
	default:
		data["status"] = StatusFailed
		data["error"] = err.Error()
		level = observability.LevelError
	}

	r.emit(ctx, EventRunEnd, level, data)
}

func (r *run[S]) fail(step StepName, err error) error {
	return &ExecutionError{
		RunID: r.id,
		Graph: r.graph.name,
		Step:  step,
		Trace: r.trace,
		Err:   err,
	}
}

// emit notifies the run's observer. The run context may already be done
// here, so events are delivered on a context that ignores cancellation.
func (r *run[S]) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	data["run_id"] = r.id
	if r.trace.ParentRunID != "" {
		data["parent_run_id"] = r.trace.ParentRunID
		data["parent_step"] = r.trace.ParentStep
	}

	r.observer.OnEvent(context.WithoutCancel(ctx), observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    r.graph.name,
		Data:      data,
	})
}

// snapshot returns a JSON copy of the state for observers, or nil when
// nobody is listening or the state cannot be encoded.
func (r *run[S]) snapshot() json.RawMessage {
	if _, noop := r.observer.(observability.NoOpObserver); noop {
		return nil
	}
	data, err := json.Marshal(r.state)
	if err != nil {
		return nil
	}
	return data
}

func isCancelled(err error) bool {
	var cancelled *RunCancelledError
	return errors.As(err, &cancelled)
}
