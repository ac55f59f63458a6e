// Package workflow runs step graphs over a typed, shared state.
//
// A Graph is a set of named steps plus a start step. A run begins at the
// start step and executes one step at a time. Each step handler receives the
// live state, may mutate it, and returns a directive naming what runs next:
//
//   - another step name: jump to that step
//   - Self: run the same step again
//   - End: finish the run successfully
//   - "" (no directive): follow the step's default successor, which is the
//     step registered right after it unless SetNext says otherwise; the last
//     registered step ends the run
//
// # Building a graph
//
//	type Counter struct {
//	    Counter int `json:"counter"`
//	}
//
//	g := workflow.New[Counter]("count")
//	g.AddStep("A", func(ctx context.Context, s *Counter) (workflow.StepName, error) {
//	    s.Counter++
//	    return "B", nil
//	})
//	g.AddStep("B", func(ctx context.Context, s *Counter) (workflow.StepName, error) {
//	    s.Counter++
//	    return workflow.End, nil
//	})
//	g.SetStart("A")
//
//	res, err := g.Run(ctx, Counter{})
//	// res.State.Counter == 2, res.Trace.Steps == [A B]
//
// # Strict steps
//
// AddStrictStep attaches a Schema that must hold before the handler runs.
// Required checks that named struct fields are present (non-zero):
//
//	g.AddStrictStep("writer", workflow.Required[Post]("Plan"), writeDraft)
//
// # Nesting
//
// A graph can be used as one step of another graph. AsStep shares the same
// state type; Nest projects the outer state onto an inner state type. The
// inner run mutates the outer state in place (live reference) and its steps
// are recorded in a child Trace linked to the outer run.
//
//	outer.AddStep("delegate", inner.AsStep(workflow.End))
//
// # Errors
//
// Builder methods fail fast with *DuplicateStepError or *UnknownStepError.
// Run returns an *ExecutionError carrying the partial trace; errors.As
// reaches the cause: *StateValidationError, *StepExecutionError,
// *UnknownStepError, *RunCancelledError, ErrNoStartStep or ErrMaxSteps.
//
// # Concurrency
//
// Steps of one run execute strictly in sequence. A graph is read-only once
// built and may serve any number of concurrent runs, each owning its own
// state. Self loops are not bounded unless the graph sets MaxSteps.
package workflow
