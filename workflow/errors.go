package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStartStep is returned when a graph runs without a start step.
	ErrNoStartStep = errors.New("no start step set")

	// ErrMaxSteps is returned when a run exceeds the graph's MaxSteps bound.
	ErrMaxSteps = errors.New("maximum steps exceeded")

	// ErrInvalidStepName is returned when registering an empty or reserved
	// step name.
	ErrInvalidStepName = errors.New("invalid step name")
)

// DuplicateStepError is returned when a step name is registered twice.
type DuplicateStepError struct {
	Step StepName
}

func (e *DuplicateStepError) Error() string {
	return fmt.Sprintf("step %q already exists", e.Step)
}

// UnknownStepError is returned when a start step, declared successor or
// returned directive names a step that is not registered. From is the step
// that referenced it, empty for SetStart.
type UnknownStepError struct {
	Step StepName
	From StepName
}

func (e *UnknownStepError) Error() string {
	if e.From != "" {
		return fmt.Sprintf("step %q referenced by %q does not exist", e.Step, e.From)
	}
	return fmt.Sprintf("step %q does not exist", e.Step)
}

// StateValidationError is returned when state fails a schema. Step is empty
// when the graph's root schema rejected the initial state.
type StateValidationError struct {
	Step StepName
	Err  error
}

func (e *StateValidationError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("initial state is invalid: %v", e.Err)
	}
	return fmt.Sprintf("state is invalid for step %q: %v", e.Step, e.Err)
}

func (e *StateValidationError) Unwrap() error {
	return e.Err
}

// Fields returns the missing field names when the schema was built with
// Required.
func (e *StateValidationError) Fields() []string {
	var missing *MissingFieldsError
	if errors.As(e.Err, &missing) {
		return missing.Fields
	}
	return nil
}

// StepExecutionError wraps an error returned (or a panic raised) by a step
// handler.
type StepExecutionError struct {
	Step StepName
	Err  error
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %q failed: %v", e.Step, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}

// RunCancelledError is returned when the run context ends. Step is the step
// that was running or about to run. Err is the context error, so
// errors.Is(err, context.Canceled) holds.
type RunCancelledError struct {
	Step StepName
	Err  error
}

func (e *RunCancelledError) Error() string {
	return fmt.Sprintf("run cancelled at step %q: %v", e.Step, e.Err)
}

func (e *RunCancelledError) Unwrap() error {
	return e.Err
}

// ExecutionError is the error returned by Run. It carries the run identity
// and the trace of steps that completed before the failure.
type ExecutionError struct {
	RunID string
	Graph string
	Step  StepName
	Trace *Trace
	Err   error
}

func (e *ExecutionError) Error() string {
	if e.Step == "" {
		return fmt.Sprintf("workflow %s run %s failed: %v", e.Graph, e.RunID, e.Err)
	}
	return fmt.Sprintf("workflow %s run %s failed at step %s: %v", e.Graph, e.RunID, e.Step, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
