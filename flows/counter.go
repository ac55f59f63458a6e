package flows

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/tailored-agentic-units/stepflow/workflow"
)

// CounterState is shared by the router and both nested graphs.
type CounterState struct {
	// Threshold in [0, 1]; draws above it route to the adding graph.
	Threshold float64 `json:"threshold"`
	Counter   int     `json:"counter"`
}

// Counter step names.
const (
	StepStart            workflow.StepName = "start"
	StepDelegateAdd      workflow.StepName = "delegateAdd"
	StepDelegateSubtract workflow.StepName = "delegateSubtract"
	StepLoop             workflow.StepName = "run"
)

// Counter builds the router graph. random returns values in [0, 1); nil
// uses math/rand/v2. Each nested graph changes the counter by one per step
// and repeats itself while a draw exceeds 0.5.
func Counter(random func() float64, opts ...workflow.Option) (*workflow.Graph[CounterState], error) {
	if random == nil {
		random = rand.Float64
	}

	add, err := counterLoop("counter.add", +1, random)
	if err != nil {
		return nil, err
	}
	subtract, err := counterLoop("counter.subtract", -1, random)
	if err != nil {
		return nil, err
	}

	g := workflow.New[CounterState]("counter", opts...)
	if err := g.SetSchema(workflow.SchemaFunc[CounterState](validateThreshold)); err != nil {
		return nil, err
	}

	steps := []struct {
		name    workflow.StepName
		handler workflow.Handler[CounterState]
	}{
		{StepStart, func(_ context.Context, s *CounterState) (workflow.StepName, error) {
			if random() > s.Threshold {
				return StepDelegateAdd, nil
			}
			return StepDelegateSubtract, nil
		}},
		{StepDelegateAdd, add.AsStep(workflow.End)},
		{StepDelegateSubtract, subtract.AsStep(workflow.End)},
	}
	for _, st := range steps {
		if err := g.AddStep(st.name, st.handler); err != nil {
			return nil, err
		}
	}

	if err := g.SetStart(StepStart); err != nil {
		return nil, err
	}
	return g, nil
}

func counterLoop(name string, delta int, random func() float64) (*workflow.Graph[CounterState], error) {
	g := workflow.New[CounterState](name)
	err := g.AddStep(StepLoop, func(_ context.Context, s *CounterState) (workflow.StepName, error) {
		s.Counter += delta
		if random() > 0.5 {
			return workflow.Self, nil
		}
		return workflow.End, nil
	})
	if err != nil {
		return nil, err
	}
	if err := g.SetStart(StepLoop); err != nil {
		return nil, err
	}
	return g, nil
}

func validateThreshold(s *CounterState) error {
	if s.Threshold < 0 || s.Threshold > 1 {
		return fmt.Errorf("threshold %v is outside [0, 1]", s.Threshold)
	}
	return nil
}
