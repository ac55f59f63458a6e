package workflow

import "sync"

// Trace records the steps a run executed, in order. Steps holds only steps
// whose handler returned without error. Runs of nested graphs appear in
// Children; Position is the index in the parent's Steps where the wrapping
// step was (or would have been) recorded.
type Trace struct {
	RunID       string     `json:"run_id"`
	Graph       string     `json:"graph"`
	ParentRunID string     `json:"parent_run_id,omitempty"`
	ParentStep  StepName   `json:"parent_step,omitempty"`
	Position    int        `json:"position,omitempty"`
	Steps       []StepName `json:"steps"`
	Children    []*Trace   `json:"children,omitempty"`

	mu sync.Mutex
}

func newTrace(runID, graph string) *Trace {
	return &Trace{
		RunID: runID,
		Graph: graph,
		Steps: []StepName{},
	}
}

func (t *Trace) append(step StepName) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Steps = append(t.Steps, step)
}

func (t *Trace) attach(child *Trace) {
	t.mu.Lock()
	defer t.mu.Unlock()
	child.Position = len(t.Steps)
	t.Children = append(t.Children, child)
}

// Len returns the number of recorded steps of this run, excluding children.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Steps)
}

// Strings returns the recorded steps as plain strings.
func (t *Trace) Strings() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = string(s)
	}
	return out
}

// Flatten returns every executed step across this run and its nested runs.
// A step that wrapped a nested run is replaced by the steps of that run, so
// an outer trace [run delegate after] whose delegate step ran an inner graph
// through [plan write] flattens to [run plan write after].
func (t *Trace) Flatten() []StepName {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]StepName, 0, len(t.Steps))
	ci := 0
	for i, s := range t.Steps {
		nested := false
		for ci < len(t.Children) && t.Children[ci].Position <= i {
			out = append(out, t.Children[ci].Flatten()...)
			ci++
			nested = true
		}
		if !nested {
			out = append(out, s)
		}
	}
	for ; ci < len(t.Children); ci++ {
		out = append(out, t.Children[ci].Flatten()...)
	}
	return out
}
