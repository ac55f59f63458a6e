package server_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"connectrpc.com/connect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/stepflow/observability"
	"github.com/tailored-agentic-units/stepflow/server"
	"github.com/tailored-agentic-units/stepflow/workflow"
)

type tally struct {
	Limit int  `json:"limit"`
	Count int  `json:"count"`
	Fail  bool `json:"fail,omitempty"`
	Block bool `json:"block,omitempty"`
}

func tallyGraph(t *testing.T) *workflow.Graph[tally] {
	t.Helper()

	g := workflow.New[tally]("tally")
	require.NoError(t, g.SetSchema(workflow.SchemaFunc[tally](func(s *tally) error {
		if s.Limit < 0 {
			return errors.New("limit must not be negative")
		}
		return nil
	})))

	require.NoError(t, g.AddStep("check", func(ctx context.Context, s *tally) (workflow.StepName, error) {
		if s.Fail {
			return "", errors.New("boom")
		}
		if s.Block {
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "", nil
	}))
	require.NoError(t, g.AddStep("inc", func(_ context.Context, s *tally) (workflow.StepName, error) {
		if s.Count >= s.Limit {
			return workflow.End, nil
		}
		s.Count++
		return workflow.Self, nil
	}))
	require.NoError(t, g.SetStart("check"))
	return g
}

func newServer(t *testing.T, opts ...server.Option) (*server.Server, *server.Client) {
	t.Helper()

	srv := server.New(opts...)
	require.NoError(t, srv.Register(tallyGraph(t)))

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return srv, server.NewClient(ts.Client(), ts.URL)
}

func TestRun(t *testing.T) {
	rec := &observability.Recorder{}
	_, client := newServer(t, server.WithObserver(rec))

	res, err := client.Run(context.Background(), "tally", tally{Limit: 2})
	require.NoError(t, err)

	var state tally
	require.NoError(t, res.Decode(&state))
	assert.Equal(t, tally{Limit: 2, Count: 2}, state)

	assert.Equal(t, "tally", res.Trace.Graph)
	assert.NotEmpty(t, res.Trace.RunID)
	assert.Equal(t, []string{"check", "inc", "inc", "inc"}, res.Trace.Strings())
	assert.Equal(t, []workflow.StepName{"check", "inc", "inc", "inc"}, res.Steps)

	assert.Equal(t, []observability.EventType{server.EventRequest}, rec.Types())
}

func TestRun_ZeroState(t *testing.T) {
	_, client := newServer(t)

	res, err := client.Run(context.Background(), "tally", nil)
	require.NoError(t, err)

	var state tally
	require.NoError(t, res.Decode(&state))
	assert.Zero(t, state.Count)
	assert.Equal(t, []string{"check", "inc"}, res.Trace.Strings())
}

func TestRun_ErrorCodes(t *testing.T) {
	_, client := newServer(t, server.WithRequestTimeout(50*time.Millisecond))

	tests := []struct {
		name     string
		workflow string
		state    any
		code     connect.Code
		steps    []string
	}{
		{name: "unknown workflow", workflow: "missing", state: tally{}, code: connect.CodeNotFound},
		{name: "missing workflow", workflow: "", state: tally{}, code: connect.CodeInvalidArgument},
		{name: "invalid state", workflow: "tally", state: tally{Limit: -1}, code: connect.CodeInvalidArgument, steps: []string{}},
		{name: "step failure", workflow: "tally", state: tally{Fail: true}, code: connect.CodeInternal, steps: []string{}},
		{name: "timeout", workflow: "tally", state: tally{Block: true}, code: connect.CodeDeadlineExceeded, steps: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Run(context.Background(), tt.workflow, tt.state)
			require.Error(t, err)

			assert.Equal(t, tt.code, connect.CodeOf(err))

			trace, ok := server.RunTrace(err)
			if tt.steps == nil {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, "tally", trace.Graph)
			assert.Equal(t, tt.steps, trace.Strings())
		})
	}
}

func TestRun_StateNotAnObject(t *testing.T) {
	_, client := newServer(t)

	_, err := client.Run(context.Background(), "tally", []int{1})
	require.Error(t, err)

	var cerr *connect.Error
	assert.False(t, errors.As(err, &cerr))
}

func TestRegister_Duplicate(t *testing.T) {
	srv := server.New()
	require.NoError(t, srv.Register(tallyGraph(t)))
	assert.ErrorIs(t, srv.Register(tallyGraph(t)), server.ErrDuplicateWorkflow)
}

func TestWorkflows(t *testing.T) {
	srv, client := newServer(t)

	other := workflow.New[tally]("another")
	require.NoError(t, other.AddStep("only", func(context.Context, *tally) (workflow.StepName, error) {
		return "", nil
	}))
	require.NoError(t, other.SetStart("only"))
	require.NoError(t, srv.Register(other))

	names, err := client.Workflows(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"another", "tally"}, names)
}
