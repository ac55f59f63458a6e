// Package server exposes registered workflows over Connect RPC.
//
// The service has no generated stubs. Requests and responses are
// google.protobuf.Struct messages, so any Connect, gRPC or gRPC-Web client
// can call it with plain JSON-shaped payloads:
//
//	Run  {"workflow": "counter", "state": {"threshold": 0.5}}
//	  -> {"state": {...}, "trace": {"run_id": "...", "steps": [...]}, "steps": [...]}
//	List {} -> {"workflows": ["content", "counter", "delegation"]}
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/stepflow/observability"
	"github.com/tailored-agentic-units/stepflow/workflow"
)

const (
	ServiceName   = "stepflow.v1.WorkflowService"
	RunProcedure  = "/" + ServiceName + "/Run"
	ListProcedure = "/" + ServiceName + "/List"
)

// Server events.
const (
	EventRequest       observability.EventType = "server.request"
	EventRequestFailed observability.EventType = "server.request.failed"
)

var (
	// ErrUnknownWorkflow is returned for a workflow name with no runner.
	ErrUnknownWorkflow = errors.New("unknown workflow")

	// ErrDuplicateWorkflow is returned when two runners share a name.
	ErrDuplicateWorkflow = errors.New("workflow already registered")
)

// Option configures a Server.
type Option func(*Server)

// WithObserver reports request events to o.
func WithObserver(o observability.Observer) Option {
	return func(s *Server) { s.observer = o }
}

// WithRequestTimeout bounds each run. Zero leaves runs bounded only by the
// request context.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// Server routes Run requests to workflow runners by name.
type Server struct {
	runners  map[string]workflow.Runner
	observer observability.Observer
	timeout  time.Duration
	mu       sync.RWMutex
}

func New(opts ...Option) *Server {
	s := &Server{
		runners:  make(map[string]workflow.Runner),
		observer: observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.observer == nil {
		s.observer = observability.NoOpObserver{}
	}
	return s
}

// Register makes r callable under r.Name().
func (s *Server) Register(r workflow.Runner) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runners[r.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWorkflow, r.Name())
	}
	s.runners[r.Name()] = r
	return nil
}

// Workflows lists registered workflow names in sorted order.
func (s *Server) Workflows() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.runners))
	for name := range s.runners {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *Server) runner(name string) (workflow.Runner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runners[name]
	return r, ok
}

// Handler returns a mux serving both procedures.
func (s *Server) Handler(opts ...connect.HandlerOption) http.Handler {
	mux := http.NewServeMux()
	mux.Handle(RunProcedure, connect.NewUnaryHandler(RunProcedure, s.Run, opts...))
	mux.Handle(ListProcedure, connect.NewUnaryHandler(ListProcedure, s.List, opts...))
	return mux
}

// Run executes the named workflow over the request state.
func (s *Server) Run(ctx context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	fields := req.Msg.GetFields()

	name := fields["workflow"].GetStringValue()
	if name == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("workflow is required"))
	}

	r, ok := s.runner(name)
	if !ok {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("%w: %s", ErrUnknownWorkflow, name))
	}

	input, err := stateInput(fields["state"])
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	out, trace, err := r.RunJSON(ctx, input)
	if err != nil {
		s.emit(ctx, EventRequestFailed, observability.LevelWarning, map[string]any{
			"workflow": name,
			"error":    err.Error(),
			"duration": time.Since(start),
		})
		return nil, runError(err, trace)
	}

	s.emit(ctx, EventRequest, observability.LevelInfo, map[string]any{
		"workflow": name,
		"run_id":   trace.RunID,
		"steps":    trace.Len(),
		"duration": time.Since(start),
	})

	resp, err := encodeResult(out, trace)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(resp), nil
}

// List returns the registered workflow names.
func (s *Server) List(_ context.Context, _ *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
	names := s.Workflows()
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = n
	}

	resp, err := structpb.NewStruct(map[string]any{"workflows": values})
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(resp), nil
}

func (s *Server) emit(ctx context.Context, t observability.EventType, level observability.Level, data map[string]any) {
	s.observer.OnEvent(context.WithoutCancel(ctx), observability.Event{
		Type:      t,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "server",
		Data:      data,
	})
}

// stateInput returns the JSON encoding of the request state. A missing or
// null state runs the workflow from its zero state.
func stateInput(v *structpb.Value) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
		return nil, nil
	}

	st := v.GetStructValue()
	if st == nil {
		return nil, errors.New("state must be an object")
	}
	return protojson.Marshal(st)
}

func encodeResult(out []byte, trace *workflow.Trace) (*structpb.Struct, error) {
	var state map[string]any
	if err := json.Unmarshal(out, &state); err != nil {
		return nil, fmt.Errorf("state is not a JSON object: %w", err)
	}

	t, err := traceMap(trace)
	if err != nil {
		return nil, err
	}

	steps := make([]any, 0)
	for _, step := range trace.Flatten() {
		steps = append(steps, string(step))
	}

	return structpb.NewStruct(map[string]any{
		"state": state,
		"trace": t,
		"steps": steps,
	})
}

func traceMap(trace *workflow.Trace) (map[string]any, error) {
	data, err := json.Marshal(trace)
	if err != nil {
		return nil, fmt.Errorf("encode trace: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("encode trace: %w", err)
	}
	return m, nil
}

// runError maps a run failure to a Connect code and attaches the partial
// trace as an error detail.
func runError(err error, trace *workflow.Trace) *connect.Error {
	code := connect.CodeInternal

	var (
		invalid   *workflow.StateValidationError
		cancelled *workflow.RunCancelledError
	)
	switch {
	case errors.As(err, &invalid):
		code = connect.CodeInvalidArgument
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.As(err, &cancelled), errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	}

	cerr := connect.NewError(code, err)
	if trace == nil {
		return cerr
	}

	t, terr := traceMap(trace)
	if terr != nil {
		return cerr
	}
	if st, serr := structpb.NewStruct(t); serr == nil {
		if detail, derr := connect.NewErrorDetail(st); derr == nil {
			cerr.AddDetail(detail)
		}
	}
	return cerr
}
