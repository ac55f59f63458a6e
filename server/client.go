package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/tailored-agentic-units/stepflow/workflow"
)

// RunResult is the decoded reply of a Run call.
type RunResult struct {
	State json.RawMessage
	Trace *workflow.Trace
	Steps []workflow.StepName // Flattened trace.
}

// Decode unmarshals the final state into v.
func (r *RunResult) Decode(v any) error {
	return json.Unmarshal(r.State, v)
}

// Client calls a stepflow server.
type Client struct {
	run  *connect.Client[structpb.Struct, structpb.Struct]
	list *connect.Client[structpb.Struct, structpb.Struct]
}

// NewClient targets the server at baseURL, for example
// "http://localhost:8080".
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	return &Client{
		run:  connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+RunProcedure, opts...),
		list: connect.NewClient[structpb.Struct, structpb.Struct](httpClient, baseURL+ListProcedure, opts...),
	}
}

// Run executes workflow remotely. state is encoded as JSON and must encode
// to an object; nil runs from the zero state. When the run fails, the
// returned error is a *connect.Error and RunTrace recovers the partial
// trace from it.
func (c *Client) Run(ctx context.Context, workflowName string, state any) (*RunResult, error) {
	fields := map[string]any{"workflow": workflowName}
	if state != nil {
		data, err := json.Marshal(state)
		if err != nil {
			return nil, fmt.Errorf("encode state: %w", err)
		}
		var m map[string]any
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("state must encode to a JSON object: %w", err)
		}
		fields["state"] = m
	}

	msg, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp, err := c.run.CallUnary(ctx, connect.NewRequest(msg))
	if err != nil {
		return nil, err
	}
	return decodeResult(resp.Msg)
}

// Workflows lists the workflows the server can run.
func (c *Client) Workflows(ctx context.Context) ([]string, error) {
	resp, err := c.list.CallUnary(ctx, connect.NewRequest(&structpb.Struct{}))
	if err != nil {
		return nil, err
	}

	var names []string
	for _, v := range resp.Msg.GetFields()["workflows"].GetListValue().GetValues() {
		names = append(names, v.GetStringValue())
	}
	return names, nil
}

// RunTrace extracts the partial trace attached to a failed Run.
func RunTrace(err error) (*workflow.Trace, bool) {
	cerr, ok := asConnectError(err)
	if !ok {
		return nil, false
	}

	for _, detail := range cerr.Details() {
		msg, derr := detail.Value()
		if derr != nil {
			continue
		}
		st, ok := msg.(*structpb.Struct)
		if !ok {
			continue
		}
		var trace workflow.Trace
		if err := decodeStruct(st, &trace); err == nil {
			return &trace, true
		}
	}
	return nil, false
}

func decodeResult(msg *structpb.Struct) (*RunResult, error) {
	fields := msg.GetFields()

	state, err := protojson.Marshal(fields["state"].GetStructValue())
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}

	var trace workflow.Trace
	if err := decodeStruct(fields["trace"].GetStructValue(), &trace); err != nil {
		return nil, fmt.Errorf("decode trace: %w", err)
	}

	steps := make([]workflow.StepName, 0)
	for _, v := range fields["steps"].GetListValue().GetValues() {
		steps = append(steps, workflow.StepName(v.GetStringValue()))
	}

	return &RunResult{State: state, Trace: &trace, Steps: steps}, nil
}

func decodeStruct(st *structpb.Struct, v any) error {
	if st == nil {
		return errors.New("missing object")
	}
	data, err := protojson.Marshal(st)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func asConnectError(err error) (*connect.Error, bool) {
	var cerr *connect.Error
	if !errors.As(err, &cerr) {
		return nil, false
	}
	return cerr, true
}
