package tools_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/observability"
	"github.com/tailored-agentic-units/stepflow/tools"
)

func testTool(name string) protocol.Tool {
	return protocol.Tool{
		Name:        name,
		Description: "test tool: " + name,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"input": map[string]any{"type": "string"},
			},
		},
	}
}

func echoHandler(_ context.Context, args json.RawMessage) (tools.Result, error) {
	return tools.Result{Content: string(args)}, nil
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name    string
		tool    protocol.Tool
		handler tools.Handler
		wantErr error
	}{
		{
			name:    "valid tool",
			tool:    testTool("valid"),
			handler: echoHandler,
		},
		{
			name:    "empty name",
			tool:    protocol.Tool{},
			handler: echoHandler,
			wantErr: tools.ErrEmptyName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := tools.NewRegistry(nil)
			err := r.Register(tt.tool, tt.handler)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRegistry_Register_Errors(t *testing.T) {
	r := tools.NewRegistry(nil)
	require.NoError(t, r.Register(testTool("dup"), echoHandler))

	assert.ErrorIs(t, r.Register(testTool("dup"), echoHandler), tools.ErrAlreadyExists)
	assert.Error(t, r.Register(testTool("nil"), nil))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Replace(t *testing.T) {
	r := tools.NewRegistry(nil)

	assert.ErrorIs(t, r.Replace(testTool("missing"), echoHandler), tools.ErrNotFound)
	assert.ErrorIs(t, r.Replace(protocol.Tool{}, echoHandler), tools.ErrEmptyName)

	require.NoError(t, r.Register(testTool("swap"), echoHandler))
	require.NoError(t, r.Replace(testTool("swap"), func(context.Context, json.RawMessage) (tools.Result, error) {
		return tools.Result{Content: "replaced"}, nil
	}))

	res, err := r.Execute(context.Background(), "swap", nil)
	require.NoError(t, err)
	assert.Equal(t, "replaced", res.Content)
}

func TestRegistry_GetAndList(t *testing.T) {
	r := tools.NewRegistry(nil)
	require.NoError(t, r.Register(testTool("weather"), echoHandler))
	require.NoError(t, r.Register(testTool("search"), echoHandler))

	h, ok := r.Get("search")
	assert.True(t, ok)
	assert.NotNil(t, h)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "search", list[0].Name)
	assert.Equal(t, "weather", list[1].Name)
}

func TestRegistry_Execute(t *testing.T) {
	rec := &observability.Recorder{}
	r := tools.NewRegistry(rec)
	require.NoError(t, r.Register(testTool("echo"), echoHandler))

	res, err := r.Execute(context.Background(), "echo", json.RawMessage(`{"input":"hi"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"input":"hi"}`, res.Content)
	assert.False(t, res.IsError)

	assert.Equal(t, []observability.EventType{tools.EventToolStart, tools.EventToolComplete}, rec.Types())
}

func TestRegistry_Execute_Errors(t *testing.T) {
	rec := &observability.Recorder{}
	r := tools.NewRegistry(rec)

	_, err := r.Execute(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, tools.ErrNotFound)
	assert.Empty(t, rec.Events())

	boom := errors.New("upstream down")
	require.NoError(t, r.Register(testTool("fail"), func(context.Context, json.RawMessage) (tools.Result, error) {
		return tools.Result{}, boom
	}))

	_, err = r.Execute(context.Background(), "fail", nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "tool fail")
	assert.Equal(t, []observability.EventType{tools.EventToolStart, tools.EventToolError}, rec.Types())
}

func TestJSONResult(t *testing.T) {
	res, err := tools.JSONResult(map[string]int{"n": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"n":1}`, res.Content)

	_, err = tools.JSONResult(make(chan int))
	assert.Error(t, err)
}

func TestRegistry_Concurrent(t *testing.T) {
	r := tools.NewRegistry(nil)
	require.NoError(t, r.Register(testTool("echo"), echoHandler))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := r.Execute(context.Background(), "echo", json.RawMessage(`{}`))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_ = r.List()
		}()
	}
	wg.Wait()
}

func TestDecodeArgs(t *testing.T) {
	type query struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}

	q, err := tools.DecodeArgs[query](json.RawMessage(`{"query":"go","limit":2}`))
	require.NoError(t, err)
	assert.Equal(t, query{Query: "go", Limit: 2}, q)

	q, err = tools.DecodeArgs[query](nil)
	require.NoError(t, err)
	assert.Equal(t, query{}, q)

	_, err = tools.DecodeArgs[query](json.RawMessage(`{"q":"go"}`))
	assert.ErrorIs(t, err, tools.ErrInvalidArguments)
}
