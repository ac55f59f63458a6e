package flows_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/stepflow/checkpoint"
	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/flows"
	"github.com/tailored-agentic-units/stepflow/llm/llmtest"
	"github.com/tailored-agentic-units/stepflow/retrieval"
	"github.com/tailored-agentic-units/stepflow/session"
	"github.com/tailored-agentic-units/stepflow/tools"
	"github.com/tailored-agentic-units/stepflow/workflow"
)

func question(text string) session.Session {
	sess := session.NewMemorySession()
	sess.AddMessage(protocol.NewMessage(protocol.RoleUser, text))
	return sess
}

func searchTools(t *testing.T) *tools.Registry {
	t.Helper()
	idx := retrieval.NewIndex(retrieval.HashEmbedder{})
	require.NoError(t, idx.Add(context.Background(),
		retrieval.Document{ID: "france", Content: "Paris is the capital of France"},
		retrieval.Document{ID: "italy", Content: "Rome is the capital of Italy"},
	))

	r := tools.NewRegistry(nil)
	require.NoError(t, r.Register(retrieval.SearchTool(idx, 1)))
	return r
}

func TestDelegation_AcceptsGoodAnswer(t *testing.T) {
	model := llmtest.New(
		"Paris is the capital of France.",
		`{"score": 92, "feedback": "correct"}`,
	)
	g, err := flows.Delegation(model, flows.DelegationConfig{})
	require.NoError(t, err)

	sess := question("What is the capital of France?")
	res, err := g.Run(context.Background(), flows.DelegationState{History: sess})
	require.NoError(t, err)

	assert.Equal(t, []workflow.StepName{flows.StepSimpleAgent, flows.StepCritique}, res.Trace.Steps)
	require.NotNil(t, res.State.Answer)
	assert.Equal(t, "Paris is the capital of France.", res.State.Answer.Content)
	assert.Equal(t, 92, res.State.Score)
	assert.Equal(t, "correct", res.State.Critique)
	assert.Len(t, sess.Messages(), 1, "the flow must not write to the history")

	critique := model.Calls()[1]
	assert.Equal(t, protocol.RoleSystem, critique[0].Role)
	assert.Equal(t, "What is the capital of France?", critique[1].Content)
	assert.Equal(t, "Paris is the capital of France.", critique[2].Content)
}

func TestDelegation_DelegatesLowScore(t *testing.T) {
	model := llmtest.New(
		"Maybe Lyon?",
		`{"score": 20, "feedback": "wrong city"}`,
		`{"tool_calls": [{"name": "search", "arguments": {"query": "capital of France"}}]}`,
		`{"answer": "Paris."}`,
	)
	g, err := flows.Delegation(model, flows.DelegationConfig{Tools: searchTools(t)})
	require.NoError(t, err)

	res, err := g.Run(context.Background(), flows.DelegationState{History: question("Capital of France?")})
	require.NoError(t, err)

	assert.Equal(t, []workflow.StepName{flows.StepSimpleAgent, flows.StepCritique, flows.StepComplexAgent}, res.Trace.Steps)
	assert.Equal(t, "Paris.", res.State.Answer.Content)
	assert.Equal(t, 20, res.State.Score)

	last := model.Calls()[3]
	var found bool
	for _, msg := range last {
		if msg.Role == protocol.RoleTool && strings.Contains(msg.Content, `"france"`) {
			found = true
		}
	}
	assert.True(t, found, "search results are fed back to the complex agent")
}

func TestDelegation_Threshold(t *testing.T) {
	model := llmtest.New("An answer.", `{"score": 60}`)
	g, err := flows.Delegation(model, flows.DelegationConfig{Threshold: 50})
	require.NoError(t, err)

	res, err := g.Run(context.Background(), flows.DelegationState{History: question("Q?")})
	require.NoError(t, err)
	assert.Equal(t, []workflow.StepName{flows.StepSimpleAgent, flows.StepCritique}, res.Trace.Steps)
}

func TestDelegation_RetriesOutOfRangeScore(t *testing.T) {
	model := llmtest.New("An answer.", `{"score": 150}`, `{"score": 95}`)
	g, err := flows.Delegation(model, flows.DelegationConfig{})
	require.NoError(t, err)

	res, err := g.Run(context.Background(), flows.DelegationState{History: question("Q?")})
	require.NoError(t, err)
	assert.Equal(t, 95, res.State.Score)
	assert.Zero(t, model.Remaining())
}

func TestDelegation_Errors(t *testing.T) {
	t.Run("no question", func(t *testing.T) {
		g, err := flows.Delegation(llmtest.New(), flows.DelegationConfig{})
		require.NoError(t, err)

		_, err = g.Run(context.Background(), flows.DelegationState{})
		var sve *workflow.StateValidationError
		assert.True(t, errors.As(err, &sve))
	})

	t.Run("model failure", func(t *testing.T) {
		boom := errors.New("provider unavailable")
		model := llmtest.New().Push(llmtest.Reply{Err: boom})
		g, err := flows.Delegation(model, flows.DelegationConfig{})
		require.NoError(t, err)

		res, err := g.Run(context.Background(), flows.DelegationState{History: question("Q?")})
		assert.ErrorIs(t, err, boom)

		var see *workflow.StepExecutionError
		require.True(t, errors.As(err, &see))
		assert.Equal(t, flows.StepSimpleAgent, see.Step)
		assert.Empty(t, res.Trace.Steps)
	})
}

func TestDelegation_RunJSON(t *testing.T) {
	model := llmtest.New("Go is a programming language.", `{"score": 88}`)
	g, err := flows.Delegation(model, flows.DelegationConfig{})
	require.NoError(t, err)

	out, trace, err := g.RunJSON(context.Background(), []byte(`{"question": "What is Go?"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"simpleAgent", "critique"}, trace.Strings())

	var state flows.DelegationState
	require.NoError(t, json.Unmarshal(out, &state))
	assert.Equal(t, "What is Go?", state.Question)
	assert.Equal(t, 88, state.Score)
	assert.Equal(t, "Go is a programming language.", state.Answer.Content)
}

func TestDelegation_Resume(t *testing.T) {
	ctx := context.Background()
	model := llmtest.New("Paris.")
	model.Push(llmtest.Reply{Err: errors.New("model unavailable")})

	g, err := flows.Delegation(model, flows.DelegationConfig{},
		workflow.WithCheckpoints(checkpoint.NewMemoryStore(), 1, false))
	require.NoError(t, err)

	res, err := g.Run(ctx, flows.DelegationState{Question: "Capital of France?"})
	require.ErrorContains(t, err, "model unavailable")

	model.Push(llmtest.Reply{Text: `{"score": 92}`})
	resumed, err := g.Resume(ctx, res.RunID)
	require.NoError(t, err, "history is rebuilt from the question")

	assert.Equal(t, []workflow.StepName{flows.StepSimpleAgent, flows.StepCritique}, resumed.Trace.Steps)
	assert.Equal(t, 92, resumed.State.Score)
	assert.Equal(t, "Capital of France?", model.Calls()[2][1].Content)
}
