package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/stepflow/checkpoint"
	"github.com/tailored-agentic-units/stepflow/config"
	"github.com/tailored-agentic-units/stepflow/flows"
	"github.com/tailored-agentic-units/stepflow/llm/llmtest"
	"github.com/tailored-agentic-units/stepflow/observability"
	"github.com/tailored-agentic-units/stepflow/retrieval"
	"github.com/tailored-agentic-units/stepflow/session"
	"github.com/tailored-agentic-units/stepflow/workflow"
)

func testApp() *app {
	cfg := config.DefaultConfig()
	return &app{
		cfg:      &cfg,
		observer: observability.NoOpObserver{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestInteractive_Counter(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("0.5\nnot-a-number\n2\n\n")

	err := testApp().interactive(context.Background(), flowCounter, in, &out)
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "counter: ")
	assert.Contains(t, text, "trace: start -> ")
	assert.Contains(t, text, "error: threshold must be a number")
	assert.Contains(t, text, "error: workflow counter")
}

func TestInteractive_UnknownFlow(t *testing.T) {
	a := testApp()
	a.cfg.Provider.APIKey = "test-key"

	err := a.interactive(context.Background(), "poetry", strings.NewReader(""), io.Discard)
	assert.ErrorContains(t, err, `unknown flow "poetry"`)
}

func TestRunDelegation_KeepsHistory(t *testing.T) {
	model := llmtest.New(
		"Paris.",
		`{"score": 95}`,
		"Rome.",
		`{"score": 90}`,
	)
	g, err := flows.Delegation(model, flows.DelegationConfig{})
	require.NoError(t, err)

	history := session.NewMemorySession()
	var out bytes.Buffer

	require.NoError(t, runDelegation(context.Background(), g, history, "Capital of France?", &out))
	require.NoError(t, runDelegation(context.Background(), g, history, "And of Italy?", &out))

	msgs := history.Messages()
	require.Len(t, msgs, 4)
	assert.Equal(t, "Paris.", msgs[1].Content)
	assert.Equal(t, "Rome.", msgs[3].Content)

	// The second question was answered with the first exchange in context.
	assert.Len(t, model.Calls()[2], 3)
	assert.Contains(t, out.String(), "trace: simpleAgent -> critique")
}

func TestRunContent_CarriesTopic(t *testing.T) {
	model := llmtest.New(
		`{"topic": "Go generics", "notes": ["short"]}`,
		"plan", "draft", "final post",
		`{"error": "What should change?"}`,
	)
	g, err := flows.Content(model, flows.ContentConfig{})
	require.NoError(t, err)

	var out bytes.Buffer
	state, err := runContent(context.Background(), g, flows.ContentState{}, "Write about Go generics", &out)
	require.NoError(t, err)
	assert.Equal(t, "Go generics", state.Topic)
	assert.Equal(t, "final post", state.Output)

	next, err := runContent(context.Background(), g, state, "hmm", &out)
	require.NoError(t, err)
	assert.Equal(t, "Go generics", next.Topic)
	assert.Equal(t, "What should change?", next.Output)
	assert.Contains(t, out.String(), "trace: preprocess -> planner -> writer -> editor")
}

func TestRunMultiAgent_KeepsConversation(t *testing.T) {
	model := llmtest.New(
		"Paris.", "Sunny.", "Paris, where it is sunny.",
		"Rome.", "Rainy.", "Rome, where it is rainy.",
	)
	g, err := flows.MultiAgent(model, flows.MultiAgentConfig{})
	require.NoError(t, err)

	conversation := session.NewMemorySession()
	var out bytes.Buffer

	require.NoError(t, runMultiAgent(context.Background(), g, conversation, "Capital of France and its weather?", &out))
	require.NoError(t, runMultiAgent(context.Background(), g, conversation, "And of Italy?", &out))

	assert.Len(t, conversation.Messages(), 8)
	assert.Len(t, model.Calls()[5], 8, "the solver sees both exchanges")

	text := out.String()
	assert.Contains(t, text, "-> weatherForecaster: Rainy.")
	assert.Contains(t, text, "Rome, where it is rainy.")
	assert.Contains(t, text, "trace: researcher -> weatherForecaster -> solver")
}

func TestRunResearch(t *testing.T) {
	index := retrieval.NewIndex(retrieval.HashEmbedder{})
	require.NoError(t, index.Add(context.Background(),
		retrieval.Document{ID: "france", Content: "Paris is the capital of France"},
	))

	model := llmtest.New(
		`{"thought": "doc", "final_answer": "Paris.", "follow_up_needed": false}`,
		`{"score": 98, "feedback": "correct"}`,
	)
	g, err := flows.Research(model, flows.ResearchConfig{Searcher: index})
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, runResearch(context.Background(), g, "Capital of France?", &out))

	text := out.String()
	assert.Contains(t, text, "Paris.")
	assert.Contains(t, text, "(score 98 after 1 searches)")
	assert.Contains(t, text, "trace: search")
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()
	require.NoError(t, store.Save(ctx, checkpoint.Checkpoint{
		RunID: "run-1",
		Graph: flowCounter,
		Next:  string(flows.StepDelegateAdd),
		State: []byte(`{"threshold":0.5,"counter":0}`),
		Steps: []string{string(flows.StepStart)},
	}))

	a := testApp()
	a.graphOpts = []workflow.Option{workflow.WithCheckpoints(store, 1, false)}

	var out bytes.Buffer
	require.NoError(t, a.resume(ctx, flowCounter, "run-1", &out))
	assert.Contains(t, out.String(), `"counter":`)
	assert.Contains(t, out.String(), "trace: start -> run")

	err := a.resume(ctx, flowCounter, "run-1", io.Discard)
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	err = a.resume(ctx, "poetry", "run-1", io.Discard)
	assert.ErrorContains(t, err, `unknown flow "poetry"`)
}
