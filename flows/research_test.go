package flows_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/stepflow/flows"
	"github.com/tailored-agentic-units/stepflow/llm/llmtest"
	"github.com/tailored-agentic-units/stepflow/retrieval"
	"github.com/tailored-agentic-units/stepflow/workflow"
)

// queryLog records the queries sent to an index.
type queryLog struct {
	*retrieval.Index
	mu      sync.Mutex
	queries []string
}

func (q *queryLog) Search(ctx context.Context, query string, k int, filter retrieval.Filter) ([]retrieval.Hit, error) {
	q.mu.Lock()
	q.queries = append(q.queries, query)
	q.mu.Unlock()
	return q.Index.Search(ctx, query, k, filter)
}

func newsIndex(t *testing.T) *queryLog {
	t.Helper()
	idx := retrieval.NewIndex(retrieval.HashEmbedder{})
	require.NoError(t, idx.Add(context.Background(),
		retrieval.Document{ID: "france", Content: "Paris is the capital of France"},
		retrieval.Document{ID: "italy", Content: "Rome is the capital of Italy"},
		retrieval.Document{ID: "spain", Content: "Madrid is the capital of Spain"},
		retrieval.Document{ID: "winter", Content: "Philadelphia prepares for a pricey winter season"},
	))
	return &queryLog{Index: idx}
}

func answer(text string) string {
	return `{"thought": "from the documents", "final_answer": "` + text + `", "follow_up_needed": false}`
}

func TestResearch_RefinesRejectedAnswer(t *testing.T) {
	model := llmtest.New(
		answer("Maybe Lyon."),
		`{"score": 40, "feedback": "wrong city"}`,
		`{"refined_query": "capital city of France"}`,
		answer("Paris."),
		`{"score": 97, "feedback": "correct"}`,
	)
	index := newsIndex(t)
	g, err := flows.Research(model, flows.ResearchConfig{Searcher: index})
	require.NoError(t, err)

	res, err := g.Run(context.Background(), flows.ResearchState{Question: "Capital of France?"})
	require.NoError(t, err)

	assert.Equal(t, []workflow.StepName{flows.StepSearch, flows.StepSearch}, res.Trace.Steps)
	assert.Equal(t, []string{"Capital of France?", "capital city of France"}, index.queries)
	assert.Equal(t, 2, res.State.Iteration)
	assert.Equal(t, "Paris.", res.State.Answer)
	assert.Equal(t, 97, res.State.Score)
	assert.False(t, res.State.Exhausted)
	assert.Len(t, res.State.Documents, 3)
	assert.Equal(t, []flows.ResearchAttempt{
		{Query: "Capital of France?", Answer: "Maybe Lyon.", Score: 40, Feedback: "wrong city"},
	}, res.State.Attempts)
	assert.Zero(t, model.Remaining())

	refine := model.Calls()[2]
	assert.Equal(t, "Feedback: wrong city", refine[1].Content)
	assert.Equal(t, "Original Answer: Maybe Lyon.", refine[2].Content)
}

func TestResearch_SummarizesAtLimit(t *testing.T) {
	long := strings.Repeat("x", 150)
	model := llmtest.New(
		answer("First guess."), `{"score": 50, "feedback": "`+long+`"}`, `{"refined_query": "second query"}`,
		answer("Second guess."), `{"score": 60, "feedback": "closer"}`, `{"refined_query": "third query"}`,
		answer("Third guess."), `{"score": 70, "feedback": "still vague"}`,
		`{"summary": "Three answers were rejected; the iteration limit was reached."}`,
	)
	index := newsIndex(t)
	g, err := flows.Research(model, flows.ResearchConfig{Searcher: index})
	require.NoError(t, err)

	res, err := g.Run(context.Background(), flows.ResearchState{Question: "What is the main topic?"})
	require.NoError(t, err)

	assert.Equal(t, []workflow.StepName{
		flows.StepSearch, flows.StepSearch, flows.StepSearch, flows.StepSummarize,
	}, res.Trace.Steps)
	assert.Equal(t, []string{"What is the main topic?", "second query", "third query"}, index.queries)
	assert.True(t, res.State.Exhausted)
	assert.Equal(t, "Three answers were rejected; the iteration limit was reached.", res.State.Answer)
	assert.Zero(t, res.State.Score)
	assert.Equal(t, "Iteration limit reached.", res.State.Feedback)
	assert.Len(t, res.State.Attempts, 3)
	assert.Zero(t, model.Remaining(), "no refinement after the last pass")

	calls := model.Calls()
	assert.Equal(t, "Feedback: "+strings.Repeat("x", 100)+"...", calls[2][1].Content)

	summary := calls[len(calls)-1]
	assert.Contains(t, summary[1].Content, "Third guess.")
}

func TestResearch_Config(t *testing.T) {
	t.Run("custom threshold", func(t *testing.T) {
		model := llmtest.New(answer("Madrid."), `{"score": 60, "feedback": "fine"}`)
		g, err := flows.Research(model, flows.ResearchConfig{Searcher: newsIndex(t), Threshold: 50, Results: 1})
		require.NoError(t, err)

		res, err := g.Run(context.Background(), flows.ResearchState{Question: "Capital of Spain?"})
		require.NoError(t, err)
		assert.Equal(t, []workflow.StepName{flows.StepSearch}, res.Trace.Steps)
		assert.Len(t, res.State.Documents, 1)
		assert.Empty(t, res.State.Attempts)
	})

	t.Run("single iteration", func(t *testing.T) {
		model := llmtest.New(
			answer("Unsure."), `{"score": 10, "feedback": "no answer"}`,
			`{"summary": "No answer found."}`,
		)
		g, err := flows.Research(model, flows.ResearchConfig{Searcher: newsIndex(t), MaxIterations: 1})
		require.NoError(t, err)

		res, err := g.Run(context.Background(), flows.ResearchState{Question: "Capital of Spain?"})
		require.NoError(t, err)
		assert.Equal(t, []workflow.StepName{flows.StepSearch, flows.StepSummarize}, res.Trace.Steps)
		assert.Equal(t, "No answer found.", res.State.Answer)
	})

	t.Run("no searcher", func(t *testing.T) {
		_, err := flows.Research(llmtest.New(), flows.ResearchConfig{})
		assert.Error(t, err)
	})

	t.Run("no question", func(t *testing.T) {
		g, err := flows.Research(llmtest.New(), flows.ResearchConfig{Searcher: newsIndex(t)})
		require.NoError(t, err)

		_, err = g.Run(context.Background(), flows.ResearchState{})
		var invalid *workflow.StateValidationError
		require.ErrorAs(t, err, &invalid)
		assert.Equal(t, []string{"question"}, invalid.Fields())
	})
}
