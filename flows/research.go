package flows

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/llm"
	"github.com/tailored-agentic-units/stepflow/retrieval"
	"github.com/tailored-agentic-units/stepflow/workflow"
)

// ResearchState carries a question through the search, answer and critique
// loop. Query is what the next search uses; it starts as Question and is
// rewritten after every rejected answer.
type ResearchState struct {
	Question  string `json:"question"`
	Query     string `json:"query,omitempty"`
	Iteration int    `json:"iteration"`

	Documents []retrieval.Hit `json:"documents,omitempty"`
	Thought   string          `json:"thought,omitempty"`
	Answer    string          `json:"answer,omitempty"`
	FollowUp  bool            `json:"follow_up_needed"`
	Score     int             `json:"score"`
	Feedback  string          `json:"feedback,omitempty"`

	// Attempts keeps every rejected answer for the summary.
	Attempts []ResearchAttempt `json:"attempts,omitempty"`
	// Exhausted is set when the iteration limit ended the loop.
	Exhausted bool `json:"exhausted,omitempty"`
}

// ResearchAttempt is one answer that scored below the threshold.
type ResearchAttempt struct {
	Query    string `json:"query"`
	Answer   string `json:"answer"`
	Score    int    `json:"score"`
	Feedback string `json:"feedback,omitempty"`
}

// Research step names.
const (
	StepSearch    workflow.StepName = "search"
	StepSummarize workflow.StepName = "summarize"
)

// ResearchConfig wires the collaborators of the research flow.
type ResearchConfig struct {
	// Searcher is required.
	Searcher retrieval.Searcher
	// Results is the number of documents per search. Zero uses 3.
	Results int
	// Threshold is the lowest score accepted. Zero uses 95.
	Threshold int
	// MaxIterations bounds the searches per run. Zero uses 3.
	MaxIterations int
}

const (
	defaultResearchResults    = 3
	defaultResearchThreshold  = 95
	defaultResearchIterations = 3
	maxFeedbackLength         = 100
)

const answerPrompt = `Answer the user's query from the relevant documents. Reply with a JSON object only:
{"thought": "your reasoning about the documents", "final_answer": "your answer", "follow_up_needed": true or false}`

const evaluationPrompt = `You are a STRICT evaluator. Reply with a single JSON object {"score": <0-100>, "feedback": "<at most 100 characters>"}.

- If the answer is not perfect, do not score it above 95.
- A logical answer with room for improvement scores between 60 and 90.
- An answer with factual inaccuracies scores below 60.
- Only a flawless answer scores 95 or more.`

const refinePrompt = `Rewrite the search query so the next search finds better documents. Reply with a JSON object only: {"refined_query": "the revised query"}`

const summaryPrompt = `The search reached its iteration limit without an accepted answer. Summarize the answers so far and say that the limit was reached. Reply with a JSON object only: {"summary": "your summary"}`

type researchAnswer struct {
	Thought     string `json:"thought"`
	FinalAnswer string `json:"final_answer"`
	FollowUp    bool   `json:"follow_up_needed"`
}

var researchAnswerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"thought":          map[string]any{"type": "string"},
		"final_answer":     map[string]any{"type": "string"},
		"follow_up_needed": map[string]any{"type": "boolean"},
	},
	"required": []string{"thought", "final_answer", "follow_up_needed"},
}

func (a *researchAnswer) validate() error {
	if strings.TrimSpace(a.FinalAnswer) == "" {
		return errors.New(`"final_answer" is empty`)
	}
	return nil
}

type refinement struct {
	Query string `json:"refined_query"`
}

var refinementSchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{"refined_query": map[string]any{"type": "string"}},
	"required":   []string{"refined_query"},
}

func (r *refinement) validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return errors.New(`"refined_query" is empty`)
	}
	return nil
}

type summary struct {
	Summary string `json:"summary"`
}

var summarySchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{"summary": map[string]any{"type": "string"}},
	"required":   []string{"summary"},
}

func (s *summary) validate() error {
	if strings.TrimSpace(s.Summary) == "" {
		return errors.New(`"summary" is empty`)
	}
	return nil
}

// Research builds a search step that loops on itself until an answer scores
// at least the threshold, and a summarize step reached when the iteration
// limit runs out first. Every pass embeds the current query, searches,
// answers from the hits and scores the answer; a rejected answer has its
// query rewritten from the feedback before the next pass.
func Research(model llm.Model, cfg ResearchConfig, opts ...workflow.Option) (*workflow.Graph[ResearchState], error) {
	if cfg.Searcher == nil {
		return nil, errors.New("research flow needs a searcher")
	}
	results := cfg.Results
	if results <= 0 {
		results = defaultResearchResults
	}
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = defaultResearchThreshold
	}
	limit := cfg.MaxIterations
	if limit <= 0 {
		limit = defaultResearchIterations
	}

	g := workflow.New[ResearchState]("research", opts...)
	g.SetDefaults(func(s *ResearchState) {
		if s.Query == "" {
			s.Query = s.Question
		}
	})
	if err := g.SetSchema(workflow.Required[ResearchState]("question")); err != nil {
		return nil, err
	}

	if err := g.AddStep(StepSearch, func(ctx context.Context, s *ResearchState) (workflow.StepName, error) {
		s.Iteration++

		hits, err := cfg.Searcher.Search(ctx, s.Query, results, nil)
		if err != nil {
			return "", err
		}
		s.Documents = hits

		a, err := answerFromDocuments(ctx, model, s.Query, hits)
		if err != nil {
			return "", err
		}
		s.Thought = a.Thought
		s.Answer = a.FinalAnswer
		s.FollowUp = a.FollowUp

		c, err := evaluate(ctx, model, s.Query, a.FinalAnswer)
		if err != nil {
			return "", err
		}
		s.Score = c.Score
		s.Feedback = c.Feedback
		if c.Score >= threshold {
			return workflow.End, nil
		}

		s.Attempts = append(s.Attempts, ResearchAttempt{
			Query:    s.Query,
			Answer:   a.FinalAnswer,
			Score:    c.Score,
			Feedback: c.Feedback,
		})
		if s.Iteration >= limit {
			return StepSummarize, nil
		}

		s.Query, err = refineQuery(ctx, model, c.Feedback, a.FinalAnswer)
		if err != nil {
			return "", err
		}
		return workflow.Self, nil
	}); err != nil {
		return nil, err
	}

	if err := g.AddStrictStep(StepSummarize, workflow.Required[ResearchState]("attempts"), func(ctx context.Context, s *ResearchState) (workflow.StepName, error) {
		attempts, err := json.Marshal(s.Attempts)
		if err != nil {
			return "", err
		}
		out, err := llm.GenerateStructured(ctx, model, []protocol.Message{
			protocol.NewMessage(protocol.RoleSystem, summaryPrompt),
			protocol.NewMessage(protocol.RoleUser, fmt.Sprintf("Query: %q\n\nAnswers so far:\n%s", s.Question, attempts)),
		}, llm.StructuredOptions{Options: flowOptions, Schema: summarySchema, MaxRetries: 1}, (*summary).validate)
		if err != nil {
			return "", err
		}

		s.Answer = out.Summary
		s.Thought = fmt.Sprintf("Reached the maximum iteration count (%d).", limit)
		s.FollowUp = false
		s.Score = 0
		s.Feedback = "Iteration limit reached."
		s.Exhausted = true
		return workflow.End, nil
	}); err != nil {
		return nil, err
	}

	if err := g.SetStart(StepSearch); err != nil {
		return nil, err
	}
	return g, nil
}

func answerFromDocuments(ctx context.Context, model llm.Model, query string, hits []retrieval.Hit) (*researchAnswer, error) {
	docs, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return nil, err
	}
	return llm.GenerateStructured(ctx, model, []protocol.Message{
		protocol.NewMessage(protocol.RoleSystem, answerPrompt),
		protocol.NewMessage(protocol.RoleUser, fmt.Sprintf("User Query: %q\n\nRelevant Documents:\n%s", query, docs)),
	}, llm.StructuredOptions{Options: flowOptions, Schema: researchAnswerSchema}, (*researchAnswer).validate)
}

func evaluate(ctx context.Context, model llm.Model, query, answer string) (*critique, error) {
	return llm.GenerateStructured(ctx, model, []protocol.Message{
		protocol.NewMessage(protocol.RoleSystem, evaluationPrompt),
		protocol.NewMessage(protocol.RoleUser, fmt.Sprintf("Query: %q", query)),
		protocol.NewMessage(protocol.RoleUser, fmt.Sprintf("Answer: %q", answer)),
	}, llm.StructuredOptions{Options: flowOptions, Schema: critiqueSchema}, (*critique).validate)
}

func refineQuery(ctx context.Context, model llm.Model, feedback, answer string) (string, error) {
	if len(feedback) > maxFeedbackLength {
		feedback = feedback[:maxFeedbackLength] + "..."
	}
	r, err := llm.GenerateStructured(ctx, model, []protocol.Message{
		protocol.NewMessage(protocol.RoleSystem, refinePrompt),
		protocol.NewMessage(protocol.RoleUser, "Feedback: "+feedback),
		protocol.NewMessage(protocol.RoleUser, "Original Answer: "+answer),
	}, llm.StructuredOptions{Options: flowOptions, Schema: refinementSchema, MaxRetries: 2}, (*refinement).validate)
	if err != nil {
		return "", err
	}
	return r.Query, nil
}
