package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/stepflow/agent"
	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/llm"
	"github.com/tailored-agentic-units/stepflow/memory"
	"github.com/tailored-agentic-units/stepflow/observability"
	"github.com/tailored-agentic-units/stepflow/session"
	"github.com/tailored-agentic-units/stepflow/workflow"
)

// DelegationState carries one question through the delegation flow.
//
// History is the conversation so far, ending with the user's question; the
// flow reads it but never writes to it. When History is nil, Question seeds
// a fresh conversation, which is how JSON callers use the flow.
type DelegationState struct {
	History  session.Session   `json:"-"`
	Question string            `json:"question,omitempty"`
	Answer   *protocol.Message `json:"answer,omitempty"`
	Score    int               `json:"score"`
	Critique string            `json:"critique,omitempty"`
}

// Delegation step names.
const (
	StepSimpleAgent  workflow.StepName = "simpleAgent"
	StepCritique     workflow.StepName = "critique"
	StepComplexAgent workflow.StepName = "complexAgent"
)

// DelegationConfig wires the collaborators of the delegation flow.
type DelegationConfig struct {
	// Threshold is the lowest critique score accepted without delegating.
	// Zero uses 80.
	Threshold int
	Agent     agent.Config
	// Tools are available to the complex agent only.
	Tools agent.ToolExecutor
	// Memory notes are added to both agents' system prompts.
	Memory   memory.Store
	Observer observability.Observer
}

const defaultThreshold = 80

var flowOptions = llm.Options{Temperature: llm.Temperature(0), MaxTokens: 1000}

const critiquePrompt = `You are an evaluation assistant. Score the accuracy, completeness and factual correctness of the last assistant response to the user's question on a scale from 0 to 100:

- 90-100: accurate, well structured, relevant facts, no major errors.
- 75-89: mostly accurate with minor errors or missing details.
- 50-74: incomplete, vague or moderately inaccurate.
- 25-49: major factual errors or missing essentials.
- 0-24: misleading, incorrect or irrelevant.

Fact-check the response before scoring.`

type critique struct {
	Score    int    `json:"score"`
	Feedback string `json:"feedback,omitempty"`
}

var critiqueSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"score":    map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		"feedback": map[string]any{"type": "string"},
	},
	"required": []string{"score"},
}

func (c *critique) validate() error {
	if c.Score < 0 || c.Score > 100 {
		return fmt.Errorf("score %d is outside 0..100", c.Score)
	}
	return nil
}

// Delegation builds the simpleAgent -> critique -> complexAgent graph.
// critique is strict: it needs both an answer and the history.
func Delegation(model llm.Model, cfg DelegationConfig, opts ...workflow.Option) (*workflow.Graph[DelegationState], error) {
	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = defaultThreshold
	}

	agentOpts := []agent.Option{
		agent.WithObserver(cfg.Observer),
		agent.WithOptions(flowOptions),
	}
	if cfg.Memory != nil {
		agentOpts = append(agentOpts, agent.WithMemory(cfg.Memory))
	}
	simple := agent.New("simple", model, &cfg.Agent, agentOpts...)

	complexOpts := agentOpts
	if cfg.Tools != nil {
		complexOpts = append(complexOpts[:len(complexOpts):len(complexOpts)], agent.WithTools(cfg.Tools))
	}
	complexAgent := agent.New("complex", model, &cfg.Agent, complexOpts...)

	g := workflow.New[DelegationState]("delegation", opts...)
	g.SetDefaults(seedHistory)
	root := workflow.All[DelegationState](
		workflow.Required[DelegationState]("History"),
		workflow.SchemaFunc[DelegationState](hasQuestion),
	)
	if err := g.SetSchema(root); err != nil {
		return nil, err
	}

	answer := func(a *agent.Agent, next workflow.StepName) workflow.Handler[DelegationState] {
		return func(ctx context.Context, s *DelegationState) (workflow.StepName, error) {
			res, err := a.Run(ctx, session.ReadOnly(s.History), "")
			if err != nil {
				return "", err
			}
			msg := protocol.NewMessage(protocol.RoleAssistant, res.Response)
			s.Answer = &msg
			return next, nil
		}
	}

	if err := g.AddStep(StepSimpleAgent, answer(simple, StepCritique)); err != nil {
		return nil, err
	}

	err := g.AddStrictStep(StepCritique, workflow.Required[DelegationState]("Answer", "History"),
		func(ctx context.Context, s *DelegationState) (workflow.StepName, error) {
			messages := []protocol.Message{protocol.NewMessage(protocol.RoleSystem, critiquePrompt)}
			if last, ok := s.History.Last(); ok {
				messages = append(messages, last)
			}
			messages = append(messages, *s.Answer)

			c, err := llm.GenerateStructured(ctx, model, messages, llm.StructuredOptions{
				Options: flowOptions,
				Schema:  critiqueSchema,
			}, (*critique).validate)
			if err != nil {
				return "", err
			}

			s.Score = c.Score
			s.Critique = c.Feedback
			if c.Score < threshold {
				return StepComplexAgent, nil
			}
			return workflow.End, nil
		})
	if err != nil {
		return nil, err
	}

	if err := g.AddStep(StepComplexAgent, answer(complexAgent, "")); err != nil {
		return nil, err
	}

	if err := g.SetStart(StepSimpleAgent); err != nil {
		return nil, err
	}
	return g, nil
}

func seedHistory(s *DelegationState) {
	if s.History != nil {
		return
	}
	sess := session.NewMemorySession()
	if s.Question != "" {
		sess.AddMessage(protocol.NewMessage(protocol.RoleUser, s.Question))
	}
	s.History = sess
}

func hasQuestion(s *DelegationState) error {
	if s.History == nil {
		return nil
	}
	if _, ok := s.History.Last(); !ok {
		return errors.New("history has no question to answer")
	}
	return nil
}
