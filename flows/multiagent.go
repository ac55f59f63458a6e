package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/tailored-agentic-units/stepflow/agent"
	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/llm"
	"github.com/tailored-agentic-units/stepflow/observability"
	"github.com/tailored-agentic-units/stepflow/session"
	"github.com/tailored-agentic-units/stepflow/workflow"
)

// MultiAgentState carries one question past every member of a team.
//
// Conversation is the shared message list: each member answers it as it
// stands and its answer is appended before the next member runs. When
// Conversation is nil it is rebuilt from Question and Answers, which is how
// JSON callers and resumed runs use the flow. A caller's conversation sets
// Question to its last user turn, so only that turn survives a resume.
type MultiAgentState struct {
	Conversation session.Session `json:"-"`
	Question     string          `json:"question,omitempty"`
	Answers      []MemberAnswer  `json:"answers,omitempty"`
	FinalAnswer  string          `json:"final_answer,omitempty"`
}

// MemberAnswer is what one team member contributed.
type MemberAnswer struct {
	Member  string `json:"member"`
	Content string `json:"content"`
}

// TeamMember is one agent of the multi-agent flow. Its name is also its
// step name.
type TeamMember struct {
	Name         string
	Instructions string
	Tools        agent.ToolExecutor
	// MaxIterations overrides the shared agent config when non-zero.
	MaxIterations int
}

// MultiAgentConfig wires the collaborators of the multi-agent flow.
type MultiAgentConfig struct {
	// Members run in order. Empty uses DefaultTeam without tools.
	Members  []TeamMember
	Agent    agent.Config
	Observer observability.Observer
}

// Default team member names.
const (
	MemberResearcher        = "researcher"
	MemberWeatherForecaster = "weatherForecaster"
	MemberSolver            = "solver"
)

// DefaultTeam returns a researcher with research tools, a weather forecaster
// limited to three model turns and a solver that merges their answers.
func DefaultTeam(research, weather agent.ToolExecutor) []TeamMember {
	return []TeamMember{
		{
			Name:         MemberResearcher,
			Instructions: "You are a researcher assistant. Respond only if you can provide a useful answer.",
			Tools:        research,
		},
		{
			Name:          MemberWeatherForecaster,
			Instructions:  "You are a weather assistant. Respond only if you can provide a useful answer.",
			Tools:         weather,
			MaxIterations: 3,
		},
		{
			Name:         MemberSolver,
			Instructions: "Your task is to provide the most useful final answer based on the assistants' responses which all are relevant. Ignore those where assistants do not know.",
		},
	}
}

// MultiAgent builds one step per team member, in order. No member routes
// explicitly: each reaches the next through the default successor and the
// last one ends the run with its answer as FinalAnswer.
func MultiAgent(model llm.Model, cfg MultiAgentConfig, opts ...workflow.Option) (*workflow.Graph[MultiAgentState], error) {
	members := cfg.Members
	if len(members) == 0 {
		members = DefaultTeam(nil, nil)
	}

	g := workflow.New[MultiAgentState]("multiAgent", opts...)
	g.SetDefaults(seedConversation)
	if err := g.SetSchema(workflow.SchemaFunc[MultiAgentState](hasConversation)); err != nil {
		return nil, err
	}

	for _, m := range members {
		memberCfg := cfg.Agent
		if m.Instructions != "" {
			memberCfg.SystemPrompt = m.Instructions
		}
		if m.MaxIterations != 0 {
			memberCfg.MaxIterations = m.MaxIterations
		}

		agentOpts := []agent.Option{
			agent.WithObserver(cfg.Observer),
			agent.WithOptions(flowOptions),
		}
		if m.Tools != nil {
			agentOpts = append(agentOpts, agent.WithTools(m.Tools))
		}
		a := agent.New(m.Name, model, &memberCfg, agentOpts...)

		if err := g.AddStep(workflow.StepName(m.Name), answerInTurn(a)); err != nil {
			return nil, fmt.Errorf("team member %q: %w", m.Name, err)
		}
	}

	if err := g.SetStart(workflow.StepName(members[0].Name)); err != nil {
		return nil, err
	}
	return g, nil
}

func answerInTurn(a *agent.Agent) workflow.Handler[MultiAgentState] {
	return func(ctx context.Context, s *MultiAgentState) (workflow.StepName, error) {
		res, err := a.Run(ctx, session.ReadOnly(s.Conversation), "")
		if err != nil {
			return "", err
		}

		s.Conversation.AddMessage(protocol.NewMessage(protocol.RoleAssistant, res.Response))
		s.Answers = append(s.Answers, MemberAnswer{Member: a.Name(), Content: res.Response})
		s.FinalAnswer = res.Response
		return "", nil
	}
}

func seedConversation(s *MultiAgentState) {
	if s.Conversation != nil {
		if s.Question == "" {
			s.Question = lastUserTurn(s.Conversation)
		}
		return
	}
	sess := session.NewMemorySession()
	if s.Question != "" {
		sess.AddMessage(protocol.NewMessage(protocol.RoleUser, s.Question))
	}
	for _, a := range s.Answers {
		sess.AddMessage(protocol.NewMessage(protocol.RoleAssistant, a.Content))
	}
	s.Conversation = sess
}

func hasConversation(s *MultiAgentState) error {
	if s.Conversation == nil || len(s.Conversation.Messages()) == 0 {
		return errors.New("conversation has no question to answer")
	}
	return nil
}

func lastUserTurn(sess session.Session) string {
	msgs := sess.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == protocol.RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
