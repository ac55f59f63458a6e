package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/stepflow/agent"
	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/llm"
	"github.com/tailored-agentic-units/stepflow/observability"
	"github.com/tailored-agentic-units/stepflow/session"
	"github.com/tailored-agentic-units/stepflow/workflow"
)

// ContentState is the blog post pipeline state. Topic and Notes survive
// between requests so follow-up input can refine the previous post.
type ContentState struct {
	Input  string `json:"input"`
	Output string `json:"output,omitempty"`

	Topic string   `json:"topic,omitempty"`
	Notes []string `json:"notes,omitempty"`
	Plan  string   `json:"plan,omitempty"`
	Draft string   `json:"draft,omitempty"`
}

// Content step names.
const (
	StepPreprocess workflow.StepName = "preprocess"
	StepPlanner    workflow.StepName = "planner"
	StepWriter     workflow.StepName = "writer"
	StepEditor     workflow.StepName = "editor"
)

// ContentConfig wires the collaborators of the content flow.
type ContentConfig struct {
	Agent agent.Config
	// Tools are available to the planner.
	Tools    agent.ToolExecutor
	Observer observability.Observer
}

type preprocessed struct {
	Topic string   `json:"topic,omitempty"`
	Notes []string `json:"notes,omitempty"`
	Error string   `json:"error,omitempty"`
}

var preprocessSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"topic": map[string]any{"type": "string", "description": "The blog post topic."},
		"notes": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		"error": map[string]any{
			"type":        "string",
			"description": "Use when the input does not make sense or needs clarification.",
		},
	},
}

func (p *preprocessed) validate() error {
	if p.Error == "" && strings.TrimSpace(p.Topic) == "" {
		return errors.New(`either "topic" or "error" is required`)
	}
	return nil
}

// Content builds preprocess -> planner -> writer -> editor. Only preprocess
// routes explicitly (to End when the input is unusable); every other step
// reaches the next through the default successor.
func Content(model llm.Model, cfg ContentConfig, opts ...workflow.Option) (*workflow.Graph[ContentState], error) {
	plannerOpts := []agent.Option{
		agent.WithObserver(cfg.Observer),
		agent.WithOptions(flowOptions),
	}
	if cfg.Tools != nil {
		plannerOpts = append(plannerOpts, agent.WithTools(cfg.Tools))
	}
	planner := agent.New("planner", model, &cfg.Agent, plannerOpts...)

	g := workflow.New[ContentState]("content", opts...)

	if err := g.AddStep(StepPreprocess, func(ctx context.Context, s *ContentState) (workflow.StepName, error) {
		p, err := llm.GenerateStructured(ctx, model, []protocol.Message{
			protocol.NewMessage(protocol.RoleUser, preprocessPrompt(s)),
		}, llm.StructuredOptions{Options: flowOptions, Schema: preprocessSchema}, (*preprocessed).validate)
		if err != nil {
			return "", err
		}

		if p.Error != "" {
			s.Output = p.Error
			return workflow.End, nil
		}
		s.Topic = p.Topic
		s.Notes = p.Notes
		return "", nil
	}); err != nil {
		return nil, err
	}

	if err := g.AddStrictStep(StepPlanner, workflow.Required[ContentState]("topic"),
		func(ctx context.Context, s *ContentState) (workflow.StepName, error) {
			res, err := planner.Run(ctx, session.NewMemorySession(), plannerPrompt(s))
			if err != nil {
				return "", err
			}
			s.Plan = res.Response
			return "", nil
		}); err != nil {
		return nil, err
	}

	if err := g.AddStrictStep(StepWriter, workflow.Required[ContentState]("plan"),
		generate(model, writerPrompt, func(s *ContentState, text string) { s.Draft = text })); err != nil {
		return nil, err
	}

	if err := g.AddStrictStep(StepEditor, workflow.Required[ContentState]("draft"),
		generate(model, editorPrompt, func(s *ContentState, text string) { s.Output = text })); err != nil {
		return nil, err
	}

	if err := g.SetStart(StepPreprocess); err != nil {
		return nil, err
	}
	return g, nil
}

// generate sends a single system prompt built from the state and stores the
// reply.
func generate(model llm.Model, prompt func(*ContentState) string, store func(*ContentState, string)) workflow.Handler[ContentState] {
	return func(ctx context.Context, s *ContentState) (workflow.StepName, error) {
		text, err := model.Generate(ctx, []protocol.Message{
			protocol.NewMessage(protocol.RoleSystem, prompt(s)),
		}, flowOptions)
		if err != nil {
			return "", err
		}
		if strings.TrimSpace(text) == "" {
			return "", llm.ErrEmptyResponse
		}
		store(s, text)
		return "", nil
	}
}

func notesSection(notes []string) string {
	if len(notes) == 0 {
		return ""
	}
	return "# Notes\n" + strings.Join(notes, "\n") + "\n"
}

func joinLines(lines ...string) string {
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if l != "" {
			kept = append(kept, l)
		}
	}
	return strings.Join(kept, "\n")
}

func preprocessPrompt(s *ContentState) string {
	input := s.Input
	if strings.TrimSpace(input) == "" {
		input = "empty"
	}
	previousTopic := ""
	if s.Topic != "" {
		previousTopic = "# Previous Topic\n" + s.Topic
	}
	previousNotes := ""
	if len(s.Notes) > 0 {
		previousNotes = "# Previous Notes\n" + strings.Join(s.Notes, "\n")
	}
	return joinLines(
		"Rewrite the user query so that it guides a content planner and editor to craft a blog post that matches the user's needs. Use notes only when the user complains about something.",
		previousTopic,
		previousNotes,
		"# User Query",
		input,
	)
}

func plannerPrompt(s *ContentState) string {
	return joinLines(
		fmt.Sprintf("You are a Content Planner. Write a content plan for the %q topic in Markdown.", s.Topic),
		"# Objectives",
		"1. Prioritize the latest trends, key players and noteworthy news.",
		"2. Identify the target audience, their interests and pain points.",
		"3. Outline the content: introduction, key points and a call to action.",
		"4. Include SEO keywords and relevant sources.",
		notesSection(s.Notes),
		"Cover every section above.",
	)
}

func writerPrompt(s *ContentState) string {
	return joinLines(
		"You are a Content Writer. Write a compelling blog post based on the context below.",
		"# Context",
		s.Plan,
		"# Objectives",
		"- An engaging introduction",
		"- Insightful body paragraphs (2-3 per section)",
		"- Properly named sections",
		"- A summarizing conclusion",
		"- Format: Markdown",
		notesSection(s.Notes),
		"Keep the flow natural, work in the SEO keywords and structure the post well.",
	)
}

func editorPrompt(s *ContentState) string {
	return joinLines(
		"You are an Editor. Turn the draft blog post below into its final version.",
		"# Draft",
		s.Draft,
		"# Objectives",
		"- Fix grammatical errors",
		"- Follow journalistic best practices",
		notesSection(s.Notes),
		"The final version must not contain editor's comments.",
	)
}
