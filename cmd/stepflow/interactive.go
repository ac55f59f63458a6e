package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/flows"
	"github.com/tailored-agentic-units/stepflow/session"
	"github.com/tailored-agentic-units/stepflow/workflow"
)

// interactive reads one request per line from in and runs flow for each.
// A failed run is reported and the loop continues; only a closed input or
// a cancelled context stop it.
func (a *app) interactive(ctx context.Context, flow string, in io.Reader, out io.Writer) error {
	handle, err := a.lineHandler(ctx, flow, out)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Running %s flow. Empty line or Ctrl-D to quit.\n", flow)
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			return nil
		}

		if err := handle(line); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			fmt.Fprintf(out, "error: %v\n", err)
			printFailedTrace(out, err)
		}
	}
}

func (a *app) lineHandler(ctx context.Context, flow string, out io.Writer) (func(string) error, error) {
	if flow == flowCounter {
		g, err := flows.Counter(nil, a.graphOpts...)
		if err != nil {
			return nil, err
		}
		return func(line string) error { return runCounter(ctx, g, line, out) }, nil
	}

	model, err := a.model()
	if err != nil {
		return nil, err
	}

	switch flow {
	case flowDelegation:
		g, err := a.delegation(ctx, model)
		if err != nil {
			return nil, err
		}
		history, err := session.New(&a.cfg.Session)
		if err != nil {
			return nil, err
		}
		return func(line string) error { return runDelegation(ctx, g, history, line, out) }, nil

	case flowContent:
		g, err := a.content(model)
		if err != nil {
			return nil, err
		}
		var previous flows.ContentState
		return func(line string) error {
			state, err := runContent(ctx, g, previous, line, out)
			if err == nil {
				previous = state
			}
			return err
		}, nil

	case flowMultiAgent:
		g, err := a.multiAgent(ctx, model)
		if err != nil {
			return nil, err
		}
		conversation, err := session.New(&a.cfg.Session)
		if err != nil {
			return nil, err
		}
		return func(line string) error { return runMultiAgent(ctx, g, conversation, line, out) }, nil

	case flowResearch:
		g, err := a.research(ctx, model)
		if err != nil {
			return nil, err
		}
		return func(line string) error { return runResearch(ctx, g, line, out) }, nil

	default:
		return nil, fmt.Errorf("unknown flow %q", flow)
	}
}

// runCounter treats the line as the routing threshold.
func runCounter(ctx context.Context, g *workflow.Graph[flows.CounterState], line string, out io.Writer) error {
	threshold, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return fmt.Errorf("threshold must be a number: %w", err)
	}

	res, err := g.Run(ctx, flows.CounterState{Threshold: threshold})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "counter: %d\n", res.State.Counter)
	printTrace(out, res.Trace)
	return nil
}

// runDelegation answers line in the ongoing conversation. The question and
// the final answer are kept in history; intermediate answers are not.
func runDelegation(ctx context.Context, g *workflow.Graph[flows.DelegationState], history session.Session, line string, out io.Writer) error {
	history.AddMessage(protocol.NewMessage(protocol.RoleUser, line))

	res, err := g.Run(ctx, flows.DelegationState{History: history})
	if err != nil {
		return err
	}

	answer := res.State.Answer
	if answer == nil {
		return errors.New("flow finished without an answer")
	}
	history.AddMessage(*answer)

	fmt.Fprintf(out, "%s\n\n(score %d)\n", answer.Content, res.State.Score)
	printTrace(out, res.Trace)
	return nil
}

// runContent writes a post for line, carrying the previous topic and notes
// so follow-up requests refine the same post.
func runContent(ctx context.Context, g *workflow.Graph[flows.ContentState], previous flows.ContentState, line string, out io.Writer) (flows.ContentState, error) {
	res, err := g.Run(ctx, flows.ContentState{
		Input: line,
		Topic: previous.Topic,
		Notes: previous.Notes,
	})
	if err != nil {
		return previous, err
	}

	fmt.Fprintf(out, "%s\n", res.State.Output)
	printTrace(out, res.Trace)
	return *res.State, nil
}

// runMultiAgent asks the team line in the ongoing conversation. Every
// member's answer stays in it.
func runMultiAgent(ctx context.Context, g *workflow.Graph[flows.MultiAgentState], conversation session.Session, line string, out io.Writer) error {
	conversation.AddMessage(protocol.NewMessage(protocol.RoleUser, line))

	res, err := g.Run(ctx, flows.MultiAgentState{Conversation: conversation})
	if err != nil {
		return err
	}

	for _, a := range res.State.Answers {
		fmt.Fprintf(out, "-> %s: %s\n", a.Member, a.Content)
	}
	fmt.Fprintf(out, "\n%s\n", res.State.FinalAnswer)
	printTrace(out, res.Trace)
	return nil
}

// runResearch searches memory documents for an answer to line.
func runResearch(ctx context.Context, g *workflow.Graph[flows.ResearchState], line string, out io.Writer) error {
	res, err := g.Run(ctx, flows.ResearchState{Question: line})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s\n\n", res.State.Answer)
	if res.State.Exhausted {
		fmt.Fprintf(out, "(no accepted answer after %d searches)\n", res.State.Iteration)
	} else {
		fmt.Fprintf(out, "(score %d after %d searches)\n", res.State.Score, res.State.Iteration)
	}
	printTrace(out, res.Trace)
	return nil
}

func printTrace(out io.Writer, trace *workflow.Trace) {
	steps := trace.Flatten()
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = string(s)
	}
	fmt.Fprintf(out, "trace: %s\n", strings.Join(names, " -> "))
}

func printFailedTrace(out io.Writer, err error) {
	var execErr *workflow.ExecutionError
	if errors.As(err, &execErr) && execErr.Trace != nil {
		printTrace(out, execErr.Trace)
	}
}
