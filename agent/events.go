package agent

import (
	"errors"

	"github.com/tailored-agentic-units/stepflow/observability"
)

// ErrMaxIterations is returned by Run when the iteration budget runs out
// before the model produces an answer.
var ErrMaxIterations = errors.New("max iterations reached")

const (
	EventRunStart       observability.EventType = "agent.run.start"
	EventIterationStart observability.EventType = "agent.iteration.start"
	EventToolCall       observability.EventType = "agent.tool.call"
	EventToolComplete   observability.EventType = "agent.tool.complete"
	EventResponse       observability.EventType = "agent.response"
	EventError          observability.EventType = "agent.error"
)
