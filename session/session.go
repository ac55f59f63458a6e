// Package session keeps conversation history for the interactive flows.
package session

import (
	"github.com/tailored-agentic-units/stepflow/core/protocol"
)

// Session holds an ordered sequence of conversation messages. Implementations
// must be safe for concurrent use.
type Session interface {
	// ID returns the unique session identifier.
	ID() string
	// AddMessage appends a message to the conversation history.
	AddMessage(msg protocol.Message)
	// Messages returns a copy of the conversation history, oldest first.
	Messages() []protocol.Message
	// Last returns the most recent message.
	Last() (protocol.Message, bool)
	// Clear resets the conversation history.
	Clear()
}

// ReadOnly wraps s so that AddMessage and Clear do nothing. Steps that only
// consult the history receive this view.
func ReadOnly(s Session) Session {
	if ro, ok := s.(readOnly); ok {
		return ro
	}
	return readOnly{s}
}

type readOnly struct {
	Session
}

func (readOnly) AddMessage(protocol.Message) {}

func (readOnly) Clear() {}
