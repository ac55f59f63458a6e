package session

import (
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/stepflow/core/protocol"
)

type memorySession struct {
	id       string
	window   int
	messages []protocol.Message
	mu       sync.RWMutex
}

// NewMemorySession creates an unbounded Session backed by an in-memory
// slice. The session is assigned a UUIDv7 identifier.
func NewMemorySession() Session {
	return newMemorySession()
}

func newMemorySession() *memorySession {
	return &memorySession{
		id: uuid.Must(uuid.NewV7()).String(),
	}
}

func (s *memorySession) ID() string {
	return s.id
}

func (s *memorySession) AddMessage(msg protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	if s.window > 0 && len(s.messages) > s.window {
		s.messages = slices.Clone(s.messages[len(s.messages)-s.window:])
	}
}

func (s *memorySession) Messages() []protocol.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.messages)
}

func (s *memorySession) Last() (protocol.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.messages) == 0 {
		return protocol.Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

func (s *memorySession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
