// Package llmtest provides a scripted llm.Model for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/tailored-agentic-units/stepflow/core/protocol"
	"github.com/tailored-agentic-units/stepflow/llm"
)

// ErrExhausted is returned once every scripted reply has been used.
var ErrExhausted = errors.New("scripted model has no replies left")

// Reply is one scripted answer. When Err is set it is returned instead of
// Text.
type Reply struct {
	Text string
	Err  error
}

// Scripted answers Generate calls with queued replies, in order, and records
// the conversations it received. It is safe for concurrent use.
type Scripted struct {
	name    string
	mu      sync.Mutex
	replies []Reply
	calls   [][]protocol.Message
}

var _ llm.Model = (*Scripted)(nil)

// New returns a Scripted model that answers with texts in order.
func New(texts ...string) *Scripted {
	s := &Scripted{name: "scripted"}
	for _, t := range texts {
		s.replies = append(s.replies, Reply{Text: t})
	}
	return s
}

// Push queues more replies.
func (s *Scripted) Push(replies ...Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, replies...)
	return s
}

func (s *Scripted) Name() string {
	return s.name
}

func (s *Scripted) Generate(ctx context.Context, messages []protocol.Message, opts llm.Options) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, append([]protocol.Message(nil), messages...))
	if len(s.replies) == 0 {
		return "", ErrExhausted
	}

	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.Text, r.Err
}

// Calls returns the conversations received so far.
func (s *Scripted) Calls() [][]protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]protocol.Message(nil), s.calls...)
}

// Remaining reports how many replies are still queued.
func (s *Scripted) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.replies)
}
