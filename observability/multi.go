package observability

import "context"

// MultiObserver fans one event out to several observers in order.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver drops nil entries and returns a fan-out observer.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	filtered := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		if obs == nil {
			continue
		}
		if m, ok := obs.(*MultiObserver); ok {
			filtered = append(filtered, m.observers...)
			continue
		}
		filtered = append(filtered, obs)
	}
	return &MultiObserver{observers: filtered}
}

// Len reports how many observers receive events.
func (m *MultiObserver) Len() int {
	return len(m.observers)
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}
