package flows_test

import (
	"sync"
	"testing"
)

// draws returns a random source that yields values in order and fails the
// test when it runs dry.
func draws(t *testing.T, values ...float64) func() float64 {
	t.Helper()
	var mu sync.Mutex
	return func() float64 {
		mu.Lock()
		defer mu.Unlock()
		if len(values) == 0 {
			t.Error("random source exhausted")
			return 0
		}
		v := values[0]
		values = values[1:]
		return v
	}
}
