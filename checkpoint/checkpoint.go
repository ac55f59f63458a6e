// Package checkpoint persists in-flight workflow runs so they can be resumed
// after a failure or restart.
//
// A Checkpoint records the run identity, the step that should execute next
// and a JSON encoding of the run state. The workflow engine saves one every
// N executed steps, deletes it when the run succeeds (unless preserved), and
// Resume picks up from Next.
//
// Stores are resolved by name so configuration can select them:
//
//	checkpoint.Register("redis", redisstore.New(client, "stepflow:checkpoint", time.Hour))
//	cfg.Checkpoint.Store = "redis"
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ErrNotFound is returned by Load when no checkpoint exists for a run.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is a resumable snapshot of a run taken between two steps.
type Checkpoint struct {
	RunID     string          `json:"run_id"`
	Graph     string          `json:"graph"`
	Next      string          `json:"next"`
	State     json.RawMessage `json:"state"`
	Steps     []string        `json:"steps"`
	Timestamp time.Time       `json:"timestamp"`
}

// Store persists checkpoints keyed by RunID. Implementations must be safe
// for concurrent runs.
type Store interface {
	// Save creates or overwrites the checkpoint for cp.RunID.
	Save(ctx context.Context, cp Checkpoint) error
	// Load returns ErrNotFound (wrapped) when the run has no checkpoint.
	Load(ctx context.Context, runID string) (Checkpoint, error)
	// Delete is a no-op for unknown runs.
	Delete(ctx context.Context, runID string) error
	// List returns the run IDs that currently have a checkpoint.
	List(ctx context.Context) ([]string, error)
}

type memoryStore struct {
	checkpoints map[string]Checkpoint
	mu          sync.RWMutex
}

// NewMemoryStore returns a Store that lives as long as the process.
func NewMemoryStore() Store {
	return &memoryStore{
		checkpoints: make(map[string]Checkpoint),
	}
}

func (m *memoryStore) Save(_ context.Context, cp Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("checkpoint run id cannot be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp.State = slices.Clone(cp.State)
	cp.Steps = slices.Clone(cp.Steps)
	m.checkpoints[cp.RunID] = cp
	return nil
}

func (m *memoryStore) Load(_ context.Context, runID string) (Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cp, exists := m.checkpoints[runID]
	if !exists {
		return Checkpoint{}, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	cp.State = slices.Clone(cp.State)
	cp.Steps = slices.Clone(cp.Steps)
	return cp, nil
}

func (m *memoryStore) Delete(_ context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.checkpoints, runID)
	return nil
}

func (m *memoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.checkpoints))
	for id := range m.checkpoints {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

var (
	stores = map[string]Store{
		"memory": NewMemoryStore(),
	}
	mutex sync.RWMutex
)

// Get returns a registered store. "memory" is always registered.
func Get(name string) (Store, error) {
	mutex.RLock()
	defer mutex.RUnlock()

	store, exists := stores[name]
	if !exists {
		return nil, fmt.Errorf("unknown checkpoint store: %s", name)
	}
	return store, nil
}

// Register adds or replaces a named store. Call it before building graphs
// whose configuration refers to the name.
func Register(name string, store Store) {
	mutex.Lock()
	defer mutex.Unlock()

	stores[name] = store
}
