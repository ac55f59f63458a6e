package redisstore_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/stepflow/checkpoint"
	"github.com/tailored-agentic-units/stepflow/checkpoint/redisstore"
	"github.com/tailored-agentic-units/stepflow/config"
)

// These tests need a live server: STEPFLOW_REDIS_ADDR=localhost:6379 go test ./...
func dial(t *testing.T) *redisstore.Store {
	t.Helper()

	addr := os.Getenv(config.EnvRedisAddress)
	if addr == "" {
		t.Skipf("%s not set", config.EnvRedisAddress)
	}

	cfg := config.DefaultRedisConfig()
	cfg.Address = addr
	cfg.Prefix = "stepflow:test:" + uuid.NewString()
	cfg.TTL = time.Minute

	store, client, err := redisstore.Dial(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return store
}

func TestDial_RequiresAddress(t *testing.T) {
	_, _, err := redisstore.Dial(context.Background(), config.RedisConfig{})
	assert.Error(t, err)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := dial(t)

	cp := checkpoint.Checkpoint{
		RunID:     "run-1",
		Graph:     "delegation",
		Next:      "critique",
		State:     json.RawMessage(`{"answer":"42"}`),
		Steps:     []string{"simpleAgent"},
		Timestamp: time.Now().UTC().Truncate(time.Millisecond),
	}
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, cp.Next, loaded.Next)
	assert.Equal(t, cp.Steps, loaded.Steps)
	assert.JSONEq(t, string(cp.State), string(loaded.State))
	assert.True(t, cp.Timestamp.Equal(loaded.Timestamp))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, ids)

	require.NoError(t, store.Delete(ctx, "run-1"))
	_, err = store.Load(ctx, "run-1")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}
