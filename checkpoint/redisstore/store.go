// Package redisstore implements checkpoint.Store on top of Redis.
//
// Each checkpoint is stored as JSON under "<prefix>:<runID>", and the set
// "<prefix>:runs" indexes the run IDs so List does not need SCAN.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tailored-agentic-units/stepflow/checkpoint"
	"github.com/tailored-agentic-units/stepflow/config"
)

const defaultPrefix = "stepflow:checkpoint"

// Store is a Redis backed checkpoint.Store.
type Store struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

var _ checkpoint.Store = (*Store)(nil)

// New wraps an existing client. A ttl of 0 keeps checkpoints until deleted.
func New(client redis.Cmdable, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Dial connects to the configured Redis server and verifies the connection
// with PING.
func Dial(ctx context.Context, cfg config.RedisConfig) (*Store, *redis.Client, error) {
	if cfg.Address == "" {
		return nil, nil, errors.New("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return New(client, cfg.Prefix, cfg.TTL), client, nil
}

func (s *Store) key(runID string) string {
	return s.prefix + ":" + runID
}

func (s *Store) indexKey() string {
	return s.prefix + ":runs"
}

func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	if cp.RunID == "" {
		return fmt.Errorf("checkpoint run id cannot be empty")
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint %s: %w", cp.RunID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(cp.RunID), data, s.ttl)
		pipe.SAdd(ctx, s.indexKey(), cp.RunID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.RunID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, runID string) (checkpoint.Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkpoint.Checkpoint{}, fmt.Errorf("%w: %s", checkpoint.ErrNotFound, runID)
	}
	if err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("failed to load checkpoint %s: %w", runID, err)
	}

	var cp checkpoint.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return checkpoint.Checkpoint{}, fmt.Errorf("failed to decode checkpoint %s: %w", runID, err)
	}
	return cp, nil
}

func (s *Store) Delete(ctx context.Context, runID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(runID))
		pipe.SRem(ctx, s.indexKey(), runID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint %s: %w", runID, err)
	}
	return nil
}

// List returns indexed run IDs whose checkpoint key still exists. Entries
// whose key expired through the TTL are pruned from the index.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	live := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list checkpoints: %w", err)
		}
		if n == 0 {
			s.client.SRem(ctx, s.indexKey(), id)
			continue
		}
		live = append(live, id)
	}

	slices.Sort(live)
	return live, nil
}
