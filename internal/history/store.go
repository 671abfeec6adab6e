// Package history persists sync run results so a later undo request can
// operate by request id alone.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tdnguyen0403/confluence-jira-task-sync/pkg/types"
)

// Store is the run-result store consumed by the sync and undo paths.
type Store interface {
	SaveRun(ctx context.Context, requestID string, results []types.CreationResult) error
	GetRun(ctx context.Context, requestID string) ([]types.CreationResult, error)
	DeleteRun(ctx context.Context, requestID string) error
}

// ErrNotFound marks a request id with no stored run results.
var ErrNotFound = errors.New("run results not found")

// RedisStore keeps run results in Redis under "undo:<request-id>" with a
// configurable expiry.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func runKey(requestID string) string { return "undo:" + requestID }

// SaveRun stores the run's creation results as a JSON blob.
func (s *RedisStore) SaveRun(ctx context.Context, requestID string, results []types.CreationResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshal run results: %w", err)
	}
	if err := s.client.Set(ctx, runKey(requestID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save run %s: %w", requestID, err)
	}
	return nil
}

// GetRun loads the run's creation results.
func (s *RedisStore) GetRun(ctx context.Context, requestID string) ([]types.CreationResult, error) {
	data, err := s.client.Get(ctx, runKey(requestID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("run %s: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", requestID, err)
	}
	var results []types.CreationResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", requestID, err)
	}
	return results, nil
}

// DeleteRun drops the stored results once an undo has consumed them.
func (s *RedisStore) DeleteRun(ctx context.Context, requestID string) error {
	if err := s.client.Del(ctx, runKey(requestID)).Err(); err != nil {
		return fmt.Errorf("delete run %s: %w", requestID, err)
	}
	return nil
}
