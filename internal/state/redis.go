package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/taskfence/taskfence/internal/models"
)

const (
	activeTaskKey = "taskfence:active_task"
	pendingPrefix = "taskfence:pending:"
)

// RedisStore implements Store on Redis. Pending-marker expiry rides on key
// TTLs, so an expired marker disappears without any cleanup pass.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			_ = closeErr
		}
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for collaborators that share the
// connection (the rate-limit middleware).
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// SetActiveTask persists the active-task marker.
func (s *RedisStore) SetActiveTask(ctx context.Context, marker models.ActiveTaskMarker) error {
	payload, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("failed to marshal active-task marker: %w", err)
	}
	if err := s.client.Set(ctx, activeTaskKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to set active-task marker: %w", err)
	}
	return nil
}

// ActiveTask returns the current marker, or nil when no task is active.
func (s *RedisStore) ActiveTask(ctx context.Context) (*models.ActiveTaskMarker, error) {
	payload, err := s.client.Get(ctx, activeTaskKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read active-task marker: %w", err)
	}

	var marker models.ActiveTaskMarker
	if err := json.Unmarshal(payload, &marker); err != nil {
		return nil, fmt.Errorf("failed to unmarshal active-task marker: %w", err)
	}
	return &marker, nil
}

// ClearActiveTask removes the marker.
func (s *RedisStore) ClearActiveTask(ctx context.Context) error {
	if err := s.client.Del(ctx, activeTaskKey).Err(); err != nil {
		return fmt.Errorf("failed to clear active-task marker: %w", err)
	}
	return nil
}

// EnqueuePending records a deferred task under its own key with a TTL.
func (s *RedisStore) EnqueuePending(ctx context.Context, task models.PendingTask, ttl time.Duration) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal pending marker: %w", err)
	}
	key := pendingPrefix + task.TaskID.String()
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to enqueue pending marker: %w", err)
	}
	return nil
}

// ListPending scans for pending markers. Expired keys are already gone.
func (s *RedisStore) ListPending(ctx context.Context) ([]models.PendingTask, error) {
	var pending []models.PendingTask

	iter := s.client.Scan(ctx, 0, pendingPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		payload, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err == redis.Nil {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read pending marker: %w", err)
		}
		var task models.PendingTask
		if err := json.Unmarshal(payload, &task); err != nil {
			continue // corrupt marker, skip rather than fail the listing
		}
		pending = append(pending, task)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan pending markers: %w", err)
	}
	return pending, nil
}

// RemovePending drops one pending marker.
func (s *RedisStore) RemovePending(ctx context.Context, taskID uuid.UUID) error {
	if err := s.client.Del(ctx, pendingPrefix+taskID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove pending marker: %w", err)
	}
	return nil
}

// ClearPending drops every pending marker.
func (s *RedisStore) ClearPending(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, pendingPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to clear pending marker: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan pending markers: %w", err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
