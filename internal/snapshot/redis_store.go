package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/campustest/testgate/internal/config"
	"github.com/campustest/testgate/internal/session"
)

// RedisStore persists one answer snapshot per student+test attempt as a
// JSON value. Snapshots survive gateway restarts and page reloads; they are
// deleted once the attempt completes.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore wraps an existing Redis client.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

var _ session.SnapshotStore = (*RedisStore)(nil)

// Save writes the full snapshot, replacing any prior value.
func (s *RedisStore) Save(ctx context.Context, studentID, testID string, snap session.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	key := config.CacheKey.SessionSnapshotKey(studentID, testID)
	if err := s.rdb.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot, returning (nil, nil) when none exists.
func (s *RedisStore) Load(ctx context.Context, studentID, testID string) (*session.Snapshot, error) {
	key := config.CacheKey.SessionSnapshotKey(studentID, testID)

	raw, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}

// Delete removes the snapshot. Missing keys are not an error.
func (s *RedisStore) Delete(ctx context.Context, studentID, testID string) error {
	key := config.CacheKey.SessionSnapshotKey(studentID, testID)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
