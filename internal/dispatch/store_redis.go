package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Mawilis/legal-doc-system-sub010/pkg/domain"
	"github.com/Mawilis/legal-doc-system-sub010/pkg/platform/sentinel"
)

const (
	// Attempt bodies live in a hash keyed by attempt ID; the due queue is a
	// sorted set scored by ScheduledAt so the sweep pops in time order.
	attemptKeyPrefix  = "dispatch:attempt:"
	artifactSetPrefix = "dispatch:artifact:"
	dueQueueKey       = "dispatch:due"
)

// RedisStore is the shared-state implementation of Store for multi-instance
// deployments. The due queue is a ZSET scored by scheduled time, so any
// instance's sweep sees the same ordering.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed attempt store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func attemptKey(id domain.AttemptID) string {
	return attemptKeyPrefix + id.String()
}

func artifactSetKey(artifact domain.ArtifactID) string {
	return artifactSetPrefix + artifact.String()
}

func (s *RedisStore) Save(ctx context.Context, attempt *Attempt) error {
	body, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	// Attempts carry no TTL: they outlive their parent's retention window
	// and are removed only when the parent artifact is purged.
	ok, err := s.client.SetNX(ctx, attemptKey(attempt.ID), body, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	if !ok {
		return sentinel.ErrConflict
	}

	pipe := s.client.Pipeline()
	pipe.SAdd(ctx, artifactSetKey(attempt.ArtifactID), attempt.ID.String())
	if attempt.Status == AttemptQueued || attempt.Status == AttemptRetrying {
		pipe.ZAdd(ctx, dueQueueKey, redis.Z{
			Score:  float64(attempt.ScheduledAt.UnixMilli()),
			Member: attempt.ID.String(),
		})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id domain.AttemptID) (*Attempt, error) {
	body, err := s.client.Get(ctx, attemptKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	var attempt Attempt
	if err := json.Unmarshal(body, &attempt); err != nil {
		return nil, fmt.Errorf("unmarshal attempt: %w", err)
	}
	return &attempt, nil
}

func (s *RedisStore) Update(ctx context.Context, attempt *Attempt) error {
	body, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}

	set, err := s.client.SetXX(ctx, attemptKey(attempt.ID), body, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	if !set {
		return sentinel.ErrNotFound
	}

	// Attempts leave the due queue the moment they stop being schedulable.
	if attempt.Status == AttemptQueued || attempt.Status == AttemptRetrying {
		err = s.client.ZAdd(ctx, dueQueueKey, redis.Z{
			Score:  float64(attempt.ScheduledAt.UnixMilli()),
			Member: attempt.ID.String(),
		}).Err()
	} else {
		err = s.client.ZRem(ctx, dueQueueKey, attempt.ID.String()).Err()
	}
	if err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) ListByArtifact(ctx context.Context, artifact domain.ArtifactID) ([]Attempt, error) {
	ids, err := s.client.SMembers(ctx, artifactSetKey(artifact)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = attemptKeyPrefix + id
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}

	attempts := make([]Attempt, 0, len(values))
	for _, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue // deleted between SMEMBERS and MGET
		}
		var attempt Attempt
		if err := json.Unmarshal([]byte(raw), &attempt); err != nil {
			return nil, fmt.Errorf("unmarshal attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	return attempts, nil
}

func (s *RedisStore) DeleteByArtifact(ctx context.Context, artifact domain.ArtifactID) error {
	ids, err := s.client.SMembers(ctx, artifactSetKey(artifact)).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}

	pipe := s.client.Pipeline()
	for _, id := range ids {
		pipe.Del(ctx, attemptKeyPrefix+id)
		pipe.ZRem(ctx, dueQueueKey, id)
	}
	pipe.Del(ctx, artifactSetKey(artifact))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Due(ctx context.Context, now time.Time, limit int) ([]Attempt, error) {
	ids, err := s.client.ZRangeByScore(ctx, dueQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.UnixMilli()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}

	attempts := make([]Attempt, 0, len(ids))
	for _, id := range ids {
		attemptID, err := domain.ParseAttemptID(id)
		if err != nil {
			// Foreign member in the queue; drop it so it stops surfacing.
			s.client.ZRem(ctx, dueQueueKey, id)
			continue
		}
		attempt, err := s.Get(ctx, attemptID)
		if errors.Is(err, sentinel.ErrNotFound) {
			s.client.ZRem(ctx, dueQueueKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *attempt)
	}
	return attempts, nil
}
