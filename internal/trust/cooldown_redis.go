package trust

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"gatepass/pkg/domain"
)

// RedisCooldown tracks cancellations in a sorted set scored by unix time and
// the override timestamp in a plain key. Entries older than twice the
// cooldown window are trimmed on write; keys expire on their own if the
// student stops cancelling.
type RedisCooldown struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedisCooldown(client *redis.Client, window time.Duration) *RedisCooldown {
	return &RedisCooldown{client: client, retention: 2 * window}
}

func cancellationsKey(actorID domain.StudentID) string {
	return "gatepass:cooldown:cancellations:" + actorID.String()
}

func overrideKey(actorID domain.StudentID) string {
	return "gatepass:cooldown:override:" + actorID.String()
}

func (s *RedisCooldown) RecordCancellation(ctx context.Context, actorID domain.StudentID, at time.Time) error {
	key := cancellationsKey(actorID)
	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixNano()), Member: at.Format(time.RFC3339Nano)})
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(at.Add(-s.retention).UnixNano(), 10))
	pipe.Expire(ctx, key, s.retention)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record cancellation: %w", err)
	}
	return nil
}

func (s *RedisCooldown) CountSince(ctx context.Context, actorID domain.StudentID, since time.Time) (int, error) {
	count, err := s.client.ZCount(ctx,
		cancellationsKey(actorID),
		strconv.FormatInt(since.UnixNano(), 10),
		"+inf",
	).Result()
	if err != nil {
		return 0, fmt.Errorf("count cancellations: %w", err)
	}
	return int(count), nil
}

func (s *RedisCooldown) Override(ctx context.Context, actorID domain.StudentID) (time.Time, error) {
	v, err := s.client.Get(ctx, overrideKey(actorID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get cooldown override: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cooldown override: %w", err)
	}
	return at, nil
}

func (s *RedisCooldown) SetOverride(ctx context.Context, actorID domain.StudentID, at time.Time) error {
	err := s.client.Set(ctx, overrideKey(actorID), at.Format(time.RFC3339Nano), s.retention).Err()
	if err != nil {
		return fmt.Errorf("set cooldown override: %w", err)
	}
	return nil
}
