package scheduler

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const journalKey = "ticketd:pending_deletions"

// RedisJournal keeps pending deletions in a sorted set scored by due time so
// deferred deletions survive a process restart.
type RedisJournal struct {
	client *redis.Client
}

// NewRedisJournal connects a journal client. Connectivity problems are
// reported but not fatal; the scheduler degrades to in-memory timers.
func NewRedisJournal(addr, password string, db int, logger *zap.Logger) *RedisJournal {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis deletion journal", zap.Error(err))
	} else {
		logger.Info("connected to redis deletion journal")
	}
	return &RedisJournal{client: client}
}

// Close closes the client.
func (j *RedisJournal) Close() {
	if j != nil && j.client != nil {
		_ = j.client.Close()
	}
}

// Ping verifies connectivity, used by the readiness probe.
func (j *RedisJournal) Ping(ctx context.Context) error {
	return j.client.Ping(ctx).Err()
}

// Record registers a pending deletion with its due time.
func (j *RedisJournal) Record(ctx context.Context, channelID string, due time.Time) error {
	return j.client.ZAdd(ctx, journalKey, redis.Z{
		Score:  float64(due.Unix()),
		Member: channelID,
	}).Err()
}

// Remove drops a pending deletion marker.
func (j *RedisJournal) Remove(ctx context.Context, channelID string) error {
	return j.client.ZRem(ctx, journalKey, channelID).Err()
}

// Pending returns every journaled deletion and its due time.
func (j *RedisJournal) Pending(ctx context.Context) (map[string]time.Time, error) {
	entries, err := j.client.ZRangeWithScores(ctx, journalKey, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	pending := make(map[string]time.Time, len(entries))
	for _, entry := range entries {
		channelID, ok := entry.Member.(string)
		if !ok {
			continue
		}
		pending[channelID] = time.Unix(int64(entry.Score), 0)
	}
	return pending, nil
}
