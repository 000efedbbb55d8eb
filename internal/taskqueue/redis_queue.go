package taskqueue

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue implements the Queue interface using Redis.
//
// It uses a single sorted set with key:
//
//	<prefix>outbox
//
// Members are JSON-encoded Task structs scored by their NotBefore time in
// milliseconds, so delayed retries stay invisible until they are due.
type RedisQueue struct {
	client       *redis.Client
	key          string
	pollInterval time.Duration
}

// redisPopReady atomically removes the lowest-scored member whose score is
// at most ARGV[1].
var redisPopReady = redis.NewScript(`
local items = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #items == 0 then
	return false
end
redis.call('ZREM', KEYS[1], items[1])
return items[1]
`)

// NewRedisQueue constructs a Redis-backed Queue.
// prefix is optional but recommended (e.g. "retrofit:").
func NewRedisQueue(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "retrofit:"
	}
	return &RedisQueue{
		client:       client,
		key:          prefix + "outbox",
		pollInterval: 50 * time.Millisecond,
	}
}

// Ensure RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)

// Enqueue adds the task to the sorted set (ZADD).
func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	t = stamp(t, time.Now())

	data, err := EncodeTask(t)
	if err != nil {
		return err
	}

	due := t.EnqueuedAt
	if !t.NotBefore.IsZero() {
		due = t.NotBefore
	}
	return q.client.ZAdd(ctx, q.key, redis.Z{
		Score:  float64(due.UnixMilli()),
		Member: data,
	}).Err()
}

// Dequeue polls for a due task until one is available or ctx is cancelled.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		now := strconv.FormatInt(time.Now().UnixMilli(), 10)
		res, err := redisPopReady.Run(ctx, q.client, []string{q.key}, now).Text()
		if err == nil {
			return DecodeTask([]byte(res))
		}
		if !errors.Is(err, redis.Nil) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(q.pollInterval):
		}
	}
}

// Len returns the approximate number of tasks queued (ZCARD).
func (q *RedisQueue) Len() int {
	n, err := q.client.ZCard(context.Background(), q.key).Result()
	if err != nil {
		// For a Len() helper, it's better to log and return 0 than panic.
		slog.Warn("redis queue length failed", "key", q.key, "error", err)
		return 0
	}
	return int(n)
}
