package candidates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix        = "edgescan:queue:"
	pushBatchSize    = 500
	joinPollInterval = 250 * time.Millisecond
	defaultKeyTTL    = 24 * time.Hour
)

// doneScript decrements the pending counter without letting it go negative.
var doneScript = redis.NewScript(`
local n = tonumber(redis.call("GET", KEYS[1]) or "0")
if n <= 0 then
	return -1
end
return redis.call("DECR", KEYS[1])`)

// RedisQueue keeps the candidates of one scan in a Redis list keyed by the
// scan id, with the pending count next to it. LPOP gives at-most-once delivery.
type RedisQueue struct {
	client     *redis.Client
	itemsKey   string
	pendingKey string
	ttl        time.Duration
}

func NewRedisQueue(client *redis.Client, scanID string, ttl time.Duration) *RedisQueue {
	if ttl <= 0 {
		ttl = defaultKeyTTL
	}

	return &RedisQueue{
		client:     client,
		itemsKey:   keyPrefix + scanID + ":items",
		pendingKey: keyPrefix + scanID + ":pending",
		ttl:        ttl,
	}
}

func (rq *RedisQueue) Put(ctx context.Context, items ...string) error {
	if rq == nil || rq.client == nil {
		return errors.New("redis candidate queue is nil")
	}
	if len(items) == 0 {
		return nil
	}

	for start := 0; start < len(items); start += pushBatchSize {
		end := min(start+pushBatchSize, len(items))
		batch := make([]interface{}, 0, end-start)
		for _, item := range items[start:end] {
			batch = append(batch, item)
		}

		pipe := rq.client.TxPipeline()
		pipe.IncrBy(ctx, rq.pendingKey, int64(len(batch)))
		pipe.RPush(ctx, rq.itemsKey, batch...)
		pipe.Expire(ctx, rq.itemsKey, rq.ttl)
		pipe.Expire(ctx, rq.pendingKey, rq.ttl)

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("push batch: %w", err)
		}
	}

	log.Debug("Candidates queued in redis", "key", rq.itemsKey, "count", len(items))
	return nil
}

func (rq *RedisQueue) TryGet(ctx context.Context) (string, bool, error) {
	item, err := rq.client.LPop(ctx, rq.itemsKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("pop candidate: %w", err)
	}
	return item, true, nil
}

func (rq *RedisQueue) Done(ctx context.Context) error {
	remaining, err := doneScript.Run(ctx, rq.client, []string{rq.pendingKey}).Int64()
	if err != nil {
		return fmt.Errorf("mark candidate done: %w", err)
	}
	if remaining < 0 {
		return ErrTooManyDone
	}
	return nil
}

func (rq *RedisQueue) Join(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(joinPollInterval)
	defer ticker.Stop()

	for {
		pending, err := rq.client.Get(ctx, rq.pendingKey).Int64()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("read pending count: %w", err)
		}
		if err == nil && pending <= 0 {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close removes the scan's keys. The client itself is owned by the caller.
func (rq *RedisQueue) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return rq.client.Del(ctx, rq.itemsKey, rq.pendingKey).Err()
}
