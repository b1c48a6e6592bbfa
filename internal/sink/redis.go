package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisResultsKeyPrefix = "edgescan:results:"
	redisScanKeyPrefix    = "edgescan:scan:"
	redisScanChannel      = "edgescan:scans"
	redisOpTimeout        = 5 * time.Second
)

// Redis stores the addresses as a list and the report as a JSON string, then
// announces the report on the scans channel. A zero retention keeps the keys
// forever.
type Redis struct {
	client    *redis.Client
	retention time.Duration
}

func NewRedis(client *redis.Client, retention time.Duration) *Redis {
	return &Redis{client: client, retention: retention}
}

func (s *Redis) Name() string {
	return "redis"
}

func ResultsKey(scanID string) string {
	return redisResultsKeyPrefix + scanID
}

func ScanKey(scanID string) string {
	return redisScanKeyPrefix + scanID
}

func (s *Redis) Save(ctx context.Context, report Report) error {
	if s.client == nil {
		return errors.New("redis sink: client is nil")
	}
	if report.ID == "" {
		return errors.New("redis sink: report id is empty")
	}

	if report.Detections == nil {
		report.Detections = []Detection{}
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("redis sink: encode report: %w", err)
	}

	opCtx, cancel := context.WithTimeout(ctx, redisOpTimeout)
	defer cancel()

	resultsKey := ResultsKey(report.ID)
	scanKey := ScanKey(report.ID)

	pipe := s.client.TxPipeline()
	pipe.Del(opCtx, resultsKey)
	if addresses := report.Addresses(); len(addresses) > 0 {
		values := make([]any, len(addresses))
		for i, address := range addresses {
			values[i] = address
		}
		pipe.RPush(opCtx, resultsKey, values...)
		if s.retention > 0 {
			pipe.Expire(opCtx, resultsKey, s.retention)
		}
	}
	pipe.Set(opCtx, scanKey, payload, s.retention)

	if _, err := pipe.Exec(opCtx); err != nil {
		return fmt.Errorf("redis sink: store report: %w", err)
	}

	if err := s.client.Publish(opCtx, redisScanChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis sink: publish report: %w", err)
	}

	return nil
}
