package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hireloop/api/internal/videogen"
	"github.com/redis/go-redis/v9"
)

const (
	// maxEntriesPerTask caps the audit list so a long poll loop cannot grow
	// a task's trail without bound.
	maxEntriesPerTask = 50
	trailTTL          = 7 * 24 * time.Hour
)

// entry is the stored form of one traffic record.
type entry struct {
	At               time.Time                 `json:"at"`
	Direction        videogen.TrafficDirection `json:"direction"`
	ProviderEndpoint string                    `json:"providerEndpoint"`
	Payload          json.RawMessage           `json:"payload,omitempty"`
}

// RedisTrafficLogger keeps a capped per-task list of provider exchanges under
// audit:{taskId}. It implements videogen.TrafficLogger: strictly
// fire-and-forget, failures are logged and swallowed.
type RedisTrafficLogger struct {
	redis *redis.Client
}

func NewRedisTrafficLogger(redisClient *redis.Client) *RedisTrafficLogger {
	return &RedisTrafficLogger{redis: redisClient}
}

func (l *RedisTrafficLogger) LogTraffic(ctx context.Context, rec videogen.TrafficRecord) {
	if rec.TaskID == "" {
		return
	}

	data, err := json.Marshal(entry{
		At:               time.Now(),
		Direction:        rec.Direction,
		ProviderEndpoint: rec.ProviderEndpoint,
		Payload:          rec.Payload,
	})
	if err != nil {
		log.Printf("[Audit] marshaling record for %s: %v", rec.TaskID, err)
		return
	}

	key := keyFor(rec.TaskID)
	pipe := l.redis.Pipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxEntriesPerTask-1)
	pipe.Expire(ctx, key, trailTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[Audit] writing trail for %s: %v", rec.TaskID, err)
	}
}

// Trail returns the stored records for a task, newest first.
func (l *RedisTrafficLogger) Trail(ctx context.Context, taskID string) ([]json.RawMessage, error) {
	items, err := l.redis.LRange(ctx, keyFor(taskID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading audit trail: %w", err)
	}
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item))
	}
	return out, nil
}

func keyFor(taskID string) string {
	return "audit:" + taskID
}
