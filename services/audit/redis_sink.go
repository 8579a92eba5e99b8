package audit

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/upb/dataguardian/models"
	"github.com/vmihailenco/msgpack/v5"
)

// RedisSink keeps the ring in a redis list so several replicas share one trail.
// Events are msgpack encoded; the list head is the newest event.
type RedisSink struct {
	client   redis.UniversalClient
	key      string
	capacity int
}

// NewRedisSink creates a sink on key holding at most capacity events
func NewRedisSink(client redis.UniversalClient, key string, capacity int) *RedisSink {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisSink{client: client, key: key, capacity: capacity}
}

// NewRedisClient connects to addr and verifies the connection
func NewRedisClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (s *RedisSink) Append(ctx context.Context, event *models.AuditEvent) error {
	payload, err := msgpack.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, s.key, payload)
		pipe.LTrim(ctx, s.key, 0, int64(s.capacity-1))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to append audit event: %w", err)
	}
	return nil
}

func (s *RedisSink) List(ctx context.Context, limit int) ([]*models.AuditEvent, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	raw, err := s.client.LRange(ctx, s.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}

	events := make([]*models.AuditEvent, 0, len(raw))
	for _, item := range raw {
		var event models.AuditEvent
		if err := msgpack.Unmarshal([]byte(item), &event); err != nil {
			return nil, fmt.Errorf("failed to decode audit event: %w", err)
		}
		events = append(events, &event)
	}
	return events, nil
}
