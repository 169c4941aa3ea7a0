package analytics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
)

// ConsumerGroup is the Redis consumer group reading the click stream.
const ConsumerGroup = "click_workers"

// deadLetterMaxLen caps the dead-letter stream.
const deadLetterMaxLen = 10000

// NewConsumerID names a worker within ConsumerGroup. Names are unique per
// process start; messages a previous process left pending are reclaimed
// after DefaultClaimIdle.
func NewConsumerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "shortlink"
	}
	return "click-worker-" + host + "-" + ulid.Make().String()
}

// clickStream is the consumer side of the click stream used by Worker.
type clickStream interface {
	ensureGroup(ctx context.Context) error
	// claimStale takes over messages another consumer left pending for at least idle.
	claimStale(ctx context.Context, consumer string, idle time.Duration, count int) ([]redis.XMessage, error)
	read(ctx context.Context, consumer string, count int, block time.Duration) ([]redis.XMessage, error)
	ack(ctx context.Context, ids ...string) error
	deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) error
	depth(ctx context.Context) (int64, error)
}

type redisStream struct {
	client *redis.Client
}

func (s redisStream) ensureGroup(ctx context.Context) error {
	err := s.client.XGroupCreateMkStream(ctx, StreamKey, ConsumerGroup, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (s redisStream) claimStale(ctx context.Context, consumer string, idle time.Duration, count int) ([]redis.XMessage, error) {
	// Acked messages leave the pending list, so a scan from the start stays short.
	messages, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   StreamKey,
		Group:    ConsumerGroup,
		Consumer: consumer,
		MinIdle:  idle,
		Start:    "0-0",
		Count:    int64(count),
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("xautoclaim: %w", err)
	}
	return messages, nil
}

func (s redisStream) read(ctx context.Context, consumer string, count int, block time.Duration) ([]redis.XMessage, error) {
	streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    ConsumerGroup,
		Consumer: consumer,
		Streams:  []string{StreamKey, ">"},
		Count:    int64(count),
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("xreadgroup: %w", err)
	}
	if len(streams) == 0 {
		return nil, nil
	}
	return streams[0].Messages, nil
}

func (s redisStream) ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.client.XAck(ctx, StreamKey, ConsumerGroup, ids...).Err(); err != nil {
		return fmt.Errorf("xack: %w", err)
	}
	return nil
}

func (s redisStream) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) error {
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterStreamKey,
		MaxLen: deadLetterMaxLen,
		Approx: true,
		Values: map[string]any{
			"original_id":      msg.ID,
			"reason":           reason,
			"detail":           detail,
			"payload":          msg.Values["payload"],
			"dead_lettered_at": time.Now().UTC().Format(time.RFC3339),
		},
	}).Err()
}

func (s redisStream) depth(ctx context.Context) (int64, error) {
	groups, err := s.client.XInfoGroups(ctx, StreamKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	for _, g := range groups {
		if g.Name == ConsumerGroup {
			return g.Pending + g.Lag, nil
		}
	}
	return 0, nil
}
