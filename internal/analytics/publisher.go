package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/metrics"
)

const (
	// StreamKey is the Redis stream for click events.
	StreamKey = "stream:shortlink_clicks"

	// DeadLetterStreamKey is the Redis stream for poison messages.
	DeadLetterStreamKey = "stream:shortlink_clicks:dlq"

	// MaxStreamLen is the approximate max length of the stream.
	MaxStreamLen = 100000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 100 * time.Millisecond
)

// ClickPayload is the compact event format for the Redis stream.
type ClickPayload struct {
	ShortlinkID int64  `json:"sid"`
	Referrer    string `json:"r,omitempty"`  // truncated
	UserAgent   string `json:"ua,omitempty"` // truncated
	IPHash      string `json:"ih,omitempty"`
	Timestamp   int64  `json:"t"` // Unix milliseconds
}

// Publisher enqueues click events to the Redis stream.
type Publisher struct {
	redis   *redis.Client
	logger  *zap.Logger
	metrics metrics.Recorder

	inflight sync.WaitGroup
}

// NewPublisher creates a new click event publisher.
func NewPublisher(client *redis.Client, logger *zap.Logger, recorder metrics.Recorder) *Publisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Publisher{
		redis:   client,
		logger:  logger.With(zap.String("component", "analytics.publisher")),
		metrics: recorder,
	}
}

// Publish adds a click event to the stream synchronously.
func (p *Publisher) Publish(ctx context.Context, payload ClickPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	result, err := p.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey,
		MaxLen: MaxStreamLen,
		Approx: true, // ~MAXLEN for performance
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd: %w", err)
	}

	return result, nil
}

// PublishAsync publishes without blocking the caller.
// Errors are logged but not returned. Wait blocks until the publish is done.
func (p *Publisher) PublishAsync(payload ClickPayload) {
	p.inflight.Add(1)
	go func() {
		defer p.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), PublishTimeout)
		defer cancel()

		streamID, err := p.Publish(ctx, payload)
		if err != nil {
			p.logger.Warn("failed to publish click event",
				zap.Int64("shortlink_id", payload.ShortlinkID),
				zap.Error(err),
			)
			p.metrics.IncClickRecorded("dropped")
			return
		}

		p.logger.Debug("click event published",
			zap.Int64("shortlink_id", payload.ShortlinkID),
			zap.String("stream_id", streamID),
		)
		p.metrics.IncClickRecorded("published")
	}()
}

// Wait blocks until every PublishAsync call has finished.
func (p *Publisher) Wait() {
	p.inflight.Wait()
}
