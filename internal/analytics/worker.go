package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/metrics"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/webhook"
)

const (
	// DefaultBatchSize is the max events per batch.
	DefaultBatchSize = 500

	// DefaultBlockTimeout is how long a read waits for new clicks.
	DefaultBlockTimeout = 5 * time.Second

	// DefaultMaxAttempts is how often a batch insert is tried before its
	// messages are dead-lettered.
	DefaultMaxAttempts = 3

	// DefaultClaimIdle is how long a message stays pending before another
	// worker takes it over.
	DefaultClaimIdle = 30 * time.Second
)

// Dead-letter reasons.
const (
	reasonInvalidFormat = "invalid_format"
	reasonUnmarshal     = "unmarshal_error"
	reasonValidation    = "validation_error"
	reasonInsertFailed  = "insert_failed"
)

// EventWriter persists click events. Inserts must ignore duplicate event ids.
type EventWriter interface {
	BulkInsert(ctx context.Context, events []*model.ClickEvent) error
}

// Worker drains the click stream into the store. Each stream message becomes
// one click event keyed by its stream id, so redelivered messages are not
// counted twice.
type Worker struct {
	stream       clickStream
	repo         EventWriter
	logger       *zap.Logger
	metrics      metrics.Recorder
	consumerID   string
	batchSize    int
	blockTimeout time.Duration
	maxAttempts  int
	claimIdle    time.Duration
	sleep        func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewWorker creates a click stream worker reading through client.
func NewWorker(client *redis.Client, repo EventWriter, logger *zap.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	return newWorker(redisStream{client: client}, repo, logger, consumerID, recorder)
}

func newWorker(stream clickStream, repo EventWriter, logger *zap.Logger, consumerID string, recorder metrics.Recorder) *Worker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Worker{
		stream:       stream,
		repo:         repo,
		logger:       logger.With(zap.String("component", "analytics.worker"), zap.String("consumer_id", consumerID)),
		metrics:      recorder,
		consumerID:   consumerID,
		batchSize:    DefaultBatchSize,
		blockTimeout: DefaultBlockTimeout,
		maxAttempts:  DefaultMaxAttempts,
		claimIdle:    DefaultClaimIdle,
		sleep:        sleepContext,
	}
}

// SetBlockTimeout overrides the default read timeout.
func (w *Worker) SetBlockTimeout(timeout time.Duration) {
	if timeout > 0 {
		w.blockTimeout = timeout
	}
}

// Run processes batches until ctx is cancelled or Shutdown is called.
func (w *Worker) Run(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return errors.New("worker already started")
	}
	w.started = true
	w.done = make(chan struct{})
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()
	defer close(w.done)

	if err := w.stream.ensureGroup(ctx); err != nil {
		return fmt.Errorf("ensure consumer group: %w", err)
	}
	w.logger.Info("click worker started")

	for ctx.Err() == nil {
		if err := w.processOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error("process error", zap.Error(err))
			_ = w.sleep(ctx, time.Second)
		}
	}
	w.logger.Info("click worker stopped")
	return nil
}

// Shutdown stops the worker and waits for the current batch.
// It matches server.ShutdownFunc.
func (w *Worker) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		w.logger.Warn("click worker shutdown timed out")
		return ctx.Err()
	}
}

// processOnce handles one batch: stale pending messages first, then new ones.
// Every message is acked once it is stored or dead-lettered. A batch
// interrupted by cancellation stays pending for another worker.
func (w *Worker) processOnce(ctx context.Context) error {
	if depth, err := w.stream.depth(ctx); err == nil {
		w.metrics.SetClickQueueDepth(depth)
	}

	messages, err := w.stream.claimStale(ctx, w.consumerID, w.claimIdle, w.batchSize)
	if err != nil {
		w.logger.Warn("failed to claim pending clicks", zap.Error(err))
	}
	if len(messages) == 0 {
		if messages, err = w.stream.read(ctx, w.consumerID, w.batchSize, w.blockTimeout); err != nil {
			return err
		}
	}
	if len(messages) == 0 {
		return nil
	}

	events, valid := w.parseMessages(ctx, messages)
	if len(events) > 0 {
		if err := w.insertWithRetry(ctx, events); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Error("click batch dead-lettered after retries",
				zap.Int("batch_size", len(events)),
				zap.Error(err),
			)
			for _, msg := range valid {
				w.deadLetter(ctx, msg, reasonInsertFailed, err.Error())
			}
		}
	}

	ids := make([]string, len(messages))
	for i, msg := range messages {
		ids[i] = msg.ID
	}
	return w.stream.ack(ctx, ids...)
}

// parseMessages turns stream messages into click events. Invalid messages are
// dead-lettered; valid holds the messages behind the returned events.
func (w *Worker) parseMessages(ctx context.Context, messages []redis.XMessage) (events []*model.ClickEvent, valid []redis.XMessage) {
	for _, msg := range messages {
		raw, ok := msg.Values["payload"].(string)
		if !ok {
			w.deadLetter(ctx, msg, reasonInvalidFormat, "payload field missing or not a string")
			continue
		}
		var click ClickPayload
		if err := json.Unmarshal([]byte(raw), &click); err != nil {
			w.deadLetter(ctx, msg, reasonUnmarshal, err.Error())
			continue
		}
		if err := ValidateClickPayload(click); err != nil {
			w.deadLetter(ctx, msg, reasonValidation, err.Error())
			continue
		}

		events = append(events, &model.ClickEvent{
			ID:          ulid.Make().String(),
			EventID:     msg.ID,
			ShortlinkID: click.ShortlinkID,
			Referrer:    click.Referrer,
			UserAgent:   click.UserAgent,
			IPHash:      click.IPHash,
			Timestamp:   time.UnixMilli(click.Timestamp).UTC(),
		})
		valid = append(valid, msg)
	}
	return events, valid
}

func (w *Worker) deadLetter(ctx context.Context, msg redis.XMessage, reason, detail string) {
	w.logger.Warn("dead-lettering click message",
		zap.String("message_id", msg.ID),
		zap.String("reason", reason),
		zap.String("detail", detail),
	)
	if err := w.stream.deadLetter(ctx, msg, reason, detail); err != nil {
		w.logger.Error("failed to write dead-letter entry", zap.String("message_id", msg.ID), zap.Error(err))
	}
	w.metrics.IncClickProcessed("dead_lettered")
}

// insertWithRetry uses the maintenance webhook backoff between attempts.
func (w *Worker) insertWithRetry(ctx context.Context, events []*model.ClickEvent) error {
	for attempt := 1; ; attempt++ {
		start := time.Now()
		err := w.repo.BulkInsert(ctx, events)
		if err == nil {
			w.metrics.ObserveClickBatchSize(len(events))
			w.metrics.ObserveClickBatchDuration(time.Since(start))
			for _, event := range events {
				w.metrics.IncClickProcessed("success")
				w.metrics.ObserveClickIngestLag(time.Since(event.Timestamp))
			}
			w.logger.Debug("click batch stored", zap.Int("events_count", len(events)), zap.Duration("duration", time.Since(start)))
			return nil
		}
		if webhook.IsExhausted(attempt, w.maxAttempts) {
			return fmt.Errorf("bulk insert: %w", err)
		}

		delay := webhook.NextRetryDelay(attempt - 1)
		w.logger.Warn("click batch insert failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		if err := w.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
