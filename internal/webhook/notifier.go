package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/metrics"
	"github.com/penshort/shortlink/internal/model"
)

// Notifier posts signed maintenance events to a single endpoint.
type Notifier struct {
	targetURL   string
	secret      string
	events      []model.EventType
	client      *http.Client
	logger      *zap.Logger
	metrics     metrics.Recorder
	maxAttempts int
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewNotifier creates a Notifier for targetURL. An empty events list subscribes to every event type.
func NewNotifier(targetURL, secret string, events []model.EventType, logger *zap.Logger, recorder metrics.Recorder) *Notifier {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if len(events) == 0 {
		events = model.ValidEventTypes
	}
	return &Notifier{
		targetURL:   targetURL,
		secret:      secret,
		events:      events,
		client:      NewHTTPClient(),
		logger:      logger.With(zap.String("component", "webhook.notifier")),
		metrics:     recorder,
		maxAttempts: DefaultMaxAttempts,
		now:         time.Now,
		sleep:       sleepContext,
	}
}

// SetMaxAttempts overrides the default number of attempts.
func (n *Notifier) SetMaxAttempts(attempts int) {
	if attempts > 0 {
		n.maxAttempts = attempts
	}
}

// Notify delivers one event, retrying failed attempts with backoff. Unsubscribed
// event types are skipped.
func (n *Notifier) Notify(ctx context.Context, eventType model.EventType, data any) error {
	if !slices.Contains(n.events, eventType) {
		return nil
	}

	event := model.WebhookEvent{
		ID:        ulid.Make().String(),
		Type:      eventType,
		CreatedAt: n.now().UTC(),
		Data:      data,
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	for attempt := 1; ; attempt++ {
		start := time.Now()
		status, err := n.deliver(ctx, event, payload)
		if err == nil {
			n.metrics.IncWebhookDelivery("success")
			n.logger.Info("webhook_delivered",
				zap.String("delivery_id", event.ID),
				zap.String("event", string(eventType)),
				zap.String("target_host", ExtractHost(n.targetURL)),
				zap.Int("http_status", status),
				zap.Int("attempt", attempt),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
			return nil
		}

		exhausted := IsExhausted(attempt, n.maxAttempts)
		outcome := "failed"
		if exhausted {
			outcome = "exhausted"
		}
		n.metrics.IncWebhookDelivery(outcome)
		n.logger.Warn("webhook_delivery_failed",
			zap.String("delivery_id", event.ID),
			zap.String("event", string(eventType)),
			zap.Int("attempt", attempt),
			zap.Bool("exhausted", exhausted),
			zap.Error(err),
		)
		if exhausted {
			return fmt.Errorf("deliver %s after %d attempts: %w", eventType, attempt, err)
		}
		if err := n.sleep(ctx, NextRetryDelay(attempt-1)); err != nil {
			return err
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, event model.WebhookEvent, payload []byte) (int, error) {
	timestamp := n.now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.targetURL, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	SetWebhookHeaders(req, HTTPHeaders{
		Signature:  GenerateSignature(n.secret, timestamp, payload),
		Timestamp:  strconv.FormatInt(timestamp, 10),
		DeliveryID: event.ID,
		Event:      string(event.Type),
	})

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	// Drain body to allow connection reuse
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
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
