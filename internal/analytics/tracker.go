// Package analytics records shortlink clicks and answers click reports.
// Clicks flow through a Redis stream when one is configured and are
// written straight to the store otherwise.
package analytics

import (
	"context"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/metrics"
	"github.com/penshort/shortlink/internal/model"
	"github.com/penshort/shortlink/internal/repository"
)

// DirectWriteTimeout bounds a store write when no stream is configured.
const DirectWriteTimeout = 2 * time.Second

// DefaultReportLimit applies when a report is requested without a limit.
const DefaultReportLimit = 10

// Sink accepts click payloads without blocking. *Publisher implements it.
type Sink interface {
	PublishAsync(payload ClickPayload)
	// Wait blocks until accepted payloads have been handed off.
	Wait()
}

// RequestMeta is the request data kept for a click.
type RequestMeta struct {
	IP        string
	Referrer  string
	UserAgent string
}

// Tracker records clicks and answers click reports.
type Tracker struct {
	store   repository.ClickStore
	sink    Sink
	hasher  *Hasher
	logger  *zap.Logger
	metrics metrics.Recorder

	wg sync.WaitGroup
}

// NewTracker creates a Tracker. A nil sink makes Record write to the store directly.
func NewTracker(store repository.ClickStore, sink Sink, hasher *Hasher, logger *zap.Logger, recorder metrics.Recorder) *Tracker {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if hasher == nil {
		hasher = NewHasher("")
	}
	return &Tracker{
		store:   store,
		sink:    sink,
		hasher:  hasher,
		logger:  logger.With(zap.String("component", "analytics.tracker")),
		metrics: recorder,
	}
}

// Record captures a click. It never blocks on storage and never fails the caller.
func (t *Tracker) Record(shortlinkID int64, meta RequestMeta, now time.Time) {
	payload := ClickPayload{
		ShortlinkID: shortlinkID,
		Referrer:    Truncate(meta.Referrer, model.MaxReferrerLength),
		UserAgent:   Truncate(meta.UserAgent, model.MaxUserAgentLength),
		IPHash:      t.hasher.Hash(meta.IP),
		Timestamp:   now.UnixMilli(),
	}

	if t.sink != nil {
		t.sink.PublishAsync(payload)
		return
	}

	event := &model.ClickEvent{
		ID:          ulid.Make().String(),
		ShortlinkID: payload.ShortlinkID,
		Referrer:    payload.Referrer,
		UserAgent:   payload.UserAgent,
		IPHash:      payload.IPHash,
		Timestamp:   now.UTC(),
	}
	event.EventID = event.ID

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), DirectWriteTimeout)
		defer cancel()

		if err := t.store.BulkInsert(ctx, []*model.ClickEvent{event}); err != nil {
			t.logger.Warn("failed to record click",
				zap.Int64("shortlink_id", shortlinkID),
				zap.Error(err),
			)
			t.metrics.IncClickRecorded("dropped")
			return
		}
		t.metrics.IncClickRecorded("direct")
	}()
}

// Shutdown waits for in-flight direct writes and stream publishes.
func (t *Tracker) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		if t.sink != nil {
			t.sink.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TotalClicks counts clicks within r.
func (t *Tracker) TotalClicks(ctx context.Context, r model.TimeRange) (int64, error) {
	return t.store.TotalClicks(ctx, r)
}

// TopShortlinks returns the most clicked shortlinks within r, highest first.
// Ties are broken by ascending shortlink id.
func (t *Tracker) TopShortlinks(ctx context.Context, limit int, r model.TimeRange) ([]model.ShortlinkClicks, error) {
	if limit <= 0 {
		limit = DefaultReportLimit
	}
	return t.store.TopShortlinks(ctx, limit, r)
}

// RecentClicks returns the newest clicks.
func (t *Tracker) RecentClicks(ctx context.Context, limit int) ([]*model.ClickEvent, error) {
	if limit <= 0 {
		limit = DefaultReportLimit
	}
	return t.store.RecentClicks(ctx, limit)
}

// ClicksFor returns the clicks of one shortlink within r.
func (t *Tracker) ClicksFor(ctx context.Context, shortlinkID int64, r model.TimeRange) ([]*model.ClickEvent, error) {
	return t.store.ClicksByShortlink(ctx, shortlinkID, r)
}

// PurgeOlderThan deletes clicks recorded before cutoff.
func (t *Tracker) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	n, err := t.store.PurgeClicksBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	t.logger.Info("purged click events", zap.Int64("deleted", n), zap.Time("cutoff", cutoff))
	return n, nil
}

// Truncate shortens s to at most max bytes without splitting a UTF-8 sequence.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
