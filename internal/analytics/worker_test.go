package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/metrics"
	"github.com/penshort/shortlink/internal/model"
)

type deadLetterEntry struct {
	id     string
	reason string
}

type fakeStream struct {
	mu      sync.Mutex
	stale   []redis.XMessage
	fresh   []redis.XMessage
	acked   []string
	dead    []deadLetterEntry
	pending int64
}

func (f *fakeStream) ensureGroup(context.Context) error { return nil }

func (f *fakeStream) claimStale(context.Context, string, time.Duration, int) ([]redis.XMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.stale
	f.stale = nil
	return msgs, nil
}

func (f *fakeStream) read(context.Context, string, int, time.Duration) ([]redis.XMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.fresh
	f.fresh = nil
	return msgs, nil
}

func (f *fakeStream) ack(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeStream) deadLetter(_ context.Context, msg redis.XMessage, reason, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead = append(f.dead, deadLetterEntry{id: msg.ID, reason: reason})
	return nil
}

func (f *fakeStream) depth(context.Context) (int64, error) { return f.pending, nil }

// flakyWriter fails the first failures inserts.
type flakyWriter struct {
	failures int
	calls    int
	events   []*model.ClickEvent
}

func (f *flakyWriter) BulkInsert(_ context.Context, events []*model.ClickEvent) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("database is locked")
	}
	f.events = append(f.events, events...)
	return nil
}

func clickMessage(t *testing.T, id string, p ClickPayload) redis.XMessage {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	return redis.XMessage{ID: id, Values: map[string]any{"payload": string(data)}}
}

func newTestWorker(stream *fakeStream, repo EventWriter) (*Worker, *metrics.InMemoryRecorder, *[]time.Duration) {
	recorder := metrics.NewInMemory()
	w := newWorker(stream, repo, zap.NewNop(), "test-consumer", recorder)
	var slept []time.Duration
	w.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return w, recorder, &slept
}

func TestWorker_StoresBatchKeyedByStreamID(t *testing.T) {
	ts := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	stream := &fakeStream{
		pending: 2,
		fresh: []redis.XMessage{
			clickMessage(t, "1-0", ClickPayload{ShortlinkID: 7, Referrer: "https://news.example.com/", Timestamp: ts.UnixMilli()}),
			clickMessage(t, "1-1", ClickPayload{ShortlinkID: 8, UserAgent: "curl/8", Timestamp: ts.UnixMilli()}),
		},
	}
	repo := &flakyWriter{}
	w, recorder, _ := newTestWorker(stream, repo)

	require.NoError(t, w.processOnce(context.Background()))

	require.Len(t, repo.events, 2)
	assert.Equal(t, "1-0", repo.events[0].EventID)
	assert.Equal(t, int64(7), repo.events[0].ShortlinkID)
	assert.Equal(t, "https://news.example.com/", repo.events[0].Referrer)
	assert.True(t, ts.Equal(repo.events[0].Timestamp))
	assert.Equal(t, []string{"1-0", "1-1"}, stream.acked)
	assert.Empty(t, stream.dead)

	snap := recorder.Snapshot()
	assert.Equal(t, uint64(2), snap.ClicksProcessed["success"])
	assert.Equal(t, int64(2), snap.ClickQueueDepth)
}

func TestWorker_DeadLettersInvalidMessages(t *testing.T) {
	now := time.Now().UnixMilli()
	stream := &fakeStream{
		fresh: []redis.XMessage{
			{ID: "2-0", Values: map[string]any{"other": "x"}},
			{ID: "2-1", Values: map[string]any{"payload": "{not json"}},
			clickMessage(t, "2-2", ClickPayload{ShortlinkID: 0, Timestamp: now}),
			clickMessage(t, "2-3", ClickPayload{ShortlinkID: 4, Timestamp: now}),
		},
	}
	repo := &flakyWriter{}
	w, recorder, _ := newTestWorker(stream, repo)

	require.NoError(t, w.processOnce(context.Background()))

	assert.Equal(t, []deadLetterEntry{
		{id: "2-0", reason: reasonInvalidFormat},
		{id: "2-1", reason: reasonUnmarshal},
		{id: "2-2", reason: reasonValidation},
	}, stream.dead)
	require.Len(t, repo.events, 1)
	assert.Equal(t, "2-3", repo.events[0].EventID)
	assert.Equal(t, []string{"2-0", "2-1", "2-2", "2-3"}, stream.acked)

	snap := recorder.Snapshot()
	assert.Equal(t, uint64(3), snap.ClicksProcessed["dead_lettered"])
	assert.Equal(t, uint64(1), snap.ClicksProcessed["success"])
}

func TestWorker_AllInvalidSkipsInsert(t *testing.T) {
	stream := &fakeStream{fresh: []redis.XMessage{{ID: "3-0", Values: map[string]any{}}}}
	repo := &flakyWriter{}
	w, _, _ := newTestWorker(stream, repo)

	require.NoError(t, w.processOnce(context.Background()))
	assert.Zero(t, repo.calls)
	assert.Equal(t, []string{"3-0"}, stream.acked)
}

func TestWorker_RetriesThenStores(t *testing.T) {
	stream := &fakeStream{fresh: []redis.XMessage{
		clickMessage(t, "4-0", ClickPayload{ShortlinkID: 1, Timestamp: time.Now().UnixMilli()}),
	}}
	repo := &flakyWriter{failures: 1}
	w, _, slept := newTestWorker(stream, repo)

	require.NoError(t, w.processOnce(context.Background()))
	assert.Equal(t, 2, repo.calls)
	assert.Len(t, *slept, 1)
	assert.Len(t, repo.events, 1)
	assert.Empty(t, stream.dead)
	assert.Equal(t, []string{"4-0"}, stream.acked)
}

func TestWorker_DeadLettersBatchAfterRetries(t *testing.T) {
	now := time.Now().UnixMilli()
	stream := &fakeStream{fresh: []redis.XMessage{
		clickMessage(t, "5-0", ClickPayload{ShortlinkID: 1, Timestamp: now}),
		clickMessage(t, "5-1", ClickPayload{ShortlinkID: 2, Timestamp: now}),
	}}
	repo := &flakyWriter{failures: DefaultMaxAttempts}
	w, recorder, slept := newTestWorker(stream, repo)

	require.NoError(t, w.processOnce(context.Background()))

	assert.Equal(t, DefaultMaxAttempts, repo.calls)
	assert.Len(t, *slept, DefaultMaxAttempts-1)
	assert.Equal(t, []deadLetterEntry{
		{id: "5-0", reason: reasonInsertFailed},
		{id: "5-1", reason: reasonInsertFailed},
	}, stream.dead)
	assert.Equal(t, []string{"5-0", "5-1"}, stream.acked)
	assert.Equal(t, uint64(2), recorder.Snapshot().ClicksProcessed["dead_lettered"])
}

func TestWorker_CancelledRetryLeavesBatchPending(t *testing.T) {
	stream := &fakeStream{fresh: []redis.XMessage{
		clickMessage(t, "6-0", ClickPayload{ShortlinkID: 1, Timestamp: time.Now().UnixMilli()}),
	}}
	repo := &flakyWriter{failures: DefaultMaxAttempts}
	w, _, _ := newTestWorker(stream, repo)

	ctx, cancel := context.WithCancel(context.Background())
	w.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	err := w.processOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, stream.acked)
	assert.Empty(t, stream.dead)
}

func TestWorker_StaleMessagesFirst(t *testing.T) {
	now := time.Now().UnixMilli()
	stream := &fakeStream{
		stale: []redis.XMessage{clickMessage(t, "7-0", ClickPayload{ShortlinkID: 1, Timestamp: now})},
		fresh: []redis.XMessage{clickMessage(t, "8-0", ClickPayload{ShortlinkID: 2, Timestamp: now})},
	}
	repo := &flakyWriter{}
	w, _, _ := newTestWorker(stream, repo)

	require.NoError(t, w.processOnce(context.Background()))
	assert.Equal(t, []string{"7-0"}, stream.acked)

	require.NoError(t, w.processOnce(context.Background()))
	assert.Equal(t, []string{"7-0", "8-0"}, stream.acked)
}

func TestWorker_RunStopsOnShutdown(t *testing.T) {
	w, _, _ := newTestWorker(&fakeStream{}, &flakyWriter{})

	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		return w.started
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Shutdown(ctx))
	assert.NoError(t, <-errCh)
	assert.Error(t, w.Run(context.Background()))
}

func TestNewConsumerID_Unique(t *testing.T) {
	a, b := NewConsumerID(), NewConsumerID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "click-worker-"), a)
}
