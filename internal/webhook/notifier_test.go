package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/penshort/shortlink/internal/metrics"
	"github.com/penshort/shortlink/internal/model"
)

func newTestNotifier(url string, events []model.EventType) (*Notifier, *metrics.InMemoryRecorder, *[]time.Duration) {
	recorder := metrics.NewInMemory()
	n := NewNotifier(url, "hook-secret", events, zap.NewNop(), recorder)
	var slept []time.Duration
	n.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return n, recorder, &slept
}

func TestNotifier_DeliversSignedEvent(t *testing.T) {
	var got *http.Request
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	n, recorder, _ := newTestNotifier(srv.URL, nil)
	err := n.Notify(context.Background(), model.EventShortlinksExpired, model.ShortlinksExpiredData{Count: 2, IDs: []int64{3, 7}})
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, string(model.EventShortlinksExpired), got.Header.Get(HeaderEvent))

	ts, err := strconv.ParseInt(got.Header.Get(HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	assert.NoError(t, ValidateSignature("hook-secret", got.Header.Get(HeaderSignature), ts, body, DefaultReplayWindow))

	var event struct {
		ID   string                      `json:"id"`
		Type model.EventType             `json:"type"`
		Data model.ShortlinksExpiredData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &event))
	assert.Equal(t, got.Header.Get(HeaderDeliveryID), event.ID)
	assert.Equal(t, model.EventShortlinksExpired, event.Type)
	assert.Equal(t, []int64{3, 7}, event.Data.IDs)

	assert.Equal(t, uint64(1), recorder.Snapshot().WebhookDeliveries["success"])
}

func TestNotifier_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	n, recorder, slept := newTestNotifier(srv.URL, nil)
	require.NoError(t, n.Notify(context.Background(), model.EventDestinationsBroken, model.DestinationsBrokenData{}))

	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, *slept, 2)
	snap := recorder.Snapshot()
	assert.Equal(t, uint64(2), snap.WebhookDeliveries["failed"])
	assert.Equal(t, uint64(1), snap.WebhookDeliveries["success"])
}

func TestNotifier_Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Redirect(w, r, "https://elsewhere.example.com/", http.StatusFound)
	}))
	t.Cleanup(srv.Close)

	n, recorder, _ := newTestNotifier(srv.URL, nil)
	n.SetMaxAttempts(2)

	err := n.Notify(context.Background(), model.EventShortlinksExpired, model.ShortlinksExpiredData{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 302")
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, uint64(1), recorder.Snapshot().WebhookDeliveries["exhausted"])
}

func TestNotifier_SkipsUnsubscribedEvents(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	t.Cleanup(srv.Close)

	n, _, _ := newTestNotifier(srv.URL, []model.EventType{model.EventDestinationsBroken})
	require.NoError(t, n.Notify(context.Background(), model.EventShortlinksExpired, nil))
	assert.Zero(t, calls.Load())
}

func TestNotifier_StopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	n, _, _ := newTestNotifier(srv.URL, nil)
	n.sleep = sleepContext

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := n.Notify(ctx, model.EventShortlinksExpired, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
