package handler

import (
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"

	"github.com/penshort/shortlink/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
//
// GET /api/v1/metrics
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeLabeled(w, "shortlink_redirects_total", "outcome", snap.Redirects)
	writeMetric(w, "shortlink_negative_cache_hits_total %d\n", snap.NegativeCacheHits)
	writeMetric(w, "shortlink_redirect_duration_seconds_count %d\n", snap.RedirectDurationCount)
	writeMetric(w, "shortlink_redirect_duration_seconds_sum %.6f\n", float64(snap.RedirectDurationTotalNs)/1e9)

	writeMetric(w, "shortlink_created_total %d\n", snap.ShortlinksCreated)
	writeMetric(w, "shortlink_updated_total %d\n", snap.ShortlinksUpdated)
	writeMetric(w, "shortlink_deleted_total %d\n", snap.ShortlinksDeleted)
	writeMetric(w, "shortlink_expired_total %d\n", snap.ShortlinksExpired)

	writeLabeled(w, "shortlink_clicks_recorded_total", "status", snap.ClicksRecorded)
	writeLabeled(w, "shortlink_clicks_processed_total", "status", snap.ClicksProcessed)
	writeMetric(w, "shortlink_click_queue_depth %d\n", snap.ClickQueueDepth)

	writeLabeled(w, "shortlink_destination_issues", "type", snap.DestinationIssues)
	writeLabeled(w, "shortlink_webhook_deliveries_total", "status", snap.WebhookDeliveries)
}

func writeLabeled[V uint64 | int](w io.Writer, name, label string, values map[string]V) {
	for _, key := range slices.Sorted(maps.Keys(values)) {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, key, values[key])
	}
}

func writeMetric(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
