// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Redirect outcomes.
const (
	OutcomeRedirect = "redirect"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Redirect metrics
	IncRedirect(outcome string)
	IncNegativeCacheHit()
	ObserveRedirectDuration(duration time.Duration)

	// Shortlink management metrics
	IncShortlinkCreated()
	IncShortlinkUpdated()
	IncShortlinkDeleted()
	AddShortlinksExpired(n int)

	// Click pipeline metrics
	IncClickRecorded(status string)  // status: "published", "direct" or "dropped"
	IncClickProcessed(status string) // status: "success" or "dead_lettered"
	ObserveClickBatchSize(size int)
	ObserveClickBatchDuration(duration time.Duration)
	SetClickQueueDepth(depth int64)
	ObserveClickIngestLag(lag time.Duration)

	// Destination audit metrics
	SetDestinationIssues(issueType string, count int)

	// Maintenance webhook metrics
	IncWebhookDelivery(status string) // status: "success", "failed", "exhausted"
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
