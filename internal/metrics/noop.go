package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// Every NoopRecorder method discards its input.
func (n *NoopRecorder) IncRedirect(outcome string) {}
func (n *NoopRecorder) IncNegativeCacheHit() {}
func (n *NoopRecorder) ObserveRedirectDuration(duration time.Duration) {}
func (n *NoopRecorder) IncShortlinkCreated() {}
func (n *NoopRecorder) IncShortlinkUpdated() {}
func (n *NoopRecorder) IncShortlinkDeleted() {}
func (n *NoopRecorder) AddShortlinksExpired(count int) {}
func (n *NoopRecorder) IncClickRecorded(status string) {}
func (n *NoopRecorder) IncClickProcessed(status string) {}
func (n *NoopRecorder) ObserveClickBatchSize(size int) {}
func (n *NoopRecorder) ObserveClickBatchDuration(duration time.Duration) {}
func (n *NoopRecorder) SetClickQueueDepth(depth int64) {}
func (n *NoopRecorder) ObserveClickIngestLag(lag time.Duration) {}
func (n *NoopRecorder) SetDestinationIssues(issueType string, count int) {}
func (n *NoopRecorder) IncWebhookDelivery(status string) {}
