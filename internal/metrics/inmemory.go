package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	Redirects               map[string]uint64
	NegativeCacheHits       uint64
	RedirectDurationCount   uint64
	RedirectDurationTotalNs int64
	ShortlinksCreated       uint64
	ShortlinksUpdated       uint64
	ShortlinksDeleted       uint64
	ShortlinksExpired       uint64
	ClicksRecorded          map[string]uint64
	ClicksProcessed         map[string]uint64
	ClickQueueDepth         int64
	DestinationIssues       map[string]int
	WebhookDeliveries       map[string]uint64
}

// InMemoryRecorder stores metrics in memory for tests and the admin metrics endpoint.
type InMemoryRecorder struct {
	negativeCacheHits       uint64
	redirectDurationCount   uint64
	redirectDurationTotalNs int64
	shortlinksCreated       uint64
	shortlinksUpdated       uint64
	shortlinksDeleted       uint64
	shortlinksExpired       uint64
	clickQueueDepth         int64

	mu              sync.Mutex
	redirects       map[string]uint64
	clicksRecorded  map[string]uint64
	clicksProcessed map[string]uint64
	issues          map[string]int
	webhooks        map[string]uint64
}

var _ Recorder = (*InMemoryRecorder)(nil)

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		redirects:       make(map[string]uint64),
		clicksRecorded:  make(map[string]uint64),
		clicksProcessed: make(map[string]uint64),
		issues:          make(map[string]int),
		webhooks:        make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return Snapshot{
		Redirects:               copyCounts(m.redirects),
		NegativeCacheHits:       atomic.LoadUint64(&m.negativeCacheHits),
		RedirectDurationCount:   atomic.LoadUint64(&m.redirectDurationCount),
		RedirectDurationTotalNs: atomic.LoadInt64(&m.redirectDurationTotalNs),
		ShortlinksCreated:       atomic.LoadUint64(&m.shortlinksCreated),
		ShortlinksUpdated:       atomic.LoadUint64(&m.shortlinksUpdated),
		ShortlinksDeleted:       atomic.LoadUint64(&m.shortlinksDeleted),
		ShortlinksExpired:       atomic.LoadUint64(&m.shortlinksExpired),
		ClicksRecorded:          copyCounts(m.clicksRecorded),
		ClicksProcessed:         copyCounts(m.clicksProcessed),
		ClickQueueDepth:         atomic.LoadInt64(&m.clickQueueDepth),
		DestinationIssues:       copyIssues(m.issues),
		WebhookDeliveries:       copyCounts(m.webhooks),
	}
}

// IncRedirect counts a redirect request by outcome.
func (m *InMemoryRecorder) IncRedirect(outcome string) {
	m.inc(m.redirects, outcome)
}

// IncNegativeCacheHit increments the negative cache hit counter.
func (m *InMemoryRecorder) IncNegativeCacheHit() {
	atomic.AddUint64(&m.negativeCacheHits, 1)
}

// ObserveRedirectDuration records redirect duration.
func (m *InMemoryRecorder) ObserveRedirectDuration(duration time.Duration) {
	atomic.AddUint64(&m.redirectDurationCount, 1)
	atomic.AddInt64(&m.redirectDurationTotalNs, duration.Nanoseconds())
}

func (m *InMemoryRecorder) IncShortlinkCreated() { atomic.AddUint64(&m.shortlinksCreated, 1) }
func (m *InMemoryRecorder) IncShortlinkUpdated() { atomic.AddUint64(&m.shortlinksUpdated, 1) }
func (m *InMemoryRecorder) IncShortlinkDeleted() { atomic.AddUint64(&m.shortlinksDeleted, 1) }

// AddShortlinksExpired adds n to the expired shortlink counter.
func (m *InMemoryRecorder) AddShortlinksExpired(n int) {
	if n > 0 {
		atomic.AddUint64(&m.shortlinksExpired, uint64(n))
	}
}

func (m *InMemoryRecorder) IncClickRecorded(status string) { m.inc(m.clicksRecorded, status) }
func (m *InMemoryRecorder) IncClickProcessed(status string) { m.inc(m.clicksProcessed, status) }
func (m *InMemoryRecorder) IncWebhookDelivery(status string) { m.inc(m.webhooks, status) }

func (m *InMemoryRecorder) ObserveClickBatchSize(size int) {}
func (m *InMemoryRecorder) ObserveClickBatchDuration(duration time.Duration) {}
func (m *InMemoryRecorder) ObserveClickIngestLag(lag time.Duration) {}

// SetClickQueueDepth stores the latest stream backlog.
func (m *InMemoryRecorder) SetClickQueueDepth(depth int64) {
	atomic.StoreInt64(&m.clickQueueDepth, depth)
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, key string) {
	m.mu.Lock()
	counts[key]++
	m.mu.Unlock()
}

func copyCounts(in map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// SetDestinationIssues records the latest audit count for an issue type.
func (m *InMemoryRecorder) SetDestinationIssues(issueType string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issueType] = count
}

func copyIssues(in map[string]int) map[string]int {
	out := make(map[string]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
