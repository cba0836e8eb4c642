package usecase

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/anthropics/tgmod/internal/biz/domain"
)

// Metrics holds the moderation counters. The in-memory state is
// authoritative; snapshots are flushed into the config document
// periodically and mirrored into prometheus collectors.
type Metrics struct {
	mu       sync.Mutex
	pending  int
	approved int
	rejected int
	sources  map[int64]struct{}

	decisions    *prometheus.CounterVec
	pendingGauge prometheus.Gauge
}

// NewMetrics creates the counter set. Collectors are created but not
// registered; call Register with the process registry in main.
func NewMetrics() *Metrics {
	return &Metrics{
		sources: make(map[int64]struct{}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tgmod_decisions_total",
			Help: "Admission and review outcomes by decision.",
		}, []string{"decision"}),
		pendingGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tgmod_pending_requests",
			Help: "Requests currently awaiting human review.",
		}),
	}
}

// Register registers the prometheus collectors.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	if err := reg.Register(m.decisions); err != nil {
		return err
	}
	return reg.Register(m.pendingGauge)
}

// LoadSnapshot restores counters persisted in the config document.
func (m *Metrics) LoadSnapshot(snap *domain.MetricsSnapshot) {
	if snap == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = snap.Pending
	m.approved = snap.Approved
	m.rejected = snap.Rejected
	m.pendingGauge.Set(float64(m.pending))
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() domain.MetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return domain.MetricsSnapshot{Pending: m.pending, Approved: m.approved, Rejected: m.rejected}
}

// MarkSource records a chat id the gateway has seen traffic from.
func (m *Metrics) MarkSource(chatID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[chatID] = struct{}{}
}

// SourceCount returns how many distinct source chats have been seen.
func (m *Metrics) SourceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// AddPending counts a newly queued request.
func (m *Metrics) AddPending() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending++
	m.pendingGauge.Set(float64(m.pending))
	m.decisions.WithLabelValues("queued").Inc()
}

// ResolvePending counts an approve or reject resolution.
func (m *Metrics) ResolvePending(approved bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending > 0 {
		m.pending--
	}
	if approved {
		m.approved++
		m.decisions.WithLabelValues("approved").Inc()
	} else {
		m.rejected++
		m.decisions.WithLabelValues("rejected").Inc()
	}
	m.pendingGauge.Set(float64(m.pending))
}

// DropPending subtracts n reaped requests from the pending counter.
func (m *Metrics) DropPending(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending -= n
	if m.pending < 0 {
		m.pending = 0
	}
	m.pendingGauge.Set(float64(m.pending))
	m.decisions.WithLabelValues("expired").Add(float64(n))
}

// CountDrop counts an admission-pipeline drop.
func (m *Metrics) CountDrop() {
	m.decisions.WithLabelValues("dropped").Inc()
}

// CountForward counts an admin direct forward.
func (m *Metrics) CountForward() {
	m.decisions.WithLabelValues("forwarded").Inc()
}
