package journal

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the latency histogram buckets in nanoseconds.
// Buckets cover from 1us to 10s with logarithmic spacing, wide enough to
// span both a fast in-memory commit and a slow durable fsync-backed one.
var LatencyBuckets = []uint64{
	1_000,          // 1us
	10_000,         // 10us
	100_000,        // 100us
	1_000_000,      // 1ms
	10_000_000,     // 10ms
	100_000_000,    // 100ms
	1_000_000_000,  // 1s
	10_000_000_000, // 10s
}

const numLatencyBuckets = 8

// Metrics tracks journal performance and operational statistics: how many
// transactions are admitted, how often admission stalls waiting for a free
// slot, how effectively writes absorb into existing header entries, and
// per-phase commit/install latency. Atomic counters plus a cumulative
// latency histogram with percentile estimation, so Snapshot never takes a
// lock on the hot path.
type Metrics struct {
	// Transaction counters
	TransactionsBegun     atomic.Uint64
	TransactionsCommitted atomic.Uint64

	// log_write counters
	BlocksLogged   atomic.Uint64 // every LogWrite call, including absorbed ones
	BlocksAbsorbed atomic.Uint64 // LogWrite calls that hit an existing header entry

	// Admission control
	AdmissionWaits atomic.Uint64 // times BeginOp had to block for a free slot
	AdmissionStalls atomic.Uint64 // times an admission wait exceeded AdmissionStallWarning

	// Commit/install counters
	Commits        atomic.Uint64 // successful write_log + write_head(commit) pairs
	Installs       atomic.Uint64 // install_trans calls (one per committed slot)
	RecoveryRuns   atomic.Uint64
	RecoveredSlots atomic.Uint64 // slots replayed during the most recent Recover

	// Performance tracking
	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64

	// Latency histogram buckets (cumulative counts); bucket[i] holds the
	// count of ops with latency <= LatencyBuckets[i].
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	// Journal lifecycle
	StartTime atomic.Int64
	StopTime  atomic.Int64
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordBeginOp records the admission of a new transaction, optionally
// noting that BeginOp had to wait (and how long) for a free slot.
func (m *Metrics) RecordBeginOp(waited bool, waitNs uint64) {
	m.TransactionsBegun.Add(1)
	if waited {
		m.AdmissionWaits.Add(1)
		if waitNs > uint64(AdmissionStallWarning.Nanoseconds()) {
			m.AdmissionStalls.Add(1)
		}
	}
}

// RecordLogWrite records one LogWrite call; absorbed indicates the block
// was already present in the slot's header (no new header entry used).
func (m *Metrics) RecordLogWrite(absorbed bool) {
	m.BlocksLogged.Add(1)
	if absorbed {
		m.BlocksAbsorbed.Add(1)
	}
}

// RecordCommit records a completed write_log + write_head(commit) pair for
// one slot, with the latency of that pair.
func (m *Metrics) RecordCommit(latencyNs uint64) {
	m.TransactionsCommitted.Add(1)
	m.Commits.Add(1)
	m.recordLatency(latencyNs)
}

// RecordInstall records one install_trans call for one committed slot.
func (m *Metrics) RecordInstall(latencyNs uint64) {
	m.Installs.Add(1)
	m.recordLatency(latencyNs)
}

// RecordRecovery records a boot-time Recover pass that replayed n slots.
func (m *Metrics) RecordRecovery(slotsReplayed int, latencyNs uint64) {
	m.RecoveryRuns.Add(1)
	m.RecoveredSlots.Add(uint64(slotsReplayed))
	m.recordLatency(latencyNs)
}

// recordLatency records operation latency and updates histogram.
func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)

	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Stop marks the journal as stopped.
func (m *Metrics) Stop() {
	m.StopTime.Store(time.Now().UnixNano())
}

// MetricsSnapshot is a point-in-time snapshot of Metrics.
type MetricsSnapshot struct {
	TransactionsBegun     uint64
	TransactionsCommitted uint64

	BlocksLogged   uint64
	BlocksAbsorbed uint64
	AbsorptionRate float64 // BlocksAbsorbed / BlocksLogged

	AdmissionWaits  uint64
	AdmissionStalls uint64

	Commits        uint64
	Installs       uint64
	RecoveryRuns   uint64
	RecoveredSlots uint64

	AvgLatencyNs uint64
	UptimeNs     uint64

	LatencyP50Ns  uint64
	LatencyP99Ns  uint64
	LatencyP999Ns uint64

	LatencyHistogram [numLatencyBuckets]uint64
}

// Snapshot creates a point-in-time snapshot of metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		TransactionsBegun:     m.TransactionsBegun.Load(),
		TransactionsCommitted: m.TransactionsCommitted.Load(),
		BlocksLogged:          m.BlocksLogged.Load(),
		BlocksAbsorbed:        m.BlocksAbsorbed.Load(),
		AdmissionWaits:        m.AdmissionWaits.Load(),
		AdmissionStalls:       m.AdmissionStalls.Load(),
		Commits:               m.Commits.Load(),
		Installs:              m.Installs.Load(),
		RecoveryRuns:          m.RecoveryRuns.Load(),
		RecoveredSlots:        m.RecoveredSlots.Load(),
	}

	if snap.BlocksLogged > 0 {
		snap.AbsorptionRate = float64(snap.BlocksAbsorbed) / float64(snap.BlocksLogged)
	}

	totalLatencyNs := m.TotalLatencyNs.Load()
	opCount := m.OpCount.Load()
	if opCount > 0 {
		snap.AvgLatencyNs = totalLatencyNs / opCount
	}

	startTime := m.StartTime.Load()
	stopTime := m.StopTime.Load()
	if stopTime > 0 {
		snap.UptimeNs = uint64(stopTime - startTime)
	} else {
		snap.UptimeNs = uint64(time.Now().UnixNano() - startTime)
	}

	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}

	if opCount > 0 {
		snap.LatencyP50Ns = m.calculatePercentile(0.50)
		snap.LatencyP99Ns = m.calculatePercentile(0.99)
		snap.LatencyP999Ns = m.calculatePercentile(0.999)
	}

	return snap
}

// calculatePercentile estimates the latency at the given percentile (0.0-1.0)
// using linear interpolation between histogram buckets.
func (m *Metrics) calculatePercentile(percentile float64) uint64 {
	totalOps := m.OpCount.Load()
	if totalOps == 0 {
		return 0
	}

	targetCount := uint64(float64(totalOps) * percentile)

	prevBucket := uint64(0)
	for i, bucket := range LatencyBuckets {
		bucketCount := m.LatencyBuckets[i].Load()
		if bucketCount >= targetCount {
			prevCount := uint64(0)
			if i > 0 {
				prevCount = m.LatencyBuckets[i-1].Load()
			}
			if bucketCount == prevCount {
				return bucket
			}
			fraction := float64(targetCount-prevCount) / float64(bucketCount-prevCount)
			return prevBucket + uint64(fraction*float64(bucket-prevBucket))
		}
		prevBucket = bucket
	}

	return LatencyBuckets[numLatencyBuckets-1]
}

// Reset resets all metrics counters (useful for testing).
func (m *Metrics) Reset() {
	m.TransactionsBegun.Store(0)
	m.TransactionsCommitted.Store(0)
	m.BlocksLogged.Store(0)
	m.BlocksAbsorbed.Store(0)
	m.AdmissionWaits.Store(0)
	m.AdmissionStalls.Store(0)
	m.Commits.Store(0)
	m.Installs.Store(0)
	m.RecoveryRuns.Store(0)
	m.RecoveredSlots.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
	m.StopTime.Store(0)
}

// Observer allows pluggable metrics collection for journal events.
type Observer interface {
	ObserveBeginOp(waited bool, waitNs uint64)
	ObserveLogWrite(absorbed bool)
	ObserveCommit(latencyNs uint64)
	ObserveInstall(latencyNs uint64)
	ObserveRecovery(slotsReplayed int, latencyNs uint64)
}

// NoOpObserver is a no-op implementation of Observer.
type NoOpObserver struct{}

func (NoOpObserver) ObserveBeginOp(bool, uint64)    {}
func (NoOpObserver) ObserveLogWrite(bool)           {}
func (NoOpObserver) ObserveCommit(uint64)           {}
func (NoOpObserver) ObserveInstall(uint64)          {}
func (NoOpObserver) ObserveRecovery(int, uint64)    {}

// MetricsObserver implements Observer using the built-in Metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver creates an observer that records to the given metrics.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveBeginOp(waited bool, waitNs uint64) {
	o.metrics.RecordBeginOp(waited, waitNs)
}

func (o *MetricsObserver) ObserveLogWrite(absorbed bool) {
	o.metrics.RecordLogWrite(absorbed)
}

func (o *MetricsObserver) ObserveCommit(latencyNs uint64) {
	o.metrics.RecordCommit(latencyNs)
}

func (o *MetricsObserver) ObserveInstall(latencyNs uint64) {
	o.metrics.RecordInstall(latencyNs)
}

func (o *MetricsObserver) ObserveRecovery(slotsReplayed int, latencyNs uint64) {
	o.metrics.RecordRecovery(slotsReplayed, latencyNs)
}

var _ Observer = (*MetricsObserver)(nil)
var _ Observer = (*NoOpObserver)(nil)
