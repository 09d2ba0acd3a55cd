package pipe

import "sync/atomic"

// Metrics tracks byte and call counters for one pipe. Cheap enough to leave
// enabled unconditionally; no locking, atomics only (mirrors the journal
// package's counter style).
type Metrics struct {
	BytesWritten atomic.Uint64
	BytesRead    atomic.Uint64
	WriteCalls   atomic.Uint64
	ReadCalls    atomic.Uint64
	EOFReads     atomic.Uint64
	FullStalls   atomic.Uint64
	EmptyStalls  atomic.Uint64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) recordWrite(n int, stalled bool) {
	m.WriteCalls.Add(1)
	m.BytesWritten.Add(uint64(n))
	if stalled {
		m.FullStalls.Add(1)
	}
}

func (m *Metrics) recordRead(n int, stalled bool) {
	m.ReadCalls.Add(1)
	m.BytesRead.Add(uint64(n))
	if stalled {
		m.EmptyStalls.Add(1)
	}
	if n == 0 {
		m.EOFReads.Add(1)
	}
}

// Snapshot is a point-in-time copy of Metrics safe to read without races.
type Snapshot struct {
	BytesWritten uint64
	BytesRead    uint64
	WriteCalls   uint64
	ReadCalls    uint64
	EOFReads     uint64
	FullStalls   uint64
	EmptyStalls  uint64
}

func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		BytesWritten: m.BytesWritten.Load(),
		BytesRead:    m.BytesRead.Load(),
		WriteCalls:   m.WriteCalls.Load(),
		ReadCalls:    m.ReadCalls.Load(),
		EOFReads:     m.EOFReads.Load(),
		FullStalls:   m.FullStalls.Load(),
		EmptyStalls:  m.EmptyStalls.Load(),
	}
}

// Observer receives pipe events as they happen, for callers that want to
// forward them to an external metrics system rather than poll Snapshot.
type Observer interface {
	ObserveWrite(n int, stalled bool)
	ObserveRead(n int, stalled bool)
}

type NoOpObserver struct{}

func (NoOpObserver) ObserveWrite(int, bool) {}
func (NoOpObserver) ObserveRead(int, bool)  {}

type MetricsObserver struct {
	metrics *Metrics
}

func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) ObserveWrite(n int, stalled bool) { o.metrics.recordWrite(n, stalled) }
func (o *MetricsObserver) ObserveRead(n int, stalled bool)  { o.metrics.recordRead(n, stalled) }

var _ Observer = (*NoOpObserver)(nil)
var _ Observer = (*MetricsObserver)(nil)
