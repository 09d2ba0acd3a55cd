package journal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetricsCounters(t *testing.T) {
	m := NewMetrics()

	snap := m.Snapshot()
	assert.Zero(t, snap.TransactionsBegun)

	m.RecordBeginOp(false, 0)
	m.RecordBeginOp(true, uint64(3*time.Second))
	m.RecordLogWrite(false)
	m.RecordLogWrite(false)
	m.RecordLogWrite(true) // absorbed
	m.RecordCommit(1_000_000)
	m.RecordInstall(1_500_000)

	snap = m.Snapshot()
	assert.Equal(t, uint64(2), snap.TransactionsBegun)
	assert.Equal(t, uint64(1), snap.AdmissionWaits)
	assert.Equal(t, uint64(1), snap.AdmissionStalls, "3s wait exceeds AdmissionStallWarning")
	assert.Equal(t, uint64(3), snap.BlocksLogged)
	assert.Equal(t, uint64(1), snap.BlocksAbsorbed)
	assert.InDelta(t, 1.0/3.0, snap.AbsorptionRate, 0.001)
	assert.Equal(t, uint64(1), snap.Commits)
	assert.Equal(t, uint64(1), snap.Installs)
}

func TestMetricsAdmissionStallBelowThreshold(t *testing.T) {
	m := NewMetrics()
	m.RecordBeginOp(true, uint64(100*time.Millisecond))

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.AdmissionWaits)
	assert.Zero(t, snap.AdmissionStalls)
}

func TestMetricsRecovery(t *testing.T) {
	m := NewMetrics()
	m.RecordRecovery(2, 250_000)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.RecoveryRuns)
	assert.Equal(t, uint64(2), snap.RecoveredSlots)
}

func TestMetricsUptime(t *testing.T) {
	m := NewMetrics()
	time.Sleep(10 * time.Millisecond)

	snap := m.Snapshot()
	assert.GreaterOrEqual(t, snap.UptimeNs, uint64(10*time.Millisecond))

	m.Stop()
	time.Sleep(5 * time.Millisecond)

	snap2 := m.Snapshot()
	assert.LessOrEqual(t, snap2.UptimeNs, snap.UptimeNs+uint64(2*time.Millisecond))
}

func TestMetricsReset(t *testing.T) {
	m := NewMetrics()
	m.RecordCommit(1_000_000)
	m.RecordLogWrite(false)

	snap := m.Snapshot()
	assert.NotZero(t, snap.Commits)

	m.Reset()
	snap = m.Snapshot()
	assert.Zero(t, snap.Commits)
	assert.Zero(t, snap.BlocksLogged)
}

func TestObserverNoOp(t *testing.T) {
	observer := &NoOpObserver{}
	assert.NotPanics(t, func() {
		observer.ObserveBeginOp(true, 1000)
		observer.ObserveLogWrite(false)
		observer.ObserveCommit(1000)
		observer.ObserveInstall(1000)
		observer.ObserveRecovery(1, 1000)
	})
}

func TestMetricsObserverForwards(t *testing.T) {
	m := NewMetrics()
	observer := NewMetricsObserver(m)

	observer.ObserveBeginOp(false, 0)
	observer.ObserveLogWrite(false)
	observer.ObserveCommit(1_000_000)
	observer.ObserveInstall(1_000_000)
	observer.ObserveRecovery(3, 500_000)

	snap := m.Snapshot()
	assert.Equal(t, uint64(1), snap.TransactionsBegun)
	assert.Equal(t, uint64(1), snap.BlocksLogged)
	assert.Equal(t, uint64(1), snap.Commits)
	assert.Equal(t, uint64(1), snap.Installs)
	assert.Equal(t, uint64(3), snap.RecoveredSlots)
}

func TestMetricsLatencyPercentiles(t *testing.T) {
	m := NewMetrics()

	for i := 0; i < 50; i++ {
		m.RecordCommit(500_000) // 500us
	}
	for i := 0; i < 49; i++ {
		m.RecordInstall(5_000_000) // 5ms
	}
	m.RecordInstall(50_000_000) // 50ms

	snap := m.Snapshot()
	assert.InDelta(t, 100_000, snap.LatencyP50Ns, 900_000)
	assert.GreaterOrEqual(t, snap.LatencyP99Ns, uint64(5_000_000))

	var totalInBuckets uint64
	for _, c := range snap.LatencyHistogram {
		totalInBuckets += c
	}
	assert.NotZero(t, totalInBuckets)
}
