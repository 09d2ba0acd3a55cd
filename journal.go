// Package journal provides the main API for a multi-slot crash-consistent
// filesystem journal: a fixed pool of log slots that admit, commit, and
// install concurrent transactions over an external block cache, with
// recovery on reopen.
package journal

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/jjacobson3/go-journal/internal/interfaces"
	"github.com/jjacobson3/go-journal/internal/logging"
)

// scopeLogger tags logger with component, if it is a *logging.Logger (the
// only implementation that understands component scoping); any other
// interfaces.Logger, including nil, passes through unchanged.
func scopeLogger(logger interfaces.Logger, component string) interfaces.Logger {
	if logger == nil {
		return nil
	}
	named, ok := logger.(*logging.Logger)
	if !ok {
		return logger
	}
	return named.Named(component)
}

// Journal is one open instance of the multi-slot log: a pool of slots
// consuming a shared interfaces.BlockCacher. Callers bracket filesystem-style
// work between BeginOp and EndOp, issuing LogWrite for every modified block.
type Journal struct {
	bc  interfaces.BlockCacher
	dev uint32

	pool *pool

	maxOpBlocks int
	logSize     int
	logCopies   int
	logStart    uint64
	blockSize   int

	metrics  *Metrics
	observer Observer
	logger   interfaces.Logger

	mu     sync.Mutex
	closed bool
}

// Params configures a Journal, following the struct-of-options plus
// DefaultParams convention used throughout this codebase.
type Params struct {
	// BlockCache is the external collaborator the journal reads and writes
	// through. Required.
	BlockCache interfaces.BlockCacher

	// Dev is the device id passed to every BlockCache call.
	Dev uint32

	// LogStart is the first disk block number of the journal's on-disk
	// region.
	LogStart uint64

	// TotalLogBlocks is the journal's total on-disk footprint, divided
	// evenly among LogCopies slots. Defaults to LogCopies * (LogSize + 1)
	// — one header block plus LogSize payload blocks per slot.
	TotalLogBlocks int

	LogCopies   int
	LogSize     int
	MaxOpBlocks int
	BlockSize   int

	Logger   interfaces.Logger
	Observer Observer
}

// DefaultParams returns sensible default journal parameters over bc.
func DefaultParams(bc interfaces.BlockCacher) Params {
	return Params{
		BlockCache:  bc,
		Dev:         0,
		LogStart:    0,
		LogCopies:   LogCopies,
		LogSize:     LogSize,
		MaxOpBlocks: MaxOpBlocks,
		BlockSize:   BSize,
	}
}

// Txn is the handle BeginOp returns and LogWrite/EndOp consume. It records
// which slot admitted the transaction explicitly, rather than relying on an
// ambient "current active slot" global: with multiple concurrent slots, the
// pool's active index may have moved on by the time a caller gets back to
// LogWrite or EndOp.
type Txn struct {
	slot int
}

// Open validates params, lays out the slot array, runs Recover once, and
// returns a ready Journal. ctx is accepted for symmetry with the rest of
// the API; Open does not consult it, so it cannot cut recovery short. Open
// performs no blocking waits beyond the synchronous block-cache calls
// recovery issues.
func Open(ctx context.Context, params Params) (*Journal, error) {
	if params.BlockCache == nil {
		return nil, NewError("Open", ErrCodeInvalidConfig, "BlockCache is required")
	}
	if params.LogCopies <= 0 {
		params.LogCopies = LogCopies
	}
	if params.LogSize <= 0 {
		params.LogSize = LogSize
	}
	if params.MaxOpBlocks <= 0 {
		params.MaxOpBlocks = MaxOpBlocks
	}
	if params.BlockSize <= 0 {
		params.BlockSize = BSize
	}
	if params.BlockSize < headerWireSize(params.LogSize) {
		return nil, NewError("Open", ErrCodeInvalidConfig, "BlockSize too small to hold a header with this LogSize")
	}
	if params.TotalLogBlocks <= 0 {
		params.TotalLogBlocks = params.LogCopies * (params.LogSize + 1)
	}

	layout := layoutSlots(params.LogStart, params.TotalLogBlocks, params.LogCopies)
	if len(layout) != params.LogCopies {
		return nil, NewError("Open", ErrCodeInvalidConfig, "TotalLogBlocks too small for LogCopies")
	}

	logger := scopeLogger(params.Logger, "journal")

	recoveryStart := time.Now()
	replayed, err := Recover(params.BlockCache, params.Dev, layout, params.LogSize, params.BlockSize)
	if err != nil {
		return nil, WrapError("Open", err)
	}
	if logger != nil {
		logger.Infof("journal recovery replayed %d slot(s)", replayed)
	}

	slots := make([]*slot, params.LogCopies)
	for i, spec := range layout {
		slotLogger := scopeLogger(logger, fmt.Sprintf("slot-%d", i))
		slots[i] = newSlot(i, spec.start, spec.size, params.Dev, params.LogSize, slotLogger)
	}

	metrics := NewMetrics()
	observer := params.Observer
	if observer == nil {
		observer = NewMetricsObserver(metrics)
	}

	j := &Journal{
		bc:          params.BlockCache,
		dev:         params.Dev,
		pool:        newPool(slots),
		maxOpBlocks: params.MaxOpBlocks,
		logSize:     params.LogSize,
		logCopies:   params.LogCopies,
		logStart:    params.LogStart,
		blockSize:   params.BlockSize,
		metrics:     metrics,
		observer:    observer,
		logger:      logger,
	}
	j.observer.ObserveRecovery(replayed, uint64(time.Since(recoveryStart)))

	return j, nil
}

// Close marks the journal closed; any BeginOp blocked waiting for a free
// slot is woken and returns ErrClosed. Transactions already admitted are
// unaffected and must still reach EndOp.
func (j *Journal) Close() error {
	j.mu.Lock()
	j.closed = true
	j.mu.Unlock()

	j.pool.mu.Lock()
	j.pool.cond.Broadcast()
	j.pool.mu.Unlock()

	if j.logger != nil {
		j.logger.Infof("closed")
	}

	j.metrics.Stop()
	return nil
}

// Metrics returns the journal's metrics instance.
func (j *Journal) Metrics() *Metrics {
	return j.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of journal metrics.
func (j *Journal) MetricsSnapshot() MetricsSnapshot {
	return j.metrics.Snapshot()
}

// BeginOp blocks the calling goroutine until it is admitted to a log slot:
// the pool must not already have LogCopies slots committing, the candidate
// slot must not itself be mid-commit, and admitting one more transaction's
// worth of blocks must not be able to overflow the slot's header.
func (j *Journal) BeginOp() (*Txn, error) {
	begin := time.Now()
	waited := false

	p := j.pool
	p.mu.Lock()
	for {
		j.mu.Lock()
		closed := j.closed
		j.mu.Unlock()
		if closed {
			p.mu.Unlock()
			return nil, ErrClosed
		}

		if p.copiesCommitted == j.logCopies {
			waited = true
			p.cond.Wait()
			continue
		}

		s := p.slots[p.active]
		s.mu.Lock()
		if s.committing {
			s.mu.Unlock()
			p.active = (p.active + 1) % j.logCopies
			p.mu.Unlock()
			runtime.Gosched()
			p.mu.Lock()
			continue
		}
		if int(s.hdr.n)+(s.outstanding+1)*j.maxOpBlocks > j.logSize {
			s.mu.Unlock()
			p.active = (p.active + 1) % j.logCopies
			p.mu.Unlock()
			runtime.Gosched()
			p.mu.Lock()
			continue
		}

		s.outstanding++
		slotIdx := s.idx
		slotLogger := s.logger
		s.mu.Unlock()
		p.mu.Unlock()

		j.observer.ObserveBeginOp(waited, uint64(time.Since(begin)))
		if slotLogger != nil {
			slotLogger.Debugf("begin_op admitted")
		}
		return &Txn{slot: slotIdx}, nil
	}
}

// LogWrite records that buf's block must be part of txn's transaction,
// absorbing repeated writes to the same block into one header entry and
// pinning the buffer so it cannot be evicted before install. Panics with a
// *Error if txn's slot is not currently accepting writes: calling LogWrite
// outside a BeginOp/EndOp bracket is a programmer error, not a recoverable
// condition.
func (j *Journal) LogWrite(txn *Txn, buf interfaces.Buf) error {
	s := j.pool.slots[txn.slot]

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.outstanding < 1 || s.committing {
		panic(NewSlotError("LogWrite", s.idx, ErrCodeNotInTransaction, "log_write outside a transaction"))
	}

	blockno := buf.Block()
	if idx, ok := s.hdr.indexOf(blockno); ok {
		s.bufs[idx] = buf
		j.observer.ObserveLogWrite(true)
		if s.logger != nil {
			s.logger.Debugf("absorbed block %d", blockno)
		}
		return nil
	}

	if int(s.hdr.n) >= j.logSize {
		panic(NewSlotError("LogWrite", s.idx, ErrCodeTooManyBlocks, "transaction exceeds LogSize"))
	}

	idx := int(s.hdr.n)
	s.hdr.block[idx] = blockno
	s.hdr.n++
	s.bufs = append(s.bufs, buf)
	j.bc.Bpin(buf)

	j.observer.ObserveLogWrite(false)
	if s.logger != nil {
		s.logger.Debugf("logged block %d at index %d", blockno, idx)
	}
	return nil
}

// EndOp completes txn's participation in its slot. The last caller to leave
// a slot becomes its committer, blocks until its sequence number is next to
// install, then runs commit+install without holding any lock, since the
// underlying block I/O may itself block.
func (j *Journal) EndOp(txn *Txn) error {
	p := j.pool
	s := p.slots[txn.slot]

	s.mu.Lock()
	s.outstanding--
	if s.outstanding < 0 {
		s.mu.Unlock()
		panic(NewSlotError("EndOp", s.idx, ErrCodeNotInTransaction, "end_op called without a matching begin_op"))
	}
	becameCommitter := s.outstanding == 0
	if !becameCommitter {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	p.mu.Lock()
	s.mu.Lock()
	s.committing = true
	s.hdr.seqNbr = p.seqNbr
	p.seqNbr++
	p.copiesCommitted++
	mySeq := s.hdr.seqNbr
	s.mu.Unlock()
	p.mu.Unlock()

	if s.logger != nil {
		s.logger.Debugf("sealed with seq %d", mySeq)
	}

	p.mu.Lock()
	for mySeq+uint64(p.copiesCommitted) != p.seqNbr {
		p.cond.Wait()
	}
	p.mu.Unlock()

	start := time.Now()
	err := j.commitAndInstall(s)
	elapsed := uint64(time.Since(start))

	p.mu.Lock()
	s.mu.Lock()
	s.committing = false
	p.copiesCommitted--
	s.mu.Unlock()
	p.cond.Broadcast()
	p.mu.Unlock()

	if err != nil {
		return WrapError("EndOp", err)
	}

	j.observer.ObserveCommit(elapsed)
	j.observer.ObserveInstall(elapsed)
	if s.logger != nil {
		s.logger.Infof("committed and installed (seq %d)", mySeq)
	}
	return nil
}
