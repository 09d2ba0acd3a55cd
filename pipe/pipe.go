package pipe

import (
	"context"
	"sync"

	"github.com/jjacobson3/go-journal/internal/constants"
	"github.com/jjacobson3/go-journal/internal/interfaces"
	"github.com/jjacobson3/go-journal/internal/logging"
)

// scopeLogger tags logger with component if it is a *logging.Logger; any
// other interfaces.Logger, including nil, passes through unchanged. Mirrors
// the root journal package's helper of the same name.
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

// pipe is the shared ring buffer backing one Reader/Writer pair. nread and
// nwrite are monotonically increasing byte counts, never reset; the ring
// offset is always the count modulo len(data). This mirrors xv6's pipe.c
// layout (nread/nwrite as running totals rather than wrapped indices), which
// makes "is the ring full" and "is the ring empty" plain equality checks
// instead of a separate empty/full flag.
type pipe struct {
	mu sync.Mutex

	// notEmpty is broadcast whenever nwrite advances (or the writer closes);
	// Read waits on it. notFull is broadcast whenever nread advances (or the
	// reader closes); Write waits on it.
	notEmpty *sync.Cond
	notFull  *sync.Cond

	data   []byte
	nread  uint64
	nwrite uint64

	readOpen  bool
	writeOpen bool

	metrics  *Metrics
	observer Observer
	logger   interfaces.Logger
}

// Reader is the read half of a pipe.
type Reader struct {
	p *pipe
}

// Writer is the write half of a pipe.
type Writer struct {
	p *pipe
}

// Alloc creates a connected Reader/Writer pair with the given ring buffer
// capacity in bytes. A size of 0 uses constants.PipeSize.
func Alloc(size int) (*Reader, *Writer) {
	if size <= 0 {
		size = constants.PipeSize
	}
	p := &pipe{
		data:      make([]byte, size),
		readOpen:  true,
		writeOpen: true,
		metrics:   NewMetrics(),
	}
	p.notEmpty = sync.NewCond(&p.mu)
	p.notFull = sync.NewCond(&p.mu)
	p.observer = NewMetricsObserver(p.metrics)
	return &Reader{p: p}, &Writer{p: p}
}

// SetObserver overrides the default metrics-recording observer. Must be
// called before any concurrent Read/Write/Close traffic begins.
func (r *Reader) SetObserver(o Observer) { r.p.observer = o }
func (w *Writer) SetObserver(o Observer) { w.p.observer = o }

// SetLogger attaches a logger to the pipe, scoped to component "pipe" when
// logger is a *logging.Logger. Must be called before any concurrent
// Read/Write/Close traffic begins.
func (r *Reader) SetLogger(logger interfaces.Logger) { r.p.logger = scopeLogger(logger, "pipe") }
func (w *Writer) SetLogger(logger interfaces.Logger) { w.p.logger = scopeLogger(logger, "pipe") }

// Metrics returns the pipe's counters.
func (r *Reader) Metrics() *Metrics { return r.p.metrics }
func (w *Writer) Metrics() *Metrics { return w.p.metrics }

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

// writeDelta returns how many bytes the next contiguous copy can move into
// the ring: bounded by what's left to write, by free space, and by the
// distance to the wrap point so the copy never straddles the ring boundary.
func (p *pipe) writeDelta(remaining int) int {
	free := len(p.data) - int(p.nwrite-p.nread)
	toWrap := len(p.data) - int(p.nwrite%uint64(len(p.data)))
	return minInt(remaining, free, toWrap)
}

func (p *pipe) readDelta(remaining int) int {
	avail := int(p.nwrite - p.nread)
	toWrap := len(p.data) - int(p.nread%uint64(len(p.data)))
	return minInt(remaining, avail, toWrap)
}

// watchCancel arranges for both condition variables to be broadcast when ctx
// is done, so a blocked Read/Write wakes up and re-checks ctx.Err() instead
// of sleeping forever past cancellation. The returned func must be called
// (via defer) to stop the watcher goroutine once the call returns.
func (p *pipe) watchCancel(ctx context.Context) func() {
	if ctx == nil || ctx.Done() == nil {
		return func() {}
	}
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.notEmpty.Broadcast()
			p.notFull.Broadcast()
			p.mu.Unlock()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

// Write copies b into the pipe, blocking while the ring is full. It returns
// early with a partial count and a non-nil error if the reader closes or ctx
// is cancelled mid-write; a full write returns n == len(b), nil.
func (w *Writer) Write(ctx context.Context, b []byte) (int, error) {
	p := w.p
	stop := p.watchCancel(ctx)
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.writeOpen {
		return 0, ErrWriteAfterClose
	}

	stalled := false
	n := len(b)
	i := 0
	for i < n {
		if !p.readOpen {
			p.observer.ObserveWrite(i, stalled)
			return i, ErrReaderClosed
		}
		if err := ctx.Err(); err != nil {
			p.observer.ObserveWrite(i, stalled)
			return i, err
		}
		if p.nwrite == p.nread+uint64(len(p.data)) {
			// Ring full: nudge any blocked reader awake (there's data to
			// drain) and wait for nread to advance.
			if !stalled && p.logger != nil {
				p.logger.Debugf("write stalled: ring full")
			}
			stalled = true
			p.notEmpty.Broadcast()
			p.notFull.Wait()
			continue
		}
		delta := p.writeDelta(n - i)
		dst := p.nwrite % uint64(len(p.data))
		copy(p.data[dst:dst+uint64(delta)], b[i:i+delta])
		p.nwrite += uint64(delta)
		i += delta
	}
	p.notEmpty.Broadcast()
	p.observer.ObserveWrite(i, stalled)
	return i, nil
}

// Read copies up to len(b) bytes out of the pipe into b. It blocks while the
// ring is empty and the writer is still open. Once the writer has closed and
// the ring has drained, Read returns (0, nil): end of stream.
func (r *Reader) Read(ctx context.Context, b []byte) (int, error) {
	p := r.p
	stop := p.watchCancel(ctx)
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.readOpen {
		return 0, ErrReadAfterClose
	}

	stalled := false
	for p.nread == p.nwrite {
		if !p.writeOpen {
			if p.logger != nil {
				p.logger.Debugf("read hit end of stream")
			}
			p.observer.ObserveRead(0, stalled)
			return 0, nil
		}
		if err := ctx.Err(); err != nil {
			p.observer.ObserveRead(0, stalled)
			return 0, err
		}
		if !stalled && p.logger != nil {
			p.logger.Debugf("read stalled: ring empty")
		}
		stalled = true
		p.notEmpty.Wait()
	}

	n := len(b)
	i := 0
	for i < n && p.nread < p.nwrite {
		delta := p.readDelta(n - i)
		src := p.nread % uint64(len(p.data))
		copy(b[i:i+delta], p.data[src:src+uint64(delta)])
		p.nread += uint64(delta)
		i += delta
	}
	p.notFull.Broadcast()
	p.observer.ObserveRead(i, stalled)
	return i, nil
}

// Close closes the read half. A subsequent Write on the peer will observe
// ErrReaderClosed instead of blocking forever; any blocked Write wakes
// immediately. Idempotent.
func (r *Reader) Close() error {
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.readOpen {
		return nil
	}
	p.readOpen = false
	p.notFull.Broadcast()
	if p.logger != nil {
		p.logger.Infof("reader closed")
	}
	if !p.readOpen && !p.writeOpen {
		p.data = nil
	}
	return nil
}

// Close closes the write half. A subsequent Read on the peer drains any
// remaining buffered bytes and then returns (0, nil) for end of stream
// instead of blocking forever. Idempotent.
func (w *Writer) Close() error {
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.writeOpen {
		return nil
	}
	p.writeOpen = false
	p.notEmpty.Broadcast()
	if p.logger != nil {
		p.logger.Infof("writer closed")
	}
	if !p.readOpen && !p.writeOpen {
		p.data = nil
	}
	return nil
}
