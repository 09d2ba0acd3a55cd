package journal

import (
	"sync"

	"github.com/jjacobson3/go-journal/internal/interfaces"
)

// MockBlockCache is an in-memory interfaces.BlockCacher for unit tests: it
// behaves like blockcache.Memory (bounded, pin-aware, no real eviction
// needed for small test fixtures) but also tracks per-method call counts
// and can be told to fail the next Bwrite, letting tests exercise the
// journal's error paths without a real device.
type MockBlockCache struct {
	mu sync.Mutex

	blockSize int
	disk      map[uint32]map[uint64][]byte
	pinned    map[uint32]map[uint64]int

	readCalls  int
	writeCalls int
	pinCalls   int
	unpinCalls int

	// writeOrder records the blockno of every successful Bwrite in the
	// order it committed, for tests asserting install ordering.
	writeOrder []uint64

	batchWriteCalls int

	failNextBwrite bool
	closed         bool
}

type mockBuf struct {
	dev     uint32
	blockno uint64
	data    []byte
}

func (b *mockBuf) Block() uint64 { return b.blockno }
func (b *mockBuf) Data() []byte  { return b.data }

// NewMockBlockCache creates a mock block cache with the given block size.
func NewMockBlockCache(blockSize int) *MockBlockCache {
	if blockSize <= 0 {
		blockSize = 512
	}
	return &MockBlockCache{
		blockSize: blockSize,
		disk:      make(map[uint32]map[uint64][]byte),
		pinned:    make(map[uint32]map[uint64]int),
	}
}

func (m *MockBlockCache) devDisk(dev uint32) map[uint64][]byte {
	d, ok := m.disk[dev]
	if !ok {
		d = make(map[uint64][]byte)
		m.disk[dev] = d
	}
	return d
}

// Bread implements interfaces.BlockCacher.
func (m *MockBlockCache) Bread(dev uint32, blockno uint64) (interfaces.Buf, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.readCalls++
	if m.closed {
		return nil, ErrClosed
	}

	data := make([]byte, m.blockSize)
	if existing, ok := m.devDisk(dev)[blockno]; ok {
		copy(data, existing)
	}
	return &mockBuf{dev: dev, blockno: blockno, data: data}, nil
}

// Bwrite implements interfaces.BlockCacher.
func (m *MockBlockCache) Bwrite(buf interfaces.Buf) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.writeCalls++
	if m.closed {
		return ErrClosed
	}
	if m.failNextBwrite {
		m.failNextBwrite = false
		return NewError("Bwrite", ErrCodeIOError, "injected failure")
	}

	b, ok := buf.(*mockBuf)
	if !ok {
		return NewError("Bwrite", ErrCodeIOError, "foreign buffer handle")
	}
	stored := make([]byte, len(b.data))
	copy(stored, b.data)
	m.devDisk(b.dev)[b.blockno] = stored
	m.writeOrder = append(m.writeOrder, b.blockno)
	return nil
}

// BwriteBatch implements interfaces.BatchBlockCacher, so tests exercise the
// same commit-path branch a *blockcache.File built with -tags giouring
// would take: it writes each buf through Bwrite in order, counting the
// batch as one call regardless of how many blocks it carries.
func (m *MockBlockCache) BwriteBatch(bufs []interfaces.Buf) error {
	m.mu.Lock()
	m.batchWriteCalls++
	m.mu.Unlock()

	for _, b := range bufs {
		if err := m.Bwrite(b); err != nil {
			return err
		}
	}
	return nil
}

// BatchWriteCalls reports how many times BwriteBatch has been invoked.
func (m *MockBlockCache) BatchWriteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batchWriteCalls
}

// Bpin implements interfaces.BlockCacher.
func (m *MockBlockCache) Bpin(buf interfaces.Buf) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinCalls++

	b, ok := buf.(*mockBuf)
	if !ok {
		return
	}
	dp, ok := m.pinned[b.dev]
	if !ok {
		dp = make(map[uint64]int)
		m.pinned[b.dev] = dp
	}
	dp[b.blockno]++
}

// Bunpin implements interfaces.BlockCacher.
func (m *MockBlockCache) Bunpin(buf interfaces.Buf) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unpinCalls++

	b, ok := buf.(*mockBuf)
	if !ok {
		return
	}
	if dp, ok := m.pinned[b.dev]; ok && dp[b.blockno] > 0 {
		dp[b.blockno]--
	}
}

// Brelse implements interfaces.BlockCacher. It is a no-op for the mock:
// there is no eviction to protect against.
func (m *MockBlockCache) Brelse(interfaces.Buf) {}

// Close implements interfaces.BlockCacher.
func (m *MockBlockCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// FailNextBwrite makes the next Bwrite call return an error, for testing
// the journal's commit/install error paths.
func (m *MockBlockCache) FailNextBwrite() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNextBwrite = true
}

// PinCount reports the current pin refcount for a block, for asserting
// LogWrite/installTrans pin/unpin balance.
func (m *MockBlockCache) PinCount(dev uint32, blockno uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dp, ok := m.pinned[dev]; ok {
		return dp[blockno]
	}
	return 0
}

// BlockAt returns the current on-disk contents of a block, or nil if never
// written.
func (m *MockBlockCache) BlockAt(dev uint32, blockno uint64) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.disk[dev]; ok {
		if data, ok := d[blockno]; ok {
			out := make([]byte, len(data))
			copy(out, data)
			return out
		}
	}
	return nil
}

// WriteOrderOf filters the full Bwrite history down to the blocks in want,
// preserving the order they were actually written, so a test can assert
// concurrent commits installed in the same order they committed.
func (m *MockBlockCache) WriteOrderOf(want []uint64) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	wantSet := make(map[uint64]bool, len(want))
	for _, b := range want {
		wantSet[b] = true
	}
	var out []uint64
	for _, b := range m.writeOrder {
		if wantSet[b] {
			out = append(out, b)
		}
	}
	return out
}

// CallCounts returns the number of times each method has been called.
func (m *MockBlockCache) CallCounts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"read":  m.readCalls,
		"write": m.writeCalls,
		"pin":   m.pinCalls,
		"unpin": m.unpinCalls,
	}
}

var _ interfaces.BlockCacher = (*MockBlockCache)(nil)
var _ interfaces.BatchBlockCacher = (*MockBlockCache)(nil)
