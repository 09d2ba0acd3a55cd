// Package blockcache provides reference implementations of the external
// block-cache collaborator (interfaces.BlockCacher): an in-memory
// pin-aware cache (Memory) and a durable file-backed cache (File). Both
// are external relative to the journal core — the journal only ever
// consumes interfaces.BlockCacher.
package blockcache

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/jjacobson3/go-journal/internal/interfaces"
)

type bufKey struct {
	dev     uint32
	blockno uint64
}

// buffer is the concrete Buf implementation shared by Memory and File.
type buffer struct {
	key    bufKey
	data   []byte
	refcnt int // pin count; protected by the owning cache's mu
}

func (b *buffer) Block() uint64 { return b.key.blockno }
func (b *buffer) Data() []byte  { return b.data }

// Memory is a bounded, pin-aware in-memory block cache: up to capacity
// blocks are held resident, and an unpinned block is evicted in
// least-recently-used order when a new block must be read in. Pinned blocks
// (buffers a transaction is still holding onto) are never evicted, so
// eviction can never race with an in-flight log_write or installTrans.
type Memory struct {
	mu        sync.Mutex
	blockSize int
	capacity  int
	disk      map[uint32]map[uint64][]byte // durable-in-RAM backing store
	entries   map[bufKey]*list.Element     // cached, possibly-pinned buffers
	lru       *list.List                   // front = most recently used
}

// NewMemory creates an in-memory block cache holding up to capacity blocks
// of blockSize bytes each.
func NewMemory(blockSize, capacity int) *Memory {
	if blockSize <= 0 {
		blockSize = 512
	}
	if capacity <= 0 {
		capacity = 32
	}
	return &Memory{
		blockSize: blockSize,
		capacity:  capacity,
		disk:      make(map[uint32]map[uint64][]byte),
		entries:   make(map[bufKey]*list.Element),
		lru:       list.New(),
	}
}

func (m *Memory) devDisk(dev uint32) map[uint64][]byte {
	d, ok := m.disk[dev]
	if !ok {
		d = make(map[uint64][]byte)
		m.disk[dev] = d
	}
	return d
}

// Bread implements interfaces.BlockCacher.
func (m *Memory) Bread(dev uint32, blockno uint64) (interfaces.Buf, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := bufKey{dev, blockno}
	if el, ok := m.entries[key]; ok {
		m.lru.MoveToFront(el)
		return el.Value.(*buffer), nil
	}

	if err := m.evictLocked(); err != nil {
		return nil, err
	}

	data := make([]byte, m.blockSize)
	if existing, ok := m.devDisk(dev)[blockno]; ok {
		copy(data, existing)
	}

	buf := &buffer{key: key, data: data}
	el := m.lru.PushFront(buf)
	m.entries[key] = el
	return buf, nil
}

// evictLocked drops the least-recently-used unpinned buffer if the cache is
// at capacity. Called with m.mu held.
func (m *Memory) evictLocked() error {
	if len(m.entries) < m.capacity {
		return nil
	}
	for el := m.lru.Back(); el != nil; el = el.Prev() {
		b := el.Value.(*buffer)
		if b.refcnt == 0 {
			m.lru.Remove(el)
			delete(m.entries, b.key)
			return nil
		}
	}
	return fmt.Errorf("blockcache: no unpinned buffer to evict (capacity=%d, all pinned)", m.capacity)
}

// Bwrite implements interfaces.BlockCacher: synchronously flushes buf to
// the backing store.
func (m *Memory) Bwrite(buf interfaces.Buf) error {
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("blockcache: foreign buffer handle")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(b.data))
	copy(stored, b.data)
	m.devDisk(b.key.dev)[b.key.blockno] = stored
	return nil
}

// Bpin implements interfaces.BlockCacher.
func (m *Memory) Bpin(buf interfaces.Buf) {
	b, ok := buf.(*buffer)
	if !ok {
		return
	}
	m.mu.Lock()
	b.refcnt++
	m.mu.Unlock()
}

// Bunpin implements interfaces.BlockCacher.
func (m *Memory) Bunpin(buf interfaces.Buf) {
	b, ok := buf.(*buffer)
	if !ok {
		return
	}
	m.mu.Lock()
	if b.refcnt > 0 {
		b.refcnt--
	}
	m.mu.Unlock()
}

// Brelse implements interfaces.BlockCacher. It marks buf as most-recently
// used; it does not affect the pin refcount.
func (m *Memory) Brelse(buf interfaces.Buf) {
	b, ok := buf.(*buffer)
	if !ok {
		return
	}
	m.mu.Lock()
	if el, ok := m.entries[b.key]; ok {
		m.lru.MoveToFront(el)
	}
	m.mu.Unlock()
}

// Close implements interfaces.BlockCacher.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.disk = nil
	m.lru = nil
	return nil
}

var _ interfaces.BlockCacher = (*Memory)(nil)
