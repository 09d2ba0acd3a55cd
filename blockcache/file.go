package blockcache

import (
	"container/list"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/jjacobson3/go-journal/internal/interfaces"
)

// File is a durable, single-device block cache backed by a regular file,
// using positioned reads/writes via golang.org/x/sys/unix (Pread/Pwrite/
// Fdatasync without moving the file offset, Fallocate to pre-size the log
// region) rather than the higher-level os package helpers.
//
// A fresh File opened over an existing path starts with an empty in-memory
// cache — exactly like rebooting a real machine discards RAM but not disk
// contents — which is what makes it suitable for crash-injection tests:
// discard a *File (and the *journal.Journal built on it) without closing
// cleanly, then Open a new *File over the same path and run recovery.
type File struct {
	mu        sync.Mutex
	f         *os.File
	fd        int
	dev       uint32
	blockSize int
	capacity  int
	entries   map[bufKey]*list.Element
	lru       *list.List
}

// Open opens or creates path as the backing store for device id dev.
// totalBlocks, if > 0, is used to Fallocate the file up front so later
// writes never need to grow it; cacheCapacity bounds the number of blocks
// held resident in RAM at once (LRU eviction, identical policy to Memory).
func Open(path string, dev uint32, blockSize, totalBlocks, cacheCapacity int) (*File, error) {
	if blockSize <= 0 {
		blockSize = 512
	}
	if cacheCapacity <= 0 {
		cacheCapacity = 64
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("blockcache: open %s: %w", path, err)
	}

	fd := int(f.Fd())
	if totalBlocks > 0 {
		size := int64(totalBlocks) * int64(blockSize)
		// Best-effort: some filesystems (tmpfs on old kernels, some CI
		// overlay fs) don't support fallocate; fall back silently since
		// Pwrite will grow the file on demand anyway.
		_ = unix.Fallocate(fd, 0, 0, size)
	}

	return &File{
		f:         f,
		fd:        fd,
		dev:       dev,
		blockSize: blockSize,
		capacity:  cacheCapacity,
		entries:   make(map[bufKey]*list.Element),
		lru:       list.New(),
	}, nil
}

func (fc *File) checkDev(dev uint32) error {
	if dev != fc.dev {
		return fmt.Errorf("blockcache: file cache opened for dev %d, got dev %d", fc.dev, dev)
	}
	return nil
}

func (fc *File) offset(blockno uint64) int64 {
	return int64(blockno) * int64(fc.blockSize)
}

// Bread implements interfaces.BlockCacher.
func (fc *File) Bread(dev uint32, blockno uint64) (interfaces.Buf, error) {
	if err := fc.checkDev(dev); err != nil {
		return nil, err
	}

	fc.mu.Lock()
	defer fc.mu.Unlock()

	key := bufKey{dev, blockno}
	if el, ok := fc.entries[key]; ok {
		fc.lru.MoveToFront(el)
		return el.Value.(*buffer), nil
	}

	if err := fc.evictLocked(); err != nil {
		return nil, err
	}

	data := make([]byte, fc.blockSize)
	n, err := unix.Pread(fc.fd, data, fc.offset(blockno))
	if err != nil {
		return nil, fmt.Errorf("blockcache: pread block %d: %w", blockno, err)
	}
	// Short/zero read past current EOF just means the block has never been
	// written; data is left zero-filled, matching a freshly allocated disk.
	_ = n

	buf := &buffer{key: key, data: data}
	el := fc.lru.PushFront(buf)
	fc.entries[key] = el
	return buf, nil
}

func (fc *File) evictLocked() error {
	if len(fc.entries) < fc.capacity {
		return nil
	}
	for el := fc.lru.Back(); el != nil; el = el.Prev() {
		b := el.Value.(*buffer)
		if b.refcnt == 0 {
			fc.lru.Remove(el)
			delete(fc.entries, b.key)
			return nil
		}
	}
	return fmt.Errorf("blockcache: no unpinned buffer to evict (capacity=%d, all pinned)", fc.capacity)
}

// Bwrite implements interfaces.BlockCacher: writes buf through to the
// backing file and fsyncs its data before returning, so that once Bwrite
// returns, the write point is durable against an immediate crash.
func (fc *File) Bwrite(buf interfaces.Buf) error {
	b, ok := buf.(*buffer)
	if !ok {
		return fmt.Errorf("blockcache: foreign buffer handle")
	}
	if _, err := unix.Pwrite(fc.fd, b.data, fc.offset(b.key.blockno)); err != nil {
		return fmt.Errorf("blockcache: pwrite block %d: %w", b.key.blockno, err)
	}
	if err := unix.Fdatasync(fc.fd); err != nil {
		return fmt.Errorf("blockcache: fdatasync block %d: %w", b.key.blockno, err)
	}
	return nil
}

// Bpin implements interfaces.BlockCacher.
func (fc *File) Bpin(buf interfaces.Buf) {
	b, ok := buf.(*buffer)
	if !ok {
		return
	}
	fc.mu.Lock()
	b.refcnt++
	fc.mu.Unlock()
}

// Bunpin implements interfaces.BlockCacher.
func (fc *File) Bunpin(buf interfaces.Buf) {
	b, ok := buf.(*buffer)
	if !ok {
		return
	}
	fc.mu.Lock()
	if b.refcnt > 0 {
		b.refcnt--
	}
	fc.mu.Unlock()
}

// Brelse implements interfaces.BlockCacher.
func (fc *File) Brelse(buf interfaces.Buf) {
	b, ok := buf.(*buffer)
	if !ok {
		return
	}
	fc.mu.Lock()
	if el, ok := fc.entries[b.key]; ok {
		fc.lru.MoveToFront(el)
	}
	fc.mu.Unlock()
}

// Close implements interfaces.BlockCacher.
func (fc *File) Close() error {
	return fc.f.Close()
}

var _ interfaces.BlockCacher = (*File)(nil)
