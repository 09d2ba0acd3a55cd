// Package interfaces provides internal interface definitions for go-journal.
// These are separate from the root journal/pipe packages to avoid circular
// imports between them and the internal packages they depend on.
package interfaces

// Buf is a handle to one in-cache disk block. Implementations hand these
// out from Bread and expect them back on Bwrite/Bpin/Bunpin/Brelse.
type Buf interface {
	// Block returns the device block number this buffer holds.
	Block() uint64

	// Data returns the block's in-cache contents. The slice has length
	// equal to the cache's configured block size and is safe to read and
	// write while the caller holds the handle.
	Data() []byte
}

// BlockCacher is the external block-cache collaborator: read/write/pin/
// unpin/release of disk blocks, with its own internal locking. The journal
// only ever consumes this interface; it never reimplements cache eviction
// or coherency itself. Implemented by blockcache.Memory, blockcache.File,
// and journal.MockBlockCache.
type BlockCacher interface {
	// Bread returns the buffer for block b, reading it from the underlying
	// device into the cache if it is not already resident. Blocking.
	Bread(dev uint32, blockno uint64) (Buf, error)

	// Bwrite flushes buf's current contents to the underlying device
	// synchronously.
	Bwrite(buf Buf) error

	// Bpin increments buf's refcount so it cannot be evicted until a
	// matching Bunpin.
	Bpin(buf Buf)

	// Bunpin decrements buf's refcount, permitting eviction once it reaches
	// zero.
	Bunpin(buf Buf)

	// Brelse releases a buffer handle obtained from Bread. It does not
	// affect the pin refcount.
	Brelse(buf Buf)

	// Close releases any resources (file descriptors, mmap'd regions) held
	// by the cache.
	Close() error
}

// BatchBlockCacher is an optional capability a BlockCacher may implement:
// write every buf in one batched operation instead of one Bwrite call per
// block. The journal type-asserts for this interface at the commit point
// and falls back to a plain per-block Bwrite loop when it is absent, the
// same upgrade pattern as io.ReaderFrom/io.WriterTo in the standard
// library.
type BatchBlockCacher interface {
	BwriteBatch(bufs []Buf) error
}

// Logger is the logging sink consumed by journal and pipe code. Satisfied
// by *logging.Logger.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
