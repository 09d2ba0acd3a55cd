package journal

import (
	"encoding/binary"
	"sync"

	"github.com/jjacobson3/go-journal/internal/interfaces"
)

// header is a log slot's on-disk header: how many blocks are part of the
// current transaction, which destination block each logged entry belongs
// to, and the sequence number stamped in at commit time. All integers are
// little-endian for a stable on-disk layout independent of host byte order.
type header struct {
	n      int32
	seqNbr uint64
	block  []uint64
}

func newHeader(logSize int) header {
	return header{block: make([]uint64, logSize)}
}

func (h *header) reset() {
	h.n = 0
	h.seqNbr = 0
	for i := range h.block {
		h.block[i] = 0
	}
}

// indexOf returns the header index already recording blockno, for
// absorption: repeated log_write on one block within a transaction
// must yield exactly one header entry.
func (h *header) indexOf(blockno uint64) (int, bool) {
	for i := 0; i < int(h.n); i++ {
		if h.block[i] == blockno {
			return i, true
		}
	}
	return 0, false
}

// headerWireSize returns the number of bytes marshal/unmarshal occupy for
// a header with the given logSize; callers must have BlockSize >=
// headerWireSize(logSize) so a header always fits in one disk block.
func headerWireSize(logSize int) int {
	return 4 + 8 + 8*logSize
}

func (h *header) marshal(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.n))
	binary.LittleEndian.PutUint64(buf[4:12], h.seqNbr)
	off := 12
	for i := range h.block {
		binary.LittleEndian.PutUint64(buf[off:off+8], h.block[i])
		off += 8
	}
}

func (h *header) unmarshal(buf []byte) error {
	want := headerWireSize(len(h.block))
	if len(buf) < want {
		return NewError("unmarshal header", ErrCodeCorruptHeader, "block smaller than header layout")
	}
	h.n = int32(binary.LittleEndian.Uint32(buf[0:4]))
	h.seqNbr = binary.LittleEndian.Uint64(buf[4:12])
	off := 12
	for i := range h.block {
		h.block[i] = binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
	}
	return nil
}

// slot is one of the LogCopies on-disk log regions. Its mutex protects
// outstanding, committing, and header mutation, and is always acquired
// after the owning pool's mutex, never before.
type slot struct {
	mu sync.Mutex

	idx   int
	start uint64 // disk block number of this slot's header block
	size  int    // blocks reserved for this slot, including the header block
	dev   uint32

	outstanding int
	committing  bool
	hdr         header

	// bufs holds the pinned buffer for each logged entry, in the same
	// order as hdr.block[0:n]. Populated by LogWrite, drained by
	// installTrans. Only ever touched by the slot's single current
	// committer once committing is true, so it needs no lock during
	// commitAndInstall.
	bufs []interfaces.Buf

	// logger is scoped to this slot's index (e.g. "journal.slot-2") so its
	// admission/absorption/commit lines are traceable to the slot that
	// produced them without threading the index through every log call.
	logger interfaces.Logger
}

func newSlot(idx int, start uint64, size int, dev uint32, logSize int, logger interfaces.Logger) *slot {
	return &slot{idx: idx, start: start, size: size, dev: dev, hdr: newHeader(logSize), logger: logger}
}

// slotSpec describes one slot's position in the journal's on-disk region.
type slotSpec struct {
	start uint64
	size  int
}

// layoutSlots divides totalLogBlocks evenly among logCopies slots starting
// at logStart. Used identically by Open (to build the in-memory slot array)
// and Recover (to know where each slot's header and log payload blocks
// live on disk), so the two always agree on slot boundaries.
func layoutSlots(logStart uint64, totalLogBlocks, logCopies int) []slotSpec {
	if logCopies <= 0 {
		return nil
	}
	perSlot := totalLogBlocks / logCopies
	if perSlot < 2 {
		return nil
	}
	specs := make([]slotSpec, logCopies)
	for i := 0; i < logCopies; i++ {
		specs[i] = slotSpec{start: logStart + uint64(i*perSlot), size: perSlot}
	}
	return specs
}
