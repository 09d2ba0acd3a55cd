package journal

import (
	"sort"

	"github.com/jjacobson3/go-journal/internal/interfaces"
)

// Recover runs once at boot, before any BeginOp: every slot's header is
// read, those with n > 0 are replayed in ascending seqNbr order (installing
// exactly the prefix of transactions whose commit point made it to disk),
// and each replayed header is cleared afterward. A slot with n == 0 is
// absent for recovery purposes regardless of residual payload bytes, so
// there is no ring-window arithmetic and no corrupt-ring-position branch:
// any subset of committed headers sorts into a valid install order. A header
// block of the wrong size is reported as ErrCodeCorruptHeader. Returns the
// number of slots replayed.
func Recover(bc interfaces.BlockCacher, dev uint32, layout []slotSpec, logSize int, blockSize int) (int, error) {
	type recSlot struct {
		spec slotSpec
		hdr  header
	}

	recs := make([]recSlot, len(layout))
	for i, spec := range layout {
		hb, err := bc.Bread(dev, spec.start)
		if err != nil {
			return 0, WrapError("Recover", err)
		}
		if len(hb.Data()) != blockSize {
			bc.Brelse(hb)
			return 0, NewSlotError("Recover", i, ErrCodeCorruptHeader, "block cache returned an unexpected block size")
		}
		h := newHeader(logSize)
		uerr := h.unmarshal(hb.Data())
		bc.Brelse(hb)
		if uerr != nil {
			return 0, WrapError("Recover", uerr)
		}
		recs[i] = recSlot{spec: spec, hdr: h}
	}

	var toInstall []int
	for i, r := range recs {
		if r.hdr.n > 0 {
			toInstall = append(toInstall, i)
		}
	}
	if len(toInstall) == 0 {
		return 0, nil
	}

	sort.Slice(toInstall, func(a, b int) bool {
		return recs[toInstall[a]].hdr.seqNbr < recs[toInstall[b]].hdr.seqNbr
	})

	for _, idx := range toInstall {
		r := &recs[idx]

		for i := 0; i < int(r.hdr.n); i++ {
			logBlockno := r.spec.start + 1 + uint64(i)

			lb, err := bc.Bread(dev, logBlockno)
			if err != nil {
				return 0, WrapError("Recover", err)
			}
			dst, err := bc.Bread(dev, r.hdr.block[i])
			if err != nil {
				bc.Brelse(lb)
				return 0, WrapError("Recover", err)
			}
			copy(dst.Data(), lb.Data())
			werr := bc.Bwrite(dst)
			bc.Brelse(lb)
			bc.Brelse(dst)
			if werr != nil {
				return 0, WrapError("Recover", werr)
			}
		}

		hb, err := bc.Bread(dev, r.spec.start)
		if err != nil {
			return 0, WrapError("Recover", err)
		}
		r.hdr.reset()
		r.hdr.marshal(hb.Data())
		werr := bc.Bwrite(hb)
		bc.Brelse(hb)
		if werr != nil {
			return 0, WrapError("Recover", werr)
		}
	}

	return len(toInstall), nil
}
