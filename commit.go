package journal

import "github.com/jjacobson3/go-journal/internal/interfaces"

// commitAndInstall runs the three phases of a commit for a slot that has
// just become its committer and has been granted its turn in sequence
// order: writeLogAndCommit (write_log plus the commit-point header write,
// batched into one block-cache round trip when the cache supports it),
// install_trans, and write_head(n=0) to clear the slot. It holds no lock —
// the underlying block-cache calls may block on real I/O.
func (j *Journal) commitAndInstall(s *slot) error {
	if err := j.writeLogAndCommit(s); err != nil {
		return err
	}
	if err := j.installTrans(s); err != nil {
		return err
	}
	if err := j.writeHeadClear(s); err != nil {
		return err
	}
	return nil
}

// writeLogAndCommit copies each logged block's current pinned contents into
// its log region payload block, marshals the header with n>0 into the
// header block, and writes every one of those blocks through to the device
// as a single batch when j.bc implements interfaces.BatchBlockCacher,
// falling back to one Bwrite per block otherwise. The header write only
// becomes durable alongside the log payload it describes, never before it,
// whether or not the batch path is in use: it is appended to the same
// bufs slice and goes out in the same call (or the same loop) as the log
// blocks, so there is no window where a torn write could leave the header
// committed with a truncated log. Home locations are untouched until
// installTrans.
func (j *Journal) writeLogAndCommit(s *slot) error {
	n := int(s.hdr.n)
	bufs := make([]interfaces.Buf, 0, n+1)

	for i := 0; i < n; i++ {
		logBlockno := s.start + 1 + uint64(i)
		lb, err := j.bc.Bread(s.dev, logBlockno)
		if err != nil {
			j.brelseAll(bufs)
			return WrapError("write_log", err)
		}
		copy(lb.Data(), s.bufs[i].Data())
		bufs = append(bufs, lb)
	}

	hb, err := j.bc.Bread(s.dev, s.start)
	if err != nil {
		j.brelseAll(bufs)
		return WrapError("write_head", err)
	}
	s.hdr.marshal(hb.Data())
	bufs = append(bufs, hb)

	if batcher, ok := j.bc.(interfaces.BatchBlockCacher); ok {
		if err := batcher.BwriteBatch(bufs); err != nil {
			j.brelseAll(bufs)
			return WrapError("write_log", err)
		}
	} else {
		for _, b := range bufs {
			if err := j.bc.Bwrite(b); err != nil {
				j.brelseAll(bufs)
				return WrapError("write_log", err)
			}
		}
	}

	j.brelseAll(bufs)
	return nil
}

func (j *Journal) brelseAll(bufs []interfaces.Buf) {
	for _, b := range bufs {
		j.bc.Brelse(b)
	}
}

// writeHeadClear rewrites s's header block with n=0, releasing the slot
// once install has completed.
func (j *Journal) writeHeadClear(s *slot) error {
	hb, err := j.bc.Bread(s.dev, s.start)
	if err != nil {
		return WrapError("write_head", err)
	}

	s.hdr.reset()
	s.hdr.marshal(hb.Data())

	if err := j.bc.Bwrite(hb); err != nil {
		j.bc.Brelse(hb)
		return WrapError("write_head", err)
	}
	j.bc.Brelse(hb)
	return nil
}

// installTrans copies each log region payload block to its destination
// block number and flushes it, then unpins the destination (it was pinned
// by LogWrite to survive exactly until this point).
func (j *Journal) installTrans(s *slot) error {
	for i := 0; i < int(s.hdr.n); i++ {
		dst := s.bufs[i]
		logBlockno := s.start + 1 + uint64(i)

		lb, err := j.bc.Bread(s.dev, logBlockno)
		if err != nil {
			return WrapError("install_trans", err)
		}
		copy(dst.Data(), lb.Data())
		if err := j.bc.Bwrite(dst); err != nil {
			j.bc.Brelse(lb)
			return WrapError("install_trans", err)
		}
		j.bc.Brelse(lb)

		j.bc.Bunpin(dst)
		j.bc.Brelse(dst)
	}
	s.bufs = s.bufs[:0]
	return nil
}
