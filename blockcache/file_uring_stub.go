//go:build !giouring

package blockcache

import "github.com/jjacobson3/go-journal/internal/interfaces"

// BwriteBatch implements interfaces.BatchBlockCacher for File without the
// giouring build tag: it writes each buf through fc.Bwrite in order (one
// pwrite plus fdatasync per block), the same cost as if the journal had
// never batched the calls at all. Build with `-tags giouring` on Linux for
// the path that submits a commit's writes with a single io_uring_enter.
func (fc *File) BwriteBatch(bufs []interfaces.Buf) error {
	for _, b := range bufs {
		if err := fc.Bwrite(b); err != nil {
			return err
		}
	}
	return nil
}

var _ interfaces.BatchBlockCacher = (*File)(nil)
