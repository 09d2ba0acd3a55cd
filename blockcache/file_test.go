package blockcache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jjacobson3/go-journal/internal/interfaces"
)

func TestFileReadWriteDurable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.img")

	fc, err := Open(path, 0, 512, 64, 8)
	require.NoError(t, err)

	buf, err := fc.Bread(0, 5)
	require.NoError(t, err)
	copy(buf.Data(), []byte("durable"))
	require.NoError(t, fc.Bwrite(buf))
	fc.Brelse(buf)
	require.NoError(t, fc.Close())
}

// Reopening a fresh *File over the same path simulates a reboot: RAM-side
// cache state is gone, but data already flushed through Bwrite persists.
func TestFileSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.img")

	fc, err := Open(path, 0, 512, 64, 8)
	require.NoError(t, err)
	buf, err := fc.Bread(0, 7)
	require.NoError(t, err)
	copy(buf.Data(), []byte("crash-safe"))
	require.NoError(t, fc.Bwrite(buf))
	// No Close — simulate a crash that never unmounts cleanly.

	reopened, err := Open(path, 0, 512, 64, 8)
	require.NoError(t, err)
	require.Empty(t, reopened.entries, "a fresh File must start with an empty in-memory cache")

	buf2, err := reopened.Bread(0, 7)
	require.NoError(t, err)
	require.Equal(t, []byte("crash-safe"), buf2.Data()[:len("crash-safe")])
}

func TestFileWrongDevRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.img")
	fc, err := Open(path, 3, 512, 64, 8)
	require.NoError(t, err)

	_, err = fc.Bread(9, 0)
	require.Error(t, err)
}

func TestFileBwriteBatchWritesEveryBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.img")
	fc, err := Open(path, 0, 512, 64, 8)
	require.NoError(t, err)

	b1, err := fc.Bread(0, 1)
	require.NoError(t, err)
	copy(b1.Data(), []byte("one"))

	b2, err := fc.Bread(0, 2)
	require.NoError(t, err)
	copy(b2.Data(), []byte("two"))

	require.NoError(t, fc.BwriteBatch([]interfaces.Buf{b1, b2}))
	fc.Brelse(b1)
	fc.Brelse(b2)

	reopened, err := Open(path, 0, 512, 64, 8)
	require.NoError(t, err)
	rb1, err := reopened.Bread(0, 1)
	require.NoError(t, err)
	require.Equal(t, []byte("one"), rb1.Data()[:3])
	rb2, err := reopened.Bread(0, 2)
	require.NoError(t, err)
	require.Equal(t, []byte("two"), rb2.Data()[:3])
}

func TestFilePinnedBlockNotEvicted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.img")
	fc, err := Open(path, 0, 512, 64, 1)
	require.NoError(t, err)

	buf, err := fc.Bread(0, 1)
	require.NoError(t, err)
	fc.Bpin(buf)

	_, err = fc.Bread(0, 2)
	require.Error(t, err)

	fc.Bunpin(buf)
	fc.Brelse(buf)
	_, err = fc.Bread(0, 2)
	require.NoError(t, err)
}
