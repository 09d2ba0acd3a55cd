package blockcache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMemoryReadWriteRoundTrip(t *testing.T) {
	m := NewMemory(512, 4)

	buf, err := m.Bread(0, 10)
	require.NoError(t, err)
	copy(buf.Data(), []byte("hello"))
	require.NoError(t, m.Bwrite(buf))
	m.Brelse(buf)

	buf2, err := m.Bread(0, 10)
	require.NoError(t, err)
	require.Equal(t, byte('h'), buf2.Data()[0])
}

func TestMemoryUnwrittenBlockIsZeroFilled(t *testing.T) {
	m := NewMemory(64, 4)
	buf, err := m.Bread(0, 1)
	require.NoError(t, err)
	for _, b := range buf.Data() {
		require.Zero(t, b)
	}
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMemory(64, 2)

	b1, err := m.Bread(0, 1)
	require.NoError(t, err)
	m.Brelse(b1)
	b2, err := m.Bread(0, 2)
	require.NoError(t, err)
	m.Brelse(b2)

	// Touch block 1 so it's most-recently-used; reading a third distinct
	// block must evict block 2, not block 1.
	_, err = m.Bread(0, 1)
	require.NoError(t, err)
	m.Brelse(b1)

	_, err = m.Bread(0, 3)
	require.NoError(t, err)

	require.Len(t, m.entries, 2)
	_, stillCached := m.entries[bufKey{0, 1}]
	require.True(t, stillCached, "recently touched block 1 must survive eviction")
	_, evicted := m.entries[bufKey{0, 2}]
	require.False(t, evicted, "least-recently-used block 2 must be evicted")
}

func TestMemoryPinnedBlockNotEvicted(t *testing.T) {
	m := NewMemory(64, 1)

	buf, err := m.Bread(0, 1)
	require.NoError(t, err)
	m.Bpin(buf)

	_, err = m.Bread(0, 2)
	require.Error(t, err, "capacity 1 with the only entry pinned must fail to evict")

	m.Bunpin(buf)
	m.Brelse(buf)
	_, err = m.Bread(0, 2)
	require.NoError(t, err, "unpinned, eviction should now succeed")
}

func TestMemoryClose(t *testing.T) {
	m := NewMemory(64, 4)
	require.NoError(t, m.Close())
}
