package journal

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeSlotOnDisk hand-writes a slot's header and log payload blocks
// directly through the mock cache, bypassing the Journal API, to simulate
// on-disk state left behind by a crash at a specific instruction boundary.
func writeSlotOnDisk(t *testing.T, bc *MockBlockCache, spec slotSpec, logSize int, seq uint64, blocks map[uint64][]byte) {
	t.Helper()

	h := newHeader(logSize)
	h.seqNbr = seq
	i := 0
	for blockno, data := range blocks {
		h.block[i] = blockno
		logBlockno := spec.start + 1 + uint64(i)
		lb, err := bc.Bread(0, logBlockno)
		require.NoError(t, err)
		copy(lb.Data(), data)
		require.NoError(t, bc.Bwrite(lb))
		i++
	}
	h.n = int32(i)

	hb, err := bc.Bread(0, spec.start)
	require.NoError(t, err)
	h.marshal(hb.Data())
	require.NoError(t, bc.Bwrite(hb))
}

// Crash between write_head(n>0) and install_trans. Recovery must install
// the logged blocks and clear the header.
func TestRecoveryAfterCrashBeforeInstall(t *testing.T) {
	bc := NewMockBlockCache(BSize)
	layout := layoutSlots(0, 2*(8+1), 2)

	writeSlotOnDisk(t, bc, layout[0], 8, 1, map[uint64][]byte{
		400: append([]byte{0xAA}, make([]byte, BSize-1)...),
	})

	n, err := Recover(bc, 0, layout, 8, BSize)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte(0xAA), bc.BlockAt(0, 400)[0])

	// Header must read back as cleared.
	hb, err := bc.Bread(0, layout[0].start)
	require.NoError(t, err)
	h := newHeader(8)
	require.NoError(t, h.unmarshal(hb.Data()))
	require.Zero(t, h.n)
}

// Crash between install_trans and the final write_head(n=0). The
// destination already holds the new value; recovery re-installs
// (idempotent) and clears the header.
func TestRecoveryAfterCrashBeforeHeaderClear(t *testing.T) {
	bc := NewMockBlockCache(BSize)
	layout := layoutSlots(0, 2*(8+1), 2)

	data := append([]byte{0xBB}, make([]byte, BSize-1)...)
	writeSlotOnDisk(t, bc, layout[0], 8, 1, map[uint64][]byte{401: data})

	// Simulate install_trans having already run: destination already equals
	// the logged payload, header is still n>0.
	dst, err := bc.Bread(0, 401)
	require.NoError(t, err)
	copy(dst.Data(), data)
	require.NoError(t, bc.Bwrite(dst))

	n, err := Recover(bc, 0, layout, 8, BSize)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, byte(0xBB), bc.BlockAt(0, 401)[0])
}

// A header with n==0 is absent for recovery purposes, regardless of
// residual log payload bytes left over from a prior transaction.
func TestRecoveryIgnoresEmptyHeader(t *testing.T) {
	bc := NewMockBlockCache(BSize)
	layout := layoutSlots(0, 2*(8+1), 2)

	n, err := Recover(bc, 0, layout, 8, BSize)
	require.NoError(t, err)
	require.Zero(t, n)
}

// Multiple committed slots install in ascending sequence-number order.
func TestRecoveryInstallsInSequenceOrder(t *testing.T) {
	bc := NewMockBlockCache(BSize)
	layout := layoutSlots(0, 3*(8+1), 3)

	writeSlotOnDisk(t, bc, layout[2], 8, 5, map[uint64][]byte{500: {1}})
	writeSlotOnDisk(t, bc, layout[0], 8, 3, map[uint64][]byte{501: {2}})
	writeSlotOnDisk(t, bc, layout[1], 8, 4, map[uint64][]byte{502: {3}})

	n, err := Recover(bc, 0, layout, 8, BSize)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, byte(1), bc.BlockAt(0, 500)[0])
	require.Equal(t, byte(2), bc.BlockAt(0, 501)[0])
	require.Equal(t, byte(3), bc.BlockAt(0, 502)[0])
}

// Open runs recovery before returning, so a journal reopened over
// crash-state disk content starts with already-installed destinations.
func TestOpenRunsRecovery(t *testing.T) {
	bc := NewMockBlockCache(BSize)
	layout := layoutSlots(0, 2*(8+1), 2)
	writeSlotOnDisk(t, bc, layout[0], 8, 1, map[uint64][]byte{
		600: append([]byte{0xCC}, make([]byte, BSize-1)...),
	})

	params := DefaultParams(bc)
	params.LogCopies = 2
	params.LogSize = 8
	j, err := Open(context.Background(), params)
	require.NoError(t, err)
	require.NotNil(t, j)
	require.Equal(t, byte(0xCC), bc.BlockAt(0, 600)[0])
}
