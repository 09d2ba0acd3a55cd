package journal

import (
	"errors"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStructuredError(t *testing.T) {
	err := NewError("BeginOp", ErrCodeInvalidConfig, "TotalLogBlocks too small for LogCopies")

	assert.Equal(t, "BeginOp", err.Op)
	assert.Equal(t, ErrCodeInvalidConfig, err.Code)
	assert.Equal(t, "journal: TotalLogBlocks too small for LogCopies", err.Error())
}

func TestSlotError(t *testing.T) {
	err := NewSlotError("LogWrite", 2, ErrCodeNotInTransaction, "log_write outside a transaction")

	assert.Equal(t, 2, err.Slot)
	assert.Equal(t, "journal: log_write outside a transaction (slot=2)", err.Error())
}

func TestWrapError(t *testing.T) {
	inner := syscall.ENOENT
	err := WrapError("Recover", inner)

	require.NotNil(t, err)
	assert.Equal(t, ErrCodeIOError, err.Code)
	assert.Equal(t, syscall.ENOENT, err.Errno)
	assert.True(t, errors.Is(err, syscall.ENOENT))
}

func TestWrapErrorNilPassthrough(t *testing.T) {
	assert.Nil(t, WrapError("EndOp", nil))
}

func TestWrapErrorPreservesJournalError(t *testing.T) {
	inner := NewSlotError("LogWrite", 1, ErrCodeTooManyBlocks, "transaction exceeds LogSize")
	wrapped := WrapError("EndOp", inner)

	assert.Equal(t, ErrCodeTooManyBlocks, wrapped.Code)
	assert.Equal(t, 1, wrapped.Slot)
}

func TestSentinelComparison(t *testing.T) {
	var err error = NewError("Open", ErrCodeClosed, "journal is closed")
	assert.True(t, errors.Is(err, ErrClosed))
	assert.False(t, errors.Is(err, ErrPoolExhausted))
}

func TestIsCode(t *testing.T) {
	err := NewError("Recover", ErrCodeCorruptHeader, "block smaller than header layout")

	assert.True(t, IsCode(err, ErrCodeCorruptHeader))
	assert.False(t, IsCode(err, ErrCodeIOError))
	assert.False(t, IsCode(nil, ErrCodeCorruptHeader))
}
