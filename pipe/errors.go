// Package pipe implements a bounded blocking byte pipe: a fixed-size ring
// buffer shared by one reader and one writer endpoint, with
// condition-variable blocking standing in for a kernel's sleep/wakeup on
// distinct read-side and write-side wait channels.
package pipe

import "fmt"

// ErrCode classifies pipe errors for errors.Is comparisons.
type ErrCode string

const (
	ErrCodePeerClosed ErrCode = "peer endpoint closed"
	ErrCodeClosed      ErrCode = "this endpoint already closed"
)

// Error is a structured pipe error.
type Error struct {
	Op   string
	Code ErrCode
	Msg  string
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("pipe: %s (op=%s)", e.Msg, e.Op)
	}
	return fmt.Sprintf("pipe: %s", e.Msg)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// ErrReaderClosed is returned by Write once the reader endpoint has closed;
// no further bytes can ever be consumed.
var ErrReaderClosed = &Error{Op: "write", Code: ErrCodePeerClosed, Msg: "reader closed"}

// ErrWriteAfterClose is returned by Write on an already-closed writer.
var ErrWriteAfterClose = &Error{Op: "write", Code: ErrCodeClosed, Msg: "writer already closed"}

// ErrReadAfterClose is returned by Read on an already-closed reader.
var ErrReadAfterClose = &Error{Op: "read", Code: ErrCodeClosed, Msg: "reader already closed"}
