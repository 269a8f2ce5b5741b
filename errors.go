package lsmtail

import "github.com/kezhuw/lsmtail/internal/errors"

var (
	ErrNotFound       = errors.ErrNotFound // key not found
	ErrDBClosed       = errors.ErrDBClosed
	ErrIteratorClosed = errors.ErrIteratorClosed
	ErrIncomplete     = errors.ErrIncomplete
	ErrNotSupported   = errors.ErrNotSupported
)

// IsCorrupt returns a boolean indicating whether the error is a corruption error.
func IsCorrupt(err error) bool {
	return errors.IsCorrupt(err)
}

// IsIncomplete reports whether err tells that an operation needed I/O it
// was not allowed to do, or would have stalled.
func IsIncomplete(err error) bool {
	return errors.IsIncomplete(err)
}
