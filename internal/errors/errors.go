// Package errors defines errors shared by engine packages. It builds on
// github.com/cockroachdb/errors so that marks and types survive wrapping.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotFound           = errors.New("lsmtail: key not found")
	ErrDBClosed           = errors.New("lsmtail: db closed")
	ErrIteratorClosed     = errors.New("lsmtail: iterator closed")
	ErrCorruptWriteBatch  = errors.New("lsmtail: corrupt write batch")
	ErrCorruptInternalKey = errors.New("lsmtail: corrupt internal key")
	ErrCorruptBlock       = errors.New("lsmtail: corrupt block")
	ErrBatchTooManyWrites = errors.New("lsmtail: too many writes in one batch")

	// ErrIncomplete reports that a read needs I/O the read tier forbids.
	ErrIncomplete = errors.New("lsmtail: incomplete, read requires io")

	// ErrNotSupported reports an operation a reader does not implement.
	ErrNotSupported = errors.New("lsmtail: operation not supported")
)

// New, Newf, Wrap, Wrapf, Is and As forward to cockroachdb/errors so callers
// need only this package.
var (
	New   = errors.New
	Newf  = errors.Newf
	Wrap  = errors.Wrap
	Wrapf = errors.Wrapf
	Is    = errors.Is
	As    = errors.As
)

// CorruptionError describes corrupted data in a table file.
type CorruptionError struct {
	FileNumber uint64
	Offset     int64
	Category   string
	Reason     string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("lsmtail: corrupt %s in file %06d at %d: %s", e.Category, e.FileNumber, e.Offset, e.Reason)
}

// NewCorruption returns a CorruptionError with a stack trace attached.
func NewCorruption(fileNumber uint64, category string, offset int64, reason string) error {
	return errors.WithStack(&CorruptionError{FileNumber: fileNumber, Offset: offset, Category: category, Reason: reason})
}

// IsCorrupt reports whether err is caused by corrupted data.
func IsCorrupt(err error) bool {
	return err != nil && (errors.HasType(err, (*CorruptionError)(nil)) || errors.IsAny(err, ErrCorruptInternalKey, ErrCorruptWriteBatch, ErrCorruptBlock))
}

// MarkIncomplete marks err so that IsIncomplete recognizes it.
func MarkIncomplete(err error) error {
	return errors.Mark(err, ErrIncomplete)
}

// IsIncomplete reports whether err came from a cache-only read missing the cache.
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrIncomplete)
}

// IsNotSupported reports whether err is ErrNotSupported.
func IsNotSupported(err error) bool {
	return errors.Is(err, ErrNotSupported)
}

// FirstError returns the first non-nil error.
func FirstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
