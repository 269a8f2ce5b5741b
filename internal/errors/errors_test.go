package errors_test

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kezhuw/lsmtail/internal/errors"
)

func TestCorruption(t *testing.T) {
	err := errors.NewCorruption(7, "block", 128, "checksum mismatch")
	assert.True(t, errors.IsCorrupt(err))
	assert.True(t, errors.IsCorrupt(errors.Wrapf(err, "open table %d", 7)))
	assert.Contains(t, err.Error(), "000007")
	assert.False(t, errors.IsCorrupt(io.EOF))
	assert.False(t, errors.IsCorrupt(nil))
	assert.True(t, errors.IsCorrupt(errors.Wrap(errors.ErrCorruptBlock, "entry")))
}

func TestIncompleteMark(t *testing.T) {
	err := errors.MarkIncomplete(errors.Newf("block %d not cached", 3))
	assert.True(t, errors.IsIncomplete(err))
	assert.True(t, errors.IsIncomplete(errors.Wrap(err, "seek")))
	assert.False(t, errors.IsIncomplete(io.ErrUnexpectedEOF))
	assert.False(t, errors.IsCorrupt(err))
}

func TestFirstError(t *testing.T) {
	assert.Nil(t, errors.FirstError(nil, nil))
	assert.Equal(t, io.EOF, errors.FirstError(nil, io.EOF, io.ErrClosedPipe))
	assert.True(t, errors.IsNotSupported(errors.Wrap(errors.ErrNotSupported, "prev")))
}
