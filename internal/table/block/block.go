// Package block encodes and decodes the sorted blocks tables are made of.
package block

import (
	"encoding/binary"

	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/iterator"
	"github.com/kezhuw/lsmtail/internal/keys"
)

// ErrCorruptBlock reports malformed block contents.
var ErrCorruptBlock = errors.ErrCorruptBlock

// Block is a decoded, immutable block.
type Block struct {
	err            error
	contents       []byte
	restartsOffset uint32
	restartsNumber uint32
}

// New validates contents and wraps them. A malformed block yields a Block
// whose iterators fail with ErrCorruptBlock.
func New(contents []byte) *Block {
	n := uint32(len(contents))
	if n < 4 {
		return &Block{err: ErrCorruptBlock}
	}
	restarts := binary.LittleEndian.Uint32(contents[n-4:])
	if restarts == 0 || (n-4)/4 < restarts {
		return &Block{err: ErrCorruptBlock}
	}
	offset := n - 4 - 4*restarts
	prev := uint32(0)
	for i := uint32(0); i < restarts; i++ {
		restart := binary.LittleEndian.Uint32(contents[offset+4*i:])
		if restart > offset || (i != 0 && restart <= prev) {
			return &Block{err: ErrCorruptBlock}
		}
		prev = restart
	}
	return &Block{contents: contents, restartsOffset: offset, restartsNumber: restarts}
}

// Size returns the size of the block contents.
func (b *Block) Size() int {
	return len(b.contents)
}

// Err returns the validation error, if any.
func (b *Block) Err() error {
	return b.err
}

// NewIterator returns an iterator over the entries ordered by cmp.
func (b *Block) NewIterator(cmp keys.Comparer) iterator.Iterator {
	if b.err != nil {
		return iterator.Error(b.err)
	}
	r := &reader{cmp: cmp, block: b}
	r.invalidate(nil)
	return r
}
