// Package batch encodes write batches: a 12 byte header of sequence and
// count followed by length prefixed records.
package batch

import (
	"encoding/binary"
	"math"

	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/keys"
)

const batchHeaderSize = 12

var firstBatchHeaderBytes = [batchHeaderSize]byte{0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 0, 0}

type Batch struct {
	data []byte
}

func (b *Batch) Put(key, value []byte) {
	scratch, ok := b.grow(1 + 2*binary.MaxVarintLen64 + len(key) + len(value))
	if !ok {
		return
	}
	b.data = append(b.data, byte(keys.Value))
	b.appendBytes(scratch, key)
	b.appendBytes(scratch, value)
}

func (b *Batch) Delete(key []byte) {
	scratch, ok := b.grow(1 + binary.MaxVarintLen64 + len(key))
	if !ok {
		return
	}
	b.data = append(b.data, byte(keys.Delete))
	b.appendBytes(scratch, key)
}

func (b *Batch) Clear() {
	b.data = b.data[:0]
}

func (b *Batch) appendBytes(scratch []byte, bytes []byte) {
	n := binary.PutUvarint(scratch, uint64(len(bytes)))
	b.data = append(b.data, scratch[:n]...)
	b.data = append(b.data, bytes...)
}

// grow reserves room for n more bytes and bumps the record count. It
// returns a varint scratch buffer past the reserved room.
func (b *Batch) grow(n int) (scratch []byte, ok bool) {
	n += binary.MaxVarintLen64
	if len(b.data) == 0 {
		n += batchHeaderSize
	}
	l, z := len(b.data), cap(b.data)
	if l+n > z {
		z += z/2 + n
		buf := make([]byte, l, z)
		copy(buf, b.data)
		b.data = buf
	}
	scratch = b.data[:z][z-binary.MaxVarintLen64:]
	if l == 0 {
		b.data = b.data[:batchHeaderSize]
		copy(b.data, firstBatchHeaderBytes[:])
		return scratch, true
	}
	count := binary.LittleEndian.Uint32(b.countData())
	if count == math.MaxUint32 {
		return nil, false
	}
	count++
	if count == math.MaxUint32 {
		// Saturated; Err reports it.
		binary.LittleEndian.PutUint32(b.countData(), count)
		return nil, false
	}
	binary.LittleEndian.PutUint32(b.countData(), count)
	return scratch, true
}

func (b *Batch) Reset(data []byte) {
	b.data = data
}

// Append appends records of an encoded batch. It reports false if the
// combined count overflows.
func (b *Batch) Append(buf []byte) bool {
	switch {
	case len(buf) <= batchHeaderSize:
		return true
	case len(b.data) == 0:
		b.data = append(b.data, buf...)
		return true
	default:
		n := uint64(binary.LittleEndian.Uint32(b.countData())) + uint64(binary.LittleEndian.Uint32(buf[8:]))
		if n >= math.MaxUint32 {
			return false
		}
		b.data = append(b.data, buf[batchHeaderSize:]...)
		binary.LittleEndian.PutUint32(b.countData(), uint32(n))
		return true
	}
}

func (b *Batch) Empty() bool {
	return len(b.data) <= batchHeaderSize
}

func (b *Batch) Count() uint32 {
	if b.Empty() {
		return 0
	}
	return binary.LittleEndian.Uint32(b.countData())
}

func (b *Batch) Err() error {
	if b.Count() == math.MaxUint32 {
		return errors.ErrBatchTooManyWrites
	}
	return nil
}

func (b *Batch) Sequence() keys.Sequence {
	return keys.Sequence(binary.LittleEndian.Uint64(b.data[:8]))
}

func (b *Batch) SetSequence(seq keys.Sequence) {
	binary.LittleEndian.PutUint64(b.data[:8], uint64(seq))
}

func (b *Batch) body() []byte {
	return b.data[batchHeaderSize:]
}

func (b *Batch) countData() []byte {
	return b.data[8:12]
}

func (b *Batch) Bytes() []byte {
	return b.data
}

// Inserter receives records of a batch in order.
type Inserter interface {
	Add(seq keys.Sequence, kind keys.Kind, key, value []byte)
}

// Iterate feeds all records to it with consecutive sequences. Records
// before a corruption are fed.
func (b *Batch) Iterate(it Inserter) error {
	if b.Empty() {
		return errors.ErrCorruptWriteBatch
	}
	seq := b.Sequence()
	found := uint32(0)
	for buf := b.body(); len(buf) != 0; seq, found = seq+1, found+1 {
		var key, value []byte
		var ok bool
		kind := keys.Kind(buf[0])
		switch kind {
		case keys.Value:
			if key, buf, ok = getLengthPrefixedBytes(buf[1:]); ok {
				value, buf, ok = getLengthPrefixedBytes(buf)
			}
		case keys.Delete:
			key, buf, ok = getLengthPrefixedBytes(buf[1:])
		}
		if !ok {
			return errors.Wrapf(errors.ErrCorruptWriteBatch, "record %d", found)
		}
		it.Add(seq, kind, key, value)
	}
	if found != b.Count() {
		return errors.Wrapf(errors.ErrCorruptWriteBatch, "count %d, found %d records", b.Count(), found)
	}
	return nil
}

func getLengthPrefixedBytes(buf []byte) (bytes, remains []byte, ok bool) {
	l, n := binary.Uvarint(buf)
	if n <= 0 || n > binary.MaxVarintLen32 || uint64(len(buf)-n) < l {
		return nil, nil, false
	}
	buf = buf[n:]
	return buf[:l:l], buf[l:], true
}
