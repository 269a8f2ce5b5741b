package block

import (
	"encoding/binary"
	"sort"

	"github.com/kezhuw/lsmtail/internal/keys"
)

type reader struct {
	cmp   keys.Comparer
	block *Block

	err    error
	key    []byte
	offset uint32
	value  []byte
	// next is the offset of the entry after the current one.
	next uint32
}

func (r *reader) restartPoint(i uint32) uint32 {
	if i >= r.block.restartsNumber {
		return r.block.restartsOffset
	}
	return binary.LittleEndian.Uint32(r.block.contents[r.block.restartsOffset+4*i:])
}

func (r *reader) invalidate(err error) bool {
	r.err = err
	r.offset = r.block.restartsOffset
	r.next = r.offset
	r.key = r.key[:0]
	r.value = nil
	return false
}

// decode parses the entry at offset. It returns false on corruption.
func (r *reader) decode(offset uint32) bool {
	contents := r.block.contents[:r.block.restartsOffset]
	buf := contents[offset:]
	shared, i := binary.Uvarint(buf)
	if i <= 0 {
		return r.invalidate(ErrCorruptBlock)
	}
	unshared, j := binary.Uvarint(buf[i:])
	if j <= 0 {
		return r.invalidate(ErrCorruptBlock)
	}
	valueLen, k := binary.Uvarint(buf[i+j:])
	if k <= 0 {
		return r.invalidate(ErrCorruptBlock)
	}
	n := uint64(i + j + k)
	if shared > uint64(len(r.key)) || n+unshared+valueLen > uint64(len(buf)) {
		return r.invalidate(ErrCorruptBlock)
	}
	r.key = append(r.key[:shared], buf[n:n+unshared]...)
	r.value = buf[n+unshared : n+unshared+valueLen : n+unshared+valueLen]
	r.offset = offset
	r.next = offset + uint32(n+unshared+valueLen)
	return true
}

func (r *reader) seekToRestart(i uint32) {
	r.key = r.key[:0]
	r.next = r.restartPoint(i)
}

func (r *reader) First() bool {
	r.err = nil
	r.seekToRestart(0)
	return r.Next()
}

func (r *reader) Seek(target []byte) bool {
	r.err = nil
	if r.block.restartsOffset == 0 {
		return r.invalidate(nil)
	}
	var corrupt bool
	// Find the last restart point whose key is less than target.
	i := sort.Search(int(r.block.restartsNumber), func(i int) bool {
		if corrupt {
			return true
		}
		r.key = r.key[:0]
		if !r.decode(r.restartPoint(uint32(i))) {
			corrupt = true
			return true
		}
		return r.cmp.Compare(r.key, target) >= 0
	})
	if corrupt {
		return r.invalidate(ErrCorruptBlock)
	}
	if i > 0 {
		i--
	}
	r.seekToRestart(uint32(i))
	for r.Next() {
		if r.cmp.Compare(r.key, target) >= 0 {
			return true
		}
	}
	return false
}

func (r *reader) Next() bool {
	if r.next >= r.block.restartsOffset {
		return r.invalidate(r.err)
	}
	return r.decode(r.next)
}

func (r *reader) Valid() bool {
	return r.offset < r.block.restartsOffset
}

func (r *reader) Key() []byte   { return r.key }
func (r *reader) Value() []byte { return r.value }
func (r *reader) Err() error    { return r.err }

func (r *reader) Close() error {
	err := r.err
	r.block = &Block{}
	return err
}
