package keys

import "encoding/binary"

// TagBytes is the size of the tag appended to every user key.
const TagBytes = 8

const kindBits = 8

// Tag packs a sequence and a kind into one uint64.
type Tag uint64

// PackTag combines seq and kind.
func PackTag(seq Sequence, kind Kind) Tag {
	return Tag(uint64(seq)<<kindBits | uint64(kind))
}

// Unpack splits tag back into sequence and kind.
func (tag Tag) Unpack() (Sequence, Kind) {
	return Sequence(tag >> kindBits), Kind(tag & 0xff)
}

// Put stores tag in the first TagBytes of buf.
func (tag Tag) Put(buf []byte) {
	binary.LittleEndian.PutUint64(buf, uint64(tag))
}

// GetTag loads a tag from the first TagBytes of buf.
func GetTag(buf []byte) Tag {
	return Tag(binary.LittleEndian.Uint64(buf))
}
