package block

import "encoding/binary"

// MaxHandleEncodedLength is the largest size of an encoded Handle.
const MaxHandleEncodedLength = 2 * binary.MaxVarintLen64

// Handle locates a block in a table file. Length excludes the trailer.
type Handle struct {
	Offset uint64
	Length uint64
}

// AppendHandle appends the varint encoding of h to dst.
func AppendHandle(dst []byte, h Handle) []byte {
	dst = binary.AppendUvarint(dst, h.Offset)
	return binary.AppendUvarint(dst, h.Length)
}

// DecodeHandle decodes a handle and returns the number of bytes consumed,
// or a non-positive number on malformed input.
func DecodeHandle(buf []byte) (Handle, int) {
	offset, i := binary.Uvarint(buf)
	if i <= 0 {
		return Handle{}, i
	}
	length, j := binary.Uvarint(buf[i:])
	if j <= 0 {
		return Handle{}, j
	}
	return Handle{Offset: offset, Length: length}, i + j
}
