package block

import (
	"encoding/binary"
)

// Writer builds a block of prefix compressed entries. Every RestartInterval
// entries a key is stored in full and its offset recorded as a restart
// point.
//
// Entry layout: shared(varint) unshared(varint) valueLen(varint) key[shared:] value.
// Block layout: entries restarts(uint32...) numRestarts(uint32).
type Writer struct {
	RestartInterval int

	buf      []byte
	restarts []uint32
	counter  int
	entries  int
	lastKey  []byte
}

// Reset clears the writer for a new block.
func (w *Writer) Reset() {
	w.buf = w.buf[:0]
	w.restarts = append(w.restarts[:0], 0)
	w.counter = 0
	w.entries = 0
	w.lastKey = w.lastKey[:0]
}

// Empty reports whether nothing was added since Reset.
func (w *Writer) Empty() bool {
	return w.entries == 0
}

// ApproximateSize estimates the size of the finished block.
func (w *Writer) ApproximateSize() int {
	return len(w.buf) + 4*len(w.restarts) + 4
}

// Add appends an entry. Keys must be added in increasing order.
func (w *Writer) Add(key, value []byte) {
	if len(w.restarts) == 0 {
		w.restarts = append(w.restarts, 0)
	}
	shared := 0
	if w.counter < w.RestartInterval {
		n := len(w.lastKey)
		if len(key) < n {
			n = len(key)
		}
		for shared < n && w.lastKey[shared] == key[shared] {
			shared++
		}
	} else {
		w.counter = 0
		w.restarts = append(w.restarts, uint32(len(w.buf)))
	}
	w.buf = binary.AppendUvarint(w.buf, uint64(shared))
	w.buf = binary.AppendUvarint(w.buf, uint64(len(key)-shared))
	w.buf = binary.AppendUvarint(w.buf, uint64(len(value)))
	w.buf = append(w.buf, key[shared:]...)
	w.buf = append(w.buf, value...)
	w.lastKey = append(w.lastKey[:shared], key[shared:]...)
	w.counter++
	w.entries++
}

// Finish appends the restart array and returns the block contents. The
// slice is owned by the writer until Reset.
func (w *Writer) Finish() []byte {
	if len(w.restarts) == 0 {
		w.restarts = append(w.restarts, 0)
	}
	for _, restart := range w.restarts {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, restart)
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(w.restarts)))
	return w.buf
}
