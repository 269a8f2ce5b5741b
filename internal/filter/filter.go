// Package filter implements bloom filters hashed with xxhash. Tables carry
// one filter over user keys and, with a prefix extractor, one over prefixes.
// Memtables keep a concurrent in-memory prefix filter.
package filter

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// Filter builds and probes serialized filters.
type Filter interface {
	Name() string

	// Append appends a filter for keys to buf.
	Append(buf *bytes.Buffer, keys [][]byte)

	// Contains reports whether key may be in the filter data. False
	// positives are possible, false negatives are not.
	Contains(data, key []byte) bool
}

type bloomFilter struct {
	bitsPerKey int
	probes     uint8
}

// NewBloomFilter returns a bloom filter using about bitsPerKey bits per key.
func NewBloomFilter(bitsPerKey int) Filter {
	if bitsPerKey < 1 {
		bitsPerKey = 1
	}
	// ln(2) * bitsPerKey minimizes false positives.
	probes := bitsPerKey * 69 / 100
	switch {
	case probes < 1:
		probes = 1
	case probes > 30:
		probes = 30
	}
	return &bloomFilter{bitsPerKey: bitsPerKey, probes: uint8(probes)}
}

func (f *bloomFilter) Name() string {
	return "lsmtail.BuiltinBloomFilter"
}

// split yields the two halves used for double hashing.
func split(key []byte) (uint32, uint32) {
	h := xxhash.Sum64(key)
	return uint32(h), uint32(h >> 32)
}

func (f *bloomFilter) Append(buf *bytes.Buffer, keys [][]byte) {
	bits := len(keys) * f.bitsPerKey
	if bits < 64 {
		bits = 64
	}
	nbytes := (bits + 7) / 8
	bits = nbytes * 8

	offset := buf.Len()
	buf.Grow(nbytes + 1)
	buf.Write(make([]byte, nbytes))
	buf.WriteByte(f.probes)
	array := buf.Bytes()[offset : offset+nbytes]
	for _, key := range keys {
		h, delta := split(key)
		for i := uint8(0); i < f.probes; i++ {
			pos := h % uint32(bits)
			array[pos/8] |= 1 << (pos % 8)
			h += delta
		}
	}
}

func (f *bloomFilter) Contains(data, key []byte) bool {
	n := len(data)
	if n < 2 {
		return false
	}
	probes := data[n-1]
	if probes > 30 {
		// Reserved for other encodings.
		return true
	}
	bits := uint32(n-1) * 8
	h, delta := split(key)
	for i := uint8(0); i < probes; i++ {
		pos := h % bits
		if data[pos/8]&(1<<(pos%8)) == 0 {
			return false
		}
		h += delta
	}
	return true
}
