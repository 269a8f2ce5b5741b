package filter

import (
	"sync/atomic"
)

// Dynamic is a fixed size bloom filter that accepts concurrent Add and
// MayContain calls.
type Dynamic struct {
	probes uint32
	bits   uint32
	words  []atomic.Uint64
}

// NewDynamic returns a filter of at least totalBits bits.
func NewDynamic(totalBits int, probes int) *Dynamic {
	words := (totalBits + 63) / 64
	if words < 1 {
		words = 1
	}
	if probes < 1 {
		probes = 1
	}
	return &Dynamic{probes: uint32(probes), bits: uint32(words * 64), words: make([]atomic.Uint64, words)}
}

// Add adds key.
func (d *Dynamic) Add(key []byte) {
	h, delta := split(key)
	for i := uint32(0); i < d.probes; i++ {
		pos := h % d.bits
		word, mask := &d.words[pos/64], uint64(1)<<(pos%64)
		for {
			old := word.Load()
			if old&mask != 0 || word.CompareAndSwap(old, old|mask) {
				break
			}
		}
		h += delta
	}
}

// MayContain reports whether key may have been added.
func (d *Dynamic) MayContain(key []byte) bool {
	h, delta := split(key)
	for i := uint32(0); i < d.probes; i++ {
		pos := h % d.bits
		if d.words[pos/64].Load()&(uint64(1)<<(pos%64)) == 0 {
			return false
		}
		h += delta
	}
	return true
}
