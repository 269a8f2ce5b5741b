// Package memtable implements the in-memory skiplist receiving writes. A
// single writer may add entries while any number of readers iterate.
package memtable

import (
	"math/rand"
	"sync/atomic"

	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/filter"
	"github.com/kezhuw/lsmtail/internal/iterator"
	"github.com/kezhuw/lsmtail/internal/keys"
)

const maxHeight = 12

const (
	bytesBlockSize = 4096
	largeBytesSize = 1024
)

type node struct {
	ikey  keys.InternalKey
	value []byte
	nexts []atomic.Pointer[node]
}

func (n *node) next(h int) *node {
	return n.nexts[h].Load()
}

// MemTable is a skiplist of internal keys.
type MemTable struct {
	id   uint64
	icmp *keys.InternalComparator
	rnd  *rand.Rand
	head *node

	height atomic.Int32
	usage  atomic.Int64
	count  atomic.Int64

	// writer owned
	bytes []byte
	prevs [maxHeight]*node

	prefix      keys.PrefixExtractor
	prefixBloom *filter.Dynamic
}

var ids atomic.Uint64

// Options configures a memtable.
type Options struct {
	Comparator *keys.InternalComparator

	// PrefixExtractor, when set together with PrefixBloomBits, makes the
	// memtable track prefixes of added keys.
	PrefixExtractor keys.PrefixExtractor
	PrefixBloomBits int
}

// New creates an empty memtable.
func New(opts Options) *MemTable {
	m := &MemTable{
		id:     ids.Add(1),
		icmp:   opts.Comparator,
		rnd:    rand.New(rand.NewSource(rand.Int63())),
		head:   &node{nexts: make([]atomic.Pointer[node], maxHeight)},
		prefix: opts.PrefixExtractor,
	}
	m.height.Store(1)
	if opts.PrefixExtractor != nil && opts.PrefixBloomBits > 0 {
		m.prefixBloom = filter.NewDynamic(opts.PrefixBloomBits, 6)
	}
	return m
}

// ID identifies the memtable in logs.
func (m *MemTable) ID() uint64 {
	return m.id
}

func (m *MemTable) allocBytes(n int) []byte {
	m.usage.Add(int64(n))
	if n >= largeBytesSize {
		return make([]byte, n)
	}
	i := len(m.bytes)
	if i+n > cap(m.bytes) {
		m.bytes = make([]byte, 0, bytesBlockSize)
		i = 0
	}
	m.bytes = m.bytes[:i+n]
	return m.bytes[i : i+n : i+n]
}

func (m *MemTable) randomHeight() int {
	h := 1
	for h < maxHeight && m.rnd.Intn(4) == 0 {
		h++
	}
	return h
}

// findGreaterOrEqual returns the first node with key >= ikey. When prevs is
// not nil it is filled with the last node before ikey at every level.
func (m *MemTable) findGreaterOrEqual(ikey []byte, prevs []*node) *node {
	p := m.head
	for h := int(m.height.Load()) - 1; h >= 0; h-- {
		n := p.next(h)
		for n != nil && m.icmp.Compare(n.ikey, ikey) < 0 {
			p, n = n, n.next(h)
		}
		if prevs != nil {
			prevs[h] = p
		}
		if h == 0 {
			return n
		}
	}
	return nil
}

// Add inserts an entry. Calls must be serialized by the caller. Adding an
// internal key twice panics.
func (m *MemTable) Add(seq keys.Sequence, kind keys.Kind, key, value []byte) {
	if kind == keys.Delete {
		value = nil
	}
	b := m.allocBytes(len(key) + keys.TagBytes + len(value))
	ikey := keys.MakeInternalKey(b, key, seq, kind)
	n := &node{ikey: ikey}
	if kind != keys.Delete {
		n.value = b[len(ikey):]
		copy(n.value, value)
	}

	prevs := m.prevs[:]
	if next := m.findGreaterOrEqual(ikey, prevs); next != nil && m.icmp.Compare(next.ikey, ikey) == 0 {
		panic("lsmtail: duplicated key in memtable")
	}

	h := m.randomHeight()
	if height := int(m.height.Load()); h > height {
		for i := height; i < h; i++ {
			prevs[i] = m.head
		}
		// Readers seeing the new height before the links find nil at the new
		// levels and drop down.
		m.height.Store(int32(h))
	}
	n.nexts = make([]atomic.Pointer[node], h)
	for i := 0; i < h; i++ {
		n.nexts[i].Store(prevs[i].next(i))
		prevs[i].nexts[i].Store(n)
	}
	m.count.Add(1)
	if m.prefixBloom != nil && m.prefix.InDomain(key) {
		m.prefixBloom.Add(m.prefix.Prefix(key))
	}
}

// Get looks up the newest entry of ikey's user key no newer than ikey's
// sequence. ok is false when the memtable knows nothing about the key;
// otherwise err is ErrNotFound for a deletion.
func (m *MemTable) Get(ikey keys.InternalKey) (value []byte, err error, ok bool) {
	n := m.findGreaterOrEqual(ikey, nil)
	if n == nil || m.icmp.UserKeyComparator.Compare(n.ikey.UserKey(), ikey.UserKey()) != 0 {
		return nil, nil, false
	}
	if _, _, kind := n.ikey.Split(); kind == keys.Delete {
		return nil, errors.ErrNotFound, true
	}
	return n.value, nil, true
}

// MayContainPrefix reports whether some key with prefix may be present.
// Without a prefix bloom it is always true.
func (m *MemTable) MayContainPrefix(prefix []byte) bool {
	if m.prefixBloom == nil {
		return true
	}
	return m.prefixBloom.MayContain(prefix)
}

// ApproximateMemoryUsage returns bytes held by keys and values.
func (m *MemTable) ApproximateMemoryUsage() int {
	return int(m.usage.Load())
}

// Len returns the number of entries.
func (m *MemTable) Len() int {
	return int(m.count.Load())
}

// Empty reports whether nothing was added.
func (m *MemTable) Empty() bool {
	return m.head.next(0) == nil
}

// NewIterator returns an iterator over internal keys. It observes entries
// added after its creation.
func (m *MemTable) NewIterator() iterator.Iterator {
	return &memtableIterator{m: m}
}

type memtableIterator struct {
	m *MemTable
	n *node
}

func (it *memtableIterator) First() bool {
	it.n = it.m.head.next(0)
	return it.n != nil
}

func (it *memtableIterator) Seek(target []byte) bool {
	it.n = it.m.findGreaterOrEqual(target, nil)
	return it.n != nil
}

func (it *memtableIterator) Next() bool {
	it.n = it.n.next(0)
	return it.n != nil
}

func (it *memtableIterator) Valid() bool   { return it.n != nil }
func (it *memtableIterator) Key() []byte   { return it.n.ikey }
func (it *memtableIterator) Value() []byte { return it.n.value }
func (it *memtableIterator) Err() error    { return nil }

func (it *memtableIterator) Close() error {
	it.n = nil
	return nil
}
