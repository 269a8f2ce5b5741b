package iterator

import (
	"container/heap"

	"github.com/kezhuw/lsmtail/internal/keys"
)

type mergeHeap struct {
	cmp       keys.Comparer
	iterators []Iterator
}

func (h *mergeHeap) Len() int { return len(h.iterators) }
func (h *mergeHeap) Less(i, j int) bool {
	return h.cmp.Compare(h.iterators[i].Key(), h.iterators[j].Key()) < 0
}
func (h *mergeHeap) Swap(i, j int) { h.iterators[i], h.iterators[j] = h.iterators[j], h.iterators[i] }
func (h *mergeHeap) Push(x interface{}) {
	h.iterators = append(h.iterators, x.(Iterator))
}
func (h *mergeHeap) Pop() interface{} {
	n := len(h.iterators) - 1
	it := h.iterators[n]
	h.iterators = h.iterators[:n]
	return it
}

// mergeIterator yields the union of its children in order. Equal keys from
// different children come out in unspecified order; internal keys are
// never equal across sources.
type mergeIterator struct {
	err error
	all []Iterator
	h   mergeHeap
}

// NewMergeIterator merges iterators ordered by cmp.
func NewMergeIterator(cmp keys.Comparer, iterators ...Iterator) Iterator {
	switch len(iterators) {
	case 0:
		return Empty()
	case 1:
		return iterators[0]
	}
	return &mergeIterator{all: iterators, h: mergeHeap{cmp: cmp, iterators: make([]Iterator, 0, len(iterators))}}
}

func (m *mergeIterator) reset(position func(Iterator) bool) bool {
	m.err = nil
	m.h.iterators = m.h.iterators[:0]
	for _, it := range m.all {
		if position(it) {
			m.h.iterators = append(m.h.iterators, it)
		} else if err := it.Err(); err != nil {
			m.err = err
			m.h.iterators = m.h.iterators[:0]
			return false
		}
	}
	heap.Init(&m.h)
	return m.Valid()
}

func (m *mergeIterator) First() bool {
	return m.reset(Iterator.First)
}

func (m *mergeIterator) Seek(target []byte) bool {
	return m.reset(func(it Iterator) bool { return it.Seek(target) })
}

func (m *mergeIterator) Next() bool {
	top := m.h.iterators[0]
	if top.Next() {
		heap.Fix(&m.h, 0)
		return true
	}
	if err := top.Err(); err != nil {
		m.err = err
		m.h.iterators = m.h.iterators[:0]
		return false
	}
	heap.Pop(&m.h)
	return m.Valid()
}

func (m *mergeIterator) Valid() bool   { return len(m.h.iterators) != 0 }
func (m *mergeIterator) Key() []byte   { return m.h.iterators[0].Key() }
func (m *mergeIterator) Value() []byte { return m.h.iterators[0].Value() }
func (m *mergeIterator) Err() error    { return m.err }

func (m *mergeIterator) Close() error {
	err := m.err
	for _, it := range m.all {
		if err1 := it.Close(); err == nil {
			err = err1
		}
	}
	m.all = nil
	m.h.iterators = nil
	return err
}
