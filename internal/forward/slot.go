package forward

import (
	"github.com/kezhuw/lsmtail/internal/iterator"
	"github.com/kezhuw/lsmtail/internal/memtable"
	"github.com/kezhuw/lsmtail/internal/version"
)

type slotKind int

const (
	mutableSlot slotKind = iota
	immutableSlot
	fileSlot
	levelSlot
)

func (k slotKind) String() string {
	switch k {
	case mutableSlot:
		return "mutable"
	case immutableSlot:
		return "immutable"
	case fileSlot:
		return "file"
	case levelSlot:
		return "level"
	}
	return "unknown"
}

type slotState int

const (
	unpositioned slotState = iota
	positioned
	exhausted
	// deleted slots were trimmed for the upper bound. They read as exhausted
	// until rebuilt.
	deleted
)

// slot is one source of a tailing iterator.
type slot struct {
	kind  slotKind
	state slotState

	mem   *memtable.MemTable
	file  version.FileMeta
	level int
	files version.FileList

	iter iterator.Iterator
}

func newMemSlot(kind slotKind, mem *memtable.MemTable) *slot {
	return &slot{kind: kind, mem: mem, iter: mem.NewIterator()}
}

func (s *slot) seek(target []byte, first bool) {
	var ok bool
	if first {
		ok = s.iter.First()
	} else {
		ok = s.iter.Seek(target)
	}
	s.settle(ok)
}

func (s *slot) next() {
	s.settle(s.iter.Next())
}

func (s *slot) settle(ok bool) {
	if ok {
		s.state = positioned
	} else {
		s.state = exhausted
	}
}

func (s *slot) valid() bool {
	return s.state == positioned
}

func (s *slot) deleted() bool {
	return s.state == deleted
}

func (s *slot) key() []byte {
	return s.iter.Key()
}

func (s *slot) value() []byte {
	return s.iter.Value()
}

func (s *slot) err() error {
	if s.iter == nil {
		return nil
	}
	return s.iter.Err()
}

// reset replaces the underlying iterator, leaving the slot unpositioned.
func (s *slot) reset(iter iterator.Iterator) {
	s.close()
	s.iter = iter
	s.state = unpositioned
}

// delete trims the slot.
func (s *slot) delete() {
	s.close()
	s.state = deleted
}

func (s *slot) close() {
	if s.iter != nil {
		s.iter.Close()
		s.iter = nil
	}
}
