// Package forward implements the tailing iterator core: a forward-only merge
// over the memtables and table files of the latest superversion which
// follows structural changes of the engine without being recreated.
//
// Keys are internal keys. Deletion markers and shadowed versions are left to
// callers.
package forward

import (
	"container/heap"

	"github.com/kezhuw/lsmtail/internal/configs"
	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/superversion"
	"github.com/kezhuw/lsmtail/internal/version"
)

// Iterator is a tailing iterator. It is not safe for concurrent use.
type Iterator struct {
	registry *superversion.Registry
	icmp     *keys.InternalComparator
	ucmp     keys.UserComparator
	prefix   keys.PrefixExtractor
	opts     options.ReadOptions
	observer Observer

	upperBound []byte

	sv      *superversion.SuperVersion
	mutable *slot
	imms    []*slot
	l0      []*slot
	levels  [configs.NumberLevels - 1]*slot

	heap    slotHeap
	current *slot

	valid          bool
	overUpperBound bool
	err            error
	// immutableStatus is the first error of immutable slots since they
	// were last positioned.
	immutableStatus error

	// trimmed is set when some slot was deleted for running past the
	// upper bound.
	trimmed bool

	prevKey       []byte
	prevSet       bool
	prevInclusive bool

	// lastKey holds the key Next moved from when the mutable slot must be
	// probed again.
	lastKey []byte

	closed bool
}

// New creates an unpositioned tailing iterator. Slots are built on the
// first positioning call.
func New(registry *superversion.Registry, icmp *keys.InternalComparator, prefix keys.PrefixExtractor, opts *options.ReadOptions, observer Observer) *Iterator {
	if observer == nil {
		observer = NopObserver{}
	}
	it := &Iterator{
		registry: registry,
		icmp:     icmp,
		ucmp:     icmp.UserKeyComparator,
		prefix:   prefix,
		opts:     *opts,
		observer: observer,
		heap:     slotHeap{cmp: icmp},
	}
	if opts.UpperBound != nil {
		it.upperBound = append([]byte(nil), opts.UpperBound...)
		it.opts.UpperBound = it.upperBound
	}
	return it
}

// First moves to the first internal key.
func (it *Iterator) First() bool {
	if !it.prepare() {
		return false
	}
	it.seekInternal(nil, true)
	return it.Valid()
}

// Seek moves to the first internal key no less than target.
func (it *Iterator) Seek(target []byte) bool {
	if !it.prepare() {
		return false
	}
	it.seekInternal(target, false)
	return it.Valid()
}

func (it *Iterator) prepare() bool {
	if it.closed {
		it.fail(errors.ErrIteratorClosed)
		return false
	}
	var err error
	switch {
	case it.sv == nil:
		err = it.rebuild(true)
	case it.sv.Number != it.registry.Number():
		err = it.renew()
	}
	if err != nil {
		it.fail(err)
		return false
	}
	if errors.IsIncomplete(it.immutableStatus) {
		it.resetIncomplete()
	}
	return true
}

func (it *Iterator) fail(err error) {
	it.err = err
	it.valid = false
	it.overUpperBound = false
	it.current = nil
}

func (it *Iterator) overBound(ikey []byte) bool {
	return it.upperBound != nil && it.ucmp.Compare(keys.InternalKey(ikey).UserKey(), it.upperBound) >= 0
}

// prefixOf returns the prefix of target's user key, or nil if prefix
// filtering does not apply.
func (it *Iterator) prefixOf(target []byte) []byte {
	if it.prefix == nil || target == nil {
		return nil
	}
	ukey := keys.InternalKey(target).UserKey()
	if !it.prefix.InDomain(ukey) {
		return nil
	}
	return it.prefix.Prefix(ukey)
}

// position seeks s and pushes it into the heap, trimming it when it is
// exhausted or past the upper bound.
func (it *Iterator) position(s *slot, target []byte, first bool) {
	s.seek(target, first)
	switch err := s.err(); {
	case err != nil:
		if it.immutableStatus == nil {
			it.immutableStatus = err
		}
	case s.valid() && !it.overBound(s.key()):
		heap.Push(&it.heap, s)
	default:
		s.delete()
		it.trimmed = true
	}
}

func (it *Iterator) seekInternal(target []byte, first bool) {
	it.err = nil
	it.mutable.seek(target, first)

	if first || it.needToSeekImmutable(target) {
		it.immutableStatus = nil
		if it.trimmed && (first || (it.prevKey != nil && it.icmp.Compare(it.prevKey, target) > 0)) {
			if err := it.rebuild(false); err != nil {
				it.fail(err)
				return
			}
			it.mutable.seek(target, first)
		}
		it.heap.clear()

		var prefix []byte
		if !first {
			prefix = it.prefixOf(target)
		}
		for _, s := range it.imms {
			if prefix != nil && !s.mem.MayContainPrefix(prefix) {
				continue
			}
			s.seek(target, first)
			if s.valid() {
				heap.Push(&it.heap, s)
			}
		}

		v := it.sv.Version
		cache := v.Cache()
		for _, s := range it.l0 {
			if s.deleted() {
				continue
			}
			if !first {
				if it.ucmp.Compare(keys.InternalKey(target).UserKey(), s.file.Largest.UserKey()) > 0 {
					if it.upperBound != nil {
						s.delete()
						it.trimmed = true
					}
					continue
				}
				if prefix != nil && (!version.FileOverlapsPrefix(it.ucmp, s.file, prefix) || !cache.MayContainPrefix(s.file.Number, s.file.Size, prefix, &it.opts)) {
					continue
				}
			}
			it.position(s, target, first)
		}

		for _, s := range it.levels {
			if s == nil || s.deleted() {
				continue
			}
			if prefix != nil && !v.OverlapsPrefix(s.level, prefix) {
				continue
			}
			it.position(s, target, first)
		}

		if first {
			it.prevSet = false
		} else {
			it.prevKey = append(it.prevKey[:0], target...)
			it.prevSet = true
			it.prevInclusive = true
		}
		it.observer.ImmutableSeeked()
	} else if it.current != nil && it.current != it.mutable {
		heap.Push(&it.heap, it.current)
	}
	it.updateCurrent()
}

// needToSeekImmutable reports whether immutable slots may be positioned
// before target.
func (it *Iterator) needToSeekImmutable(target []byte) bool {
	if !it.valid || it.current == nil || !it.prevSet || it.immutableStatus != nil {
		return true
	}
	if it.prefix != nil && !keys.SamePrefix(it.prefix, it.ucmp, keys.InternalKey(it.prevKey).UserKey(), keys.InternalKey(target).UserKey()) {
		return true
	}
	switch c := it.icmp.Compare(it.prevKey, target); {
	case c > 0, c == 0 && !it.prevInclusive:
		return true
	}
	var smallest []byte
	switch {
	case it.current != it.mutable:
		smallest = it.current.key()
	case it.heap.Len() == 0:
		return false
	default:
		smallest = it.heap.top().key()
	}
	return it.icmp.Compare(target, smallest) > 0
}

func (it *Iterator) updateCurrent() {
	mutable := it.mutable
	switch {
	case it.heap.Len() == 0 && !mutable.valid():
		it.current = nil
	case it.heap.Len() == 0:
		it.current = mutable
	case !mutable.valid() || it.icmp.Compare(mutable.key(), it.heap.top().key()) > 0:
		it.current = heap.Pop(&it.heap).(*slot)
	default:
		it.current = mutable
	}
	it.valid = it.current != nil && it.immutableStatus == nil
	it.err = nil
	it.overUpperBound = it.valid && it.overBound(it.current.key())
}

// Next moves to the next internal key. The iterator must be valid.
func (it *Iterator) Next() bool {
	if !it.Valid() {
		panic("lsmtail: Next on invalid tailing iterator")
	}
	if it.sv.Number != it.registry.Number() {
		oldKey := append([]byte(nil), it.current.key()...)
		if err := it.renew(); err != nil {
			it.fail(err)
			return false
		}
		it.seekInternal(oldKey, false)
		if !it.valid || it.icmp.Compare(it.current.key(), oldKey) != 0 {
			return it.Valid()
		}
	} else if it.current != it.mutable {
		ukey := keys.InternalKey(it.current.key()).UserKey()
		if !it.prevSet || it.prefix == nil || keys.SamePrefix(it.prefix, it.ucmp, keys.InternalKey(it.prevKey).UserKey(), ukey) {
			it.prevKey = append(it.prevKey[:0], it.current.key()...)
			it.prevSet = true
			it.prevInclusive = false
		}
	}

	current := it.current
	probe := current != it.mutable && !it.mutable.valid()
	if probe {
		it.lastKey = append(it.lastKey[:0], current.key()...)
	}
	current.next()
	if current != it.mutable {
		if err := current.err(); err != nil {
			it.immutableStatus = err
		} else if current.valid() {
			heap.Push(&it.heap, current)
		}
	}
	if probe {
		it.probeMutable(it.lastKey)
	}
	it.updateCurrent()
	return it.Valid()
}

// probeMutable repositions an exhausted mutable slot after key, so writes
// made since it ran off its end are merged again.
func (it *Iterator) probeMutable(key []byte) {
	m := it.mutable
	m.seek(key, false)
	if m.valid() && it.icmp.Compare(m.key(), key) == 0 {
		m.next()
	}
}

// Valid reports whether the iterator points to a key below the upper bound.
func (it *Iterator) Valid() bool {
	return it.valid && !it.overUpperBound
}

func (it *Iterator) Key() []byte {
	return it.current.key()
}

func (it *Iterator) Value() []byte {
	return it.current.value()
}

// Err returns the error of the last positioning call. An incomplete error
// of immutable slots is not fatal; the next seek retries them.
func (it *Iterator) Err() error {
	if it.err != nil {
		return it.err
	}
	if it.mutable != nil {
		if err := it.mutable.err(); err != nil {
			return err
		}
	}
	return it.immutableStatus
}

// SuperVersionNumber returns the number of the pinned superversion, or 0
// before the first positioning call.
func (it *Iterator) SuperVersionNumber() uint64 {
	if it.sv == nil {
		return 0
	}
	return it.sv.Number
}

// DeletedSlots counts trimmed and live slots of files and levels.
func (it *Iterator) DeletedSlots() (deleted, live int) {
	count := func(s *slot) {
		if s.deleted() {
			deleted++
		} else {
			live++
		}
	}
	for _, s := range it.l0 {
		count(s)
	}
	for _, s := range it.levels {
		if s != nil {
			count(s)
		}
	}
	return deleted, live
}

// Close releases all slots and the pinned superversion.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	err := it.Err()
	if errors.IsIncomplete(err) {
		err = nil
	}
	it.closeSlots()
	it.releaseSuperVersion()
	it.valid = false
	return err
}
