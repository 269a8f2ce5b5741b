package leveldb

import (
	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/forward"
	"github.com/kezhuw/lsmtail/internal/iterator"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/superversion"
)

// Iterator walks live user keys forward.
type Iterator interface {
	iterator.Iterator

	// SuperVersionNumber returns the number of the superversion the
	// iterator reads, or 0 before the first positioning call.
	SuperVersionNumber() uint64
}

type dbIterator struct {
	db *DB

	// Exactly one of tailing and sv is set. sv pins memtables and files
	// a non tailing iterator reads.
	tailing *forward.Iterator
	sv      *superversion.SuperVersion

	iterator   iterator.Iterator
	ucmp       keys.UserComparator
	prefix     keys.PrefixExtractor
	upperBound []byte
	sequence   keys.Sequence

	positioned bool
	valid      bool
	closed     bool
	err        error

	// seekPrefix restricts keys to the prefix of the last seek target.
	seekPrefix []byte

	key       []byte
	seekKey   []byte
	parsedKey keys.ParsedInternalKey
}

// NewIterator returns an iterator over live user keys. A tailing iterator
// reads the latest data on every positioning call. Others read data as of
// their creation.
func (db *DB) NewIterator(opts *options.ReadOptions) Iterator {
	it := &dbIterator{
		db:     db,
		ucmp:   db.options.Comparator.UserKeyComparator,
		prefix: db.options.PrefixExtractor,
	}
	if opts.UpperBound != nil {
		it.upperBound = append([]byte(nil), opts.UpperBound...)
	}
	if opts.Tailing {
		it.tailing = forward.New(db.registry, db.options.Comparator, db.options.PrefixExtractor, opts, db.observer)
		it.iterator = it.tailing
		return it
	}
	sv := db.registry.Current()
	if sv == nil {
		it.iterator = iterator.Error(errors.ErrDBClosed)
		return it
	}
	it.sv = sv
	it.sequence = db.set.LastSequence()
	mems := sv.Memtables()
	iters := make([]iterator.Iterator, 0, len(mems)+sv.Version.NumFiles(0)+4)
	for _, mem := range mems {
		iters = append(iters, mem.NewIterator())
	}
	iters = sv.Version.AppendIterators(iters, opts)
	it.iterator = iterator.NewMergeIterator(db.options.Comparator, iters...)
	return it
}

func (it *dbIterator) refresh() bool {
	if it.closed {
		it.valid = false
		it.err = errors.ErrIteratorClosed
		return false
	}
	it.positioned = true
	if it.tailing != nil {
		it.sequence = it.db.set.LastSequence()
	}
	return true
}

func (it *dbIterator) First() bool {
	if !it.refresh() {
		return false
	}
	it.seekPrefix = nil
	return it.findNextEntry(it.iterator.First(), false)
}

// Seek moves to the first live key no less than key. With a prefix
// extractor and key in its domain, keys not sharing key's prefix end the
// iteration.
func (it *dbIterator) Seek(key []byte) bool {
	if !it.refresh() {
		return false
	}
	it.seekPrefix = it.seekPrefix[:0]
	if it.prefix != nil && it.prefix.InDomain(key) {
		it.seekPrefix = append(it.seekPrefix, it.prefix.Prefix(key)...)
	} else {
		it.seekPrefix = nil
	}
	it.seekKey = keys.AppendInternalKey(it.seekKey[:0], key, it.sequence, keys.Seek)
	return it.findNextEntry(it.iterator.Seek(it.seekKey), false)
}

func (it *dbIterator) Next() bool {
	if !it.valid || !it.refresh() {
		return false
	}
	return it.findNextEntry(it.iterator.Next(), true)
}

func (it *dbIterator) stop(err error) bool {
	it.valid = false
	it.err = err
	return false
}

// findNextEntry skips tombstones, their shadowed values and entries newer
// than the read sequence. With skip set, versions of it.key are skipped.
func (it *dbIterator) findNextEntry(ok, skip bool) bool {
	ikey := &it.parsedKey
	for ; ok; ok = it.iterator.Next() {
		if !ikey.Parse(it.iterator.Key()) {
			return it.stop(errors.ErrCorruptInternalKey)
		}
		if it.upperBound != nil && it.ucmp.Compare(ikey.UserKey, it.upperBound) >= 0 {
			return it.stop(nil)
		}
		if it.seekPrefix != nil && !keys.SamePrefix(it.prefix, it.ucmp, ikey.UserKey, it.seekPrefix) {
			return it.stop(nil)
		}
		if ikey.Sequence > it.sequence {
			continue
		}
		switch ikey.Kind {
		case keys.Delete:
			it.key = append(it.key[:0], ikey.UserKey...)
			skip = true
		case keys.Value:
			if skip && it.ucmp.Compare(ikey.UserKey, it.key) <= 0 {
				continue
			}
			it.key = append(it.key[:0], ikey.UserKey...)
			it.valid = true
			it.err = nil
			return true
		default:
			return it.stop(errors.ErrCorruptInternalKey)
		}
	}
	return it.stop(it.iterator.Err())
}

func (it *dbIterator) Valid() bool {
	return it.valid
}

func (it *dbIterator) Key() []byte {
	return it.key
}

func (it *dbIterator) Value() []byte {
	return it.iterator.Value()
}

func (it *dbIterator) Err() error {
	return it.err
}

// DeletedSlots counts trimmed and live file slots of a tailing iterator.
func (it *dbIterator) DeletedSlots() (deleted, live int) {
	if it.tailing == nil {
		return 0, 0
	}
	return it.tailing.DeletedSlots()
}

func (it *dbIterator) SuperVersionNumber() uint64 {
	switch {
	case !it.positioned:
		return 0
	case it.tailing != nil:
		return it.tailing.SuperVersionNumber()
	case it.sv != nil:
		return it.sv.Number
	}
	return 0
}

func (it *dbIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.valid = false
	err := it.iterator.Close()
	if it.sv != nil {
		it.sv.Release()
		it.sv = nil
	}
	if errors.Is(err, errors.ErrDBClosed) || errors.IsIncomplete(err) {
		err = nil
	}
	return err
}
