package lsmtail

import (
	"strconv"

	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/forward"
	"github.com/kezhuw/lsmtail/internal/leveldb"
)

// PropertySuperVersionNumber names the iterator property holding the
// number of the superversion the iterator reads, in decimal.
const PropertySuperVersionNumber = "lsmtail.iterator.super-version-number"

// Status classifies the state of an iterator.
type Status int

const (
	StatusOK Status = iota
	StatusNotInitialized
	StatusIncomplete
	StatusCorruption
	StatusIOError
	StatusNotSupported
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotInitialized:
		return "not initialized"
	case StatusIncomplete:
		return "incomplete"
	case StatusCorruption:
		return "corruption"
	case StatusIOError:
		return "io error"
	case StatusNotSupported:
		return "not supported"
	}
	return "unknown"
}

// Renewal is what a tailing iterator does with the slot of a file or level
// when it moves to a new superversion.
type Renewal = forward.Renewal

const (
	Rebuild      = forward.Rebuild
	DeferRebuild = forward.DeferRebuild
	CarryForward = forward.CarryForward
)

// Observer watches slot management of tailing iterators. Methods are called
// synchronously from iterator methods.
type Observer = forward.Observer

// Iterator defines methods to iterate forward through keys of a database.
// The initial status of an newly created iterator is NotInitialized.
// Client must call First or Seek before using. Iterators are not designed
// for concurrent usage.
type Iterator interface {
	// First moves to the first entry. It returns whether such entry exists.
	First() bool

	// Seek moves the iterator to the first key that equal to or greater than
	// key. It returns whether such entry exists.
	Seek(key []byte) bool

	// Next moves to next entry. It returns whether such entry exists. It
	// panics if the iterator is not valid.
	Next() bool

	// Last is not supported. It sets status NotSupported.
	Last() bool

	// Prev is not supported. It sets status NotSupported.
	Prev() bool

	// Valid returns whether the iterator is point to a valid entry.
	Valid() bool

	// Key returns the key of current entry. It panics if the iterator is
	// not valid.
	Key() []byte

	// Value returns the value of current entry. It panics if the iterator
	// is not valid.
	Value() []byte

	// Status classifies Err. An exhausted iterator has status OK.
	Status() Status

	// Err returns error we encounters so far. First and Seek may clear
	// this error.
	Err() error

	// Property returns the value of an iterator property.
	Property(name string) (string, error)

	// Close releases any resources hold by this iterator, and returns
	// any error it encounters so far.
	Close() error
}

type dbIterator struct {
	iter        leveldb.Iterator
	initialized bool
	err         error
}

func newIterator(iter leveldb.Iterator) *dbIterator {
	return &dbIterator{iter: iter}
}

func (it *dbIterator) First() bool {
	it.initialized = true
	it.err = nil
	return it.iter.First()
}

func (it *dbIterator) Seek(key []byte) bool {
	it.initialized = true
	it.err = nil
	return it.iter.Seek(key)
}

func (it *dbIterator) Next() bool {
	if !it.Valid() {
		panic("lsmtail: Next on invalid iterator")
	}
	return it.iter.Next()
}

func (it *dbIterator) Last() bool {
	return it.unsupported("Last")
}

func (it *dbIterator) Prev() bool {
	return it.unsupported("Prev")
}

func (it *dbIterator) unsupported(op string) bool {
	it.initialized = true
	it.err = errors.Wrapf(errors.ErrNotSupported, "%s on forward only iterator", op)
	return false
}

func (it *dbIterator) Valid() bool {
	return it.err == nil && it.iter.Valid()
}

func (it *dbIterator) Key() []byte {
	if !it.Valid() {
		panic("lsmtail: Key on invalid iterator")
	}
	return it.iter.Key()
}

func (it *dbIterator) Value() []byte {
	if !it.Valid() {
		panic("lsmtail: Value on invalid iterator")
	}
	return it.iter.Value()
}

func (it *dbIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.iter.Err()
}

func (it *dbIterator) Status() Status {
	err := it.Err()
	switch {
	case err == nil && !it.initialized:
		return StatusNotInitialized
	case err == nil:
		return StatusOK
	case errors.IsIncomplete(err):
		return StatusIncomplete
	case errors.IsCorrupt(err):
		return StatusCorruption
	case errors.IsNotSupported(err):
		return StatusNotSupported
	}
	return StatusIOError
}

func (it *dbIterator) Property(name string) (string, error) {
	switch name {
	case PropertySuperVersionNumber:
		return strconv.FormatUint(it.iter.SuperVersionNumber(), 10), nil
	}
	return "", errors.Wrapf(errors.ErrNotSupported, "unknown iterator property %q", name)
}

func (it *dbIterator) Close() error {
	return it.iter.Close()
}
