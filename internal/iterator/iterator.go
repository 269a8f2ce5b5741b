// Package iterator defines the forward iterator shared by memtables, tables,
// levels and merges, plus a few generic implementations.
package iterator

// Iterator walks entries in key order. Engine iterators only move forward.
type Iterator interface {
	// First moves to the first entry and reports whether it exists.
	First() bool

	// Seek moves to the first entry with key >= target and reports whether
	// it exists.
	Seek(target []byte) bool

	// Next moves to the next entry. Undefined when the iterator is invalid.
	Next() bool

	// Valid reports whether the iterator points to an entry.
	Valid() bool

	// Key returns the current key. The slice is valid until the next move.
	Key() []byte

	// Value returns the current value. The slice is valid until the next move.
	Value() []byte

	// Err returns the error that invalidated the iterator, if any. First and
	// Seek clear it.
	Err() error

	// Close releases resources and returns Err.
	Close() error
}

// Next moves it to the next entry if it is valid, otherwise to its first.
func Next(it Iterator) bool {
	if it.Valid() {
		return it.Next()
	}
	return it.First()
}
