package iterator

type emptyIterator struct{}

func (emptyIterator) First() bool      { return false }
func (emptyIterator) Seek([]byte) bool { return false }
func (emptyIterator) Next() bool       { panic("lsmtail: Next on empty iterator") }
func (emptyIterator) Valid() bool      { return false }
func (emptyIterator) Key() []byte      { panic("lsmtail: Key on empty iterator") }
func (emptyIterator) Value() []byte    { panic("lsmtail: Value on empty iterator") }
func (emptyIterator) Err() error       { return nil }
func (emptyIterator) Close() error     { return nil }

// Empty returns an iterator without entries.
func Empty() Iterator {
	return emptyIterator{}
}

type errorIterator struct {
	err error
}

func (e *errorIterator) First() bool      { return false }
func (e *errorIterator) Seek([]byte) bool { return false }
func (e *errorIterator) Next() bool       { panic("lsmtail: Next on error iterator: " + e.err.Error()) }
func (e *errorIterator) Valid() bool      { return false }
func (e *errorIterator) Key() []byte      { panic("lsmtail: Key on error iterator: " + e.err.Error()) }
func (e *errorIterator) Value() []byte    { panic("lsmtail: Value on error iterator: " + e.err.Error()) }
func (e *errorIterator) Err() error       { return e.err }
func (e *errorIterator) Close() error     { return e.err }

// Error returns an iterator that is never valid and always reports err.
func Error(err error) Iterator {
	return &errorIterator{err}
}

type cleanupIterator struct {
	Iterator
	cleanup func() error
}

func (it *cleanupIterator) Close() error {
	err := it.Iterator.Close()
	if err1 := it.cleanup(); err == nil {
		err = err1
	}
	return err
}

// WithCleanup returns an iterator calling cleanup after it is closed.
func WithCleanup(it Iterator, cleanup func() error) Iterator {
	if cleanup == nil {
		return it
	}
	return &cleanupIterator{Iterator: it, cleanup: cleanup}
}
