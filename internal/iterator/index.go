package iterator

// indexIterator concatenates the data iterators named by the values of an
// index iterator. Tables use it over data blocks, levels over files.
type indexIterator struct {
	err    error
	data   Iterator
	index  Iterator
	blockf func(value []byte) Iterator
}

// NewIndexIterator returns a two level iterator. blockf opens the data
// iterator for an index value.
func NewIndexIterator(index Iterator, blockf func(value []byte) Iterator) Iterator {
	return &indexIterator{data: Empty(), index: index, blockf: blockf}
}

func (it *indexIterator) First() bool {
	if !it.index.First() {
		return it.exhaust(it.index.Err())
	}
	it.openData()
	return it.skipEmpty(it.data.First())
}

func (it *indexIterator) Seek(target []byte) bool {
	if !it.index.Seek(target) {
		return it.exhaust(it.index.Err())
	}
	it.openData()
	return it.skipEmpty(it.data.Seek(target))
}

func (it *indexIterator) Next() bool {
	return it.skipEmpty(it.data.Next())
}

func (it *indexIterator) Valid() bool   { return it.data.Valid() }
func (it *indexIterator) Key() []byte   { return it.data.Key() }
func (it *indexIterator) Value() []byte { return it.data.Value() }
func (it *indexIterator) Err() error    { return it.err }

func (it *indexIterator) Close() error {
	it.data.Close()
	it.data = Empty()
	it.index.Close()
	it.index = Empty()
	return it.err
}

func (it *indexIterator) exhaust(err error) bool {
	it.err = err
	it.data.Close()
	it.data = Empty()
	return false
}

func (it *indexIterator) openData() {
	it.err = nil
	it.data.Close()
	it.data = it.blockf(it.index.Value())
}

func (it *indexIterator) skipEmpty(valid bool) bool {
	for !valid {
		if err := it.data.Err(); err != nil {
			return it.exhaust(err)
		}
		if !it.index.Next() {
			return it.exhaust(it.index.Err())
		}
		it.openData()
		valid = it.data.First()
	}
	return true
}
