package iterator_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kezhuw/lsmtail/internal/iterator"
	"github.com/kezhuw/lsmtail/internal/keys"
)

var errBroken = errors.New("broken source")

type entry struct {
	key, value string
}

// sliceIterator iterates sorted entries. failAt makes moving onto that
// index fail with errBroken.
type sliceIterator struct {
	entries []entry
	index   int
	failAt  int
	err     error
	closed  bool
}

func newSliceIterator(entries ...entry) *sliceIterator {
	return &sliceIterator{entries: entries, index: len(entries), failAt: -1}
}

func (it *sliceIterator) move(i int) bool {
	if i == it.failAt {
		it.err = errBroken
		it.index = len(it.entries)
		return false
	}
	it.index = i
	return it.Valid()
}

func (it *sliceIterator) First() bool {
	it.err = nil
	return it.move(0)
}

func (it *sliceIterator) Seek(target []byte) bool {
	it.err = nil
	i := 0
	for i < len(it.entries) && it.entries[i].key < string(target) {
		i++
	}
	return it.move(i)
}

func (it *sliceIterator) Next() bool    { return it.move(it.index + 1) }
func (it *sliceIterator) Valid() bool   { return it.index < len(it.entries) }
func (it *sliceIterator) Key() []byte   { return []byte(it.entries[it.index].key) }
func (it *sliceIterator) Value() []byte { return []byte(it.entries[it.index].value) }
func (it *sliceIterator) Err() error    { return it.err }
func (it *sliceIterator) Close() error {
	it.closed = true
	return it.err
}

func collect(it iterator.Iterator, valid bool) []string {
	var keys []string
	for ; valid; valid = it.Next() {
		keys = append(keys, string(it.Key()))
	}
	return keys
}

func TestMergeIterator(t *testing.T) {
	a := newSliceIterator(entry{"a", "1"}, entry{"d", "4"}, entry{"g", "7"})
	b := newSliceIterator(entry{"b", "2"}, entry{"e", "5"})
	c := newSliceIterator()
	d := newSliceIterator(entry{"c", "3"}, entry{"f", "6"}, entry{"h", "8"})
	m := iterator.NewMergeIterator(keys.BytewiseComparator, a, b, c, d)

	assert.Equal(t, strings.Split("abcdefgh", ""), collect(m, m.First()))
	assert.NoError(t, m.Err())
	assert.Equal(t, strings.Split("efgh", ""), collect(m, m.Seek([]byte("dd"))))
	assert.False(t, m.Seek([]byte("z")))

	require.NoError(t, m.Close())
	for _, it := range []*sliceIterator{a, b, c, d} {
		assert.True(t, it.closed)
	}
}

func TestMergeIteratorError(t *testing.T) {
	a := newSliceIterator(entry{"a", "1"}, entry{"c", "3"})
	b := newSliceIterator(entry{"b", "2"}, entry{"d", "4"})
	b.failAt = 1
	m := iterator.NewMergeIterator(keys.BytewiseComparator, a, b)

	require.True(t, m.First())
	require.True(t, m.Next())
	assert.Equal(t, "b", string(m.Key()))
	assert.False(t, m.Next())
	assert.ErrorIs(t, m.Err(), errBroken)
	assert.False(t, m.Valid())

	b.failAt = -1
	assert.True(t, m.First())
	assert.NoError(t, m.Err())
}

func TestMergeIteratorSingle(t *testing.T) {
	a := newSliceIterator(entry{"a", "1"})
	assert.Same(t, iterator.Iterator(a), iterator.NewMergeIterator(keys.BytewiseComparator, a))
	assert.False(t, iterator.NewMergeIterator(keys.BytewiseComparator).First())
}

func TestIndexIterator(t *testing.T) {
	blocks := map[string]*sliceIterator{
		"b": newSliceIterator(entry{"a", "1"}, entry{"b", "2"}),
		"d": newSliceIterator(),
		"f": newSliceIterator(entry{"e", "5"}, entry{"f", "6"}),
	}
	index := newSliceIterator(entry{"b", "b"}, entry{"d", "d"}, entry{"f", "f"})
	it := iterator.NewIndexIterator(index, func(value []byte) iterator.Iterator {
		return blocks[string(value)]
	})

	assert.Equal(t, []string{"a", "b", "e", "f"}, collect(it, it.First()))
	assert.Equal(t, []string{"e", "f"}, collect(it, it.Seek([]byte("c"))))
	assert.False(t, it.Seek([]byte("g")))

	blocks["f"].failAt = 0
	assert.False(t, it.Seek([]byte("c")))
	assert.ErrorIs(t, it.Err(), errBroken)
	assert.ErrorIs(t, it.Close(), errBroken)
}

func TestEmptyAndErrorIterators(t *testing.T) {
	empty := iterator.Empty()
	assert.False(t, empty.First())
	assert.False(t, empty.Seek([]byte("a")))
	assert.Panics(t, func() { empty.Key() })
	assert.NoError(t, empty.Close())

	errIt := iterator.Error(errBroken)
	assert.False(t, errIt.First())
	assert.ErrorIs(t, errIt.Err(), errBroken)
	assert.Panics(t, func() { errIt.Next() })
}

func TestCleanupAndNext(t *testing.T) {
	cleaned := false
	a := newSliceIterator(entry{"a", "1"}, entry{"b", "2"})
	it := iterator.WithCleanup(a, func() error {
		cleaned = true
		return nil
	})
	assert.True(t, iterator.Next(it))
	assert.Equal(t, "a", string(it.Key()))
	assert.True(t, iterator.Next(it))
	assert.Equal(t, "b", string(it.Key()))
	assert.NoError(t, it.Close())
	assert.True(t, cleaned)
	assert.True(t, a.closed)
}
