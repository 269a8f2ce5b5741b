package version

import (
	"encoding/binary"
	"sort"

	"github.com/kezhuw/lsmtail/internal/iterator"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/table"
)

// fileIterator indexes a sorted file list by largest key. Values encode
// file number and size.
type fileIterator struct {
	icmp    keys.Comparator
	opts    *options.ReadOptions
	files   FileList
	cache   *table.Cache
	index   int
	scratch [16]byte
}

func (it *fileIterator) First() bool {
	it.index = 0
	return it.Valid()
}

func (it *fileIterator) Next() bool {
	it.index++
	return it.Valid()
}

func (it *fileIterator) Seek(ikey []byte) bool {
	it.index = sort.Search(len(it.files), func(i int) bool { return it.icmp.Compare(ikey, it.files[i].Largest) <= 0 })
	return it.Valid()
}

func (it *fileIterator) Valid() bool {
	return it.index >= 0 && it.index < len(it.files)
}

func (it *fileIterator) Key() []byte {
	return it.files[it.index].Largest
}

func (it *fileIterator) Value() []byte {
	binary.LittleEndian.PutUint64(it.scratch[:8], it.files[it.index].Number)
	binary.LittleEndian.PutUint64(it.scratch[8:], it.files[it.index].Size)
	return it.scratch[:]
}

func (it *fileIterator) Err() error {
	return nil
}

func (it *fileIterator) Close() error {
	it.opts = nil
	it.files = nil
	it.cache = nil
	return nil
}

func (it *fileIterator) child(value []byte) iterator.Iterator {
	fileNumber := binary.LittleEndian.Uint64(value[:8])
	fileSize := binary.LittleEndian.Uint64(value[8:])
	return it.cache.NewIterator(fileNumber, fileSize, it.opts)
}

// NewLevelIterator returns an iterator over files sorted by key and not
// overlapping each other. Tables are opened lazily as iteration reaches
// them.
func NewLevelIterator(icmp keys.Comparator, files FileList, cache *table.Cache, opts *options.ReadOptions) iterator.Iterator {
	if len(files) == 0 {
		return iterator.Empty()
	}
	index := &fileIterator{icmp: icmp, files: files, cache: cache, opts: opts, index: -1}
	return iterator.NewIndexIterator(index, index.child)
}
