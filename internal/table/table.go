package table

import (
	"io"

	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/file"
	"github.com/kezhuw/lsmtail/internal/iterator"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/table/block"
)

// Table is an open table file. Its index and filters stay in memory while
// data blocks go through the block cache.
type Table struct {
	f          file.File
	fileNumber uint64
	blocks     *BlockCache
	options    *options.Options
	dataIndex  *block.Block

	keyFilter    []byte
	prefixFilter []byte
}

// Open reads the footer, index and meta blocks of a table. f is closed on
// failure.
func Open(f file.File, fileNumber, size uint64, blocks *BlockCache, opts *options.Options) (t *Table, err error) {
	defer func() {
		if err != nil {
			f.Close()
		}
	}()
	if size < footerLength {
		return nil, errors.NewCorruption(fileNumber, "table", 0, "file too short")
	}
	var buf [footerLength]byte
	if n, err := f.ReadAt(buf[:], int64(size-footerLength)); n < len(buf) {
		if err == nil || err == io.EOF {
			return nil, errors.NewCorruption(fileNumber, "footer", int64(size-footerLength), "truncated footer")
		}
		return nil, errors.Wrapf(err, "read footer of table %06d", fileNumber)
	}
	var ft footer
	if err := ft.decode(buf[:]); err != nil {
		return nil, errors.NewCorruption(fileNumber, "footer", int64(size-footerLength), err.Error())
	}
	contents, err := readBlock(f, fileNumber, ft.dataIndex, true)
	if err != nil {
		return nil, err
	}
	t = &Table{f: f, fileNumber: fileNumber, blocks: blocks, options: opts, dataIndex: block.New(contents)}
	if err := t.dataIndex.Err(); err != nil {
		return nil, errors.NewCorruption(fileNumber, "index", int64(ft.dataIndex.Offset), err.Error())
	}
	if err := t.readMetaBlocks(ft.metaIndex); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Table) readMetaBlocks(h block.Handle) error {
	if t.options.Filter == nil {
		return nil
	}
	contents, err := readBlock(t.f, t.fileNumber, h, true)
	if err != nil {
		return err
	}
	it := block.New(contents).NewIterator(keys.BytewiseComparator)
	defer it.Close()
	for ok := it.First(); ok; ok = it.Next() {
		var dst *[]byte
		switch string(it.Key()) {
		case keyFilterPrefix + t.options.Filter.Name():
			dst = &t.keyFilter
		case prefixFilterPrefix + t.options.Filter.Name():
			dst = &t.prefixFilter
		default:
			continue
		}
		fh, n := block.DecodeHandle(it.Value())
		if n <= 0 {
			return errors.NewCorruption(t.fileNumber, "meta index", int64(h.Offset), "bad filter handle")
		}
		if *dst, err = readBlock(t.f, t.fileNumber, fh, true); err != nil {
			return err
		}
	}
	return it.Err()
}

// MayContainPrefix reports whether some key in the table may start with
// prefix. Tables written without a prefix filter always may.
func (t *Table) MayContainPrefix(prefix []byte) bool {
	if t.prefixFilter == nil {
		return true
	}
	return t.options.Filter.Contains(t.prefixFilter, prefix)
}

func (t *Table) mayContainKey(ukey []byte) bool {
	if t.keyFilter == nil {
		return true
	}
	return t.options.Filter.Contains(t.keyFilter, ukey)
}

// Get finds the newest entry of ikey's user key no newer than ikey. ok is
// false when the table has no entry for the user key.
func (t *Table) Get(ikey keys.InternalKey, opts *options.ReadOptions) (value []byte, err error, ok bool) {
	if !t.mayContainKey(ikey.UserKey()) {
		return nil, nil, false
	}
	it := t.NewIterator(opts)
	defer it.Close()
	if !it.Seek(ikey) {
		err := it.Err()
		return nil, err, err != nil
	}
	ukey, _, kind := keys.InternalKey(it.Key()).Split()
	if t.options.Comparator.UserKeyComparator.Compare(ukey, ikey.UserKey()) != 0 {
		return nil, nil, false
	}
	if kind == keys.Delete {
		return nil, errors.ErrNotFound, true
	}
	return append([]byte(nil), it.Value()...), nil, true
}

func (t *Table) blockIterator(value []byte, opts *options.ReadOptions) iterator.Iterator {
	h, n := block.DecodeHandle(value)
	if n <= 0 {
		return iterator.Error(errors.NewCorruption(t.fileNumber, "index", -1, "bad block handle"))
	}
	b, err := t.blocks.Read(t.f, t.fileNumber, h, opts)
	if err != nil {
		return iterator.Error(err)
	}
	if err := b.Err(); err != nil {
		return iterator.Error(errors.NewCorruption(t.fileNumber, "block", int64(h.Offset), err.Error()))
	}
	return b.NewIterator(t.options.Comparator)
}

// NewIterator iterates entries of the table. With a cache only read tier,
// moving onto a block missing from the block cache fails the iterator
// with an incomplete error.
func (t *Table) NewIterator(opts *options.ReadOptions) iterator.Iterator {
	return iterator.NewIndexIterator(t.dataIndex.NewIterator(t.options.Comparator), func(value []byte) iterator.Iterator {
		return t.blockIterator(value, opts)
	})
}

// Close closes the underlying file.
func (t *Table) Close() error {
	return t.f.Close()
}
