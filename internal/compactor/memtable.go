package compactor

import (
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/memtable"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/version"
)

// NewMemTableCompactor returns a compactor flushing mem to a level 0 file.
// Versions shadowed by a newer one at or below smallestSequence are
// dropped.
func NewMemTableCompactor(dbname string, set *version.Set, smallestSequence keys.Sequence, mem *memtable.MemTable, opts *options.Options) Compactor {
	return &memtableCompactor{
		mem:              mem,
		smallestSequence: smallestSequence,
		ucmp:             opts.Comparator.UserKeyComparator,
		outputs:          outputs{dbname: dbname, set: set, options: opts, fs: opts.FileSystem},
	}
}

type memtableCompactor struct {
	mem              *memtable.MemTable
	smallestSequence keys.Sequence
	ucmp             keys.UserComparator

	outputs outputs
}

func (c *memtableCompactor) Level() int {
	return -1
}

func (c *memtableCompactor) Rewind() {
	c.outputs.rewind()
}

func (c *memtableCompactor) compact() error {
	it := c.mem.NewIterator()
	defer it.Close()

	if !it.First() {
		return it.Err()
	}
	if err := c.outputs.open(); err != nil {
		return err
	}
	if err := c.outputs.add(it.Key(), it.Value()); err != nil {
		return err
	}
	lastUserKey, lastSequence, _ := keys.InternalKey(it.Key()).Split()
	lastUserKey = append([]byte(nil), lastUserKey...)
	for it.Next() {
		key := it.Key()
		currentUserKey, currentSequence, _ := keys.InternalKey(key).Split()
		if lastSequence <= c.smallestSequence && c.ucmp.Compare(lastUserKey, currentUserKey) == 0 {
			continue
		}
		if err := c.outputs.add(key, it.Value()); err != nil {
			return err
		}
		lastUserKey, lastSequence = append(lastUserKey[:0], currentUserKey...), currentSequence
	}
	if err := it.Err(); err != nil {
		return err
	}
	return c.outputs.finish()
}

func (c *memtableCompactor) Compact(edit *version.Edit) error {
	if err := c.compact(); err != nil {
		c.outputs.rewind()
		return err
	}
	for _, f := range c.outputs.files {
		edit.AddFile(0, f)
	}
	return nil
}
