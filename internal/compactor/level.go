package compactor

import (
	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/version"
)

// NewLevelCompactor returns a compactor for compaction. A single input
// file without overlaps moves to the next level untouched.
func NewLevelCompactor(dbname string, set *version.Set, smallestSequence keys.Sequence, compaction *version.Compaction, opts *options.Options) Compactor {
	if compaction.IsTrivialMove() {
		return &moveCompactor{c: compaction}
	}
	return &levelCompactor{
		Compaction:       compaction,
		ucmp:             opts.Comparator.UserKeyComparator,
		smallestSequence: smallestSequence,
		outputs:          outputs{dbname: dbname, set: set, options: opts, fs: opts.FileSystem},
	}
}

type moveCompactor struct {
	c *version.Compaction
}

func (c *moveCompactor) Level() int {
	return c.c.Level
}

func (c *moveCompactor) Rewind() {
}

func (c *moveCompactor) Compact(edit *version.Edit) error {
	input := c.c.Inputs[0][0]
	edit.DeleteFile(c.c.Level, input.Number)
	edit.AddFile(c.c.Level+1, input)
	edit.SetCompactPointer(c.c.Level, c.c.NextCompactPointer)
	return nil
}

type levelCompactor struct {
	*version.Compaction

	ucmp             keys.UserComparator
	smallestSequence keys.Sequence

	outputs outputs
}

func (c *levelCompactor) Level() int {
	return c.Compaction.Level
}

func (c *levelCompactor) Rewind() {
	c.outputs.rewind()
}

// add writes an entry. Output files only switch on user key boundaries so
// that files of the output level never share a user key.
func (c *levelCompactor) add(key, value []byte, firstOfUserKey bool) error {
	o := &c.outputs
	switch {
	case !o.opened():
	case firstOfUserKey && (o.writer.ApproximateFileSize() >= c.MaxOutputFileSize || c.ShouldStopBefore(key)):
		if err := o.finish(); err != nil {
			return err
		}
	default:
		return o.add(key, value)
	}
	if err := o.open(); err != nil {
		return err
	}
	return o.add(key, value)
}

func (c *levelCompactor) compact() error {
	it := c.NewIterator()
	defer it.Close()

	var lastUserKey []byte
	hasUserKey := false
	lastSequence := keys.MaxSequence
	for ok := it.First(); ok; ok = it.Next() {
		ikey, ok := keys.ToInternalKey(it.Key())
		if !ok {
			return errors.ErrCorruptInternalKey
		}
		currentUserKey, currentSequence, kind := ikey.Split()
		if !hasUserKey || c.ucmp.Compare(lastUserKey, currentUserKey) != 0 {
			lastUserKey = append(lastUserKey[:0], currentUserKey...)
			hasUserKey = true
			lastSequence = keys.MaxSequence
		}
		switch {
		case lastSequence <= c.smallestSequence:
			// Shadowed by a newer version every reader sees.
		case kind == keys.Delete && currentSequence <= c.smallestSequence && c.IsBaseLevelForKey(currentUserKey):
		default:
			if err := c.add(ikey, it.Value(), lastSequence == keys.MaxSequence); err != nil {
				return err
			}
		}
		lastSequence = currentSequence
	}
	if err := it.Err(); err != nil {
		return err
	}
	return c.outputs.finish()
}

func (c *levelCompactor) Compact(edit *version.Edit) error {
	if err := c.compact(); err != nil {
		c.outputs.rewind()
		return err
	}
	c.AddInputDeletions(edit)
	for _, f := range c.outputs.files {
		edit.AddFile(c.Compaction.Level+1, f)
	}
	edit.SetCompactPointer(c.Compaction.Level, c.NextCompactPointer)
	return nil
}
