package version

import (
	"github.com/kezhuw/lsmtail/internal/configs"
	"github.com/kezhuw/lsmtail/internal/iterator"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/options"
)

// Compaction merges Inputs[0] from Level with overlapping Inputs[1] from
// Level+1 into new files at Level+1.
type Compaction struct {
	Level                          int
	Base                           *Version
	Inputs                         [2]FileList
	Grandparents                   FileList
	MaxOutputFileSize              uint64
	MaxGrandparentOverlappingBytes uint64
	NextCompactPointer             keys.InternalKey

	icmp *keys.InternalComparator

	grandparentIndex int
	seenKey          bool
	overlappedBytes  uint64
	levelPointers    [configs.NumberLevels]int
}

// NewIterator merges all inputs. Reads verify checksums and leave the
// block cache alone.
func (c *Compaction) NewIterator() iterator.Iterator {
	v := c.Base
	opts := &options.ReadOptions{DontFillCache: true, VerifyChecksums: true}
	var iterators []iterator.Iterator
	inputs0 := c.Inputs[0]
	switch c.Level {
	case 0:
		iterators = make([]iterator.Iterator, 0, len(inputs0)+1)
		for _, f := range inputs0 {
			iterators = append(iterators, v.cache.NewIterator(f.Number, f.Size, opts))
		}
	default:
		iterators = make([]iterator.Iterator, 1, 2)
		iterators[0] = NewLevelIterator(v.icmp, inputs0, v.cache, opts)
	}
	if inputs1 := c.Inputs[1]; len(inputs1) != 0 {
		iterators = append(iterators, NewLevelIterator(v.icmp, inputs1, v.cache, opts))
	}
	return iterator.NewMergeIterator(v.icmp, iterators...)
}

// IsTrivialMove reports whether the single input file can move to the
// next level without rewriting.
func (c *Compaction) IsTrivialMove() bool {
	return len(c.Inputs[0]) == 1 && len(c.Inputs[1]) == 0 && c.Grandparents.TotalFileSize() <= c.MaxGrandparentOverlappingBytes
}

// IsBaseLevelForKey reports whether no level below the output level may
// hold ukey. Calls must come in increasing key order.
func (c *Compaction) IsBaseLevelForKey(ukey []byte) bool {
	ucmp := c.icmp.UserKeyComparator
	for level := c.Level + 2; level < configs.NumberLevels; level++ {
		files := c.Base.Levels[level]
		for i := c.levelPointers[level]; i < len(files); i++ {
			f := files[i]
			if ucmp.Compare(ukey, f.Largest.UserKey()) <= 0 {
				if ucmp.Compare(ukey, f.Smallest.UserKey()) >= 0 {
					return false
				}
				break
			}
			c.levelPointers[level]++
		}
	}
	return true
}

// ShouldStopBefore reports whether the current output file should end
// before ikey to bound its overlap with grandparents.
func (c *Compaction) ShouldStopBefore(ikey keys.InternalKey) bool {
	grandparents := c.Grandparents
	for c.grandparentIndex < len(grandparents) && c.icmp.Compare(ikey, grandparents[c.grandparentIndex].Largest) > 0 {
		if c.seenKey {
			c.overlappedBytes += grandparents[c.grandparentIndex].Size
		}
		c.grandparentIndex++
	}
	c.seenKey = true
	if c.overlappedBytes > c.MaxGrandparentOverlappingBytes {
		c.overlappedBytes = 0
		return true
	}
	return false
}

// AddInputDeletions records deletion of all inputs in edit.
func (c *Compaction) AddInputDeletions(edit *Edit) {
	for which, files := range c.Inputs {
		for _, f := range files {
			edit.DeleteFile(c.Level+which, f.Number)
		}
	}
}

// InputNumbers returns numbers of all input files.
func (c *Compaction) InputNumbers() []uint64 {
	return append(c.Inputs[0].Numbers(), c.Inputs[1].Numbers()...)
}

// Release unpins the base version.
func (c *Compaction) Release() {
	if c.Base != nil {
		c.Base.Release()
		c.Base = nil
	}
}
