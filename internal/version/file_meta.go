package version

import (
	"sort"

	"github.com/kezhuw/lsmtail/internal/keys"
)

// FileMeta contains meta info for a sorted table.
type FileMeta struct {
	Number   uint64
	Size     uint64
	Smallest keys.InternalKey
	Largest  keys.InternalKey
}

// FileList is a list of files in one level.
type FileList []FileMeta

// TotalFileSize sums sizes of all files.
func (files FileList) TotalFileSize() (size uint64) {
	for _, f := range files {
		size += f.Size
	}
	return size
}

// Numbers returns file numbers in list order.
func (files FileList) Numbers() []uint64 {
	numbers := make([]uint64, len(files))
	for i, f := range files {
		numbers[i] = f.Number
	}
	return numbers
}

// Index returns the position of file number in files, or -1.
func (files FileList) Index(number uint64) int {
	for i, f := range files {
		if f.Number == number {
			return i
		}
	}
	return -1
}

// SameFiles reports whether files and other hold the same files in the
// same order.
func (files FileList) SameFiles(other FileList) bool {
	if len(files) != len(other) {
		return false
	}
	for i := range files {
		if files[i].Number != other[i].Number {
			return false
		}
	}
	return true
}

type byNewestFileMeta []FileMeta

var _ sort.Interface = (byNewestFileMeta)(nil)

func (files byNewestFileMeta) Len() int {
	return len(files)
}

func (files byNewestFileMeta) Less(i, j int) bool {
	return files[i].Number > files[j].Number
}

func (files byNewestFileMeta) Swap(i, j int) {
	files[i], files[j] = files[j], files[i]
}

type byFileKey struct {
	cmp   keys.Comparer
	files []FileMeta
}

var _ sort.Interface = (*byFileKey)(nil)

func (by *byFileKey) Len() int {
	return len(by.files)
}

func (by *byFileKey) Less(i, j int) bool {
	return by.cmp.Compare(by.files[i].Smallest, by.files[j].Smallest) < 0
}

func (by *byFileKey) Swap(i, j int) {
	by.files[i], by.files[j] = by.files[j], by.files[i]
}
