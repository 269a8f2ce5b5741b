package version

import (
	"fmt"
	"strings"

	"github.com/kezhuw/lsmtail/internal/keys"
)

type LevelFileNumber struct {
	Level  int
	Number uint64
}

type LevelFileMeta struct {
	Level int
	FileMeta
}

type LevelCompactPointer struct {
	Level   int
	Largest keys.InternalKey
}

// Edit describes changes from one Version to the next.
type Edit struct {
	AddedFiles      []LevelFileMeta
	DeletedFiles    []LevelFileNumber
	CompactPointers []LevelCompactPointer
}

func (edit *Edit) AddFile(level int, f FileMeta) {
	edit.AddedFiles = append(edit.AddedFiles, LevelFileMeta{Level: level, FileMeta: f})
}

func (edit *Edit) DeleteFile(level int, number uint64) {
	edit.DeletedFiles = append(edit.DeletedFiles, LevelFileNumber{Level: level, Number: number})
}

func (edit *Edit) SetCompactPointer(level int, largest keys.InternalKey) {
	edit.CompactPointers = append(edit.CompactPointers, LevelCompactPointer{Level: level, Largest: largest})
}

func (edit *Edit) String() string {
	var b strings.Builder
	for _, f := range edit.AddedFiles {
		fmt.Fprintf(&b, "add level %d file %06d size %d\n", f.Level, f.Number, f.Size)
	}
	for _, f := range edit.DeletedFiles {
		fmt.Fprintf(&b, "delete level %d file %06d\n", f.Level, f.Number)
	}
	return b.String()
}
