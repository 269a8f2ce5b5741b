// Package compactor writes table files for flushes and compactions and
// records the result in version edits.
package compactor

import (
	"os"

	"github.com/kezhuw/lsmtail/internal/file"
	"github.com/kezhuw/lsmtail/internal/files"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/table"
	"github.com/kezhuw/lsmtail/internal/version"
)

type Compactor interface {
	// Level returns the input level, -1 for memtables.
	Level() int

	// Compact writes outputs and records the change in edit.
	Compact(edit *version.Edit) error

	// Rewind removes outputs written so far. Call it when Compact failed
	// or its edit could not be applied.
	Rewind()
}

// outputs tracks table files written by one compaction.
type outputs struct {
	dbname  string
	set     *version.Set
	options *options.Options
	fs      file.FileSystem

	files version.FileList

	number uint64
	file   file.File
	writer *table.Writer
}

func (o *outputs) open() error {
	number := o.set.NewFileNumber()
	f, err := o.fs.Open(files.TempFileName(o.dbname, number), os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		o.set.Forget(number)
		return err
	}
	o.number = number
	o.file = f
	o.writer = table.NewWriter(f, o.options)
	return nil
}

func (o *outputs) opened() bool {
	return o.file != nil
}

func (o *outputs) add(ikey, value []byte) error {
	return o.writer.Add(ikey, value)
}

// finish completes the current table. An empty table is discarded.
func (o *outputs) finish() error {
	f, w := o.file, o.writer
	if f == nil {
		return nil
	}
	o.file, o.writer = nil, nil
	if w.Empty() {
		f.Close()
		o.discard(o.number)
		return nil
	}
	meta := version.FileMeta{Number: o.number}
	err := w.Finish()
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = o.fs.Rename(files.TempFileName(o.dbname, o.number), files.TableFileName(o.dbname, o.number))
	}
	if err != nil {
		o.discard(o.number)
		return err
	}
	meta.Size = w.FileSize()
	meta.Smallest = keys.InternalKey(w.Smallest()).Dup()
	meta.Largest = keys.InternalKey(w.Largest()).Dup()
	o.files = append(o.files, meta)
	return nil
}

func (o *outputs) discard(number uint64) {
	o.fs.Remove(files.TempFileName(o.dbname, number))
	o.fs.Remove(files.TableFileName(o.dbname, number))
	o.set.Forget(number)
}

func (o *outputs) rewind() {
	if o.file != nil {
		o.file.Close()
		o.file, o.writer = nil, nil
		o.discard(o.number)
	}
	for _, f := range o.files {
		o.discard(f.Number)
	}
	o.files = o.files[:0]
}
