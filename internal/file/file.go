// Package file abstracts the file system used by a database.
package file

import (
	"io"
	"os"
	"sort"
)

// File is an open file.
type File interface {
	io.Reader
	io.Writer
	io.ReaderAt
	io.Closer
	Sync() error
	Stat() (os.FileInfo, error)
}

// FileSystem defines the file operations a database needs.
type FileSystem interface {
	// Open opens a file with the given os.O_* flags.
	Open(name string, flag int) (File, error)

	// Lock takes an exclusive lock on name. It fails instead of blocking
	// when the lock is held by someone else.
	Lock(name string) (io.Closer, error)

	// Exists reports whether name exists.
	Exists(name string) bool

	// MkdirAll creates a directory and all missing parents.
	MkdirAll(path string) error

	// List returns the sorted names of entries in dir.
	List(dir string) ([]string, error)

	// Remove removes a file.
	Remove(name string) error

	// Rename moves oldpath to newpath, replacing it if it exists.
	Rename(oldpath, newpath string) error
}

type osFileSystem struct{}

// DefaultFileSystem is backed by package os.
var DefaultFileSystem FileSystem = osFileSystem{}

func (osFileSystem) Open(name string, flag int) (File, error) {
	return os.OpenFile(name, flag, 0644)
}

func (osFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func (osFileSystem) MkdirAll(path string) error {
	return os.MkdirAll(path, 0755)
}

func (osFileSystem) List(dir string) ([]string, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}

func (osFileSystem) Remove(name string) error {
	return os.Remove(name)
}

func (osFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// Size returns the size of an open file.
func Size(f File) (int64, error) {
	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
