//go:build unix

package file

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/kezhuw/lsmtail/internal/errors"
)

type lockCloser struct {
	f *os.File
}

func (l lockCloser) Close() error {
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return errors.FirstError(l.f.Close(), err)
}

func (osFileSystem) Lock(name string) (io.Closer, error) {
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "lock %s", name)
	}
	return lockCloser{f}, nil
}
