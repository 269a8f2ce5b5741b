package lsmtail

import (
	"io"

	"github.com/kezhuw/lsmtail/internal/logger"
)

type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// DiscardLogger is a nop Logger.
var DiscardLogger Logger = logger.Discard

// NewLogger returns a Logger writing timestamped lines to w.
func NewLogger(w io.Writer) Logger {
	return logger.New(nopWriteCloser{w})
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

var _ Logger = (logger.Logger)(nil)
var _ logger.Logger = (Logger)(nil)
