// Package logger defines the leveled logger used by the engine.
package logger

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Logger is implemented by clients wanting engine diagnostics.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// LogCloser is a Logger owning a resource.
type LogCloser interface {
	Logger
	io.Closer
}

type nopLogger struct{}

func (nopLogger) Debugf(format string, args ...interface{}) {}
func (nopLogger) Infof(format string, args ...interface{})  {}
func (nopLogger) Warnf(format string, args ...interface{})  {}
func (nopLogger) Errorf(format string, args ...interface{}) {}
func (nopLogger) Close() error                              { return nil }

// Discard drops everything.
var Discard LogCloser = nopLogger{}

type nopCloser struct {
	Logger
}

func (nopCloser) Close() error { return nil }

// NopCloser wraps l with a no-op Close, for loggers owned by clients.
func NopCloser(l Logger) LogCloser {
	return nopCloser{l}
}

type writerLogger struct {
	mu  sync.Mutex
	w   io.WriteCloser
	buf []byte
	now func() time.Time
}

// New returns a logger writing one line per entry to w, prefixed with time
// and severity. Close closes w.
func New(w io.WriteCloser) LogCloser {
	return &writerLogger{w: w, now: time.Now}
}

func (l *writerLogger) printf(severity, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = l.now().AppendFormat(l.buf[:0], "2006/01/02-15:04:05.000000 ")
	l.buf = append(l.buf, severity...)
	l.buf = append(l.buf, ' ')
	l.buf = fmt.Appendf(l.buf, format, args...)
	if l.buf[len(l.buf)-1] != '\n' {
		l.buf = append(l.buf, '\n')
	}
	l.w.Write(l.buf)
}

func (l *writerLogger) Debugf(format string, args ...interface{}) {
	l.printf("DEBUG", format, args...)
}

func (l *writerLogger) Infof(format string, args ...interface{}) {
	l.printf("INFO", format, args...)
}

func (l *writerLogger) Warnf(format string, args ...interface{}) {
	l.printf("WARN", format, args...)
}

func (l *writerLogger) Errorf(format string, args ...interface{}) {
	l.printf("ERROR", format, args...)
}

func (l *writerLogger) Close() error {
	return l.w.Close()
}
