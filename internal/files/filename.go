// Package files names the files a database keeps in its directory.
package files

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind classifies files in a database directory.
type Kind int

const (
	Invalid Kind = iota
	Lock
	Table
	Temp
	InfoLog
)

func (k Kind) String() string {
	switch k {
	case Lock:
		return "LOCK"
	case Table:
		return "TABLE"
	case Temp:
		return "TEMP"
	case InfoLog:
		return "LOG"
	}
	return "INVALID"
}

func LockFileName(dbname string) string {
	return filepath.Join(dbname, "LOCK")
}

func InfoLogFileName(dbname string) string {
	return filepath.Join(dbname, "LOG")
}

func OldInfoLogFileName(dbname string) string {
	return filepath.Join(dbname, "LOG.old")
}

func TableFileName(dbname string, number uint64) string {
	return makeFileName(dbname, number, "ldb")
}

func TempFileName(dbname string, number uint64) string {
	return makeFileName(dbname, number, "dbtmp")
}

func makeFileName(dbname string, number uint64, ext string) string {
	return filepath.Join(dbname, fmt.Sprintf("%06d.%s", number, ext))
}

// Parse classifies name, which may be a path, and extracts its file number.
func Parse(name string) (Kind, uint64) {
	name = filepath.Base(name)
	switch name {
	case "LOCK":
		return Lock, 0
	case "LOG", "LOG.old":
		return InfoLog, 0
	}
	i := strings.IndexByte(name, '.')
	if i <= 0 {
		return Invalid, 0
	}
	var kind Kind
	switch name[i+1:] {
	case "ldb", "sst":
		kind = Table
	case "dbtmp":
		kind = Temp
	default:
		return Invalid, 0
	}
	number, err := strconv.ParseUint(name[:i], 10, 64)
	if err != nil {
		return Invalid, 0
	}
	return kind, number
}
