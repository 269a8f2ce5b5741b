package keys

import (
	"bytes"
	"fmt"
)

// Comparer compares byte slices.
type Comparer interface {
	// Compare returns -1, 0 or +1 when a is less than, equal to or greater
	// than b.
	Compare(a, b []byte) int
}

// Comparator defines a total order over keys. Methods may be called from
// concurrent goroutines.
type Comparator interface {
	Comparer

	// Name identifies the order. Names starting with "lsmtail." are reserved.
	Name() string

	// AppendSuccessor appends to dst a short key in [start, limit). An empty
	// limit is treated as infinity.
	AppendSuccessor(dst, start, limit []byte) []byte
}

// UserComparator is the comparator clients plug into a database.
type UserComparator interface {
	Comparator

	// MakePrefixSuccessor returns the smallest key greater than every key
	// starting with prefix, or nil if there is none.
	MakePrefixSuccessor(prefix []byte) []byte
}

// Max returns the greater of a and b.
func Max(cmp Comparer, a, b []byte) []byte {
	if cmp.Compare(a, b) > 0 {
		return a
	}
	return b
}

// Min returns the lesser of a and b.
func Min(cmp Comparer, a, b []byte) []byte {
	if cmp.Compare(a, b) < 0 {
		return a
	}
	return b
}

type bytewiseComparator struct{}

// BytewiseComparator orders keys lexicographically.
var BytewiseComparator UserComparator = bytewiseComparator{}

func (bytewiseComparator) Name() string {
	return "lsmtail.BytewiseComparator"
}

func (bytewiseComparator) Compare(a, b []byte) int {
	return bytes.Compare(a, b)
}

func (bytewiseComparator) MakePrefixSuccessor(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if c := prefix[i]; c != 0xff {
			limit := make([]byte, i+1)
			copy(limit, prefix[:i])
			limit[i] = c + 1
			return limit
		}
	}
	return nil
}

func (bytewiseComparator) AppendSuccessor(dst, start, limit []byte) []byte {
	n := len(dst)
	dst = append(dst, start...)
	i := 0
	if len(limit) != 0 {
		for i < len(start) && i < len(limit) && start[i] == limit[i] {
			i++
		}
		switch {
		case i == len(start):
			return dst
		case i == len(limit) || start[i] > limit[i]:
			panic(fmt.Sprintf("lsmtail: successor limit %q is less than start %q", limit, start))
		case start[i]+1 < limit[i]:
			dst[n+i]++
			return dst[:n+i+1]
		}
		i++
	}
	for ; i < len(start); i++ {
		if start[i] != 0xff {
			dst[n+i]++
			return dst[:n+i+1]
		}
	}
	return dst
}

// InternalComparator orders internal keys by ascending user key, then by
// descending tag, so the newest version of a user key comes first.
type InternalComparator struct {
	UserKeyComparator UserComparator
}

// Name implements Comparator.Name.
func (cmp *InternalComparator) Name() string {
	return "lsmtail.InternalKeyComparator"
}

// Compare implements Comparer.Compare.
func (cmp *InternalComparator) Compare(a, b []byte) int {
	if r := cmp.UserKeyComparator.Compare(InternalKey(a).UserKey(), InternalKey(b).UserKey()); r != 0 {
		return r
	}
	ta, tb := InternalKey(a).Tag(), InternalKey(b).Tag()
	switch {
	case ta > tb:
		return -1
	case ta < tb:
		return 1
	}
	return 0
}

// AppendSuccessor implements Comparator.AppendSuccessor. The tag of start
// is kept.
func (cmp *InternalComparator) AppendSuccessor(dst, start, limit []byte) []byte {
	ustart := InternalKey(start).UserKey()
	var ulimit []byte
	if len(limit) != 0 {
		ulimit = InternalKey(limit).UserKey()
	}
	dst = cmp.UserKeyComparator.AppendSuccessor(dst, ustart, ulimit)
	return append(dst, start[len(ustart):]...)
}

var _ Comparator = (*InternalComparator)(nil)
