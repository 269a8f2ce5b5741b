package lsmtail

import "github.com/kezhuw/lsmtail/internal/keys"

// Comparator defines a total order over keys in database.
// Methods of a comparator may be called by concurrent goroutines.
type Comparator interface {
	// Name returns the name of this comparator.
	Name() string

	// Compare returns a value 'less than', 'equal to' or 'greater than' 0 depending
	// on whether a is 'less than', 'equal to' or 'greater than' b.
	Compare(a, b []byte) int

	// AppendSuccessor appends a possibly shortest byte sequence in range [start, limit)
	// to dst. Empty limit acts as infinite large. In particularly, if limit equals to
	// start, it returns append(dst, start).
	AppendSuccessor(dst, start, limit []byte) []byte

	// MakePrefixSuccessor returns a byte sequence 'limit' such that all byte sequences
	// falling in [prefix, limit) have 'prefix' as prefix. Zero length 'limit' acts as
	// infinite large.
	MakePrefixSuccessor(prefix []byte) []byte
}

// BytewiseComparator is an lexicographic ordering comparator, it has same ordring with bytes.Compare.
var BytewiseComparator Comparator = keys.BytewiseComparator

var _ Comparator = (keys.UserComparator)(nil)
var _ keys.UserComparator = (Comparator)(nil)

// PrefixExtractor maps keys to prefixes for prefix seeks. Keys sharing a
// prefix must be contiguous under the comparator.
type PrefixExtractor interface {
	// Name returns the name of this extractor.
	Name() string

	// InDomain reports whether key has a prefix. Seeks to keys out of
	// domain are not prefix restricted.
	InDomain(key []byte) bool

	// Prefix returns the prefix of a key in domain.
	Prefix(key []byte) []byte
}

var _ PrefixExtractor = (keys.PrefixExtractor)(nil)
var _ keys.PrefixExtractor = (PrefixExtractor)(nil)

// NewFixedPrefixExtractor returns an extractor taking the first n bytes of
// keys as prefix. Keys shorter than n are out of domain.
func NewFixedPrefixExtractor(n int) PrefixExtractor {
	return keys.NewFixedPrefixExtractor(n)
}
