package keys

import "strconv"

// PrefixExtractor maps keys to the prefix used for prefix seeks and
// prefix bloom filters.
type PrefixExtractor interface {
	Name() string

	// InDomain reports whether key has a prefix at all.
	InDomain(key []byte) bool

	// Prefix returns the prefix of a key in domain.
	Prefix(key []byte) []byte
}

type fixedPrefix int

// NewFixedPrefixExtractor returns an extractor taking the first n bytes of
// keys. Keys shorter than n are out of domain.
func NewFixedPrefixExtractor(n int) PrefixExtractor {
	if n <= 0 {
		panic("lsmtail: fixed prefix length must be positive")
	}
	return fixedPrefix(n)
}

func (n fixedPrefix) Name() string {
	return "lsmtail.FixedPrefix." + strconv.Itoa(int(n))
}

func (n fixedPrefix) InDomain(key []byte) bool {
	return len(key) >= int(n)
}

func (n fixedPrefix) Prefix(key []byte) []byte {
	return key[:n:n]
}

// SamePrefix reports whether a and b are both in domain and share a prefix.
func SamePrefix(ex PrefixExtractor, cmp Comparer, a, b []byte) bool {
	if !ex.InDomain(a) || !ex.InDomain(b) {
		return false
	}
	return cmp.Compare(ex.Prefix(a), ex.Prefix(b)) == 0
}
