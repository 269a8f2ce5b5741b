package keys_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kezhuw/lsmtail/internal/keys"
)

func TestInternalKeyLayout(t *testing.T) {
	ikey := keys.NewInternalKey([]byte("key"), 0x00123456789abcde, keys.Value)
	require.Equal(t, []byte{'k', 'e', 'y', 0x01, 0xde, 0xbc, 0x9a, 0x78, 0x56, 0x34, 0x12}, []byte(ikey))

	ukey, seq, kind := ikey.Split()
	assert.Equal(t, []byte("key"), ukey)
	assert.Equal(t, keys.Sequence(0x00123456789abcde), seq)
	assert.Equal(t, keys.Value, kind)
	assert.Equal(t, keys.PackTag(seq, kind), ikey.Tag())

	appended := keys.AppendInternalKey([]byte("x"), []byte("key"), seq, kind)
	assert.Equal(t, append([]byte("x"), ikey...), appended)
}

func TestToInternalKey(t *testing.T) {
	_, ok := keys.ToInternalKey(make([]byte, keys.TagBytes-1))
	assert.False(t, ok)
	ikey, ok := keys.ToInternalKey(make([]byte, keys.TagBytes))
	assert.True(t, ok)
	assert.Len(t, ikey.UserKey(), 0)
}

func TestParsedInternalKey(t *testing.T) {
	var k keys.ParsedInternalKey
	require.False(t, k.Parse([]byte("short")))

	ikey := keys.NewInternalKey([]byte("abc"), 42, keys.Delete)
	require.True(t, k.Parse(ikey))
	assert.Equal(t, []byte("abc"), k.UserKey)
	assert.Equal(t, keys.Sequence(42), k.Sequence)
	assert.Equal(t, keys.Delete, k.Kind)
	assert.Equal(t, []byte(ikey), k.Append(nil))

	bad := keys.NewInternalKey([]byte("abc"), 42, keys.Kind(7))
	assert.False(t, k.Parse(bad))
}

func TestInternalComparatorOrdersNewestFirst(t *testing.T) {
	cmp := &keys.InternalComparator{UserKeyComparator: keys.BytewiseComparator}
	older := keys.NewInternalKey([]byte("k"), 1, keys.Value)
	newer := keys.NewInternalKey([]byte("k"), 2, keys.Delete)
	next := keys.NewInternalKey([]byte("l"), 9, keys.Value)

	assert.Equal(t, -1, cmp.Compare(newer, older))
	assert.Equal(t, 1, cmp.Compare(older, newer))
	assert.Equal(t, 0, cmp.Compare(older, older.Dup()))
	assert.Equal(t, -1, cmp.Compare(older, next))

	seek := keys.NewInternalKey([]byte("k"), 2, keys.Seek)
	assert.True(t, cmp.Compare(seek, newer) <= 0)
	assert.Equal(t, -1, cmp.Compare(seek, older))
}

func TestBytewiseSuccessor(t *testing.T) {
	tests := []struct {
		start, limit, want string
	}{
		{"aaaaaa", "aaaaaa", "aaaaaa"},
		{"aaaaaa", "aaaaab", "aaaaaa"},
		{"aaaaaa", "abcdefgh", "aab"},
		{"aaaaaa", "acdefgh", "ab"},
		{"aaaaaa", "", "b"},
		{"a\xff\xff", "a\xff\xff\xff", "a\xff\xff"},
		{"a\xf0\xff", "a\xff\xff\xff", "a\xf1"},
	}
	for _, test := range tests {
		var limit []byte
		if test.limit != "" {
			limit = []byte(test.limit)
		}
		got := keys.BytewiseComparator.AppendSuccessor([]byte("dst"), []byte(test.start), limit)
		assert.Equal(t, "dst"+test.want, string(got), "start=%q limit=%q", test.start, test.limit)
	}
	assert.Panics(t, func() {
		keys.BytewiseComparator.AppendSuccessor(nil, []byte("b"), []byte("a"))
	})
}

func TestBytewisePrefixSuccessor(t *testing.T) {
	assert.Equal(t, []byte("aabbccde"), keys.BytewiseComparator.MakePrefixSuccessor([]byte("aabbccdd")))
	assert.Equal(t, []byte{0x01, 0x04}, keys.BytewiseComparator.MakePrefixSuccessor([]byte{0x01, 0x03, 0xff}))
	assert.Nil(t, keys.BytewiseComparator.MakePrefixSuccessor([]byte{0xff, 0xff}))
}

func TestMinMax(t *testing.T) {
	a, b := []byte("a"), []byte("b")
	assert.Equal(t, a, keys.Min(keys.BytewiseComparator, a, b))
	assert.Equal(t, b, keys.Max(keys.BytewiseComparator, b, a))
}

func TestFixedPrefixExtractor(t *testing.T) {
	ex := keys.NewFixedPrefixExtractor(2)
	assert.Equal(t, "lsmtail.FixedPrefix.2", ex.Name())
	assert.False(t, ex.InDomain([]byte("0")))
	assert.Equal(t, []byte("01"), ex.Prefix([]byte("0102")))

	cmp := keys.BytewiseComparator
	assert.True(t, keys.SamePrefix(ex, cmp, []byte("0102"), []byte("0199")))
	assert.False(t, keys.SamePrefix(ex, cmp, []byte("0102"), []byte("0202")))
	assert.False(t, keys.SamePrefix(ex, cmp, []byte("0"), []byte("0")))
	assert.Panics(t, func() { keys.NewFixedPrefixExtractor(0) })
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "delete", keys.Delete.String())
	assert.Equal(t, "value", keys.Value.String())
	assert.Equal(t, "kind(5)", keys.Kind(5).String())
	assert.Equal(t, keys.Sequence(12), keys.Sequence(10).Add(2))
}
