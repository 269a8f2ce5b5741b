package keys

// InternalKey is a user key followed by a tag. All keys stored in memtables
// and tables are internal keys.
type InternalKey []byte

// ToInternalKey reports whether key is long enough to be an internal key.
func ToInternalKey(key []byte) (InternalKey, bool) {
	n := len(key)
	if n < TagBytes {
		return nil, false
	}
	return InternalKey(key[:n:n]), true
}

// MakeInternalKey writes key, seq and kind into buf, which must have room
// for len(key)+TagBytes bytes.
func MakeInternalKey(buf []byte, key []byte, seq Sequence, kind Kind) InternalKey {
	n := copy(buf, key)
	PackTag(seq, kind).Put(buf[n : n+TagBytes])
	n += TagBytes
	return InternalKey(buf[:n:n])
}

// NewInternalKey allocates an internal key.
func NewInternalKey(key []byte, seq Sequence, kind Kind) InternalKey {
	return MakeInternalKey(make([]byte, len(key)+TagBytes), key, seq, kind)
}

// AppendInternalKey appends the internal key of (key, seq, kind) to dst.
func AppendInternalKey(dst []byte, key []byte, seq Sequence, kind Kind) []byte {
	var buf [TagBytes]byte
	PackTag(seq, kind).Put(buf[:])
	dst = append(dst, key...)
	return append(dst, buf[:]...)
}

// Dup returns a copy of ikey.
func (ikey InternalKey) Dup() InternalKey {
	if ikey == nil {
		return nil
	}
	dup := make([]byte, len(ikey))
	copy(dup, ikey)
	return dup
}

// UserKey returns the user key part.
func (ikey InternalKey) UserKey() []byte {
	i := len(ikey) - TagBytes
	return ikey[:i:i]
}

// Tag returns the tag part.
func (ikey InternalKey) Tag() Tag {
	return GetTag(ikey[len(ikey)-TagBytes:])
}

// Split splits ikey into user key, sequence and kind.
func (ikey InternalKey) Split() ([]byte, Sequence, Kind) {
	i := len(ikey) - TagBytes
	seq, kind := GetTag(ikey[i:]).Unpack()
	return ikey[:i:i], seq, kind
}

// ParsedInternalKey is an internal key split into its parts.
type ParsedInternalKey struct {
	UserKey  []byte
	Sequence Sequence
	Kind     Kind
}

// Parse fills k from key. It returns false for keys too short to carry a
// tag or with an unknown kind.
func (k *ParsedInternalKey) Parse(key []byte) bool {
	i := len(key) - TagBytes
	if i < 0 {
		return false
	}
	k.UserKey = key[:i:i]
	k.Sequence, k.Kind = GetTag(key[i:]).Unpack()
	return k.Kind <= maxKind
}

// Append appends the encoded internal key to dst.
func (k *ParsedInternalKey) Append(dst []byte) []byte {
	return AppendInternalKey(dst, k.UserKey, k.Sequence, k.Kind)
}
