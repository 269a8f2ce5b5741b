package keys

// Sequence orders writes. Every write in a database gets a distinct one.
type Sequence uint64

// MaxSequence is the largest sequence that fits in a tag.
const MaxSequence Sequence = (1 << 56) - 1

// Add returns seq advanced by n.
func (seq Sequence) Add(n uint64) Sequence {
	return seq + Sequence(n)
}
