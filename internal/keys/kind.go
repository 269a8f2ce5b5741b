package keys

import "fmt"

// Kind tells whether an internal key sets or deletes its user key.
type Kind uint8

const (
	// Delete marks a tombstone.
	Delete Kind = 0
	// Value marks a value setting.
	Value Kind = 1

	maxKind = Value

	// Seek is the largest valid kind. Paired with a sequence it forms the
	// smallest internal key of that user key visible at that sequence.
	Seek = maxKind
)

func (k Kind) String() string {
	switch k {
	case Delete:
		return "delete"
	case Value:
		return "value"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}
