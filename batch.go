package lsmtail

import "github.com/kezhuw/lsmtail/internal/batch"

// Batch holds a collection of updates to apply atomatically to a DB.
type Batch struct {
	batch batch.Batch
}

// Put adds a key/value update to batch.
func (b *Batch) Put(key, value []byte) {
	b.batch.Put(key, value)
}

// Delete adds a key deletion to batch.
func (b *Batch) Delete(key []byte) {
	b.batch.Delete(key)
}

// Clear clears all updates written before.
func (b *Batch) Clear() {
	b.batch.Clear()
}

// Len returns number of updates in batch.
func (b *Batch) Len() int {
	return int(b.batch.Count())
}
