// Package configs holds engine constants that are not options.
package configs

const (
	// NumberLevels is the number of levels, including level 0.
	NumberLevels = 7

	// L0StopWritesTrigger stalls writers when level 0 has this many files.
	L0StopWritesTrigger = 12

	// MaxGrandparentOverlappingFactor, in units of MaxFileSize, caps how
	// much one compaction output file may overlap the level below.
	MaxGrandparentOverlappingFactor = 10

	// BaseLevelBytes is the size budget of level 1. Level n has ten times
	// the budget of level n-1.
	BaseLevelBytes = 10 * 1024 * 1024

	// PrefixBloomBitsPerMemTableByte sizes memtable prefix blooms relative
	// to the write buffer.
	PrefixBloomBitsPerMemTableByte = 1.0 / 8
)

// MaxBytesForLevel returns the size budget of level.
func MaxBytesForLevel(level int) int64 {
	bytes := int64(BaseLevelBytes)
	for ; level > 1; level-- {
		bytes *= 10
	}
	return bytes
}
