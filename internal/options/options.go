// Package options holds engine options after defaults have been applied.
package options

import (
	"github.com/kezhuw/lsmtail/internal/compress"
	"github.com/kezhuw/lsmtail/internal/file"
	"github.com/kezhuw/lsmtail/internal/filter"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/logger"
)

const (
	DefaultBlockSize               = 4096
	DefaultBlockRestartInterval    = 16
	DefaultBlockCompressionRatio   = 8.0 / 7.0
	DefaultWriteBufferSize         = 4 * 1024 * 1024
	DefaultMaxImmutableMemTables   = 2
	DefaultCompression             = compress.SnappyCompression
	DefaultMaxOpenFiles            = 1000
	DefaultBlockCacheCapacity      = 8 * 1024 * 1024
	DefaultLevel0CompactionTrigger = 4
	DefaultMaxFileSize             = 2 * 1024 * 1024
	DefaultFilterBitsPerKey        = 10
)

var DefaultInternalComparator = keys.InternalComparator{UserKeyComparator: keys.BytewiseComparator}

// Options configures a database instance.
type Options struct {
	Comparator      *keys.InternalComparator
	PrefixExtractor keys.PrefixExtractor
	Filter          filter.Filter
	Compression     compress.Type
	Logger          logger.LogCloser
	FileSystem      file.FileSystem

	BlockSize               int
	BlockRestartInterval    int
	BlockCompressionRatio   float64
	WriteBufferSize         int
	MaxImmutableMemTables   int
	MaxOpenFiles            int
	BlockCacheCapacity      int
	Level0CompactionTrigger int
	MaxFileSize             int

	// DisableAutoCompaction leaves compactions to explicit CompactRange
	// calls.
	DisableAutoCompaction bool
}

// ReadTier tells how far a read may go for data.
type ReadTier int

const (
	// ReadAllTier reads from memtables, caches and files.
	ReadAllTier ReadTier = iota
	// BlockCacheTier reads from memtables and caches only. Reads needing
	// file I/O fail with errors.ErrIncomplete.
	BlockCacheTier
)

func (t ReadTier) String() string {
	switch t {
	case ReadAllTier:
		return "read-all"
	case BlockCacheTier:
		return "block-cache"
	}
	return "unknown"
}

// ReadOptions configures reads.
type ReadOptions struct {
	VerifyChecksums bool
	DontFillCache   bool
	Tier            ReadTier

	// Tailing iterators observe writes made after their creation.
	Tailing bool
	// Managed is accepted for tailing iterators and reads identically.
	Managed bool
	// UpperBound, if not nil, is an exclusive user key bound for iterators.
	UpperBound []byte
}

// CacheOnly reports whether file I/O is forbidden.
func (ro *ReadOptions) CacheOnly() bool {
	return ro.Tier == BlockCacheTier
}

// WriteOptions configures writes.
type WriteOptions struct {
	// NoSlowdown fails writes that would wait for background flushes or
	// compactions with errors.ErrIncomplete.
	NoSlowdown bool
}

var (
	DefaultOptions = Options{
		Comparator:              &DefaultInternalComparator,
		Filter:                  filter.NewBloomFilter(DefaultFilterBitsPerKey),
		Compression:             DefaultCompression,
		Logger:                  logger.Discard,
		FileSystem:              file.DefaultFileSystem,
		BlockSize:               DefaultBlockSize,
		BlockRestartInterval:    DefaultBlockRestartInterval,
		BlockCompressionRatio:   DefaultBlockCompressionRatio,
		WriteBufferSize:         DefaultWriteBufferSize,
		MaxImmutableMemTables:   DefaultMaxImmutableMemTables,
		MaxOpenFiles:            DefaultMaxOpenFiles,
		BlockCacheCapacity:      DefaultBlockCacheCapacity,
		Level0CompactionTrigger: DefaultLevel0CompactionTrigger,
		MaxFileSize:             DefaultMaxFileSize,
	}
	DefaultReadOptions  = ReadOptions{}
	DefaultWriteOptions = WriteOptions{}
)
