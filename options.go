package lsmtail

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kezhuw/lsmtail/internal/compress"
	"github.com/kezhuw/lsmtail/internal/file"
	"github.com/kezhuw/lsmtail/internal/filter"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/logger"
	"github.com/kezhuw/lsmtail/internal/options"
)

// CompressionType defines compression methods to compress a table block.
type CompressionType int

const (
	DefaultCompression CompressionType = iota // Points to SnappyCompression
	NoCompression
	SnappyCompression
	ZstdCompression
)

// File defines methods on one file.
type File = file.File

// FileSystem defines methods for hierarchical file storage.
type FileSystem = file.FileSystem

// DefaultFileSystem is the file system provided by os package.
var DefaultFileSystem FileSystem = file.DefaultFileSystem

// Options contains options controlling various parts of the db instance.
type Options struct {
	// Comparator defines the total order over keys in the database.
	//
	// The default comparator is BytewiseComparator, which uses the same ordering
	// as bytes.Compare.
	Comparator Comparator

	// PrefixExtractor, if not nil, enables prefix seeks. Seek stops at the
	// first key not sharing the target's prefix, and files and memtables
	// which can't hold the prefix are skipped.
	//
	// The default value is nil.
	PrefixExtractor PrefixExtractor

	// Compression type used to compress blocks.
	//
	// The default value points to SnappyCompression.
	Compression CompressionType

	// BlockSize specifys the minimum uncompressed size in bytes for a table block.
	//
	// The default value is 4KiB.
	BlockSize int

	// BlockRestartInterval specifys the number of keys between restart points
	// for delta encoding of keys in a block.
	//
	// The default value is 16.
	BlockRestartInterval int

	// FilterBitsPerKey specifys bits per key of bloom filters built for table
	// files. A negative value disables filters.
	//
	// The default value is 10.
	FilterBitsPerKey int

	// WriteBufferSize is the amount of data to build up in memory before
	// converting to a sorted on-disk file.
	//
	// The default value is 4MiB.
	WriteBufferSize int

	// MaxImmutableMemTables is the number of full memtables waiting for flush
	// before writes stall.
	//
	// The default value is 2.
	MaxImmutableMemTables int

	// MaxOpenFiles is the number of open files that can be used this db instance.
	//
	// The default value is 1000.
	MaxOpenFiles int

	// BlockCacheCapacity specifys the capacity in bytes for block cache.
	//
	// The default value is 8MiB.
	BlockCacheCapacity int

	// Level0CompactionTrigger is the number of level 0 files that triggers
	// a compaction.
	//
	// The default value is 4.
	Level0CompactionTrigger int

	// MaxFileSize is the size of table files compactions produce.
	//
	// The default value is 2MiB.
	MaxFileSize int

	// DisableAutoCompaction leaves compactions to CompactRange.
	DisableAutoCompaction bool

	// Logger specifys a place that all internal progress/error information generated
	// by this db instance will be written to.
	//
	// The default value is a file named "LOG" stored under this db directory. You can
	// suppress logging by using DiscardLogger.
	Logger Logger

	// FileSystem defines a hierarchical file storage interface.
	//
	// The default file system is built around os package.
	FileSystem FileSystem

	// Registerer, if not nil, receives metrics of tailing iterators. A
	// registerer serves one opened db at a time.
	Registerer prometheus.Registerer

	// Observer, if not nil, watches slot management of tailing iterators.
	Observer Observer
}

func (opts *Options) getLogger() logger.LogCloser {
	if opts.Logger == nil {
		return nil
	}
	return logger.NopCloser(opts.Logger)
}

func (opts *Options) getFilter() filter.Filter {
	switch {
	case opts.FilterBitsPerKey < 0:
		return nil
	case opts.FilterBitsPerKey == 0:
		return filter.NewBloomFilter(options.DefaultFilterBitsPerKey)
	}
	return filter.NewBloomFilter(opts.FilterBitsPerKey)
}

func (opts *Options) getFileSystem() file.FileSystem {
	if opts.FileSystem == nil {
		return file.DefaultFileSystem
	}
	return opts.FileSystem
}

func (opts *Options) getComparator() *keys.InternalComparator {
	if opts.Comparator == nil || opts.Comparator == keys.BytewiseComparator {
		return &options.DefaultInternalComparator
	}
	return &keys.InternalComparator{UserKeyComparator: opts.Comparator}
}

func (opts *Options) getCompression() compress.Type {
	switch opts.Compression {
	case NoCompression:
		return compress.NoCompression
	case SnappyCompression:
		return compress.SnappyCompression
	case ZstdCompression:
		return compress.ZstdCompression
	}
	return options.DefaultCompression
}

func orDefault(value, def int) int {
	if value <= 0 {
		return def
	}
	return value
}

func convertOptions(opts *Options) *options.Options {
	if opts == nil {
		opts = &Options{}
	}
	var iopts options.Options
	iopts.Comparator = opts.getComparator()
	iopts.PrefixExtractor = opts.PrefixExtractor
	iopts.Compression = opts.getCompression()
	iopts.BlockSize = orDefault(opts.BlockSize, options.DefaultBlockSize)
	iopts.BlockRestartInterval = orDefault(opts.BlockRestartInterval, options.DefaultBlockRestartInterval)
	iopts.BlockCompressionRatio = options.DefaultBlockCompressionRatio
	iopts.WriteBufferSize = orDefault(opts.WriteBufferSize, options.DefaultWriteBufferSize)
	iopts.MaxImmutableMemTables = orDefault(opts.MaxImmutableMemTables, options.DefaultMaxImmutableMemTables)
	iopts.MaxOpenFiles = orDefault(opts.MaxOpenFiles, options.DefaultMaxOpenFiles)
	iopts.BlockCacheCapacity = orDefault(opts.BlockCacheCapacity, options.DefaultBlockCacheCapacity)
	iopts.Level0CompactionTrigger = orDefault(opts.Level0CompactionTrigger, options.DefaultLevel0CompactionTrigger)
	iopts.MaxFileSize = orDefault(opts.MaxFileSize, options.DefaultMaxFileSize)
	iopts.DisableAutoCompaction = opts.DisableAutoCompaction
	iopts.Filter = opts.getFilter()
	iopts.Logger = opts.getLogger()
	iopts.FileSystem = opts.getFileSystem()
	return &iopts
}

// ReadTier tells how far a read may go for data.
type ReadTier int

const (
	// ReadAllTier reads data from memtables, caches and files.
	ReadAllTier ReadTier = iota

	// BlockCacheTier reads data from memtables and caches only. Reads
	// needing file I/O end with status Incomplete.
	BlockCacheTier
)

// ReadOptions contains options controlling behaviours of read operations.
type ReadOptions struct {
	// DontFillCache specifys whether data read in this operation
	// should be cached in memory. If true, data read from underlying
	// storage will not be cahced in memory for later reading, but
	// if the data is already cached in memory, it will be used by
	// this operation.
	DontFillCache bool

	// VerifyChecksums specifys whether data read from underlying
	// storage should be verified against saved checksums. Note that
	// it never verify data cached in memory.
	VerifyChecksums bool

	// ReadTier limits reads to data already in memory.
	ReadTier ReadTier

	// Tailing creates iterators which see writes made after their
	// creation. Every First and Seek reads the latest data, and Next
	// follows flushes and compactions.
	Tailing bool

	// Managed is accepted along with Tailing. Managed tailing iterators
	// behave the same as tailing ones.
	Managed bool

	// IterateUpperBound, if not nil, is an exclusive upper bound of keys
	// iterators return.
	IterateUpperBound []byte
}

func convertReadOptions(opts *ReadOptions) *options.ReadOptions {
	if opts == nil {
		return &options.DefaultReadOptions
	}
	iopts := &options.ReadOptions{
		VerifyChecksums: opts.VerifyChecksums,
		DontFillCache:   opts.DontFillCache,
		Tailing:         opts.Tailing || opts.Managed,
		Managed:         opts.Managed,
		UpperBound:      opts.IterateUpperBound,
	}
	if opts.ReadTier == BlockCacheTier {
		iopts.Tier = options.BlockCacheTier
	}
	return iopts
}

// WriteOptions contains options controlling write operations: Put, Delete,
// and Write.
type WriteOptions struct {
	// NoSlowdown fails a write with status Incomplete instead of waiting
	// when pending flushes or level 0 files would stall it.
	NoSlowdown bool
}

func convertWriteOptions(opts *WriteOptions) *options.WriteOptions {
	if opts == nil {
		return &options.DefaultWriteOptions
	}
	return &options.WriteOptions{NoSlowdown: opts.NoSlowdown}
}
