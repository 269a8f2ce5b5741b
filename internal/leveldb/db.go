package leveldb

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kezhuw/lsmtail/internal/configs"
	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/file"
	"github.com/kezhuw/lsmtail/internal/files"
	"github.com/kezhuw/lsmtail/internal/forward"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/logger"
	"github.com/kezhuw/lsmtail/internal/memtable"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/superversion"
	"github.com/kezhuw/lsmtail/internal/table"
	"github.com/kezhuw/lsmtail/internal/version"
)

type DB struct {
	name     string
	options  *options.Options
	fs       file.FileSystem
	logger   logger.LogCloser
	locker   io.Closer
	observer forward.Observer

	cache    *table.Cache
	set      *version.Set
	registry *superversion.Registry

	requestc      chan request
	flushRequestc chan chan error
	writerDone    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	bg     *errgroup.Group

	flushc   chan struct{}
	compactc chan struct{}

	// compactMu serializes level compactions.
	compactMu sync.Mutex

	// mu guards fields below and superversion installation.
	mu         sync.Mutex
	bgCond     *sync.Cond
	mem        *memtable.MemTable
	imms       []*memtable.MemTable
	compacting bool
	bgErr      error
	closing    bool
}

// Open opens a database. Table files left by a previous process are
// deleted: the engine keeps no log or manifest to recover them with.
func Open(dbname string, opts *options.Options, observer forward.Observer) (db *DB, err error) {
	fs := opts.FileSystem
	if err := fs.MkdirAll(dbname); err != nil {
		return nil, errors.Wrapf(err, "create %s", dbname)
	}

	locker, err := fs.Lock(files.LockFileName(dbname))
	if err != nil {
		return nil, errors.Wrapf(err, "lock %s", dbname)
	}

	if opts.Logger == nil {
		infoLogName := files.InfoLogFileName(dbname)
		fs.Rename(infoLogName, files.OldInfoLogFileName(dbname))
		f, err := fs.Open(infoLogName, os.O_WRONLY|os.O_APPEND|os.O_CREATE)
		switch err {
		case nil:
			opts.Logger = logger.New(f)
		default:
			opts.Logger = logger.Discard
		}
	}

	defer func() {
		if err != nil {
			locker.Close()
			opts.Logger.Close()
		}
	}()

	if err := removeTables(fs, dbname, opts.Logger); err != nil {
		return nil, err
	}

	if observer == nil {
		observer = forward.NopObserver{}
	}
	db = &DB{
		name:          dbname,
		options:       opts,
		fs:            fs,
		logger:        opts.Logger,
		locker:        locker,
		observer:      observer,
		requestc:      make(chan request, 1024),
		flushRequestc: make(chan chan error),
		writerDone:    make(chan struct{}),
		flushc:        make(chan struct{}, 1),
		compactc:      make(chan struct{}, 1),
	}
	db.bgCond = sync.NewCond(&db.mu)
	db.cache = table.NewCache(dbname, opts, table.NewBlockCache(opts.BlockCacheCapacity))
	db.set = version.NewSet(dbname, opts, db.cache, 1)
	db.mem = db.newMemTable()
	db.registry = superversion.NewRegistry(db.mem, db.set.Current())

	db.ctx, db.cancel = context.WithCancel(context.Background())
	db.bg, db.ctx = errgroup.WithContext(db.ctx)
	db.bg.Go(db.serve)
	db.bg.Go(db.flushLoop)
	db.bg.Go(db.compactLoop)
	db.logger.Infof("open %s", dbname)
	return db, nil
}

func removeTables(fs file.FileSystem, dbname string, log logger.Logger) error {
	names, err := fs.List(dbname)
	if err != nil {
		return errors.Wrapf(err, "list %s", dbname)
	}
	for _, name := range names {
		switch kind, _ := files.Parse(name); kind {
		case files.Table, files.Temp:
			if err := fs.Remove(filepath.Join(dbname, name)); err != nil {
				return errors.Wrapf(err, "remove stale %s", name)
			}
			log.Infof("remove stale %s", name)
		}
	}
	return nil
}

func (db *DB) newMemTable() *memtable.MemTable {
	opts := memtable.Options{Comparator: db.options.Comparator}
	if db.options.PrefixExtractor != nil {
		opts.PrefixExtractor = db.options.PrefixExtractor
		opts.PrefixBloomBits = int(float64(db.options.WriteBufferSize) * configs.PrefixBloomBitsPerMemTableByte)
	}
	return memtable.New(opts)
}

// installSuperVersion publishes memtables and v, taking over the pin on v.
// A nil v keeps the current version. Callers hold db.mu.
func (db *DB) installSuperVersion(v *version.Version) {
	if v == nil {
		v = db.set.Current()
	}
	sv := db.registry.Install(db.mem, db.imms, v)
	db.logger.Debugf("install superversion %d: %d immutable memtables, version %s", sv.Number, len(db.imms), v)
	db.bgCond.Broadcast()
}

// setBackgroundError records the first background error. Writes fail with
// it from now on.
func (db *DB) setBackgroundError(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.setBackgroundErrorLocked(err)
}

func (db *DB) setBackgroundErrorLocked(err error) {
	if db.bgErr == nil {
		db.bgErr = err
		db.logger.Errorf("background error: %s", err)
	}
	db.bgCond.Broadcast()
}

// Get returns the latest value of key.
func (db *DB) Get(key []byte, opts *options.ReadOptions) ([]byte, error) {
	sv := db.registry.Current()
	if sv == nil {
		return nil, errors.ErrDBClosed
	}
	defer sv.Release()
	ikey := keys.NewInternalKey(key, db.set.LastSequence(), keys.Seek)
	for _, mem := range sv.Memtables() {
		if value, err, ok := mem.Get(ikey); ok {
			return value, err
		}
	}
	return sv.Version.Get(ikey, opts)
}

// SuperVersionNumber returns the number of the latest superversion.
func (db *DB) SuperVersionNumber() uint64 {
	return db.registry.Number()
}

// LevelFiles returns number of table files per level.
func (db *DB) LevelFiles() []int {
	v := db.set.Current()
	defer v.Release()
	numbers := make([]int, configs.NumberLevels)
	for level := range numbers {
		numbers[level] = v.NumFiles(level)
	}
	return numbers
}

// Stats is a snapshot of engine counters.
type Stats struct {
	LevelFiles       []int
	LiveFiles        int
	ObsoleteFiles    uint64
	BlockCacheHits   int64
	BlockCacheMisses int64
	SuperVersion     uint64
}

func (db *DB) Stats() Stats {
	hits, misses := db.cache.Blocks().Stats()
	return Stats{
		LevelFiles:       db.LevelFiles(),
		LiveFiles:        len(db.set.LiveFiles()),
		ObsoleteFiles:    db.set.ObsoleteFiles(),
		BlockCacheHits:   hits,
		BlockCacheMisses: misses,
		SuperVersion:     db.SuperVersionNumber(),
	}
}

// Flush moves the active memtable, if not empty, to level 0 and waits for
// all immutable memtables to be flushed.
func (db *DB) Flush() error {
	replyc := make(chan error, 1)
	select {
	case db.flushRequestc <- replyc:
	case <-db.writerDone:
		return errors.ErrDBClosed
	}
	if err := <-replyc; err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for len(db.imms) != 0 && db.bgErr == nil && !db.closing {
		db.bgCond.Wait()
	}
	return db.waitError()
}

func (db *DB) waitError() error {
	switch {
	case db.bgErr != nil:
		return db.bgErr
	case db.closing:
		return errors.ErrDBClosed
	}
	return nil
}

// WaitForCompaction waits until no flush or compaction is running or
// needed.
func (db *DB) WaitForCompaction() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for db.bgErr == nil && !db.closing {
		switch {
		case len(db.imms) != 0, db.compacting:
		case !db.options.DisableAutoCompaction && db.set.NeedsCompaction():
			db.scheduleCompaction()
		default:
			return nil
		}
		db.bgCond.Wait()
	}
	return db.waitError()
}

// Close stops background work and releases the directory. Iterators still
// open fail with errors.ErrDBClosed on their next positioning call.
func (db *DB) Close() error {
	db.mu.Lock()
	if db.closing {
		db.mu.Unlock()
		return errors.ErrDBClosed
	}
	db.closing = true
	db.bgCond.Broadcast()
	db.mu.Unlock()

	db.cancel()
	err := db.bg.Wait()

	db.registry.Close()
	db.set.Close()
	err = errors.FirstError(err, db.cache.Close())
	if db.locker != nil {
		err = errors.FirstError(err, db.locker.Close())
		db.locker = nil
	}
	db.logger.Infof("close %s", db.name)
	db.logger.Close()
	return err
}
