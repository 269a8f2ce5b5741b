// Package lsmtail implements a small non-durable LSM tree key/value store
// whose tailing iterators see writes made after their creation.
package lsmtail

import (
	"runtime"

	"github.com/kezhuw/lsmtail/internal/forward"
	"github.com/kezhuw/lsmtail/internal/leveldb"
)

// DB represents an opened database.
type DB struct {
	db *leveldb.DB
}

// Open opens a database stored in directory 'dbname', creating it if
// missing. Table files left by a previous open are deleted: data lives as
// long as the opened db.
func Open(dbname string, opts *Options) (*DB, error) {
	ldb, err := leveldb.Open(dbname, convertOptions(opts), newObserver(opts))
	if err != nil {
		return nil, err
	}
	db := &DB{db: ldb}
	runtime.SetFinalizer(db, (*DB).finalize)
	return db, nil
}

func newObserver(opts *Options) forward.Observer {
	if opts == nil {
		return nil
	}
	var observers forward.Observers
	if opts.Registerer != nil {
		observers = append(observers, forward.NewMetrics(opts.Registerer))
	}
	if opts.Observer != nil {
		observers = append(observers, opts.Observer)
	}
	switch len(observers) {
	case 0:
		return nil
	case 1:
		return observers[0]
	}
	return observers
}

func (db *DB) finalize() {
	go db.db.Close()
}

// Close closes the opened database. All operations after this call will
// get error ErrDBClosed. Outstanding iterators fail with ErrDBClosed on
// their next positioning call, and should still be closed.
func (db *DB) Close() error {
	runtime.SetFinalizer(db, nil)
	return db.db.Close()
}

// Get gets value for given key. It returns ErrNotFound if db does not
// contain that key.
func (db *DB) Get(key []byte, opts *ReadOptions) ([]byte, error) {
	return db.db.Get(key, convertReadOptions(opts))
}

// Put stores a key/value pair in DB.
func (db *DB) Put(key, value []byte, opts *WriteOptions) error {
	return db.db.Put(key, value, convertWriteOptions(opts))
}

// Delete deletes the database entry for given key. It is not an error
// if db does not contain that key.
func (db *DB) Delete(key []byte, opts *WriteOptions) error {
	return db.db.Delete(key, convertWriteOptions(opts))
}

// Write applies batch to db atomically.
func (db *DB) Write(batch *Batch, opts *WriteOptions) error {
	return db.db.Write(&batch.batch, convertWriteOptions(opts))
}

// NewIterator returns an iterator over db. With opts.Tailing the iterator
// reads the latest data on every positioning call, otherwise it reads
// data as of its creation.
func (db *DB) NewIterator(opts *ReadOptions) Iterator {
	return newIterator(db.db.NewIterator(convertReadOptions(opts)))
}

// Flush writes memtables to level 0 table files.
func (db *DB) Flush() error {
	return db.db.Flush()
}

// CompactRange compacts keys in range [start, limit] to max level these keys
// reside in currently. Memtables are flushed first.
//
// Nil start acts as infinite small, nil limit acts as infinite large.
func (db *DB) CompactRange(start, limit []byte) error {
	return db.db.CompactRange(start, limit)
}

// WaitForCompaction waits for pending flushes and compactions.
func (db *DB) WaitForCompaction() error {
	return db.db.WaitForCompaction()
}

// LevelFiles returns number of table files in each level.
func (db *DB) LevelFiles() []int {
	return db.db.LevelFiles()
}

// SuperVersionNumber returns the number of the latest superversion. It
// grows whenever memtables or table files change.
func (db *DB) SuperVersionNumber() uint64 {
	return db.db.SuperVersionNumber()
}

// Stats holds counters describing the state of an opened database.
type Stats struct {
	// LevelFiles is the number of table files in each level.
	LevelFiles []int
	// LiveFiles counts table files still referenced by the current
	// version, pinned superversions or running compactions.
	LiveFiles int
	// ObsoleteFiles counts table files deleted since open.
	ObsoleteFiles    uint64
	BlockCacheHits   int64
	BlockCacheMisses int64
	SuperVersion     uint64
}

// Stats returns current database counters.
func (db *DB) Stats() Stats {
	st := db.db.Stats()
	return Stats{
		LevelFiles:       st.LevelFiles,
		LiveFiles:        st.LiveFiles,
		ObsoleteFiles:    st.ObsoleteFiles,
		BlockCacheHits:   st.BlockCacheHits,
		BlockCacheMisses: st.BlockCacheMisses,
		SuperVersion:     st.SuperVersion,
	}
}
