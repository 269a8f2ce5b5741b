package leveldb

import (
	"time"

	"github.com/kezhuw/lsmtail/internal/compactor"
	"github.com/kezhuw/lsmtail/internal/configs"
	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/version"
)

func (db *DB) scheduleCompaction() {
	select {
	case db.compactc <- struct{}{}:
	default:
	}
}

func (db *DB) flushLoop() error {
	for {
		select {
		case <-db.ctx.Done():
			return nil
		case <-db.flushc:
		}
		for db.ctx.Err() == nil && db.flushOldest() {
		}
	}
}

// flushOldest flushes the oldest immutable memtable. It reports whether
// one was flushed.
func (db *DB) flushOldest() bool {
	db.mu.Lock()
	if len(db.imms) == 0 || db.bgErr != nil {
		db.mu.Unlock()
		return false
	}
	mem := db.imms[0]
	db.mu.Unlock()

	start := time.Now()
	c := compactor.NewMemTableCompactor(db.name, db.set, db.set.LastSequence(), mem, db.options)
	var edit version.Edit
	if err := c.Compact(&edit); err != nil {
		db.setBackgroundError(errors.Wrapf(err, "flush memtable #%d", mem.ID()))
		return false
	}

	db.mu.Lock()
	v, err := db.set.Apply(&edit)
	if err != nil {
		c.Rewind()
		db.setBackgroundErrorLocked(err)
		db.mu.Unlock()
		return false
	}
	db.imms = append(db.imms[:0:0], db.imms[1:]...)
	db.installSuperVersion(v)
	db.mu.Unlock()

	db.logger.Infof("flush memtable #%d: %d entries, %s, took %s", mem.ID(), mem.Len(), &edit, time.Since(start))
	if !db.options.DisableAutoCompaction {
		db.scheduleCompaction()
	}
	return true
}

func (db *DB) compactLoop() error {
	for {
		select {
		case <-db.ctx.Done():
			return nil
		case <-db.compactc:
		}
		if db.options.DisableAutoCompaction {
			continue
		}
		for db.ctx.Err() == nil && db.backgroundCompaction() {
		}
	}
}

// backgroundCompaction runs the most urgent compaction. It reports whether
// one was run.
func (db *DB) backgroundCompaction() bool {
	db.compactMu.Lock()
	defer db.compactMu.Unlock()
	if !db.startCompaction() {
		return false
	}
	defer db.finishCompaction()
	c := db.set.PickCompaction()
	if c == nil {
		return false
	}
	if err := db.runCompaction(c); err != nil {
		db.setBackgroundError(err)
		return false
	}
	return true
}

func (db *DB) startCompaction() bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.bgErr != nil || db.closing {
		return false
	}
	db.compacting = true
	return true
}

func (db *DB) finishCompaction() {
	db.mu.Lock()
	db.compacting = false
	db.bgCond.Broadcast()
	db.mu.Unlock()
}

// runCompaction compacts c and installs the result. Callers hold
// db.compactMu.
func (db *DB) runCompaction(c *version.Compaction) error {
	defer c.Release()
	start := time.Now()
	cc := compactor.NewLevelCompactor(db.name, db.set, db.set.LastSequence(), c, db.options)
	var edit version.Edit
	if err := cc.Compact(&edit); err != nil {
		return errors.Wrapf(err, "compact level %d files %v", c.Level, c.InputNumbers())
	}

	db.mu.Lock()
	v, err := db.set.Apply(&edit)
	if err != nil {
		db.mu.Unlock()
		cc.Rewind()
		return err
	}
	db.installSuperVersion(v)
	db.mu.Unlock()

	db.logger.Infof("compact level %d files %v to level %d: %d files, took %s", c.Level, c.InputNumbers(), c.Level+1, len(edit.AddedFiles), time.Since(start))
	return nil
}

// CompactRange flushes memtables and compacts files overlapping user key
// range [begin, end] down to the deepest level holding such files. Nil
// bounds are unbounded.
func (db *DB) CompactRange(begin, end []byte) error {
	if err := db.Flush(); err != nil {
		return err
	}

	v := db.set.Current()
	maxLevel := 0
	for level := 1; level < configs.NumberLevels; level++ {
		if len(v.OverlappingFiles(level, begin, end)) != 0 {
			maxLevel = level
		}
	}
	v.Release()

	db.compactMu.Lock()
	defer db.compactMu.Unlock()
	if !db.startCompaction() {
		return db.compactionError()
	}
	defer db.finishCompaction()
	for level := 0; level < maxLevel || (level == 0 && maxLevel == 0); level++ {
		for {
			c := db.set.CompactRange(level, begin, end)
			if c == nil {
				break
			}
			if err := db.runCompaction(c); err != nil {
				db.setBackgroundError(err)
				return err
			}
		}
	}
	return nil
}

func (db *DB) compactionError() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.waitError()
}
