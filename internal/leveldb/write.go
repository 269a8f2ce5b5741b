package leveldb

import (
	"github.com/kezhuw/lsmtail/internal/batch"
	"github.com/kezhuw/lsmtail/internal/configs"
	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/options"
)

type request struct {
	NoSlowdown bool
	Batch      []byte
	Reply      chan error
}

var errWriteStall = errors.MarkIncomplete(errors.New("lsmtail: write would stall"))

func (db *DB) Put(key, value []byte, opts *options.WriteOptions) error {
	var b batch.Batch
	b.Put(key, value)
	return db.Write(&b, opts)
}

func (db *DB) Delete(key []byte, opts *options.WriteOptions) error {
	var b batch.Batch
	b.Delete(key)
	return db.Write(&b, opts)
}

// Write applies b atomically. b must not be modified until Write returns.
func (db *DB) Write(b *batch.Batch, opts *options.WriteOptions) error {
	if b.Empty() {
		return nil
	}
	if err := b.Err(); err != nil {
		return err
	}
	replyc := make(chan error, 1)
	req := request{NoSlowdown: opts.NoSlowdown, Batch: b.Bytes(), Reply: replyc}
	select {
	case db.requestc <- req:
	case <-db.writerDone:
		return errors.ErrDBClosed
	}
	select {
	case err := <-replyc:
		return err
	case <-db.writerDone:
		select {
		case err := <-replyc:
			return err
		default:
			return errors.ErrDBClosed
		}
	}
}

func drainRequests(requestc chan request, err error) {
	for {
		select {
		case req := <-requestc:
			req.Reply <- err
		default:
			return
		}
	}
}

// serve is the only writer of the active memtable. It groups concurrent
// writes into one batch.
func (db *DB) serve() error {
	defer close(db.writerDone)
	var group batch.Group
	for {
		if group.Empty() {
			select {
			case <-db.ctx.Done():
				drainRequests(db.requestc, errors.ErrDBClosed)
				return nil
			case replyc := <-db.flushRequestc:
				replyc <- db.switchMemTable()
				continue
			case req := <-db.requestc:
				group.Push(req.NoSlowdown, req.Batch, req.Reply)
			}
		}
	collect:
		for !group.HasPending() {
			select {
			case req := <-db.requestc:
				group.Push(req.NoSlowdown, req.Batch, req.Reply)
			default:
				break collect
			}
		}
		group.Send(db.writeGroup(&group))
		group.Rewind()
	}
}

func (db *DB) writeGroup(g *batch.Group) error {
	if err := db.makeRoomForWrite(g.NoSlowdown); err != nil {
		return err
	}
	b := g.Batch
	if err := b.Err(); err != nil {
		return err
	}
	lastSequence := db.set.LastSequence()
	b.SetSequence(lastSequence + 1)
	if err := b.Iterate(db.mem); err != nil {
		return err
	}
	// Entries are in the memtable before readers can see their sequences.
	db.set.SetLastSequence(lastSequence.Add(uint64(b.Count())))
	return nil
}

// makeRoomForWrite switches a full memtable and stalls while too many
// immutable memtables or level 0 files are pending.
func (db *DB) makeRoomForWrite(noSlowdown bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	stalled := false
	for {
		switch {
		case db.bgErr != nil:
			return db.bgErr
		case db.closing:
			return errors.ErrDBClosed
		case db.mem.ApproximateMemoryUsage() < db.options.WriteBufferSize:
			return nil
		case len(db.imms) >= db.options.MaxImmutableMemTables, db.level0Files() >= configs.L0StopWritesTrigger:
			if noSlowdown {
				return errWriteStall
			}
			if !stalled {
				stalled = true
				db.logger.Infof("write stall: %d immutable memtables, %d level 0 files", len(db.imms), db.level0Files())
			}
			db.bgCond.Wait()
		default:
			db.switchMemTableLocked()
			return nil
		}
	}
}

func (db *DB) level0Files() int {
	v := db.set.Current()
	defer v.Release()
	return v.NumFiles(0)
}

func (db *DB) switchMemTable() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err := db.waitError(); err != nil {
		return err
	}
	if !db.mem.Empty() {
		db.switchMemTableLocked()
	}
	return nil
}

func (db *DB) switchMemTableLocked() {
	db.logger.Infof("switch memtable #%d, %d bytes", db.mem.ID(), db.mem.ApproximateMemoryUsage())
	db.imms = append(db.imms[:len(db.imms):len(db.imms)], db.mem)
	db.mem = db.newMemTable()
	db.installSuperVersion(nil)
	select {
	case db.flushc <- struct{}{}:
	default:
	}
}
