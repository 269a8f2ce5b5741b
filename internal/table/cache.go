package table

import (
	"container/list"
	"os"
	"sync"
	"sync/atomic"

	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/file"
	"github.com/kezhuw/lsmtail/internal/files"
	"github.com/kezhuw/lsmtail/internal/iterator"
	"github.com/kezhuw/lsmtail/internal/keys"
	"github.com/kezhuw/lsmtail/internal/options"
)

type tableNode struct {
	fileNumber uint64
	table      *Table
	refs       atomic.Int32
}

func (n *tableNode) retain() *tableNode {
	n.refs.Add(1)
	return n
}

func (n *tableNode) release() error {
	if n.refs.Add(-1) == 0 {
		return n.table.Close()
	}
	return nil
}

// Cache keeps up to MaxOpenFiles tables open. Tables in use by iterators
// stay open after eviction until their iterators are closed.
type Cache struct {
	dbname  string
	fs      file.FileSystem
	options *options.Options
	blocks  *BlockCache

	mu     sync.Mutex
	lru    list.List
	tables map[uint64]*list.Element
	closed bool
}

// NewCache returns a table cache for tables in dbname.
func NewCache(dbname string, opts *options.Options, blocks *BlockCache) *Cache {
	return &Cache{
		dbname:  dbname,
		fs:      opts.FileSystem,
		options: opts,
		blocks:  blocks,
		tables:  make(map[uint64]*list.Element),
	}
}

// Blocks returns the shared block cache.
func (c *Cache) Blocks() *BlockCache {
	return c.blocks
}

func (c *Cache) lookup(fileNumber uint64) *tableNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.tables[fileNumber]; e != nil {
		c.lru.MoveToFront(e)
		return e.Value.(*tableNode).retain()
	}
	return nil
}

func (c *Cache) load(fileNumber, fileSize uint64, opts *options.ReadOptions) (*tableNode, error) {
	if n := c.lookup(fileNumber); n != nil {
		return n, nil
	}
	if opts.CacheOnly() {
		return nil, errors.MarkIncomplete(errors.Newf("table %06d not in table cache", fileNumber))
	}
	f, err := c.fs.Open(files.TableFileName(c.dbname, fileNumber), os.O_RDONLY)
	if err != nil {
		return nil, errors.Wrapf(err, "open table %06d", fileNumber)
	}
	t, err := Open(f, fileNumber, fileSize, c.blocks, c.options)
	if err != nil {
		return nil, err
	}
	n := &tableNode{fileNumber: fileNumber, table: t}
	n.refs.Store(1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.tables[fileNumber]; e != nil {
		// Lost a race with a concurrent load.
		t.Close()
		c.lru.MoveToFront(e)
		return e.Value.(*tableNode).retain(), nil
	}
	if c.closed {
		return n, nil
	}
	c.tables[fileNumber] = c.lru.PushFront(n.retain())
	for c.lru.Len() > c.options.MaxOpenFiles {
		c.remove(c.lru.Back())
	}
	return n, nil
}

func (c *Cache) remove(e *list.Element) {
	n := c.lru.Remove(e).(*tableNode)
	delete(c.tables, n.fileNumber)
	n.release()
}

// Contains reports whether a table is open in the cache.
func (c *Cache) Contains(fileNumber uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tables[fileNumber] != nil
}

// NewIterator returns an iterator over a table. Under a cache only read
// tier a table not in the cache yields an iterator failing with an
// incomplete error.
func (c *Cache) NewIterator(fileNumber, fileSize uint64, opts *options.ReadOptions) iterator.Iterator {
	n, err := c.load(fileNumber, fileSize, opts)
	if err != nil {
		return iterator.Error(err)
	}
	return iterator.WithCleanup(n.table.NewIterator(opts), n.release)
}

// Get looks up ikey in a table.
func (c *Cache) Get(fileNumber, fileSize uint64, ikey keys.InternalKey, opts *options.ReadOptions) ([]byte, error, bool) {
	n, err := c.load(fileNumber, fileSize, opts)
	if err != nil {
		return nil, err, true
	}
	defer n.release()
	return n.table.Get(ikey, opts)
}

// MayContainPrefix consults the prefix filter of a table. Under a cache
// only read tier an unopened table may contain anything.
func (c *Cache) MayContainPrefix(fileNumber, fileSize uint64, prefix []byte, opts *options.ReadOptions) bool {
	n, err := c.load(fileNumber, fileSize, opts)
	if err != nil {
		return true
	}
	defer n.release()
	return n.table.MayContainPrefix(prefix)
}

// Evict closes a table once it is unused and drops its blocks.
func (c *Cache) Evict(fileNumber uint64) {
	c.mu.Lock()
	if e := c.tables[fileNumber]; e != nil {
		c.remove(e)
	}
	c.mu.Unlock()
	c.blocks.Evict(fileNumber)
}

// Close evicts all tables.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for c.lru.Len() != 0 {
		c.remove(c.lru.Back())
	}
	return nil
}
