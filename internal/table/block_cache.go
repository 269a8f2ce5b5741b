package table

import (
	"container/list"
	"io"
	"sync"
	"sync/atomic"

	"github.com/kezhuw/lsmtail/internal/errors"
	"github.com/kezhuw/lsmtail/internal/options"
	"github.com/kezhuw/lsmtail/internal/table/block"
)

type blockKey struct {
	fileNumber uint64
	offset     uint64
}

type blockEntry struct {
	key   blockKey
	block *block.Block
}

// BlockCache is a size bounded LRU of decoded blocks shared by all tables.
type BlockCache struct {
	mu       sync.Mutex
	capacity int
	size     int
	lru      list.List
	blocks   map[blockKey]*list.Element

	hits   atomic.Int64
	misses atomic.Int64
}

// NewBlockCache returns a cache holding up to capacity bytes of blocks.
func NewBlockCache(capacity int) *BlockCache {
	return &BlockCache{capacity: capacity, blocks: make(map[blockKey]*list.Element)}
}

func (c *BlockCache) lookup(key blockKey) *block.Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.blocks[key]
	if e == nil {
		return nil
	}
	c.lru.MoveToFront(e)
	return e.Value.(*blockEntry).block
}

func (c *BlockCache) insert(key blockKey, b *block.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.blocks[key]; ok {
		return
	}
	c.blocks[key] = c.lru.PushFront(&blockEntry{key: key, block: b})
	c.size += b.Size()
	for c.size > c.capacity && c.lru.Len() > 1 {
		c.remove(c.lru.Back())
	}
}

func (c *BlockCache) remove(e *list.Element) {
	entry := c.lru.Remove(e).(*blockEntry)
	delete(c.blocks, entry.key)
	c.size -= entry.block.Size()
}

// Read returns the block at h, consulting the cache first. A miss under a
// cache only read tier fails with an incomplete error; otherwise the block
// is read and, unless DontFillCache is set, cached.
func (c *BlockCache) Read(r io.ReaderAt, fileNumber uint64, h block.Handle, opts *options.ReadOptions) (*block.Block, error) {
	key := blockKey{fileNumber: fileNumber, offset: h.Offset}
	if b := c.lookup(key); b != nil {
		c.hits.Add(1)
		return b, nil
	}
	c.misses.Add(1)
	if opts.CacheOnly() {
		return nil, errors.MarkIncomplete(errors.Newf("block %d of table %06d not in block cache", h.Offset, fileNumber))
	}
	contents, err := readBlock(r, fileNumber, h, opts.VerifyChecksums)
	if err != nil {
		return nil, err
	}
	b := block.New(contents)
	if !opts.DontFillCache && b.Err() == nil {
		c.insert(key, b)
	}
	return b, nil
}

// Evict drops all blocks of a table.
func (c *BlockCache) Evict(fileNumber uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, e := range c.blocks {
		if key.fileNumber == fileNumber {
			c.remove(e)
		}
	}
}

// Size returns bytes of cached blocks.
func (c *BlockCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Stats returns cache hits and misses so far.
func (c *BlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
