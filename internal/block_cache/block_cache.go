// Package block_cache keeps recently parsed data blocks in memory so hot
// lookups skip disk reads and re-parsing. One cache is shared across every
// open SSTable of a database.
package block_cache

import (
	"container/list"
	"sync"

	"citrine/internal/block"
	"citrine/internal/common"
)

type cacheKey struct {
	fileNo  common.FileNo
	blockNo common.BlockNo
}

type cacheItem struct {
	key   cacheKey
	block *block.Block
}

// Cache is an LRU over parsed blocks, keyed by (file, block). Safe for
// concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	items    map[cacheKey]*list.Element
}

// New returns a cache holding at most capacity blocks. A capacity <= 0
// disables caching; Get always misses and Put is a no-op.
func New(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		order:    list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

// Get returns the cached block for (fileNo, blockNo), marking it recently
// used.
func (c *Cache) Get(fileNo common.FileNo, blockNo common.BlockNo) (*block.Block, bool) {
	if c.capacity <= 0 {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[cacheKey{fileNo, blockNo}]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheItem).block, true
}

// Put inserts a parsed block, evicting the least recently used block when
// over capacity.
func (c *Cache) Put(fileNo common.FileNo, blockNo common.BlockNo, b *block.Block) {
	if c.capacity <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{fileNo, blockNo}
	if elem, ok := c.items[key]; ok {
		elem.Value.(*cacheItem).block = b
		c.order.MoveToFront(elem)
		return
	}

	c.items[key] = c.order.PushFront(&cacheItem{key: key, block: b})

	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.items, oldest.Value.(*cacheItem).key)
	}
}

// DropFile evicts every cached block belonging to fileNo. Called when a
// table file is removed.
func (c *Cache) DropFile(fileNo common.FileNo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		item := elem.Value.(*cacheItem)
		if item.key.fileNo == fileNo {
			c.order.Remove(elem)
			delete(c.items, item.key)
		}
		elem = next
	}
}

// Len returns the number of cached blocks.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
