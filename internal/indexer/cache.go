package indexer

import "container/list"

// fifoCache is the bounded rel_path -> id cache scans use to resolve a
// child's parent_id without a database round trip. Eviction is strict
// insertion order, not LRU: a cache hit does not move an entry to the back.
type fifoCache struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

type fifoEntry struct {
	key string
	id  int64
}

func newFIFOCache(capacity int) *fifoCache {
	return &fifoCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (c *fifoCache) Get(key string) (int64, bool) {
	el, ok := c.index[key]
	if !ok {
		return 0, false
	}
	return el.Value.(fifoEntry).id, true
}

func (c *fifoCache) Put(key string, id int64) {
	if el, ok := c.index[key]; ok {
		el.Value = fifoEntry{key: key, id: id}
		return
	}
	el := c.order.PushBack(fifoEntry{key: key, id: id})
	c.index[key] = el
	for c.order.Len() > c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.index, oldest.Value.(fifoEntry).key)
	}
}
