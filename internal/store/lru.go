package store

import (
	"container/heap"
	"container/list"
	"sync"
	"time"
)

// LRU 是带过期时间的 LRU 缓存，容量按 key 与 value 的字节数计算。
// 过期项在读取时惰性删除，同时由后台协程定期清理。
type LRU struct {
	mu        sync.Mutex
	list      *list.List               // 队首最久未使用
	items     map[string]*list.Element // key -> 链表节点
	maxBytes  int64
	usedBytes int64
	onEvicted func(key string, value Value)

	expireHeap expirationHeap // 按过期时间排序的最小堆
	heapIndex  map[string]*expireItem

	ticker  *time.Ticker
	closeCh chan struct{}
	once    sync.Once
}

type lruEntry struct {
	key   string
	value Value
}

// NewLRU 创建一个 LRU 缓存并启动清理协程，使用完毕需调用 Close
func NewLRU(opts Options) *LRU {
	interval := opts.CleanupInterval
	if interval <= 0 {
		interval = time.Minute
	}

	c := &LRU{
		list:      list.New(),
		items:     make(map[string]*list.Element),
		maxBytes:  opts.MaxBytes,
		onEvicted: opts.OnEvicted,
		heapIndex: make(map[string]*expireItem),
		ticker:    time.NewTicker(interval),
		closeCh:   make(chan struct{}),
	}
	heap.Init(&c.expireHeap)

	go c.cleanupLoop()
	return c
}

// Get 获取缓存项，过期项会被立即删除
func (c *LRU) Get(key string) (Value, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if item, hasExp := c.heapIndex[key]; hasExp && !item.expiresAt.After(time.Now()) {
		c.removeElement(elem)
		return nil, false
	}

	c.list.MoveToBack(elem)
	return elem.Value.(*lruEntry).value, true
}

// Set 添加或更新缓存项，不设置过期时间
func (c *LRU) Set(key string, value Value) {
	c.SetWithExpiration(key, value, 0)
}

// SetWithExpiration 添加或更新缓存项，ttl <= 0 表示永不过期
func (c *LRU) SetWithExpiration(key string, value Value, ttl time.Duration) {
	if value == nil {
		c.Delete(key)
		return
	}

	c.mu.Lock()
	if elem, ok := c.items[key]; ok {
		c.list.MoveToBack(elem)
		entry := elem.Value.(*lruEntry)
		c.usedBytes += int64(value.Len() - entry.value.Len())
		entry.value = value
	} else {
		c.items[key] = c.list.PushBack(&lruEntry{key: key, value: value})
		c.usedBytes += int64(len(key) + value.Len())
	}
	c.updateExpiration(key, ttl)
	evicted := c.evictLocked()
	c.mu.Unlock()

	c.notify(evicted)
}

// Delete 删除缓存项，返回是否存在。主动删除不触发 OnEvicted。
func (c *LRU) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
		return true
	}
	return false
}

// Len 返回缓存项数量
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.list.Len()
}

// UsedBytes 返回当前占用的字节数
func (c *LRU) UsedBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usedBytes
}

// Close 停止清理协程，可重复调用
func (c *LRU) Close() {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.closeCh)
	})
}

func (c *LRU) cleanupLoop() {
	for {
		select {
		case <-c.ticker.C:
			c.mu.Lock()
			evicted := c.evictLocked()
			c.mu.Unlock()
			c.notify(evicted)
		case <-c.closeCh:
			return
		}
	}
}

// removeElement 调用前必须持有锁
func (c *LRU) removeElement(elem *list.Element) *lruEntry {
	entry := c.list.Remove(elem).(*lruEntry)
	delete(c.items, entry.key)
	c.usedBytes -= int64(len(entry.key) + entry.value.Len())
	if item, ok := c.heapIndex[entry.key]; ok {
		heap.Remove(&c.expireHeap, item.index)
		delete(c.heapIndex, entry.key)
	}
	return entry
}

// evictLocked 先清理过期项，再按容量淘汰最久未使用的项。调用前必须持有锁。
func (c *LRU) evictLocked() []*lruEntry {
	var evicted []*lruEntry

	now := time.Now()
	for c.expireHeap.Len() > 0 && !c.expireHeap[0].expiresAt.After(now) {
		key := c.expireHeap[0].key
		if elem, ok := c.items[key]; ok {
			evicted = append(evicted, c.removeElement(elem))
		} else {
			item := heap.Pop(&c.expireHeap).(*expireItem)
			delete(c.heapIndex, item.key)
		}
	}

	for c.maxBytes > 0 && c.usedBytes > c.maxBytes && c.list.Len() > 0 {
		evicted = append(evicted, c.removeElement(c.list.Front()))
	}
	return evicted
}

func (c *LRU) notify(evicted []*lruEntry) {
	if c.onEvicted == nil {
		return
	}
	for _, e := range evicted {
		c.onEvicted(e.key, e.value)
	}
}

// updateExpiration 调用前必须持有锁
func (c *LRU) updateExpiration(key string, ttl time.Duration) {
	item, ok := c.heapIndex[key]
	if ttl <= 0 {
		if ok {
			heap.Remove(&c.expireHeap, item.index)
			delete(c.heapIndex, key)
		}
		return
	}

	expiresAt := time.Now().Add(ttl)
	if ok {
		item.expiresAt = expiresAt
		heap.Fix(&c.expireHeap, item.index)
		return
	}
	item = &expireItem{key: key, expiresAt: expiresAt}
	heap.Push(&c.expireHeap, item)
	c.heapIndex[key] = item
}
