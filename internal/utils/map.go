package utils

import (
	"sync"
	"sync/atomic"
)

// TypedSyncMap 是 sync.Map 的泛型封装，适合写少读多、key 只增不删的场景
type TypedSyncMap[K comparable, V any] struct {
	m sync.Map
}

func (m *TypedSyncMap[K, V]) Load(key K) (V, bool) {
	value, ok := m.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return value.(V), true
}

// LoadOrCreate 返回 key 已有的值；不存在时用 create 构造并存入。
// 并发创建时只有一个值会被保留，其余构造结果直接丢弃。
func (m *TypedSyncMap[K, V]) LoadOrCreate(key K, create func() V) V {
	if v, ok := m.m.Load(key); ok {
		return v.(V)
	}
	actual, _ := m.m.LoadOrStore(key, create())
	return actual.(V)
}

// Range 遍历 map，f 返回 false 时中止
func (m *TypedSyncMap[K, V]) Range(f func(key K, value V) bool) {
	m.m.Range(func(k, v any) bool {
		return f(k.(K), v.(V))
	})
}

// Counters 是一组按 key 区分的原子计数器，零值可用
type Counters[K comparable] struct {
	m TypedSyncMap[K, *atomic.Int64]
}

// Add 累加 key 的计数并返回新值
func (c *Counters[K]) Add(key K, delta int64) int64 {
	return c.m.LoadOrCreate(key, func() *atomic.Int64 { return new(atomic.Int64) }).Add(delta)
}

// Get 返回 key 的计数，从未计数过的 key 为 0
func (c *Counters[K]) Get(key K) int64 {
	if n, ok := c.m.Load(key); ok {
		return n.Load()
	}
	return 0
}

// Snapshot 返回所有计数的拷贝，各计数器分别读取，不保证彼此一致
func (c *Counters[K]) Snapshot() map[K]int64 {
	out := make(map[K]int64)
	c.m.Range(func(k K, n *atomic.Int64) bool {
		out[k] = n.Load()
		return true
	})
	return out
}
