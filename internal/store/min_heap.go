package store

import (
	"container/heap"
	"time"
)

type expireItem struct {
	key       string
	expiresAt time.Time
	index     int // 在堆中的下标，由 heap.Interface 维护
}

// expirationHeap 按过期时间排序的最小堆
type expirationHeap []*expireItem

var _ heap.Interface = (*expirationHeap)(nil)

func (h expirationHeap) Len() int { return len(h) }

func (h expirationHeap) Less(i, j int) bool {
	return h[i].expiresAt.Before(h[j].expiresAt)
}

func (h expirationHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *expirationHeap) Push(x any) {
	item := x.(*expireItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *expirationHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}
