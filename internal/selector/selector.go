// Package selector 决定一个 key 应由哪个缓存节点处理。
//
// 目前有两种策略：
//   - Tiered：按数据"温度"层级就近选择，层级不完全匹配时按距离平方的倒数加权随机。
//   - Cyclic：把固定大小的环切成首尾相接的弧段，每个节点拥有一段，由 key 的哈希落点决定归属。
//
// 新策略通过实现 Selector 接口加入。
package selector

import (
	"errors"

	"github.com/justthefish/hesper/internal/peer"
)

// DefaultCategory 是调用方未提供类别时使用的类别名
const DefaultCategory = "default"

var (
	ErrNoPeersAvailable    = errors.New("no peers available")
	ErrUnresolvedPartition = errors.New("ring point not covered by any arc")
	ErrOutOfRange          = errors.New("value out of range")
)

// Selector 是节点选择策略
type Selector interface {
	// AddPeer 按策略校验 mark 后登记节点
	AddPeer(label string, handle peer.Handle, mark int) error
	// Select 返回应处理该 key 的节点标签，并记录一次命中
	Select(key, category string) (string, error)
}

func normalizeCategory(category string) string {
	if category == "" {
		return DefaultCategory
	}
	return category
}
