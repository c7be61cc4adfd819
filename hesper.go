// Package hesper routes cache keys to a fixed set of labelled peers.
//
// An AggregateCache owns a peer registry and one selection strategy:
//
//   - tiered: every category has a target tier and peers are chosen by how
//     close their tier is to it, favouring exact matches;
//   - cyclic: every peer owns an arc of a ring and a key goes to the arc that
//     contains its hashed point.
//
// Reads and writes are forwarded to the chosen peer's Handle. There is no
// replication and no failover: the owning peer's result is returned as is.
package hesper

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/justthefish/hesper/internal/cache"
	"github.com/justthefish/hesper/internal/peer"
	"github.com/justthefish/hesper/internal/registry"
	"github.com/justthefish/hesper/internal/selector"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type (
	// Handle is the storage surface of one peer.
	Handle = peer.Handle
	// HandleFunc adapts plain functions into a Handle.
	HandleFunc = peer.HandleFunc
	// ByteView is an immutable view of a cached value.
	ByteView = cache.ByteView
	// Tier is the relative "temperature" of a peer or a category.
	Tier = selector.Tier
	// PointFunc maps a key to a raw ring position.
	PointFunc = selector.PointFunc
)

const (
	TierUltraHigh = selector.TierUltraHigh
	TierHigh      = selector.TierHigh
	TierNormal    = selector.TierNormal
	TierLow       = selector.TierLow
	TierVeryLow   = selector.TierVeryLow
)

var (
	// HashSHA1 is the default cyclic key hash.
	HashSHA1 PointFunc = selector.HashSHA1
	// HashMurmur3 is a faster non-cryptographic alternative to HashSHA1.
	HashMurmur3 PointFunc = selector.HashMurmur3
)

// Getter 加载键值的回调函数接口
type Getter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// GetterFunc 函数类型实现 Getter 接口
type GetterFunc func(ctx context.Context, key string) ([]byte, error)

// Get 实现 Getter 接口
func (f GetterFunc) Get(ctx context.Context, key string) ([]byte, error) {
	return f(ctx, key)
}

// AggregateCache 把一组带标签的节点聚合成一个缓存
type AggregateCache struct {
	reg      *registry.Registry
	selector selector.Selector
	loader   singleflight.Group
	stats    loadStats
	logger   *logrus.Entry
}

// loadStats 保存 GetOrLoad 的统计信息
type loadStats struct {
	peerHits     atomic.Int64 // 节点直接命中次数
	peerMisses   atomic.Int64 // 节点未命中次数
	loads        atomic.Int64 // 加载次数（singleflight 合并后）
	loaderHits   atomic.Int64 // 从加载器获取成功次数
	loaderErrors atomic.Int64 // 从加载器获取失败次数
	loadDuration atomic.Int64 // 加载总耗时（纳秒）
}

// NewTiered 创建按层级选择节点的缓存
func NewTiered(opts ...Option) *AggregateCache {
	o := applyOptions(opts)
	reg := registry.New(registry.WithLogger(o.Logger))
	t := selector.NewTiered(reg, o.selectorOptions()...)
	for category, tier := range o.CategoryTiers {
		t.SetCategoryTier(category, tier)
	}
	return newAggregateCache(reg, t, o)
}

// NewCyclic 创建按环形分区选择节点的缓存，环大小必须为正数
func NewCyclic(opts ...Option) (*AggregateCache, error) {
	o := applyOptions(opts)
	reg := registry.New(registry.WithLogger(o.Logger))
	c, err := selector.NewCyclic(reg, o.selectorOptions()...)
	if err != nil {
		return nil, err
	}
	return newAggregateCache(reg, c, o), nil
}

func applyOptions(opts []Option) Options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	return o
}

func newAggregateCache(reg *registry.Registry, sel selector.Selector, o Options) *AggregateCache {
	return &AggregateCache{
		reg:      reg,
		selector: sel,
		logger:   o.Logger.WithField("component", "aggcache"),
	}
}

// AddPeer 注册节点，mark 对层级策略是 Tier，对环形策略是 arc 的结束位置
func (c *AggregateCache) AddPeer(label string, handle Handle, mark int) error {
	return c.selector.AddPeer(label, handle, mark)
}

// Register 与 AddPeer 相同，签名匹配 peer.RegisterFunc
func (c *AggregateCache) Register(label string, handle peer.Handle, mark int) error {
	return c.AddPeer(label, handle, mark)
}

// SetCategoryTier 设置类别的目标层级，只对层级策略有效
func (c *AggregateCache) SetCategoryTier(category string, tier Tier) error {
	t, ok := c.selector.(*selector.Tiered)
	if !ok {
		return fmt.Errorf("%w: SetCategoryTier", ErrNotSupported)
	}
	t.SetCategoryTier(category, tier)
	return nil
}

// CategoryTier 返回类别当前的目标层级
func (c *AggregateCache) CategoryTier(category string) (Tier, error) {
	t, ok := c.selector.(*selector.Tiered)
	if !ok {
		return 0, fmt.Errorf("%w: CategoryTier", ErrNotSupported)
	}
	return t.CategoryTier(category), nil
}

// SetRingSize 修改环大小，只对环形策略有效
func (c *AggregateCache) SetRingSize(size int) error {
	r, ok := c.selector.(*selector.Cyclic)
	if !ok {
		return fmt.Errorf("%w: SetRingSize", ErrNotSupported)
	}
	return r.SetRingSize(size)
}

// Validate reports whether every key can currently be routed.
// A cyclic cache whose arcs leave a gap fails with ErrUnresolvedPartition.
func (c *AggregateCache) Validate() error {
	if c.reg.Len() == 0 {
		return ErrNoPeersAvailable
	}
	if r, ok := c.selector.(*selector.Cyclic); ok && !r.Covered() {
		return fmt.Errorf("%w: arcs do not cover ring of size %d", ErrUnresolvedPartition, r.RingSize())
	}
	return nil
}

// Select 只做路由，返回负责该 key 的节点标签
func (c *AggregateCache) Select(key, category string) (string, error) {
	if key == "" {
		return "", ErrKeyRequired
	}
	return c.selector.Select(key, category)
}

func (c *AggregateCache) route(key, category string) (string, Handle, error) {
	label, err := c.Select(key, category)
	if err != nil {
		return "", nil, err
	}
	h, err := c.reg.Resolve(label)
	if err != nil {
		return "", nil, err
	}
	return label, h, nil
}

// Get 从负责该 key 的节点读取
func (c *AggregateCache) Get(ctx context.Context, key, category string) (ByteView, error) {
	label, h, err := c.route(key, category)
	if err != nil {
		return ByteView{}, err
	}
	data, err := h.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			c.logger.WithError(err).WithField("peer", label).Warn("get failed")
		}
		return ByteView{}, err
	}
	return cache.NewByteView(data), nil
}

// Set 写入负责该 key 的节点
func (c *AggregateCache) Set(ctx context.Context, key string, value []byte, category string) error {
	label, h, err := c.route(key, category)
	if err != nil {
		return err
	}
	if err := h.Set(ctx, key, value); err != nil {
		c.logger.WithError(err).WithField("peer", label).Warn("set failed")
		return err
	}
	return nil
}

// Delete 从负责该 key 的节点删除
func (c *AggregateCache) Delete(ctx context.Context, key, category string) error {
	label, h, err := c.route(key, category)
	if err != nil {
		return err
	}
	if err := h.Delete(ctx, key); err != nil {
		c.logger.WithError(err).WithField("peer", label).Warn("delete failed")
		return err
	}
	return nil
}

// GetOrLoad 读取 key，节点未命中时通过 getter 加载并写回该节点。
// 同一节点上同一 key 的并发加载只会执行一次。
func (c *AggregateCache) GetOrLoad(ctx context.Context, key, category string, getter Getter) (ByteView, error) {
	if getter == nil {
		return ByteView{}, fmt.Errorf("%w: nil getter", ErrInvalidArgument)
	}
	label, h, err := c.route(key, category)
	if err != nil {
		return ByteView{}, err
	}

	data, err := h.Get(ctx, key)
	if err == nil {
		c.stats.peerHits.Add(1)
		return cache.NewByteView(data), nil
	}
	if !errors.Is(err, ErrNotFound) {
		c.logger.WithError(err).WithField("peer", label).Warn("get failed")
		return ByteView{}, err
	}
	c.stats.peerMisses.Add(1)

	start := time.Now()
	v, err, _ := c.loader.Do(label+"\x00"+key, func() (any, error) {
		c.stats.loads.Add(1)
		data, err := getter.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		view := cache.NewByteView(data)
		// 写回失败不影响本次结果，下次读取会重新加载
		if err := h.Set(ctx, key, view.ByteSlice()); err != nil {
			c.logger.WithError(err).WithField("peer", label).Warnf("failed to store loaded key %q", key)
		}
		return view, nil
	})
	c.stats.loadDuration.Add(time.Since(start).Nanoseconds())

	if err != nil {
		c.stats.loaderErrors.Add(1)
		return ByteView{}, err
	}
	c.stats.loaderHits.Add(1)
	return v.(ByteView), nil
}

// Stats 返回每个节点按类别统计的命中次数
func (c *AggregateCache) Stats() map[string]map[string]int64 {
	return c.reg.Stats()
}

// Hits 返回某节点某类别的命中次数
func (c *AggregateCache) Hits(label, category string) int64 {
	if category == "" {
		category = DefaultCategory
	}
	return c.reg.Hits(label, category)
}

// LoadStats 返回 GetOrLoad 的统计信息
func (c *AggregateCache) LoadStats() map[string]any {
	stats := map[string]any{
		"peer_hits":     c.stats.peerHits.Load(),
		"peer_misses":   c.stats.peerMisses.Load(),
		"loads":         c.stats.loads.Load(),
		"loader_hits":   c.stats.loaderHits.Load(),
		"loader_errors": c.stats.loaderErrors.Load(),
	}

	totalGets := stats["peer_hits"].(int64) + stats["peer_misses"].(int64)
	if totalGets > 0 {
		stats["hit_rate"] = float64(stats["peer_hits"].(int64)) / float64(totalGets)
	}

	if waits := stats["loader_hits"].(int64) + stats["loader_errors"].(int64); waits > 0 {
		stats["avg_load_time_ms"] = float64(c.stats.loadDuration.Load()) / float64(waits) / float64(time.Millisecond)
	}
	return stats
}

// Peers 返回已注册节点的标签，按注册顺序
func (c *AggregateCache) Peers() []string {
	return c.reg.Labels()
}

// Len 返回已注册节点数
func (c *AggregateCache) Len() int {
	return c.reg.Len()
}
