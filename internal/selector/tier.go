package selector

import (
	"math"
	"math/rand/v2"
	"sync"

	"github.com/justthefish/hesper/internal/peer"
	"github.com/justthefish/hesper/internal/registry"
	"github.com/sirupsen/logrus"
)

// Tier 是数据的"温度"层级，只用于比较相对距离
type Tier int

const (
	TierUltraHigh Tier = 0xFFFF
	TierHigh      Tier = 0xC000
	TierNormal    Tier = 0x8000
	TierLow       Tier = 0x4000
	TierVeryLow   Tier = 0x0001
)

// Tiered 按类别的目标层级选择节点。
// 层级完全相同的节点总是优先；否则按 1/距离² 加权随机选择层级，再在该层级内均匀选择节点。
// 随机序列由 key 派生，因此同一 key 在相同配置下总是得到相同的节点。
type Tiered struct {
	reg    *registry.Registry
	mu     sync.RWMutex
	tiers  map[string]Tier // 类别 -> 目标层级
	logger *logrus.Entry
}

var _ Selector = (*Tiered)(nil)

// NewTiered 创建基于 reg 的分层选择器
func NewTiered(reg *registry.Registry, opts ...Option) *Tiered {
	o := applyOptions(opts)
	return &Tiered{
		reg:    reg,
		tiers:  make(map[string]Tier),
		logger: o.logger.WithField("component", "tier_selector"),
	}
}

// AddPeer 登记节点，mark 为节点层级。任何整数都被接受。
func (t *Tiered) AddPeer(label string, handle peer.Handle, mark int) error {
	return t.reg.Add(label, handle, mark)
}

// SetCategoryTier 设置类别的目标层级，覆盖已有设置
func (t *Tiered) SetCategoryTier(category string, tier Tier) {
	t.mu.Lock()
	t.tiers[category] = tier
	t.mu.Unlock()
	t.logger.WithFields(logrus.Fields{"category": category, "tier": int(tier)}).Info("Category tier set")
}

// CategoryTier 返回类别的目标层级，未设置时为 TierNormal
func (t *Tiered) CategoryTier(category string) Tier {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if tier, ok := t.tiers[category]; ok {
		return tier
	}
	return TierNormal
}

// Select 实现 Selector
func (t *Tiered) Select(key, category string) (string, error) {
	category = normalizeCategory(category)
	entries := t.reg.Snapshot().Entries
	if len(entries) == 0 {
		return "", ErrNoPeersAvailable
	}

	target := t.CategoryTier(category)
	label := pickByTier(entries, target, keyStream(key))
	t.reg.RecordHit(label, category)

	if t.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		t.logger.Debugf("key '%s' (category %s, tier %#x) -> peer %s", key, category, int(target), label)
	}
	return label, nil
}

type tierBucket struct {
	tier   int
	weight float64
}

// pickByTier 是选择算法本身。entries 不能为空。
// rng 的使用顺序固定：完全匹配时一次 IntN；否则一次 Float64 加一次 IntN。
func pickByTier(entries []registry.Entry, target Tier, rng *rand.Rand) string {
	var (
		exact   []string
		buckets []tierBucket
		seen    = make(map[int]struct{})
		total   float64
	)
	for _, e := range entries {
		d := math.Abs(float64(target) - float64(e.Mark))
		if d == 0 {
			exact = append(exact, e.Label)
			continue
		}
		if _, ok := seen[e.Mark]; ok {
			continue
		}
		seen[e.Mark] = struct{}{}
		w := 1 / (d * d)
		buckets = append(buckets, tierBucket{tier: e.Mark, weight: w})
		total += w
	}

	if len(exact) > 0 {
		return exact[rng.IntN(len(exact))]
	}

	// 浮点误差可能让 draw 走完所有桶，此时落在最后一个桶
	chosen := buckets[len(buckets)-1].tier
	draw := rng.Float64() * total
	for _, b := range buckets {
		if draw < b.weight {
			chosen = b.tier
			break
		}
		draw -= b.weight
	}

	var candidates []string
	for _, e := range entries {
		if e.Mark == chosen {
			candidates = append(candidates, e.Label)
		}
	}
	return candidates[rng.IntN(len(candidates))]
}
