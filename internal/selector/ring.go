package selector

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/justthefish/hesper/internal/peer"
	"github.com/justthefish/hesper/internal/registry"
	"github.com/sirupsen/logrus"
)

// Cyclic 把 [0, size) 切分为连续弧段，每个节点拥有一段，弧段上界由运维显式指定。
// key 的哈希落点归属于第一个上界不小于落点的节点。
//
// 按上界排序的索引是惰性构建的：注册表版本变化或环大小变化后索引视为过期，
// 下一次查找时重建。
type Cyclic struct {
	reg    *registry.Registry
	mu     sync.Mutex // 保护 size，并串行化索引重建
	size   int
	index  atomic.Pointer[arcIndex] // nil 表示需要重建
	point  PointFunc
	logger *logrus.Entry
}

var _ Selector = (*Cyclic)(nil)

type arc struct {
	end   int
	label string
}

// arcIndex 构建后不再修改
type arcIndex struct {
	version uint64
	size    int
	arcs    []arc // 按 end 升序
}

// NewCyclic 创建基于 reg 的环形选择器。环大小必须为正数。
func NewCyclic(reg *registry.Registry, opts ...Option) (*Cyclic, error) {
	o := applyOptions(opts)
	if o.ringSize <= 0 {
		return nil, fmt.Errorf("%w: ring size must be positive, got %d", registry.ErrInvalidArgument, o.ringSize)
	}
	return &Cyclic{
		reg:    reg,
		size:   o.ringSize,
		point:  o.point,
		logger: o.logger.WithField("component", "ring_selector"),
	}, nil
}

// AddPeer 登记节点，mark 为弧段上界，必须满足 0 <= mark <= 环大小。
func (c *Cyclic) AddPeer(label string, handle peer.Handle, mark int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if mark < 0 || mark > c.size {
		return fmt.Errorf("%w: arc end %d for peer %q outside [0, %d]", ErrOutOfRange, mark, label, c.size)
	}
	if err := c.reg.Add(label, handle, mark); err != nil {
		return err
	}
	c.index.Store(nil)
	return nil
}

// SetRingSize 修改环大小。已有弧段上界不会按比例缩放，由调用方保证一致。
func (c *Cyclic) SetRingSize(size int) error {
	if size <= 0 {
		return fmt.Errorf("%w: ring size must be positive, got %d", registry.ErrInvalidArgument, size)
	}
	c.mu.Lock()
	c.size = size
	c.index.Store(nil)
	c.mu.Unlock()

	c.logger.WithField("size", size).Info("Ring size changed")
	return nil
}

// RingSize 返回当前环大小
func (c *Cyclic) RingSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// Select 实现 Selector
func (c *Cyclic) Select(key, category string) (string, error) {
	idx := c.currentIndex()
	if len(idx.arcs) == 0 {
		return "", ErrNoPeersAvailable
	}

	p := int(uint64(c.point(key)) % uint64(idx.size))
	label, err := idx.locate(p)
	if err != nil {
		c.logger.WithError(err).Warnf("key '%s' hashed to uncovered point %d", key, p)
		return "", err
	}

	c.reg.RecordHit(label, normalizeCategory(category))
	if c.logger.Logger.IsLevelEnabled(logrus.DebugLevel) {
		c.logger.Debugf("key '%s' -> point %d -> peer %s", key, p, label)
	}
	return label, nil
}

// Locate 返回环上某个位置的归属节点，不记录命中
func (c *Cyclic) Locate(point int) (string, error) {
	if point < 0 {
		return "", fmt.Errorf("%w: negative ring point %d", ErrOutOfRange, point)
	}
	idx := c.currentIndex()
	if len(idx.arcs) == 0 {
		return "", ErrNoPeersAvailable
	}
	return idx.locate(point)
}

// Covered 报告弧段是否覆盖到环的末尾。为 false 时部分 key 会得到 ErrUnresolvedPartition。
func (c *Cyclic) Covered() bool {
	idx := c.currentIndex()
	if len(idx.arcs) == 0 {
		return false
	}
	return idx.arcs[len(idx.arcs)-1].end >= idx.size-1
}

func (c *Cyclic) currentIndex() *arcIndex {
	if idx := c.index.Load(); idx != nil && idx.version == c.reg.Version() {
		return idx
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	snap := c.reg.Snapshot()
	if idx := c.index.Load(); idx != nil && idx.version == snap.Version {
		return idx
	}

	arcs := make([]arc, len(snap.Entries))
	for i, e := range snap.Entries {
		arcs[i] = arc{end: e.Mark, label: e.Label}
	}
	slices.SortStableFunc(arcs, func(a, b arc) int {
		return cmp.Compare(a.end, b.end)
	})

	idx := &arcIndex{version: snap.Version, size: c.size, arcs: arcs}
	c.index.Store(idx)
	c.logger.WithFields(logrus.Fields{"peers": len(arcs), "size": c.size}).Debug("Ring index rebuilt")
	return idx
}

func (idx *arcIndex) locate(point int) (string, error) {
	i := sort.Search(len(idx.arcs), func(i int) bool {
		return idx.arcs[i].end >= point
	})
	if i == len(idx.arcs) {
		return "", fmt.Errorf("%w: point %d above last arc end %d", ErrUnresolvedPartition, point, idx.arcs[len(idx.arcs)-1].end)
	}
	return idx.arcs[i].label, nil
}
