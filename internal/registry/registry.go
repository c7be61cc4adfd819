package registry

import (
	"errors"
	"fmt"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/justthefish/hesper/internal/peer"
	"github.com/sirupsen/logrus"
)

var (
	ErrDuplicateLabel  = errors.New("peer label already registered")
	ErrUnknownPeer     = errors.New("unknown peer label")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Entry 是注册表中的一行。Mark 的含义由选择器决定：
// 分层选择器中是节点的温度层级，环形选择器中是弧段的上界。
type Entry struct {
	Label  string
	Handle peer.Handle
	Mark   int
}

// Snapshot 是注册表某一时刻的只读视图，Entries 按注册顺序排列。
// Version 每次变更都会递增，选择器用它判断派生索引是否过期。
type Snapshot struct {
	Version uint64
	Entries []Entry
	byLabel map[string]int
}

// Lookup 在快照中查找标签
func (s *Snapshot) Lookup(label string) (Entry, bool) {
	i, ok := s.byLabel[label]
	if !ok {
		return Entry{}, false
	}
	return s.Entries[i], true
}

// Registry 保存节点标签到节点信息的映射。
// 写操作串行执行并发布新的快照，读操作无锁。节点一旦注册不会被自动移除。
type Registry struct {
	mu     sync.Mutex // 串行化写操作
	snap   atomic.Pointer[Snapshot]
	stats  *Stats
	logger *logrus.Entry
}

type options struct {
	logger *logrus.Logger
}

// Option 配置 Registry
type Option func(*options)

// WithLogger 为注册表设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// New 创建一个空注册表
func New(opts ...Option) *Registry {
	o := &options{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(o)
	}
	r := &Registry{
		stats:  newStats(),
		logger: o.logger.WithField("component", "registry"),
	}
	r.snap.Store(&Snapshot{byLabel: map[string]int{}})
	return r
}

// Add 登记一个节点。标签重复时返回 ErrDuplicateLabel。
func (r *Registry) Add(label string, handle peer.Handle, mark int) error {
	if label == "" {
		return fmt.Errorf("%w: empty peer label", ErrInvalidArgument)
	}
	if handle == nil {
		return fmt.Errorf("%w: nil handle for peer %q", ErrInvalidArgument, label)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.snap.Load()
	if _, exists := old.byLabel[label]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
	}

	entries := make([]Entry, len(old.Entries), len(old.Entries)+1)
	copy(entries, old.Entries)
	entries = append(entries, Entry{Label: label, Handle: handle, Mark: mark})

	byLabel := maps.Clone(old.byLabel)
	byLabel[label] = len(entries) - 1

	r.snap.Store(&Snapshot{Version: old.Version + 1, Entries: entries, byLabel: byLabel})

	r.logger.WithFields(logrus.Fields{"label": label, "mark": mark}).Info("Peer registered")
	return nil
}

// Snapshot 返回当前快照。调用方不得修改返回的切片。
func (r *Registry) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Version 返回当前配置版本
func (r *Registry) Version() uint64 {
	return r.snap.Load().Version
}

// Len 返回已注册节点数
func (r *Registry) Len() int {
	return len(r.snap.Load().Entries)
}

// Labels 按注册顺序返回所有标签
func (r *Registry) Labels() []string {
	entries := r.snap.Load().Entries
	labels := make([]string, len(entries))
	for i, e := range entries {
		labels[i] = e.Label
	}
	return labels
}

// Lookup 返回标签对应的完整条目
func (r *Registry) Lookup(label string) (Entry, bool) {
	return r.snap.Load().Lookup(label)
}

// Resolve 返回标签对应的节点句柄
func (r *Registry) Resolve(label string) (peer.Handle, error) {
	e, ok := r.Lookup(label)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPeer, label)
	}
	return e.Handle, nil
}

// RecordHit 为节点的某个类别累加一次命中，不会失败。
func (r *Registry) RecordHit(label, category string) {
	r.stats.incr(label, category)
}

// Hits 返回某个节点某个类别的命中次数
func (r *Registry) Hits(label, category string) int64 {
	return r.stats.get(label, category)
}

// Stats 返回所有命中计数的副本：标签 -> 类别 -> 次数
func (r *Registry) Stats() map[string]map[string]int64 {
	return r.stats.dump()
}
