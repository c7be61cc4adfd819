package registry

import "github.com/justthefish/hesper/internal/utils"

// Stats 是独立于节点配置的命中统计表：标签 -> 类别 -> 原子计数器。
// 节点配置替换快照时统计表不受影响。
type Stats struct {
	peers utils.TypedSyncMap[string, *utils.Counters[string]]
}

func newStats() *Stats {
	return &Stats{}
}

func (s *Stats) incr(label, category string) {
	s.peers.LoadOrCreate(label, func() *utils.Counters[string] {
		return &utils.Counters[string]{}
	}).Add(category, 1)
}

func (s *Stats) get(label, category string) int64 {
	hits, ok := s.peers.Load(label)
	if !ok {
		return 0
	}
	return hits.Get(category)
}

func (s *Stats) dump() map[string]map[string]int64 {
	out := make(map[string]map[string]int64)
	s.peers.Range(func(label string, hits *utils.Counters[string]) bool {
		out[label] = hits.Snapshot()
		return true
	})
	return out
}
