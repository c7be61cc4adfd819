package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Static 是固定节点列表的 Discoverer，用于不接 etcd 的部署和测试
type Static struct {
	records []Record
}

var _ Discoverer = (*Static)(nil)

// NewStatic 创建静态发现者
func NewStatic(records ...Record) *Static {
	return &Static{records: records}
}

// Watch 推送全部节点，之后保持通道打开直到 ctx 结束
func (s *Static) Watch(ctx context.Context) (<-chan Update, error) {
	ch := make(chan Update, len(s.records))
	for _, r := range s.records {
		if err := r.validate(); err != nil {
			return nil, err
		}
		ch <- Update{Op: Add, Record: r}
	}
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// Close 实现 Discoverer
func (s *Static) Close() error { return nil }

// ParseRecords 解析形如 "A=127.0.0.1:9001@0xC000,B=127.0.0.1:9002@100" 的节点列表。
// mark 支持十进制、0x 前缀十六进制以及层级名称（由 names 提供）。
func ParseRecords(s string, names map[string]int) ([]Record, error) {
	var out []Record
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		label, rest, ok := strings.Cut(item, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q: expected label=addr@mark", ErrInvalidRecord, item)
		}
		addr, markStr, ok := strings.Cut(rest, "@")
		if !ok {
			return nil, fmt.Errorf("%w: %q: missing @mark", ErrInvalidRecord, item)
		}
		mark, err := ParseMark(markStr, names)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRecord, item, err)
		}
		r := Record{Label: strings.TrimSpace(label), Addr: strings.TrimSpace(addr), Mark: mark}
		if err := r.validate(); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// ParseMark 解析单个 mark
func ParseMark(s string, names map[string]int) (int, error) {
	s = strings.TrimSpace(s)
	if v, ok := names[strings.ToLower(s)]; ok {
		return v, nil
	}
	v, err := strconv.ParseInt(s, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad mark %q", s)
	}
	return int(v), nil
}
