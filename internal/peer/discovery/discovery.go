package discovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Record 描述一个 peer 节点：标签、gRPC 地址以及选择器使用的 mark（层级或弧段上界）
type Record struct {
	Label string `json:"label"`
	Addr  string `json:"addr"`
	Mark  int    `json:"mark"`
}

// Update 是服务状态的变更通知
type Update struct {
	Op     Op
	Record Record
}

// Op 定义了节点变更的操作类型
type Op int

const (
	Add Op = iota // 新增或更新节点
	Del           // 删除节点，Del 时 Record 只有 Label 有效
)

func (o Op) String() string {
	switch o {
	case Add:
		return "add"
	case Del:
		return "del"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Discoverer 定义了服务发现者的接口
type Discoverer interface {
	// Watch 先推送全部已有节点，再持续推送变更，ctx 结束时关闭通道
	Watch(ctx context.Context) (<-chan Update, error)
	// Close 关闭发现者并释放资源
	Close() error
}

var ErrInvalidRecord = errors.New("invalid peer record")

// Encode 把记录编码为存储在 etcd 中的值
func (r Record) Encode() (string, error) {
	if err := r.validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode peer record %q: %w", r.Label, err)
	}
	return string(b), nil
}

// parseRecord 解析 etcd 中的一条记录，key 的最后一段必须与记录中的标签一致
func parseRecord(key, prefix string, value []byte) (Record, error) {
	label := strings.TrimPrefix(key, prefix)
	var r Record
	if err := json.Unmarshal(value, &r); err != nil {
		return Record{}, fmt.Errorf("%w: key %s: %v", ErrInvalidRecord, key, err)
	}
	if r.Label == "" {
		r.Label = label
	}
	if r.Label != label {
		return Record{}, fmt.Errorf("%w: key %s carries label %q", ErrInvalidRecord, key, r.Label)
	}
	if err := r.validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}

func (r Record) validate() error {
	if r.Label == "" || strings.Contains(r.Label, "/") {
		return fmt.Errorf("%w: bad label %q", ErrInvalidRecord, r.Label)
	}
	if r.Addr == "" {
		return fmt.Errorf("%w: peer %q has no address", ErrInvalidRecord, r.Label)
	}
	return nil
}
