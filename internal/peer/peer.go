package peer

import (
	"context"
	"errors"
)

// ErrNotFound 表示节点中不存在该 key
var ErrNotFound = errors.New("key not found on peer")

// Handle 是对后端缓存节点的抽象。
// 路由层只负责选出节点，不关心节点如何存储数据。
type Handle interface {
	Get(ctx context.Context, key string) ([]byte, error) // 不存在时返回 ErrNotFound
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// HandleFunc 把三个函数组合成一个 Handle，主要用于测试和简单适配。
type HandleFunc struct {
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	SetFunc    func(ctx context.Context, key string, value []byte) error
	DeleteFunc func(ctx context.Context, key string) error
}

var _ Handle = HandleFunc{}

func (h HandleFunc) Get(ctx context.Context, key string) ([]byte, error) {
	if h.GetFunc == nil {
		return nil, ErrNotFound
	}
	return h.GetFunc(ctx, key)
}

func (h HandleFunc) Set(ctx context.Context, key string, value []byte) error {
	if h.SetFunc == nil {
		return nil
	}
	return h.SetFunc(ctx, key, value)
}

func (h HandleFunc) Delete(ctx context.Context, key string) error {
	if h.DeleteFunc == nil {
		return nil
	}
	return h.DeleteFunc(ctx, key)
}
