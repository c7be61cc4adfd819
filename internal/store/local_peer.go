package store

import (
	"context"
	"time"

	"github.com/justthefish/hesper/internal/cache"
	"github.com/justthefish/hesper/internal/peer"
)

// LocalPeer 把进程内的 LRU 包装成 peer.Handle，可直接登记到聚合缓存，
// 也是 peer 节点服务端的存储后端。
type LocalPeer struct {
	lru *LRU
	ttl time.Duration
}

var _ peer.Handle = (*LocalPeer)(nil)

// NewLocalPeer 创建本地节点。ttl > 0 时每次写入都带过期时间。
func NewLocalPeer(opts Options, ttl time.Duration) *LocalPeer {
	return &LocalPeer{lru: NewLRU(opts), ttl: ttl}
}

func (p *LocalPeer) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := p.lru.Get(key)
	if !ok {
		return nil, peer.ErrNotFound
	}
	return v.(cache.ByteView).ByteSlice(), nil
}

func (p *LocalPeer) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.lru.SetWithExpiration(key, cache.NewByteView(value), p.ttl)
	return nil
}

func (p *LocalPeer) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.lru.Delete(key)
	return nil
}

// Len 返回缓存项数量
func (p *LocalPeer) Len() int {
	return p.lru.Len()
}

// Close 释放后台清理协程
func (p *LocalPeer) Close() error {
	p.lru.Close()
	return nil
}
