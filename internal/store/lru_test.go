package store

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/justthefish/hesper/internal/peer"
	"github.com/stretchr/testify/require"
)

type String string

func (s String) Len() int { return len(s) }

func TestLRU_SetGet(t *testing.T) {
	c := NewLRU(Options{MaxBytes: 100})
	defer c.Close()

	c.Set("key1", String("value1"))
	val, ok := c.Get("key1")
	require.True(t, ok)
	require.Equal(t, String("value1"), val)

	_, ok = c.Get("key2")
	require.False(t, ok)

	c.Set("key1", String("v"))
	require.Equal(t, int64(len("key1")+1), c.UsedBytes())
}

func TestLRU_Eviction(t *testing.T) {
	var (
		mu      sync.Mutex
		evicted []string
	)
	onEvicted := func(key string, value Value) {
		mu.Lock()
		defer mu.Unlock()
		evicted = append(evicted, key)
	}

	// key(4) + val(6) = 10 bytes
	c := NewLRU(Options{MaxBytes: 20, OnEvicted: onEvicted})
	defer c.Close()
	c.Set("key1", String("val_01"))
	c.Set("key2", String("val_02"))
	require.Equal(t, int64(20), c.UsedBytes())

	c.Get("key1") // key2 变为最久未使用
	c.Set("key3", String("val_03"))

	_, ok := c.Get("key2")
	require.False(t, ok)
	_, ok = c.Get("key1")
	require.True(t, ok)

	mu.Lock()
	require.Equal(t, []string{"key2"}, evicted)
	mu.Unlock()
}

func TestLRU_Expiration(t *testing.T) {
	c := NewLRU(Options{MaxBytes: 100})
	defer c.Close()

	c.SetWithExpiration("expiring", String("data"), 10*time.Millisecond)
	c.Set("stay", String("data"))
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get("expiring")
	require.False(t, ok)
	require.Equal(t, 1, c.Len(), "过期项在读取时应被删除")

	// 重新写入不带过期时间的值会清除过期设置
	c.SetWithExpiration("k", String("v"), 10*time.Millisecond)
	c.Set("k", String("v"))
	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get("k")
	require.True(t, ok)
}

func TestLRU_BackgroundCleanup(t *testing.T) {
	var (
		mu      sync.Mutex
		evicted []string
	)
	c := NewLRU(Options{
		CleanupInterval: 10 * time.Millisecond,
		OnEvicted: func(key string, value Value) {
			mu.Lock()
			defer mu.Unlock()
			evicted = append(evicted, key)
		},
	})
	defer c.Close()

	for i := 0; i < 4; i++ {
		c.SetWithExpiration(fmt.Sprintf("k%d", i), String("v"), 20*time.Millisecond)
	}

	require.Eventually(t, func() bool {
		return c.Len() == 0
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	require.ElementsMatch(t, []string{"k0", "k1", "k2", "k3"}, evicted)
	mu.Unlock()
}

func TestLRU_CloseIsIdempotent(t *testing.T) {
	c := NewLRU(DefaultOptions())
	c.Close()
	c.Close()
}

func TestLocalPeer_Handle(t *testing.T) {
	ctx := context.Background()
	p := NewLocalPeer(DefaultOptions(), 0)
	defer p.Close()

	_, err := p.Get(ctx, "missing")
	require.ErrorIs(t, err, peer.ErrNotFound)

	value := []byte("v1")
	require.NoError(t, p.Set(ctx, "k", value))
	value[0] = 'x'

	got, err := p.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got, "写入的值应被复制")

	require.NoError(t, p.Delete(ctx, "k"))
	_, err = p.Get(ctx, "k")
	require.ErrorIs(t, err, peer.ErrNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, p.Set(cancelled, "k", value), context.Canceled)
}

func TestLocalPeer_TTL(t *testing.T) {
	ctx := context.Background()
	p := NewLocalPeer(DefaultOptions(), 10*time.Millisecond)
	defer p.Close()

	require.NoError(t, p.Set(ctx, "k", []byte("v")))
	require.Eventually(t, func() bool {
		_, err := p.Get(ctx, "k")
		return err != nil
	}, time.Second, 5*time.Millisecond)
}

func BenchmarkLRU_ReadHeavy(b *testing.B) {
	c := NewLRU(Options{MaxBytes: 1 << 20})
	defer c.Close()
	for i := 0; i < 10000; i++ {
		c.Set(fmt.Sprintf("key-%d", i), String("value"))
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		// 每个 goroutine 使用自己的随机数源
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		for pb.Next() {
			key := fmt.Sprintf("key-%d", r.Intn(20000))
			if r.Intn(100) < 80 {
				c.Get(key)
			} else {
				c.Set(key, String("new_value"))
			}
		}
	})
}
