package hesper_test

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/justthefish/hesper"
	"github.com/justthefish/hesper/internal/peer"
	"github.com/justthefish/hesper/internal/peer/discovery"
	"github.com/justthefish/hesper/internal/server"
	"github.com/justthefish/hesper/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	label string
	addr  string
	mark  int
	local *store.LocalPeer
}

// startNode 在随机端口上启动一个 peer 节点
func startNode(t *testing.T, label string, mark int) node {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	local := store.NewLocalPeer(store.DefaultOptions(), 0)
	srv, err := server.NewServer(lis.Addr().String(), label, mark, local)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = srv.Serve(lis)
	}()
	t.Cleanup(func() {
		srv.Stop()
		<-done
		_ = local.Close()
	})
	return node{label: label, addr: lis.Addr().String(), mark: mark, local: local}
}

func connect(t *testing.T, c *hesper.AggregateCache, nodes ...node) *peer.Pool {
	t.Helper()
	records := make([]discovery.Record, len(nodes))
	for i, n := range nodes {
		records[i] = discovery.Record{Label: n.label, Addr: n.addr, Mark: n.mark}
	}
	pool, err := peer.NewPool(discovery.NewStatic(records...), c.Register)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })
	return pool
}

func TestCluster_CyclicOverGRPC(t *testing.T) {
	a := startNode(t, "A", 500)
	b := startNode(t, "B", 1000)

	c, err := hesper.NewCyclic(hesper.WithRingSize(1000))
	require.NoError(t, err)
	pool := connect(t, c, a, b)
	require.Len(t, pool.Peers(), 2)
	require.NoError(t, c.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	const (
		clients      = 20
		opsPerClient = 50
	)
	var (
		wg       sync.WaitGroup
		failures atomic.Int64
	)
	for cid := 0; cid < clients; cid++ {
		wg.Add(1)
		go func(cid int) {
			defer wg.Done()
			for j := 0; j < opsPerClient; j++ {
				key := fmt.Sprintf("key_%d_%d", cid, j)
				if err := c.Set(ctx, key, []byte(key), ""); err != nil {
					t.Logf("[SET FAIL] key=%s err=%v", key, err)
					failures.Add(1)
					continue
				}
				view, err := c.Get(ctx, key, "")
				if err != nil || view.String() != key {
					t.Logf("[GET FAIL] key=%s got=%s err=%v", key, view.String(), err)
					failures.Add(1)
				}
			}
		}(cid)
	}
	wg.Wait()

	assert.Zero(t, failures.Load())
	assert.Equal(t, clients*opsPerClient, a.local.Len()+b.local.Len())

	// 每个 key 只存在于它所属弧段的节点上
	for j := 0; j < opsPerClient; j++ {
		key := fmt.Sprintf("key_0_%d", j)
		label, err := c.Select(key, "")
		require.NoError(t, err)
		owner, other := a, b
		if label == "B" {
			owner, other = b, a
		}
		_, err = owner.local.Get(ctx, key)
		assert.NoError(t, err, key)
		_, err = other.local.Get(ctx, key)
		assert.ErrorIs(t, err, hesper.ErrNotFound, key)
	}
}

func TestCluster_TieredOverGRPC(t *testing.T) {
	hot := startNode(t, "hot", int(hesper.TierHigh))
	cold := startNode(t, "cold", int(hesper.TierLow))

	c := hesper.NewTiered(
		hesper.WithCategoryTier("Session", hesper.TierHigh),
		hesper.WithCategoryTier("Archive", hesper.TierLow),
	)
	connect(t, c, hot, cold)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "s1", []byte("session"), "Session"))
	require.NoError(t, c.Set(ctx, "a1", []byte("archive"), "Archive"))
	assert.Equal(t, 1, hot.local.Len())
	assert.Equal(t, 1, cold.local.Len())

	_, err := c.Get(ctx, "s1", "Archive")
	assert.ErrorIs(t, err, hesper.ErrNotFound, "s1 lives on the hot node only")

	view, err := c.GetOrLoad(ctx, "s2", "Session", hesper.GetterFunc(func(context.Context, string) ([]byte, error) {
		return []byte("from source"), nil
	}))
	require.NoError(t, err)
	assert.Equal(t, "from source", view.String())
	assert.Equal(t, 2, hot.local.Len())

	require.NoError(t, c.Delete(ctx, "s1", "Session"))
	_, err = c.Get(ctx, "s1", "Session")
	assert.ErrorIs(t, err, hesper.ErrNotFound)
}
