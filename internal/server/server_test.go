package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/justthefish/hesper/internal/peer"
	"github.com/justthefish/hesper/internal/peer/discovery"
	"github.com/justthefish/hesper/internal/rpc"
	"github.com/justthefish/hesper/internal/store"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type fakeRegistrar struct {
	mu   sync.Mutex
	recs []discovery.Record
	err  error
}

func (f *fakeRegistrar) Register(ctx context.Context, rec discovery.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, rec)
	return f.err
}

// startTestServer 在内存 listener 上启动节点，返回连到它的客户端
func startTestServer(t *testing.T, opts ...ServerOption) (*Server, *peer.RemotePeer, *grpc.ClientConn) {
	t.Helper()

	local := store.NewLocalPeer(store.DefaultOptions(), 0)
	t.Cleanup(func() { _ = local.Close() })

	srv, err := NewServer("127.0.0.1:9101", "A", 0xC000, local, opts...)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(lis) }()
	t.Cleanup(func() {
		srv.Stop()
		<-done
	})

	dialer := grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
	remote, err := peer.NewRemotePeer("passthrough:///bufnet", dialer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = remote.Close() })

	conn, err := grpc.NewClient("passthrough:///bufnet", dialer, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return srv, remote, conn
}

func TestServer_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, remote, _ := startTestServer(t)

	_, err := remote.Get(ctx, "missing")
	require.ErrorIs(t, err, peer.ErrNotFound)

	require.NoError(t, remote.Set(ctx, "k1", []byte("v1")))
	got, err := remote.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), got)

	require.NoError(t, remote.Set(ctx, "k1", []byte("v2")))
	got, err = remote.Get(ctx, "k1")
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)

	require.NoError(t, remote.Delete(ctx, "k1"))
	_, err = remote.Get(ctx, "k1")
	require.ErrorIs(t, err, peer.ErrNotFound)
}

func TestServer_BinaryKeys(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, remote, _ := startTestServer(t)

	key := "用户:\x00\xff/42"
	require.NoError(t, remote.Set(ctx, key, []byte{0, 1, 2}))
	got, err := remote.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte{0, 1, 2}, got)
}

func TestServer_MissingKeyHeader(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, conn := startTestServer(t)

	err := conn.Invoke(ctx, rpc.GetMethod, &emptypb.Empty{}, &wrapperspb.BytesValue{})
	require.Error(t, err)
	require.False(t, errors.Is(err, peer.ErrNotFound))
}

func TestServer_Health(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, conn := startTestServer(t)

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: rpc.ServiceName})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_Registration(t *testing.T) {
	reg := &fakeRegistrar{}
	startTestServer(t, WithRegistrar(reg))

	require.Eventually(t, func() bool {
		reg.mu.Lock()
		defer reg.mu.Unlock()
		return len(reg.recs) == 1
	}, time.Second, 10*time.Millisecond)

	reg.mu.Lock()
	require.Equal(t, discovery.Record{Label: "A", Addr: "127.0.0.1:9101", Mark: 0xC000}, reg.recs[0])
	reg.mu.Unlock()
}

func TestServer_RegistrationFailureStopsServer(t *testing.T) {
	local := store.NewLocalPeer(store.DefaultOptions(), 0)
	defer local.Close()

	srv, err := NewServer("127.0.0.1:9102", "B", 1, local, WithRegistrar(&fakeRegistrar{err: errors.New("etcd down")}))
	require.NoError(t, err)

	err = srv.Serve(bufconn.Listen(1 << 20))
	require.ErrorContains(t, err, "etcd down")
}

func TestNewServer_Validation(t *testing.T) {
	local := store.NewLocalPeer(store.DefaultOptions(), 0)
	defer local.Close()

	_, err := NewServer("", "A", 0, local)
	require.Error(t, err)
	_, err = NewServer("h:1", "", 0, local)
	require.Error(t, err)
	_, err = NewServer("h:1", "A", 0, nil)
	require.Error(t, err)
	_, err = NewServer("h:1", "A", 0, local, WithTLS("missing.crt", "missing.key"))
	require.Error(t, err)
}
