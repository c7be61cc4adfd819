package peer

import (
	"context"
	"fmt"

	"github.com/justthefish/hesper/internal/rpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// RemotePeer 通过 gRPC 访问远程 peer 节点
type RemotePeer struct {
	addr   string
	conn   *grpc.ClientConn
	client *rpc.PeerClient
}

var _ Handle = (*RemotePeer)(nil) // 编译时检查

// NewRemotePeer 创建到 addr 的连接。连接是惰性建立的，这里不会阻塞。
func NewRemotePeer(addr string, opts ...grpc.DialOption) (*RemotePeer, error) {
	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("gRPC dial to peer %s failed: %w", addr, err)
	}

	return &RemotePeer{
		addr:   addr,
		conn:   conn,
		client: rpc.NewPeerClient(conn),
	}, nil
}

// Addr 返回 gRPC 地址
func (c *RemotePeer) Addr() string {
	return c.addr
}

// Get 获取缓存数据，远端不存在时返回 ErrNotFound
func (c *RemotePeer) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gRPC Get failed on peer %s for key '%s': %w", c.addr, key, err)
	}
	return value, nil
}

// Set 设置缓存数据
func (c *RemotePeer) Set(ctx context.Context, key string, value []byte) error {
	if err := c.client.Set(ctx, key, value); err != nil {
		return fmt.Errorf("gRPC Set failed on peer %s for key '%s': %w", c.addr, key, err)
	}
	return nil
}

// Delete 删除缓存数据
func (c *RemotePeer) Delete(ctx context.Context, key string) error {
	if err := c.client.Delete(ctx, key); err != nil {
		return fmt.Errorf("gRPC Delete failed on peer %s for key '%s': %w", c.addr, key, err)
	}
	return nil
}

// Close 关闭 gRPC 连接
func (c *RemotePeer) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
