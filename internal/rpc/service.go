// Package rpc 定义 peer 节点之间的 gRPC 协议。
//
// 消息全部使用 protobuf 的通用类型，key 放在二进制 metadata 中传递，
// 因此不需要额外的 .proto 生成代码：
//
//	Get(Empty)       -> BytesValue   key 不存在时返回 codes.NotFound
//	Set(BytesValue)  -> Empty
//	Delete(Empty)    -> Empty
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "hesper.peer.v1.PeerService"

	GetMethod    = "/" + ServiceName + "/Get"
	SetMethod    = "/" + ServiceName + "/Set"
	DeleteMethod = "/" + ServiceName + "/Delete"

	// KeyHeader 以 -bin 结尾，gRPC 会自动做 base64 编码，任意字节的 key 都能安全传输
	KeyHeader = "hesper-key-bin"
)

// PeerServer 是服务端需要实现的接口
type PeerServer interface {
	Get(ctx context.Context, in *emptypb.Empty) (*wrapperspb.BytesValue, error)
	Set(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error)
	Delete(ctx context.Context, in *emptypb.Empty) (*emptypb.Empty, error)
}

// RegisterPeerServer 把 srv 注册到 gRPC 服务器
func RegisterPeerServer(s grpc.ServiceRegistrar, srv PeerServer) {
	s.RegisterService(&serviceDesc, srv)
}

// WithKey 把 key 写入出站 metadata
func WithKey(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, KeyHeader, key)
}

// KeyFromContext 从入站 metadata 读取 key
func KeyFromContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Error(codes.InvalidArgument, "missing metadata")
	}
	values := md.Get(KeyHeader)
	if len(values) != 1 || values[0] == "" {
		return "", status.Errorf(codes.InvalidArgument, "expected exactly one non-empty %s header", KeyHeader)
	}
	return values[0], nil
}

// PeerClient 是 PeerService 的客户端桩
type PeerClient struct {
	cc grpc.ClientConnInterface
}

// NewPeerClient 基于已有连接创建客户端
func NewPeerClient(cc grpc.ClientConnInterface) *PeerClient {
	return &PeerClient{cc: cc}
}

func (c *PeerClient) Get(ctx context.Context, key string, opts ...grpc.CallOption) ([]byte, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(WithKey(ctx, key), GetMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out.GetValue(), nil
}

func (c *PeerClient) Set(ctx context.Context, key string, value []byte, opts ...grpc.CallOption) error {
	return c.cc.Invoke(WithKey(ctx, key), SetMethod, wrapperspb.Bytes(value), new(emptypb.Empty), opts...)
}

func (c *PeerClient) Delete(ctx context.Context, key string, opts ...grpc.CallOption) error {
	return c.cc.Invoke(WithKey(ctx, key), DeleteMethod, &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PeerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Set", Handler: setHandler},
		{MethodName: "Delete", Handler: deleteHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hesper/peer/v1/peer.proto",
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: GetMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServer).Get(ctx, req.(*emptypb.Empty))
	})
}

func setHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).Set(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: SetMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServer).Set(ctx, req.(*wrapperspb.BytesValue))
	})
}

func deleteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PeerServer).Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: DeleteMethod}
	return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
		return srv.(PeerServer).Delete(ctx, req.(*emptypb.Empty))
	})
}
