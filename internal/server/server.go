package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/justthefish/hesper/internal/peer"
	"github.com/justthefish/hesper/internal/peer/discovery"
	"github.com/justthefish/hesper/internal/rpc"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// Registrar 把节点登记到服务发现，EtcdDiscoverer 实现了它
type Registrar interface {
	Register(ctx context.Context, rec discovery.Record) error
}

// Server 是一个 peer 节点：通过 gRPC 暴露本地存储
type Server struct {
	addr       string
	label      string
	mark       int
	store      peer.Handle
	grpcServer *grpc.Server
	health     *health.Server
	registrar  Registrar
	stopCh     chan struct{}
	stopOnce   sync.Once
	logger     *logrus.Entry
}

var _ rpc.PeerServer = (*Server)(nil)

type TLSConfig struct {
	Enabled  bool
	CertFile string
	KeyFile  string
}

// ServerOptions 服务器配置选项
type ServerOptions struct {
	MaxMsgSize int
	TLS        TLSConfig
	Registrar  Registrar
	Logger     *logrus.Logger
}

func DefaultServerOptions() ServerOptions {
	return ServerOptions{
		MaxMsgSize: 4 << 20, // 4MB
		Logger:     logrus.StandardLogger(),
	}
}

// ServerOption 定义选项函数类型
type ServerOption func(*ServerOptions)

func WithTLS(certFile, keyFile string) ServerOption {
	return func(o *ServerOptions) {
		o.TLS = TLSConfig{
			Enabled:  true,
			CertFile: certFile,
			KeyFile:  keyFile,
		}
	}
}

func WithMaxMsgSize(size int) ServerOption {
	return func(o *ServerOptions) {
		o.MaxMsgSize = size
	}
}

// WithRegistrar 启动后把节点登记到服务发现
func WithRegistrar(r Registrar) ServerOption {
	return func(o *ServerOptions) {
		o.Registrar = r
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(o *ServerOptions) {
		o.Logger = logger
	}
}

// NewServer 创建 peer 节点。label 与 mark 会随注册信息发布给路由层。
func NewServer(addr, label string, mark int, store peer.Handle, opts ...ServerOption) (*Server, error) {
	options := DefaultServerOptions()
	for _, opt := range opts {
		opt(&options)
	}

	if addr == "" {
		return nil, errors.New("server address is required")
	}
	if label == "" {
		return nil, errors.New("peer label is required")
	}
	if store == nil {
		return nil, errors.New("peer store is required")
	}

	grpcOpts := []grpc.ServerOption{grpc.MaxRecvMsgSize(options.MaxMsgSize)}
	if options.TLS.Enabled {
		creds, err := loadTLSCredentials(options.TLS.CertFile, options.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS credentials: %w", err)
		}
		grpcOpts = append(grpcOpts, grpc.Creds(creds))
	} else {
		grpcOpts = append(grpcOpts, grpc.Creds(insecure.NewCredentials()))
	}

	srv := &Server{
		addr:       addr,
		label:      label,
		mark:       mark,
		store:      store,
		grpcServer: grpc.NewServer(grpcOpts...),
		health:     health.NewServer(),
		registrar:  options.Registrar,
		stopCh:     make(chan struct{}),
		logger: options.Logger.WithFields(logrus.Fields{
			"component": "server",
			"label":     label,
		}),
	}

	rpc.RegisterPeerServer(srv.grpcServer, srv)
	healthpb.RegisterHealthServer(srv.grpcServer, srv.health)
	srv.health.SetServingStatus(rpc.ServiceName, healthpb.HealthCheckResponse_SERVING)

	return srv, nil
}

// Start 监听 addr 并阻塞直到 Stop 被调用或服务出错
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.logger.Errorf("failed to listen on %s: %v", s.addr, err)
		return err
	}
	return s.Serve(lis)
}

// Serve 在给定的 listener 上提供服务，测试中可传入 bufconn
func (s *Server) Serve(lis net.Listener) error {
	errChan := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting gRPC server on %s...", lis.Addr())
		errChan <- s.grpcServer.Serve(lis)
	}()

	if s.registrar != nil {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-s.stopCh
			cancel()
		}()
		rec := discovery.Record{Label: s.label, Addr: s.addr, Mark: s.mark}
		if err := s.registrar.Register(ctx, rec); err != nil {
			s.logger.WithError(err).Error("service registration failed")
			s.Stop()
			<-errChan
			return fmt.Errorf("register peer %q: %w", s.label, err)
		}
	} else {
		s.logger.Warn("no registrar configured, peer will not be discoverable")
	}

	s.logger.Infof("Peer %s (mark %d) serving at %s", s.label, s.mark, s.addr)

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			s.logger.Errorf("gRPC server error: %v", err)
			s.Stop()
			return err
		}
		return nil
	case <-s.stopCh:
		return nil
	}
}

// Stop 优雅关闭服务器
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping peer server...")
		close(s.stopCh)
		s.health.Shutdown()
		s.grpcServer.GracefulStop()
		s.logger.Info("Peer server stopped.")
	})
}

// Get 实现 rpc.PeerServer
func (s *Server) Get(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	key, err := rpc.KeyFromContext(ctx)
	if err != nil {
		return nil, err
	}
	value, err := s.store.Get(ctx, key)
	if errors.Is(err, peer.ErrNotFound) {
		return nil, status.Errorf(codes.NotFound, "key %q not found", key)
	}
	if err != nil {
		s.logger.WithError(err).Warnf("Failed to get key '%s'", key)
		return nil, status.Error(codes.Internal, err.Error())
	}
	return wrapperspb.Bytes(value), nil
}

// Set 实现 rpc.PeerServer
func (s *Server) Set(ctx context.Context, in *wrapperspb.BytesValue) (*emptypb.Empty, error) {
	key, err := rpc.KeyFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, key, in.GetValue()); err != nil {
		s.logger.WithError(err).Warnf("Failed to set key '%s'", key)
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.logger.Debugf("Handled SET for key '%s'", key)
	return &emptypb.Empty{}, nil
}

// Delete 实现 rpc.PeerServer
func (s *Server) Delete(ctx context.Context, _ *emptypb.Empty) (*emptypb.Empty, error) {
	key, err := rpc.KeyFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.Delete(ctx, key); err != nil {
		s.logger.WithError(err).Warnf("Failed to delete key '%s'", key)
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.logger.Debugf("Handled DELETE for key '%s'", key)
	return &emptypb.Empty{}, nil
}

func loadTLSCredentials(certFile, keyFile string) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load keypair from %s and %s: %w", certFile, keyFile, err)
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
	}), nil
}
