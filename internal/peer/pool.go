package peer

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/justthefish/hesper/internal/peer/discovery"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
)

// RegisterFunc 把新发现的节点登记到路由层
type RegisterFunc func(label string, handle Handle, mark int) error

// Pool 持有到远程节点的 gRPC 连接，并把服务发现推送的节点登记到路由层。
// 路由层的注册表只引用句柄，连接的生命周期由 Pool 负责。
// 注册表中的条目不会被自动移除，所以节点下线只记录日志，连接保留。
type Pool struct {
	mu         sync.Mutex
	remotes    map[string]*RemotePeer
	discoverer discovery.Discoverer
	register   RegisterFunc
	dialOpts   []grpc.DialOption
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	logger     *logrus.Entry
}

var _ io.Closer = (*Pool)(nil)

type poolOptions struct {
	logger   *logrus.Logger
	dialOpts []grpc.DialOption
}

// PoolOption 配置 Pool
type PoolOption func(*poolOptions)

// WithPoolLogger 为 Pool 设置日志记录器。
func WithPoolLogger(logger *logrus.Logger) PoolOption {
	return func(o *poolOptions) {
		o.logger = logger
	}
}

// WithDialOptions 追加建立 gRPC 连接时的选项
func WithDialOptions(opts ...grpc.DialOption) PoolOption {
	return func(o *poolOptions) {
		o.dialOpts = append(o.dialOpts, opts...)
	}
}

// NewPool 开始监听 discoverer。返回前已登记所有初始节点，之后的变更在后台处理。
func NewPool(discoverer discovery.Discoverer, register RegisterFunc, opts ...PoolOption) (*Pool, error) {
	options := &poolOptions{logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(options)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		remotes:    make(map[string]*RemotePeer),
		discoverer: discoverer,
		register:   register,
		dialOpts:   options.dialOpts,
		cancel:     cancel,
		logger:     options.logger.WithField("component", "peer_pool"),
	}

	updateCh, err := discoverer.Watch(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start peer discovery watcher: %w", err)
	}

	// 初始节点在 Watch 返回前已写入通道
initial:
	for {
		select {
		case update, ok := <-updateCh:
			if !ok {
				break initial
			}
			p.apply(update)
		default:
			break initial
		}
	}

	p.wg.Add(1)
	go p.syncPeers(ctx, updateCh)
	return p, nil
}

// syncPeers 是一个后台 goroutine，用于从服务发现同步节点信息。
func (p *Pool) syncPeers(ctx context.Context, updateCh <-chan Update) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Context cancelled, stopping peer sync.")
			return
		case update, ok := <-updateCh:
			if !ok {
				p.logger.Info("Discovery channel closed, stopping peer sync.")
				return
			}
			p.apply(update)
		}
	}
}

// Update 是 discovery.Update 的别名，方便调用方不必导入 discovery
type Update = discovery.Update

func (p *Pool) apply(update Update) {
	rec := update.Record
	logger := p.logger.WithFields(logrus.Fields{"label": rec.Label, "addr": rec.Addr})

	switch update.Op {
	case discovery.Add:
		p.addPeer(rec, logger)
	case discovery.Del:
		logger.Warn("Peer deregistered; registry entry is kept and requests may fail until it returns")
	}
}

func (p *Pool) addPeer(rec discovery.Record, logger *logrus.Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.remotes[rec.Label]; ok {
		if existing.Addr() != rec.Addr {
			logger.WithField("registered_addr", existing.Addr()).Warn("Peer re-registered with a different address, ignored")
		}
		return
	}

	client, err := NewRemotePeer(rec.Addr, p.dialOpts...)
	if err != nil {
		logger.WithError(err).Error("Failed to create remote peer client")
		return
	}
	if err := p.register(rec.Label, client, rec.Mark); err != nil {
		logger.WithError(err).Error("Failed to register peer")
		_ = client.Close()
		return
	}

	p.remotes[rec.Label] = client
	logger.WithField("mark", rec.Mark).Info("Peer added")
}

// Peers 返回标签到地址的映射
func (p *Pool) Peers() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]string, len(p.remotes))
	for label, r := range p.remotes {
		out[label] = r.Addr()
	}
	return out
}

// Close 停止服务发现并关闭所有与对等节点的连接
func (p *Pool) Close() error {
	p.logger.Info("Closing peer pool...")
	p.cancel()
	p.wg.Wait()

	p.mu.Lock()
	for label, r := range p.remotes {
		if err := r.Close(); err != nil {
			p.logger.Warnf("Failed to close connection to peer %s: %v", label, err)
		}
	}
	p.remotes = nil
	p.mu.Unlock()

	if err := p.discoverer.Close(); err != nil {
		p.logger.WithError(err).Error("Failed to close discoverer")
		return err
	}
	p.logger.Info("Peer pool closed.")
	return nil
}
