package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// DefaultLeaseTTL 是节点注册租约的默认有效期
const DefaultLeaseTTL = 10 * time.Second

// EtcdDiscoverer 是 Discoverer 接口基于 etcd 的具体实现，同时负责节点自注册。
type EtcdDiscoverer struct {
	cli        *clientv3.Client
	serviceKey string
	leaseTTL   time.Duration
	logger     *logrus.Entry
}

var _ Discoverer = (*EtcdDiscoverer)(nil)

type etcdOptions struct {
	serviceName string
	dialTimeout time.Duration
	leaseTTL    time.Duration
	logger      *logrus.Logger
}

// EtcdOption 是一个用于配置 EtcdDiscoverer 的函数。
type EtcdOption func(*etcdOptions)

// WithServiceName 设置在 etcd 中注册的服务名称。
func WithServiceName(name string) EtcdOption {
	return func(o *etcdOptions) {
		o.serviceName = name
	}
}

// WithDialTimeout 设置连接 etcd 的超时时间。
func WithDialTimeout(d time.Duration) EtcdOption {
	return func(o *etcdOptions) {
		o.dialTimeout = d
	}
}

// WithLeaseTTL 设置注册租约的有效期，不足一秒按一秒计。
func WithLeaseTTL(ttl time.Duration) EtcdOption {
	return func(o *etcdOptions) {
		o.leaseTTL = ttl
	}
}

// WithLogger 为 EtcdDiscoverer 设置日志记录器。
func WithLogger(logger *logrus.Logger) EtcdOption {
	return func(o *etcdOptions) {
		o.logger = logger
	}
}

// NewEtcdDiscoverer 创建一个基于 etcd 的服务发现实例。
func NewEtcdDiscoverer(endpoints []string, opts ...EtcdOption) (*EtcdDiscoverer, error) {
	options := &etcdOptions{
		serviceName: "hesper",
		dialTimeout: 5 * time.Second,
		leaseTTL:    DefaultLeaseTTL,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(options)
	}

	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: options.dialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	return &EtcdDiscoverer{
		cli:        cli,
		serviceKey: ServicePrefix(options.serviceName),
		leaseTTL:   options.leaseTTL,
		logger:     options.logger.WithField("component", "etcd_discoverer"),
	}, nil
}

// ServicePrefix 返回服务在 etcd 中的 key 前缀
func ServicePrefix(serviceName string) string {
	return fmt.Sprintf("/services/%s/", serviceName)
}

// Register 把节点写入 etcd 并挂在租约上，租约在 ctx 结束前持续续期。
// 节点下线或续期失败后租约到期，记录自动删除。
func (d *EtcdDiscoverer) Register(ctx context.Context, rec Record) error {
	value, err := rec.Encode()
	if err != nil {
		return err
	}

	ttl := int64(d.leaseTTL / time.Second)
	if ttl < 1 {
		ttl = 1
	}
	lease, err := d.cli.Grant(ctx, ttl)
	if err != nil {
		return fmt.Errorf("failed to grant etcd lease: %w", err)
	}

	key := d.serviceKey + rec.Label
	if _, err := d.cli.Put(ctx, key, value, clientv3.WithLease(lease.ID)); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	keepAlive, err := d.cli.KeepAlive(ctx, lease.ID)
	if err != nil {
		return fmt.Errorf("failed to keep lease alive: %w", err)
	}

	logger := d.logger.WithFields(logrus.Fields{"key": key, "lease": int64(lease.ID)})
	logger.Info("Peer registered in etcd")

	go func() {
		for range keepAlive {
		}
		logger.Info("Lease keepalive stopped")
		revokeCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if _, err := d.cli.Revoke(revokeCtx, lease.ID); err != nil {
			logger.WithError(err).Debug("Lease revoke failed, it will expire on its own")
		}
	}()
	return nil
}

// Watch 实现 Discoverer
func (d *EtcdDiscoverer) Watch(ctx context.Context) (<-chan Update, error) {
	// 1. 先获取所有现有节点
	resp, err := d.cli.Get(ctx, d.serviceKey, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch initial services from etcd: %w", err)
	}

	updateCh := make(chan Update, len(resp.Kvs)+16)
	for _, kv := range resp.Kvs {
		rec, err := parseRecord(string(kv.Key), d.serviceKey, kv.Value)
		if err != nil {
			d.logger.WithError(err).Warn("Skipping malformed peer record")
			continue
		}
		updateCh <- Update{Op: Add, Record: rec}
	}

	// 2. 启动一个 goroutine 来监听后续变化
	go d.watchLoop(ctx, updateCh, resp.Header.Revision+1)

	return updateCh, nil
}

func (d *EtcdDiscoverer) watchLoop(ctx context.Context, updateCh chan<- Update, startRev int64) {
	defer close(updateCh)
	watchChan := d.cli.Watch(ctx, d.serviceKey, clientv3.WithPrefix(), clientv3.WithRev(startRev))

	d.logger.Info("Starting to watch for peer changes...")

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Watch context cancelled, stopping watch loop.")
			return
		case resp, ok := <-watchChan:
			if !ok {
				d.logger.Warn("Etcd watch channel closed unexpectedly.")
				return
			}
			if err := resp.Err(); err != nil {
				d.logger.WithError(err).Error("Etcd watch returned an error.")
				continue
			}

			for _, event := range resp.Events {
				key := string(event.Kv.Key)
				var update Update
				switch event.Type {
				case clientv3.EventTypePut:
					rec, err := parseRecord(key, d.serviceKey, event.Kv.Value)
					if err != nil {
						d.logger.WithError(err).Warn("Skipping malformed peer record")
						continue
					}
					update = Update{Op: Add, Record: rec}
				case clientv3.EventTypeDelete:
					update = Update{Op: Del, Record: Record{Label: strings.TrimPrefix(key, d.serviceKey)}}
				default:
					continue
				}

				select {
				case updateCh <- update:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Close 关闭 etcd 客户端
func (d *EtcdDiscoverer) Close() error {
	return d.cli.Close()
}
