// Command hesper runs either a peer node or the aggregate router.
//
//	hesper -mode=peer -addr=:9001 -label=A -mark=high
//	hesper -mode=router -strategy=tiered -category.tiers=Widget=high
//	hesper -mode=router -strategy=cyclic -peers=A=127.0.0.1:9001@500,B=127.0.0.1:9002@1000
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/justthefish/hesper"
	"github.com/justthefish/hesper/internal/peer"
	"github.com/justthefish/hesper/internal/peer/discovery"
	"github.com/justthefish/hesper/internal/server"
	"github.com/justthefish/hesper/internal/store"
	"github.com/justthefish/hesper/internal/utils"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*flagLogLevel)
	if err != nil {
		logger.Fatalf("invalid -log.level: %v", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *flagMode {
	case "peer":
		err = runPeer(ctx, logger)
	case "router":
		err = runRouter(ctx, logger)
	default:
		err = fmt.Errorf("unknown -mode %q", *flagMode)
	}
	if err != nil {
		logger.WithError(err).Error("exited with error")
		os.Exit(1)
	}
	logger.Info("已退出。")
}

func etcdDiscoverer(logger *logrus.Logger) (*discovery.EtcdDiscoverer, error) {
	endpoints := utils.SplitList(*flagEtcdEndpoints)
	if len(endpoints) == 0 {
		return nil, errors.New("no etcd endpoints given")
	}
	return discovery.NewEtcdDiscoverer(endpoints,
		discovery.WithServiceName(*flagServiceName),
		discovery.WithDialTimeout(*flagDialTimeout),
		discovery.WithLogger(logger),
	)
}

// runPeer 启动一个 peer 节点，把本地 LRU 通过 gRPC 暴露出去并注册到 etcd
func runPeer(ctx context.Context, logger *logrus.Logger) error {
	addr := utils.CompleteAddress(*flagAddr)
	mark, err := discovery.ParseMark(*flagMark, tierNames)
	if err != nil {
		return fmt.Errorf("invalid -mark: %w", err)
	}

	local := store.NewLocalPeer(storeOptions(), *flagStoreTTL)
	defer local.Close()

	opts := []server.ServerOption{
		server.WithLogger(logger),
		server.WithMaxMsgSize(10 << 20),
	}
	if len(utils.SplitList(*flagEtcdEndpoints)) > 0 {
		reg, err := etcdDiscoverer(logger)
		if err != nil {
			return err
		}
		defer reg.Close()
		opts = append(opts, server.WithRegistrar(reg))
	}

	srv, err := server.NewServer(addr, *flagLabel, mark, local, opts...)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		srv.Stop()
		return nil
	})
	return g.Wait()
}

// runRouter 组装聚合缓存，节点来自 -peers 或 etcd，然后进入交互式 CLI
func runRouter(ctx context.Context, logger *logrus.Logger) error {
	cache, err := newCache(logger)
	if err != nil {
		return err
	}

	var disc discovery.Discoverer
	if *flagPeers != "" {
		records, err := discovery.ParseRecords(*flagPeers, tierNames)
		if err != nil {
			return fmt.Errorf("invalid -peers: %w", err)
		}
		for i := range records {
			records[i].Addr = utils.CompleteAddress(records[i].Addr)
		}
		disc = discovery.NewStatic(records...)
	} else {
		if disc, err = etcdDiscoverer(logger); err != nil {
			return err
		}
	}

	pool, err := peer.NewPool(disc, cache.Register, peer.WithPoolLogger(logger))
	if err != nil {
		disc.Close()
		return err
	}
	defer pool.Close()

	if err := cache.Validate(); err != nil {
		logger.WithError(err).Warn("some keys cannot be routed yet")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runCLI(gctx, os.Stdin, os.Stdout, cache, pool.Peers)
	})
	if *flagStatsInterval > 0 {
		g.Go(func() error {
			logStats(gctx, logger, cache, *flagStatsInterval)
			return nil
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, errQuit) {
		return err
	}
	return nil
}

func newCache(logger *logrus.Logger) (*hesper.AggregateCache, error) {
	switch *flagStrategy {
	case "tiered":
		tiers, err := parseCategoryTiers(*flagCategoryTiers)
		if err != nil {
			return nil, err
		}
		opts := []hesper.Option{hesper.WithLogger(logger)}
		for category, tier := range tiers {
			opts = append(opts, hesper.WithCategoryTier(category, tier))
		}
		return hesper.NewTiered(opts...), nil
	case "cyclic":
		fn, err := pointFunc(*flagRingHash)
		if err != nil {
			return nil, err
		}
		return hesper.NewCyclic(
			hesper.WithLogger(logger),
			hesper.WithRingSize(*flagRingSize),
			hesper.WithPointFunc(fn),
		)
	default:
		return nil, fmt.Errorf("unknown -strategy %q", *flagStrategy)
	}
}

func logStats(ctx context.Context, logger *logrus.Logger, cache *hesper.AggregateCache, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for label, hits := range cache.Stats() {
				logger.WithField("peer", label).WithField("hits", hits).Info("hit stats")
			}
		}
	}
}
