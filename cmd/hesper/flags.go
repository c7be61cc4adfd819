package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/justthefish/hesper"
	"github.com/justthefish/hesper/internal/peer/discovery"
	"github.com/justthefish/hesper/internal/store"
	"github.com/justthefish/hesper/internal/utils"
)

// Configuration flags
var (
	flagMode  = flag.String("mode", "router", "运行模式: peer 或 router")
	flagAddr  = flag.String("addr", ":9001", "peer 模式下的监听地址 (例如 :9001)")
	flagLabel = flag.String("label", "A", "peer 模式下的节点标签")
	flagMark  = flag.String("mark", "normal", "peer 模式下的 mark: 层级名称、十进制或 0x 十六进制")
	// 路由相关flags
	flagStrategy      = flag.String("strategy", "tiered", "选择策略: tiered 或 cyclic")
	flagRingSize      = flag.Int("ring.size", hesper.DefaultRingSize, "cyclic 策略的环大小")
	flagRingHash      = flag.String("ring.hash", "sha1", "cyclic 策略的 key 哈希: sha1 或 murmur3")
	flagCategoryTiers = flag.String("category.tiers", "", "类别层级映射, 例如 Widget=high,Blob=0x4000")
	flagPeers         = flag.String("peers", "", "静态节点列表 A=127.0.0.1:9001@high,..., 设置后不使用 etcd")
	flagStatsInterval = flag.Duration("stats.interval", 0, "定期打印命中统计的间隔, 0 表示关闭")
	// ETCD相关flags
	flagEtcdEndpoints = flag.String("etcd.endpoints", "localhost:2379", "etcd服务器端点列表, 逗号分隔")
	flagDialTimeout   = flag.Duration("etcd.dial-timeout", 5*time.Second, "etcd连接超时")
	flagServiceName   = flag.String("service.name", "hesper", "注册到etcd的服务名称")
	// 存储相关flags
	flagStoreMaxBytes = flag.Int64("store.max-bytes", 8<<20, "peer 本地存储最大字节数")
	flagStoreTTL      = flag.Duration("store.ttl", 0, "peer 本地存储的过期时间, 0 表示永不过期")
	flagLogLevel      = flag.String("log.level", "info", "日志级别: debug, info, warn, error")
)

// tierNames 是 -mark / -peers / -category.tiers 中可用的层级名称
var tierNames = map[string]int{
	"ultrahigh": int(hesper.TierUltraHigh),
	"high":      int(hesper.TierHigh),
	"normal":    int(hesper.TierNormal),
	"low":       int(hesper.TierLow),
	"verylow":   int(hesper.TierVeryLow),
}

// parseCategoryTiers 解析 "Widget=high,Blob=0x4000"
func parseCategoryTiers(s string) (map[string]hesper.Tier, error) {
	out := make(map[string]hesper.Tier)
	for _, item := range utils.SplitList(s) {
		category, tier, ok := strings.Cut(item, "=")
		category = strings.TrimSpace(category)
		if !ok || category == "" {
			return nil, fmt.Errorf("bad category tier %q: expected category=tier", item)
		}
		v, err := discovery.ParseMark(tier, tierNames)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", category, err)
		}
		out[category] = hesper.Tier(v)
	}
	return out, nil
}

func pointFunc(name string) (hesper.PointFunc, error) {
	switch strings.ToLower(name) {
	case "", "sha1":
		return hesper.HashSHA1, nil
	case "murmur3":
		return hesper.HashMurmur3, nil
	default:
		return nil, fmt.Errorf("unknown ring hash %q", name)
	}
}

func storeOptions() store.Options {
	opts := store.DefaultOptions()
	opts.MaxBytes = *flagStoreMaxBytes
	return opts
}
