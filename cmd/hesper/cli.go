package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/justthefish/hesper"
)

// errQuit 表示用户主动退出 CLI
var errQuit = errors.New("quit")

const cliHelp = `--- hesper router CLI ---
  set <key> <value> [category]
  get <key> [category]
  load <key> [category]     未命中时用 "loaded:<key>" 回填
  del <key> [category]
  select <key> [category]
  peers
  stats
  help
  quit`

type cli struct {
	cache *hesper.AggregateCache
	peers func() map[string]string // 标签 -> 地址
	out   io.Writer
}

// runCLI 逐行读取命令直到输入结束、用户退出或 ctx 取消
func runCLI(ctx context.Context, in io.Reader, out io.Writer, cache *hesper.AggregateCache, peers func() map[string]string) error {
	c := &cli{cache: cache, peers: peers, out: out}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	fmt.Fprintln(out, cliHelp)
	for {
		fmt.Fprint(out, "> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := c.exec(ctx, strings.Fields(line)); err != nil {
				return err
			}
		}
	}
}

func (c *cli) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	cmd, args := strings.ToLower(args[0]), args[1:]
	switch cmd {
	case "set":
		if len(args) < 2 {
			fmt.Fprintln(c.out, "用法: set <key> <value> [category]")
			return nil
		}
		if err := c.cache.Set(ctx, args[0], []byte(args[1]), category(args, 2)); err != nil {
			fmt.Fprintf(c.out, "Set 错误: %v\n", err)
		} else {
			fmt.Fprintln(c.out, "Set 成功")
		}
	case "get", "load":
		if len(args) < 1 {
			fmt.Fprintf(c.out, "用法: %s <key> [category]\n", cmd)
			return nil
		}
		var (
			view hesper.ByteView
			err  error
		)
		if cmd == "get" {
			view, err = c.cache.Get(ctx, args[0], category(args, 1))
		} else {
			view, err = c.cache.GetOrLoad(ctx, args[0], category(args, 1), hesper.GetterFunc(
				func(_ context.Context, key string) ([]byte, error) {
					return []byte("loaded:" + key), nil
				}))
		}
		switch {
		case errors.Is(err, hesper.ErrNotFound):
			fmt.Fprintf(c.out, "键 '%s' 不存在\n", args[0])
		case err != nil:
			fmt.Fprintf(c.out, "Get 错误: %v\n", err)
		default:
			fmt.Fprintf(c.out, "键 '%s' 的值为: %s\n", args[0], view.String())
		}
	case "del":
		if len(args) < 1 {
			fmt.Fprintln(c.out, "用法: del <key> [category]")
			return nil
		}
		if err := c.cache.Delete(ctx, args[0], category(args, 1)); err != nil {
			fmt.Fprintf(c.out, "Delete 错误: %v\n", err)
		} else {
			fmt.Fprintln(c.out, "Delete 成功")
		}
	case "select":
		if len(args) < 1 {
			fmt.Fprintln(c.out, "用法: select <key> [category]")
			return nil
		}
		label, err := c.cache.Select(args[0], category(args, 1))
		if err != nil {
			fmt.Fprintf(c.out, "Select 错误: %v\n", err)
		} else {
			fmt.Fprintf(c.out, "键 '%s' -> 节点 %s\n", args[0], label)
		}
	case "peers":
		c.printPeers()
	case "stats":
		c.printStats()
	case "help":
		fmt.Fprintln(c.out, cliHelp)
	case "quit", "exit":
		return errQuit
	default:
		fmt.Fprintln(c.out, "无效命令, 输入 help 查看用法")
	}
	return nil
}

func category(args []string, i int) string {
	if len(args) > i {
		return args[i]
	}
	return ""
}

func (c *cli) printPeers() {
	fmt.Fprintln(c.out, "--- 当前 Peer 列表 ---")
	labels := c.cache.Peers()
	if len(labels) == 0 {
		fmt.Fprintln(c.out, "无可用 peers.")
	}
	var addrs map[string]string
	if c.peers != nil {
		addrs = c.peers()
	}
	for _, l := range labels {
		if addr, ok := addrs[l]; ok {
			fmt.Fprintf(c.out, "- %s (%s)\n", l, addr)
		} else {
			fmt.Fprintf(c.out, "- %s\n", l)
		}
	}
	fmt.Fprintln(c.out, "----------------------")
}

func (c *cli) printStats() {
	fmt.Fprintln(c.out, "--- 命中统计信息 ---")
	stats := c.cache.Stats()
	labels := make([]string, 0, len(stats))
	for l := range stats {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		categories := make([]string, 0, len(stats[l]))
		for cat := range stats[l] {
			categories = append(categories, cat)
		}
		sort.Strings(categories)
		for _, cat := range categories {
			fmt.Fprintf(c.out, "%-10s %-20s : %d\n", l, cat, stats[l][cat])
		}
	}
	loads := c.cache.LoadStats()
	keys := make([]string, 0, len(loads))
	for k := range loads {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(c.out, "%-31s : %v\n", k, loads[k])
	}
	fmt.Fprintln(c.out, "--------------------")
}
