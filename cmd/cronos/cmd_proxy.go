package main

import (
	"context"
	"fmt"
	"time"

	"cronos/internal/proxy"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	proxyCheckTarget      string
	proxyCheckParallelism int
)

// proxyCmd groups proxy pool commands
var proxyCmd = &cobra.Command{
	Use:   "proxy",
	Short: "Inspect the proxy pool",
}

var proxyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured proxies",
	RunE: func(cmd *cobra.Command, args []string) error {
		rotator, err := loadPool(cfg)
		if err != nil {
			return err
		}
		entries := rotator.List()
		if len(entries) == 0 {
			fmt.Println(warningStyle.Render("proxy pool is empty"))
			return nil
		}
		fmt.Println(titleStyle.Render(fmt.Sprintf("%d proxies (%s)", len(entries), cfg.Proxy.Strategy)))
		for i, p := range entries {
			fmt.Printf("  %2d. %s\n", i+1, p)
		}
		return nil
	},
}

var proxyPickCmd = &cobra.Command{
	Use:   "pick",
	Short: "Print the proxy a new session would get",
	RunE: func(cmd *cobra.Command, args []string) error {
		rotator, err := loadPool(cfg)
		if err != nil {
			return err
		}
		p, err := rotator.Pick(proxy.Strategy(cfg.Proxy.Strategy))
		if err != nil {
			return err
		}
		fmt.Println(p)
		return nil
	},
}

var proxyCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Probe every proxy against the target client",
	RunE:  runProxyCheck,
}

func init() {
	proxyCheckCmd.Flags().StringVar(&proxyCheckTarget, "target", "", "Probe target (default: sessions.target_url)")
	proxyCheckCmd.Flags().IntVar(&proxyCheckParallelism, "parallel", 4, "Concurrent probes")

	proxyCmd.AddCommand(proxyListCmd)
	proxyCmd.AddCommand(proxyPickCmd)
	proxyCmd.AddCommand(proxyCheckCmd)
}

// probeResult is the outcome of one reachability probe.
type probeResult struct {
	Proxy   string
	Latency time.Duration
	Err     error
}

// checkPool probes every entry with bounded parallelism. Results keep the
// pool order.
func checkPool(ctx context.Context, entries []string, target string, timeout time.Duration, parallelism int) []probeResult {
	results := make([]probeResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	if parallelism > 0 {
		g.SetLimit(parallelism)
	}
	for i, p := range entries {
		i, p := i, p
		g.Go(func() error {
			latency, err := proxy.Check(gctx, p, target, timeout)
			results[i] = probeResult{Proxy: p, Latency: latency, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func runProxyCheck(cmd *cobra.Command, args []string) error {
	rotator, err := loadPool(cfg)
	if err != nil {
		return err
	}
	entries := rotator.List()
	if len(entries) == 0 {
		return proxy.ErrEmptyPool
	}

	target := proxyCheckTarget
	if target == "" {
		target = cfg.Sessions.TargetURL
	}

	ctx, cancel := commandContext()
	defer cancel()

	failed := 0
	for _, r := range checkPool(ctx, entries, target, cfg.GetProxyCheckTimeout(), proxyCheckParallelism) {
		if r.Err != nil {
			failed++
			fmt.Printf("%s %s %s\n", errorStyle.Render("FAIL"), r.Proxy, mutedStyle.Render(r.Err.Error()))
			continue
		}
		fmt.Printf("%s %s %s\n", successStyle.Render(" OK "), r.Proxy, mutedStyle.Render(r.Latency.Round(time.Millisecond).String()))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d proxies unreachable", failed, len(entries))
	}
	return nil
}
