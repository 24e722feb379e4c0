package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ricardogal/defi-scalping-rebate/internal/controlplane/server"
	"github.com/ricardogal/defi-scalping-rebate/internal/metrics"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "启动主循环（扫描 + 交易 + 挂单清理）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logrus.Infof("🚀 Bot 启动: pairs=%d simulation=%v mode=%s exchange=%s target_spread=%.4f%%",
				len(cfg.Pairs), cfg.Simulation, cfg.ExecutionMode, cfg.Exchange.Name, cfg.TargetSpread*100)
			if !cfg.Simulation {
				a.warnExchangeOpenOrders(ctx)
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return a.runner.Run(gctx) })
			if !cfg.Simulation {
				g.Go(func() error { return a.sweeper.Run(gctx, cfg.ReconcileInterval()) })
			}
			if cfg.MetricsAddr != "" {
				g.Go(func() error { return metrics.Serve(gctx, cfg.MetricsAddr) })
			}
			if cfg.ControlAddr != "" {
				cp, err := server.New(server.Config{
					Journal:    a.db,
					Ledger:     a.ledger,
					OpenOrders: a.orders,
					Sweeper:    a.sweeper,
					Breaker:    a.breaker,
					Simulation: cfg.Simulation,
					Mode:       cfg.ExecutionMode,
				})
				if err != nil {
					return err
				}
				g.Go(func() error { return cp.Serve(gctx, cfg.ControlAddr) })
			}

			err = g.Wait()
			logrus.Warnf("⛔ 执行中断")
			return err
		},
	}
}

// warnExchangeOpenOrders 启动时提示交易所上已有的挂单（可能是上次异常退出留下的）
func (a *app) warnExchangeOpenOrders(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	orders, err := a.gateway.FetchOpenOrders(ctx)
	if err != nil {
		logrus.Warnf("⚠️ 启动检查：获取交易所挂单失败: %v", err)
		return
	}
	if len(orders) == 0 {
		return
	}
	logrus.Warnf("⚠️ 启动检查：交易所上有 %d 个挂单，可用 `scalper stop` 撤销", len(orders))
	for _, o := range orders {
		logrus.Warnf("   %s %s %s %.8f@%.8f (%s)", o.OrderID, o.Pair, o.Side, o.Quantity, o.Price, o.CreatedAt.Format(time.RFC3339))
	}
}
