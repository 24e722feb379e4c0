package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ricardogal/defi-scalping-rebate/internal/controlplane/client"
	"github.com/ricardogal/defi-scalping-rebate/internal/dashboard"
	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/reconcile"
	"github.com/ricardogal/defi-scalping-rebate/internal/store"
	"github.com/ricardogal/defi-scalping-rebate/pkg/config"
	"github.com/ricardogal/defi-scalping-rebate/pkg/persistence"
	"github.com/ricardogal/defi-scalping-rebate/pkg/shutdown"
)

func newOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "扫描一次并对所有机会各跑一轮",
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

			reports := a.runner.RunOnce(cmd.Context())
			for _, r := range reports {
				line := fmt.Sprintf("%-10s %-9s spread=%.5f%% qty=%.8f pnl=%.6f rebate=%.6f",
					r.Pair, r.Outcome, r.Spread*100, r.Quantity, r.PnL, r.Rebate)
				if r.Err != nil {
					line += " err=" + r.Err.Error()
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "⏳ 没有机会")
			}
			return nil
		},
	}
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "对本地挂单集合做一次超龄清理（run 在运行时经控制面执行）",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(false)
			if err != nil {
				return err
			}
			if report, ok := remoteSweep(cmd.Context(), cfg.ControlAddr); ok {
				fmt.Fprintf(cmd.OutOrStdout(), "🧹 [控制面] %s\n", report)
				return nil
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.sweeper.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🧹 %s\n", report)
			return nil
		},
	}
}

// remoteSweep 先交给运行中的进程清理，ok=false 表示控制面不可用，需要本地打开挂单库
func remoteSweep(ctx context.Context, addr string) (reconcile.Report, bool) {
	if addr == "" {
		return reconcile.Report{}, false
	}
	ctx, cancel := context.WithTimeout(ctx, 35*time.Second)
	defer cancel()
	report, err := client.New(addr).Reconcile(ctx)
	if err != nil {
		logrus.Debugf("控制面不可用，改为本地清理: %v", err)
		return reconcile.Report{}, false
	}
	return report, true
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "撤销交易所上的全部挂单并清理本地挂单集合",
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
			return a.stopAll(cmd.Context())
		},
	}
}

// stopAll 逐个撤单，单个失败不影响其他。
// 撤单失败的订单可能仍挂在交易所上，保留本地记录交给清理器。
func (a *app) stopAll(ctx context.Context) error {
	logrus.Infof("🛑 查询交易所挂单...")
	orders, err := a.gateway.FetchOpenOrders(ctx)
	if err != nil {
		return fmt.Errorf("获取挂单失败: %w", err)
	}

	canceled := 0
	stillResting := make(map[string]struct{})
	for _, o := range orders {
		logrus.Infof("🛑 撤单: %s | %s | %.8f | %.8f", o.Pair, o.Side, o.Price, o.Quantity)
		if err := a.gateway.CancelOrder(ctx, o.OrderID, o.Pair); err != nil && !errors.Is(err, domain.ErrOrderNotFound) {
			logrus.Errorf("❌ 撤单 %s 失败: %v", o.OrderID, err)
			stillResting[o.OrderID] = struct{}{}
			continue
		}
		canceled++
	}
	failed := len(stillResting)

	local, err := a.orders.List(ctx)
	if err != nil {
		return fmt.Errorf("读取本地挂单失败: %w", err)
	}
	removed, kept := 0, 0
	for _, o := range local {
		if _, ok := stillResting[o.OrderID]; ok {
			kept++
			continue
		}
		if err := a.orders.Remove(ctx, o.OrderID); err != nil {
			logrus.Warnf("⚠️ 删除本地记录 %s 失败: %v", o.OrderID, err)
			continue
		}
		removed++
	}

	msg := fmt.Sprintf("撤单 %d 个，失败 %d 个，清理本地记录 %d 条，保留 %d 条", canceled, failed, removed, kept)
	a.events.Emit(ctx, domain.EventBotStopped, "", msg, map[string]any{"canceled": canceled, "failed": failed, "kept": kept})
	logrus.Infof("🧹 %s", msg)
	if failed > 0 {
		return fmt.Errorf("%d 个挂单撤销失败", failed)
	}
	return nil
}

// openReadOnly 只读命令只打开日志库
func openReadOnly() (*config.Config, *store.Store, *shutdown.Manager, error) {
	cfg, err := loadConfig(true)
	if err != nil {
		return nil, nil, nil, err
	}
	sd := shutdown.NewManager()
	db, err := store.Open(cfg.JournalPath())
	if err != nil {
		return nil, nil, nil, err
	}
	sd.OnShutdown("journal", func(context.Context) error { return db.Close() })
	return cfg, db, sd, nil
}

func newReplayCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "按时间顺序回放最近的事件",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, db, sd, err := openReadOnly()
			if err != nil {
				return err
			}
			defer func() { _ = sd.Shutdown(context.Background()) }()

			evs, err := db.ListEvents(cmd.Context(), limit)
			if err != nil {
				return err
			}
			sort.SliceStable(evs, func(i, j int) bool { return evs[i].Timestamp.Before(evs[j].Timestamp) })

			t := table.New().
				Border(lipgloss.RoundedBorder()).
				Headers("ID", "KIND", "PAIR", "MESSAGE", "TIME")
			for _, e := range evs {
				t.Row(e.ID, string(e.Kind), e.Pair.String(), e.Message, e.Timestamp.Local().Format("2006-01-02 15:04:05"))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "📜 事件回放")
			fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "回放的事件条数")
	return cmd
}

func newPanelCmd() *cobra.Command {
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "panel",
		Short: "终端实时面板",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, sd, err := openReadOnly()
			if err != nil {
				return err
			}
			defer func() { _ = sd.Shutdown(context.Background()) }()

			// badger 目录被运行中的 bot 独占，面板只统计 sqlite/json 后端的挂单
			var orders dashboard.OpenOrderCounter
			switch cfg.Storage.OpenOrdersBackend {
			case "sqlite":
				orders = db.OpenOrders()
			case "json":
				orders = persistence.NewJSONFileStore(jsonOrdersPath(cfg))
			}

			_, err = tea.NewProgram(dashboard.New(db, orders, interval), tea.WithAltScreen()).Run()
			return err
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "刷新间隔")
	return cmd
}
