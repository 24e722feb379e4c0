package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ricardogal/defi-scalping-rebate/internal/capital"
	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/events"
	"github.com/ricardogal/defi-scalping-rebate/internal/exchange/binance"
	"github.com/ricardogal/defi-scalping-rebate/internal/exchange/paper"
	"github.com/ricardogal/defi-scalping-rebate/internal/execution"
	"github.com/ricardogal/defi-scalping-rebate/internal/marketdata"
	"github.com/ricardogal/defi-scalping-rebate/internal/oms"
	"github.com/ricardogal/defi-scalping-rebate/internal/ports"
	"github.com/ricardogal/defi-scalping-rebate/internal/reconcile"
	"github.com/ricardogal/defi-scalping-rebate/internal/risk"
	"github.com/ricardogal/defi-scalping-rebate/internal/store"
	"github.com/ricardogal/defi-scalping-rebate/pkg/config"
	"github.com/ricardogal/defi-scalping-rebate/pkg/logger"
	"github.com/ricardogal/defi-scalping-rebate/pkg/persistence"
	"github.com/ricardogal/defi-scalping-rebate/pkg/ratelimit"
	"github.com/ricardogal/defi-scalping-rebate/pkg/shutdown"
)

// app 进程内组装好的全部组件
type app struct {
	cfg      *config.Config
	db       *store.Store
	orders   ports.OpenOrderStore
	gateway  ports.Gateway
	quotes   *marketdata.Client
	ledger   *capital.Ledger
	claims   *oms.Claims
	events   *events.Recorder
	tracker  *oms.Tracker
	engine   *execution.Engine
	runner   *execution.Runner
	breaker  *risk.Breaker
	sweeper  *reconcile.Reconciler
	shutdown *shutdown.Manager
}

func parsePairMap(m map[string]float64) (map[domain.Pair]float64, error) {
	out := make(map[domain.Pair]float64, len(m))
	for k, v := range m {
		p, err := domain.ParsePair(k)
		if err != nil {
			return nil, err
		}
		out[p] = v
	}
	return out, nil
}

func parsePairs(list []string) ([]domain.Pair, error) {
	out := make([]domain.Pair, 0, len(list))
	for _, s := range list {
		p, err := domain.ParsePair(s)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// openJournal 打开 SQLite 日志库并把 WARN 以上日志写进 logs 表
func openJournal(cfg *config.Config, sd *shutdown.Manager) (*store.Store, error) {
	db, err := store.Open(cfg.JournalPath())
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	hook := db.NewLogHook()
	logger.AddHook(hook)

	sd.OnShutdown("journal", func(context.Context) error { return db.Close() })
	sd.OnShutdown("log-hook", func(context.Context) error {
		hook.Close()
		return nil
	})
	return db, nil
}

func jsonOrdersPath(cfg *config.Config) string {
	return filepath.Join(cfg.Storage.DataDir, "open_orders.json")
}

// openOrderStore 按配置选择本地挂单集合的存储
func openOrderStore(cfg *config.Config, db *store.Store, sd *shutdown.Manager) (ports.OpenOrderStore, error) {
	switch cfg.Storage.OpenOrdersBackend {
	case "sqlite":
		return db.OpenOrders(), nil
	case "json":
		return persistence.NewJSONFileStore(jsonOrdersPath(cfg)), nil
	default:
		opts := persistence.OpenOptions{Path: filepath.Join(cfg.Storage.DataDir, "open_orders")}
		if raw := os.Getenv("OPEN_ORDERS_KEY"); raw != "" {
			key, err := persistence.ParseKey(raw)
			if err != nil {
				return nil, fmt.Errorf("OPEN_ORDERS_KEY: %w", err)
			}
			opts.EncryptionKey = key
		}
		bs, err := persistence.OpenBadger(opts)
		if errors.Is(err, persistence.ErrLocked) {
			return nil, fmt.Errorf("挂单库正被运行中的 run 占用，请先停止 run，或通过控制面 POST /api/reconcile 清理: %w", err)
		}
		if err != nil {
			return nil, err
		}
		sd.OnShutdown("open-orders", func(context.Context) error { return bs.Close() })
		return bs, nil
	}
}

func newGateway(cfg *config.Config, quotes *marketdata.Client) ports.Gateway {
	if cfg.Exchange.Name == "paper" {
		return paper.New(quotes, paper.Config{
			Balances:       cfg.Paper.Balances,
			CommissionRate: cfg.Paper.CommissionRate,
		})
	}
	return binance.New(binance.Config{
		APIKey:            cfg.Exchange.APIKey,
		APISecret:         cfg.Exchange.APISecret,
		Testnet:           cfg.Exchange.Testnet,
		BaseURL:           cfg.Exchange.BaseURL,
		RequestsPerSecond: cfg.Exchange.RequestsPerSecond,
	})
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, shutdown: shutdown.NewManager()}
	fail := func(err error) (*app, error) {
		_ = a.shutdown.Shutdown(context.Background())
		return nil, err
	}

	limits, err := parsePairMap(cfg.CapitalLimits)
	if err != nil {
		return nil, err
	}
	overrides, err := parsePairMap(cfg.QuantityOverrides)
	if err != nil {
		return nil, err
	}
	pairs, err := parsePairs(cfg.Pairs)
	if err != nil {
		return nil, err
	}

	if a.db, err = openJournal(cfg, a.shutdown); err != nil {
		return fail(err)
	}
	if a.orders, err = openOrderStore(cfg, a.db, a.shutdown); err != nil {
		return fail(err)
	}

	marketHost := ""
	if cfg.Exchange.Name == "binance" {
		marketHost = cfg.Exchange.BaseURL
	}
	a.quotes = marketdata.NewClient(marketHost, ratelimit.NewExchangeManager(cfg.Exchange.RequestsPerSecond))
	a.gateway = newGateway(cfg, a.quotes)

	a.ledger = capital.NewLedger(limits)
	a.claims = oms.NewClaims(16)
	a.events = events.NewRecorder(a.db)
	a.tracker = oms.NewTracker(a.gateway, a.orders, a.claims, oms.Options{
		PollInterval: cfg.PollInterval(),
		Events:       a.events,
	})
	a.engine = execution.NewEngine(execution.Deps{
		Gateway: a.gateway,
		Ledger:  a.ledger,
		Tracker: a.tracker,
		Trades:  a.db,
		Events:  a.events,
	}, execution.Config{
		Simulation:        cfg.Simulation,
		Mode:              execution.Mode(cfg.ExecutionMode),
		SlippageTolerance: cfg.SlippageTolerance,
		RebateRate:        cfg.RebateRate,
		OrderTimeout:      cfg.OrderTimeout(),
		QuantityOverrides: overrides,
	})

	var source execution.PairSource = execution.StaticPairs(pairs)
	if cfg.Ranking.Enabled {
		source = marketdata.NewRanker(a.quotes, a.db, marketdata.RankerConfig{
			TopN:     cfg.Ranking.TopN,
			Quote:    cfg.Ranking.Quote,
			CacheTTL: time.Duration(cfg.Ranking.CacheTTLMinutes) * time.Minute,
			Fallback: pairs,
		})
	}
	scanner := marketdata.NewScanner(a.quotes, cfg.FlexibleScan, 100*time.Millisecond)
	a.runner = execution.NewRunner(a.engine, scanner, source, a.events, execution.RunnerConfig{
		Interval:        cfg.ScanInterval(),
		PairPause:       cfg.PairPause(),
		TargetSpread:    cfg.TargetSpread,
		DefaultQuantity: cfg.DefaultQuantity,
	})
	a.breaker = risk.New(risk.Config{
		MaxConsecutiveErrors: int64(cfg.Risk.MaxConsecutiveErrors),
		DailyLossLimit:       cfg.Risk.DailyLossLimit,
	})
	a.runner.WithBreaker(a.breaker)
	a.sweeper = reconcile.New(a.gateway, a.orders, a.claims, reconcile.Options{
		MaxAge: cfg.ReconcileMaxAge(),
		Events: a.events,
	})
	return a, nil
}

// close 关闭所有资源，最多等 5 秒
func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.shutdown.Shutdown(ctx)
}
