// Package server 控制面：只读查询、手动触发清理、手动熔断/恢复。
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ricardogal/defi-scalping-rebate/internal/capital"
	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/ports"
	"github.com/ricardogal/defi-scalping-rebate/internal/reconcile"
	"github.com/ricardogal/defi-scalping-rebate/internal/risk"
	"github.com/ricardogal/defi-scalping-rebate/internal/store"
)

var log = logrus.WithField("module", "controlplane")

// Journal 交易与事件查询
type Journal interface {
	ListTrades(ctx context.Context, limit int) ([]domain.TradeRecord, error)
	ListEvents(ctx context.Context, limit int) ([]domain.Event, error)
	TradeTotals(ctx context.Context) (store.Totals, error)
}

// Sweeper 手动触发一次挂单清理
type Sweeper interface {
	Sweep(ctx context.Context) (reconcile.Report, error)
}

type Config struct {
	Journal    Journal
	Ledger     *capital.Ledger
	OpenOrders ports.OpenOrderStore
	Sweeper    Sweeper
	Breaker    *risk.Breaker // 可选
	Simulation bool
	Mode       string
}

type Server struct {
	cfg     Config
	started time.Time
	now     func() time.Time
}

func New(cfg Config) (*Server, error) {
	if cfg.Journal == nil {
		return nil, errors.New("journal is required")
	}
	if cfg.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	return &Server{cfg: cfg, started: time.Now(), now: time.Now}, nil
}

func (s *Server) Router() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	api := r.Group("/api")
	api.GET("/status", s.handleStatus)
	api.GET("/capital", s.handleCapital)
	api.GET("/trades", s.handleTrades)
	api.GET("/events", s.handleEvents)
	api.GET("/open_orders", s.handleOpenOrders)
	api.POST("/reconcile", s.handleReconcile)
	api.POST("/halt", s.handleHalt)
	api.POST("/resume", s.handleResume)

	return r
}

// Serve 阻塞直到 ctx 结束后优雅关闭
func (s *Server) Serve(ctx context.Context, listenAddr string) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return err
	}
	hs := &http.Server{
		Addr:              listenAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	log.Infof("🛰️ [ControlPlane] 监听 %s", ln.Addr())
	if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
