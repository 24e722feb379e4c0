package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ricardogal/defi-scalping-rebate/internal/risk"
)

type statusResponse struct {
	Simulation    bool           `json:"simulation"`
	Mode          string         `json:"mode"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Trades        int            `json:"trades"`
	TotalPnL      float64        `json:"total_pnl"`
	TotalRebate   float64        `json:"total_rebate"`
	OpenOrders    int            `json:"open_orders"`
	Reserved      float64        `json:"reserved"`
	Risk          *risk.Snapshot `json:"risk,omitempty"`
}

func writeError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

// queryLimit 读取 ?limit=，非法或越界时用默认值
func queryLimit(c *gin.Context, def, max int) int {
	if v := strings.TrimSpace(c.Query("limit")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= max {
			return n
		}
	}
	return def
}

func (s *Server) handleStatus(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	totals, err := s.cfg.Journal.TradeTotals(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db totals: %v", err))
		return
	}
	resp := statusResponse{
		Simulation:    s.cfg.Simulation,
		Mode:          s.cfg.Mode,
		UptimeSeconds: int64(s.now().Sub(s.started).Seconds()),
		Trades:        totals.Trades,
		TotalPnL:      totals.PnL,
		TotalRebate:   totals.Rebate,
	}
	for _, p := range s.cfg.Ledger.Snapshot() {
		resp.Reserved += p.Reserved
	}
	if s.cfg.Breaker != nil {
		snap := s.cfg.Breaker.Snapshot()
		resp.Risk = &snap
	}
	if s.cfg.OpenOrders != nil {
		orders, err := s.cfg.OpenOrders.List(ctx)
		if err != nil {
			writeError(c, http.StatusInternalServerError, fmt.Sprintf("open orders: %v", err))
			return
		}
		resp.OpenOrders = len(orders)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCapital(c *gin.Context) {
	type row struct {
		Pair      string  `json:"pair"`
		Limit     float64 `json:"limit"`
		Reserved  float64 `json:"reserved"`
		Available float64 `json:"available"`
	}
	snap := s.cfg.Ledger.Snapshot()
	out := make([]row, 0, len(snap))
	for _, p := range snap {
		out = append(out, row{Pair: p.Pair.String(), Limit: p.Limit, Reserved: p.Reserved, Available: p.Available()})
	}
	c.JSON(http.StatusOK, gin.H{"capital": out})
}

func (s *Server) handleTrades(c *gin.Context) {
	limit := queryLimit(c, 10, 1000)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	items, err := s.cfg.Journal.ListTrades(ctx, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db list trades: %v", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": items})
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := queryLimit(c, 50, 1000)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	items, err := s.cfg.Journal.ListEvents(ctx, limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("db list events: %v", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": items})
}

func (s *Server) handleOpenOrders(c *gin.Context) {
	if s.cfg.OpenOrders == nil {
		writeError(c, http.StatusNotFound, "open order store not configured")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	items, err := s.cfg.OpenOrders.List(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("open orders: %v", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"open_orders": items})
}

func (s *Server) handleReconcile(c *gin.Context) {
	if s.cfg.Sweeper == nil {
		writeError(c, http.StatusServiceUnavailable, "reconciler not running")
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	report, err := s.cfg.Sweeper.Sweep(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, fmt.Sprintf("sweep: %v", err))
		return
	}
	log.Infof("🧹 [ControlPlane] 手动清理完成: %s", report)
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleHalt(c *gin.Context) {
	if s.cfg.Breaker == nil {
		writeError(c, http.StatusServiceUnavailable, "breaker not configured")
		return
	}
	s.cfg.Breaker.Halt()
	log.Warnf("🛑 [ControlPlane] 手动熔断")
	c.JSON(http.StatusOK, s.cfg.Breaker.Snapshot())
}

func (s *Server) handleResume(c *gin.Context) {
	if s.cfg.Breaker == nil {
		writeError(c, http.StatusServiceUnavailable, "breaker not configured")
		return
	}
	s.cfg.Breaker.Resume()
	log.Infof("✅ [ControlPlane] 手动恢复交易")
	c.JSON(http.StatusOK, s.cfg.Breaker.Snapshot())
}
