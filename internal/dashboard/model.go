// Package dashboard 终端实时面板：累计盈亏、返佣、最近成交。
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/store"
)

const recentTrades = 10

// Source 面板数据来源
type Source interface {
	TradeTotals(ctx context.Context) (store.Totals, error)
	ListTrades(ctx context.Context, limit int) ([]domain.TradeRecord, error)
}

// OpenOrderCounter 本地挂单数量（可选）
type OpenOrderCounter interface {
	List(ctx context.Context) ([]domain.OpenOrder, error)
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15"))

	upStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("2"))

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// snapshot 一次刷新拿到的数据
type snapshot struct {
	totals     store.Totals
	trades     []domain.TradeRecord
	openOrders int
	at         time.Time
}

type tickMsg time.Time

type snapshotMsg struct {
	snap snapshot
	err  error
}

// Model bubbletea 模型
type Model struct {
	src      Source
	orders   OpenOrderCounter
	interval time.Duration
	started  time.Time

	snap snapshot
	err  error
	now  func() time.Time
}

func New(src Source, orders OpenOrderCounter, interval time.Duration) Model {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return Model{src: src, orders: orders, interval: interval, started: time.Now(), now: time.Now}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), m.tickCmd())
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) refreshCmd() tea.Cmd {
	src, orders, now := m.src, m.orders, m.now
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		snap, err := load(ctx, src, orders)
		snap.at = now()
		return snapshotMsg{snap: snap, err: err}
	}
}

func load(ctx context.Context, src Source, orders OpenOrderCounter) (snapshot, error) {
	var s snapshot
	totals, err := src.TradeTotals(ctx)
	if err != nil {
		return s, err
	}
	trades, err := src.ListTrades(ctx, recentTrades)
	if err != nil {
		return s, err
	}
	s.totals, s.trades = totals, trades
	if orders != nil {
		list, err := orders.List(ctx)
		if err != nil {
			return s, err
		}
		s.openOrders = len(list)
	}
	return s, nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "r":
			return m, m.refreshCmd()
		}
	case tickMsg:
		return m, tea.Batch(m.refreshCmd(), m.tickCmd())
	case snapshotMsg:
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
		}
	}
	return m, nil
}

func (m Model) View() string {
	var b strings.Builder

	uptime := m.now().Sub(m.started).Truncate(time.Second)
	pnl := fmt.Sprintf("%.4f", m.snap.totals.PnL)
	if m.snap.totals.PnL >= 0 {
		pnl = upStyle.Render(pnl)
	} else {
		pnl = downStyle.Render(pnl)
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("⏱️ %s", uptime)))
	b.WriteString(fmt.Sprintf("  💰 P&L: %s  🎁 Rebates: %.4f  📦 Trades: %d  📋 Open: %d\n\n",
		pnl, m.snap.totals.Rebate, m.snap.totals.Trades, m.snap.openOrders))

	b.WriteString(titleStyle.Render("📊 最近成交"))
	b.WriteString("\n")
	b.WriteString(borderStyle.Render(renderTrades(m.snap.trades)))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(downStyle.Render(fmt.Sprintf("刷新失败: %v", m.err)))
		b.WriteString("\n")
	}
	b.WriteString(dimStyle.Render("q 退出 · r 刷新"))
	return b.String()
}

func renderTrades(trades []domain.TradeRecord) string {
	if len(trades) == 0 {
		return dimStyle.Render("暂无成交")
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%-10s %-5s %14s %12s %10s %10s  %s", "PAIR", "SIDE", "PRICE", "QTY", "REBATE", "PNL", "TIME"))
	for _, t := range trades {
		pnl := fmt.Sprintf("%10.4f", t.PnL)
		if t.PnL > 0 {
			pnl = upStyle.Render(pnl)
		} else if t.PnL < 0 {
			pnl = downStyle.Render(pnl)
		}
		b.WriteString(fmt.Sprintf("\n%-10s %-5s %14.6f %12.6f %10.4f %s  %s",
			t.Pair, t.Side, t.Price, t.Quantity, t.Rebate, pnl, t.Timestamp.Local().Format("15:04:05")))
	}
	return b.String()
}
