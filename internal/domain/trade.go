package domain

import "time"

// TradeRecord 已完成的单腿交易（追加写入，不修改）。
// 买腿 PnL 为 0，卖腿记录本轮实现盈亏与返佣。
type TradeRecord struct {
	ID        string    `json:"id"`
	Pair      Pair      `json:"pair"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	Rebate    float64   `json:"rebate"`
	PnL       float64   `json:"pnl"`
	Timestamp time.Time `json:"timestamp"`
}
