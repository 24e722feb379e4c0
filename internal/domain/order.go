package domain

import "time"

// Side 订单方向
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// OrderStatus 网关返回的订单状态
type OrderStatus string

const (
	OrderStatusOpen     OrderStatus = "open"     // 挂单中（含部分成交）
	OrderStatusClosed   OrderStatus = "closed"   // 已完全成交
	OrderStatusCanceled OrderStatus = "canceled" // 已取消/过期/被拒
)

// IsFinal 是否为终态（closed/canceled）
func (s OrderStatus) IsFinal() bool {
	return s == OrderStatusClosed || s == OrderStatusCanceled
}

// OpenOrder 本地持久化的挂单记录。
// 只要交易所上可能还存在该订单，记录就不能删除。
type OpenOrder struct {
	OrderID   string    `json:"order_id"`
	Pair      Pair      `json:"pair"`
	Side      Side      `json:"side"`
	Price     float64   `json:"price"`
	Quantity  float64   `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

// Age 订单存活时长
func (o OpenOrder) Age(now time.Time) time.Duration {
	return now.Sub(o.CreatedAt)
}

// OrderState 网关边界上的订单状态快照
type OrderState struct {
	OrderID   string
	Status    OrderStatus
	FilledQty float64
	AvgPrice  float64
}

// Fill 单笔成交明细
type Fill struct {
	Price           float64
	Quantity        float64
	Commission      float64
	CommissionAsset string
}

// SummarizeFills 汇总成交：总数量、加权均价、手续费（返佣）合计
func SummarizeFills(fills []Fill) (qty, avgPrice, commission float64) {
	var notional float64
	for _, f := range fills {
		qty += f.Quantity
		notional += f.Price * f.Quantity
		commission += f.Commission
	}
	if qty > 0 {
		avgPrice = notional / qty
	}
	return qty, avgPrice, commission
}

// BuyExecution 按金额市价买入的结果
type BuyExecution struct {
	OrderID   string
	FilledQty float64
	AvgPrice  float64
}

// SellExecution 按数量市价卖出的结果，PnL 由网关计算时非空
type SellExecution struct {
	OrderID   string
	FilledQty float64
	AvgPrice  float64
	PnL       *float64
}
