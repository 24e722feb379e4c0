package domain

import "time"

// MarketSample 某一时刻的最优买卖价
type MarketSample struct {
	Pair Pair
	Bid  float64
	Ask  float64
	Time time.Time
}

// Spread 相对价差 (ask-bid)/bid，bid<=0 时返回 0
func (m MarketSample) Spread() float64 {
	if m.Bid <= 0 {
		return 0
	}
	return (m.Ask - m.Bid) / m.Bid
}

// Valid 买卖价都为正且未交叉
func (m MarketSample) Valid() bool {
	return m.Bid > 0 && m.Ask > 0 && m.Ask >= m.Bid
}

// MarketConstraints 交易所对下单数量的约束
type MarketConstraints struct {
	StepSize    float64
	MinQty      float64
	MinNotional float64
	Precision   int // 数量小数位

	TickSize       float64 // 价格步长，0 表示未知
	PricePrecision int     // 价格小数位
}
