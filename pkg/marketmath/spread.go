package marketmath

// QuotePrices 报价：买价 = bid + slippage/2，卖价 = ask - slippage/2。
//
// 两侧各向内让出一半滑点容忍度，保证挂单落在价差之内。
// 价差小于 slippage 时卖价会低于买价，由调用方的价差门槛过滤。
func QuotePrices(bid, ask, slippage float64) (buy, sell float64) {
	half := slippage / 2
	return bid + half, ask - half
}

// GrossPnL 一买一卖的毛利：(sell-buy)*qty
func GrossPnL(buy, sell, qty float64) float64 {
	return (sell - buy) * qty
}
