package execution

import (
	"time"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

// Mode 实盘执行方式
type Mode string

const (
	// ModeLimit 两条限价单生命周期（maker，返佣按成交手续费记账）
	ModeLimit Mode = "limit"
	// ModeMarket 按金额市价买入，按数量市价卖出
	ModeMarket Mode = "market"
)

// Config 交易循环参数
type Config struct {
	Simulation        bool
	Mode              Mode
	SlippageTolerance float64
	RebateRate        float64 // 模拟/市价模式下每单位数量的估算返佣
	OrderTimeout      time.Duration
	QuantityOverrides map[domain.Pair]float64
}

// QuantityFor 交易对的下单数量：有覆盖用覆盖，否则用调用方给的默认值
func (c Config) QuantityFor(pair domain.Pair, fallback float64) float64 {
	if q, ok := c.QuantityOverrides[pair]; ok && q > 0 {
		return q
	}
	return fallback
}

func (c Config) withDefaults() Config {
	if c.Mode == "" {
		c.Mode = ModeLimit
	}
	if c.OrderTimeout <= 0 {
		c.OrderTimeout = 15 * time.Second
	}
	return c
}
