package marketmath

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

// AdjustSellQuantity 把期望卖出数量修正为交易所可接受的数量：
//
//  1. 不超过可用余额
//  2. 向下取整到 StepSize
//  3. 截断到 Precision 位小数（只舍不入，结果永远不超过可用余额）
//  4. 小于 MinQty 或 qty*price 小于 MinNotional 时返回 *domain.ConstraintError
func AdjustSellQuantity(pair domain.Pair, desired, free float64, c domain.MarketConstraints, price float64) (float64, error) {
	q := decimal.NewFromFloat(desired)
	if f := decimal.NewFromFloat(free); q.GreaterThan(f) {
		q = f
	}
	if q.IsNegative() {
		q = decimal.Zero
	}

	q = floorDecimal(q, c.StepSize, c.Precision)

	qty, _ := q.Float64()
	if qty <= 0 || qty < c.MinQty {
		return 0, &domain.ConstraintError{Pair: pair, Field: "min_qty", Value: qty, Limit: c.MinQty}
	}

	notional, _ := q.Mul(decimal.NewFromFloat(price)).Float64()
	if notional < c.MinNotional {
		return 0, &domain.ConstraintError{Pair: pair, Field: "min_notional", Value: notional, Limit: c.MinNotional}
	}
	return qty, nil
}

// FloorToStep 向下取整到步长并截断到 precision 位小数
func FloorToStep(qty, step float64, precision int) float64 {
	v, _ := floorDecimal(decimal.NewFromFloat(qty), step, precision).Float64()
	return v
}

func floorDecimal(q decimal.Decimal, step float64, precision int) decimal.Decimal {
	if step > 0 {
		s := decimal.NewFromFloat(step)
		q = q.Div(s).Floor().Mul(s)
	}
	if precision >= 0 {
		q = q.Truncate(int32(precision))
	}
	return q
}

// SnapPrice 把限价对齐到 tick：买单向下、卖单向上，挂单不会越过原价穿到对手盘
func SnapPrice(price, tick float64, side domain.Side) float64 {
	if tick <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	steps := p.Div(t)
	if side == domain.SideSell {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}
	v, _ := steps.Mul(t).Float64()
	return v
}

// PrecisionFromStep 由步长推导小数位数："0.00100000" -> 3，"1" -> 0
func PrecisionFromStep(step string) int {
	d, err := decimal.NewFromString(strings.TrimSpace(step))
	if err != nil || !d.IsPositive() {
		return 8
	}
	s := d.String()
	dot := strings.IndexByte(s, '.')
	if dot < 0 {
		return 0
	}
	return len(strings.TrimRight(s[dot+1:], "0"))
}

// FormatQuantity 按精度格式化下单数量（截断）
func FormatQuantity(qty float64, precision int) string {
	return decimal.NewFromFloat(qty).Truncate(int32(precision)).String()
}

// FormatPrice 按精度格式化价格（四舍五入）
func FormatPrice(price float64, precision int) string {
	return decimal.NewFromFloat(price).Round(int32(precision)).String()
}
