package marketmath

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

const pair = domain.Pair("BTC/USDT")

var btcConstraints = domain.MarketConstraints{
	StepSize:    0.00001,
	MinQty:      0.00001,
	MinNotional: 5,
	Precision:   5,
}

func TestAdjustSellQuantity(t *testing.T) {
	tests := []struct {
		name    string
		desired float64
		free    float64
		c       domain.MarketConstraints
		price   float64
		want    float64
		field   string
	}{
		{name: "floor to step", desired: 0.0012349, free: 1, c: btcConstraints, price: 60000, want: 0.00123},
		{name: "clamp to free balance", desired: 0.002, free: 0.0015, c: btcConstraints, price: 60000, want: 0.0015},
		{name: "free not on step", desired: 0.01, free: 0.0009999, c: btcConstraints, price: 60000, want: 0.00099},
		{name: "integer step", desired: 12.7, free: 100, c: domain.MarketConstraints{StepSize: 1, MinQty: 1, MinNotional: 1}, price: 0.5, want: 12},
		{name: "below min qty", desired: 0.000004, free: 1, c: btcConstraints, price: 60000, field: "min_qty"},
		{name: "below min notional", desired: 0.00005, free: 1, c: btcConstraints, price: 60000, field: "min_notional"},
		{name: "zero balance", desired: 0.001, free: 0, c: btcConstraints, price: 60000, field: "min_qty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AdjustSellQuantity(pair, tt.desired, tt.free, tt.c, tt.price)
			if tt.field != "" {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrConstraintViolation))
				var ce *domain.ConstraintError
				require.True(t, errors.As(err, &ce))
				assert.Equal(t, tt.field, ce.Field)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-12)
			assert.LessOrEqual(t, got, tt.free)
			assert.LessOrEqual(t, got, tt.desired)
		})
	}
}

func TestPrecisionFromStep(t *testing.T) {
	assert.Equal(t, 3, PrecisionFromStep("0.00100000"))
	assert.Equal(t, 0, PrecisionFromStep("1.00000000"))
	assert.Equal(t, 5, PrecisionFromStep("0.00001"))
	assert.Equal(t, 8, PrecisionFromStep("garbage"))
}

func TestQuotePrices(t *testing.T) {
	buy, sell := QuotePrices(100, 102, 0.02)
	assert.InDelta(t, 100.01, buy, 1e-9)
	assert.InDelta(t, 101.99, sell, 1e-9)
	assert.InDelta(t, 1.98, GrossPnL(buy, sell, 1), 1e-9)
}

func TestFormatQuantityTruncates(t *testing.T) {
	assert.Equal(t, "0.00123", FormatQuantity(0.0012399, 5))
	assert.Equal(t, "60000.12", FormatPrice(60000.1199, 2))
}

func TestFloorToStep(t *testing.T) {
	assert.InDelta(t, 0.123, FloorToStep(0.12399, 0.001, 3), 1e-12)
	assert.InDelta(t, 12.0, FloorToStep(12.9, 1, 0), 1e-12)
	assert.InDelta(t, 0.5, FloorToStep(0.5, 0, 8), 1e-12)
}

func TestSnapPrice(t *testing.T) {
	assert.InDelta(t, 100.01, SnapPrice(100.0157, 0.01, domain.SideBuy), 1e-12)
	assert.InDelta(t, 100.02, SnapPrice(100.0112, 0.01, domain.SideSell), 1e-12)
	assert.InDelta(t, 100.01, SnapPrice(100.01, 0.01, domain.SideSell), 1e-12, "已对齐的价格不变")
	assert.Equal(t, 100.0157, SnapPrice(100.0157, 0, domain.SideBuy))
}
