package binance

import (
	"strconv"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/pkg/marketmath"
)

// knownQuotes 用于把 BTCUSDT 这类符号拆回交易对
var knownQuotes = []string{"USDT", "FDUSD", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB", "EUR", "TRY", "BRL"}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func toSideType(side domain.Side) gobinance.SideType {
	if side == domain.SideSell {
		return gobinance.SideTypeSell
	}
	return gobinance.SideTypeBuy
}

func fromSideType(s gobinance.SideType) domain.Side {
	if s == gobinance.SideTypeSell {
		return domain.SideSell
	}
	return domain.SideBuy
}

// mapStatus 交易所状态 -> 生命周期状态
func mapStatus(s gobinance.OrderStatusType) domain.OrderStatus {
	switch s {
	case gobinance.OrderStatusTypeFilled:
		return domain.OrderStatusClosed
	case gobinance.OrderStatusTypeCanceled,
		gobinance.OrderStatusTypeRejected,
		gobinance.OrderStatusTypeExpired:
		return domain.OrderStatusCanceled
	default:
		return domain.OrderStatusOpen
	}
}

// pairFromSymbol 按已知计价资产后缀拆分交易所符号
func pairFromSymbol(symbol string) (domain.Pair, bool) {
	for _, q := range knownQuotes {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return domain.Pair(symbol[:len(symbol)-len(q)] + "/" + q), true
		}
	}
	return "", false
}

func orderState(o *gobinance.Order) domain.OrderState {
	filled := parseFloat(o.ExecutedQuantity)
	st := domain.OrderState{
		OrderID:   strconv.FormatInt(o.OrderID, 10),
		Status:    mapStatus(o.Status),
		FilledQty: filled,
	}
	if filled > 0 {
		st.AvgPrice = parseFloat(o.CummulativeQuoteQuantity) / filled
	}
	return st
}

func openOrder(o *gobinance.Order) (domain.OpenOrder, bool) {
	pair, ok := pairFromSymbol(o.Symbol)
	if !ok {
		return domain.OpenOrder{}, false
	}
	return domain.OpenOrder{
		OrderID:   strconv.FormatInt(o.OrderID, 10),
		Pair:      pair,
		Side:      fromSideType(o.Side),
		Price:     parseFloat(o.Price),
		Quantity:  parseFloat(o.OrigQuantity),
		CreatedAt: time.UnixMilli(o.Time),
	}, true
}

func fillsForOrder(trades []*gobinance.TradeV3, orderID int64) []domain.Fill {
	var out []domain.Fill
	for _, t := range trades {
		if t.OrderID != orderID {
			continue
		}
		out = append(out, domain.Fill{
			Price:           parseFloat(t.Price),
			Quantity:        parseFloat(t.Quantity),
			Commission:      parseFloat(t.Commission),
			CommissionAsset: t.CommissionAsset,
		})
	}
	return out
}

// executed 市价单成交量与均价
func executed(resp *gobinance.CreateOrderResponse) (qty, avg float64) {
	qty = parseFloat(resp.ExecutedQuantity)
	if qty <= 0 {
		return 0, 0
	}
	quote := parseFloat(resp.CummulativeQuoteQuantity)
	if quote > 0 {
		return qty, quote / qty
	}
	var notional float64
	for _, f := range resp.Fills {
		notional += parseFloat(f.Price) * parseFloat(f.Quantity)
	}
	return qty, notional / qty
}

func constraintsFromSymbol(s gobinance.Symbol) domain.MarketConstraints {
	var c domain.MarketConstraints
	step := ""
	if lot := s.LotSizeFilter(); lot != nil {
		step = lot.StepSize
		c.StepSize = parseFloat(lot.StepSize)
		c.MinQty = parseFloat(lot.MinQuantity)
	}
	if nf := s.NotionalFilter(); nf != nil {
		c.MinNotional = parseFloat(nf.MinNotional)
	}
	c.PricePrecision = 8
	if pf := s.PriceFilter(); pf != nil && parseFloat(pf.TickSize) > 0 {
		c.TickSize = parseFloat(pf.TickSize)
		c.PricePrecision = marketmath.PrecisionFromStep(pf.TickSize)
	}
	if step != "" {
		c.Precision = marketmath.PrecisionFromStep(step)
	} else {
		c.Precision = s.BaseAssetPrecision
	}
	return c
}
