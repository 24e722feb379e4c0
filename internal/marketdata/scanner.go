package marketdata

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
)

var log = logrus.WithField("module", "marketdata")

// Quoter 获取最优买卖价
type Quoter interface {
	BookTicker(ctx context.Context, pair domain.Pair) (domain.MarketSample, error)
}

// Scanner 逐个交易对取盘口，筛出价差达标的样本
type Scanner struct {
	quotes Quoter
	// Flexible 为 true 时价差不达标的样本也返回（测试/调参用）
	Flexible bool
	// Pause 两次请求之间的停顿
	Pause time.Duration
}

func NewScanner(q Quoter, flexible bool, pause time.Duration) *Scanner {
	return &Scanner{quotes: q, Flexible: flexible, Pause: pause}
}

// Scan 单个交易对失败只跳过该交易对
func (s *Scanner) Scan(ctx context.Context, pairs []domain.Pair, targetSpread float64) []domain.MarketSample {
	var out []domain.MarketSample
	for i, p := range pairs {
		if i > 0 && s.Pause > 0 {
			select {
			case <-ctx.Done():
				return out
			case <-time.After(s.Pause):
			}
		}
		if ctx.Err() != nil {
			return out
		}

		sample, err := s.quotes.BookTicker(ctx, p)
		if err != nil {
			log.Warnf("❌ [SCANNER] %s 获取盘口失败: %v", p, err)
			continue
		}
		if sample.Bid <= 0 || sample.Ask <= 0 {
			log.Debugf("[SCANNER] %s 盘口数据不足", p)
			continue
		}

		spread := sample.Spread()
		log.Debugf("[SCANNER] %s | Bid: %.8f | Ask: %.8f | Spread: %.5f%%", p, sample.Bid, sample.Ask, spread*100)
		switch {
		case spread >= targetSpread:
			out = append(out, sample)
		case s.Flexible:
			log.Debugf("⚠️ [SCANNER] %s 价差 %.5f%% 低于目标，flexible 模式仍然保留", p, spread*100)
			out = append(out, sample)
		}
	}
	return out
}
