package marketdata

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/internal/store"
)

// 不参与涨幅榜的稳定币
var excludedAssets = []string{"BUSD", "USDC", "DAI"}

// TickerSource 24 小时行情来源
type TickerSource interface {
	Tickers24h(ctx context.Context) ([]Ticker24h, error)
}

// GainerCache 涨幅榜缓存
type GainerCache interface {
	CachedGainers(ctx context.Context, quote string, now time.Time) ([]store.Gainer, error)
	ReplaceGainers(ctx context.Context, quote string, gainers []store.Gainer, expiresAt time.Time) error
}

// RankerConfig 涨幅榜参数
type RankerConfig struct {
	TopN     int
	Quote    string
	CacheTTL time.Duration
	Fallback []domain.Pair
}

// Ranker 涨幅榜交易对来源：缓存 -> 交易所 -> 配置兜底
type Ranker struct {
	tickers TickerSource
	cache   GainerCache
	cfg     RankerConfig
	now     func() time.Time
}

func NewRanker(tickers TickerSource, cache GainerCache, cfg RankerConfig) *Ranker {
	if cfg.TopN <= 0 {
		cfg.TopN = 10
	}
	if cfg.Quote == "" {
		cfg.Quote = "USDT"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Minute
	}
	return &Ranker{tickers: tickers, cache: cache, cfg: cfg, now: time.Now}
}

// WithClock 替换时间源（测试用）
func (r *Ranker) WithClock(now func() time.Time) *Ranker {
	r.now = now
	return r
}

// Pairs 实现 execution.PairSource
func (r *Ranker) Pairs(ctx context.Context) []domain.Pair {
	gainers, err := r.TopGainers(ctx)
	if err != nil {
		log.Warnf("⚠️ [RANKER] 获取涨幅榜失败: %v", err)
	}
	if len(gainers) == 0 {
		log.Warnf("⚠️ [RANKER] 涨幅榜为空，使用配置中的交易对 (%d 个)", len(r.cfg.Fallback))
		return r.cfg.Fallback
	}

	pairs := make([]domain.Pair, 0, len(gainers))
	for _, g := range gainers {
		pairs = append(pairs, domain.Pair(g.Symbol))
	}
	return pairs
}

// TopGainers 先读未过期缓存，未命中再查交易所并回写缓存
func (r *Ranker) TopGainers(ctx context.Context) ([]store.Gainer, error) {
	now := r.now()
	if r.cache != nil {
		cached, err := r.cache.CachedGainers(ctx, r.cfg.Quote, now)
		if err != nil {
			log.Warnf("⚠️ [RANKER] 读取缓存失败: %v", err)
		} else if len(cached) > 0 {
			log.Debugf("✅ [RANKER] 缓存命中 (%d 个)", len(cached))
			return cached, nil
		}
	}

	tickers, err := r.tickers.Tickers24h(ctx)
	if err != nil {
		return nil, err
	}
	fresh := rankGainers(tickers, r.cfg.Quote, r.cfg.TopN)
	if len(fresh) > 0 && r.cache != nil {
		if err := r.cache.ReplaceGainers(ctx, r.cfg.Quote, fresh, now.Add(r.cfg.CacheTTL)); err != nil {
			log.Warnf("❌ [RANKER] 更新缓存失败: %v", err)
		} else {
			log.Infof("💾 [RANKER] 缓存已更新 (%d 个)", len(fresh))
		}
	}
	return fresh, nil
}

// rankGainers 只保留以 quote 计价、非稳定币、涨幅为正的交易对，按涨幅降序取前 n 个
func rankGainers(tickers []Ticker24h, quote string, n int) []store.Gainer {
	var out []store.Gainer
	for _, t := range tickers {
		base, ok := strings.CutSuffix(t.Symbol, quote)
		if !ok || base == "" || isExcluded(base) {
			continue
		}
		pct, ok := t.ChangePercent()
		if !ok || pct <= 0 {
			continue
		}
		out = append(out, store.Gainer{Symbol: base + "/" + quote, ChangePercent: pct})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ChangePercent > out[j].ChangePercent })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func isExcluded(base string) bool {
	for _, s := range excludedAssets {
		if strings.Contains(base, s) {
			return true
		}
	}
	return false
}
