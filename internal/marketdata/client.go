package marketdata

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/ricardogal/defi-scalping-rebate/internal/domain"
	"github.com/ricardogal/defi-scalping-rebate/pkg/ratelimit"
)

const DefaultBaseURL = "https://api.binance.com"

// Ticker24h 24 小时行情摘要
type Ticker24h struct {
	Symbol             string `json:"symbol"`
	PriceChangePercent string `json:"priceChangePercent"`
	LastPrice          string `json:"lastPrice"`
	QuoteVolume        string `json:"quoteVolume"`
}

// ChangePercent 涨跌幅（百分比），无法解析时 ok=false
func (t Ticker24h) ChangePercent() (float64, bool) {
	v, err := strconv.ParseFloat(t.PriceChangePercent, 64)
	return v, err == nil
}

type bookTicker struct {
	Symbol   string `json:"symbol"`
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
}

// Client 公共行情 REST 客户端
type Client struct {
	client *resty.Client
	limits *ratelimit.Manager
	now    func() time.Time
}

func NewClient(host string, limits *ratelimit.Manager) *Client {
	if host == "" {
		host = DefaultBaseURL
	}
	host = strings.TrimSuffix(host, "/")

	client := resty.New().
		SetBaseURL(host).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		SetRetryAfter(func(client *resty.Client, resp *resty.Response) (time.Duration, error) {
			// 429/418 按 Retry-After 退避
			if resp.StatusCode() == 429 || resp.StatusCode() == 418 {
				if ra := resp.Header().Get("Retry-After"); ra != "" {
					if d, err := time.ParseDuration(ra + "s"); err == nil {
						return d, nil
					}
				}
				return 5 * time.Second, nil
			}
			return 0, nil
		}).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || resp.StatusCode() == 429 || resp.StatusCode() >= 500
		})

	return &Client{client: client, limits: limits, now: time.Now}
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	return c.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json")
}

// BookTicker 最优买卖价
func (c *Client) BookTicker(ctx context.Context, pair domain.Pair) (domain.MarketSample, error) {
	if err := c.limits.Wait(ctx, "public"); err != nil {
		return domain.MarketSample{}, err
	}
	var out bookTicker
	resp, err := c.newRequest(ctx).
		SetQueryParam("symbol", pair.Symbol()).
		SetResult(&out).
		Get("/api/v3/ticker/bookTicker")
	if err := checkResponse(resp, err); err != nil {
		return domain.MarketSample{}, errors.Wrapf(err, "bookTicker %s", pair)
	}
	bid, _ := strconv.ParseFloat(out.BidPrice, 64)
	ask, _ := strconv.ParseFloat(out.AskPrice, 64)
	return domain.MarketSample{Pair: pair, Bid: bid, Ask: ask, Time: c.now()}, nil
}

// Tickers24h 全市场 24 小时行情
func (c *Client) Tickers24h(ctx context.Context) ([]Ticker24h, error) {
	if err := c.limits.Wait(ctx, "public"); err != nil {
		return nil, err
	}
	var out []Ticker24h
	resp, err := c.newRequest(ctx).
		SetResult(&out).
		Get("/api/v3/ticker/24hr")
	if err := checkResponse(resp, err); err != nil {
		return nil, errors.Wrap(err, "ticker 24hr")
	}
	return out, nil
}

func checkResponse(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if resp.IsSuccess() {
		return nil
	}
	return errors.Errorf("http %d: %s", resp.StatusCode(), strings.TrimSpace(string(resp.Body())))
}
