package domain

import (
	"fmt"
	"strings"
)

// Pair 交易对，格式 "BASE/QUOTE"（例如 BTC/USDT）
type Pair string

// ParsePair 解析交易对字符串，兼容 "BTC/USDT" 与 "btc-usdt"
func ParsePair(s string) (Pair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", "/")
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", fmt.Errorf("无效的交易对: %q", s)
	}
	return Pair(parts[0] + "/" + parts[1]), nil
}

// Base 基础资产（BTC/USDT -> BTC）
func (p Pair) Base() string {
	base, _, _ := strings.Cut(string(p), "/")
	return base
}

// Quote 计价资产（BTC/USDT -> USDT）
func (p Pair) Quote() string {
	_, quote, _ := strings.Cut(string(p), "/")
	return quote
}

// Symbol 交易所符号（BTC/USDT -> BTCUSDT）
func (p Pair) Symbol() string {
	return p.Base() + p.Quote()
}

func (p Pair) String() string { return string(p) }
