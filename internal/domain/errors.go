package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAdmissionDenied 资金额度不足，本轮不下单
	ErrAdmissionDenied = errors.New("admission denied")
	// ErrConstraintViolation 数量不满足交易所约束
	ErrConstraintViolation = errors.New("constraint violation")
	// ErrOrderNotFound 交易所上查不到该订单（已成交清理或已取消）
	ErrOrderNotFound = errors.New("order not found")
	// ErrUnconfirmed 超时内未确认成交
	ErrUnconfirmed = errors.New("fill unconfirmed")
	// ErrGatewayTransient 网关临时错误（网络/限流），可重试
	ErrGatewayTransient = errors.New("gateway transient error")
)

// ConstraintError 数量约束错误
type ConstraintError struct {
	Pair  Pair
	Field string // min_qty / min_notional / balance
	Value float64
	Limit float64
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: %s %.8f < %.8f", e.Pair, e.Field, e.Value, e.Limit)
}

func (e *ConstraintError) Unwrap() error { return ErrConstraintViolation }
