package domain

import "time"

// EventKind 事件类型
type EventKind string

const (
	EventCycleStarted       EventKind = "cycle_started"
	EventCycleSkipped       EventKind = "cycle_skipped"
	EventAdmissionDenied    EventKind = "admission_denied"
	EventOrderSubmitted     EventKind = "order_submitted"
	EventOrderFilled        EventKind = "order_filled"
	EventOrderTimeout       EventKind = "order_timeout"
	EventTradeCompleted     EventKind = "trade_completed"
	EventSimulatedTrade     EventKind = "simulated_trade"
	EventLegFailed          EventKind = "leg_failed"
	EventConstraintRejected EventKind = "constraint_rejected"
	EventCycleError         EventKind = "cycle_error"
	EventReconcileCanceled  EventKind = "reconcile_canceled"
	EventReconcileExecuted  EventKind = "reconcile_executed"
	EventReconcileAbandoned EventKind = "reconcile_abandoned"
	EventBotStopped         EventKind = "bot_stopped"
	EventBreakerTripped     EventKind = "breaker_tripped"
)

// Event 审计事件（追加写入）
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	Pair      Pair           `json:"pair,omitempty"`
	Message   string         `json:"message"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
