// Package execution owns the trade state machines: one simulated and one
// live slot, each single-flight. Price updates drive client-side stop-loss
// and take-profit checks; completed trades become immutable TradeRecords.
package execution

import (
	"time"

	"futures-trader/internal/market"
)

// Simulated trade states.
const (
	SimStateOpen   = "OPEN"
	SimStateClosed = "CLOSED"
)

// Live trade states.
const (
	LiveStatePendingEntryFill = "PENDING_ENTRY_FILL"
	LiveStateOpen             = "OPEN"
	LiveStatePartialFill      = "PARTIAL_FILL"
	LiveStateClosingPending   = "CLOSING_PENDING"
	LiveStateClosingOrderSent = "CLOSING_ORDER_SENT"
	LiveStateClosed           = "CLOSED"
	LiveStateExitOrderFailed  = "EXIT_ORDER_FAILED"
)

// Exit reasons recorded on closure.
const (
	ExitTakeProfit = "TP Hit"
	ExitStopLoss   = "SL Hit"
)

// SimulatedTrade is the paper-trading position. Exit fills at the exact
// triggering price; there is no slippage model.
type SimulatedTrade struct {
	ID            string           `json:"id"`
	Strategy      string           `json:"strategy"`
	ContractID    string           `json:"contractId"`
	Direction     market.Direction `json:"direction"`
	Size          int              `json:"size"`
	EntryPrice    float64          `json:"entryPrice"`
	StopPrice     float64          `json:"stopPrice"`
	TargetPrice   float64          `json:"targetPrice"`
	State         string           `json:"state"`
	UnrealizedPnl float64          `json:"unrealizedPnl"`
	OpenedAt      time.Time        `json:"openedAt"`
}

// LiveTrade tracks a real position. EntryPrice stays nil until the account
// feed's position update supplies the fill; SL/TP checks are suspended
// until then.
type LiveTrade struct {
	ID            string           `json:"id"`
	ClientOrderID string           `json:"clientOrderId"`
	Strategy      string           `json:"strategy"`
	ContractID    string           `json:"contractId"`
	Direction     market.Direction `json:"direction"`
	Size          int              `json:"size"`
	FilledSize    int              `json:"filledSize"`
	EntryPrice    *float64         `json:"entryPrice"`
	StopPrice     float64          `json:"stopPrice"`
	TargetPrice   float64          `json:"targetPrice"`
	State         string           `json:"state"`
	UnrealizedPnl float64          `json:"unrealizedPnl"`
	OpenedAt      time.Time        `json:"openedAt"`

	exitPrice  float64
	exitReason string
}

// Active reports whether the trade still occupies the live slot. Every
// non-terminal state blocks a new entry, the failed-exit state included --
// that trade needs manual intervention before the slot frees up.
func (t *LiveTrade) Active() bool {
	return t.State != LiveStateClosed
}

// TradeRecord is the immutable per-trade artifact persisted to the
// append-only log, identical in shape for both modes.
type TradeRecord struct {
	ID          string           `json:"id"`
	Strategy    string           `json:"strategy"`
	ContractID  string           `json:"contractId"`
	Direction   market.Direction `json:"direction"`
	Size        int              `json:"size"`
	EntryPrice  float64          `json:"entryPrice"`
	ExitPrice   float64          `json:"exitPrice"`
	StopPrice   float64          `json:"stopPrice"`
	TargetPrice float64          `json:"targetPrice"`
	Pnl         float64          `json:"pnl"`
	ExitReason  string           `json:"exitReason"`
	Live        bool             `json:"live"`
	OpenedAt    time.Time        `json:"openedAt"`
	ClosedAt    time.Time        `json:"closedAt"`
}

// Recorder receives every completed TradeRecord. Implementations must not
// block; slow sinks buffer or drop internally.
type Recorder interface {
	Record(rec TradeRecord)
}
