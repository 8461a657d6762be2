// Package strategy holds the pluggable signal generators and the manager
// that gates their output with a cooldown and confidence threshold.
package strategy

import (
	"time"

	"futures-trader/internal/market"
)

// Signal is an immutable trade recommendation produced by a strategy. The
// zero EntryPrice means "no expected entry, use the live price"; a zero
// ExecutionTime means "execute immediately".
type Signal struct {
	Strategy        string           `json:"strategy"`
	Direction       market.Direction `json:"direction"`
	Confidence      float64          `json:"confidence"`
	EntryPrice      float64          `json:"entryPrice,omitempty"`
	StopLossTicks   int              `json:"stopLossTicks,omitempty"`
	TakeProfitTicks int              `json:"takeProfitTicks,omitempty"`
	ContractID      string           `json:"contractId"`
	Reason          string           `json:"reason,omitempty"`
	Volatility      float64          `json:"volatility,omitempty"`
	ExecutionTime   time.Time        `json:"executionTime,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
}

// Strategy is the single capability every signal generator implements.
// Analyze returns nil for "no setup"; internal failures are recovered at the
// manager boundary and also surface as nil.
type Strategy interface {
	Name() string
	Analyze(snap *market.Snapshot) *Signal
}
