package strategy

import (
	"fmt"
	"time"

	"futures-trader/internal/market"
)

// DeltaConfig parameterizes the order-flow strategy.
type DeltaConfig struct {
	ContractID      string
	RatioThreshold  float64 // minimum |delta ratio| to fire
	StopLossTicks   int
	TakeProfitTicks int
	Now             func() time.Time
}

// Delta fires when cumulative order flow is strongly one-sided and the
// current price is still inside the session value area, i.e. the imbalance
// has not already been spent on a breakout.
type Delta struct {
	cfg DeltaConfig
}

// NewDelta applies defaults: ratio threshold 0.6.
func NewDelta(cfg DeltaConfig) *Delta {
	if cfg.RatioThreshold <= 0 {
		cfg.RatioThreshold = 0.6
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Delta{cfg: cfg}
}

func (s *Delta) Name() string { return "DELTA" }

func (s *Delta) Analyze(snap *market.Snapshot) *Signal {
	ratio := snap.Delta.Ratio
	var dir market.Direction
	switch {
	case ratio >= s.cfg.RatioThreshold:
		dir = market.Buy
	case ratio <= -s.cfg.RatioThreshold:
		dir = market.Sell
	default:
		return nil
	}

	price, ok := snap.LastPrice()
	if !ok {
		return nil
	}
	va := snap.Profile.ValueArea
	if len(va) == 0 {
		return nil
	}
	if price < va[0].Price || price > va[len(va)-1].Price {
		// Already outside the value area: the move has happened.
		return nil
	}

	// Confidence tracks how far past the threshold the imbalance runs.
	conf := abs(ratio)
	if conf > 1 {
		conf = 1
	}
	return &Signal{
		Strategy:        s.Name(),
		Direction:       dir,
		Confidence:      conf,
		EntryPrice:      price,
		StopLossTicks:   s.cfg.StopLossTicks,
		TakeProfitTicks: s.cfg.TakeProfitTicks,
		ContractID:      s.cfg.ContractID,
		Reason:          fmt.Sprintf("delta ratio %.2f inside value area", ratio),
		Timestamp:       s.cfg.Now().UTC(),
	}
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
