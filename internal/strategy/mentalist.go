package strategy

import (
	"time"

	"futures-trader/internal/market"
)

const mentalistHistory = 20

// MentalistConfig parameterizes the Mentalist strategy.
type MentalistConfig struct {
	ContractID      string
	Window          KillZone // trading window, default 09:30-11:30
	StopLossTicks   int
	TakeProfitTicks int
	Now             func() time.Time
}

// Mentalist is a four-filter decision tree over its own rolling price and
// volume history: a moving-average bias, a liquidity sweep (a single move
// covering more than half the recent range on elevated volume), cumulative
// delta agreeing with the bias, and a time-of-day window. All four must
// align; the confidence is fixed.
type Mentalist struct {
	cfg     MentalistConfig
	prices  []float64
	volumes []float64
}

// NewMentalist applies defaults: 09:30-11:30 window.
func NewMentalist(cfg MentalistConfig) *Mentalist {
	if cfg.Window == (KillZone{}) {
		cfg.Window = KillZone{StartHour: 9, StartMinute: 30, EndHour: 11, EndMinute: 30}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Mentalist{cfg: cfg}
}

func (s *Mentalist) Name() string { return "MENTALIST" }

func (s *Mentalist) Analyze(snap *market.Snapshot) *Signal {
	price, ok := snap.LastPrice()
	if !ok {
		return nil
	}
	s.observe(price, snap.Quote.Volume)

	bias := s.bias()
	if bias == "" {
		return nil
	}
	if !s.liquiditySweep(snap.Quote.Volume) {
		return nil
	}
	if !s.deltaConfirms(bias, snap.Delta.Ratio) {
		return nil
	}
	now := s.cfg.Now()
	if !s.cfg.Window.Contains(now) {
		return nil
	}

	return &Signal{
		Strategy:        s.Name(),
		Direction:       bias,
		Confidence:      0.92,
		EntryPrice:      price,
		StopLossTicks:   s.cfg.StopLossTicks,
		TakeProfitTicks: s.cfg.TakeProfitTicks,
		ContractID:      s.cfg.ContractID,
		Reason:          "bias, sweep, delta and window aligned",
		Timestamp:       now.UTC(),
	}
}

func (s *Mentalist) observe(price, volume float64) {
	s.prices = append(s.prices, price)
	if len(s.prices) > mentalistHistory {
		s.prices = s.prices[len(s.prices)-mentalistHistory:]
	}
	s.volumes = append(s.volumes, volume)
	if len(s.volumes) > mentalistHistory {
		s.volumes = s.volumes[len(s.volumes)-mentalistHistory:]
	}
}

// bias compares a 5-observation SMA against a 10-observation SMA. Needs a
// full 10 observations; returns "" until then.
func (s *Mentalist) bias() market.Direction {
	if len(s.prices) < 10 {
		return ""
	}
	short := sma(s.prices[len(s.prices)-5:])
	long := sma(s.prices[len(s.prices)-10:])
	if short > long {
		return market.Buy
	}
	return market.Sell
}

// liquiditySweep looks for one move covering more than half the observed
// range, on volume at least 1.5x the rolling average.
func (s *Mentalist) liquiditySweep(currentVolume float64) bool {
	if len(s.prices) < 2 {
		return false
	}
	lo, hi := s.prices[0], s.prices[0]
	for _, p := range s.prices {
		if p < lo {
			lo = p
		}
		if p > hi {
			hi = p
		}
	}
	rng := hi - lo
	if rng == 0 {
		return false
	}
	lastMove := abs(s.prices[len(s.prices)-1] - s.prices[len(s.prices)-2])
	avgVol := sma(s.volumes)
	return lastMove > rng*0.5 && currentVolume > avgVol*1.5
}

func (s *Mentalist) deltaConfirms(bias market.Direction, ratio float64) bool {
	if bias == market.Buy {
		return ratio > 0
	}
	return ratio < 0
}
