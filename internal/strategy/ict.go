package strategy

import (
	"fmt"
	"time"

	"futures-trader/internal/market"
)

// KillZone is a time-of-day window (inclusive start, exclusive end) during
// which a strategy considers itself eligible to fire.
type KillZone struct {
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
}

// Contains reports whether t falls inside the window.
func (k KillZone) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	return m >= k.StartHour*60+k.StartMinute && m < k.EndHour*60+k.EndMinute
}

// ICTConfig parameterizes the ICT strategy.
type ICTConfig struct {
	ContractID      string
	KillZone        KillZone
	Confidence      float64
	StopLossTicks   int
	TakeProfitTicks int
	Now             func() time.Time // test hook, defaults to time.Now
}

// ICT fires on a three-bar fair value gap during its kill zone: a bullish
// gap when the newest closed bar's low sits above the high two bars back, a
// bearish gap when its high sits below the low two bars back. The middle bar
// is the displacement candle; the gap is the untraded span it left behind.
type ICT struct {
	cfg ICTConfig
}

// NewICT applies defaults: 09:30-11:30 kill zone, confidence 0.90.
func NewICT(cfg ICTConfig) *ICT {
	if cfg.KillZone == (KillZone{}) {
		cfg.KillZone = KillZone{StartHour: 9, StartMinute: 30, EndHour: 11, EndMinute: 30}
	}
	if cfg.Confidence <= 0 {
		cfg.Confidence = 0.90
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &ICT{cfg: cfg}
}

func (s *ICT) Name() string { return "ICT" }

// Analyze scans the last three closed 1-minute bars for a fair value gap.
func (s *ICT) Analyze(snap *market.Snapshot) *Signal {
	now := s.cfg.Now()
	if !s.cfg.KillZone.Contains(now) {
		return nil
	}

	bars := snap.Bars[1]
	if len(bars) < 3 {
		return nil
	}
	a, c := bars[len(bars)-3], bars[len(bars)-1]

	var dir market.Direction
	var gapLow, gapHigh float64
	switch {
	case c.Low > a.High: // bullish FVG
		dir = market.Buy
		gapLow, gapHigh = a.High, c.Low
	case c.High < a.Low: // bearish FVG
		dir = market.Sell
		gapLow, gapHigh = c.High, a.Low
	default:
		return nil
	}

	price, ok := snap.LastPrice()
	if !ok {
		return nil
	}
	return &Signal{
		Strategy:        s.Name(),
		Direction:       dir,
		Confidence:      s.cfg.Confidence,
		EntryPrice:      price,
		StopLossTicks:   s.cfg.StopLossTicks,
		TakeProfitTicks: s.cfg.TakeProfitTicks,
		ContractID:      s.cfg.ContractID,
		Reason:          fmt.Sprintf("fair value gap %.2f-%.2f", gapLow, gapHigh),
		Timestamp:       now.UTC(),
	}
}
