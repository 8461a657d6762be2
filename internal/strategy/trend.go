package strategy

import "futures-trader/internal/market"

// Trend is the detector's read of the market on the 1-minute bars.
type Trend struct {
	Direction  market.Direction // empty when neutral
	Confidence float64          // 0..1
}

// Neutral reports whether no directional bias was found.
func (t Trend) Neutral() bool { return t.Direction == "" }

// TrendDetector derives a directional bias from a short and a long simple
// moving average over recent 1-minute closes, requiring the latest close to
// confirm the bias (above the short SMA for bullish, below for bearish).
type TrendDetector struct {
	ShortWindow int
	LongWindow  int
}

// NewTrendDetector uses the 5/10 SMA pair.
func NewTrendDetector() *TrendDetector {
	return &TrendDetector{ShortWindow: 5, LongWindow: 10}
}

// Detect computes the trend from the snapshot's 1-minute closes. With fewer
// closes than the short window the result is neutral.
func (d *TrendDetector) Detect(snap *market.Snapshot) Trend {
	closes := snap.Closes(1, d.LongWindow)
	if len(closes) < d.ShortWindow {
		return Trend{}
	}

	shortSMA := sma(closes[len(closes)-d.ShortWindow:])
	longSMA := sma(closes) // up to LongWindow closes, fewer if that's all we have
	last := closes[len(closes)-1]

	switch {
	case shortSMA > longSMA && last > shortSMA:
		return Trend{Direction: market.Buy, Confidence: trendConfidence(shortSMA, longSMA)}
	case shortSMA < longSMA && last < shortSMA:
		return Trend{Direction: market.Sell, Confidence: trendConfidence(longSMA, shortSMA)}
	default:
		return Trend{Confidence: 0.5}
	}
}

// trendConfidence maps the SMA spread to [0.5, 1]: half a point of base
// confidence plus the spread as a fraction of the long SMA, scaled up.
func trendConfidence(fast, slow float64) float64 {
	if slow == 0 {
		return 0.5
	}
	c := 0.5 + (fast-slow)/slow*10
	if c > 1 {
		c = 1
	}
	return c
}

func sma(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}
