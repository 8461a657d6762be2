// Package performance accumulates completed trades into key performance
// indicators: overall and per-strategy PnL, win rates and an equity curve
// with drawdown.
package performance

import (
	"math"
	"sync"
	"time"

	"futures-trader/internal/execution"
)

// Metrics is one KPI block, overall or for a single strategy.
type Metrics struct {
	TotalPnl    float64 `json:"totalPnl"`
	TradeCount  int     `json:"tradeCount"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	WinRate     float64 `json:"winRate"` // percent
	AvgWin      float64 `json:"avgWin"`
	AvgLoss     float64 `json:"avgLoss"`
	SharpeRatio float64 `json:"sharpeRatio"` // per-trade pnl mean/stddev
	MaxDrawdown float64 `json:"maxDrawdown"` // percent, <= 0
}

// EquityPoint is one sample of the running equity curve.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// Monitor collects TradeRecords. Implements execution.Recorder; all methods
// are safe for concurrent use.
type Monitor struct {
	mu sync.Mutex

	records []execution.TradeRecord
	curve   []EquityPoint

	initialEquity float64
	equitySet     bool
}

// NewMonitor creates an empty monitor.
func NewMonitor() *Monitor { return &Monitor{} }

// SetInitialEquity seeds the equity curve with the account's starting
// balance. Only the first call takes effect.
func (m *Monitor) SetInitialEquity(equity float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.equitySet {
		return
	}
	m.initialEquity = equity
	m.equitySet = true
	m.curve = append(m.curve, EquityPoint{Timestamp: time.Now().UTC(), Value: equity})
}

// Record stores one completed trade and extends the equity curve.
func (m *Monitor) Record(rec execution.TradeRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, rec)
	last := m.initialEquity
	if n := len(m.curve); n > 0 {
		last = m.curve[n-1].Value
	}
	m.curve = append(m.curve, EquityPoint{Timestamp: time.Now().UTC(), Value: last + rec.Pnl})
}

// Overall computes the KPI block across every recorded trade.
func (m *Monitor) Overall() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	met := compute(m.records)
	met.MaxDrawdown = maxDrawdown(m.curve)
	return met
}

// ByStrategy computes one KPI block per strategy name.
func (m *Monitor) ByStrategy() map[string]Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	groups := make(map[string][]execution.TradeRecord)
	for _, r := range m.records {
		groups[r.Strategy] = append(groups[r.Strategy], r)
	}
	out := make(map[string]Metrics, len(groups))
	for name, recs := range groups {
		out[name] = compute(recs)
	}
	return out
}

// EquityCurve returns a copy of the curve samples.
func (m *Monitor) EquityCurve() []EquityPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EquityPoint, len(m.curve))
	copy(out, m.curve)
	return out
}

// Reset drops all records and the curve, keeping nothing. Called on mode
// switch alongside the execution engine's reset.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.curve = nil
	m.initialEquity = 0
	m.equitySet = false
}

func compute(recs []execution.TradeRecord) Metrics {
	met := Metrics{TradeCount: len(recs)}
	if len(recs) == 0 {
		return met
	}

	var winSum, lossSum float64
	for _, r := range recs {
		met.TotalPnl += r.Pnl
		if r.Pnl > 0 {
			met.Wins++
			winSum += r.Pnl
		} else {
			met.Losses++
			lossSum += r.Pnl
		}
	}
	met.WinRate = float64(met.Wins) / float64(met.TradeCount) * 100
	if met.Wins > 0 {
		met.AvgWin = winSum / float64(met.Wins)
	}
	if met.Losses > 0 {
		met.AvgLoss = lossSum / float64(met.Losses)
	}

	if len(recs) > 1 {
		mean := met.TotalPnl / float64(len(recs))
		var variance float64
		for _, r := range recs {
			d := r.Pnl - mean
			variance += d * d
		}
		// Sample standard deviation over per-trade PnL.
		std := math.Sqrt(variance / float64(len(recs)-1))
		if std > 0 {
			met.SharpeRatio = mean / std
		}
	}
	return met
}

// maxDrawdown is the worst peak-to-trough decline of the curve, in percent
// of the peak. Zero or positive peaks only; an all-rising curve yields 0.
func maxDrawdown(curve []EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	peak := curve[0].Value
	worst := 0.0
	for _, p := range curve[1:] {
		if p.Value > peak {
			peak = p.Value
			continue
		}
		if peak > 0 {
			dd := (p.Value - peak) / peak * 100
			if dd < worst {
				worst = dd
			}
		}
	}
	return worst
}
