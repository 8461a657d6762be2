package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-trader/internal/market"
)

func inKillZone() func() time.Time {
	return func() time.Time { return time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC) }
}

func barsAt(closes ...[4]float64) []market.Bar {
	base := time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)
	out := make([]market.Bar, len(closes))
	for i, c := range closes {
		out[i] = market.Bar{
			IntervalStart: base.Add(time.Duration(i) * time.Minute),
			Open:          c[0], High: c[1], Low: c[2], Close: c[3],
		}
	}
	return out
}

func TestKillZoneContains(t *testing.T) {
	kz := KillZone{StartHour: 9, StartMinute: 30, EndHour: 11, EndMinute: 30}
	assert.True(t, kz.Contains(time.Date(2025, 6, 2, 9, 30, 0, 0, time.UTC)))
	assert.True(t, kz.Contains(time.Date(2025, 6, 2, 11, 29, 59, 0, time.UTC)))
	assert.False(t, kz.Contains(time.Date(2025, 6, 2, 9, 29, 0, 0, time.UTC)))
	assert.False(t, kz.Contains(time.Date(2025, 6, 2, 11, 30, 0, 0, time.UTC)))
}

func TestICTBullishFairValueGap(t *testing.T) {
	s := NewICT(ICTConfig{ContractID: "CON.F.US.MES.M25", Now: inKillZone()})
	// Bar A high 101, displacement bar, bar C low 102: gap 101-102.
	snap := &market.Snapshot{
		Quote: market.Quote{Last: 102.5},
		Bars: map[int][]market.Bar{1: barsAt(
			[4]float64{100, 101, 99.5, 100.5},
			[4]float64{100.5, 102.5, 100.5, 102.25},
			[4]float64{102.25, 103, 102, 102.5},
		)},
	}
	sig := s.Analyze(snap)
	require.NotNil(t, sig)
	assert.Equal(t, market.Buy, sig.Direction)
	assert.Equal(t, 0.90, sig.Confidence)
	assert.Equal(t, 102.5, sig.EntryPrice)
	assert.Contains(t, sig.Reason, "fair value gap")
}

func TestICTBearishFairValueGap(t *testing.T) {
	s := NewICT(ICTConfig{Now: inKillZone()})
	snap := &market.Snapshot{
		Quote: market.Quote{Last: 99.0},
		Bars: map[int][]market.Bar{1: barsAt(
			[4]float64{102, 103, 101.5, 102},
			[4]float64{102, 102, 99.5, 99.75},
			[4]float64{99.75, 100, 99, 99.25},
		)},
	}
	sig := s.Analyze(snap)
	require.NotNil(t, sig)
	assert.Equal(t, market.Sell, sig.Direction)
}

func TestICTOutsideKillZone(t *testing.T) {
	s := NewICT(ICTConfig{Now: func() time.Time {
		return time.Date(2025, 6, 2, 14, 0, 0, 0, time.UTC)
	}})
	snap := &market.Snapshot{
		Quote: market.Quote{Last: 102.5},
		Bars: map[int][]market.Bar{1: barsAt(
			[4]float64{100, 101, 99.5, 100.5},
			[4]float64{100.5, 102.5, 100.5, 102.25},
			[4]float64{102.25, 103, 102, 102.5},
		)},
	}
	assert.Nil(t, s.Analyze(snap))
}

func TestICTNoGapNoSignal(t *testing.T) {
	s := NewICT(ICTConfig{Now: inKillZone()})
	snap := &market.Snapshot{
		Quote: market.Quote{Last: 100.5},
		Bars: map[int][]market.Bar{1: barsAt(
			[4]float64{100, 101, 99.5, 100.5},
			[4]float64{100.5, 101, 100, 100.75},
			[4]float64{100.75, 101, 100.5, 100.5},
		)},
	}
	assert.Nil(t, s.Analyze(snap))
}

func deltaSnapshot(ratio, price float64) *market.Snapshot {
	total := 100.0
	bid := (ratio + 1) / 2 * total
	return &market.Snapshot{
		Quote: market.Quote{Last: price},
		Delta: market.DeltaSummary{BidVolume: bid, AskVolume: total - bid, Delta: 2*bid - total, Ratio: ratio},
		Profile: market.ProfileSummary{ValueArea: []market.PriceLevel{
			{Price: 99.75, Volume: 10},
			{Price: 100.00, Volume: 30},
			{Price: 100.25, Volume: 12},
		}},
	}
}

func TestDeltaFiresInsideValueArea(t *testing.T) {
	s := NewDelta(DeltaConfig{ContractID: "MES"})

	sig := s.Analyze(deltaSnapshot(0.7, 100.0))
	require.NotNil(t, sig)
	assert.Equal(t, market.Buy, sig.Direction)
	assert.InDelta(t, 0.7, sig.Confidence, 1e-9)

	sig = s.Analyze(deltaSnapshot(-0.7, 100.0))
	require.NotNil(t, sig)
	assert.Equal(t, market.Sell, sig.Direction)
}

func TestDeltaHoldsBelowThresholdOrOutsideValueArea(t *testing.T) {
	s := NewDelta(DeltaConfig{})
	assert.Nil(t, s.Analyze(deltaSnapshot(0.4, 100.0)), "ratio below threshold")
	assert.Nil(t, s.Analyze(deltaSnapshot(0.7, 101.0)), "price above value area")
	assert.Nil(t, s.Analyze(deltaSnapshot(0.7, 99.0)), "price below value area")
}

func TestTrendDetector(t *testing.T) {
	d := NewTrendDetector()

	assert.True(t, d.Detect(&market.Snapshot{Bars: map[int][]market.Bar{}}).Neutral(),
		"no bars, no trend")

	rising := trendingSnapshot(true)
	tr := d.Detect(rising)
	assert.Equal(t, market.Buy, tr.Direction)
	assert.Greater(t, tr.Confidence, 0.5)

	flat := trendingSnapshot(false)
	assert.True(t, d.Detect(flat).Neutral())
}

func TestMentalistAllFiltersAligned(t *testing.T) {
	s := NewMentalist(MentalistConfig{ContractID: "MES", Now: inKillZone()})

	// Build an upward bias over 10+ observations, then a sharp final move on
	// elevated volume with positive delta.
	snapAt := func(price, volume, ratio float64) *market.Snapshot {
		return &market.Snapshot{
			Quote: market.Quote{Last: price, Volume: volume},
			Delta: market.DeltaSummary{Ratio: ratio},
		}
	}
	for i := 0; i < 11; i++ {
		require.Nil(t, s.Analyze(snapAt(100+float64(i)*0.1, 100, 0.2)))
	}
	sig := s.Analyze(snapAt(103.0, 500, 0.4)) // move of 2.0 vs range ~3.0
	require.NotNil(t, sig)
	assert.Equal(t, market.Buy, sig.Direction)
	assert.Equal(t, 0.92, sig.Confidence)
}

func TestMentalistRejectsOutsideWindow(t *testing.T) {
	s := NewMentalist(MentalistConfig{Now: func() time.Time {
		return time.Date(2025, 6, 2, 13, 0, 0, 0, time.UTC)
	}})
	snapAt := func(price, volume, ratio float64) *market.Snapshot {
		return &market.Snapshot{
			Quote: market.Quote{Last: price, Volume: volume},
			Delta: market.DeltaSummary{Ratio: ratio},
		}
	}
	for i := 0; i < 11; i++ {
		s.Analyze(snapAt(100+float64(i)*0.1, 100, 0.2))
	}
	assert.Nil(t, s.Analyze(snapAt(103.0, 500, 0.4)))
}

func TestMentalistNeedsDeltaAgreement(t *testing.T) {
	s := NewMentalist(MentalistConfig{Now: inKillZone()})
	snapAt := func(price, volume, ratio float64) *market.Snapshot {
		return &market.Snapshot{
			Quote: market.Quote{Last: price, Volume: volume},
			Delta: market.DeltaSummary{Ratio: ratio},
		}
	}
	for i := 0; i < 11; i++ {
		s.Analyze(snapAt(100+float64(i)*0.1, 100, 0.2))
	}
	assert.Nil(t, s.Analyze(snapAt(103.0, 500, -0.4)), "bullish bias with selling delta")
}
