package market

import (
	"math"
	"sort"
)

// VolumeProfile accumulates traded volume per quantized price level and
// derives the point of control and value area. Not goroutine-safe; State
// owns it and serializes access.
type VolumeProfile struct {
	resolution float64
	levels     map[float64]float64
	total      float64
}

// NewVolumeProfile quantizes prices to the given resolution (e.g. 0.25 for
// ES ticks).
func NewVolumeProfile(resolution float64) *VolumeProfile {
	return &VolumeProfile{
		resolution: resolution,
		levels:     make(map[float64]float64),
	}
}

// Update adds volume at the level nearest to price.
func (p *VolumeProfile) Update(price, volume float64) {
	level := math.Round(price/p.resolution) * p.resolution
	p.levels[level] += volume
	p.total += volume
}

// TotalVolume returns the running total across all levels.
func (p *VolumeProfile) TotalVolume() float64 { return p.total }

// POC returns the point of control: the level with the highest accumulated
// volume. Ties resolve to the lowest price level.
func (p *VolumeProfile) POC() (level, volume float64, ok bool) {
	if len(p.levels) == 0 {
		return 0, 0, false
	}
	sorted := p.sortedLevels()
	level = sorted[0]
	volume = p.levels[level]
	for _, l := range sorted[1:] {
		if p.levels[l] > volume {
			level = l
			volume = p.levels[l]
		}
	}
	return level, volume, true
}

// ValueArea builds the contiguous band of levels holding targetFraction of
// total volume, expanding outward from the POC. When the two frontier
// candidates carry equal volume the lower-price side wins, biasing the band
// slightly downward on symmetric profiles. Levels come back sorted
// ascending by price.
func (p *VolumeProfile) ValueArea(targetFraction float64) []PriceLevel {
	poc, pocVol, ok := p.POC()
	if !ok || p.total == 0 {
		return nil
	}
	sorted := p.sortedLevels()
	pocIdx := 0
	for i, l := range sorted {
		if l == poc {
			pocIdx = i
			break
		}
	}

	lo, hi := pocIdx, pocIdx
	accumulated := pocVol
	target := p.total * targetFraction

	for accumulated < target && (lo > 0 || hi < len(sorted)-1) {
		canLow := lo > 0
		canHigh := hi < len(sorted)-1
		switch {
		case canLow && canHigh:
			lowVol := p.levels[sorted[lo-1]]
			highVol := p.levels[sorted[hi+1]]
			if lowVol >= highVol {
				lo--
				accumulated += lowVol
			} else {
				hi++
				accumulated += highVol
			}
		case canLow:
			lo--
			accumulated += p.levels[sorted[lo]]
		case canHigh:
			hi++
			accumulated += p.levels[sorted[hi]]
		}
	}

	out := make([]PriceLevel, 0, hi-lo+1)
	for _, l := range sorted[lo : hi+1] {
		out = append(out, PriceLevel{Price: l, Volume: p.levels[l]})
	}
	return out
}

// Summary captures the profile for a snapshot.
func (p *VolumeProfile) Summary(targetFraction float64) ProfileSummary {
	poc, pocVol, _ := p.POC()
	return ProfileSummary{
		POC:         poc,
		POCVolume:   pocVol,
		TotalVolume: p.total,
		ValueArea:   p.ValueArea(targetFraction),
	}
}

// Reset clears all levels and the total.
func (p *VolumeProfile) Reset() {
	p.levels = make(map[float64]float64)
	p.total = 0
}

func (p *VolumeProfile) sortedLevels() []float64 {
	out := make([]float64, 0, len(p.levels))
	for l := range p.levels {
		out = append(out, l)
	}
	sort.Float64s(out)
	return out
}
