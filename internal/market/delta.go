package market

// DeltaTracker accumulates buy- and sell-initiated volume and exposes the
// running delta and ratio. Not goroutine-safe; State owns it.
type DeltaTracker struct {
	bidVolume float64
	askVolume float64
}

// NewDeltaTracker returns a zeroed tracker.
func NewDeltaTracker() *DeltaTracker { return &DeltaTracker{} }

// Update adds size to the accumulator for the trade's aggressor side.
func (t *DeltaTracker) Update(direction Direction, size float64) {
	if direction == Buy {
		t.bidVolume += size
	} else {
		t.askVolume += size
	}
}

// Delta is buy volume minus sell volume.
func (t *DeltaTracker) Delta() float64 { return t.bidVolume - t.askVolume }

// Ratio is delta over total volume, 0 when nothing has traded.
func (t *DeltaTracker) Ratio() float64 {
	total := t.bidVolume + t.askVolume
	if total == 0 {
		return 0
	}
	return t.Delta() / total
}

// Summary captures the tracker for a snapshot.
func (t *DeltaTracker) Summary() DeltaSummary {
	return DeltaSummary{
		BidVolume: t.bidVolume,
		AskVolume: t.askVolume,
		Delta:     t.Delta(),
		Ratio:     t.Ratio(),
	}
}

// Reset zeroes both accumulators.
func (t *DeltaTracker) Reset() {
	t.bidVolume = 0
	t.askVolume = 0
}
