package market

import "time"

// BarAggregator folds a stream of timestamped trades into fixed-interval
// OHLCV bars, one set per tracked interval width. It is not goroutine-safe;
// State owns it and serializes access.
type BarAggregator struct {
	intervals []int // minutes
	capacity  int
	current   map[int]*Bar
	history   map[int][]Bar
}

// NewBarAggregator tracks the given interval widths (in minutes), keeping at
// most capacity closed bars per width.
func NewBarAggregator(intervals []int, capacity int) *BarAggregator {
	a := &BarAggregator{
		intervals: intervals,
		capacity:  capacity,
		current:   make(map[int]*Bar, len(intervals)),
		history:   make(map[int][]Bar, len(intervals)),
	}
	return a
}

// Ingest applies one trade to every tracked interval. Crossing an interval
// boundary closes the current bar into history and opens a new one.
// Timestamps older than the current bar's interval are folded into the
// current bar as if concurrent; there is no reordering or backfill.
func (a *BarAggregator) Ingest(ts time.Time, price, size float64) {
	for _, interval := range a.intervals {
		start := intervalStart(ts, interval)
		bar := a.current[interval]
		if bar == nil || (!bar.IntervalStart.Equal(start) && start.After(bar.IntervalStart)) {
			if bar != nil {
				a.append(interval, *bar)
			}
			a.current[interval] = &Bar{
				IntervalStart: start,
				Open:          price,
				High:          price,
				Low:           price,
				Close:         price,
				Volume:        size,
			}
			continue
		}
		if price > bar.High {
			bar.High = price
		}
		if price < bar.Low {
			bar.Low = price
		}
		bar.Close = price
		bar.Volume += size
	}
}

func (a *BarAggregator) append(interval int, bar Bar) {
	bars := append(a.history[interval], bar)
	// Trim the slice to maintain the ring buffer size.
	if len(bars) > a.capacity {
		bars = bars[len(bars)-a.capacity:]
	}
	a.history[interval] = bars
}

// History returns a copy of the closed bars for an interval width, ordered
// oldest to newest.
func (a *BarAggregator) History(interval int) []Bar {
	bars := a.history[interval]
	out := make([]Bar, len(bars))
	copy(out, bars)
	return out
}

// Current returns a copy of the open bar for an interval width, or nil when
// no trade has been seen yet.
func (a *BarAggregator) Current(interval int) *Bar {
	bar := a.current[interval]
	if bar == nil {
		return nil
	}
	c := *bar
	return &c
}

// Intervals returns the tracked interval widths.
func (a *BarAggregator) Intervals() []int { return a.intervals }

// intervalStart floors a timestamp to the start of its interval, computed
// from minutes since midnight UTC so widths that do not divide the hour
// still bucket consistently.
func intervalStart(ts time.Time, minutes int) time.Time {
	ts = ts.UTC()
	total := ts.Hour()*60 + ts.Minute()
	start := (total / minutes) * minutes
	return time.Date(ts.Year(), ts.Month(), ts.Day(), start/60, start%60, 0, 0, time.UTC)
}
