package market

import "time"

// Direction is the side of a trade or signal.
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// Sign returns +1 for buys and -1 for sells.
func (d Direction) Sign() float64 {
	if d == Sell {
		return -1
	}
	return 1
}

// Opposite returns the closing side for a trade opened in this direction.
func (d Direction) Opposite() Direction {
	if d == Buy {
		return Sell
	}
	return Buy
}

// Tick is a single executed trade from the market feed.
type Tick struct {
	Timestamp time.Time `json:"timestamp"`
	Price     float64   `json:"price"`
	Size      float64   `json:"size"`
}

// Quote is the latest top-of-book and session summary. Fields are
// last-write-wins: a partial update leaves the other fields untouched.
type Quote struct {
	Bid           float64   `json:"bid"`
	Ask           float64   `json:"ask"`
	BidSize       float64   `json:"bidSize"`
	AskSize       float64   `json:"askSize"`
	Last          float64   `json:"last"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Volume        float64   `json:"volume"`
	ChangePercent float64   `json:"changePercent"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Mid returns the bid/ask midpoint, falling back to the last trade price
// when the book is one-sided or empty.
func (q Quote) Mid() float64 {
	if q.Bid > 0 && q.Ask > 0 {
		return (q.Bid + q.Ask) / 2
	}
	return q.Last
}

// QuoteUpdate carries a partial quote from the feed. Nil fields mean
// "not present in this update" and retain the prior value.
type QuoteUpdate struct {
	Bid           *float64
	Ask           *float64
	BidSize       *float64
	AskSize       *float64
	Last          *float64
	Open          *float64
	High          *float64
	Low           *float64
	Volume        *float64
	ChangePercent *float64
}

// DepthLevel is one order book level, keyed by position.
type DepthLevel struct {
	Position int     `json:"position"`
	Size     float64 `json:"size"`
	Side     string  `json:"side"`
}

// Bar is a fixed-interval OHLCV bar. Mutable while current, immutable once
// appended to history.
type Bar struct {
	IntervalStart time.Time `json:"intervalStart"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
}

// PriceLevel is one volume profile level.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// ProfileSummary is the volume profile view carried in a snapshot.
type ProfileSummary struct {
	POC         float64      `json:"poc"`
	POCVolume   float64      `json:"pocVolume"`
	TotalVolume float64      `json:"totalVolume"`
	ValueArea   []PriceLevel `json:"valueArea"`
}

// DeltaSummary is the cumulative delta view carried in a snapshot.
type DeltaSummary struct {
	BidVolume float64 `json:"bidVolume"`
	AskVolume float64 `json:"askVolume"`
	Delta     float64 `json:"delta"`
	Ratio     float64 `json:"ratio"`
}

// Snapshot is an immutable-at-read composite of the market state, assembled
// under a single consistent read. Strategies consume snapshots only.
type Snapshot struct {
	Time        time.Time       `json:"time"`
	Quote       Quote           `json:"quote"`
	Depth       []DepthLevel    `json:"depth"`
	RecentTicks []Tick          `json:"recentTicks"`
	Bars        map[int][]Bar   `json:"bars"`
	CurrentBars map[int]*Bar    `json:"currentBars"`
	Profile     ProfileSummary  `json:"profile"`
	Delta       DeltaSummary    `json:"delta"`
}

// LastPrice returns the best available trade price in the snapshot: last
// trade, then bid/ask mid, then the newest current bar close.
func (s *Snapshot) LastPrice() (float64, bool) {
	if s.Quote.Last > 0 {
		return s.Quote.Last, true
	}
	if mid := s.Quote.Mid(); mid > 0 {
		return mid, true
	}
	for _, b := range s.CurrentBars {
		if b != nil && b.Close > 0 {
			return b.Close, true
		}
	}
	return 0, false
}

// Closes returns up to n most recent closed-bar closes for the given
// interval width, ordered oldest to newest.
func (s *Snapshot) Closes(interval, n int) []float64 {
	bars := s.Bars[interval]
	if len(bars) > n {
		bars = bars[len(bars)-n:]
	}
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
