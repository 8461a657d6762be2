package market

import (
	"sync"
	"time"
)

const (
	// snapshotTicks is the number of recent ticks exposed to strategies.
	snapshotTicks = 20
)

// Config holds the aggregation parameters for a State.
type Config struct {
	Intervals         []int   // bar widths in minutes
	BarCapacity       int     // closed bars kept per width
	TickBuffer        int     // rolling raw tick buffer
	ProfileResolution float64 // price quantization for the volume profile
	ValueAreaFraction float64 // target fraction for the value area
}

// State is the in-memory, thread-safe market state for one contract: quote,
// depth, rolling ticks, bars, volume profile and cumulative delta. It is the
// single source of truth read by strategies and the agent loop.
//
// One RWMutex guards everything so a snapshot is always assembled under a
// single consistent read: bars can never disagree with the quote that
// produced them.
type State struct {
	mu sync.RWMutex

	cfg     Config
	quote   Quote
	depth   map[int]DepthLevel
	ticks   []Tick
	bars    *BarAggregator
	profile *VolumeProfile
	delta   *DeltaTracker
}

// NewState creates a State with the given aggregation parameters.
func NewState(cfg Config) *State {
	if len(cfg.Intervals) == 0 {
		cfg.Intervals = []int{1, 5, 15}
	}
	if cfg.BarCapacity <= 0 {
		cfg.BarCapacity = 200
	}
	if cfg.TickBuffer <= 0 {
		cfg.TickBuffer = 5000
	}
	if cfg.ProfileResolution <= 0 {
		cfg.ProfileResolution = 0.25
	}
	if cfg.ValueAreaFraction <= 0 {
		cfg.ValueAreaFraction = 0.70
	}
	return &State{
		cfg:     cfg,
		depth:   make(map[int]DepthLevel),
		bars:    NewBarAggregator(cfg.Intervals, cfg.BarCapacity),
		profile: NewVolumeProfile(cfg.ProfileResolution),
		delta:   NewDeltaTracker(),
	}
}

// ApplyTrade ingests one executed trade: rolling tick buffer, bars, volume
// profile, cumulative delta, and the last traded price.
func (s *State) ApplyTrade(tick Tick, direction Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks = append(s.ticks, tick)
	if len(s.ticks) > s.cfg.TickBuffer {
		s.ticks = s.ticks[len(s.ticks)-s.cfg.TickBuffer:]
	}
	s.bars.Ingest(tick.Timestamp, tick.Price, tick.Size)
	s.profile.Update(tick.Price, tick.Size)
	s.delta.Update(direction, tick.Size)
	s.quote.Last = tick.Price
	s.quote.UpdatedAt = tick.Timestamp
}

// ApplyQuote merges a partial quote update. Absent fields retain their prior
// value; nothing is ever reset to empty by a partial update.
func (s *State) ApplyQuote(u QuoteUpdate, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	set(&s.quote.Bid, u.Bid)
	set(&s.quote.Ask, u.Ask)
	set(&s.quote.BidSize, u.BidSize)
	set(&s.quote.AskSize, u.AskSize)
	set(&s.quote.Last, u.Last)
	set(&s.quote.Open, u.Open)
	set(&s.quote.High, u.High)
	set(&s.quote.Low, u.Low)
	set(&s.quote.Volume, u.Volume)
	set(&s.quote.ChangePercent, u.ChangePercent)
	s.quote.UpdatedAt = at
}

// ReplaceDepth swaps the full keyed depth set. A depth update replaces, it
// never merges.
func (s *State) ReplaceDepth(levels []DepthLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.depth = make(map[int]DepthLevel, len(levels))
	for _, lvl := range levels {
		s.depth[lvl.Position] = lvl
	}
}

// Quote returns a copy of the current quote.
func (s *State) Quote() Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quote
}

// LastPrice returns the last traded price, falling back to the bid/ask mid.
func (s *State) LastPrice() (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.quote.Last > 0 {
		return s.quote.Last, true
	}
	if mid := s.quote.Mid(); mid > 0 {
		return mid, true
	}
	return 0, false
}

// Snapshot assembles the composite read-only view under one read lock.
func (s *State) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Time:        time.Now().UTC(),
		Quote:       s.quote,
		Depth:       make([]DepthLevel, 0, len(s.depth)),
		Bars:        make(map[int][]Bar, len(s.cfg.Intervals)),
		CurrentBars: make(map[int]*Bar, len(s.cfg.Intervals)),
		Profile:     s.profile.Summary(s.cfg.ValueAreaFraction),
		Delta:       s.delta.Summary(),
	}
	for _, lvl := range s.depth {
		snap.Depth = append(snap.Depth, lvl)
	}
	n := len(s.ticks)
	if n > snapshotTicks {
		snap.RecentTicks = append([]Tick(nil), s.ticks[n-snapshotTicks:]...)
	} else {
		snap.RecentTicks = append([]Tick(nil), s.ticks...)
	}
	for _, interval := range s.cfg.Intervals {
		snap.Bars[interval] = s.bars.History(interval)
		snap.CurrentBars[interval] = s.bars.Current(interval)
	}
	return snap
}

// ResetSession clears the session-scoped indicators (profile and delta)
// while keeping bars and quote intact. Called on trading-day rollover.
func (s *State) ResetSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile.Reset()
	s.delta.Reset()
}
