package execution

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"futures-trader/internal/broker"
	"futures-trader/internal/events"
	"futures-trader/internal/market"
	"futures-trader/internal/strategy"
)

// Config holds the contract economics and default bracket widths.
type Config struct {
	TickSize           float64 // price increment, e.g. 0.25
	TickValue          float64 // dollars per tick per contract, e.g. 12.50
	DefaultStopTicks   int
	DefaultTargetTicks int

	// LastPrice supplies the live market price when a signal carries no
	// expected entry. May be nil; entry then fails.
	LastPrice func() (float64, bool)
}

// Engine runs both trade state machines. The simulated and live slots have
// independent mutexes so paper trading never contends with the live path.
type Engine struct {
	cfg    Config
	broker broker.Broker
	bus    *events.Bus
	log    *logrus.Logger

	recMu     sync.RWMutex
	recorders []Recorder

	simMu  sync.Mutex
	sim    *SimulatedTrade
	simLog []TradeRecord
	simPnl float64

	liveMu  sync.Mutex
	live    *LiveTrade
	liveLog []TradeRecord
	livePnl float64
}

// NewEngine applies ES-style defaults: 0.25 tick, $12.50 per tick, 6-tick
// stop, 10-tick target.
func NewEngine(cfg Config, b broker.Broker, bus *events.Bus, log *logrus.Logger) *Engine {
	if cfg.TickSize <= 0 {
		cfg.TickSize = 0.25
	}
	if cfg.TickValue <= 0 {
		cfg.TickValue = 12.50
	}
	if cfg.DefaultStopTicks <= 0 {
		cfg.DefaultStopTicks = 6
	}
	if cfg.DefaultTargetTicks <= 0 {
		cfg.DefaultTargetTicks = 10
	}
	return &Engine{cfg: cfg, broker: b, bus: bus, log: log}
}

// AddRecorder registers a sink for completed trade records.
func (e *Engine) AddRecorder(r Recorder) {
	e.recMu.Lock()
	defer e.recMu.Unlock()
	e.recorders = append(e.recorders, r)
}

// ExecuteTrade opens a trade in the requested mode. The slot check and the
// slot claim happen under one lock, so concurrent entries race for a single
// winner; the loser gets an error, never a queue.
func (e *Engine) ExecuteTrade(sig *strategy.Signal, live bool, size int) error {
	if sig == nil {
		return fmt.Errorf("execution: nil signal")
	}
	if size <= 0 {
		return fmt.Errorf("execution: non-positive size %d", size)
	}
	if live {
		return e.executeLive(sig, size)
	}
	return e.executeSimulated(sig, size)
}

// UpdatePrice drives the SL/TP checks for the given mode.
func (e *Engine) UpdatePrice(price float64, live bool) {
	if price <= 0 {
		return
	}
	if live {
		e.updateLivePrice(price)
		return
	}
	e.updateSimPrice(price)
}

// ActiveSimTrade returns a copy of the open simulated trade, nil if none.
func (e *Engine) ActiveSimTrade() *SimulatedTrade {
	e.simMu.Lock()
	defer e.simMu.Unlock()
	if e.sim == nil {
		return nil
	}
	c := *e.sim
	return &c
}

// ActiveLiveTrade returns a copy of the tracked live trade, nil if none.
func (e *Engine) ActiveLiveTrade() *LiveTrade {
	e.liveMu.Lock()
	defer e.liveMu.Unlock()
	if e.live == nil {
		return nil
	}
	c := *e.live
	return &c
}

// TradeLogAndClear drains the completed-trade log for a mode.
func (e *Engine) TradeLogAndClear(live bool) []TradeRecord {
	if live {
		e.liveMu.Lock()
		defer e.liveMu.Unlock()
		out := e.liveLog
		e.liveLog = nil
		return out
	}
	e.simMu.Lock()
	defer e.simMu.Unlock()
	out := e.simLog
	e.simLog = nil
	return out
}

// TotalPnl returns the accumulated realized PnL for a mode.
func (e *Engine) TotalPnl(live bool) float64 {
	if live {
		e.liveMu.Lock()
		defer e.liveMu.Unlock()
		return e.livePnl
	}
	e.simMu.Lock()
	defer e.simMu.Unlock()
	return e.simPnl
}

// ResetPnlAndTrades zeroes the mode's realized PnL and clears its log and
// active slot. Called on mode switch or day rollover; an abandoned active
// trade is logged loudly since its position may still exist externally.
func (e *Engine) ResetPnlAndTrades(live bool) {
	if live {
		e.liveMu.Lock()
		defer e.liveMu.Unlock()
		if e.live != nil && e.live.Active() {
			e.log.WithField("trade", e.live.ID).Warn("⚠️ Resetting live mode with an active trade, position may remain externally")
		}
		e.live = nil
		e.liveLog = nil
		e.livePnl = 0
		return
	}
	e.simMu.Lock()
	defer e.simMu.Unlock()
	e.sim = nil
	e.simLog = nil
	e.simPnl = 0
}

// pnl converts a price move into dollars for size contracts.
func (e *Engine) pnl(entry, price float64, dir market.Direction, size int) float64 {
	return (price - entry) * dir.Sign() * (e.cfg.TickValue / e.cfg.TickSize) * float64(size)
}

// bracket computes direction-aware stop and target prices from an entry
// reference, falling back to the default tick widths.
func (e *Engine) bracket(entry float64, dir market.Direction, stopTicks, targetTicks int) (stop, target float64) {
	if stopTicks <= 0 {
		stopTicks = e.cfg.DefaultStopTicks
	}
	if targetTicks <= 0 {
		targetTicks = e.cfg.DefaultTargetTicks
	}
	stop = entry - dir.Sign()*float64(stopTicks)*e.cfg.TickSize
	target = entry + dir.Sign()*float64(targetTicks)*e.cfg.TickSize
	return stop, target
}

// entryReference resolves the price brackets are computed from: the
// signal's expected entry when present, the live market price otherwise.
func (e *Engine) entryReference(sig *strategy.Signal) (float64, error) {
	if sig.EntryPrice > 0 {
		return sig.EntryPrice, nil
	}
	if e.cfg.LastPrice != nil {
		if p, ok := e.cfg.LastPrice(); ok {
			return p, nil
		}
	}
	return 0, fmt.Errorf("execution: no entry price on signal and no market price available")
}

// dispatch fans a completed record out to the recorders and publishes the
// closed event. Callers hold no locks here.
func (e *Engine) dispatch(rec TradeRecord) {
	e.recMu.RLock()
	recorders := e.recorders
	e.recMu.RUnlock()
	for _, r := range recorders {
		r.Record(rec)
	}
	if e.bus != nil {
		e.bus.Publish(events.TradeClosed, rec)
	}
}

func newTradeID() string { return uuid.NewString() }

func nowUTC() time.Time { return time.Now().UTC() }
