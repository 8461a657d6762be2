// Package risk owns position sizing, the dynamic daily-loss limit, margin
// checks and the trading cooldown state machine. Nothing else mutates this
// state; the agent feeds it PnL updates and asks it to gate trades.
package risk

import (
	"fmt"
	"math"
	"sync"

	"github.com/sirupsen/logrus"

	"futures-trader/internal/events"
	"futures-trader/internal/strategy"
)

// Account is the slice of the broker account surface the risk engine needs.
// Equity reports ok=false when the balance has not been learned yet; sizing
// then fails closed.
type Account interface {
	Equity() (float64, bool)
	MarginRequirement(contractID string, size int) (float64, error)
}

// Rejection is a first-class risk outcome, not an error: the trade is
// refused and the reason travels with the signal for downstream logging.
type Rejection struct {
	Signal *strategy.Signal
	Reason string
}

// Transition is the payload published on cooldown breach and recovery.
type Transition struct {
	Pnl   float64 `json:"pnl"`
	Limit float64 `json:"limit"`
}

// Config holds the engine's tunables.
type Config struct {
	InitialMaxDailyLoss float64 // positive dollar amount, e.g. 1000
}

// Engine is the risk gate. All state behind one mutex; methods are safe for
// the evaluation loop and the PnL feed to call concurrently.
type Engine struct {
	mu sync.Mutex

	initialMaxDailyLoss float64
	currentMaxDailyLoss float64
	currentPnl          float64
	cooldownActive      bool

	account Account
	bus     *events.Bus
	log     *logrus.Logger
}

// NewEngine builds the engine. bus may be nil when no event fan-out is
// wanted (tests).
func NewEngine(cfg Config, account Account, bus *events.Bus, log *logrus.Logger) *Engine {
	if cfg.InitialMaxDailyLoss <= 0 {
		cfg.InitialMaxDailyLoss = 1000
	}
	return &Engine{
		initialMaxDailyLoss: cfg.InitialMaxDailyLoss,
		currentMaxDailyLoss: cfg.InitialMaxDailyLoss,
		account:             account,
		bus:                 bus,
		log:                 log,
	}
}

// OnPnlUpdate applies one realized-PnL observation. Positive PnL ratchets
// the loss budget up (trailing: max(initial, pnl*0.3)); non-positive PnL
// restores the initial budget. Crossing the budget activates the cooldown,
// recovering past half the initial budget clears it. Both transitions are
// idempotent and log/publish only once.
func (e *Engine) OnPnlUpdate(pnl float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.currentPnl = pnl
	if pnl > 0 {
		e.currentMaxDailyLoss = math.Max(e.initialMaxDailyLoss, pnl*0.3)
	} else {
		e.currentMaxDailyLoss = e.initialMaxDailyLoss
	}

	if pnl <= -math.Abs(e.currentMaxDailyLoss) {
		if !e.cooldownActive {
			e.cooldownActive = true
			e.log.WithFields(logrus.Fields{
				"pnl":   pnl,
				"limit": e.currentMaxDailyLoss,
			}).Warn("🚨 Max daily loss breached, trading cooldown activated")
			if e.bus != nil {
				e.bus.Publish(events.RiskBreach, Transition{Pnl: pnl, Limit: e.currentMaxDailyLoss})
			}
		}
		return
	}

	if e.cooldownActive && pnl > -math.Abs(e.initialMaxDailyLoss)*0.5 {
		e.cooldownActive = false
		e.log.WithField("pnl", pnl).Info("PnL recovered, cooldown deactivated")
		if e.bus != nil {
			e.bus.Publish(events.RiskRecovered, Transition{Pnl: pnl, Limit: e.currentMaxDailyLoss})
		}
	}
}

// CooldownActive reports whether trading is currently suspended.
func (e *Engine) CooldownActive() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cooldownActive
}

// CurrentPnl returns the last observed daily PnL.
func (e *Engine) CurrentPnl() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentPnl
}

// CurrentMaxDailyLoss returns the active loss budget.
func (e *Engine) CurrentMaxDailyLoss() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentMaxDailyLoss
}

// SizePosition is the simplified equity-tier sizing. It fails closed: 0
// contracts when equity is unknown or non-positive. Otherwise
// base = floor(equity/10000), effective confidence = max(confidence, 0.6),
// size = max(1, floor(base * effective)). Note base == 0 still yields 1;
// callers that want "too small to trade" must check equity directly.
func (e *Engine) SizePosition(equity float64, known bool, confidence float64) int {
	if !known || equity <= 0 {
		return 0
	}
	base := int(equity / 10000)
	effective := math.Max(confidence, 0.6)
	size := int(float64(base) * effective)
	if size < 1 {
		size = 1
	}
	return size
}

// SizeByVolatility is the alternative volatility-scaled sizing:
// base = floor(equity / (volatility*1000)), then the same confidence floor
// and minimum of 1. It is not part of the default pipeline; SizePosition is
// authoritative.
func (e *Engine) SizeByVolatility(equity float64, known bool, volatility, confidence float64) int {
	if !known || equity <= 0 {
		return 0
	}
	effVol := math.Max(volatility, 0.01)
	base := int(equity / (effVol * 1000))
	effective := math.Max(confidence, 0.6)
	size := int(float64(base) * effective)
	if size < 1 {
		size = 1
	}
	return size
}

// ValidateTrade is the composite pre-trade gate: cooldown, then margin
// against available equity. A nil Rejection with nil error means allowed.
// The error covers transient margin/equity fetch failures only; it is not a
// rejection and the caller decides whether to retry the cycle.
func (e *Engine) ValidateTrade(sig *strategy.Signal, size int) (*Rejection, error) {
	if e.CooldownActive() {
		r := &Rejection{Signal: sig, Reason: "trading cooldown active"}
		e.log.WithField("strategy", sig.Strategy).Info("🛑 Trade rejected: cooldown active")
		return r, nil
	}

	equity, ok := e.account.Equity()
	if !ok {
		return nil, fmt.Errorf("risk: account equity unavailable")
	}
	required, err := e.account.MarginRequirement(sig.ContractID, size)
	if err != nil {
		return nil, fmt.Errorf("risk: margin requirement for %s: %w", sig.ContractID, err)
	}
	if equity < required {
		reason := fmt.Sprintf("insufficient margin (required $%.2f, available $%.2f)", required, equity)
		e.log.WithFields(logrus.Fields{
			"contract": sig.ContractID,
			"required": required,
			"equity":   equity,
		}).Warn("⚠️ Trade rejected: " + reason)
		return &Rejection{Signal: sig, Reason: reason}, nil
	}
	return nil, nil
}

// ResetDaily restores the engine for a new trading day or a mode switch:
// zero PnL, initial loss budget, cooldown cleared.
func (e *Engine) ResetDaily() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentPnl = 0
	e.currentMaxDailyLoss = e.initialMaxDailyLoss
	e.cooldownActive = false
}
