package execution

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"futures-trader/internal/events"
	"futures-trader/internal/strategy"
)

// executeSimulated opens the paper position. No broker round trip: the
// entry fills instantly at the reference price.
func (e *Engine) executeSimulated(sig *strategy.Signal, size int) error {
	entry, err := e.entryReference(sig)
	if err != nil {
		return err
	}

	e.simMu.Lock()
	if e.sim != nil {
		id := e.sim.ID
		e.simMu.Unlock()
		e.log.WithField("active", id).Info("Simulated entry rejected, trade already open")
		return fmt.Errorf("execution: simulated trade %s already open", id)
	}
	stop, target := e.bracket(entry, sig.Direction, sig.StopLossTicks, sig.TakeProfitTicks)
	trade := &SimulatedTrade{
		ID:          newTradeID(),
		Strategy:    sig.Strategy,
		ContractID:  sig.ContractID,
		Direction:   sig.Direction,
		Size:        size,
		EntryPrice:  entry,
		StopPrice:   stop,
		TargetPrice: target,
		State:       SimStateOpen,
		OpenedAt:    nowUTC(),
	}
	e.sim = trade
	// Copy before unlock: the slot pointer is mutated by updateSimPrice once
	// the lock drops, so the published event must not re-read it.
	published := *trade
	e.simMu.Unlock()

	e.log.WithFields(logrus.Fields{
		"id":       published.ID,
		"strategy": published.Strategy,
		"dir":      published.Direction,
		"size":     size,
		"entry":    entry,
		"stop":     stop,
		"target":   target,
	}).Info("📈 Simulated trade opened")
	if e.bus != nil {
		e.bus.Publish(events.TradeOpened, published)
	}
	return nil
}

// updateSimPrice recomputes unrealized PnL and checks the bracket,
// take-profit before stop-loss: on a gap that crosses both levels in one
// update, TP wins.
func (e *Engine) updateSimPrice(price float64) {
	e.simMu.Lock()
	trade := e.sim
	if trade == nil || trade.State != SimStateOpen {
		e.simMu.Unlock()
		return
	}

	trade.UnrealizedPnl = e.pnl(trade.EntryPrice, price, trade.Direction, trade.Size)

	sign := trade.Direction.Sign()
	var reason string
	switch {
	case (price-trade.TargetPrice)*sign >= 0:
		reason = ExitTakeProfit
	case (price-trade.StopPrice)*sign <= 0:
		reason = ExitStopLoss
	default:
		e.simMu.Unlock()
		return
	}

	// Exit fills at the triggering price, not the bracket level.
	trade.State = SimStateClosed
	rec := TradeRecord{
		ID:          trade.ID,
		Strategy:    trade.Strategy,
		ContractID:  trade.ContractID,
		Direction:   trade.Direction,
		Size:        trade.Size,
		EntryPrice:  trade.EntryPrice,
		ExitPrice:   price,
		StopPrice:   trade.StopPrice,
		TargetPrice: trade.TargetPrice,
		Pnl:         e.pnl(trade.EntryPrice, price, trade.Direction, trade.Size),
		ExitReason:  reason,
		Live:        false,
		OpenedAt:    trade.OpenedAt,
		ClosedAt:    nowUTC(),
	}
	e.simLog = append(e.simLog, rec)
	e.simPnl += rec.Pnl
	e.sim = nil // slot free for the next entry
	e.simMu.Unlock()

	e.log.WithFields(logrus.Fields{
		"id":     rec.ID,
		"reason": reason,
		"exit":   price,
		"pnl":    rec.Pnl,
	}).Info("📉 Simulated trade closed")
	e.dispatch(rec)
}
