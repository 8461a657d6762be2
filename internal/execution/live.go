package execution

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"futures-trader/internal/events"
	"futures-trader/internal/strategy"
)

// executeLive submits the entry order and claims the live slot. The trade
// starts in PENDING_ENTRY_FILL with a nil entry price; brackets are
// computed from the signal's expected entry (or the live price) and may
// therefore sit slightly off the eventual fill.
func (e *Engine) executeLive(sig *strategy.Signal, size int) error {
	if e.broker == nil {
		return fmt.Errorf("execution: no broker configured for live trading")
	}
	ref, err := e.entryReference(sig)
	if err != nil {
		return err
	}

	e.liveMu.Lock()
	if e.live != nil && e.live.Active() {
		id, state := e.live.ID, e.live.State
		e.liveMu.Unlock()
		e.log.WithFields(logrus.Fields{"active": id, "state": state}).
			Info("Live entry rejected, a trade is already tracked")
		return fmt.Errorf("execution: live trade %s active in state %s", id, state)
	}
	stop, target := e.bracket(ref, sig.Direction, sig.StopLossTicks, sig.TakeProfitTicks)
	trade := &LiveTrade{
		ID:          newTradeID(),
		Strategy:    sig.Strategy,
		ContractID:  sig.ContractID,
		Direction:   sig.Direction,
		Size:        size,
		StopPrice:   stop,
		TargetPrice: target,
		State:       LiveStatePendingEntryFill,
		OpenedAt:    nowUTC(),
	}
	e.live = trade
	e.liveMu.Unlock()

	orderID, err := e.broker.SubmitMarketOrder(sig.ContractID, sig.Direction, size)
	if err != nil {
		// Entry never reached the broker; release the slot.
		e.liveMu.Lock()
		if e.live != nil && e.live.ID == trade.ID {
			e.live = nil
		}
		e.liveMu.Unlock()
		return fmt.Errorf("execution: live entry submission: %w", err)
	}

	e.liveMu.Lock()
	if e.live != nil && e.live.ID == trade.ID {
		e.live.ClientOrderID = orderID
	}
	// Copy before unlock: OnPositionUpdate and updateLivePrice mutate the
	// slot pointer concurrently once the lock drops.
	published := *trade
	e.liveMu.Unlock()

	e.log.WithFields(logrus.Fields{
		"id":       published.ID,
		"orderId":  orderID,
		"strategy": sig.Strategy,
		"dir":      sig.Direction,
		"size":     size,
		"stop":     stop,
		"target":   target,
	}).Info("📈 Live entry order submitted, awaiting fill")
	if e.bus != nil {
		e.bus.Publish(events.TradeOpened, published)
	}
	return nil
}

// OnPositionUpdate consumes the asynchronous account-feed position event.
// It resolves a pending entry's fill price and quantity, and a quantity of
// zero confirms the closure of a trade whose exit order went out.
func (e *Engine) OnPositionUpdate(contractID string, entryPrice float64, quantity int) {
	e.liveMu.Lock()
	trade := e.live
	if trade == nil || trade.ContractID != contractID {
		e.liveMu.Unlock()
		return
	}

	switch trade.State {
	case LiveStatePendingEntryFill, LiveStatePartialFill, LiveStateOpen:
		if quantity <= 0 {
			// Flat before our entry filled, or closed externally. Drop the
			// tracked trade without a record; there is nothing to book.
			e.log.WithField("id", trade.ID).Warn("⚠️ Position reported flat while entry tracked, releasing slot")
			e.live = nil
			e.liveMu.Unlock()
			return
		}
		if entryPrice > 0 {
			p := entryPrice
			trade.EntryPrice = &p
		}
		trade.FilledSize = quantity
		if quantity < trade.Size {
			trade.State = LiveStatePartialFill
		} else {
			trade.State = LiveStateOpen
		}
		id, state := trade.ID, trade.State
		e.liveMu.Unlock()
		e.log.WithFields(logrus.Fields{
			"id":    id,
			"state": state,
			"entry": entryPrice,
			"qty":   quantity,
		}).Info("Live position update applied")
		return

	case LiveStateClosingPending, LiveStateClosingOrderSent:
		if quantity != 0 {
			e.liveMu.Unlock()
			return
		}
		trade.State = LiveStateClosed
		entry := 0.0
		if trade.EntryPrice != nil {
			entry = *trade.EntryPrice
		}
		rec := TradeRecord{
			ID:          trade.ID,
			Strategy:    trade.Strategy,
			ContractID:  trade.ContractID,
			Direction:   trade.Direction,
			Size:        trade.Size,
			EntryPrice:  entry,
			ExitPrice:   trade.exitPrice,
			StopPrice:   trade.StopPrice,
			TargetPrice: trade.TargetPrice,
			Pnl:         e.pnl(entry, trade.exitPrice, trade.Direction, trade.Size),
			ExitReason:  trade.exitReason,
			Live:        true,
			OpenedAt:    trade.OpenedAt,
			ClosedAt:    nowUTC(),
		}
		e.liveLog = append(e.liveLog, rec)
		e.livePnl += rec.Pnl
		e.live = nil
		e.liveMu.Unlock()

		e.log.WithFields(logrus.Fields{
			"id":     rec.ID,
			"reason": rec.ExitReason,
			"pnl":    rec.Pnl,
		}).Info("📉 Live trade closure confirmed")
		e.dispatch(rec)
		return

	default:
		e.liveMu.Unlock()
	}
}

// updateLivePrice applies the client-side bracket to the live trade. Checks
// are suspended until the entry price is known; TP beats SL on a gap, same
// as the simulated path. The closing order goes out on a separate goroutine
// after the state has already moved to CLOSING_PENDING, so re-triggering
// and new entries are blocked the instant the exit decision is made.
func (e *Engine) updateLivePrice(price float64) {
	e.liveMu.Lock()
	trade := e.live
	if trade == nil || (trade.State != LiveStateOpen && trade.State != LiveStatePartialFill) || trade.EntryPrice == nil {
		e.liveMu.Unlock()
		return
	}

	trade.UnrealizedPnl = e.pnl(*trade.EntryPrice, price, trade.Direction, trade.Size)

	sign := trade.Direction.Sign()
	var reason string
	switch {
	case (price-trade.TargetPrice)*sign >= 0:
		reason = ExitTakeProfit
	case (price-trade.StopPrice)*sign <= 0:
		reason = ExitStopLoss
	default:
		e.liveMu.Unlock()
		return
	}

	trade.State = LiveStateClosingPending
	trade.exitPrice = price
	trade.exitReason = reason
	id := trade.ID
	contract := trade.ContractID
	closeDir := trade.Direction.Opposite()
	size := trade.Size
	e.liveMu.Unlock()

	e.log.WithFields(logrus.Fields{
		"id":     id,
		"reason": reason,
		"price":  price,
	}).Info("🎯 Live exit triggered, submitting close order")

	go func() {
		_, err := e.broker.SubmitMarketOrder(contract, closeDir, size)

		e.liveMu.Lock()
		t := e.live
		if t == nil || t.ID != id || t.State != LiveStateClosingPending {
			e.liveMu.Unlock()
			return
		}
		if err != nil {
			t.State = LiveStateExitOrderFailed
			e.liveMu.Unlock()
			// Not auto-retried: the position is still open externally and
			// needs manual intervention.
			e.log.WithFields(logrus.Fields{
				"id":    id,
				"error": err,
			}).Error("🚨 Close order submission FAILED, manual intervention required")
			return
		}
		t.State = LiveStateClosingOrderSent
		e.liveMu.Unlock()
		e.log.WithField("id", id).Info("Close order accepted, awaiting confirmation")
	}()
}
