package execution

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"futures-trader/internal/events"
	"futures-trader/internal/market"
	"futures-trader/internal/strategy"
)

type fakeBroker struct {
	mu      sync.Mutex
	orders  []string // submitted order sides, in order
	failAll bool
}

func (b *fakeBroker) SubmitMarketOrder(contractID string, dir market.Direction, size int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failAll {
		return "", errors.New("broker unavailable")
	}
	b.orders = append(b.orders, string(dir))
	return "order-1", nil
}

func (b *fakeBroker) CancelOrder(string) error { return nil }

func (b *fakeBroker) orderCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.orders)
}

type captureRecorder struct {
	mu   sync.Mutex
	recs []TradeRecord
}

func (r *captureRecorder) Record(rec TradeRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
}

func (r *captureRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recs)
}

func newTestEngine(b *fakeBroker) (*Engine, *captureRecorder) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	e := NewEngine(Config{}, b, nil, log)
	rec := &captureRecorder{}
	e.AddRecorder(rec)
	return e, rec
}

func buySignal(entry float64) *strategy.Signal {
	return &strategy.Signal{
		Strategy:        "ICT",
		Direction:       market.Buy,
		Confidence:      0.9,
		EntryPrice:      entry,
		StopLossTicks:   6,
		TakeProfitTicks: 10,
		ContractID:      "CON.F.US.MES.M25",
		Timestamp:       time.Now().UTC(),
	}
}

func TestSimulatedBracketPrices(t *testing.T) {
	e, _ := newTestEngine(&fakeBroker{})
	require.NoError(t, e.ExecuteTrade(buySignal(100.0), false, 2))

	tr := e.ActiveSimTrade()
	require.NotNil(t, tr)
	assert.Equal(t, SimStateOpen, tr.State)
	assert.Equal(t, 98.5, tr.StopPrice, "6 ticks of 0.25 below entry")
	assert.Equal(t, 102.5, tr.TargetPrice, "10 ticks of 0.25 above entry")
}

func TestSimulatedTakeProfitAtExactTarget(t *testing.T) {
	e, rec := newTestEngine(&fakeBroker{})
	require.NoError(t, e.ExecuteTrade(buySignal(100.0), false, 1))

	e.UpdatePrice(101.0, false)
	require.NotNil(t, e.ActiveSimTrade(), "still open below target")

	e.UpdatePrice(102.5, false)
	assert.Nil(t, e.ActiveSimTrade(), "slot cleared on close")

	recs := e.TradeLogAndClear(false)
	require.Len(t, recs, 1)
	assert.Equal(t, ExitTakeProfit, recs[0].ExitReason)
	assert.Equal(t, 102.5, recs[0].ExitPrice, "exit fixed at the triggering price")
	// 10 ticks * $12.50 * 1 contract
	assert.Equal(t, 125.0, recs[0].Pnl)
	assert.Equal(t, 125.0, e.TotalPnl(false))
	assert.Equal(t, 1, rec.count())
}

func TestSimulatedStopLossShort(t *testing.T) {
	e, _ := newTestEngine(&fakeBroker{})
	sig := buySignal(100.0)
	sig.Direction = market.Sell
	require.NoError(t, e.ExecuteTrade(sig, false, 2))

	tr := e.ActiveSimTrade()
	require.NotNil(t, tr)
	assert.Equal(t, 101.5, tr.StopPrice, "short stop above entry")
	assert.Equal(t, 97.5, tr.TargetPrice, "short target below entry")

	e.UpdatePrice(101.75, false)
	recs := e.TradeLogAndClear(false)
	require.Len(t, recs, 1)
	assert.Equal(t, ExitStopLoss, recs[0].ExitReason)
	// Short losing 1.75 points: -1.75/0.25*12.50*2
	assert.Equal(t, -175.0, recs[0].Pnl)
}

func TestSimulatedTPWinsOnGapThroughBothLevels(t *testing.T) {
	// Pathological wide gap: a single update beyond both bracket levels of a
	// long must resolve as TP.
	e, _ := newTestEngine(&fakeBroker{})
	sig := buySignal(100.0)
	sig.StopLossTicks = 400 // stop at 0.0
	require.NoError(t, e.ExecuteTrade(sig, false, 1))

	tr := e.ActiveSimTrade()
	require.NotNil(t, tr)
	assert.Equal(t, 0.0, tr.StopPrice)

	e.UpdatePrice(102.5, false)
	recs := e.TradeLogAndClear(false)
	require.Len(t, recs, 1)
	assert.Equal(t, ExitTakeProfit, recs[0].ExitReason)
}

func TestSimulatedSingleFlight(t *testing.T) {
	e, _ := newTestEngine(&fakeBroker{})
	require.NoError(t, e.ExecuteTrade(buySignal(100.0), false, 1))

	err := e.ExecuteTrade(buySignal(101.0), false, 1)
	assert.Error(t, err, "second entry rejected while one is open")

	e.UpdatePrice(102.5, false)
	assert.NoError(t, e.ExecuteTrade(buySignal(101.0), false, 1), "slot reusable after close")
}

func TestExecuteTradeValidation(t *testing.T) {
	e, _ := newTestEngine(&fakeBroker{})
	assert.Error(t, e.ExecuteTrade(nil, false, 1))
	assert.Error(t, e.ExecuteTrade(buySignal(100.0), false, 0))

	sig := buySignal(0) // no entry price, no LastPrice configured
	assert.Error(t, e.ExecuteTrade(sig, false, 1))
}

func TestEntryFallsBackToMarketPrice(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	e := NewEngine(Config{
		LastPrice: func() (float64, bool) { return 200.0, true },
	}, &fakeBroker{}, nil, log)

	require.NoError(t, e.ExecuteTrade(buySignal(0), false, 1))
	tr := e.ActiveSimTrade()
	require.NotNil(t, tr)
	assert.Equal(t, 200.0, tr.EntryPrice)
}

func TestLiveEntryAwaitsFill(t *testing.T) {
	b := &fakeBroker{}
	e, _ := newTestEngine(b)
	require.NoError(t, e.ExecuteTrade(buySignal(100.0), true, 2))

	tr := e.ActiveLiveTrade()
	require.NotNil(t, tr)
	assert.Equal(t, LiveStatePendingEntryFill, tr.State)
	assert.Nil(t, tr.EntryPrice)
	assert.Equal(t, "order-1", tr.ClientOrderID)
	assert.Equal(t, 1, b.orderCount())

	// SL/TP suspended while the entry price is unknown.
	e.UpdatePrice(90.0, true)
	tr = e.ActiveLiveTrade()
	require.NotNil(t, tr)
	assert.Equal(t, LiveStatePendingEntryFill, tr.State)
}

func TestLiveFillAndTakeProfit(t *testing.T) {
	b := &fakeBroker{}
	e, rec := newTestEngine(b)
	require.NoError(t, e.ExecuteTrade(buySignal(100.0), true, 2))

	e.OnPositionUpdate("CON.F.US.MES.M25", 100.25, 2)
	tr := e.ActiveLiveTrade()
	require.NotNil(t, tr)
	assert.Equal(t, LiveStateOpen, tr.State)
	require.NotNil(t, tr.EntryPrice)
	assert.Equal(t, 100.25, *tr.EntryPrice)

	e.UpdatePrice(102.5, true)
	require.Eventually(t, func() bool {
		tr := e.ActiveLiveTrade()
		return tr != nil && tr.State == LiveStateClosingOrderSent
	}, time.Second, 5*time.Millisecond, "close order goes out async")
	assert.Equal(t, 2, b.orderCount())
	b.mu.Lock()
	assert.Equal(t, string(market.Sell), b.orders[1], "close order is the opposite side")
	b.mu.Unlock()

	// A second price through the bracket must not re-trigger.
	e.UpdatePrice(103.0, true)
	assert.Equal(t, 2, b.orderCount())

	// External confirmation: flat position.
	e.OnPositionUpdate("CON.F.US.MES.M25", 0, 0)
	assert.Nil(t, e.ActiveLiveTrade())

	recs := e.TradeLogAndClear(true)
	require.Len(t, recs, 1)
	assert.Equal(t, ExitTakeProfit, recs[0].ExitReason)
	assert.Equal(t, 102.5, recs[0].ExitPrice)
	assert.True(t, recs[0].Live)
	// (102.5-100.25)/0.25 * 12.50 * 2 = 225
	assert.Equal(t, 225.0, recs[0].Pnl)
	assert.Equal(t, 1, rec.count())
}

func TestLivePartialFill(t *testing.T) {
	e, _ := newTestEngine(&fakeBroker{})
	require.NoError(t, e.ExecuteTrade(buySignal(100.0), true, 3))

	e.OnPositionUpdate("CON.F.US.MES.M25", 100.0, 1)
	tr := e.ActiveLiveTrade()
	require.NotNil(t, tr)
	assert.Equal(t, LiveStatePartialFill, tr.State)
	assert.Equal(t, 1, tr.FilledSize)

	e.OnPositionUpdate("CON.F.US.MES.M25", 100.0, 3)
	tr = e.ActiveLiveTrade()
	require.NotNil(t, tr)
	assert.Equal(t, LiveStateOpen, tr.State)
}

func TestLiveExitOrderFailureIsFatal(t *testing.T) {
	b := &fakeBroker{}
	e, _ := newTestEngine(b)
	require.NoError(t, e.ExecuteTrade(buySignal(100.0), true, 1))
	e.OnPositionUpdate("CON.F.US.MES.M25", 100.0, 1)

	b.mu.Lock()
	b.failAll = true
	b.mu.Unlock()

	e.UpdatePrice(98.0, true)
	require.Eventually(t, func() bool {
		tr := e.ActiveLiveTrade()
		return tr != nil && tr.State == LiveStateExitOrderFailed
	}, time.Second, 5*time.Millisecond)

	// The failed trade still owns the slot: no auto-retry, no new entries.
	b.mu.Lock()
	b.failAll = false
	b.mu.Unlock()
	e.UpdatePrice(97.0, true)
	tr := e.ActiveLiveTrade()
	require.NotNil(t, tr)
	assert.Equal(t, LiveStateExitOrderFailed, tr.State)
	assert.Error(t, e.ExecuteTrade(buySignal(97.0), true, 1))
}

func TestLiveEntrySubmissionFailureReleasesSlot(t *testing.T) {
	b := &fakeBroker{failAll: true}
	e, _ := newTestEngine(b)
	assert.Error(t, e.ExecuteTrade(buySignal(100.0), true, 1))
	assert.Nil(t, e.ActiveLiveTrade())
}

func TestLiveSingleFlight(t *testing.T) {
	e, _ := newTestEngine(&fakeBroker{})
	require.NoError(t, e.ExecuteTrade(buySignal(100.0), true, 1))
	assert.Error(t, e.ExecuteTrade(buySignal(100.0), true, 1))
}

func TestResetPnlAndTrades(t *testing.T) {
	e, _ := newTestEngine(&fakeBroker{})
	require.NoError(t, e.ExecuteTrade(buySignal(100.0), false, 1))
	e.UpdatePrice(102.5, false)
	require.Equal(t, 125.0, e.TotalPnl(false))

	e.ResetPnlAndTrades(false)
	assert.Equal(t, 0.0, e.TotalPnl(false))
	assert.Empty(t, e.TradeLogAndClear(false))
	assert.Nil(t, e.ActiveSimTrade())
}

// Entry and price updates run on different goroutines in the wired system
// (scheduler sweep vs the agent's price loop). The opened-trade event must be
// a copy taken under the slot lock, never a re-read of the live slot; run
// with the race detector to verify.
func TestConcurrentEntryAndPriceUpdates(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	bus := events.NewBus()
	e := NewEngine(Config{}, &fakeBroker{}, bus, log)

	ch, cancel := bus.Subscribe(256)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for range ch {
		}
	}()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				e.UpdatePrice(102.5, false) // closes an open long at TP
				e.UpdatePrice(102.5, true)
				e.OnPositionUpdate("CON.F.US.MES.M25", 100.0, 1)
				e.OnPositionUpdate("CON.F.US.MES.M25", 0, 0)
			}
		}
	}()

	for i := 0; i < 200; i++ {
		e.ExecuteTrade(buySignal(100.0), false, 1) // slot-busy errors expected
		e.ExecuteTrade(buySignal(100.0), true, 1)
	}
	close(stop)
	wg.Wait()
	cancel()
	<-done

	closed := len(e.TradeLogAndClear(false))
	assert.Equal(t, 125.0*float64(closed), e.TotalPnl(false),
		"every booked close is a full TP, no torn state")
}

func TestPositionUpdateForOtherContractIgnored(t *testing.T) {
	e, _ := newTestEngine(&fakeBroker{})
	require.NoError(t, e.ExecuteTrade(buySignal(100.0), true, 1))

	e.OnPositionUpdate("CON.F.US.MNQ.M25", 15000.0, 1)
	tr := e.ActiveLiveTrade()
	require.NotNil(t, tr)
	assert.Equal(t, LiveStatePendingEntryFill, tr.State)
}
