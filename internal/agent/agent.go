// Package agent orchestrates the trading pipeline: it polls the market
// state, runs the strategy evaluator, gates signals through the risk
// engine, hands sized trades to the scheduler, and drives the execution
// engine's price checks.
package agent

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"futures-trader/internal/broker"
	"futures-trader/internal/config"
	"futures-trader/internal/events"
	"futures-trader/internal/execution"
	"futures-trader/internal/market"
	"futures-trader/internal/performance"
	"futures-trader/internal/risk"
	"futures-trader/internal/scheduler"
	"futures-trader/internal/strategy"
)

// Stats is the periodic status block broadcast to dashboard clients.
type Stats struct {
	Uptime         string                         `json:"uptime"`
	Live           bool                           `json:"live"`
	LastPrice      float64                        `json:"lastPrice"`
	CooldownActive bool                           `json:"cooldownActive"`
	CurrentPnl     float64                        `json:"currentPnl"`
	TotalPnl       float64                        `json:"totalPnl"`
	PendingOrders  int                            `json:"pendingOrders"`
	ActiveSim      *execution.SimulatedTrade      `json:"activeSimTrade,omitempty"`
	ActiveLive     *execution.LiveTrade           `json:"activeLiveTrade,omitempty"`
	Overall        performance.Metrics            `json:"overall"`
	ByStrategy     map[string]performance.Metrics `json:"byStrategy"`
}

// quietWindow is a parsed minute-of-day range during which evaluation is
// suppressed. A window whose start is later than its end wraps across
// midnight (e.g. 23:30-00:15).
type quietWindow struct {
	start int
	end   int
}

func (w quietWindow) contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.start <= w.end {
		return m >= w.start && m < w.end
	}
	return m >= w.start || m < w.end
}

// Agent wires the components together and runs the periodic loops.
type Agent struct {
	cfg      *config.Config
	state    *market.State
	manager  *strategy.Manager
	risk     *risk.Engine
	exec     *execution.Engine
	sched    *scheduler.Scheduler
	accounts *broker.AccountCache
	monitor  *performance.Monitor
	bus      *events.Bus
	log      *logrus.Logger

	quiet []quietWindow
	now   func() time.Time

	mu   sync.Mutex
	live bool

	startTime time.Time
	stop      chan struct{}
	wg        sync.WaitGroup
	once      sync.Once
}

// New builds the agent. The quiet windows come from configuration; a
// malformed window is an error rather than a silently ignored gap.
func New(
	cfg *config.Config,
	st *market.State,
	manager *strategy.Manager,
	riskEngine *risk.Engine,
	exec *execution.Engine,
	sched *scheduler.Scheduler,
	accounts *broker.AccountCache,
	monitor *performance.Monitor,
	bus *events.Bus,
	log *logrus.Logger,
) (*Agent, error) {
	quiet, err := parseQuietWindows(cfg.Agent.QuietWindows)
	if err != nil {
		return nil, err
	}
	return &Agent{
		cfg:      cfg,
		state:    st,
		manager:  manager,
		risk:     riskEngine,
		exec:     exec,
		sched:    sched,
		accounts: accounts,
		monitor:  monitor,
		bus:      bus,
		log:      log,
		quiet:    quiet,
		now:      time.Now,
		live:     cfg.Agent.Live,
		stop:     make(chan struct{}),
	}, nil
}

func parseQuietWindows(windows []config.QuietWindow) ([]quietWindow, error) {
	out := make([]quietWindow, 0, len(windows))
	for _, w := range windows {
		start, err := time.Parse("15:04", w.Start)
		if err != nil {
			return nil, fmt.Errorf("agent: quiet window start %q: %w", w.Start, err)
		}
		end, err := time.Parse("15:04", w.End)
		if err != nil {
			return nil, fmt.Errorf("agent: quiet window end %q: %w", w.End, err)
		}
		out = append(out, quietWindow{
			start: start.Hour()*60 + start.Minute(),
			end:   end.Hour()*60 + end.Minute(),
		})
	}
	return out, nil
}

// Live reports the current trading mode.
func (a *Agent) Live() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// SetLive switches trading mode. The previous mode's PnL, trade log and
// risk state are reset; an active trade in the old mode is abandoned with a
// warning from the execution engine.
func (a *Agent) SetLive(live bool) {
	a.mu.Lock()
	if a.live == live {
		a.mu.Unlock()
		return
	}
	prev := a.live
	a.live = live
	a.mu.Unlock()

	a.exec.ResetPnlAndTrades(prev)
	a.risk.ResetDaily()
	a.monitor.Reset()
	a.log.WithField("live", live).Info("🔀 Trading mode switched")
}

// Start launches the evaluation, price, risk and stats loops.
func (a *Agent) Start() {
	a.startTime = a.now()

	a.wg.Add(4)
	go a.loop(a.cfg.Agent.EvaluateInterval(), a.evaluateOnce)
	go a.loop(a.cfg.Agent.PriceInterval(), a.pricePass)
	go a.loop(2*time.Second, a.riskPass)
	go a.loop(a.cfg.Agent.StatsInterval(), a.statsPass)

	a.log.WithField("live", a.Live()).Info("🤖 Trading agent started")
}

// Stop halts all loops and waits for in-flight passes to finish.
func (a *Agent) Stop() {
	a.once.Do(func() { close(a.stop) })
	a.wg.Wait()
	a.log.Info("Trading agent stopped")
}

func (a *Agent) loop(interval time.Duration, pass func()) {
	defer a.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-t.C:
			pass()
		}
	}
}

// evaluateOnce runs one strategy evaluation cycle end to end: snapshot,
// quiet-window gate, evaluator, risk gate, sizing, scheduling.
func (a *Agent) evaluateOnce() {
	now := a.now()
	for _, w := range a.quiet {
		if w.contains(now) {
			return
		}
	}

	snap := a.state.Snapshot()
	sig := a.manager.Evaluate(snap)
	if sig == nil {
		return
	}
	a.bus.Publish(events.SignalProduced, *sig)

	equity, known := a.accounts.Equity()
	size := a.risk.SizePosition(equity, known, sig.Confidence)
	if size == 0 {
		a.log.WithField("strategy", sig.Strategy).Warn("Signal dropped, sizing returned 0 (equity unknown)")
		a.bus.Publish(events.SignalRejected, risk.Rejection{Signal: sig, Reason: "position size 0"})
		return
	}

	rejection, err := a.risk.ValidateTrade(sig, size)
	if err != nil {
		a.log.WithField("error", err).Warn("Risk validation unavailable, skipping cycle")
		return
	}
	if rejection != nil {
		a.bus.Publish(events.SignalRejected, *rejection)
		return
	}

	live := a.Live()
	if _, err := a.sched.Schedule(sig, size, live, sig.ExecutionTime); err != nil {
		a.log.WithFields(logrus.Fields{
			"strategy": sig.Strategy,
			"error":    err,
		}).Warn("Trade not scheduled")
	}
}

// pricePass feeds the latest price into the active mode's SL/TP checks.
func (a *Agent) pricePass() {
	price, ok := a.state.LastPrice()
	if !ok {
		return
	}
	a.exec.UpdatePrice(price, a.Live())
}

// riskPass feeds the mode's realized PnL into the daily-loss machinery. In
// live mode the account feed's daily PnL is authoritative when known.
func (a *Agent) riskPass() {
	live := a.Live()
	pnl := a.exec.TotalPnl(live)
	if live {
		if accountPnl, ok := a.accounts.DailyPnl(); ok {
			pnl = accountPnl
		}
	}
	a.risk.OnPnlUpdate(pnl)
}

// statsPass publishes the periodic status block.
func (a *Agent) statsPass() {
	live := a.Live()
	price, _ := a.state.LastPrice()
	stats := Stats{
		Uptime:         a.now().Sub(a.startTime).Round(time.Second).String(),
		Live:           live,
		LastPrice:      price,
		CooldownActive: a.risk.CooldownActive(),
		CurrentPnl:     a.risk.CurrentPnl(),
		TotalPnl:       a.exec.TotalPnl(live),
		PendingOrders:  len(a.sched.Pending()),
		ActiveSim:      a.exec.ActiveSimTrade(),
		ActiveLive:     a.exec.ActiveLiveTrade(),
		Overall:        a.monitor.Overall(),
		ByStrategy:     a.monitor.ByStrategy(),
	}
	a.bus.Publish(events.StatsUpdated, stats)
}
