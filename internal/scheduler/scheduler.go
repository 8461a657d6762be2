// Package scheduler holds signals destined for a future execution time and
// fires them into the execution engine when due.
package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"futures-trader/internal/events"
	"futures-trader/internal/strategy"
)

const sweepInterval = 500 * time.Millisecond

// TradeExecutor is the slice of the execution engine the scheduler needs.
type TradeExecutor interface {
	ExecuteTrade(sig *strategy.Signal, live bool, size int) error
}

// ScheduledOrder is one pending deferred execution.
type ScheduledOrder struct {
	ID            string           `json:"id"`
	Signal        *strategy.Signal `json:"signal"`
	Size          int              `json:"size"`
	Live          bool             `json:"live"`
	ExecutionTime time.Time        `json:"executionTime"`
	CreatedAt     time.Time        `json:"createdAt"`
}

// Config tunes the scheduler.
type Config struct {
	MaxPendingPerContract int // admission guard, default 1
	Now                   func() time.Time
}

// Scheduler maps schedule ids to pending orders. Firing and cancellation
// both remove the order from the map under the mutex before acting, so for
// any order exactly one of them wins.
type Scheduler struct {
	cfg  Config
	exec TradeExecutor
	bus  *events.Bus
	log  *logrus.Logger

	mu     sync.Mutex
	orders map[string]*ScheduledOrder

	stop chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

// New builds a scheduler; bus may be nil.
func New(cfg Config, exec TradeExecutor, bus *events.Bus, log *logrus.Logger) *Scheduler {
	if cfg.MaxPendingPerContract <= 0 {
		cfg.MaxPendingPerContract = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Scheduler{
		cfg:    cfg,
		exec:   exec,
		bus:    bus,
		log:    log,
		orders: make(map[string]*ScheduledOrder),
		stop:   make(chan struct{}),
	}
}

// Schedule stores a deferred order, or executes immediately when the
// execution time is zero or already past. The admission guard rejects a new
// order for a contract that already has its limit pending.
func (s *Scheduler) Schedule(sig *strategy.Signal, size int, live bool, executionTime time.Time) (string, error) {
	if sig == nil {
		return "", fmt.Errorf("scheduler: nil signal")
	}
	now := s.cfg.Now()
	if executionTime.IsZero() || !executionTime.After(now) {
		return "", s.exec.ExecuteTrade(sig, live, size)
	}

	s.mu.Lock()
	pending := 0
	for _, o := range s.orders {
		if o.Signal.ContractID == sig.ContractID {
			pending++
		}
	}
	if pending >= s.cfg.MaxPendingPerContract {
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{
			"contract": sig.ContractID,
			"pending":  pending,
		}).Info("Scheduling rejected, contract already has a pending order")
		return "", fmt.Errorf("scheduler: contract %s already has %d pending order(s)", sig.ContractID, pending)
	}
	order := &ScheduledOrder{
		ID:            uuid.NewString(),
		Signal:        sig,
		Size:          size,
		Live:          live,
		ExecutionTime: executionTime,
		CreatedAt:     now,
	}
	s.orders[order.ID] = order
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"id":       order.ID,
		"contract": sig.ContractID,
		"at":       executionTime.Format(time.RFC3339),
	}).Info("⏰ Order scheduled")
	if s.bus != nil {
		s.bus.Publish(events.OrderScheduled, *order)
	}
	return order.ID, nil
}

// Cancel removes every not-yet-fired order for the contract and returns how
// many were removed. An order the sweep has already popped cannot be
// cancelled.
func (s *Scheduler) Cancel(contractID string) int {
	s.mu.Lock()
	var removed int
	for id, o := range s.orders {
		if o.Signal.ContractID == contractID {
			delete(s.orders, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.log.WithFields(logrus.Fields{
			"contract": contractID,
			"removed":  removed,
		}).Info("Scheduled orders cancelled")
	}
	return removed
}

// Pending returns copies of all stored orders.
func (s *Scheduler) Pending() []ScheduledOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledOrder, 0, len(s.orders))
	for _, o := range s.orders {
		out = append(out, *o)
	}
	return out
}

// Start launches the periodic sweep.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(sweepInterval)
		defer t.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-t.C:
				s.Sweep()
			}
		}
	}()
	s.log.Info("Order scheduler started")
}

// Stop halts the sweep loop. Pending orders stay in the map; a restarted
// scheduler would pick them up again.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stop) })
	s.wg.Wait()
}

// Sweep fires every due order. Each order is removed from the map before
// its execution starts, making firing and cancellation mutually exclusive.
func (s *Scheduler) Sweep() {
	now := s.cfg.Now()

	s.mu.Lock()
	var due []*ScheduledOrder
	for id, o := range s.orders {
		if !o.ExecutionTime.After(now) {
			delete(s.orders, id)
			due = append(due, o)
		}
	}
	s.mu.Unlock()

	for _, o := range due {
		s.log.WithFields(logrus.Fields{
			"id":       o.ID,
			"contract": o.Signal.ContractID,
		}).Info("⏰ Scheduled order due, executing")
		if s.bus != nil {
			s.bus.Publish(events.ScheduledOrderFired, *o)
		}
		if err := s.exec.ExecuteTrade(o.Signal, o.Live, o.Size); err != nil {
			s.log.WithFields(logrus.Fields{
				"id":    o.ID,
				"error": err,
			}).Warn("Scheduled order execution failed")
		}
	}
}
