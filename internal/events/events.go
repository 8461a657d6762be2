// Package events is the in-process publish/subscribe bus the trading agent
// components use to announce lifecycle moments (signals, trade opens/closes,
// risk transitions, scheduled orders). Subscribers receive events on buffered
// channels; a slow subscriber drops events rather than stalling the
// publisher.
package events

import (
	"sync"
	"time"
)

// Type identifies the kind of event on the bus.
type Type string

const (
	SignalProduced      Type = "SIGNAL_PRODUCED"
	SignalRejected      Type = "SIGNAL_REJECTED"
	TradeOpened         Type = "TRADE_OPENED"
	TradeClosed         Type = "TRADE_CLOSED"
	RiskBreach          Type = "RISK_BREACH"
	RiskRecovered       Type = "RISK_RECOVERED"
	OrderScheduled      Type = "ORDER_SCHEDULED"
	ScheduledOrderFired Type = "SCHEDULED_ORDER_FIRED"
	StatsUpdated        Type = "STATS_UPDATED"
)

// Event is one bus message. Data carries a type-specific payload struct.
type Event struct {
	Type Type        `json:"type"`
	Time time.Time   `json:"time"`
	Data interface{} `json:"data"`
}

// Bus fans events out to all subscribers. Publish never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe registers a new subscriber with the given channel buffer and
// returns its channel plus an unsubscribe func. Unsubscribe closes the
// channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber that has buffer room.
func (b *Bus) Publish(t Type, data interface{}) {
	evt := Event{Type: t, Time: time.Now().UTC(), Data: data}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- evt:
		default:
			// Subscriber backed up; drop rather than stall the pipeline.
		}
	}
}
