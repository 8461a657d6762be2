package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	b := NewBus()
	ch1, cancel1 := b.Subscribe(4)
	ch2, cancel2 := b.Subscribe(4)
	defer cancel1()
	defer cancel2()

	b.Publish(TradeOpened, "payload")

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case evt := <-ch:
			assert.Equal(t, TradeOpened, evt.Type)
			assert.Equal(t, "payload", evt.Data)
			assert.False(t, evt.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(1)
	defer cancel()

	b.Publish(SignalProduced, 1)
	b.Publish(SignalProduced, 2) // buffer full, dropped

	evt := <-ch
	assert.Equal(t, 1, evt.Data)
	select {
	case <-ch:
		t.Fatal("second event should have been dropped")
	default:
	}
}

func TestUnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	b := NewBus()
	ch, cancel := b.Subscribe(4)

	cancel()
	b.Publish(RiskBreach, nil)

	_, open := <-ch
	require.False(t, open, "channel must be closed after unsubscribe")

	cancel() // second cancel is a no-op
}
