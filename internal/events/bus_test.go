package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()

	bus.Publish(New(EventSyncStarted, nil))

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case ev := <-sub.C:
			assert.Equal(t, EventSyncStarted, ev.Type)
			assert.WithinDuration(t, time.Now(), ev.Timestamp, time.Second)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe()
	sub.Unsubscribe()

	_, open := <-sub.C
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(New(EventSyncCompleted, nil))

	// Double unsubscribe is safe.
	sub.Unsubscribe()
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus(nil)
	defer bus.Close()

	sub := bus.Subscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		bus.Publish(New(EventDownloadProgress, DownloadEventData{ItemID: "dl-1"}))
	}

	// The buffer holds exactly subscriberBuffer events; the overflow was
	// dropped rather than blocking the publisher.
	received := 0
	for {
		select {
		case <-sub.C:
			received++
		default:
			assert.Equal(t, subscriberBuffer, received)
			return
		}
	}
}

func TestBusCloseDetachesSubscribers(t *testing.T) {
	bus := NewBus(nil)
	sub := bus.Subscribe()

	bus.Close()

	_, open := <-sub.C
	require.False(t, open)

	// Subscribe after close hands back an already-closed subscription.
	late := bus.Subscribe()
	_, open = <-late.C
	assert.False(t, open)
}
