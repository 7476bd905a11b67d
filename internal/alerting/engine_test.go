package alerting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coilhq/interledger-relay/pkg/eventbus"
	"github.com/coilhq/interledger-relay/shared/events"
)

func TestNotifyTripPublishesRouteDegradedAlert(t *testing.T) {
	bus := eventbus.New("", "test")
	defer bus.Close()
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	e := NewEngine(bus)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	e.NotifyTrip("private.moneyd.bob#0")

	select {
	case raw := <-ch:
		alert, ok := raw.(events.RouteDegradedAlert)
		require.True(t, ok)
		assert.Equal(t, "private.moneyd.bob#0", alert.SubRouteID)
	case <-time.After(time.Second):
		t.Fatal("expected a published alert")
	}
}

func TestNotifyTripDoesNotBlockWhenQueueIsFull(t *testing.T) {
	e := NewEngine(nil)
	// Never started: the processor goroutine is not draining tripCh, so the
	// buffer fills and subsequent notifications must still return promptly.
	done := make(chan struct{})
	go func() {
		for i := 0; i < tripBuffer*2; i++ {
			e.NotifyTrip("private.moneyd.bob#0")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("NotifyTrip blocked on a full queue")
	}
}

func TestStopHaltsProcessing(t *testing.T) {
	bus := eventbus.New("", "test")
	defer bus.Close()
	id, ch := bus.Subscribe()
	defer bus.Unsubscribe(id)

	e := NewEngine(bus)
	ctx := context.Background()
	e.Start(ctx)
	e.Stop()

	// give the goroutine a chance to exit before publishing
	time.Sleep(20 * time.Millisecond)
	e.NotifyTrip("private.moneyd.bob#0")

	select {
	case <-ch:
		t.Fatal("expected no alert after Stop")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifyTripLogsWithoutBusWithoutPanicking(t *testing.T) {
	e := NewEngine(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.Start(ctx)
	defer e.Stop()

	assert.NotPanics(t, func() {
		e.NotifyTrip("private.moneyd.bob#0")
		time.Sleep(20 * time.Millisecond)
	})
}
