// Package alerting raises an operator-facing alert the moment a sub-route's
// failure window trips to Unavailable (spec §4.10). It is wired as the
// nexthop.Client's OnTrip hook and fans the alert out through the same
// event bus the debug subsystem uses.
package alerting

import (
	"context"
	"log"
	"time"

	"github.com/coilhq/interledger-relay/pkg/eventbus"
	"github.com/coilhq/interledger-relay/shared/events"
)

// tripBuffer bounds how many pending trips may queue before NotifyTrip
// starts dropping them; a trip is a rare event, so this is generous.
const tripBuffer = 32

// Engine asynchronously turns trip notifications into published alerts.
type Engine struct {
	bus    *eventbus.Bus
	tripCh chan string
	stopCh chan struct{}

	now func() time.Time
}

// NewEngine builds an Engine. bus may be nil, in which case trips are only
// logged.
func NewEngine(bus *eventbus.Bus) *Engine {
	return &Engine{
		bus:    bus,
		tripCh: make(chan string, tripBuffer),
		stopCh: make(chan struct{}),
		now:    time.Now,
	}
}

// Start runs the alert processor until ctx is cancelled or Stop is called.
func (e *Engine) Start(ctx context.Context) {
	go e.process(ctx)
}

// Stop halts the alert processor.
func (e *Engine) Stop() {
	close(e.stopCh)
}

// NotifyTrip enqueues a trip for subRouteID. Intended as a nexthop.Client's
// OnTrip callback; never blocks, dropping the notification if the queue is
// full rather than stalling the packet-forwarding path.
func (e *Engine) NotifyTrip(subRouteID string) {
	select {
	case e.tripCh <- subRouteID:
	default:
		log.Printf("alerting: trip queue full, dropping alert for %s", subRouteID)
	}
}

func (e *Engine) process(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case subRouteID := <-e.tripCh:
			e.raise(subRouteID)
		}
	}
}

func (e *Engine) raise(subRouteID string) {
	now := e.now()
	log.Printf("alert: sub-route %s is now unavailable", subRouteID)
	if e.bus == nil {
		return
	}
	e.bus.Publish(context.Background(), events.AlertRouteDegraded, events.RouteDegradedAlert{
		SubRouteID: subRouteID,
		Timestamp:  now,
	})
}
