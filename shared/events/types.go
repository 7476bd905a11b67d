// Package events defines the wire shape of the relay's internal debug
// events (spec §3 "Debug event", §4.9, §4.10): published on the optional
// event bus and fanned out to the admin WebSocket feed.
package events

import "time"

// Kinds of debug event, corresponding to the three ILP packet types.
const (
	KindPrepare = "prepare"
	KindFulfill = "fulfill"
	KindReject  = "reject"
)

// AlertRouteDegraded is published when a sub-route's failure window trips
// to Unavailable (spec §4.10).
const AlertRouteDegraded = "alert.route_degraded"

// DebugEvent mirrors one observed Prepare/Fulfill/Reject. It never carries
// the fulfillment secret or raw packet data (spec §3, §4.9).
type DebugEvent struct {
	Kind          string    `json:"kind"`
	Destination   string    `json:"destination"`
	AmountDisplay string    `json:"amount_display,omitempty"`
	RejectCode    string    `json:"reject_code,omitempty"`
	SubRouteID    string    `json:"sub_route_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// RouteDegradedAlert is published on AlertRouteDegraded.
type RouteDegradedAlert struct {
	SubRouteID string    `json:"sub_route_id"`
	Timestamp  time.Time `json:"timestamp"`
}
