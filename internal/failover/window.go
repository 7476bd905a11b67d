// Package failover tracks, per sub-route, a sliding window of recent
// forward-attempt outcomes and the derived Available/Unavailable state.
//
// Adapted from a classic closed/open/half-open circuit breaker into the
// fixed-size ring + ratio-threshold machine this spec calls for: there is no
// half-open probing phase here, and recovery is lazy (checked on read, not
// driven by a timer).
package failover

import (
	"sync"
	"time"
)

// Config is a sub-route's failover policy. A nil *Config (see NewWindow)
// means the sub-route is always available.
type Config struct {
	WindowSize   uint32
	FailRatio    float64
	FailDuration time.Duration
}

// Window is one sub-route's mutable failure-tracking state. The zero value
// is not usable; construct with NewWindow.
type Window struct {
	mu sync.Mutex

	cfg Config

	ring        []bool
	cursor      uint32
	filledCount uint32
	failures    uint32

	unavailableUntil time.Time
	hasDeadline      bool
}

// NewWindow creates a Window for the given policy. A nil cfg produces a
// Window that is always available (RecordSuccess/RecordFailure become no-ops,
// and RecordFailure always returns false).
func NewWindow(cfg *Config) *Window {
	w := &Window{}
	if cfg != nil {
		w.cfg = *cfg
		if w.cfg.WindowSize > 0 {
			w.ring = make([]bool, w.cfg.WindowSize)
		}
	}
	return w
}

// IsAvailable reports whether the sub-route may currently be tried. Recovery
// from Unavailable is lazy: the first call observing now >= unavailableUntil
// flips the state back to Available.
func (w *Window) IsAvailable(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.hasDeadline {
		return true
	}
	if !now.Before(w.unavailableUntil) {
		w.hasDeadline = false
		return true
	}
	return false
}

// RecordSuccess advances the ring with a success outcome.
func (w *Window) RecordSuccess(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(false)
}

// RecordFailure advances the ring with a failure outcome and trips the
// sub-route to Unavailable if the window is full and the failure ratio
// threshold is met. It returns true exactly on the call that causes the
// trip, so callers can raise a one-shot alert (spec §4.10).
func (w *Window) RecordFailure(now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.record(true)

	if len(w.ring) == 0 {
		return false
	}
	if w.filledCount < uint32(len(w.ring)) {
		return false
	}
	if float64(w.failures)/float64(len(w.ring)) >= w.cfg.FailRatio {
		w.unavailableUntil = now.Add(w.cfg.FailDuration)
		w.hasDeadline = true
		w.resetRingLocked()
		return true
	}
	return false
}

// record writes outcome into the current ring slot and advances the cursor.
// Must be called with mu held.
func (w *Window) record(failed bool) {
	if len(w.ring) == 0 {
		return
	}
	prev := w.ring[w.cursor]
	if prev && w.failures > 0 {
		w.failures--
	}
	w.ring[w.cursor] = failed
	if failed {
		w.failures++
	}
	w.cursor = (w.cursor + 1) % uint32(len(w.ring))
	if w.filledCount < uint32(len(w.ring)) {
		w.filledCount++
	}
}

// resetRingLocked clears the ring back to empty. Must be called with mu held.
func (w *Window) resetRingLocked() {
	for i := range w.ring {
		w.ring[i] = false
	}
	w.cursor = 0
	w.filledCount = 0
	w.failures = 0
}

// Arena owns one Window per sub-route id, created once at configuration load
// and never destroyed for the life of the process (spec §3/§9: no global
// lock, no cross-route invariants).
type Arena struct {
	windows map[string]*Window
}

// NewArena builds an Arena with one Window per (id, cfg) pair.
func NewArena(policies map[string]*Config) *Arena {
	a := &Arena{windows: make(map[string]*Window, len(policies))}
	for id, cfg := range policies {
		a.windows[id] = NewWindow(cfg)
	}
	return a
}

// Get returns the Window for subRouteID. It panics if the id was never
// registered — every sub-route id must be known at Arena construction time.
func (a *Arena) Get(subRouteID string) *Window {
	w, ok := a.windows[subRouteID]
	if !ok {
		panic("failover: unknown sub-route id " + subRouteID)
	}
	return w
}
