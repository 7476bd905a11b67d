// Package selector picks exactly one sub-route for a Prepare packet,
// deterministically, from the candidates a routetable.Entry offers.
package selector

import (
	"errors"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/coilhq/interledger-relay/internal/failover"
	"github.com/coilhq/interledger-relay/internal/ilp"
	"github.com/coilhq/interledger-relay/internal/routetable"
)

// PartitionKey selects which bytes of a Prepare determine its deterministic
// sub-route assignment.
type PartitionKey int

const (
	// Destination sticks every packet sharing a STREAM connection's
	// destination to the same sub-route.
	Destination PartitionKey = iota
	// ExecutionCondition spreads a STREAM connection's packets across sub-routes.
	ExecutionCondition
)

// ErrNoRoute is returned when the destination matches no route-table entry.
var ErrNoRoute = errors.New("selector: no route")

// ErrNoAvailableRoute is returned when a route matched but every sub-route
// under it is currently Unavailable.
var ErrNoAvailableRoute = errors.New("selector: no available sub-route")

// Selector resolves a Prepare to a sub-route using a route table, a shared
// arena of per-sub-route failure windows, and a configured partition key.
type Selector struct {
	table     *routetable.Table
	arena     *failover.Arena
	partition PartitionKey
}

// New builds a Selector over an already-validated route table and failure-window arena.
func New(table *routetable.Table, arena *failover.Arena, partition PartitionKey) *Selector {
	return &Selector{table: table, arena: arena, partition: partition}
}

// Result is the outcome of a successful Select.
type Result struct {
	Entry    *routetable.Entry
	SubRoute *routetable.SubRoute
	Window   *failover.Window
}

// Select picks exactly one available sub-route for the given Prepare.
func (s *Selector) Select(p ilp.Prepare, now time.Time) (Result, error) {
	entry, ok := s.table.Match(p.Destination)
	if !ok {
		return Result{}, ErrNoRoute
	}

	available := make([]*routetable.SubRoute, 0, len(entry.SubRoutes))
	for _, sr := range entry.SubRoutes {
		if s.arena.Get(sr.ID).IsAvailable(now) {
			available = append(available, sr)
		}
	}
	if len(available) == 0 {
		return Result{}, ErrNoAvailableRoute
	}

	total := 0.0
	for _, sr := range available {
		total += sr.Partition
	}

	x := hashToUnitInterval(s.partitionKeyBytes(p))

	cumulative := 0.0
	for _, sr := range available {
		cumulative += sr.Partition / total
		if cumulative > x {
			return Result{Entry: entry, SubRoute: sr, Window: s.arena.Get(sr.ID)}, nil
		}
	}
	// Floating point rounding can leave x >= the final cumulative value by an
	// epsilon; fall back to the last candidate rather than failing selection.
	last := available[len(available)-1]
	return Result{Entry: entry, SubRoute: last, Window: s.arena.Get(last.ID)}, nil
}

func (s *Selector) partitionKeyBytes(p ilp.Prepare) []byte {
	switch s.partition {
	case ExecutionCondition:
		return p.Condition[:]
	default:
		return []byte(p.Destination)
	}
}

// hashToUnitInterval maps key to a deterministic value in [0, 1) using a
// stable 64-bit non-cryptographic hash with good avalanche behavior.
func hashToUnitInterval(key []byte) float64 {
	h := xxhash.Sum64(key) % (1 << 53)
	return float64(h) / float64(uint64(1)<<53)
}
