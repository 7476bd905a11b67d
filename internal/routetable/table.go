// Package routetable holds the immutable, configuration-derived mapping from
// destination address prefixes to candidate sub-routes.
package routetable

import (
	"errors"
	"math"
	"sort"

	"github.com/coilhq/interledger-relay/internal/ilp"
)

// NextHopKind tags which shape of next-hop a sub-route carries.
type NextHopKind int

const (
	Bilateral NextHopKind = iota
	Multilateral
)

// NextHop is the upstream endpoint a Prepare is forwarded to.
type NextHop struct {
	Kind NextHopKind

	// Bilateral
	EndpointURL string

	// Multilateral
	EndpointPrefix string
	EndpointSuffix string

	AuthToken string
}

// Failover configures a sub-route's sliding-window failure policy. Nil means
// the sub-route never becomes unavailable.
type Failover struct {
	WindowSize   uint32
	FailRatio    float64
	FailDuration int64 // nanoseconds, kept as int64 to stay allocation-free in the hot path
}

// SubRoute is one candidate forwarding target under a target prefix.
type SubRoute struct {
	ID       string // stable identifier, used to key failure-window state
	NextHop  NextHop
	Partition float64
	Failover *Failover
}

// Entry is a target prefix and its non-empty ordered list of candidate sub-routes.
type Entry struct {
	TargetPrefix string
	SubRoutes    []*SubRoute
}

// Table is the ordered, longest-prefix-first collection of route entries.
type Table struct {
	entries []*Entry
}

var (
	// ErrEmptySubRoutes is returned by New when an entry has no sub-routes.
	ErrEmptySubRoutes = errors.New("routetable: entry must have at least one sub-route")
	// ErrNonFinitePartition is returned by New when a sub-route's partition isn't finite.
	ErrNonFinitePartition = errors.New("routetable: partition must be finite")
	// ErrNoActivePartition is returned by New when every sub-route under a prefix has partition 0.
	ErrNoActivePartition = errors.New("routetable: sum of partitions must be positive")
	// ErrDuplicatePrefix is returned by New when two entries share a target prefix.
	ErrDuplicatePrefix = errors.New("routetable: duplicate target prefix")
)

// New validates entries and builds the immutable table, sorted by descending
// prefix length so Match's first hit is always the longest match.
func New(entries []Entry) (*Table, error) {
	seen := make(map[string]bool, len(entries))
	t := &Table{}

	for i := range entries {
		e := entries[i]
		if len(e.SubRoutes) == 0 {
			return nil, ErrEmptySubRoutes
		}
		if seen[e.TargetPrefix] {
			return nil, ErrDuplicatePrefix
		}
		seen[e.TargetPrefix] = true

		total := 0.0
		for _, sr := range e.SubRoutes {
			if sr.Partition < 0 || math.IsNaN(sr.Partition) || math.IsInf(sr.Partition, 0) {
				return nil, ErrNonFinitePartition
			}
			total += sr.Partition
		}
		if total <= 0 {
			return nil, ErrNoActivePartition
		}

		stored := e
		t.entries = append(t.entries, &stored)
	}

	sort.SliceStable(t.entries, func(i, j int) bool {
		return ilp.PrefixLen(t.entries[i].TargetPrefix) > ilp.PrefixLen(t.entries[j].TargetPrefix)
	})

	return t, nil
}

// Match returns the entry with the longest target prefix matching
// destination, or false if none matches.
func (t *Table) Match(destination string) (*Entry, bool) {
	for _, e := range t.entries {
		if ilp.PrefixMatches(e.TargetPrefix, destination) {
			return e, true
		}
	}
	return nil, false
}

// Entries returns every configured entry, for diagnostics/startup logging only.
func (t *Table) Entries() []*Entry {
	return t.entries
}
