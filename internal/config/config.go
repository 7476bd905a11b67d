// Package config loads and validates the relay's configuration document
// (spec §6, §4.11) into the immutable structures the rest of the core consumes.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/coilhq/interledger-relay/internal/failover"
	"github.com/coilhq/interledger-relay/internal/peerreg"
	"github.com/coilhq/interledger-relay/internal/routetable"
	"github.com/coilhq/interledger-relay/internal/selector"
)

// RootMode tags how the relay's own address is established.
type RootMode int

const (
	Static RootMode = iota
	Dynamic
)

// RootSpec is the "root" section of the configuration document, before
// dynamic resolution (if any) has run.
type RootSpec struct {
	Mode           RootMode
	Address        string
	AssetScale     uint8
	AssetCode      string
	ParentEndpoint string
	ParentAuth     string
}

// RootConfig is the relay's own resolved address and asset info, either
// supplied statically or produced by the address resolver (spec §4.8).
type RootConfig struct {
	Address    string
	AssetScale uint8
	AssetCode  string
}

// DebugConfig toggles the optional observability subsystem (spec §4.9).
type DebugConfig struct {
	LogPrepare  bool
	LogFulfill  bool
	LogReject   bool
	EventBusURL string
}

// Config is everything derived from RELAY_CONFIG needed to run the core.
type Config struct {
	Root             RootSpec
	Registry         *peerreg.Registry
	Table            *routetable.Table
	FailoverPolicies map[string]*failover.Config
	Partition        selector.PartitionKey
	Debug            DebugConfig
}

type document struct {
	Root             rootJSON          `json:"root"`
	Relatives        []peerJSON        `json:"relatives"`
	Peers            []peerJSON        `json:"peers"`
	Routes           json.RawMessage   `json:"routes"`
	RoutingPartition string            `json:"routing_partition"`
	DebugService     *debugServiceJSON `json:"debug_service"`
}

type rootJSON struct {
	Mode           string `json:"mode"`
	Address        string `json:"address"`
	AssetScale     uint8  `json:"asset_scale"`
	AssetCode      string `json:"asset_code"`
	ParentEndpoint string `json:"parent_endpoint"`
	ParentAuth     string `json:"parent_auth"`
}

type peerJSON struct {
	Kind          string   `json:"kind"`
	AccountName   string   `json:"account_name"`
	AuthTokens    []string `json:"auth_tokens"`
	AddressSuffix string   `json:"address_suffix"`
}

type debugServiceJSON struct {
	LogPrepare  bool   `json:"log_prepare"`
	LogFulfill  bool   `json:"log_fulfill"`
	LogReject   bool   `json:"log_reject"`
	EventBusURL string `json:"event_bus_url"`
}

type routeEntryJSON struct {
	TargetPrefix string          `json:"target_prefix"`
	SubRoutes    []subRouteJSON  `json:"sub_routes"`
}

type subRouteJSON struct {
	Kind           string        `json:"kind"`
	EndpointURL    string        `json:"endpoint_url"`
	EndpointPrefix string        `json:"endpoint_prefix"`
	EndpointSuffix string        `json:"endpoint_suffix"`
	AuthToken      string        `json:"auth_token"`
	Partition      *float64      `json:"partition"`
	Failover       *failoverJSON `json:"failover"`
}

type failoverJSON struct {
	WindowSize         uint32  `json:"window_size"`
	FailRatio          float64 `json:"fail_ratio"`
	FailDurationSeconds float64 `json:"fail_duration_seconds"`
}

// Load parses and validates a RELAY_CONFIG document.
func Load(raw []byte) (*Config, error) {
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing document: %w", err)
	}

	root, err := parseRoot(doc.Root)
	if err != nil {
		return nil, err
	}

	peerList := doc.Relatives
	if len(doc.Peers) > 0 {
		peerList = doc.Peers
	}
	peers, err := parsePeers(peerList)
	if err != nil {
		return nil, err
	}
	registry, err := peerreg.New(peers)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	entries, policies, err := parseRoutes(doc.Routes)
	if err != nil {
		return nil, err
	}
	table, err := routetable.New(entries)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	partition, err := parsePartition(doc.RoutingPartition)
	if err != nil {
		return nil, err
	}

	debug := DebugConfig{}
	if doc.DebugService != nil {
		debug = DebugConfig{
			LogPrepare:  doc.DebugService.LogPrepare,
			LogFulfill:  doc.DebugService.LogFulfill,
			LogReject:   doc.DebugService.LogReject,
			EventBusURL: doc.DebugService.EventBusURL,
		}
	}

	return &Config{
		Root:             root,
		Registry:         registry,
		Table:            table,
		FailoverPolicies: policies,
		Partition:        partition,
		Debug:            debug,
	}, nil
}

func parseRoot(r rootJSON) (RootSpec, error) {
	switch r.Mode {
	case "", "static":
		if r.Address == "" {
			return RootSpec{}, fmt.Errorf("config: static root requires address")
		}
		return RootSpec{Mode: Static, Address: r.Address, AssetScale: r.AssetScale, AssetCode: r.AssetCode}, nil
	case "dynamic":
		if r.ParentEndpoint == "" {
			return RootSpec{}, fmt.Errorf("config: dynamic root requires parent_endpoint")
		}
		return RootSpec{Mode: Dynamic, ParentEndpoint: r.ParentEndpoint, ParentAuth: r.ParentAuth}, nil
	default:
		return RootSpec{}, fmt.Errorf("config: unknown root mode %q", r.Mode)
	}
}

func parsePeers(in []peerJSON) ([]peerreg.Peer, error) {
	out := make([]peerreg.Peer, 0, len(in))
	for _, p := range in {
		var kind peerreg.Kind
		switch p.Kind {
		case "parent":
			kind = peerreg.Parent
		case "child":
			kind = peerreg.Child
		case "sibling":
			kind = peerreg.Sibling
		default:
			return nil, fmt.Errorf("config: unknown peer kind %q", p.Kind)
		}
		out = append(out, peerreg.Peer{
			Kind:          kind,
			AccountName:   p.AccountName,
			AuthTokens:    p.AuthTokens,
			AddressSuffix: p.AddressSuffix,
		})
	}
	return out, nil
}

// parseRoutes accepts either accepted "routes" shape (spec §6): a JSON object
// mapping target prefix to a sub-route array, or a JSON array of
// {target_prefix, sub_routes}.
func parseRoutes(raw json.RawMessage) ([]routetable.Entry, map[string]*failover.Config, error) {
	if len(raw) == 0 {
		return nil, nil, fmt.Errorf("config: routes is required")
	}

	var asArray []routeEntryJSON
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return buildEntries(asArray)
	}

	var asMap map[string][]subRouteJSON
	if err := json.Unmarshal(raw, &asMap); err != nil {
		return nil, nil, fmt.Errorf("config: routes must be an array or an object: %w", err)
	}
	entries := make([]routeEntryJSON, 0, len(asMap))
	for prefix, subs := range asMap {
		entries = append(entries, routeEntryJSON{TargetPrefix: prefix, SubRoutes: subs})
	}
	return buildEntries(entries)
}

func buildEntries(in []routeEntryJSON) ([]routetable.Entry, map[string]*failover.Config, error) {
	entries := make([]routetable.Entry, 0, len(in))
	policies := make(map[string]*failover.Config)

	for _, e := range in {
		subs := make([]*routetable.SubRoute, 0, len(e.SubRoutes))
		for i, s := range e.SubRoutes {
			nh, err := parseNextHop(s)
			if err != nil {
				return nil, nil, err
			}
			partition := 1.0
			if s.Partition != nil {
				partition = *s.Partition
			}
			id := fmt.Sprintf("%s#%d", e.TargetPrefix, i)

			var fo *routetable.Failover
			if s.Failover != nil {
				fo = &routetable.Failover{
					WindowSize:   s.Failover.WindowSize,
					FailRatio:    s.Failover.FailRatio,
					FailDuration: int64(s.Failover.FailDurationSeconds * float64(time.Second)),
				}
				policies[id] = &failover.Config{
					WindowSize:   fo.WindowSize,
					FailRatio:    fo.FailRatio,
					FailDuration: time.Duration(fo.FailDuration),
				}
			} else {
				policies[id] = nil
			}

			subs = append(subs, &routetable.SubRoute{
				ID:        id,
				NextHop:   nh,
				Partition: partition,
				Failover:  fo,
			})
		}
		entries = append(entries, routetable.Entry{TargetPrefix: e.TargetPrefix, SubRoutes: subs})
	}
	return entries, policies, nil
}

func parseNextHop(s subRouteJSON) (routetable.NextHop, error) {
	switch s.Kind {
	case "", "bilateral":
		if s.EndpointURL == "" {
			return routetable.NextHop{}, fmt.Errorf("config: bilateral sub-route requires endpoint_url")
		}
		return routetable.NextHop{Kind: routetable.Bilateral, EndpointURL: s.EndpointURL, AuthToken: s.AuthToken}, nil
	case "multilateral":
		return routetable.NextHop{
			Kind:           routetable.Multilateral,
			EndpointPrefix: s.EndpointPrefix,
			EndpointSuffix: s.EndpointSuffix,
			AuthToken:      s.AuthToken,
		}, nil
	default:
		return routetable.NextHop{}, fmt.Errorf("config: unknown next-hop kind %q", s.Kind)
	}
}

func parsePartition(s string) (selector.PartitionKey, error) {
	switch s {
	case "", "destination":
		return selector.Destination, nil
	case "execution_condition":
		return selector.ExecutionCondition, nil
	default:
		return 0, fmt.Errorf("config: unknown routing_partition %q", s)
	}
}
