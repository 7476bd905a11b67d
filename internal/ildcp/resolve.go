// Package ildcp resolves the relay's own address and asset info from a
// parent at startup, when configured as Dynamic (spec §4.8). It is a
// one-shot, no-retry client: any failure is fatal to process bootstrap.
package ildcp

import (
	"context"
	"fmt"
	"time"

	"github.com/coilhq/interledger-relay/internal/config"
	"github.com/coilhq/interledger-relay/internal/failover"
	"github.com/coilhq/interledger-relay/internal/ilp"
	"github.com/coilhq/interledger-relay/internal/nexthop"
	"github.com/coilhq/interledger-relay/internal/routetable"
)

// requestTimeout is the Prepare expiry offered for the ILDCP request itself.
const requestTimeout = 30 * time.Second

// Resolve sends a peer.config request to root.ParentEndpoint and decodes the
// response into a RootConfig. It never retries: the caller (process
// bootstrap) is expected to exit on error.
func Resolve(ctx context.Context, client *nexthop.Client, root config.RootSpec, now time.Time) (config.RootConfig, error) {
	if root.Mode != config.Dynamic {
		return config.RootConfig{}, fmt.Errorf("ildcp: Resolve called on a non-dynamic root config")
	}

	subRoute := &routetable.SubRoute{
		ID: "ildcp-parent",
		NextHop: routetable.NextHop{
			Kind:        routetable.Bilateral,
			EndpointURL: root.ParentEndpoint,
			AuthToken:   root.ParentAuth,
		},
	}
	// A dedicated, ungoverned window: ILDCP never retries, so failover
	// bookkeeping would never be read again.
	window := failover.NewWindow(nil)

	request := ilp.Prepare{
		Amount:      0,
		Expiry:      now.Add(requestTimeout),
		Destination: ilp.PeerConfigAddress,
	}

	out, err := client.Send(ctx, subRoute, window, "", request, now)
	if err != nil {
		return config.RootConfig{}, fmt.Errorf("ildcp: sending request: %w", err)
	}
	if out.Reject != nil {
		return config.RootConfig{}, fmt.Errorf("ildcp: parent rejected request: %s %s", out.Reject.Code, out.Reject.Message)
	}

	resp, err := ilp.DecodeILDCPResponse(out.Fulfill.Data)
	if err != nil {
		return config.RootConfig{}, fmt.Errorf("ildcp: decoding response: %w", err)
	}

	return config.RootConfig{Address: resp.Address, AssetScale: resp.AssetScale, AssetCode: resp.AssetCode}, nil
}
