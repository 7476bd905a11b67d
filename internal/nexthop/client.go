// Package nexthop dispatches a selected Prepare to its chosen upstream
// endpoint over HTTP and reports the outcome to that sub-route's failure window.
package nexthop

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/coilhq/interledger-relay/internal/failover"
	"github.com/coilhq/interledger-relay/internal/ilp"
	"github.com/coilhq/interledger-relay/internal/routetable"
)

// mediaType is the documented content type for an ILP packet body.
const mediaType = "application/octet-stream"

// slack is added to a Prepare's remaining time-to-expiry to get the upstream
// request timeout (spec §4.6).
const slack = time.Second

// ErrMissingSegment is returned when a Multilateral next-hop has no segment
// to template into its endpoint.
var ErrMissingSegment = errors.New("nexthop: destination has no segment after the matched prefix")

// Client sends Prepares upstream over HTTP.
type Client struct {
	httpClient *http.Client

	// OnTrip, if set, is called the moment a sub-route's failure window
	// trips to Unavailable (spec §4.10). It must not block.
	OnTrip func(subRouteID string)
}

// New builds a Client. httpClient may be nil to use http.DefaultClient.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient}
}

// recordFailure records the outcome on window and fires OnTrip if this call
// caused the trip.
func (c *Client) recordFailure(window *failover.Window, now time.Time, subRouteID string) {
	if window.RecordFailure(now) && c.OnTrip != nil {
		c.OnTrip(subRouteID)
	}
}

// Outcome is the result of a Send call: exactly one of Fulfill or Reject is set.
type Outcome struct {
	Fulfill *ilp.Fulfill
	Reject  *ilp.Reject
}

// Send forwards p to subRoute's next hop, under matchedPrefix (used to
// extract the Multilateral URL segment), recording success/failure on window.
func (c *Client) Send(ctx context.Context, subRoute *routetable.SubRoute, window *failover.Window, matchedPrefix string, p ilp.Prepare, now time.Time) (Outcome, error) {
	if !p.Expiry.After(now) {
		return Outcome{Reject: &ilp.Reject{Code: ilp.CodeTransferTimedOut, Message: "prepare already expired at send time"}}, nil
	}

	endpoint, err := resolveEndpoint(subRoute.NextHop, matchedPrefix, p.Destination)
	if err != nil {
		return Outcome{Reject: &ilp.Reject{Code: ilp.CodeUnreachable, Message: err.Error()}}, nil
	}

	body, err := ilp.EncodePrepare(p)
	if err != nil {
		return Outcome{}, fmt.Errorf("nexthop: encoding prepare: %w", err)
	}

	timeout := p.Expiry.Sub(now) + slack
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(sendCtx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{}, fmt.Errorf("nexthop: building request: %w", err)
	}
	req.Header.Set("Content-Type", mediaType)
	req.Header.Set("Authorization", "Bearer "+subRoute.NextHop.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recordFailure(window, now, subRoute.ID)
		if errors.Is(err, context.DeadlineExceeded) {
			// The caller's own request deadline (spec §5, min(server_max,
			// expiry)) elapsed before the upstream responded; distinct from a
			// hard transport failure.
			return Outcome{Reject: &ilp.Reject{Code: ilp.CodeTransferTimedOut, Message: "upstream did not respond before the request deadline"}}, nil
		}
		return Outcome{Reject: &ilp.Reject{Code: ilp.CodePeerUnreachable, Message: "upstream transport error"}}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.recordFailure(window, now, subRoute.ID)
		return Outcome{Reject: &ilp.Reject{Code: ilp.CodePeerUnreachable, Message: "failed reading upstream response"}}, nil
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return c.decodeUpstreamBody(respBody, window, now, subRoute.ID)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		// 2xx other than 200 carries no recognized ILP packet.
		return Outcome{Reject: &ilp.Reject{Code: ilp.CodeInternalError, Message: "malformed upstream response"}}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// Peer-configuration error, not a peer-health signal (spec §4.4).
		return Outcome{Reject: &ilp.Reject{Code: ilp.CodeBadRequest, Message: "upstream rejected the request"}}, nil

	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		c.recordFailure(window, now, subRoute.ID)
		return Outcome{Reject: &ilp.Reject{Code: ilp.CodePeerUnreachable, Message: "upstream server error"}}, nil

	default:
		c.recordFailure(window, now, subRoute.ID)
		return Outcome{Reject: &ilp.Reject{Code: ilp.CodePeerUnreachable, Message: "unexpected upstream status"}}, nil
	}
}

func (c *Client) decodeUpstreamBody(body []byte, window *failover.Window, now time.Time, subRouteID string) (Outcome, error) {
	typ, err := ilp.PacketTypeOf(body)
	if err != nil {
		c.recordFailure(window, now, subRouteID)
		return Outcome{Reject: &ilp.Reject{Code: ilp.CodeInternalError, Message: "empty upstream response"}}, nil
	}

	switch typ {
	case ilp.TypeFulfill:
		f, err := ilp.DecodeFulfill(body)
		if err != nil {
			c.recordFailure(window, now, subRouteID)
			return Outcome{Reject: &ilp.Reject{Code: ilp.CodeInternalError, Message: "malformed upstream fulfill"}}, nil
		}
		window.RecordSuccess(now)
		return Outcome{Fulfill: &f}, nil

	case ilp.TypeReject:
		r, err := ilp.DecodeReject(body)
		if err != nil {
			c.recordFailure(window, now, subRouteID)
			return Outcome{Reject: &ilp.Reject{Code: ilp.CodeInternalError, Message: "malformed upstream reject"}}, nil
		}
		window.RecordSuccess(now)
		return Outcome{Reject: &r}, nil

	default:
		c.recordFailure(window, now, subRouteID)
		return Outcome{Reject: &ilp.Reject{Code: ilp.CodeInternalError, Message: "unexpected upstream packet type"}}, nil
	}
}

func resolveEndpoint(nh routetable.NextHop, matchedPrefix, destination string) (string, error) {
	switch nh.Kind {
	case routetable.Bilateral:
		return nh.EndpointURL, nil
	case routetable.Multilateral:
		segment, ok := ilp.SegmentAfter(matchedPrefix, destination)
		if !ok {
			return "", ErrMissingSegment
		}
		return nh.EndpointPrefix + segment + nh.EndpointSuffix, nil
	default:
		return "", fmt.Errorf("nexthop: unknown next-hop kind %d", nh.Kind)
	}
}
