package nexthop

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coilhq/interledger-relay/internal/failover"
	"github.com/coilhq/interledger-relay/internal/ilp"
	"github.com/coilhq/interledger-relay/internal/routetable"
)

func samplePrepare(dest string, expiry time.Time) ilp.Prepare {
	return ilp.Prepare{
		Amount:      1000,
		Expiry:      expiry,
		Destination: dest,
		Data:        []byte("hello"),
	}
}

func TestSendBilateralHappyPathFulfill(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		body, err := ilp.EncodeFulfill(ilp.Fulfill{Data: []byte("ok")})
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	sub := &routetable.SubRoute{
		ID: "peer.bob",
		NextHop: routetable.NextHop{
			Kind:        routetable.Bilateral,
			EndpointURL: srv.URL,
			AuthToken:   "s3cr3t",
		},
	}
	window := failover.NewWindow(nil)
	c := New(nil)
	now := time.Now()

	out, err := c.Send(context.Background(), sub, window, "private.moneyd.", samplePrepare("private.moneyd.bob", now.Add(30*time.Second)), now)
	require.NoError(t, err)
	require.NotNil(t, out.Fulfill)
	assert.Equal(t, "Bearer s3cr3t", gotAuth)
	assert.Equal(t, mediaType, gotContentType)
	assert.Equal(t, []byte("ok"), out.Fulfill.Data)
}

func TestSendMultilateralSegmentExtraction(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, err := ilp.EncodeFulfill(ilp.Fulfill{})
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	sub := &routetable.SubRoute{
		ID: "moneyd",
		NextHop: routetable.NextHop{
			Kind:           routetable.Multilateral,
			EndpointPrefix: srv.URL + "/accounts/",
			EndpointSuffix: "/ilp",
		},
	}
	window := failover.NewWindow(nil)
	c := New(nil)
	now := time.Now()

	out, err := c.Send(context.Background(), sub, window, "private.moneyd.", samplePrepare("private.moneyd.foo", now.Add(30*time.Second)), now)
	require.NoError(t, err)
	require.NotNil(t, out.Fulfill)
	assert.Equal(t, "/accounts/foo/ilp", gotPath)
}

func TestSendMultilateralMissingSegmentRejectsUnreachable(t *testing.T) {
	sub := &routetable.SubRoute{
		ID: "moneyd",
		NextHop: routetable.NextHop{
			Kind:           routetable.Multilateral,
			EndpointPrefix: "http://unused/",
			EndpointSuffix: "",
		},
	}
	window := failover.NewWindow(nil)
	c := New(nil)
	now := time.Now()

	out, err := c.Send(context.Background(), sub, window, "private.moneyd.", samplePrepare("private.moneyd.", now.Add(30*time.Second)), now)
	require.NoError(t, err)
	require.NotNil(t, out.Reject)
	assert.Equal(t, ilp.CodeUnreachable, out.Reject.Code)
}

func TestSendExpiredPrepareShortCircuitsToTransferTimedOut(t *testing.T) {
	sub := &routetable.SubRoute{
		ID:      "bob",
		NextHop: routetable.NextHop{Kind: routetable.Bilateral, EndpointURL: "http://unused"},
	}
	window := failover.NewWindow(nil)
	c := New(nil)
	now := time.Now()

	out, err := c.Send(context.Background(), sub, window, "private.moneyd.", samplePrepare("private.moneyd.bob", now.Add(-time.Second)), now)
	require.NoError(t, err)
	require.NotNil(t, out.Reject)
	assert.Equal(t, ilp.CodeTransferTimedOut, out.Reject.Code)
}

func TestSend4xxRejectsBadRequestWithoutRecordingFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	sub := &routetable.SubRoute{NextHop: routetable.NextHop{Kind: routetable.Bilateral, EndpointURL: srv.URL}}
	cfg := &failover.Config{WindowSize: 1, FailRatio: 0, FailDuration: time.Hour}
	window := failover.NewWindow(cfg)
	c := New(nil)
	now := time.Now()

	out, err := c.Send(context.Background(), sub, window, "private.moneyd.", samplePrepare("private.moneyd.bob", now.Add(30*time.Second)), now)
	require.NoError(t, err)
	require.NotNil(t, out.Reject)
	assert.Equal(t, ilp.CodeBadRequest, out.Reject.Code)
	assert.True(t, window.IsAvailable(now), "4xx must not count as a failure-window failure")
}

func TestSend5xxRecordsFailureAndRejectsPeerUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sub := &routetable.SubRoute{NextHop: routetable.NextHop{Kind: routetable.Bilateral, EndpointURL: srv.URL}}
	cfg := &failover.Config{WindowSize: 1, FailRatio: 0.5, FailDuration: time.Hour}
	window := failover.NewWindow(cfg)
	c := New(nil)
	now := time.Now()

	out, err := c.Send(context.Background(), sub, window, "private.moneyd.", samplePrepare("private.moneyd.bob", now.Add(30*time.Second)), now)
	require.NoError(t, err)
	require.NotNil(t, out.Reject)
	assert.Equal(t, ilp.CodePeerUnreachable, out.Reject.Code)
	assert.False(t, window.IsAvailable(now), "5xx must count as a failure-window failure")
}

func TestSendTransportErrorRecordsFailureAndRejectsPeerUnreachable(t *testing.T) {
	sub := &routetable.SubRoute{NextHop: routetable.NextHop{Kind: routetable.Bilateral, EndpointURL: "http://127.0.0.1:1"}}
	cfg := &failover.Config{WindowSize: 1, FailRatio: 0.5, FailDuration: time.Hour}
	window := failover.NewWindow(cfg)
	c := New(&http.Client{Timeout: time.Second})
	now := time.Now()

	out, err := c.Send(context.Background(), sub, window, "private.moneyd.", samplePrepare("private.moneyd.bob", now.Add(30*time.Second)), now)
	require.NoError(t, err)
	require.NotNil(t, out.Reject)
	assert.Equal(t, ilp.CodePeerUnreachable, out.Reject.Code)
	assert.False(t, window.IsAvailable(now))
}

func TestSendRequestDeadlineExceededRecordsFailureAndRejectsTransferTimedOut(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sub := &routetable.SubRoute{NextHop: routetable.NextHop{Kind: routetable.Bilateral, EndpointURL: srv.URL}}
	cfg := &failover.Config{WindowSize: 1, FailRatio: 0.5, FailDuration: time.Hour}
	window := failover.NewWindow(cfg)
	c := New(nil)
	now := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	out, err := c.Send(ctx, sub, window, "private.moneyd.", samplePrepare("private.moneyd.bob", now.Add(30*time.Second)), now)
	require.NoError(t, err)
	require.NotNil(t, out.Reject)
	assert.Equal(t, ilp.CodeTransferTimedOut, out.Reject.Code)
	assert.False(t, window.IsAvailable(now), "an abandoned in-flight upstream still counts as a failure")
}

func TestSendUpstreamRejectIsPassedThroughAndCountsAsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := ilp.EncodeReject(ilp.Reject{Code: ilp.CodeUnreachable, Message: "no route"})
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	sub := &routetable.SubRoute{NextHop: routetable.NextHop{Kind: routetable.Bilateral, EndpointURL: srv.URL}}
	cfg := &failover.Config{WindowSize: 1, FailRatio: 0, FailDuration: time.Hour}
	window := failover.NewWindow(cfg)
	c := New(nil)
	now := time.Now()

	out, err := c.Send(context.Background(), sub, window, "private.moneyd.", samplePrepare("private.moneyd.bob", now.Add(30*time.Second)), now)
	require.NoError(t, err)
	require.NotNil(t, out.Reject)
	assert.Equal(t, ilp.CodeUnreachable, out.Reject.Code)
	assert.True(t, window.IsAvailable(now), "an upstream-carried Reject is a successful round trip")
}

func TestSendFiresOnTripExactlyOnTheCallThatTripsTheWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	sub := &routetable.SubRoute{ID: "private.moneyd.bob#0", NextHop: routetable.NextHop{Kind: routetable.Bilateral, EndpointURL: srv.URL}}
	cfg := &failover.Config{WindowSize: 2, FailRatio: 0.5, FailDuration: time.Hour}
	window := failover.NewWindow(cfg)
	c := New(nil)

	var tripped []string
	c.OnTrip = func(subRouteID string) { tripped = append(tripped, subRouteID) }

	now := time.Now()
	_, err := c.Send(context.Background(), sub, window, "private.moneyd.", samplePrepare("private.moneyd.bob", now.Add(30*time.Second)), now)
	require.NoError(t, err)
	assert.Empty(t, tripped, "first failure alone must not trip a window of size 2")

	_, err = c.Send(context.Background(), sub, window, "private.moneyd.", samplePrepare("private.moneyd.bob", now.Add(30*time.Second)), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"private.moneyd.bob#0"}, tripped)
}
