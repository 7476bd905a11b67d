// Package inbound implements the relay's top-level HTTP request handler: the
// packet-processing pipeline described in spec §4.7, built on gin in the
// teacher's middleware style (auth, correlation-id, rate limiting, panic recovery).
package inbound

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coilhq/interledger-relay/internal/config"
	"github.com/coilhq/interledger-relay/internal/ilp"
	"github.com/coilhq/interledger-relay/internal/nexthop"
	"github.com/coilhq/interledger-relay/internal/peerreg"
	"github.com/coilhq/interledger-relay/internal/selector"
)

// maxBodyBytes caps the inbound request body at the codec's own packet ceiling.
const maxBodyBytes = 65536

// Observer is notified of every Prepare/Fulfill/Reject the service handles.
// Implementations must not block; the debug/observability subsystem
// (spec §4.9) is the only intended implementer.
type Observer interface {
	OnPrepare(peer *peerreg.Peer, p ilp.Prepare)
	OnFulfill(peer *peerreg.Peer, p ilp.Prepare, f ilp.Fulfill, subRouteID string)
	OnReject(peer *peerreg.Peer, p ilp.Prepare, r ilp.Reject, subRouteID string)
}

// Clock returns the current time; overridable in tests.
type Clock func() time.Time

// Config is the set of already-validated, immutable dependencies the
// service needs to run.
type Config struct {
	Registry     *peerreg.Registry
	Selector     *selector.Selector
	NextHop      *nexthop.Client
	Root         config.RootConfig
	ServerMaxAge time.Duration // upper bound on the effective per-request deadline (spec §5)
	RateLimit    RateLimitConfig
	Observer     Observer // may be nil
	Now          Clock    // may be nil; defaults to time.Now
}

// Service is the relay's inbound HTTP surface.
type Service struct {
	router *gin.Engine
	cfg    Config
	now    Clock
}

// New builds a Service ready to be mounted or run directly.
func New(cfg Config) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.ServerMaxAge <= 0 {
		cfg.ServerMaxAge = 35 * time.Second
	}

	s := &Service{cfg: cfg, now: cfg.Now}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(s.recoveryMiddleware())
	router.Use(s.correlationIDMiddleware())
	router.Use(newRateLimiter(cfg.RateLimit).middleware())
	router.Any("/*path", s.handlePrepare)
	s.router = router
	return s
}

// Router exposes the underlying gin.Engine, e.g. to mount /debug/stream.
func (s *Service) Router() *gin.Engine {
	return s.router
}

func (s *Service) correlationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Correlation-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set("correlation_id", id)
		c.Header("X-Correlation-ID", id)
		c.Next()
	}
}

func (s *Service) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

func (s *Service) handlePrepare(c *gin.Context) {
	token := bearerToken(c.GetHeader("Authorization"))
	peer, err := s.cfg.Registry.Identify(token)
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	prepare, err := ilp.DecodePrepare(body)
	if err != nil {
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	if s.cfg.Observer != nil {
		s.cfg.Observer.OnPrepare(peer, prepare)
	}

	now := s.now()
	reject := s.process(c.Request.Context(), peer, prepare, now)
	s.respond(c, peer, prepare, reject)
}

// outcome carries exactly one of a Fulfill or a Reject to respond().
type outcome struct {
	fulfill    *ilp.Fulfill
	reject     *ilp.Reject
	subRouteID string
}

func (s *Service) process(ctx context.Context, peer *peerreg.Peer, p ilp.Prepare, now time.Time) outcome {
	if !p.Expiry.After(now) {
		return outcome{reject: &ilp.Reject{Code: ilp.CodeInsufficientTimeout, Message: "prepare already expired on receipt"}}
	}

	isILDCP := p.Destination == ilp.PeerConfigAddress
	if !isILDCP && peer.Kind == peerreg.Child && p.Destination == s.cfg.Root.Address {
		return outcome{reject: &ilp.Reject{Code: ilp.CodeUnreachable, Message: "destination is this relay's own terminal address"}}
	}

	if isILDCP {
		return s.handleILDCP(p)
	}

	deadline := now.Add(s.cfg.ServerMaxAge)
	if p.Expiry.Before(deadline) {
		deadline = p.Expiry
	}
	sendCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	res, err := s.cfg.Selector.Select(p, now)
	if err != nil {
		switch err {
		case selector.ErrNoRoute:
			return outcome{reject: &ilp.Reject{Code: ilp.CodeUnreachable, Message: "no route to destination"}}
		case selector.ErrNoAvailableRoute:
			return outcome{reject: &ilp.Reject{Code: ilp.CodePeerUnreachable, Message: "all candidate sub-routes are unavailable"}}
		default:
			return outcome{reject: &ilp.Reject{Code: ilp.CodeInternalError, Message: "route selection failed"}}
		}
	}

	out, err := s.cfg.NextHop.Send(sendCtx, res.SubRoute, res.Window, res.Entry.TargetPrefix, p, now)
	if err != nil {
		return outcome{reject: &ilp.Reject{Code: ilp.CodeInternalError, Message: "next-hop dispatch failed"}, subRouteID: res.SubRoute.ID}
	}
	if out.Fulfill != nil {
		return outcome{fulfill: out.Fulfill, subRouteID: res.SubRoute.ID}
	}
	return outcome{reject: out.Reject, subRouteID: res.SubRoute.ID}
}

func (s *Service) handleILDCP(p ilp.Prepare) outcome {
	resp := ilp.ILDCPResponse{Address: s.cfg.Root.Address, AssetScale: s.cfg.Root.AssetScale, AssetCode: s.cfg.Root.AssetCode}
	data, err := ilp.EncodeILDCPResponse(resp)
	if err != nil {
		return outcome{reject: &ilp.Reject{Code: ilp.CodeInternalError, Message: "failed to encode ildcp response"}}
	}
	return outcome{fulfill: &ilp.Fulfill{Data: data}}
}

func (s *Service) respond(c *gin.Context, peer *peerreg.Peer, p ilp.Prepare, out outcome) {
	if out.fulfill != nil {
		body, err := ilp.EncodeFulfill(*out.fulfill)
		if err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		if s.cfg.Observer != nil {
			s.cfg.Observer.OnFulfill(peer, p, *out.fulfill, out.subRouteID)
		}
		c.Data(http.StatusOK, "application/octet-stream", body)
		return
	}

	rej := *out.reject
	if rej.TriggeredBy == "" {
		rej.TriggeredBy = s.cfg.Root.Address
	}
	body, err := ilp.EncodeReject(rej)
	if err != nil {
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if s.cfg.Observer != nil {
		s.cfg.Observer.OnReject(peer, p, rej, out.subRouteID)
	}
	c.Data(http.StatusOK, "application/octet-stream", body)
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return ""
	}
	return header[len(prefix):]
}
