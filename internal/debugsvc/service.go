// Package debugsvc is the optional observability wrapper described in spec
// §4.9: it implements inbound.Observer, logs structured records of
// Prepare/Fulfill/Reject activity, republishes the same events on the
// internal event bus, and serves a read-only admin WebSocket feed at
// /debug/stream. It contributes no hot-path cost when disabled.
package debugsvc

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/coilhq/interledger-relay/internal/config"
	"github.com/coilhq/interledger-relay/internal/ilp"
	"github.com/coilhq/interledger-relay/internal/peerreg"
	"github.com/coilhq/interledger-relay/pkg/eventbus"
	"github.com/coilhq/interledger-relay/pkg/humanize"
	"github.com/coilhq/interledger-relay/shared/events"
)

// Config toggles which packet kinds are observed.
type Config struct {
	LogPrepare bool
	LogFulfill bool
	LogReject  bool
}

// Enabled reports whether any observation is turned on.
func (c Config) Enabled() bool {
	return c.LogPrepare || c.LogFulfill || c.LogReject
}

// Service implements inbound.Observer.
type Service struct {
	cfg  Config
	root config.RootConfig
	bus  *eventbus.Bus
}

// New builds a Service. bus may be nil, in which case events are logged but
// not published.
func New(cfg Config, root config.RootConfig, bus *eventbus.Bus) *Service {
	return &Service{cfg: cfg, root: root, bus: bus}
}

func (s *Service) OnPrepare(peer *peerreg.Peer, p ilp.Prepare) {
	if !s.cfg.LogPrepare {
		return
	}
	amount := humanize.Amount(p.Amount, s.root.AssetScale, s.root.AssetCode)
	log.Printf("prepare peer=%s dest=%s amount=%s", peer.AccountName, p.Destination, amount)
	s.publish(events.DebugEvent{
		Kind:          events.KindPrepare,
		Destination:   p.Destination,
		AmountDisplay: amount,
		Timestamp:     time.Now(),
	})
}

func (s *Service) OnFulfill(peer *peerreg.Peer, p ilp.Prepare, f ilp.Fulfill, subRouteID string) {
	if !s.cfg.LogFulfill {
		return
	}
	amount := humanize.Amount(p.Amount, s.root.AssetScale, s.root.AssetCode)
	log.Printf("fulfill peer=%s dest=%s amount=%s sub_route=%s", peer.AccountName, p.Destination, amount, subRouteID)
	s.publish(events.DebugEvent{
		Kind:          events.KindFulfill,
		Destination:   p.Destination,
		AmountDisplay: amount,
		SubRouteID:    subRouteID,
		Timestamp:     time.Now(),
	})
}

func (s *Service) OnReject(peer *peerreg.Peer, p ilp.Prepare, r ilp.Reject, subRouteID string) {
	if !s.cfg.LogReject {
		return
	}
	amount := humanize.Amount(p.Amount, s.root.AssetScale, s.root.AssetCode)
	log.Printf("reject peer=%s dest=%s amount=%s code=%s sub_route=%s", peer.AccountName, p.Destination, amount, r.Code, subRouteID)
	s.publish(events.DebugEvent{
		Kind:          events.KindReject,
		Destination:   p.Destination,
		AmountDisplay: amount,
		RejectCode:    r.Code,
		SubRouteID:    subRouteID,
		Timestamp:     time.Now(),
	})
}

func (s *Service) publish(ev events.DebugEvent) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(context.Background(), "debug."+ev.Kind, ev)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// RegisterRoutes mounts GET /debug/stream on router. No-op if bus is nil.
func (s *Service) RegisterRoutes(router *gin.Engine) {
	if s.bus == nil {
		return
	}
	router.GET("/debug/stream", s.handleStream)
}

func (s *Service) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	id, ch := s.bus.Subscribe()
	defer s.bus.Unsubscribe(id)

	// The stream is read-only: drain and discard anything the client sends
	// so pings/close frames are still processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for ev := range ch {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}
