package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coilhq/interledger-relay/internal/alerting"
	"github.com/coilhq/interledger-relay/internal/config"
	"github.com/coilhq/interledger-relay/internal/debugsvc"
	"github.com/coilhq/interledger-relay/internal/failover"
	"github.com/coilhq/interledger-relay/internal/ildcp"
	"github.com/coilhq/interledger-relay/internal/inbound"
	"github.com/coilhq/interledger-relay/internal/nexthop"
	"github.com/coilhq/interledger-relay/internal/selector"
	"github.com/coilhq/interledger-relay/pkg/eventbus"
)

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func main() {
	bindAddr := getEnv("RELAY_BIND", ":8000")
	rawConfig := os.Getenv("RELAY_CONFIG")
	if rawConfig == "" {
		log.Fatal("RELAY_CONFIG is required")
	}

	cfg, err := config.Load([]byte(rawConfig))
	if err != nil {
		log.Fatalf("failed to load RELAY_CONFIG: %v", err)
	}

	listener, bus, root, err := bootstrap(cfg, bindAddr)
	if err != nil {
		log.Fatalf("relay startup failed: %v", err)
	}

	alertEngine := alerting.NewEngine(bus)
	bootCtx, cancelBoot := context.WithCancel(context.Background())
	defer cancelBoot()
	alertEngine.Start(bootCtx)

	nextHop := nexthop.New(nil)
	nextHop.OnTrip = alertEngine.NotifyTrip

	arena := failover.NewArena(cfg.FailoverPolicies)
	sel := selector.New(cfg.Table, arena, cfg.Partition)

	var observer inbound.Observer
	if cfg.Debug.LogPrepare || cfg.Debug.LogFulfill || cfg.Debug.LogReject {
		observer = debugsvc.New(debugsvc.Config{
			LogPrepare: cfg.Debug.LogPrepare,
			LogFulfill: cfg.Debug.LogFulfill,
			LogReject:  cfg.Debug.LogReject,
		}, root, bus)
	}

	svc := inbound.New(inbound.Config{
		Registry: cfg.Registry,
		Selector: sel,
		NextHop:  nextHop,
		Root:     root,
		Observer: observer,
	})
	if dbg, ok := observer.(*debugsvc.Service); ok {
		dbg.RegisterRoutes(svc.Router())
	}

	runServer(svc, listener, alertEngine)
}

// bootstrap coordinates the three independent startup steps (spec §5):
// binding the listener, connecting the event bus, and resolving this
// relay's own address over ILDCP when configured as a dynamic root. A
// failure in any one aborts the others.
func bootstrap(cfg *config.Config, bindAddr string) (net.Listener, *eventbus.Bus, config.RootConfig, error) {
	g, gctx := errgroup.WithContext(context.Background())

	var listener net.Listener
	g.Go(func() error {
		l, err := net.Listen("tcp", bindAddr)
		if err != nil {
			return err
		}
		listener = l
		return nil
	})

	var bus *eventbus.Bus
	g.Go(func() error {
		bus = eventbus.New(cfg.Debug.EventBusURL, "relay")
		return nil
	})

	var root config.RootConfig
	g.Go(func() error {
		if cfg.Root.Mode != config.Dynamic {
			root = config.RootConfig{Address: cfg.Root.Address, AssetScale: cfg.Root.AssetScale, AssetCode: cfg.Root.AssetCode}
			return nil
		}
		resolved, err := ildcp.Resolve(gctx, nexthop.New(nil), cfg.Root, time.Now())
		if err != nil {
			return err
		}
		root = resolved
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, config.RootConfig{}, err
	}
	return listener, bus, root, nil
}

func runServer(svc *inbound.Service, listener net.Listener, alertEngine *alerting.Engine) {
	srv := &http.Server{
		Handler:      svc.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("relay listening on %s", listener.Addr())
		serveErr <- srv.Serve(listener)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("relay server error: %v", err)
		}
	case <-quit:
		log.Println("shutting down relay...")
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("relay shutdown error: %v", err)
		}
		alertEngine.Stop()
		log.Println("relay stopped")
	}
}
