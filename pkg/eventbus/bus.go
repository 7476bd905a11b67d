// Package eventbus is the optional transport behind the debug/observability
// subsystem (spec §4.9). It wraps the teacher's NATS client and degrades to
// a local in-process fan-out when no external bus URL is configured or the
// connection attempt fails, so the relay carries no hard external
// dependency for an otherwise dependency-free core.
package eventbus

import (
	"context"
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/coilhq/interledger-relay/pkg/messaging"
)

// subscriberBuffer bounds how far a slow WebSocket subscriber may lag before
// events are dropped for it rather than blocking publishers.
const subscriberBuffer = 64

// Bus fans events out to local subscribers and, optionally, to an external
// NATS subject.
type Bus struct {
	client *messaging.Client // nil when no URL is configured or dial failed

	mu          sync.RWMutex
	subscribers map[uuid.UUID]chan any
}

// New builds a Bus. If url is non-empty, it attempts to connect a NATS
// client; on any failure it logs and continues in local-only mode.
func New(url, name string) *Bus {
	b := &Bus{subscribers: make(map[uuid.UUID]chan any)}
	if url == "" {
		return b
	}

	client, err := messaging.NewClient(messaging.Config{
		URL:            url,
		Name:           name,
		ReconnectWait:  0,
		MaxReconnects:  0,
		ConnectTimeout: 0,
	})
	if err != nil {
		log.Printf("eventbus: could not connect to %s, falling back to local fan-out only: %v", url, err)
		return b
	}
	b.client = client
	return b
}

// Publish fans out ev to every local subscriber and, if an external bus is
// connected, to subject there too. Never blocks on a slow subscriber.
func (b *Bus) Publish(ctx context.Context, subject string, ev any) {
	if b.client != nil {
		if err := b.client.Publish(ctx, subject, ev); err != nil {
			log.Printf("eventbus: publish to %s failed: %v", subject, err)
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber is behind; drop rather than block the publisher.
		}
	}
}

// Subscribe registers a new local subscriber and returns its id and channel.
func (b *Bus) Subscribe() (uuid.UUID, <-chan any) {
	id := uuid.New()
	ch := make(chan any, subscriberBuffer)
	b.mu.Lock()
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes id's channel.
func (b *Bus) Unsubscribe(id uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Close releases the external connection, if any.
func (b *Bus) Close() error {
	if b.client != nil {
		return b.client.Close()
	}
	return nil
}
