package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToLocalSubscribers(t *testing.T) {
	b := New("", "test")
	defer b.Close()

	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	b.Publish(context.Background(), "debug.prepare", map[string]string{"kind": "prepare"})

	select {
	case ev := <-ch:
		assert.Equal(t, map[string]string{"kind": "prepare"}, ev)
	case <-time.After(time.Second):
		t.Fatal("did not receive published event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New("", "test")
	defer b.Close()

	id, ch := b.Subscribe()
	b.Unsubscribe(id)

	b.Publish(context.Background(), "debug.prepare", "hello")

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after Unsubscribe")
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := New("", "test")
	defer b.Close()

	_, ch := b.Subscribe()
	_ = ch // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			b.Publish(context.Background(), "debug.prepare", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}

func TestNewWithNoURLHasNoExternalClient(t *testing.T) {
	b := New("", "test")
	require.NotNil(t, b)
	assert.Nil(t, b.client)
}
