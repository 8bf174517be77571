package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerPublishSubscribe(t *testing.T) {
	b := NewBroker()
	rid := "r1"
	ch := b.Subscribe(rid)

	evt := Event{Type: EventSnapshot, Data: map[string]any{"x": 1}}
	b.Publish(rid, evt)
	b.Publish("other", Event{Type: "ignored"})

	select {
	case got := <-ch:
		assert.Equal(t, evt.Type, got.Type)
		assert.Equal(t, 1, got.Data["x"])
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe(rid, ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	// a second unsubscribe is a no-op
	b.Unsubscribe(rid, ch)
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	b := NewRedisBrokerClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer b.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Ping(ctx))

	ch := b.Subscribe("r1")
	b.Publish("r1", Event{Type: EventRunFinished, Data: map[string]any{"status": "done"}})
	select {
	case got := <-ch:
		assert.Equal(t, EventRunFinished, got.Type)
		assert.Equal(t, "done", got.Data["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	b.Unsubscribe("r1", ch)
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}
