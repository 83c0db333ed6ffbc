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
	other := b.Subscribe("r2")

	evt := SSEEvent{Type: EventRunProgress, Data: map[string]any{"x": 1}}
	b.Publish(rid, evt)

	select {
	case got := <-ch:
		assert.Equal(t, evt.Type, got.Type)
		assert.Equal(t, 1, got.Data["x"])
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timeout waiting for event")
	}
	select {
	case got := <-other:
		t.Fatalf("event leaked to another run: %+v", got)
	default:
	}

	b.Unsubscribe(rid, ch)
	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")
	b.Unsubscribe(rid, ch) // second call is a no-op
	b.Publish(rid, evt)    // no subscribers left
}

func TestBrokerPublishDoesNotBlock(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r1")
	defer b.Unsubscribe("r1", ch)
	for i := 0; i < 100; i++ {
		b.Publish("r1", SSEEvent{Type: EventRunProgress})
	}
	assert.Equal(t, cap(ch), len(ch))
}

func TestBrokerCompletionSurvivesFullBuffer(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r1")
	for i := 0; i < cap(ch); i++ {
		b.Publish("r1", SSEEvent{Type: EventRunProgress, Data: map[string]any{"iteration": i}})
	}
	require.Equal(t, cap(ch), len(ch))
	b.Publish("r1", SSEEvent{Type: EventRunCompleted})
	b.Unsubscribe("r1", ch)

	var got []SSEEvent
	for evt := range ch {
		got = append(got, evt)
	}
	require.Len(t, got, cap(ch))
	assert.Equal(t, 1, got[0].Data["iteration"], "the oldest progress event is evicted")
	assert.Equal(t, EventRunCompleted, got[len(got)-1].Type)
}

func TestRedisBroker(t *testing.T) {
	mr := miniredis.RunT(t)
	b, err := NewRedisBroker(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	defer b.Close()

	ch := b.Subscribe("run-1")
	b.Publish("run-1", SSEEvent{Type: EventRunCompleted, Data: map[string]any{"runId": "run-1", "cost": 12.5}})

	select {
	case got := <-ch:
		assert.Equal(t, EventRunCompleted, got.Type)
		assert.Equal(t, "run-1", got.Data["runId"])
		assert.Equal(t, 12.5, got.Data["cost"])
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for redis event")
	}
	assert.Equal(t, []string{"run:run-1"}, mr.PubSubChannels("run:*"))

	b.Unsubscribe("run-1", ch)
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after unsubscribe")
	}
}

func TestRedisBrokerUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()
	_, err = newRedisBroker(context.Background(), redis.NewClient(&redis.Options{Addr: addr, MaxRetries: -1}))
	assert.Error(t, err)
}
