package redisbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/eventbus"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupBus(t *testing.T) (*Bus, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, 8, slog.Default()), mr
}

func next(t *testing.T, sub eventbus.Subscription) eventbus.Event {
	t.Helper()
	select {
	case evt, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
		return eventbus.Event{}
	}
}

func TestBus_PublishReachesSubscriber(t *testing.T) {
	req := require.New(t)
	bus, _ := setupBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "room-1")
	req.NoError(err)
	defer sub.Close()

	req.NoError(bus.Publish(ctx, eventbus.RoomEvent(eventbus.EventMessage, "room-1")))
	req.NoError(bus.Publish(ctx, eventbus.RoomEvent(eventbus.EventDestroy, "room-1")))

	first := next(t, sub)
	req.Equal("room-1", first.Channel)
	req.Equal(eventbus.EventMessage, first.Name)
	var p eventbus.RoomPayload
	req.NoError(json.Unmarshal(first.Data, &p))
	req.Equal("room-1", p.RoomID)

	req.Equal(eventbus.EventDestroy, next(t, sub).Name)
}

func TestBus_WireFormat(t *testing.T) {
	bus, mr := setupBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	defer sub.Close()

	// events from other publishers use the same envelope
	mr.Publish(ChannelPrefix+"room-1", `{"event":"chat.message","data":{"roomId":"room-1"}}`)
	evt := next(t, sub)
	require.Equal(t, eventbus.EventMessage, evt.Name)
	require.JSONEq(t, `{"roomId":"room-1"}`, string(evt.Data))
}

func TestBus_MalformedPayloadSkipped(t *testing.T) {
	bus, mr := setupBus(t)
	ctx := context.Background()

	sub, err := bus.Subscribe(ctx, "room-1")
	require.NoError(t, err)
	defer sub.Close()

	mr.Publish(ChannelPrefix+"room-1", "not json")
	require.NoError(t, bus.Publish(ctx, eventbus.RoomEvent(eventbus.EventDestroy, "room-1")))
	require.Equal(t, eventbus.EventDestroy, next(t, sub).Name)
}

func TestBus_CloseEndsStream(t *testing.T) {
	bus, _ := setupBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, "room-1", "room-2")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-sub.Events():
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, sub.Close())
}

func TestBus_PublishUnavailable(t *testing.T) {
	bus, mr := setupBus(t)
	mr.Close()
	require.Error(t, bus.Publish(context.Background(), eventbus.RoomEvent(eventbus.EventMessage, "room-1")))
}
