package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/eventbus"
	"github.com/cwrk-planet/ephemeral-chat/internal/store"

	"github.com/stretchr/testify/require"
)

func TestReaper_SweepAnnouncesExpiredRoom(t *testing.T) {
	req := require.New(t)
	f := setupRedis(t)
	ctx := context.Background()

	// Given a room with the default 600s TTL and a subscriber that joined earlier
	room, err := f.rooms.CreateRoom(ctx)
	req.NoError(err)
	sub := subscribe(t, f.bus, room.ID)
	reaper := NewReaper(f.rooms, f.store, staticRooms{room.ID}, ReaperConfig{}, slog.Default())

	req.Zero(reaper.Sweep(ctx))
	expectSilence(t, sub)

	// When the TTL runs out
	f.mr.FastForward(601 * time.Second)

	// Then one sweep announces it and later sweeps stay quiet
	req.Equal(1, reaper.Sweep(ctx))
	expectEvent(t, sub, eventbus.EventDestroy)
	req.Zero(reaper.Sweep(ctx))
	expectSilence(t, sub)

	_, err = f.messages.Append(ctx, room.ID, "lion_a1b2", "hi")
	req.ErrorIs(err, domain.ErrRoomNotFound)
}

func TestReaper_ExpiredIgnoresNonRoomKeys(t *testing.T) {
	req := require.New(t)
	f := setupRedis(t)
	ctx := context.Background()
	reaper := NewReaper(f.rooms, f.store, nil, ReaperConfig{}, slog.Default())

	req.False(reaper.Expired(ctx, store.MessagesKey("abc")))
	req.False(reaper.Expired(ctx, store.TombstoneKey("abc")))
	req.False(reaper.Expired(ctx, "session:abc"))

	req.True(reaper.Expired(ctx, store.RoomKey("abc")))
	req.False(reaper.Expired(ctx, store.RoomKey("abc")))
	req.Zero(reaper.Sweep(ctx))
}

func TestReaper_RunConsumesKeyspaceNotifications(t *testing.T) {
	f := setupRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	room, err := f.rooms.CreateRoom(ctx)
	require.NoError(t, err)
	sub := subscribe(t, f.bus, room.ID)

	// an hour-long sweep leaves the notification path as the only trigger
	reaper := NewReaper(f.rooms, f.store, staticRooms{room.ID},
		ReaperConfig{SweepInterval: time.Hour, KeyspaceEvents: true}, slog.Default())
	done := make(chan error, 1)
	go func() { done <- reaper.Run(ctx) }()

	f.mr.FastForward(601 * time.Second)

	// Redis would emit this on expiry; keep emitting until the reaper has subscribed
	require.Eventually(t, func() bool {
		f.mr.Publish("__keyevent@0__:expired", store.RoomKey(room.ID))
		select {
		case evt := <-sub.Events():
			return evt.Name == eventbus.EventDestroy
		default:
			return false
		}
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reaper did not stop")
	}
}

func TestWatchedRooms_MergesSources(t *testing.T) {
	w := WatchedRooms{staticRooms{"a", "b"}, staticRooms{"b", "c"}, staticRooms{}}
	require.ElementsMatch(t, []string{"a", "b", "c"}, w.ActiveRooms())
}
