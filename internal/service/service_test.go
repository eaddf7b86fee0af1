package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/eventbus"
	"github.com/cwrk-planet/ephemeral-chat/internal/mocks"
	"github.com/cwrk-planet/ephemeral-chat/internal/store"
	"github.com/cwrk-planet/ephemeral-chat/internal/store/badgerstore"
	"github.com/cwrk-planet/ephemeral-chat/internal/store/redisstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	mr       *miniredis.Miniredis
	store    store.Store
	bus      *eventbus.Local
	rooms    *RoomService
	messages *MessageService
}

func newFixture(t *testing.T, st store.Store, bus eventbus.Bus) (*RoomService, *MessageService) {
	t.Helper()
	guard := NewGuard(st)
	rooms, err := NewRoomService(st, bus, guard, RoomConfig{TTL: domain.DefaultRoomTTL}, slog.Default())
	require.NoError(t, err)
	return rooms, NewMessageService(st, bus, guard, slog.Default())
}

func setupRedis(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st := redisstore.New(client, slog.Default())
	bus := eventbus.NewLocal(16, slog.Default())
	rooms, messages := newFixture(t, st, bus)
	return &fixture{mr: mr, store: st, bus: bus, rooms: rooms, messages: messages}
}

func setupBadger(t *testing.T) *fixture {
	t.Helper()
	db, err := badgerstore.Open(badgerstore.Config{InMemory: true})
	require.NoError(t, err)
	st := badgerstore.New(db, slog.Default())
	t.Cleanup(func() { _ = st.Close() })

	bus := eventbus.NewLocal(16, slog.Default())
	rooms, messages := newFixture(t, st, bus)
	return &fixture{store: st, bus: bus, rooms: rooms, messages: messages}
}

func subscribe(t *testing.T, bus eventbus.Bus, roomID string) eventbus.Subscription {
	t.Helper()
	sub, err := bus.Subscribe(context.Background(), roomID)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func expectEvent(t *testing.T, sub eventbus.Subscription, name string) {
	t.Helper()
	select {
	case evt := <-sub.Events():
		require.Equal(t, name, evt.Name)
	case <-time.After(2 * time.Second):
		t.Fatalf("no %s event", name)
	}
}

func expectSilence(t *testing.T, sub eventbus.Subscription) {
	t.Helper()
	select {
	case evt := <-sub.Events():
		t.Fatalf("unexpected event %+v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

type staticRooms []string

func (s staticRooms) ActiveRooms() []string { return s }

func TestScenario_AppendAndList(t *testing.T) {
	backends := map[string]func(*testing.T) *fixture{
		"redis":  setupRedis,
		"badger": setupBadger,
	}
	for name, setup := range backends {
		t.Run(name, func(t *testing.T) {
			req := require.New(t)
			f := setup(t)
			ctx := context.Background()

			// Given a fresh room with one subscriber
			room, err := f.rooms.CreateRoom(ctx)
			req.NoError(err)
			req.Len(room.ID, roomIDLength)
			req.EqualValues(600, room.TTLSeconds)
			sub := subscribe(t, f.bus, room.ID)

			// When lion_a1b2 says hi
			msg, err := f.messages.Append(ctx, room.ID, "lion_a1b2", "hi")
			req.NoError(err)
			req.EqualValues(1, msg.Seq)

			// Then the subscriber is told and the log holds exactly that message
			expectEvent(t, sub, eventbus.EventMessage)
			list, err := f.messages.List(ctx, room.ID)
			req.NoError(err)
			req.Len(list, 1)
			req.Equal("lion_a1b2", list[0].Sender)
			req.Equal("hi", list[0].Text)
			req.Equal(msg.ID, list[0].ID)
			req.EqualValues(1, list[0].Seq)
			req.False(list[0].Timestamp.IsZero())
		})
	}
}

func TestMessageService_ListKeepsAppendOrder(t *testing.T) {
	req := require.New(t)
	f := setupRedis(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx)
	req.NoError(err)
	for i := 1; i <= 5; i++ {
		_, err := f.messages.Append(ctx, room.ID, "tiger_c3d4", fmt.Sprintf("msg %d", i))
		req.NoError(err)
	}

	list, err := f.messages.List(ctx, room.ID)
	req.NoError(err)
	req.Len(list, 5)
	for i, m := range list {
		req.Equal(fmt.Sprintf("msg %d", i+1), m.Text)
		req.EqualValues(i+1, m.Seq)
	}
}

func TestRoomService_TTLDecreasesAndIsNotRefreshed(t *testing.T) {
	req := require.New(t)
	f := setupRedis(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx)
	req.NoError(err)
	ttl, err := f.rooms.GetRemainingTTL(ctx, room.ID)
	req.NoError(err)
	req.Equal(600*time.Second, ttl)

	f.mr.FastForward(100 * time.Second)
	_, err = f.messages.Append(ctx, room.ID, "lion_a1b2", "still here")
	req.NoError(err)

	after, err := f.rooms.GetRemainingTTL(ctx, room.ID)
	req.NoError(err)
	req.Equal(500*time.Second, after)
	req.Less(after, ttl)

	f.mr.FastForward(time.Second)
	later, err := f.rooms.GetRemainingTTL(ctx, room.ID)
	req.NoError(err)
	req.Less(later, after)
}

func TestRoomService_ExpiredRoomIsGone(t *testing.T) {
	req := require.New(t)
	f := setupRedis(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx)
	req.NoError(err)
	_, err = f.messages.Append(ctx, room.ID, "lion_a1b2", "hi")
	req.NoError(err)

	f.mr.FastForward(601 * time.Second)

	_, err = f.messages.Append(ctx, room.ID, "lion_a1b2", "too late")
	req.ErrorIs(err, domain.ErrRoomNotFound)
	_, err = f.messages.List(ctx, room.ID)
	req.ErrorIs(err, domain.ErrRoomNotFound)
	_, err = f.rooms.GetRemainingTTL(ctx, room.ID)
	req.ErrorIs(err, domain.ErrRoomNotFound)
	_, err = f.rooms.GetRoom(ctx, room.ID)
	req.ErrorIs(err, domain.ErrRoomNotFound)
	req.False(f.mr.Exists(store.MessagesKey(room.ID)))
}

func TestRoomService_DestroyIsIdempotentAndAnnouncedOnce(t *testing.T) {
	req := require.New(t)
	f := setupRedis(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx)
	req.NoError(err)
	_, err = f.messages.Append(ctx, room.ID, "lion_a1b2", "bye")
	req.NoError(err)
	sub := subscribe(t, f.bus, room.ID)

	req.NoError(f.rooms.DestroyRoom(ctx, room.ID))
	req.ErrorIs(f.rooms.DestroyRoom(ctx, room.ID), domain.ErrRoomNotFound)

	expectEvent(t, sub, eventbus.EventDestroy)

	// a later sweep must not announce the same room again
	reaper := NewReaper(f.rooms, f.store, staticRooms{room.ID}, ReaperConfig{}, slog.Default())
	req.Zero(reaper.Sweep(ctx))
	expectSilence(t, sub)

	for _, key := range store.RoomKeys(room.ID) {
		req.False(f.mr.Exists(key), key)
	}
	_, err = f.messages.Append(ctx, room.ID, "lion_a1b2", "anyone?")
	req.ErrorIs(err, domain.ErrRoomNotFound)
}

func TestRoomService_JoinRoom(t *testing.T) {
	req := require.New(t)
	f := setupRedis(t)
	ctx := context.Background()

	room, err := f.rooms.CreateRoom(ctx)
	req.NoError(err)

	req.NoError(f.rooms.JoinRoom(ctx, room.ID, "tiger_c3d4"))
	req.NoError(f.rooms.JoinRoom(ctx, room.ID, "lion_a1b2"))
	req.NoError(f.rooms.JoinRoom(ctx, room.ID, "lion_a1b2"))

	got, err := f.rooms.GetRoom(ctx, room.ID)
	req.NoError(err)
	req.Equal(room.ID, got.ID)
	req.Equal([]string{"lion_a1b2", "tiger_c3d4"}, got.Participants)
	req.Equal(600*time.Second, f.mr.TTL(store.ParticipantsKey(room.ID)))

	req.ErrorIs(f.rooms.JoinRoom(ctx, room.ID, "   "), domain.ErrValidation)
	req.ErrorIs(f.rooms.JoinRoom(ctx, "nope", "lion_a1b2"), domain.ErrRoomNotFound)
}

func TestMessageService_Validation(t *testing.T) {
	f := setupRedis(t)
	ctx := context.Background()
	room, err := f.rooms.CreateRoom(ctx)
	require.NoError(t, err)

	cases := []struct {
		name   string
		sender string
		text   string
		ok     bool
	}{
		{name: "max text", sender: "lion_a1b2", text: strings.Repeat("a", 1000), ok: true},
		{name: "max text in runes", sender: "lion_a1b2", text: strings.Repeat("ж", 1000), ok: true},
		{name: "text too long", sender: "lion_a1b2", text: strings.Repeat("a", 1001)},
		{name: "blank text", sender: "lion_a1b2", text: " \t "},
		{name: "empty sender", sender: "", text: "hi"},
		{name: "sender too long", sender: strings.Repeat("s", 101), text: "hi"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.messages.Append(ctx, room.ID, tc.sender, tc.text)
			if tc.ok {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestMessageService_RejectedTextTouchesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	// no expectations: any store write or publish fails the test
	st := mocks.NewMockStore(ctrl)
	bus := mocks.NewMockBus(ctrl)
	_, messages := newFixture(t, st, bus)

	_, err := messages.Append(context.Background(), "abc", "lion_a1b2", strings.Repeat("x", 1001))
	require.ErrorIs(t, err, domain.ErrValidation)
	require.Contains(t, err.Error(), "text must be at most 1000 characters")
}

func TestMessageService_StoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	bus := mocks.NewMockBus(ctrl)
	_, messages := newFixture(t, st, bus)

	down := fmt.Errorf("redis exists: %w: %w", domain.ErrStoreUnavailable, errors.New("connection refused"))
	st.EXPECT().Exists(gomock.Any(), store.RoomKey("abc")).Return(false, down)

	_, err := messages.Append(context.Background(), "abc", "lion_a1b2", "hi")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	require.NotErrorIs(t, err, domain.ErrRoomNotFound)
}

func TestMessageService_PublishFailureIsNotFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	bus := mocks.NewMockBus(ctrl)
	rooms, messages := newFixture(t, redisstore.New(client, slog.Default()), bus)
	ctx := context.Background()

	room, err := rooms.CreateRoom(ctx)
	require.NoError(t, err)

	bus.EXPECT().
		Publish(gomock.Any(), eventbus.RoomEvent(eventbus.EventMessage, room.ID)).
		Return(errors.New("bus down"))

	msg, err := messages.Append(ctx, room.ID, "lion_a1b2", "hi")
	require.NoError(t, err)
	require.EqualValues(t, 1, msg.Seq)
}

func TestRoomService_CreateStoreUnavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	rooms, _ := newFixture(t, st, mocks.NewMockBus(ctrl))

	st.EXPECT().
		SetNX(gomock.Any(), gomock.Any(), gomock.Any(), domain.DefaultRoomTTL).
		Return(false, fmt.Errorf("redis setnx: %w", domain.ErrStoreUnavailable))

	_, err := rooms.CreateRoom(context.Background())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
}

func TestRoomService_MalformedIDNeverReachesStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	rooms, messages := newFixture(t, mocks.NewMockStore(ctrl), mocks.NewMockBus(ctrl))
	ctx := context.Background()

	for _, id := range []string{"", "a:b", "../etc", "room id", strings.Repeat("a", 65)} {
		_, err := rooms.GetRemainingTTL(ctx, id)
		require.ErrorIs(t, err, domain.ErrRoomNotFound, id)
		require.ErrorIs(t, rooms.DestroyRoom(ctx, id), domain.ErrRoomNotFound, id)
		_, err = messages.List(ctx, id)
		require.ErrorIs(t, err, domain.ErrRoomNotFound, id)
	}
}

func TestRoomService_TombstoneFailureStillAnnounces(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	bus := mocks.NewMockBus(ctrl)
	rooms, _ := newFixture(t, st, bus)

	st.EXPECT().
		Delete(gomock.Any(), store.RoomKey("abc"), store.MessagesKey("abc"), store.ParticipantsKey("abc")).
		Return(int64(3), nil)
	st.EXPECT().
		SetNX(gomock.Any(), store.TombstoneKey("abc"), gomock.Any(), DefaultTombstoneTTL).
		Return(false, fmt.Errorf("redis setnx: %w", domain.ErrStoreUnavailable))
	bus.EXPECT().Publish(gomock.Any(), eventbus.RoomEvent(eventbus.EventDestroy, "abc")).Return(nil)

	require.NoError(t, rooms.DestroyRoom(context.Background(), "abc"))
}
