package redisstore

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client, slog.Default()), mr
}

func TestStore_SetGetTTL(t *testing.T) {
	req := require.New(t)
	s, mr := setupStore(t)
	ctx := context.Background()

	// Given a key written with a ten minute TTL
	req.NoError(s.Set(ctx, "room:a", []byte(`{"id":"a"}`), 10*time.Minute))

	data, err := s.Get(ctx, "room:a")
	req.NoError(err)
	req.JSONEq(`{"id":"a"}`, string(data))

	ttl, err := s.TTL(ctx, "room:a")
	req.NoError(err)
	req.Equal(10*time.Minute, ttl)

	// When time moves past the TTL
	mr.FastForward(10*time.Minute + time.Second)

	// Then the key is gone everywhere
	_, err = s.Get(ctx, "room:a")
	req.ErrorIs(err, store.ErrNotFound)
	_, err = s.TTL(ctx, "room:a")
	req.ErrorIs(err, store.ErrNotFound)
	ok, err := s.Exists(ctx, "room:a")
	req.NoError(err)
	req.False(ok)
}

func TestStore_TTLWithoutExpiry(t *testing.T) {
	s, _ := setupStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v"), 0))
	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	require.Zero(t, ttl)
}

func TestStore_SetNX(t *testing.T) {
	req := require.New(t)
	s, _ := setupStore(t)
	ctx := context.Background()

	first, err := s.SetNX(ctx, "tomb", []byte("1"), time.Minute)
	req.NoError(err)
	req.True(first)

	second, err := s.SetNX(ctx, "tomb", []byte("1"), time.Minute)
	req.NoError(err)
	req.False(second)
}

func TestStore_AppendIfExists_InheritsOwnerTTL(t *testing.T) {
	req := require.New(t)
	s, mr := setupStore(t)
	ctx := context.Background()

	req.NoError(s.Set(ctx, "room:a", []byte("{}"), time.Minute))
	mr.FastForward(20 * time.Second)

	n, err := s.AppendIfExists(ctx, "room:a", "room:a:messages", []byte("one"))
	req.NoError(err)
	req.EqualValues(1, n)
	n, err = s.AppendIfExists(ctx, "room:a", "room:a:messages", []byte("two"))
	req.NoError(err)
	req.EqualValues(2, n)

	// The list expires with the owner, not a full minute after the append
	req.Equal(40*time.Second, mr.TTL("room:a:messages"))

	items, err := s.Range(ctx, "room:a:messages")
	req.NoError(err)
	req.Equal([][]byte{[]byte("one"), []byte("two")}, items)

	mr.FastForward(41 * time.Second)
	req.False(mr.Exists("room:a:messages"))
}

func TestStore_AppendIfExists_MissingOwner(t *testing.T) {
	req := require.New(t)
	s, mr := setupStore(t)
	ctx := context.Background()

	_, err := s.AppendIfExists(ctx, "room:missing", "room:missing:messages", []byte("x"))
	req.ErrorIs(err, store.ErrNotFound)
	req.False(mr.Exists("room:missing:messages"))
}

func TestStore_AddIfExistsAndMembers(t *testing.T) {
	req := require.New(t)
	s, _ := setupStore(t)
	ctx := context.Background()

	req.ErrorIs(s.AddIfExists(ctx, "room:a", "room:a:participants", "lion_a1b2"), store.ErrNotFound)

	req.NoError(s.Set(ctx, "room:a", []byte("{}"), time.Minute))
	req.NoError(s.AddIfExists(ctx, "room:a", "room:a:participants", "tiger_c3d4"))
	req.NoError(s.AddIfExists(ctx, "room:a", "room:a:participants", "lion_a1b2"))
	req.NoError(s.AddIfExists(ctx, "room:a", "room:a:participants", "lion_a1b2"))

	members, err := s.Members(ctx, "room:a:participants")
	req.NoError(err)
	req.Equal([]string{"lion_a1b2", "tiger_c3d4"}, members)
}

func TestStore_DeleteCountsExisting(t *testing.T) {
	req := require.New(t)
	s, _ := setupStore(t)
	ctx := context.Background()

	req.NoError(s.Set(ctx, "room:a", []byte("{}"), time.Minute))
	_, err := s.AppendIfExists(ctx, "room:a", "room:a:messages", []byte("m"))
	req.NoError(err)

	n, err := s.Delete(ctx, store.RoomKeys("a")...)
	req.NoError(err)
	req.EqualValues(2, n)

	n, err = s.Delete(ctx, store.RoomKeys("a")...)
	req.NoError(err)
	req.Zero(n)
}

func TestStore_UnavailableIsWrapped(t *testing.T) {
	s, mr := setupStore(t)
	mr.Close()

	_, err := s.Get(context.Background(), "room:a")
	require.Error(t, err)
	require.True(t, errors.Is(err, domain.ErrStoreUnavailable), "got %v", err)
	require.False(t, errors.Is(err, store.ErrNotFound))
}
