package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/store"
)

const maxRoomIDLen = 64

// Guard admits room-scoped operations only while the room exists. Knowing a
// live room id is the only credential; there is no caching, every call hits
// the store.
type Guard struct {
	store store.Store
}

func NewGuard(st store.Store) *Guard {
	return &Guard{store: st}
}

// Authorize returns domain.ErrRoomNotFound for unknown, expired or destroyed
// rooms and domain.ErrStoreUnavailable when the store cannot answer.
func (g *Guard) Authorize(ctx context.Context, roomID string) error {
	if !validRoomID(roomID) {
		return domain.ErrRoomNotFound
	}
	ok, err := g.store.Exists(ctx, store.RoomKey(roomID))
	if err != nil {
		return fmt.Errorf("authorize room %s: %w", roomID, err)
	}
	if !ok {
		return domain.ErrRoomNotFound
	}
	return nil
}

// validRoomID accepts the URL-safe alphabet room ids are generated from. Any
// other id cannot name a room and must not reach the store key space.
func validRoomID(id string) bool {
	if id == "" || len(id) > maxRoomIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_', c == '-':
		default:
			return false
		}
	}
	return true
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return domain.ErrRoomNotFound
	}
	return err
}
