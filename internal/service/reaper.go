package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/store"

	"github.com/samber/lo"
)

const DefaultSweepInterval = 5 * time.Second

// ActiveRooms lists rooms somebody is currently watching.
type ActiveRooms interface {
	ActiveRooms() []string
}

// WatchedRooms merges several ActiveRooms sources.
type WatchedRooms []ActiveRooms

func (w WatchedRooms) ActiveRooms() []string {
	return lo.Uniq(lo.FlatMap(w, func(a ActiveRooms, _ int) []string { return a.ActiveRooms() }))
}

type ReaperConfig struct {
	SweepInterval time.Duration
	// KeyspaceEvents enables push notifications from stores that implement
	// store.ExpiryNotifier.
	KeyspaceEvents bool
}

// Reaper turns TTL expiry into chat.destroy announcements. Pushed expirations
// give low latency; the sweep over watched rooms catches anything the push
// path lost.
type Reaper struct {
	rooms  *RoomService
	store  store.Store
	active ActiveRooms
	cfg    ReaperConfig
	log    *slog.Logger
}

func NewReaper(rooms *RoomService, st store.Store, active ActiveRooms, cfg ReaperConfig, log *slog.Logger) *Reaper {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	return &Reaper{rooms: rooms, store: st, active: active, cfg: cfg, log: log}
}

// Run blocks until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	var expired <-chan string
	if n, ok := r.store.(store.ExpiryNotifier); ok && r.cfg.KeyspaceEvents {
		ch, err := n.Expirations(ctx)
		if err != nil {
			r.log.Warn("reaper: expiry notifications unavailable, sweeping only", slog.Any("err", err))
		} else {
			expired = ch
		}
	}

	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	r.log.Info("reaper started",
		slog.Duration("sweep_interval", r.cfg.SweepInterval),
		slog.Bool("keyspace_events", expired != nil))

	for {
		select {
		case <-ctx.Done():
			return nil
		case key, ok := <-expired:
			if !ok {
				r.log.Warn("reaper: expiry notifications stopped")
				expired = nil
				continue
			}
			r.Expired(ctx, key)
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Expired handles one expired store key. Keys other than room metadata are
// ignored.
func (r *Reaper) Expired(ctx context.Context, key string) bool {
	roomID, ok := store.RoomIDFromKey(key)
	if !ok {
		return false
	}
	return r.rooms.AnnounceDestroyed(ctx, roomID, "expired")
}

// Sweep announces every watched room whose metadata is gone and returns how
// many it announced.
func (r *Reaper) Sweep(ctx context.Context) int {
	if r.active == nil {
		return 0
	}
	var n int
	for _, roomID := range r.active.ActiveRooms() {
		ok, err := r.store.Exists(ctx, store.RoomKey(roomID))
		if err != nil {
			r.log.Warn("reaper: room check failed", slog.String("room_id", roomID), slog.Any("err", err))
			continue
		}
		if !ok && r.rooms.AnnounceDestroyed(ctx, roomID, "expired") {
			n++
		}
	}
	if n > 0 {
		r.log.Debug("reaper: sweep announced expired rooms", slog.Int("count", n))
	}
	return n
}
