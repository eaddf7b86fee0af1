package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/eventbus"
	"github.com/cwrk-planet/ephemeral-chat/internal/store"

	nanoid "github.com/jaevor/go-nanoid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	roomIDLength        = 21
	DefaultTombstoneTTL = time.Hour
)

var tracer = otel.Tracer("github.com/cwrk-planet/ephemeral-chat/internal/service")

// RoomConfig tunes room lifetimes.
type RoomConfig struct {
	TTL time.Duration
	// TombstoneTTL is how long a destroyed room is remembered so its
	// destruction is announced only once.
	TombstoneTTL time.Duration
}

type RoomService struct {
	store store.Store
	bus   eventbus.Bus
	guard *Guard
	log   *slog.Logger

	ttl          time.Duration
	tombstoneTTL time.Duration
	newID        func() string
	now          func() time.Time
}

func NewRoomService(st store.Store, bus eventbus.Bus, guard *Guard, cfg RoomConfig, log *slog.Logger) (*RoomService, error) {
	gen, err := nanoid.Standard(roomIDLength)
	if err != nil {
		return nil, fmt.Errorf("nanoid: %w", err)
	}
	if cfg.TTL <= 0 {
		cfg.TTL = domain.DefaultRoomTTL
	}
	if cfg.TombstoneTTL <= 0 {
		cfg.TombstoneTTL = DefaultTombstoneTTL
	}
	return &RoomService{
		store:        st,
		bus:          bus,
		guard:        guard,
		log:          log,
		ttl:          cfg.TTL,
		tombstoneTTL: cfg.TombstoneTTL,
		newID:        gen,
		now:          time.Now,
	}, nil
}

// CreateRoom allocates a fresh room that lives for the configured TTL.
func (s *RoomService) CreateRoom(ctx context.Context) (_ *domain.Room, err error) {
	ctx, span := tracer.Start(ctx, "RoomService.CreateRoom")
	defer func() { endSpan(span, err) }()

	room := &domain.Room{
		ID:         s.newID(),
		CreatedAt:  s.now().UTC(),
		TTLSeconds: int64(s.ttl / time.Second),
	}
	span.SetAttributes(attribute.String("room.id", room.ID))

	data, err := json.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("encode room: %w", err)
	}
	created, err := s.store.SetNX(ctx, store.RoomKey(room.ID), data, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	if !created {
		// 126 random bits; seeing this means the generator is broken
		return nil, fmt.Errorf("create room: id %s already taken", room.ID)
	}

	s.log.InfoContext(ctx, "room created", slog.String("room_id", room.ID), slog.Duration("ttl", s.ttl))
	return room, nil
}

// GetRoom returns the room metadata together with its current participants.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (_ *domain.Room, err error) {
	ctx, span := tracer.Start(ctx, "RoomService.GetRoom", trace.WithAttributes(attribute.String("room.id", roomID)))
	defer func() { endSpan(span, err) }()

	if !validRoomID(roomID) {
		return nil, domain.ErrRoomNotFound
	}
	data, err := s.store.Get(ctx, store.RoomKey(roomID))
	if err != nil {
		return nil, notFound(err)
	}
	var room domain.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	members, err := s.store.Members(ctx, store.ParticipantsKey(roomID))
	if err != nil {
		return nil, err
	}
	room.Participants = members
	return &room, nil
}

// GetRemainingTTL reads the lifetime left straight from the store's expiry.
func (s *RoomService) GetRemainingTTL(ctx context.Context, roomID string) (time.Duration, error) {
	if !validRoomID(roomID) {
		return 0, domain.ErrRoomNotFound
	}
	ttl, err := s.store.TTL(ctx, store.RoomKey(roomID))
	if err != nil {
		return 0, notFound(err)
	}
	return ttl, nil
}

// DestroyRoom deletes the room with its log and participants and announces
// chat.destroy. Destroying a room that is already gone is ErrRoomNotFound and
// has no side effects.
func (s *RoomService) DestroyRoom(ctx context.Context, roomID string) (err error) {
	ctx, span := tracer.Start(ctx, "RoomService.DestroyRoom", trace.WithAttributes(attribute.String("room.id", roomID)))
	defer func() { endSpan(span, err) }()

	if !validRoomID(roomID) {
		return domain.ErrRoomNotFound
	}
	n, err := s.store.Delete(ctx, store.RoomKeys(roomID)...)
	if err != nil {
		return fmt.Errorf("destroy room %s: %w", roomID, err)
	}
	if n == 0 {
		return domain.ErrRoomNotFound
	}

	s.AnnounceDestroyed(ctx, roomID, "destroyed")
	return nil
}

// JoinRoom records participant in the room's advisory presence set.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, participant string) error {
	if err := checkInput(joinInput{Participant: participant}); err != nil {
		return err
	}
	if err := s.guard.Authorize(ctx, roomID); err != nil {
		return err
	}
	if err := s.store.AddIfExists(ctx, store.RoomKey(roomID), store.ParticipantsKey(roomID), participant); err != nil {
		return notFound(err)
	}
	s.log.DebugContext(ctx, "participant joined", slog.String("room_id", roomID), slog.String("participant", participant))
	return nil
}

// AnnounceDestroyed publishes chat.destroy for roomID unless another path has
// already done so. It reports whether this call published.
func (s *RoomService) AnnounceDestroyed(ctx context.Context, roomID, reason string) bool {
	first, err := s.store.SetNX(ctx, store.TombstoneKey(roomID), []byte(reason), s.tombstoneTTL)
	switch {
	case err != nil:
		// publish anyway: subscribers tolerate a duplicate destroy
		s.log.WarnContext(ctx, "room tombstone not written", slog.String("room_id", roomID), slog.Any("err", err))
	case !first:
		return false
	}

	if err := s.bus.Publish(ctx, eventbus.RoomEvent(eventbus.EventDestroy, roomID)); err != nil {
		s.log.WarnContext(ctx, "publish chat.destroy failed", slog.String("room_id", roomID), slog.Any("err", err))
	}
	s.log.InfoContext(ctx, "room destroyed", slog.String("room_id", roomID), slog.String("reason", reason))
	return true
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, domain.ErrRoomNotFound) && !errors.Is(err, domain.ErrValidation) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
