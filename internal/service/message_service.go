package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/eventbus"
	"github.com/cwrk-planet/ephemeral-chat/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type MessageService struct {
	store store.Store
	bus   eventbus.Bus
	guard *Guard
	log   *slog.Logger
	now   func() time.Time
}

func NewMessageService(st store.Store, bus eventbus.Bus, guard *Guard, log *slog.Logger) *MessageService {
	return &MessageService{
		store: st,
		bus:   bus,
		guard: guard,
		log:   log,
		now:   time.Now,
	}
}

// Append stores a message at the end of the room log and tells subscribers
// there is something new to read. The room's TTL is left untouched.
func (s *MessageService) Append(ctx context.Context, roomID, sender, text string) (_ *domain.Message, err error) {
	if err := checkInput(appendInput{Sender: sender, Text: text}); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "MessageService.Append", trace.WithAttributes(attribute.String("room.id", roomID)))
	defer func() { endSpan(span, err) }()

	if err := s.guard.Authorize(ctx, roomID); err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	msg := &domain.Message{
		ID:        id.String(),
		RoomID:    roomID,
		Sender:    sender,
		Text:      text,
		Timestamp: s.now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	// the store re-checks the room inside the append, so a room that expired
	// after Authorize never gains a message
	seq, err := s.store.AppendIfExists(ctx, store.RoomKey(roomID), store.MessagesKey(roomID), data)
	if err != nil {
		return nil, notFound(err)
	}
	msg.Seq = seq

	if err := s.bus.Publish(ctx, eventbus.RoomEvent(eventbus.EventMessage, roomID)); err != nil {
		s.log.WarnContext(ctx, "publish chat.message failed", slog.String("room_id", roomID), slog.Any("err", err))
	}
	return msg, nil
}

// List returns the whole room log, oldest first.
func (s *MessageService) List(ctx context.Context, roomID string) ([]domain.Message, error) {
	if err := s.guard.Authorize(ctx, roomID); err != nil {
		return nil, err
	}
	items, err := s.store.Range(ctx, store.MessagesKey(roomID))
	if err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(items))
	for i, raw := range items {
		var m domain.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("decode message %d of room %s: %w", i+1, roomID, err)
		}
		m.Seq = int64(i + 1)
		out = append(out, m)
	}
	return out, nil
}
