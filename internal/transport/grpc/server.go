package grpcx

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/eventbus"
	"github.com/cwrk-planet/ephemeral-chat/internal/service"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const maxSubscribeRooms = 16

type Server struct {
	rooms    *service.RoomService
	messages *service.MessageService
	guard    *service.Guard
	bus      eventbus.Bus
	log      *slog.Logger

	mu       sync.Mutex
	watching map[string]int
}

var _ RoomServiceServer = (*Server)(nil)

func NewServer(rooms *service.RoomService, messages *service.MessageService, guard *service.Guard, bus eventbus.Bus, log *slog.Logger) *Server {
	return &Server{
		rooms:    rooms,
		messages: messages,
		guard:    guard,
		bus:      bus,
		log:      log,
		watching: make(map[string]int),
	}
}

// ActiveRooms lists rooms with at least one open Subscribe stream.
func (s *Server) ActiveRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Keys(s.watching)
}

func (s *Server) watch(roomIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range roomIDs {
		s.watching[id]++
	}
}

func (s *Server) unwatch(roomIDs ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range roomIDs {
		if s.watching[id]--; s.watching[id] <= 0 {
			delete(s.watching, id)
		}
	}
}

func (s *Server) CreateRoom(ctx context.Context, _ *CreateRoomRequest) (*Room, error) {
	room, err := s.rooms.CreateRoom(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &Room{RoomID: room.ID, CreatedAt: room.CreatedAt, TTLSeconds: room.TTLSeconds}, nil
}

func (s *Server) GetRoom(ctx context.Context, in *RoomRequest) (*Room, error) {
	room, err := s.rooms.GetRoom(ctx, in.RoomID)
	if err != nil {
		return nil, toStatus(err)
	}
	ttl, err := s.rooms.GetRemainingTTL(ctx, in.RoomID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &Room{
		RoomID:       room.ID,
		CreatedAt:    room.CreatedAt,
		TTLSeconds:   ceilSeconds(ttl),
		Participants: room.Participants,
	}, nil
}

func (s *Server) GetRemainingTTL(ctx context.Context, in *RoomRequest) (*TTLResponse, error) {
	ttl, err := s.rooms.GetRemainingTTL(ctx, in.RoomID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &TTLResponse{TTLSeconds: ceilSeconds(ttl)}, nil
}

func (s *Server) DestroyRoom(ctx context.Context, in *RoomRequest) (*DestroyRoomResponse, error) {
	if err := s.rooms.DestroyRoom(ctx, in.RoomID); err != nil {
		return nil, toStatus(err)
	}
	return &DestroyRoomResponse{}, nil
}

func (s *Server) AppendMessage(ctx context.Context, in *AppendMessageRequest) (*Message, error) {
	m, err := s.messages.Append(ctx, in.RoomID, in.Sender, in.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	return toMessage(*m), nil
}

func (s *Server) ListMessages(ctx context.Context, in *RoomRequest) (*ListMessagesResponse, error) {
	ms, err := s.messages.List(ctx, in.RoomID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ListMessagesResponse{
		Messages: lo.Map(ms, func(m domain.Message, _ int) Message { return *toMessage(m) }),
	}, nil
}

// Subscribe streams events of the requested rooms until every one of them is
// destroyed or the client goes away.
func (s *Server) Subscribe(in *SubscribeRequest, stream grpc.ServerStreamingServer[Event]) error {
	ctx := stream.Context()
	roomIDs := lo.Uniq(in.RoomIDs)
	if len(roomIDs) == 0 || len(roomIDs) > maxSubscribeRooms {
		return status.Errorf(codes.InvalidArgument, "between 1 and %d rooms required", maxSubscribeRooms)
	}

	sub, err := s.bus.Subscribe(ctx, roomIDs...)
	if err != nil {
		return toStatus(err)
	}
	defer func() { _ = sub.Close() }()

	for _, id := range roomIDs {
		if err := s.guard.Authorize(ctx, id); err != nil {
			return toStatus(err)
		}
	}
	// rooms still alive for this stream; a destroyed room is dropped once
	// and anything later on its channel is ignored
	live := mapset.NewThreadUnsafeSet(roomIDs...)
	s.watch(roomIDs...)
	defer func() { s.unwatch(live.ToSlice()...) }()

	for _, id := range roomIDs {
		if err := stream.Send(&Event{Event: EventSubscribed, RoomID: id}); err != nil {
			return err
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case evt, ok := <-sub.Events():
			if !ok {
				return status.Error(codes.Unavailable, "event stream closed")
			}
			if !live.Contains(evt.Channel) {
				continue
			}
			if err := stream.Send(&Event{Event: evt.Name, RoomID: evt.Channel}); err != nil {
				return err
			}
			if evt.Name == eventbus.EventDestroy {
				live.Remove(evt.Channel)
				s.unwatch(evt.Channel)
				if live.Cardinality() == 0 {
					return nil
				}
			}
		}
	}
}

func toMessage(m domain.Message) *Message {
	return &Message{
		ID:        m.ID,
		Seq:       m.Seq,
		RoomID:    m.RoomID,
		Sender:    m.Sender,
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrRoomNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func ceilSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}
