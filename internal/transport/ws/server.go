package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/eventbus"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// RoomGuard admits subscriptions to live rooms only.
type RoomGuard interface {
	Authorize(ctx context.Context, roomID string) error
}

type Config struct {
	// AllowedOrigins lists accepted Origin headers; "*" accepts any. Empty
	// means same-origin only.
	AllowedOrigins []string
	PingEvery      time.Duration
	MaxRooms       int
	SendBuffer     int
}

type Server struct {
	upgrader websocket.Upgrader
	hub      *Hub
	bus      eventbus.Bus
	guard    RoomGuard
	log      *slog.Logger

	pingEvery  time.Duration
	maxRooms   int
	sendBuffer int
}

func NewServer(hub *Hub, bus eventbus.Bus, guard RoomGuard, cfg Config, log *slog.Logger) *Server {
	if cfg.PingEvery <= 0 {
		cfg.PingEvery = 15 * time.Second
	}
	if cfg.MaxRooms <= 0 {
		cfg.MaxRooms = 16
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}

	s := &Server{
		hub:        hub,
		bus:        bus,
		guard:      guard,
		log:        log,
		pingEvery:  cfg.PingEvery,
		maxRooms:   cfg.MaxRooms,
		sendBuffer: cfg.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	switch {
	case lo.Contains(cfg.AllowedOrigins, "*"):
		s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
	case len(cfg.AllowedOrigins) > 0:
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			return lo.Contains(cfg.AllowedOrigins, r.Header.Get("Origin"))
		}
	}
	return s
}

// HandleWS serves GET /ws?roomId=a&roomId=b. Rooms can also be added and
// dropped later with subscribe/unsubscribe frames.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client
		s.log.Warn("ws upgrade failed", slog.Any("err", err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	c := newClient(conn, s.sendBuffer)
	s.hub.add(c)

	defer func() {
		cancel()
		c.shutdown()
		for _, roomID := range c.rooms() {
			s.unsubscribe(c, roomID)
		}
		s.hub.remove(c)
		_ = conn.Close()
	}()

	go s.writeLoop(c)

	for _, roomID := range lo.Uniq(r.URL.Query()["roomId"]) {
		s.subscribe(ctx, c, roomID)
	}
	s.readLoop(ctx, c)
}

func (s *Server) subscribe(ctx context.Context, c *client, roomID string) {
	if c.has(roomID) {
		c.enqueue(ControlFrame{Type: TypeSubscribed, RoomID: roomID})
		return
	}
	if len(c.rooms()) >= s.maxRooms {
		c.enqueue(ControlFrame{Type: TypeError, RoomID: roomID, Code: CodeTooManyRooms, Message: "too many rooms on one connection"})
		return
	}

	// subscribe before checking the room, so a destroy racing with this call
	// is either seen here or delivered on the subscription
	sub, err := s.bus.Subscribe(ctx, roomID)
	if err != nil {
		s.log.Warn("ws subscribe failed", slog.String("room_id", roomID), slog.Any("err", err))
		c.enqueue(ControlFrame{Type: TypeError, RoomID: roomID, Code: CodeUnavailable, Message: "subscription unavailable"})
		return
	}
	if err := s.guard.Authorize(ctx, roomID); err != nil {
		_ = sub.Close()
		frame := ControlFrame{Type: TypeError, RoomID: roomID, Code: CodeRoomGone, Message: domain.ErrRoomNotFound.Error()}
		if !errors.Is(err, domain.ErrRoomNotFound) {
			s.log.Warn("ws room check failed", slog.String("room_id", roomID), slog.Any("err", err))
			frame.Code, frame.Message = CodeUnavailable, "store unavailable"
		}
		c.enqueue(frame)
		return
	}

	if !c.track(roomID, sub) {
		_ = sub.Close()
		return
	}
	s.hub.join(c, roomID)
	c.enqueue(ControlFrame{Type: TypeSubscribed, RoomID: roomID})

	go s.forward(c, roomID, sub)
}

func (s *Server) unsubscribe(c *client, roomID string) bool {
	sub, ok := c.untrack(roomID)
	if !ok {
		return false
	}
	_ = sub.Close()
	s.hub.leave(c, roomID)
	return true
}

// forward relays one room's events to the connection. A destroy is the last
// event a room ever produces, so it also releases the subscription.
func (s *Server) forward(c *client, roomID string, sub eventbus.Subscription) {
	for evt := range sub.Events() {
		c.enqueue(EventFrame{Event: evt.Name, Channel: evt.Channel, Data: evt.Data})
		if evt.Name == eventbus.EventDestroy {
			s.unsubscribe(c, roomID)
			return
		}
	}
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	c.conn.SetReadLimit(4 << 10)
	_ = c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(2 * s.pingEvery))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws read failed", slog.Any("err", err))
			}
			return
		}

		var f ClientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.enqueue(ControlFrame{Type: TypeError, Code: CodeBadFrame, Message: "frame is not valid JSON"})
			continue
		}

		switch f.Type {
		case TypeSubscribe:
			s.subscribe(ctx, c, f.RoomID)
		case TypeUnsubscribe:
			s.unsubscribe(c, f.RoomID)
			c.enqueue(ControlFrame{Type: TypeUnsubscribed, RoomID: f.RoomID})
		default:
			c.enqueue(ControlFrame{Type: TypeError, Code: CodeBadFrame, Message: "unknown frame type " + f.Type})
		}
	}
}

// writeLoop is the only goroutine writing data frames to the socket.
func (s *Server) writeLoop(c *client) {
	ticker := time.NewTicker(s.pingEvery)
	defer ticker.Stop()

	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := c.conn.WriteJSON(frame); err != nil {
				s.log.Debug("ws write failed", slog.Any("err", err))
				c.shutdown()
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.shutdown()
				_ = c.conn.Close()
				return
			}
		case <-c.closed:
			msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			_ = c.conn.Close()
			return
		}
	}
}

type client struct {
	conn   *websocket.Conn
	send   chan any
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	subs map[string]eventbus.Subscription
}

func newClient(conn *websocket.Conn, buffer int) *client {
	return &client{
		conn:   conn,
		send:   make(chan any, buffer),
		closed: make(chan struct{}),
		subs:   make(map[string]eventbus.Subscription),
	}
}

// enqueue never blocks. A client that cannot keep up is disconnected and
// recovers by reconnecting and re-reading the log.
func (c *client) enqueue(frame any) {
	select {
	case <-c.closed:
	case c.send <- frame:
	default:
		c.shutdown()
	}
}

func (c *client) shutdown() {
	c.once.Do(func() { close(c.closed) })
}

func (c *client) has(roomID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[roomID]
	return ok
}

func (c *client) track(roomID string, sub eventbus.Subscription) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subs[roomID]; ok {
		return false
	}
	c.subs[roomID] = sub
	return true
}

func (c *client) untrack(roomID string) (eventbus.Subscription, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub, ok := c.subs[roomID]
	if ok {
		delete(c.subs, roomID)
	}
	return sub, ok
}

func (c *client) rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Keys(c.subs)
}
