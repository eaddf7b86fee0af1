package http

import (
	"errors"
	"net/http"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/service"
	"github.com/cwrk-planet/ephemeral-chat/internal/store"
	"github.com/cwrk-planet/ephemeral-chat/pkg/httputil"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	rooms    *service.RoomService
	messages *service.MessageService
	store    store.Store
}

func NewHandler(rooms *service.RoomService, messages *service.MessageService, st store.Store) *Handler {
	return &Handler{rooms: rooms, messages: messages, store: st}
}

func roomID(r *http.Request) string {
	return r.URL.Query().Get("roomId")
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := httputil.Decode(r, v); err != nil {
		httputil.Error(r.Context(), w, http.StatusBadRequest, "invalid json: "+err.Error(), codeInvalidInput, nil)
		return false
	}
	return true
}

// POST /room/create
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.CreateRoom(r.Context())
	if err != nil {
		writeError(w, r, "CreateRoom", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, CreateRoomResponse{
		RoomID:    room.ID,
		CreatedAt: room.CreatedAt,
		TTL:       room.TTLSeconds,
	})
}

// GET /room?roomId=
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	id := roomID(r)
	room, err := h.rooms.GetRoom(r.Context(), id)
	if err != nil {
		writeError(w, r, "GetRoom", err)
		return
	}
	ttl, err := h.rooms.GetRemainingTTL(r.Context(), id)
	if err != nil {
		writeError(w, r, "GetRoom", err)
		return
	}
	participants := room.Participants
	if participants == nil {
		participants = []string{}
	}
	httputil.JSON(w, http.StatusOK, RoomResponse{
		RoomID:       room.ID,
		CreatedAt:    room.CreatedAt,
		TTL:          ttlSeconds(ttl),
		Participants: participants,
	})
}

// GET /room/ttl?roomId=
func (h *Handler) GetTTL(w http.ResponseWriter, r *http.Request) {
	ttl, err := h.rooms.GetRemainingTTL(r.Context(), roomID(r))
	if errors.Is(err, domain.ErrRoomNotFound) {
		httputil.JSON(w, http.StatusNotFound, TTLResponse{})
		return
	}
	if err != nil {
		writeError(w, r, "GetTTL", err)
		return
	}
	secs := ttlSeconds(ttl)
	httputil.JSON(w, http.StatusOK, TTLResponse{TTL: &secs})
}

// DELETE /room?roomId=
func (h *Handler) DestroyRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.rooms.DestroyRoom(r.Context(), roomID(r)); err != nil {
		writeError(w, r, "DestroyRoom", err)
		return
	}
	httputil.JSON(w, http.StatusOK, StatusResponse{Status: "destroyed"})
}

// POST /room/join?roomId=
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.rooms.JoinRoom(r.Context(), roomID(r), req.Participant); err != nil {
		writeError(w, r, "JoinRoom", err)
		return
	}
	httputil.JSON(w, http.StatusOK, StatusResponse{Status: "joined"})
}

// POST /messages?roomId=
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	msg, err := h.messages.Append(r.Context(), roomID(r), req.Sender, req.Text)
	if err != nil {
		writeError(w, r, "SendMessage", err)
		return
	}
	httputil.JSON(w, http.StatusCreated, toMessageItem(*msg))
}

// GET /messages?roomId=
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.messages.List(r.Context(), roomID(r))
	if err != nil {
		writeError(w, r, "ListMessages", err)
		return
	}
	httputil.JSON(w, http.StatusOK, MessagesResponse{Messages: toMessageItems(msgs)})
}

// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		writeError(w, r, "Health", err)
		return
	}
	httputil.JSON(w, http.StatusOK, StatusResponse{Status: "ok"})
}
