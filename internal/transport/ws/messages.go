package ws

import "encoding/json"

// Client frame types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
)

// Server control frame types.
const (
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeError        = "error"
)

const (
	CodeRoomGone     = "room_gone"
	CodeBadFrame     = "bad_frame"
	CodeTooManyRooms = "too_many_rooms"
	CodeUnavailable  = "unavailable"
)

// ClientFrame is what browsers send over the socket.
type ClientFrame struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
}

// EventFrame forwards a bus event. Data only ever carries {"roomId"}; clients
// re-read the message log over HTTP.
type EventFrame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type ControlFrame struct {
	Type    string `json:"type"`
	RoomID  string `json:"roomId,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
