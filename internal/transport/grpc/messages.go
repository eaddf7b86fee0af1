package grpcx

import "time"

type CreateRoomRequest struct{}

type RoomRequest struct {
	RoomID string `json:"roomId"`
}

type Room struct {
	RoomID       string    `json:"roomId"`
	CreatedAt    time.Time `json:"createdAt"`
	TTLSeconds   int64     `json:"ttlSeconds"`
	Participants []string  `json:"participants,omitempty"`
}

type TTLResponse struct {
	TTLSeconds int64 `json:"ttlSeconds"`
}

type DestroyRoomResponse struct{}

type AppendMessageRequest struct {
	RoomID string `json:"roomId"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type Message struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type ListMessagesResponse struct {
	Messages []Message `json:"messages"`
}

type SubscribeRequest struct {
	RoomIDs []string `json:"roomIds"`
}

// EventSubscribed is sent once per room when its subscription is live.
const EventSubscribed = "subscribed"

type Event struct {
	Event  string `json:"event"`
	RoomID string `json:"roomId"`
}
