package http

import (
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"

	"github.com/samber/lo"
)

type CreateRoomResponse struct {
	RoomID    string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
	TTL       int64     `json:"ttl"`
}

type RoomResponse struct {
	RoomID       string    `json:"roomId"`
	CreatedAt    time.Time `json:"createdAt"`
	TTL          int64     `json:"ttl"`
	Participants []string  `json:"participants"`
}

// TTLResponse carries a null ttl once the room is gone.
type TTLResponse struct {
	TTL *int64 `json:"ttl"`
}

type JoinRoomRequest struct {
	Participant string `json:"participant"`
}

type SendMessageRequest struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type MessageItem struct {
	ID        string    `json:"id"`
	Seq       int64     `json:"seq"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type MessagesResponse struct {
	Messages []MessageItem `json:"messages"`
}

type StatusResponse struct {
	Status string `json:"status"`
}

func toMessageItem(m domain.Message) MessageItem {
	return MessageItem{
		ID:        m.ID,
		Seq:       m.Seq,
		Sender:    m.Sender,
		Text:      m.Text,
		Timestamp: m.Timestamp,
	}
}

func toMessageItems(ms []domain.Message) []MessageItem {
	return lo.Map(ms, func(m domain.Message, _ int) MessageItem { return toMessageItem(m) })
}

// ttlSeconds rounds up so a room with 300ms left still reports 1s.
func ttlSeconds(d time.Duration) int64 {
	return int64((d + time.Second - 1) / time.Second)
}
