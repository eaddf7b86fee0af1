package domain

import "time"

type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`

	// Seq is the 1-based position in the room log. It is derived on read and
	// never stored.
	Seq int64 `json:"-"`
}
