package domain

import "time"

// DefaultRoomTTL is the lifetime of a room unless configured otherwise.
const DefaultRoomTTL = 600 * time.Second

// Room is the metadata record kept under the room key. Its presence in the
// store is the only proof that the room is alive.
type Room struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"createdAt"`
	TTLSeconds int64     `json:"ttlSeconds"`

	Participants []string `json:"-"`
}
