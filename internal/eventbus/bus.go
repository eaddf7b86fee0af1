//go:generate go run go.uber.org/mock/mockgen -source=bus.go -destination=../mocks/mock_eventbus.go -package=mocks
package eventbus

import (
	"context"
	"encoding/json"
)

const (
	// EventMessage tells subscribers to re-read the room's message log.
	EventMessage = "chat.message"
	// EventDestroy tells subscribers the room is gone for good.
	EventDestroy = "chat.destroy"
)

// Event is a lightweight notification scoped to a channel. It carries hints,
// never message bodies; the store stays the single source of truth.
type Event struct {
	Channel string          `json:"channel"`
	Name    string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// RoomPayload is the only payload the core publishes.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// RoomEvent builds an event on the room's own channel.
func RoomEvent(name, roomID string) Event {
	data, _ := json.Marshal(RoomPayload{RoomID: roomID})
	return Event{Channel: roomID, Name: name, Data: data}
}

// Bus is a best-effort, at-most-once publish/subscribe fan-out. Publish never
// waits for subscribers; events published on one channel reach each
// subscriber in publish order, or not at all.
type Bus interface {
	Publish(ctx context.Context, evt Event) error
	// Subscribe returns a live stream for channels. The subscription is
	// released by Close or when ctx is done, whichever comes first.
	Subscribe(ctx context.Context, channels ...string) (Subscription, error)
}

type Subscription interface {
	// Events is closed once the subscription is released.
	Events() <-chan Event
	Close() error
}
