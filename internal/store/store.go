//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_store.go -package=mocks
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent, either because it never
// existed or because its TTL elapsed.
var ErrNotFound = errors.New("store: key not found")

// Store is the ephemeral key-value store holding rooms and their logs.
// Every key may carry a TTL and the store is trusted as the single source
// of expiry. Infrastructure failures are wrapped with domain.ErrStoreUnavailable.
type Store interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// SetNX writes key only if it is absent and reports whether it did.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// TTL returns the remaining lifetime of key. Zero means the key has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// Delete removes keys together and returns how many of them existed.
	Delete(ctx context.Context, keys ...string) (int64, error)

	// AppendIfExists pushes value to the list at key only while owner exists,
	// giving the list the owner's expiry. It returns the new list length.
	AppendIfExists(ctx context.Context, owner, key string, value []byte) (int64, error)
	// Range returns the whole list at key in append order.
	Range(ctx context.Context, key string) ([][]byte, error)
	// AddIfExists adds member to the set at key only while owner exists.
	AddIfExists(ctx context.Context, owner, key, member string) error
	Members(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	Close() error
}

// ExpiryNotifier is implemented by stores able to push key expirations.
// The channel yields expired key names and is closed when ctx ends.
type ExpiryNotifier interface {
	Expirations(ctx context.Context) (<-chan string, error)
}
