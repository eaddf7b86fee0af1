package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 64

// Local is an in-process Bus. Each subscriber owns a bounded queue and events
// that do not fit are dropped for that subscriber only.
type Local struct {
	mu     sync.RWMutex
	subs   map[string]map[*localSub]struct{} // channel -> subscribers
	buffer int
	log    *slog.Logger

	dropped atomic.Uint64
}

var _ Bus = (*Local)(nil)

func NewLocal(buffer int, log *slog.Logger) *Local {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Local{
		subs:   make(map[string]map[*localSub]struct{}),
		buffer: buffer,
		log:    log,
	}
}

func (b *Local) Publish(_ context.Context, evt Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for s := range b.subs[evt.Channel] {
		select {
		case s.ch <- evt:
		default:
			b.dropped.Add(1)
			b.log.Debug("eventbus: subscriber queue full, event dropped",
				slog.String("channel", evt.Channel), slog.String("event", evt.Name))
		}
	}
	return nil
}

func (b *Local) Subscribe(ctx context.Context, channels ...string) (Subscription, error) {
	s := &localSub{
		bus:      b,
		channels: channels,
		ch:       make(chan Event, b.buffer),
		done:     make(chan struct{}),
	}

	b.mu.Lock()
	for _, c := range channels {
		set, ok := b.subs[c]
		if !ok {
			set = make(map[*localSub]struct{})
			b.subs[c] = set
		}
		set[s] = struct{}{}
	}
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

// Subscribers returns the number of live subscriptions on channel.
func (b *Local) Subscribers(channel string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[channel])
}

// Dropped returns how many deliveries were skipped because a queue was full.
func (b *Local) Dropped() uint64 {
	return b.dropped.Load()
}

func (b *Local) remove(s *localSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, c := range s.channels {
		if set, ok := b.subs[c]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(b.subs, c)
			}
		}
	}
	// publishers send under the read lock, so nobody can be sending now
	close(s.ch)
}

type localSub struct {
	bus      *Local
	channels []string
	ch       chan Event
	done     chan struct{}
	once     sync.Once
}

func (s *localSub) Events() <-chan Event { return s.ch }

func (s *localSub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.bus.remove(s)
	})
	return nil
}
