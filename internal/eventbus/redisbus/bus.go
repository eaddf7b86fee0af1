// Package redisbus carries chat events over Redis pub/sub so every gateway
// replica sees events published by any other.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/eventbus"

	"github.com/redis/go-redis/v9"
)

// ChannelPrefix namespaces bus channels away from other Redis traffic.
const ChannelPrefix = "chat:"

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Bus struct {
	client *redis.Client
	buffer int
	log    *slog.Logger
}

var _ eventbus.Bus = (*Bus)(nil)

func New(client *redis.Client, buffer int, log *slog.Logger) *Bus {
	if buffer <= 0 {
		buffer = eventbus.DefaultBuffer
	}
	return &Bus{client: client, buffer: buffer, log: log}
}

func (b *Bus) Publish(ctx context.Context, evt eventbus.Event) error {
	payload, err := json.Marshal(wireEvent{Event: evt.Name, Data: evt.Data})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := b.client.Publish(ctx, ChannelPrefix+evt.Channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Subscribe returns once Redis has confirmed the subscription, so events
// published after it returns are not missed.
func (b *Bus) Subscribe(ctx context.Context, channels ...string) (eventbus.Subscription, error) {
	names := make([]string, 0, len(channels))
	for _, c := range channels {
		names = append(names, ChannelPrefix+c)
	}

	ps := b.client.Subscribe(ctx, names...)
	for range names {
		if _, err := ps.Receive(ctx); err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("redis subscribe: %w: %w", domain.ErrStoreUnavailable, err)
		}
	}

	s := &subscription{
		ps:   ps,
		out:  make(chan eventbus.Event, b.buffer),
		done: make(chan struct{}),
	}
	go s.pump(b.log)
	go func() {
		select {
		case <-ctx.Done():
			_ = s.Close()
		case <-s.done:
		}
	}()
	return s, nil
}

type subscription struct {
	ps   *redis.PubSub
	out  chan eventbus.Event
	done chan struct{}
	once sync.Once
}

func (s *subscription) Events() <-chan eventbus.Event { return s.out }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *subscription) pump(log *slog.Logger) {
	defer close(s.out)

	msgs := s.ps.Channel()
	for {
		select {
		case <-s.done:
			return
		case m, ok := <-msgs:
			if !ok {
				return
			}
			var w wireEvent
			if err := json.Unmarshal([]byte(m.Payload), &w); err != nil {
				log.Warn("redisbus: malformed event dropped",
					slog.String("channel", m.Channel), slog.Any("err", err))
				continue
			}
			evt := eventbus.Event{
				Channel: strings.TrimPrefix(m.Channel, ChannelPrefix),
				Name:    w.Event,
				Data:    w.Data,
			}
			select {
			case s.out <- evt:
			default:
				log.Debug("redisbus: subscriber queue full, event dropped",
					slog.String("channel", evt.Channel), slog.String("event", evt.Name))
			}
		}
	}
}
