// Package redisstore implements store.Store on top of Redis. Per-key TTLs map
// to native Redis expiry and multi-key invariants are kept with Lua scripts.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/store"

	"github.com/redis/go-redis/v9"
)

// Config holds connection settings for the Redis store.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// appendScript pushes ARGV[1] onto KEYS[2] only while KEYS[1] exists and copies
// the owner's remaining lifetime onto the list, so both expire together.
var appendScript = redis.NewScript(`
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl == -2 then
		return -1
	end
	local n = redis.call('RPUSH', KEYS[2], ARGV[1])
	if ttl > 0 then
		redis.call('PEXPIRE', KEYS[2], ttl)
	end
	return n
`)

// addScript is the set counterpart of appendScript.
var addScript = redis.NewScript(`
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl == -2 then
		return -1
	end
	redis.call('SADD', KEYS[2], ARGV[1])
	if ttl > 0 then
		redis.call('PEXPIRE', KEYS[2], ttl)
	end
	return 1
`)

type Store struct {
	client *redis.Client
	db     int
	log    *slog.Logger
}

var (
	_ store.Store          = (*Store)(nil)
	_ store.ExpiryNotifier = (*Store)(nil)
)

// NewClient dials Redis and verifies the connection.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable("ping", err)
	}
	return client, nil
}

func New(client *redis.Client, log *slog.Logger) *Store {
	return &Store{
		client: client,
		db:     client.Options().DB,
		log:    log,
	}
}

func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, unavailable("setnx", err)
	}
	return ok, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrNotFound
		}
		return nil, unavailable("get", err)
	}
	return data, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, unavailable("pttl", err)
	}
	// PTTL reports -2 for a missing key and -1 for a key without expiry.
	switch d {
	case -2:
		return 0, store.ErrNotFound
	case -1:
		return 0, nil
	}
	return d, nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		return 0, unavailable("del", err)
	}
	return n, nil
}

func (s *Store) AppendIfExists(ctx context.Context, owner, key string, value []byte) (int64, error) {
	n, err := appendScript.Run(ctx, s.client, []string{owner, key}, value).Int64()
	if err != nil {
		return 0, unavailable("append", err)
	}
	if n < 0 {
		return 0, store.ErrNotFound
	}
	return n, nil
}

func (s *Store) Range(ctx context.Context, key string) ([][]byte, error) {
	items, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, unavailable("lrange", err)
	}
	out := make([][]byte, 0, len(items))
	for _, it := range items {
		out = append(out, []byte(it))
	}
	return out, nil
}

func (s *Store) AddIfExists(ctx context.Context, owner, key, member string) error {
	n, err := addScript.Run(ctx, s.client, []string{owner, key}, member).Int64()
	if err != nil {
		return unavailable("sadd", err)
	}
	if n < 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Members(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, unavailable("smembers", err)
	}
	sort.Strings(members)
	return members, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

// Expirations subscribes to keyevent expiry notifications of the selected
// database. It tries to enable them with CONFIG SET; managed deployments that
// forbid CONFIG must enable "notify-keyspace-events Ex" themselves.
func (s *Store) Expirations(ctx context.Context) (<-chan string, error) {
	if err := s.client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		s.log.Warn("redis: enable keyspace notifications failed", slog.Any("err", err))
	}

	channel := fmt.Sprintf("__keyevent@%d__:expired", s.db)
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, unavailable("subscribe expired", err)
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		defer func() { _ = ps.Close() }()

		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- m.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("redis %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
