// Package badgerstore implements store.Store on an embedded Badger database,
// for single-node deployments without Redis. Badger has no expiry
// notifications, so expired rooms are only discovered by the reaper sweep.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cwrk-planet/ephemeral-chat/internal/domain"
	"github.com/cwrk-planet/ephemeral-chat/internal/store"

	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds optimistic transaction retries on ErrConflict.
const maxConflictRetries = 16

// Config selects where Badger keeps its files.
type Config struct {
	Path     string
	InMemory bool
}

type Store struct {
	db  *badger.DB
	log *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens the Badger database described by cfg.
func Open(cfg Config) (*badger.DB, error) {
	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, unavailable("open", err)
	}
	return db, nil
}

// New takes ownership of db; Close closes it.
func New(db *badger.DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log}
}

// Child keys of lists and sets live under "<key>|", which never collides with
// room keys because room ids cannot contain '|'.
func childPrefix(key string) []byte  { return []byte(key + "|") }
func itemPrefix(key string) []byte   { return []byte(key + "|i|") }
func counterKey(key string) []byte   { return []byte(key + "|n") }
func memberPrefix(key string) []byte { return []byte(key + "|m|") }

func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return s.update("set", func(txn *badger.Txn) error {
		return txn.SetEntry(newEntry([]byte(key), value, ttl))
	})
}

func (s *Store) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var written bool
	err := s.update("setnx", func(txn *badger.Txn) error {
		written = false
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		written = true
		return txn.SetEntry(newEntry([]byte(key), value, ttl))
	})
	return written, err
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, translate("get", err)
	}
	return out, nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, unavailable("exists", err)
	}
}

func (s *Store) TTL(_ context.Context, key string) (time.Duration, error) {
	var expiresAt uint64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		expiresAt = item.ExpiresAt()
		return nil
	})
	if err != nil {
		return 0, translate("ttl", err)
	}
	if expiresAt == 0 {
		return 0, nil
	}
	left := time.Until(time.Unix(int64(expiresAt), 0))
	if left <= 0 {
		return 0, store.ErrNotFound
	}
	return left, nil
}

func (s *Store) Delete(_ context.Context, keys ...string) (int64, error) {
	var deleted int64
	err := s.update("delete", func(txn *badger.Txn) error {
		deleted = 0
		var doomed [][]byte
		for _, key := range keys {
			// lists and sets exist only through their child keys
			children := scanKeys(txn, childPrefix(key))
			_, err := txn.Get([]byte(key))
			switch {
			case err == nil:
				deleted++
				doomed = append(doomed, []byte(key))
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			case len(children) > 0:
				deleted++
			}
			doomed = append(doomed, children...)
		}
		for _, k := range doomed {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	return deleted, err
}

func (s *Store) AppendIfExists(_ context.Context, owner, key string, value []byte) (int64, error) {
	var length int64
	err := s.update("append", func(txn *badger.Txn) error {
		expiresAt, err := ownerExpiry(txn, owner)
		if err != nil {
			return err
		}

		var n int64
		item, err := txn.Get(counterKey(key))
		switch {
		case err == nil:
			raw, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if n, err = strconv.ParseInt(string(raw), 10, 64); err != nil {
				return fmt.Errorf("corrupt list counter %q: %w", key, err)
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		n++

		counter := badger.NewEntry(counterKey(key), []byte(strconv.FormatInt(n, 10)))
		counter.ExpiresAt = expiresAt
		if err := txn.SetEntry(counter); err != nil {
			return err
		}
		// zero padding keeps lexicographic iteration in append order
		elem := badger.NewEntry(append(itemPrefix(key), fmt.Sprintf("%020d", n)...), value)
		elem.ExpiresAt = expiresAt
		if err := txn.SetEntry(elem); err != nil {
			return err
		}
		length = n
		return nil
	})
	return length, err
}

func (s *Store) Range(_ context.Context, key string) ([][]byte, error) {
	var out [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := itemPrefix(key)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			v, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("range", err)
	}
	return out, nil
}

func (s *Store) AddIfExists(_ context.Context, owner, key, member string) error {
	return s.update("add", func(txn *badger.Txn) error {
		expiresAt, err := ownerExpiry(txn, owner)
		if err != nil {
			return err
		}
		e := badger.NewEntry(append(memberPrefix(key), member...), nil)
		e.ExpiresAt = expiresAt
		return txn.SetEntry(e)
	})
}

func (s *Store) Members(_ context.Context, key string) ([]string, error) {
	var out []string
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := memberPrefix(key)
		for _, k := range scanKeys(txn, prefix) {
			out = append(out, string(k[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable("members", err)
	}
	return out, nil
}

func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return unavailable("ping", errors.New("database closed"))
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on conflicts with
// concurrent writers of the same keys.
func (s *Store) update(op string, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.log.Debug("badger: transaction conflict, retrying", slog.String("op", op), slog.Int("attempt", attempt+1))
	}
	if err != nil {
		return translate(op, err)
	}
	return nil
}

func ownerExpiry(txn *badger.Txn, owner string) (uint64, error) {
	item, err := txn.Get([]byte(owner))
	if err != nil {
		return 0, err
	}
	return item.ExpiresAt(), nil
}

func scanKeys(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func newEntry(key, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry(key, value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

func translate(op string, err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	return unavailable(op, err)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("badger %s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
