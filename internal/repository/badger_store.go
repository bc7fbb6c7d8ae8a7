package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	json "github.com/goccy/go-json"

	"filmate/internal/domain"
)

const badgerKeyPrefix = "session/"

// badgerRecord is the on-disk shape of a session in the local store.
type badgerRecord struct {
	ID          string   `json:"sessionId"`
	Preferences []string `json:"preferences"`
	Round       int      `json:"round"`
	UpdatedAt   int64    `json:"updatedAt"`
	TTL         int64    `json:"ttl"`
}

// BadgerStore keeps sessions in an embedded Badger database. It backs the
// local development server, where no DynamoDB table is available.
type BadgerStore struct {
	db  *badger.DB
	now func() time.Time
}

// OpenBadger opens (or creates) a store under dir. An empty dir keeps all
// data in memory.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("repository: open badger: %w", err)
	}
	return &BadgerStore{db: db, now: time.Now}, nil
}

// Close releases the underlying database.
func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func (b *BadgerStore) Get(_ context.Context, id string) (domain.Session, bool, error) {
	var (
		s     domain.Session
		found bool
	)
	err := b.db.View(func(txn *badger.Txn) error {
		var err error
		s, found, err = b.read(txn, id)
		return err
	})
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: Get: %w", err)
	}
	return s, found, nil
}

func (b *BadgerStore) Create(_ context.Context, s domain.Session) (bool, error) {
	if s.ID == "" {
		return false, errors.New("repository: Create: session id is required")
	}
	created := false
	err := b.db.Update(func(txn *badger.Txn) error {
		_, found, err := b.read(txn, s.ID)
		if err != nil || found {
			return err
		}
		created = true
		return b.write(txn, s)
	})
	if err != nil {
		return false, fmt.Errorf("repository: Create: %w", err)
	}
	return created, nil
}

func (b *BadgerStore) Put(_ context.Context, s domain.Session) error {
	if s.ID == "" {
		return errors.New("repository: Put: session id is required")
	}
	if err := b.db.Update(func(txn *badger.Txn) error { return b.write(txn, s) }); err != nil {
		return fmt.Errorf("repository: Put: %w", err)
	}
	return nil
}

func (b *BadgerStore) Delete(_ context.Context, id string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + id))
	})
	if err != nil {
		return fmt.Errorf("repository: Delete: %w", err)
	}
	return nil
}

func (b *BadgerStore) read(txn *badger.Txn, id string) (domain.Session, bool, error) {
	item, err := txn.Get([]byte(badgerKeyPrefix + id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return domain.Session{}, false, err
	}
	var rec badgerRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Session{}, false, fmt.Errorf("decode session %q: %w", id, err)
	}

	s := domain.Session{
		ID:          rec.ID,
		Round:       rec.Round,
		Preferences: rec.Preferences,
		UpdatedAt:   time.Unix(rec.UpdatedAt, 0),
		ExpiresAt:   time.Unix(rec.TTL, 0),
	}
	if s.Preferences == nil {
		s.Preferences = []string{}
	}
	if s.Expired(b.now()) {
		return domain.Session{}, false, nil
	}
	return s, true, nil
}

func (b *BadgerStore) write(txn *badger.Txn, s domain.Session) error {
	now := b.now()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = now
	}
	if s.ExpiresAt.IsZero() {
		s.ExpiresAt = now.Add(domain.SessionTTL)
	}
	prefs := s.Preferences
	if prefs == nil {
		prefs = []string{}
	}
	raw, err := json.Marshal(badgerRecord{
		ID:          s.ID,
		Preferences: prefs,
		Round:       s.Round,
		UpdatedAt:   s.UpdatedAt.Unix(),
		TTL:         s.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode session %q: %w", s.ID, err)
	}

	entry := badger.NewEntry([]byte(badgerKeyPrefix+s.ID), raw)
	if ttl := s.ExpiresAt.Sub(now); ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return txn.SetEntry(entry)
}
