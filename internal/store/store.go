// Package store is the durable side of the chat core: rooms and their
// append-only message logs, on gorm.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a room does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a conditional update matched no row because
	// the room was no longer in the expected status.
	ErrConflict = errors.New("store: conflict")
)

// Store groups the room and message stores over one connection or
// transaction.
type Store struct {
	db       *gorm.DB
	Rooms    *RoomStore
	Messages *MessageStore
}

func New(db *gorm.DB) *Store {
	return &Store{db: db, Rooms: &RoomStore{db: db}, Messages: &MessageStore{db: db}}
}

// InTx runs fn against a Store bound to a single transaction. The
// transaction commits only if fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(New(tx))
	})
}

// Page is 1-based offset pagination.
type Page struct {
	Page  int
	Limit int
}

func (p Page) normalize(def, max int) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = def
	}
	if p.Limit > max {
		p.Limit = max
	}
	return p
}

func (p Page) offset() int { return (p.Page - 1) * p.Limit }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
