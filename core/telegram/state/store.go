package state

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by lookups that match no record.
	ErrNotFound = errors.New("state: record not found")
	// ErrDuplicate is returned by Insert when the chat/message pair is taken.
	ErrDuplicate = errors.New("state: record already exists")
)

// Store persists conversation records. Each operation is atomic on a single record.
//
// Find methods return copies; callers persist changes with Replace.
type Store interface {
	FindByChatAndMessage(ctx context.Context, chatID int64, messageID int) (*Record, error)
	// FindLatestByChat returns the most recently inserted record of the chat.
	FindLatestByChat(ctx context.Context, chatID int64) (*Record, error)
	// Insert assigns rec.ID and saves it.
	Insert(ctx context.Context, rec *Record) error
	// Replace overwrites the record with the same ID.
	Replace(ctx context.Context, rec *Record) error
}

// Pinger is implemented by stores backed by a remote service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Load resolves the record for an update: the exact chat/message match first,
// then the latest record of the chat, and finally a freshly inserted record.
// created reports whether a new record was inserted.
func Load(ctx context.Context, s Store, chatID int64, messageID int) (rec *Record, created bool, err error) {
	rec, err = s.FindByChatAndMessage(ctx, chatID, messageID)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("state: find by message: %w", err)
	}

	rec, err = s.FindLatestByChat(ctx, chatID)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("state: find latest: %w", err)
	}

	rec = NewRecord(chatID, messageID)
	if err := s.Insert(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("state: insert: %w", err)
	}
	return rec, true, nil
}
