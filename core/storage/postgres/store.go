// Package postgres stores conversation records in the conversation_states table.
package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/telegram/state"
)

const uniqueViolation = "23505"

const selectColumns = `SELECT id, chat_id, message_id, module_id, data, last_updated FROM conversation_states`

// Store implements state.Store on PostgreSQL.
type Store struct {
	db *sqlx.DB
}

// New wraps an open pool. The schema is created by the migrations package.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

type row struct {
	ID          string         `db:"id"`
	ChatID      int64          `db:"chat_id"`
	MessageID   int            `db:"message_id"`
	ModuleID    sql.NullString `db:"module_id"`
	Data        dataColumn     `db:"data"`
	LastUpdated time.Time      `db:"last_updated"`
}

func fromRecord(rec *state.Record) row {
	return row{
		ID:          rec.ID,
		ChatID:      rec.ChatID,
		MessageID:   rec.MessageID,
		ModuleID:    sql.NullString{String: rec.ModuleID, Valid: rec.ModuleID != ""},
		Data:        dataColumn(rec.Data),
		LastUpdated: rec.LastUpdated,
	}
}

func (r row) record() *state.Record {
	data := map[string]string(r.Data)
	if data == nil {
		data = make(map[string]string)
	}
	return &state.Record{
		ID:          r.ID,
		ChatID:      r.ChatID,
		MessageID:   r.MessageID,
		ModuleID:    r.ModuleID.String,
		Data:        data,
		LastUpdated: r.LastUpdated.UTC(),
	}
}

// dataColumn maps the record data bag onto a jsonb column.
// Values are bound as text; lib/pq would send a []byte as bytea.
type dataColumn map[string]string

func (d dataColumn) Value() (driver.Value, error) {
	if d == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(map[string]string(d))
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (d *dataColumn) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = dataColumn{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("postgres: unsupported data column type %T", src)
	}
	m := make(map[string]string)
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Errorf("postgres: decode data column: %w", err)
	}
	*d = m
	return nil
}

func (s *Store) FindByChatAndMessage(ctx context.Context, chatID int64, messageID int) (*state.Record, error) {
	var r row
	err := s.db.GetContext(ctx, &r, selectColumns+` WHERE chat_id = $1 AND message_id = $2`, chatID, messageID)
	return s.found(ctx, "find_by_message", r, err)
}

func (s *Store) FindLatestByChat(ctx context.Context, chatID int64) (*state.Record, error) {
	var r row
	err := s.db.GetContext(ctx, &r, selectColumns+` WHERE chat_id = $1 ORDER BY seq DESC LIMIT 1`, chatID)
	return s.found(ctx, "find_latest", r, err)
}

func (s *Store) found(ctx context.Context, op string, r row, err error) (*state.Record, error) {
	if errors.Is(err, sql.ErrNoRows) {
		return nil, state.ErrNotFound
	}
	if err != nil {
		s.logFailure(ctx, op, err)
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	return r.record(), nil
}

func (s *Store) Insert(ctx context.Context, rec *state.Record) error {
	r := fromRecord(rec)
	r.ID = uuid.NewString()
	start := time.Now()
	_, err := s.db.NamedExecContext(ctx, `INSERT INTO conversation_states
		(id, chat_id, message_id, module_id, data, last_updated)
		VALUES (:id, :chat_id, :message_id, :module_id, :data, :last_updated)`, r)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return state.ErrDuplicate
		}
		s.logFailure(ctx, "insert", err)
		return fmt.Errorf("postgres: insert: %w", err)
	}
	rec.ID = r.ID
	logger.Store.LogAttrs(ctx, slog.LevelDebug, "record inserted",
		slog.String("event", "store.insert"),
		slog.String("backend", "postgres"),
		slog.String("record_id", rec.ID),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}

func (s *Store) Replace(ctx context.Context, rec *state.Record) error {
	res, err := s.db.NamedExecContext(ctx, `UPDATE conversation_states SET
		chat_id = :chat_id, message_id = :message_id, module_id = :module_id,
		data = :data, last_updated = :last_updated
		WHERE id = :id`, fromRecord(rec))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return state.ErrDuplicate
		}
		s.logFailure(ctx, "replace", err)
		return fmt.Errorf("postgres: replace: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: replace: %w", err)
	}
	if n == 0 {
		return state.ErrNotFound
	}
	return nil
}

// Ping checks the pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) logFailure(ctx context.Context, op string, err error) {
	logger.Store.LogAttrs(ctx, slog.LevelError, "store operation failed",
		slog.String("event", "store."+op),
		slog.String("backend", "postgres"),
		slog.String("status", "error"),
		slog.String("err", err.Error()),
	)
}
