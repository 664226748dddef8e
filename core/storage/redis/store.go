// Package redis stores conversation records as JSON documents in Redis.
//
// Keys, all under the configured prefix:
//
//	<prefix>:record:<id>            record JSON
//	<prefix>:msg:<chat>:<message>   id of the record bound to the message
//	<prefix>:latest:<chat>          id of the most recently inserted record
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/stateful/core/config"
	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/telegram/state"
)

// Store implements state.Store on Redis.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New wraps a client. A zero ttl keeps records forever.
func New(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Connect creates a client and waits until it answers PING or timeout elapses.
func Connect(ctx context.Context, cfg coreconfig.RedisConfig, timeout time.Duration) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = timeout
	policy.MaxInterval = 5 * time.Second

	start := time.Now()
	err := backoff.RetryNotify(
		func() error { return client.Ping(ctx).Err() },
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			logger.Store.Warn("redis connect retry",
				slog.String("event", "redis.connect"),
				slog.String("status", "retry"),
				slog.String("addr", cfg.Addr),
				slog.Duration("backoff", logger.RoundMS(next)),
				slog.String("err", err.Error()),
			)
		},
	)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connect: %w", err)
	}
	logger.Store.Info("redis connected",
		slog.String("event", "redis.connect"),
		slog.String("addr", cfg.Addr),
		slog.Int("db", cfg.DB),
		slog.Duration("duration", logger.Took(start)),
	)
	return client, nil
}

func (s *Store) recordKey(id string) string {
	return s.prefix + ":record:" + id
}

func (s *Store) messageKey(chatID int64, messageID int) string {
	return s.prefix + ":msg:" + strconv.FormatInt(chatID, 10) + ":" + strconv.Itoa(messageID)
}

func (s *Store) latestKey(chatID int64) string {
	return s.prefix + ":latest:" + strconv.FormatInt(chatID, 10)
}

func (s *Store) FindByChatAndMessage(ctx context.Context, chatID int64, messageID int) (*state.Record, error) {
	return s.findVia(ctx, "find_by_message", s.messageKey(chatID, messageID))
}

func (s *Store) FindLatestByChat(ctx context.Context, chatID int64) (*state.Record, error) {
	return s.findVia(ctx, "find_latest", s.latestKey(chatID))
}

// findVia follows an index key to the record it names.
func (s *Store) findVia(ctx context.Context, op, indexKey string) (*state.Record, error) {
	id, err := s.client.Get(ctx, indexKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, state.ErrNotFound
	}
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	raw, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, state.ErrNotFound
	}
	if err != nil {
		return nil, s.fail(ctx, op, err)
	}
	return decode(raw)
}

func (s *Store) Insert(ctx context.Context, rec *state.Record) error {
	id := uuid.NewString()
	msgKey := s.messageKey(rec.ChatID, rec.MessageID)
	claimed, err := s.client.SetNX(ctx, msgKey, id, s.ttl).Result()
	if err != nil {
		return s.fail(ctx, "insert", err)
	}
	if !claimed {
		return state.ErrDuplicate
	}

	doc := rec.Clone()
	doc.ID = id
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("redis: encode record: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.recordKey(id), raw, s.ttl)
		p.Set(ctx, s.latestKey(rec.ChatID), id, s.ttl)
		return nil
	})
	if err != nil {
		s.client.Del(ctx, msgKey)
		return s.fail(ctx, "insert", err)
	}
	rec.ID = id
	logger.Store.LogAttrs(ctx, slog.LevelDebug, "record inserted",
		slog.String("event", "store.insert"),
		slog.String("backend", "redis"),
		slog.String("record_id", id),
	)
	return nil
}

func (s *Store) Replace(ctx context.Context, rec *state.Record) error {
	prevRaw, err := s.client.Get(ctx, s.recordKey(rec.ID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return state.ErrNotFound
	}
	if err != nil {
		return s.fail(ctx, "replace", err)
	}
	prev, err := decode(prevRaw)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("redis: encode record: %w", err)
	}
	refreshLatest, err := s.isLatest(ctx, rec)
	if err != nil {
		return s.fail(ctx, "replace", err)
	}
	msgKey := s.messageKey(rec.ChatID, rec.MessageID)
	moved := prev.ChatID != rec.ChatID || prev.MessageID != rec.MessageID
	if moved {
		claimed, err := s.client.SetNX(ctx, msgKey, rec.ID, s.ttl).Result()
		if err != nil {
			return s.fail(ctx, "replace", err)
		}
		if !claimed {
			return state.ErrDuplicate
		}
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.recordKey(rec.ID), raw, s.ttl)
		if moved {
			p.Del(ctx, s.messageKey(prev.ChatID, prev.MessageID))
		} else if s.ttl > 0 {
			p.Expire(ctx, msgKey, s.ttl)
		}
		if refreshLatest {
			p.Expire(ctx, s.latestKey(rec.ChatID), s.ttl)
		}
		return nil
	})
	if err != nil {
		if moved {
			s.client.Del(ctx, msgKey)
		}
		return s.fail(ctx, "replace", err)
	}
	return nil
}

// isLatest reports whether the chat's latest pointer names rec and must
// live as long as rec does. Without a TTL nothing expires.
func (s *Store) isLatest(ctx context.Context, rec *state.Record) (bool, error) {
	if s.ttl <= 0 {
		return false, nil
	}
	id, err := s.client.Get(ctx, s.latestKey(rec.ChatID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return id == rec.ID, nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func decode(raw []byte) (*state.Record, error) {
	var rec state.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("redis: decode record: %w", err)
	}
	if rec.Data == nil {
		rec.Data = make(map[string]string)
	}
	return &rec, nil
}

func (s *Store) fail(ctx context.Context, op string, err error) error {
	logger.Store.LogAttrs(ctx, slog.LevelError, "store operation failed",
		slog.String("event", "store."+op),
		slog.String("backend", "redis"),
		slog.String("status", "error"),
		slog.String("err", err.Error()),
	)
	return fmt.Errorf("redis: %s: %w", op, err)
}
