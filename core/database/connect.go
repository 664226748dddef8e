// Package database opens the PostgreSQL pool and applies schema migrations.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	coreconfig "github.com/m3rciful/stateful/core/config"
	"github.com/m3rciful/stateful/core/logger"
)

// DSN renders the connection URL understood by both lib/pq and golang-migrate.
func DSN(cfg coreconfig.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host + ":" + cfg.Port,
		Path:   "/" + cfg.Name,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Connect opens the pool, retrying with exponential backoff until the server
// answers a ping or timeout elapses.
func Connect(ctx context.Context, cfg coreconfig.DatabaseConfig, timeout time.Duration) (*sqlx.DB, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = timeout
	policy.MaxInterval = 5 * time.Second

	var (
		db       *sqlx.DB
		attempts int
	)
	start := time.Now()
	err := backoff.RetryNotify(
		func() error {
			attempts++
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			conn, err := sqlx.ConnectContext(pingCtx, "postgres", DSN(cfg))
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			db = conn
			return nil
		},
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			logger.DB.Warn("db connect retry",
				slog.String("event", "db.connect"),
				slog.String("status", "retry"),
				slog.String("host", cfg.Host),
				slog.Int("attempts", attempts),
				slog.Duration("backoff", logger.RoundMS(next)),
				slog.String("err", err.Error()),
			)
		},
	)
	took := time.Since(start)
	if err != nil {
		logger.DB.Error("db connect failed",
			slog.String("event", "db.connect"),
			slog.String("driver", "postgres"),
			slog.String("host", cfg.Host),
			slog.String("port", cfg.Port),
			slog.String("db", cfg.Name),
			slog.Int("attempts", attempts),
			slog.Duration("duration", logger.RoundMS(took)),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("db connect: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	db.SetConnMaxIdleTime(5 * time.Minute)

	logger.DB.Info("db connected",
		slog.String("event", "db.connect"),
		slog.String("driver", "postgres"),
		slog.String("host", cfg.Host),
		slog.String("port", cfg.Port),
		slog.String("db", cfg.Name),
		slog.Int("pool_open", cfg.MaxConnections),
		slog.Int("attempts", attempts),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return db, nil
}
