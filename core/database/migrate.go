package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	coreconfig "github.com/m3rciful/stateful/core/config"
	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/migrations"
)

// Migrator applies schema migrations from the embedded set or cfg.MigrationsDir.
type Migrator struct {
	cfg     coreconfig.DatabaseConfig
	timeout time.Duration
}

// NewMigrator returns a migrator that waits up to timeout for the database.
func NewMigrator(cfg coreconfig.DatabaseConfig, timeout time.Duration) *Migrator {
	return &Migrator{cfg: cfg, timeout: timeout}
}

// Up applies all pending up migrations.
func (m *Migrator) Up(ctx context.Context) error {
	mg, files, err := m.open(ctx)
	if err != nil {
		return err
	}
	defer closeMigrate(mg)

	fromVer, _, _ := mg.Version()

	start := time.Now()
	upErr := mg.Up()
	took := time.Since(start)

	switch {
	case upErr == nil:
	case errors.Is(upErr, migrate.ErrNoChange):
		logger.MIG.Info("migrations summary",
			slog.String("event", "summary"),
			slog.Uint64("from_ver", uint64(fromVer)),
			slog.Uint64("to_ver", uint64(fromVer)),
			slog.Int("files", 0),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return nil
	default:
		logger.MIG.Error("migration failed",
			slog.String("event", "apply"),
			slog.String("err", upErr.Error()),
			slog.Duration("duration", logger.RoundMS(took)),
		)
		return fmt.Errorf("migration execution failed: %w", upErr)
	}

	toVer, _, _ := mg.Version()
	applied := selectApplied(files, uint64(fromVer), uint64(toVer))
	if len(applied) > 0 {
		preview, truncated := logger.SummarizeStrings(applied, 6)
		args := []any{
			slog.String("event", "apply"),
			slog.Int("files_total", len(applied)),
			slog.String("files_preview", preview),
		}
		if truncated {
			args = append(args, slog.Bool("files_truncated", true))
		}
		logger.MIG.Debug("applied files", args...)
	}

	logger.MIG.Info("migrations summary",
		slog.String("event", "summary"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
		slog.Int("files", len(applied)),
		slog.Duration("duration", logger.RoundMS(took)),
	)
	return nil
}

// Down rolls back steps migrations.
func (m *Migrator) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("down steps must be > 0, got %d", steps)
	}
	mg, _, err := m.open(ctx)
	if err != nil {
		return err
	}
	defer closeMigrate(mg)

	fromVer, _, _ := mg.Version()
	if err := mg.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.MIG.Error("rollback failed",
			slog.String("event", "rollback"),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("migration rollback failed: %w", err)
	}
	toVer, _, _ := mg.Version()
	logger.MIG.Info("rollback summary",
		slog.String("event", "rollback"),
		slog.Uint64("from_ver", uint64(fromVer)),
		slog.Uint64("to_ver", uint64(toVer)),
	)
	return nil
}

// Version reports the applied schema version. A database without migrations reports 0.
func (m *Migrator) Version(ctx context.Context) (version uint, dirty bool, err error) {
	mg, _, err := m.open(ctx)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(mg)

	version, dirty, err = mg.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read migration version: %w", err)
	}
	return version, dirty, nil
}

// open builds the migrate instance, retrying while the database is unreachable.
func (m *Migrator) open(ctx context.Context) (*migrate.Migrate, []string, error) {
	files, build, err := m.source()
	if err != nil {
		return nil, nil, err
	}

	preview, truncated := logger.SummarizeStrings(files, 6)
	args := []any{
		slog.String("event", "resolve"),
		slog.String("source", m.sourceName()),
		slog.Int("files_total", len(files)),
	}
	if preview != "" {
		args = append(args, slog.String("files_preview", preview))
	}
	if truncated {
		args = append(args, slog.Bool("files_truncated", true))
	}
	logger.MIG.Debug("migrations resolved", args...)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = m.timeout

	var mg *migrate.Migrate
	err = backoff.RetryNotify(
		func() error {
			inst, err := build()
			if err != nil {
				return err
			}
			mg = inst
			return nil
		},
		backoff.WithContext(policy, ctx),
		func(err error, next time.Duration) {
			logger.MIG.Warn("db not ready",
				slog.String("event", "db.migrate"),
				slog.String("status", "retry"),
				slog.Duration("backoff", logger.RoundMS(next)),
				slog.String("err", err.Error()),
			)
		},
	)
	if err != nil {
		logger.MIG.Error("init failed",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
		return nil, nil, fmt.Errorf("failed to initialize migrations: %w", err)
	}
	return mg, files, nil
}

func (m *Migrator) sourceName() string {
	if m.cfg.MigrationsDir == "" {
		return "embedded"
	}
	return m.cfg.MigrationsDir
}

// source returns the up-file names and a constructor for the migrate instance.
func (m *Migrator) source() ([]string, func() (*migrate.Migrate, error), error) {
	dsn := DSN(m.cfg)
	if m.cfg.MigrationsDir == "" {
		files := listMigrationFiles(migrations.FS)
		return files, func() (*migrate.Migrate, error) {
			src, err := iofs.New(migrations.FS, ".")
			if err != nil {
				return nil, fmt.Errorf("open embedded migrations: %w", err)
			}
			return migrate.NewWithSourceInstance("iofs", src, dsn)
		}, nil
	}

	dir, err := filepath.Abs(m.cfg.MigrationsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve migrations dir: %w", err)
	}
	files := listMigrationFiles(os.DirFS(dir))
	return files, func() (*migrate.Migrate, error) {
		return migrate.New("file://"+dir, dsn)
	}, nil
}

func closeMigrate(mg *migrate.Migrate) {
	srcErr, dbErr := mg.Close()
	if err := errors.Join(srcErr, dbErr); err != nil {
		logger.MIG.Warn("close failed",
			slog.String("event", "db.migrate"),
			slog.String("err", err.Error()),
		)
	}
}

func listMigrationFiles(fsys fs.FS) []string {
	names, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil
	}
	return names
}

func parseVersion(name string) uint64 {
	head, _, _ := strings.Cut(name, "_")
	v, _ := strconv.ParseUint(head, 10, 64)
	return v
}

func selectApplied(files []string, from, to uint64) []string {
	var out []string
	for _, f := range files {
		v := parseVersion(f)
		if v > from && v <= to {
			out = append(out, f)
		}
	}
	return out
}
