// Package bootstrap assembles the runtime shared between bots: logger, state
// store, telebot instance, transport and the conversation dispatcher.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/stateful/core/config"
	coredatabase "github.com/m3rciful/stateful/core/database"
	"github.com/m3rciful/stateful/core/health"
	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/stateful"
	"github.com/m3rciful/stateful/core/storage/postgres"
	redisstore "github.com/m3rciful/stateful/core/storage/redis"
	coretelegram "github.com/m3rciful/stateful/core/telegram"
	"github.com/m3rciful/stateful/core/telegram/router"
	"github.com/m3rciful/stateful/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Options control the generic bootstrap pipeline shared between bots.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	OpenStore  func(context.Context, *coreconfig.Config) (*Store, error)
	NewBot     func(*coreconfig.Config) (*tele.Bot, error)
}

// Store is the configured conversation state backend.
type Store struct {
	state.Store
	Backend string
	close   func() error
}

// Close releases the backend connection.
func (s *Store) Close() error {
	if s == nil || s.close == nil {
		return nil
	}
	return s.close()
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	Config    *coreconfig.Config
	Store     *Store
	Bot       *tele.Bot
	Transport *coretelegram.TeleTransport
	Stateful  *stateful.Bot
}

// Run initializes the logger, opens the state store, and builds the bot and dispatcher.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}
	cfg := opts.Config

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(cfg); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	openStore := opts.OpenStore
	if openStore == nil {
		openStore = OpenStore
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: state store initialization failed: %w", err)
	}

	newBot := opts.NewBot
	if newBot == nil {
		newBot = coretelegram.NewBot
	}
	bot, err := newBot(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	username := cfg.Telegram.Username
	if username == "" && bot.Me != nil {
		username = bot.Me.Username
	}
	transport := coretelegram.NewTransport(bot)
	sb, err := stateful.New(stateful.Options{
		Transport: transport,
		Store:     store,
		ChatTypes: cfg.Stateful.ChatTypes,
		Username:  username,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("bootstrap: dispatcher: %w", err)
	}

	return &Result{
		Config:    cfg,
		Store:     store,
		Bot:       bot,
		Transport: transport,
		Stateful:  sb,
	}, nil
}

// OpenStore connects the backend selected by cfg.Store.Backend. The Postgres
// schema is migrated before the store is handed out.
func OpenStore(ctx context.Context, cfg *coreconfig.Config) (*Store, error) {
	start := time.Now()
	var (
		st  *Store
		err error
	)
	switch cfg.Store.Backend {
	case coreconfig.StorePostgres:
		st, err = openPostgres(ctx, cfg)
	case coreconfig.StoreRedis:
		st, err = openRedis(ctx, cfg)
	case coreconfig.StoreMemory, "":
		st = &Store{Store: state.NewMemoryStore(), Backend: coreconfig.StoreMemory}
	default:
		err = fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
	if err != nil {
		return nil, err
	}
	logger.Store.Info("store ready",
		slog.String("event", "store.open"),
		slog.String("backend", st.Backend),
		slog.Duration("duration", logger.Took(start)),
	)
	return st, nil
}

func openPostgres(ctx context.Context, cfg *coreconfig.Config) (*Store, error) {
	timeout := cfg.Store.ConnectTimeout
	if err := coredatabase.NewMigrator(cfg.Database, timeout).Up(ctx); err != nil {
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	db, err := coredatabase.Connect(ctx, cfg.Database, timeout)
	if err != nil {
		return nil, err
	}
	pg := postgres.New(db)
	return &Store{Store: pg, Backend: coreconfig.StorePostgres, close: pg.Close}, nil
}

func openRedis(ctx context.Context, cfg *coreconfig.Config) (*Store, error) {
	client, err := redisstore.Connect(ctx, cfg.Redis, cfg.Store.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	rs := redisstore.New(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
	return &Store{Store: rs, Backend: coreconfig.StoreRedis, close: rs.Close}, nil
}

// Install registers the conversation modules.
func (r *Result) Install(mods Modules) error {
	for _, reg := range mods.Registrars {
		if reg == nil {
			continue
		}
		if err := reg.Register(r.Stateful); err != nil {
			return fmt.Errorf("bootstrap: register modules: %w", err)
		}
	}
	return nil
}

// HealthChecks lists the readiness dependencies of the runtime.
func (r *Result) HealthChecks() []health.Check {
	if p, ok := r.Store.Store.(state.Pinger); ok {
		return []health.Check{{Name: "store." + r.Store.Backend, Pinger: p}}
	}
	return nil
}

// RunOptions wires the dispatcher routes, command menu and workers into the
// telegram runtime. Modules must be installed first.
func (r *Result) RunOptions(mods Modules) coretelegram.RunOptions {
	workers := append([]Worker(nil), mods.Workers...)
	if addr := r.Config.Health.Listen; addr != "" {
		probes := health.NewRouter(r.HealthChecks()...)
		workers = append(workers, WorkerFunc(func(ctx context.Context, _ coretelegram.Runtime) error {
			return health.Serve(ctx, addr, probes)
		}))
	}
	group := &workerGroup{workers: workers}

	return coretelegram.RunOptions{
		Middlewares: coretelegram.DefaultMiddlewares(r.Config, nil),
		Routes:      router.UpdateRoutes(r.Stateful),
		Commands:    r.Stateful.Commands(),
		OnStart:     group.start,
		OnStop:      group.stop,
	}
}

// Close releases the state store.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	return r.Store.Close()
}
