// Package telegram runs the telebot runtime: bot construction, pollers,
// middleware and route wiring, and the outbound transport.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	coreconfig "github.com/m3rciful/stateful/core/config"
	"github.com/m3rciful/stateful/core/logger"
	tghelpers "github.com/m3rciful/stateful/core/telegram/helpers"
	tgsender "github.com/m3rciful/stateful/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to a telebot endpoint.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of Run.
type RunOptions struct {
	Middlewares []Middleware
	Routes      []Route
	// Commands is published as the client command menu on start.
	Commands []tele.Command

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	DisableWebhookCleanup bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
}

// NewBot builds the telebot instance for cfg. Updates are processed concurrently
// unless cfg.Stateful.Synchronous is set.
func NewBot(cfg *coreconfig.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("telegram: nil config provided")
	}
	start := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:       cfg.Telegram.Token,
		Poller:      BuildPoller(cfg),
		Client:      BuildHTTPClient(),
		Synchronous: cfg.Stateful.Synchronous,
		OnError: func(err error, c tele.Context) {
			ctx, ok := tghelpers.ContextFrom(c)
			if !ok {
				ctx = context.Background()
			}
			logger.TG.LogAttrs(ctx, slog.LevelError, "update failed",
				slog.String("event", "tg.error"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	attrs := []slog.Attr{
		slog.String("event", "mode"),
		slog.String("mode", cfg.Telegram.RunMode),
		slog.String("username", bot.Me.Username),
		slog.Duration("duration", logger.Took(start)),
	}
	if wh, ok := bot.Poller.(*tele.Webhook); ok {
		attrs = append(attrs,
			slog.String("listen", wh.Listen),
			slog.String("public_url", wh.Endpoint.PublicURL),
		)
	}
	logger.TG.LogAttrs(context.Background(), slog.LevelInfo, "bot ready", attrs...)
	return bot, nil
}

// Run wires middleware and routes into bot and runs it until ctx is done.
func Run(ctx context.Context, bot *tele.Bot, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if bot == nil {
		return fmt.Errorf("telegram: nil bot provided")
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	rt := Runtime{Bot: bot, Dispatcher: dispatcher}

	if _, polling := bot.Poller.(*tele.LongPoller); polling && !opts.DisableWebhookCleanup {
		if err := bot.RemoveWebhook(false); err != nil {
			logger.TG.Warn("failed to delete webhook",
				slog.String("event", "delete_webhook"),
				slog.String("mode", "polling"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		} else {
			logger.TG.Info("webhook deleted",
				slog.String("event", "delete_webhook"),
				slog.String("mode", "polling"),
			)
		}
	}

	for _, mw := range opts.Middlewares {
		if mw.Use == nil {
			continue
		}
		bot.Use(mw.Use)
	}
	routes := 0
	for _, route := range opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
		routes++
	}
	logger.TWire.Info("tg.wire",
		slog.String("event", "complete"),
		slog.Int("middlewares", len(opts.Middlewares)),
		slog.Int("routes", routes),
		slog.Int("commands", len(opts.Commands)),
	)

	if len(opts.Commands) > 0 {
		PublishCommands(ctx, bot, opts.Commands)
	}

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			dispatcher.Close()
			return err
		}
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	var stopErr error
	if opts.OnStop != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		stopErr = opts.OnStop(stopCtx, rt)
		cancel()
	}
	dispatcher.Close()

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// PublishCommands sets the client command menu. Failures are logged only.
func PublishCommands(ctx context.Context, bot *tele.Bot, cmds []tele.Command) {
	if err := bot.SetCommands(cmds); err != nil {
		logger.TWire.LogAttrs(ctx, slog.LevelError, "set commands failed",
			slog.String("event", "register.commands"),
			slog.String("status", "error"),
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		)
		return
	}
	logger.TWire.LogAttrs(ctx, slog.LevelInfo, "commands published",
		slog.String("event", "register.commands"),
		slog.Int("count", len(cmds)),
	)
}
