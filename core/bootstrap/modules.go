package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/stateful"
	coretelegram "github.com/m3rciful/stateful/core/telegram"
)

// Registrar adds conversation modules to the dispatcher.
type Registrar interface {
	Register(b *stateful.Bot) error
}

// RegistrarFunc adapts a bare function to the Registrar interface.
type RegistrarFunc func(b *stateful.Bot) error

// Register executes the underlying function.
func (f RegistrarFunc) Register(b *stateful.Bot) error {
	return f(b)
}

// Worker runs next to the bot until its context is cancelled.
type Worker interface {
	Run(ctx context.Context, rt coretelegram.Runtime) error
}

// WorkerFunc adapts a bare function to the Worker interface.
type WorkerFunc func(ctx context.Context, rt coretelegram.Runtime) error

// Run executes the underlying function.
func (f WorkerFunc) Run(ctx context.Context, rt coretelegram.Runtime) error {
	return f(ctx, rt)
}

// Modules groups the application hooks plugged into the runtime.
type Modules struct {
	Registrars []Registrar
	Workers    []Worker
}

// workerGroup starts workers with the bot and stops them before the outbound
// dispatcher is closed.
type workerGroup struct {
	workers []Worker

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (g *workerGroup) start(ctx context.Context, rt coretelegram.Runtime) error {
	ctx, g.cancel = context.WithCancel(ctx)
	for _, w := range g.workers {
		if w == nil {
			continue
		}
		g.wg.Add(1)
		go func(w Worker) {
			defer g.wg.Done()
			if err := w.Run(ctx, rt); err != nil && !errors.Is(err, context.Canceled) {
				logger.L.Error("worker stopped",
					slog.String("event", "worker.exit"),
					slog.String("status", "error"),
					slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
				)
			}
		}(w)
	}
	return nil
}

func (g *workerGroup) stop(ctx context.Context, _ coretelegram.Runtime) error {
	if g.cancel != nil {
		g.cancel()
	}
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
