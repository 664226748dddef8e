// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/telegram/state"
)

const checkTimeout = 2 * time.Second

// Check is one readiness dependency.
type Check struct {
	Name   string
	Pinger state.Pinger
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter mounts /healthz (liveness), /readyz (dependency pings) and /ping.
func NewRouter(checks ...Check) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, report{Status: "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		rep, ok := probe(req.Context(), checks)
		code := http.StatusOK
		if !ok {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, rep)
	})
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("pong"))
	})
	return r
}

func probe(ctx context.Context, checks []Check) (report, bool) {
	rep := report{Status: "ok", Checks: make(map[string]string, len(checks))}
	ok := true
	for _, c := range checks {
		if c.Pinger == nil {
			continue
		}
		pctx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.Pinger.Ping(pctx)
		cancel()
		if err != nil {
			ok = false
			rep.Checks[c.Name] = err.Error()
			logger.Warn(ctx, "health", "ready.check",
				slog.String("status", "fail"),
				slog.String("check", c.Name),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			continue
		}
		rep.Checks[c.Name] = "ok"
	}
	if !ok {
		rep.Status = "unavailable"
	}
	return rep, ok
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	logger.Info(ctx, "health", "listen", slog.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
