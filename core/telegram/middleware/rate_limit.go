package middleware

import (
	"log/slog"
	"sync"
	"time"

	coreconfig "github.com/m3rciful/stateful/core/config"
	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/stateful"
	tghelpers "github.com/m3rciful/stateful/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	Interval  time.Duration
	Exclude   map[string]struct{}
	OnLimited tele.HandlerFunc
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// limitKind maps an update onto the names accepted by rate_limit.exclude_updates.
func limitKind(u tele.Update) string {
	switch stateful.Classify(u) {
	case stateful.KindCallback:
		return coreconfig.UpdateCallback
	case stateful.KindMessage:
		return coreconfig.UpdateMessage
	case stateful.KindInlineQuery:
		return coreconfig.UpdateInlineQuery
	}
	return "other"
}

// RateLimitMiddleware drops updates from a user that arrive sooner than
// Interval after the previous accepted one. Dropped callbacks are still
// answered so the client stops its progress indicator.
func RateLimitMiddleware(opts RateLimitOptions) tele.MiddlewareFunc {
	var (
		lastSeen   = make(map[int64]time.Time)
		lastSeenMu sync.Mutex
	)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			upd := c.Update()
			userID, ok := stateful.UserID(upd)
			if !ok || opts.Interval <= 0 {
				return next(c)
			}
			if _, skip := opts.Exclude[limitKind(upd)]; skip {
				return next(c)
			}

			ts := now()
			lastSeenMu.Lock()
			if last, seen := lastSeen[userID]; seen && ts.Sub(last) < opts.Interval {
				lastSeenMu.Unlock()
				logger.TG.LogAttrs(tghelpers.BuildContext(c), slog.LevelWarn, "rate limit",
					slog.String("event", "tg.rate_limit"),
					slog.String("kind", limitKind(upd)),
				)
				if upd.Callback != nil {
					if err := c.Respond(); err != nil {
						logger.TG.LogAttrs(tghelpers.BuildContext(c), slog.LevelWarn, "answer limited callback",
							slog.String("event", "tg.rate_limit"),
							slog.String("err", err.Error()),
						)
					}
				}
				if opts.OnLimited != nil {
					_ = opts.OnLimited(c)
				}
				return nil
			}
			lastSeen[userID] = ts
			lastSeenMu.Unlock()
			return next(c)
		}
	}
}
