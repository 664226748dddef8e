package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/stateful"
	tghelpers "github.com/m3rciful/stateful/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// recentUpdates keeps a short-lived set of logged update IDs.
var (
	recentMu     sync.Mutex
	recentUpdate = make(map[int]time.Time)
	keepFor      = 10 * time.Second
)

func alreadyLogged(updateID int) bool {
	now := time.Now()
	recentMu.Lock()
	defer recentMu.Unlock()
	for id, ts := range recentUpdate {
		if now.Sub(ts) > keepFor {
			delete(recentUpdate, id)
		}
	}
	if _, ok := recentUpdate[updateID]; ok {
		return true
	}
	recentUpdate[updateID] = now
	return false
}

// LoggerMiddleware sets the rid for the update and logs one sampled receipt line per update id.
// Values already stored by earlier middleware are kept.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		upd := c.Update()
		chatID, _ := stateful.ChatID(upd)
		userID, _ := stateful.UserID(upd)

		rid := logger.BuildRID(upd.ID, chatID, userID)
		c.Set("rid", rid)

		base := context.Background()
		if prev, ok := tghelpers.ContextFrom(c); ok {
			base = prev
		}
		ctx := logger.WithRID(base, rid)
		ctx = logger.WithUpdateMeta(ctx, upd.ID, userID, chatID)
		if msgID, ok := stateful.MessageID(upd); ok {
			ctx = logger.WithMessageID(ctx, msgID)
		}
		ctx = logger.WithLogger(ctx, logger.Component("tg"))
		tghelpers.StoreContext(c, ctx)

		if logger.ShouldSampleDebug() && !alreadyLogged(upd.ID) {
			attrs := []slog.Attr{
				slog.String("status", "ok"),
				slog.String("kind", stateful.Classify(upd).String()),
			}
			if t := stateful.ChatType(upd); t != "" {
				attrs = append(attrs, slog.String("chat_type", t))
			}
			if user := c.Sender(); user != nil {
				if user.Username != "" {
					attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
				}
				if user.LanguageCode != "" {
					attrs = append(attrs, slog.String("lang", user.LanguageCode))
				}
			}
			switch {
			case upd.Callback != nil:
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(upd.Callback.Data, 256)))
			case upd.Message != nil && upd.Message.Text != "":
				attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(upd.Message.Text, 256)))
			}
			logger.LogEvent(ctx, logger.Component("tg"), slog.LevelDebug, "update.received", attrs...)
		}

		return next(c)
	}
}
