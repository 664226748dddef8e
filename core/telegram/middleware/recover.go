package middleware

import (
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/stateful/core/logger"
	tghelpers "github.com/m3rciful/stateful/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// RecoverMiddleware catches panics that escape route handlers.
func RecoverMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.TG.LogAttrs(tghelpers.BuildContext(c), slog.LevelError, "panic recovered",
					slog.String("event", "tg.panic"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = nil
			}
		}()
		return next(c)
	}
}
