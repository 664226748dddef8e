// Package router binds telebot endpoints to the conversation dispatcher.
package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/stateful"
	tg "github.com/m3rciful/stateful/core/telegram"
	tghelpers "github.com/m3rciful/stateful/core/telegram/helpers"
	"github.com/m3rciful/stateful/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Dispatcher handles one raw update.
type Dispatcher interface {
	HandleUpdate(ctx context.Context, u tele.Update) error
}

// conversational lists the endpoints whose updates reach the dispatcher.
// Commands without their own route fall through to OnText.
var conversational = []string{
	tele.OnText,
	tele.OnEdited,
	tele.OnCallback,
	tele.OnMedia,
}

// UpdateRoutes routes every conversational update to d, wrapped with the
// shared recover and logging middleware.
func UpdateRoutes(d Dispatcher) []tg.Route {
	routes := make([]tg.Route, 0, len(conversational))
	for _, ep := range conversational {
		routes = append(routes, tg.Route{
			Endpoint: ep,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(dispatchHandler(d))),
		})
	}
	logger.TWire.Info("tg.wire",
		slog.String("event", "routes"),
		slog.Int("count", len(routes)),
	)
	return routes
}

func dispatchHandler(d Dispatcher) tele.HandlerFunc {
	return func(c tele.Context) error {
		start := time.Now()
		upd := c.Update()
		kind := stateful.Classify(upd)
		name := "update." + normalizeHandlerName(kind.String())

		var extras []slog.Attr
		if upd.Callback != nil {
			extras = append(extras, slog.String("cb_data", logger.SanitizeLimit(upd.Callback.Data, 64)))
		}
		return handleWithSummary(c, name, start, func() error {
			return d.HandleUpdate(tghelpers.BuildContext(c), upd)
		}, extras...)
	}
}
