package middleware

import (
	"context"
	"sync/atomic"

	tghelpers "github.com/m3rciful/stateful/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// counters tracks outbound traffic produced while handling one update.
type counters struct {
	messages atomic.Int32
	keyboard atomic.Bool
}

type countersKey struct{}

// WithCounters attaches fresh outbound counters to ctx.
func WithCounters(ctx context.Context) context.Context {
	return context.WithValue(ctx, countersKey{}, &counters{})
}

// CountOutbound records one sent or edited message. It is a no-op without counters.
func CountOutbound(ctx context.Context, hasKeyboard bool) {
	c, _ := ctx.Value(countersKey{}).(*counters)
	if c == nil {
		return
	}
	c.messages.Add(1)
	if hasKeyboard {
		c.keyboard.Store(true)
	}
}

// Counters reads the message count and keyboard flag collected in ctx.
func Counters(ctx context.Context) (int, bool) {
	c, _ := ctx.Value(countersKey{}).(*counters)
	if c == nil {
		return 0, false
	}
	return int(c.messages.Load()), c.keyboard.Load()
}

// MessageMetricsMiddleware installs outbound counters into the update context.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		tghelpers.StoreContext(c, WithCounters(tghelpers.BuildContext(c)))
		return next(c)
	}
}

// GetCounters reads the counters stored for the update.
func GetCounters(c tele.Context) (int, bool) {
	ctx, ok := tghelpers.ContextFrom(c)
	if !ok {
		return 0, false
	}
	return Counters(ctx)
}
