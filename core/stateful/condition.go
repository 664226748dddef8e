package stateful

import (
	"context"
	"strings"

	"github.com/m3rciful/stateful/core/telegram/keyboard"
)

// InternalPrefix starts the callback data reserved for built-in modules.
const InternalPrefix = "stinternal-"

// ConditionKind tells the menu generator how a condition can be displayed.
type ConditionKind int

const (
	CondCustom ConditionKind = iota
	CondMessage
	CondCallback
	CondInternal
	CondCommand
)

// Condition is a named predicate over the update being handled.
// All conditions of a method must match for it to be selected.
type Condition struct {
	Name string
	Kind ConditionKind
	// Literal is the display form for message and callback conditions.
	// It keeps the trailing row-break marker; empty means any text or payload.
	Literal string
	Match   func(ctx context.Context, h *Handler) bool
}

// OnMessage matches a plain text message equal to text.
// A trailing "\n" only affects menu layout and is ignored when matching.
func OnMessage(text string) Condition {
	want := keyboard.Label(text)
	return Condition{
		Name:    "message:" + want,
		Kind:    CondMessage,
		Literal: text,
		Match: func(_ context.Context, h *Handler) bool {
			t, ok := h.Text()
			return ok && t == want
		},
	}
}

// OnAnyMessage matches every plain text message.
func OnAnyMessage() Condition {
	return Condition{
		Name: "message:*",
		Kind: CondMessage,
		Match: func(_ context.Context, h *Handler) bool {
			_, ok := h.Text()
			return ok
		},
	}
}

// OnCallback matches a callback whose data equals data.
func OnCallback(data string) Condition {
	want := keyboard.Label(data)
	return Condition{
		Name:    "callback:" + want,
		Kind:    CondCallback,
		Literal: data,
		Match: func(_ context.Context, h *Handler) bool {
			d, ok := h.CallbackData()
			return ok && d == want
		},
	}
}

// OnAnyCallback matches every callback.
func OnAnyCallback() Condition {
	return Condition{
		Name: "callback:*",
		Kind: CondCallback,
		Match: func(_ context.Context, h *Handler) bool {
			_, ok := h.CallbackData()
			return ok
		},
	}
}

// OnInternal matches callbacks carrying a built-in marker. It is never displayed.
func OnInternal(marker string) Condition {
	prefix := InternalPrefix + marker
	return Condition{
		Name: "internal:" + marker,
		Kind: CondInternal,
		Match: func(_ context.Context, h *Handler) bool {
			d, ok := h.CallbackData()
			return ok && strings.HasPrefix(d, prefix)
		},
	}
}

// OnCommand matches "/name", optionally addressed as "/name@bot" and followed by arguments.
// The @bot form only matches the bot's own username when it is known.
func OnCommand(name string) Condition {
	name = strings.TrimPrefix(name, "/")
	return Condition{
		Name:    "command:" + name,
		Kind:    CondCommand,
		Literal: "/" + name,
		Match: func(_ context.Context, h *Handler) bool {
			t, ok := h.Text()
			if !ok || !strings.HasPrefix(t, "/") {
				return false
			}
			cmd, _, _ := strings.Cut(t[1:], " ")
			cmd, bot, addressed := strings.Cut(cmd, "@")
			if cmd != name {
				return false
			}
			if !addressed {
				return true
			}
			own := h.Bot.Username()
			return own == "" || strings.EqualFold(bot, own)
		},
	}
}

// When wraps an arbitrary predicate, e.g. a role or data check.
func When(name string, fn func(ctx context.Context, h *Handler) bool) Condition {
	return Condition{Name: name, Kind: CondCustom, Match: fn}
}
