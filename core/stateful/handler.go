package stateful

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Handler is bound to one update and one method invocation. It is never reused.
type Handler struct {
	Client Transport
	Bot    *Bot
	// State is the conversation record. It moves to a new record when the
	// handler sends a new message.
	State  *state.Record
	Update tele.Update

	moduleID string
	module   *Module
	method   string
}

// Module returns the id of the module this handler runs in.
func (h *Handler) Module() string { return h.moduleID }

// Method returns the name of the method being invoked, if any.
func (h *Handler) Method() string { return h.method }

// Kind classifies the bound update.
func (h *Handler) Kind() Kind { return Classify(h.Update) }

// ChatID returns the chat of the bound update.
func (h *Handler) ChatID() (int64, bool) { return ChatID(h.Update) }

// UserID returns the sender of the bound update.
func (h *Handler) UserID() (int64, bool) { return UserID(h.Update) }

// MessageID returns the message the bound update refers to.
func (h *Handler) MessageID() (int, bool) { return MessageID(h.Update) }

// Text returns the text of a plain text message update.
func (h *Handler) Text() (string, bool) {
	if m := h.Update.Message; m != nil && m.Text != "" {
		return m.Text, true
	}
	return "", false
}

// CallbackData returns the data of a callback update.
func (h *Handler) CallbackData() (string, bool) {
	if cb := h.Update.Callback; cb != nil {
		return cb.Data, true
	}
	return "", false
}

// SendMessage sends text to the update chat. The current record is forked onto
// the sent message and becomes the handler's State.
func (h *Handler) SendMessage(ctx context.Context, text string, markup *tele.ReplyMarkup) (*Message, error) {
	chatID, ok := h.ChatID()
	if !ok {
		return nil, ErrNoChat
	}
	return h.SendMessageTo(ctx, chatID, text, markup)
}

// SendMessageTo is SendMessage for an explicit chat.
func (h *Handler) SendMessageTo(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (*Message, error) {
	msg, err := h.Client.SendText(ctx, chatID, text, markup)
	if err != nil {
		return nil, fmt.Errorf("stateful: send: %w", err)
	}
	rec := h.State.Fork(msg.ID)
	rec.ChatID = msg.ChatID
	if err := h.Bot.store.Insert(ctx, rec); err != nil {
		return msg, fmt.Errorf("stateful: save sent message state: %w", err)
	}
	h.State = rec
	logger.LogEvent(ctx, logger.Store, slog.LevelDebug, "record.forked",
		slog.String("status", "ok"),
		slog.String("record_id", rec.ID),
		slog.Int("message_id", msg.ID),
	)
	return msg, nil
}

// EditMessage edits the text of the update message and saves the record.
// A nil message with a nil error means Telegram reported no change.
func (h *Handler) EditMessage(ctx context.Context, text string, markup *tele.ReplyMarkup) (*Message, error) {
	chatID, ok := h.ChatID()
	if !ok {
		return nil, ErrNoChat
	}
	messageID, ok := h.MessageID()
	if !ok {
		return nil, fmt.Errorf("stateful: edit: update has no message")
	}
	msg, err := h.Client.EditText(ctx, chatID, messageID, text, markup)
	if err != nil {
		return nil, fmt.Errorf("stateful: edit: %w", err)
	}
	if err := h.Save(ctx); err != nil {
		return msg, err
	}
	return msg, nil
}

// SendOrEditMessage edits the message behind a callback and sends a new one otherwise.
func (h *Handler) SendOrEditMessage(ctx context.Context, text string, markup *tele.ReplyMarkup) (*Message, error) {
	if h.Kind() == KindCallback {
		return h.EditMessage(ctx, text, markup)
	}
	return h.SendMessage(ctx, text, markup)
}

// Save persists the current record.
func (h *Handler) Save(ctx context.Context) error {
	if err := h.Bot.store.Replace(ctx, h.State); err != nil {
		return fmt.Errorf("stateful: save state: %w", err)
	}
	return nil
}

// ChangeHandler makes id the active module and saves the record. With runDefault
// the default method of the new module runs right away on the same update and
// record; its failure is logged and does not affect the switch.
func (h *Handler) ChangeHandler(ctx context.Context, id string, runDefault bool) error {
	mod, ok := h.Bot.module(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModule, id)
	}
	prev := h.State.ModuleID
	h.State.SetModule(id)
	if err := h.Save(ctx); err != nil {
		h.State.SetModule(prev)
		return err
	}
	logger.LogEvent(ctx, logger.Dispatch, slog.LevelDebug, "module.changed",
		slog.String("status", "ok"),
		slog.String("module", id),
		slog.String("from", prev),
	)
	if !runDefault {
		return nil
	}

	next := h.Bot.newHandler(id, mod, h.State, h.Update)
	next.Client = h.Client
	if m := mod.defaultMethod(ctx, next); m != nil {
		h.Bot.invoke(ctx, next, m)
	}
	h.State = next.State
	return nil
}
