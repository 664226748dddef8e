package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/stateful"
	"github.com/m3rciful/stateful/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// botAPI is the subset of *tele.Bot used by TeleTransport.
type botAPI interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditReplyMarkup(msg tele.Editable, markup *tele.ReplyMarkup) (*tele.Message, error)
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
}

// TeleTransport implements stateful.Transport on top of telebot.
type TeleTransport struct {
	api botAPI
	// ParseMode applies to sent and edited text. Empty sends plain text.
	ParseMode tele.ParseMode
}

var _ stateful.Transport = (*TeleTransport)(nil)

// NewTransport wraps a telebot bot.
func NewTransport(bot *tele.Bot) *TeleTransport {
	return &TeleTransport{api: bot}
}

func (t *TeleTransport) options(markup *tele.ReplyMarkup) *tele.SendOptions {
	return &tele.SendOptions{ParseMode: t.ParseMode, ReplyMarkup: markup}
}

func (t *TeleTransport) SendText(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (*stateful.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	msg, err := t.api.Send(tele.ChatID(chatID), text, t.options(markup))
	logCall(ctx, "sendMessage", start, err)
	if err != nil {
		return nil, err
	}
	middleware.CountOutbound(ctx, markup != nil)
	return toMessage(msg, chatID), nil
}

// EditText returns (nil, nil) when Telegram reports the message as not modified.
func (t *TeleTransport) EditText(ctx context.Context, chatID int64, messageID int, text string, markup *tele.ReplyMarkup) (*stateful.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	msg, err := t.api.Edit(stored(chatID, messageID), text, t.options(markup))
	if isNotModified(err) {
		logCall(ctx, "editMessageText", start, nil, slog.Bool("not_modified", true))
		return nil, nil
	}
	logCall(ctx, "editMessageText", start, err)
	if err != nil {
		return nil, err
	}
	middleware.CountOutbound(ctx, markup != nil)
	return toMessage(msg, chatID), nil
}

func (t *TeleTransport) EditMarkup(ctx context.Context, chatID int64, messageID int, markup *tele.ReplyMarkup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	_, err := t.api.EditReplyMarkup(stored(chatID, messageID), markup)
	if isNotModified(err) {
		logCall(ctx, "editMessageReplyMarkup", start, nil, slog.Bool("not_modified", true))
		return nil
	}
	logCall(ctx, "editMessageReplyMarkup", start, err)
	if err != nil {
		return err
	}
	middleware.CountOutbound(ctx, true)
	return nil
}

func (t *TeleTransport) AnswerCallback(ctx context.Context, callbackID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	err := t.api.Respond(&tele.Callback{ID: callbackID})
	logCall(ctx, "answerCallbackQuery", start, err)
	return err
}

func stored(chatID int64, messageID int) tele.StoredMessage {
	return tele.StoredMessage{MessageID: strconv.Itoa(messageID), ChatID: chatID}
}

func toMessage(msg *tele.Message, chatID int64) *stateful.Message {
	if msg == nil {
		return nil
	}
	out := &stateful.Message{ID: msg.ID, ChatID: chatID}
	if msg.Chat != nil {
		out.ChatID = msg.Chat.ID
	}
	return out
}

// isNotModified matches Telegram's "message is not modified" rejection of no-op edits.
func isNotModified(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message is not modified")
}

func logCall(ctx context.Context, endpoint string, start time.Time, err error, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("event", "api.call"),
		slog.String("endpoint", endpoint),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", logger.SanitizeLimit(err.Error(), 256)))
	}
	attrs = append(attrs, extra...)
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
	}
	logger.TG.LogAttrs(ctx, level, "api call", attrs...)
}
