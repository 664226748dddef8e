package stateful

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

// Message identifies a message sent or edited through the transport.
type Message struct {
	ID     int
	ChatID int64
}

// Transport is the outbound side of the chat platform.
//
// EditText returns a nil message and a nil error when Telegram reports
// the message as not modified.
type Transport interface {
	SendText(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (*Message, error)
	EditText(ctx context.Context, chatID int64, messageID int, text string, markup *tele.ReplyMarkup) (*Message, error)
	EditMarkup(ctx context.Context, chatID int64, messageID int, markup *tele.ReplyMarkup) error
	AnswerCallback(ctx context.Context, callbackID string) error
}
