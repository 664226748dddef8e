package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/stateful/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

type fakeAPI struct {
	sentTo   tele.Recipient
	sentOpts *tele.SendOptions
	edited   tele.Editable
	editErr  error
	answered string
}

func (f *fakeAPI) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.sentTo = to
	if len(opts) > 0 {
		f.sentOpts, _ = opts[0].(*tele.SendOptions)
	}
	return &tele.Message{ID: 77, Chat: &tele.Chat{ID: -5}}, nil
}

func (f *fakeAPI) Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.edited = msg
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &tele.Message{ID: 9}, nil
}

func (f *fakeAPI) EditReplyMarkup(msg tele.Editable, markup *tele.ReplyMarkup) (*tele.Message, error) {
	f.edited = msg
	return nil, f.editErr
}

func (f *fakeAPI) Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error {
	f.answered = c.ID
	return nil
}

func TestTransportSend(t *testing.T) {
	api := &fakeAPI{}
	tr := &TeleTransport{api: api, ParseMode: tele.ModeHTML}
	ctx := middleware.WithCounters(context.Background())

	markup := &tele.ReplyMarkup{}
	msg, err := tr.SendText(ctx, -5, "hi", markup)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.ID != 77 || msg.ChatID != -5 {
		t.Fatalf("message = %+v", msg)
	}
	if api.sentTo.Recipient() != "-5" || api.sentOpts.ParseMode != tele.ModeHTML || api.sentOpts.ReplyMarkup != markup {
		t.Fatalf("sent to %v with %+v", api.sentTo, api.sentOpts)
	}
	if n, kb := middleware.Counters(ctx); n != 1 || !kb {
		t.Fatalf("counters = %d %v", n, kb)
	}
}

func TestTransportEditNotModified(t *testing.T) {
	api := &fakeAPI{editErr: errors.New("telegram: Bad Request: message is not modified (400)")}
	tr := &TeleTransport{api: api}

	msg, err := tr.EditText(context.Background(), -5, 9, "same", nil)
	if msg != nil || err != nil {
		t.Fatalf("not modified edit = %v, %v", msg, err)
	}
	if id, chat := api.edited.MessageSig(); id != "9" || chat != -5 {
		t.Fatalf("edited %s/%d", id, chat)
	}
	if err := tr.EditMarkup(context.Background(), -5, 9, nil); err != nil {
		t.Fatalf("not modified markup edit: %v", err)
	}

	api.editErr = errors.New("telegram: Bad Request: message to edit not found (400)")
	if _, err := tr.EditText(context.Background(), -5, 9, "x", nil); err == nil {
		t.Fatal("other edit errors must be returned")
	}
}

func TestTransportHonoursCancelledContext(t *testing.T) {
	api := &fakeAPI{}
	tr := &TeleTransport{api: api}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tr.SendText(ctx, 1, "x", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if api.sentTo != nil {
		t.Fatal("cancelled send reached the API")
	}
	if err := tr.AnswerCallback(context.Background(), "cb-1"); err != nil || api.answered != "cb-1" {
		t.Fatalf("answer = %v %q", err, api.answered)
	}
}
