package stateful

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/m3rciful/stateful/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

type sentText struct {
	chatID int64
	text   string
	markup *tele.ReplyMarkup
}

type markupEdit struct {
	chatID    int64
	messageID int
	markup    *tele.ReplyMarkup
}

// fakeTransport records outbound calls. Sent messages get ids from 1000 upwards.
type fakeTransport struct {
	mu          sync.Mutex
	nextID      int
	sent        []sentText
	edits       []sentText
	markups     []markupEdit
	answered    []string
	notModified bool
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentText{chatID, text, markup})
	return &Message{ID: 1000 + f.nextID, ChatID: chatID}, nil
}

func (f *fakeTransport) EditText(_ context.Context, chatID int64, messageID int, text string, markup *tele.ReplyMarkup) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notModified {
		return nil, nil
	}
	f.edits = append(f.edits, sentText{chatID, text, markup})
	return &Message{ID: messageID, ChatID: chatID}, nil
}

func (f *fakeTransport) EditMarkup(_ context.Context, chatID int64, messageID int, markup *tele.ReplyMarkup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markups = append(f.markups, markupEdit{chatID, messageID, markup})
	return nil
}

func (f *fakeTransport) AnswerCallback(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answered = append(f.answered, id)
	return nil
}

func (f *fakeTransport) lastSent(t *testing.T) sentText {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return f.sent[len(f.sent)-1]
}

// failingStore fails every operation.
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) FindByChatAndMessage(context.Context, int64, int) (*state.Record, error) {
	return nil, errStoreDown
}
func (failingStore) FindLatestByChat(context.Context, int64) (*state.Record, error) {
	return nil, errStoreDown
}
func (failingStore) Insert(context.Context, *state.Record) error  { return errStoreDown }
func (failingStore) Replace(context.Context, *state.Record) error { return errStoreDown }

const testChat int64 = -100500

func newTestBot(t *testing.T, opts ...func(*Options)) (*Bot, *fakeTransport, *state.MemoryStore) {
	t.Helper()
	tr := &fakeTransport{}
	st := state.NewMemoryStore()
	o := Options{Transport: tr, Store: st, Username: "lunch_bot"}
	for _, fn := range opts {
		fn(&o)
	}
	b, err := New(o)
	if err != nil {
		t.Fatalf("new bot: %v", err)
	}
	return b, tr, st
}

func mustRegister(t *testing.T, b *Bot, id string, m *Module) {
	t.Helper()
	if err := b.Register(id, m); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
}

func textUpdate(updateID int, chatID int64, msgID int, text string) tele.Update {
	return tele.Update{
		ID: updateID,
		Message: &tele.Message{
			ID:     msgID,
			Text:   text,
			Chat:   &tele.Chat{ID: chatID, Type: tele.ChatGroup},
			Sender: &tele.User{ID: 7},
		},
	}
}

func callbackUpdate(updateID int, chatID int64, msgID int, data string) tele.Update {
	return tele.Update{
		ID: updateID,
		Callback: &tele.Callback{
			ID:      "cb-" + data,
			Sender:  &tele.User{ID: 7},
			Message: &tele.Message{ID: msgID, Chat: &tele.Chat{ID: chatID, Type: tele.ChatGroup}},
			Data:    data,
		},
	}
}

func handle(t *testing.T, b *Bot, u tele.Update) {
	t.Helper()
	if err := b.HandleUpdate(context.Background(), u); err != nil {
		t.Fatalf("handle update %d: %v", u.ID, err)
	}
}

// calls records which methods ran, in order.
type calls struct {
	mu    sync.Mutex
	names []string
}

func (c *calls) fn(name string) HandlerFunc {
	return func(context.Context, *Handler) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.names = append(c.names, name)
		return nil
	}
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}
