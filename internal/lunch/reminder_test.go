package lunch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/stateful"

	tele "gopkg.in/telebot.v4"
)

type sent struct {
	chatID int64
	text   string
	markup *tele.ReplyMarkup
}

// recorder is a stateful.Transport that records every call.
type recorder struct {
	mu       sync.Mutex
	nextID   int
	sent     []sent
	edits    []sent
	markups  []*tele.ReplyMarkup
	failChat int64
}

func (r *recorder) SendText(_ context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (*stateful.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failChat != 0 && chatID == r.failChat {
		return nil, errors.New("Forbidden: bot was kicked from the group chat")
	}
	r.nextID++
	r.sent = append(r.sent, sent{chatID, text, markup})
	return &stateful.Message{ID: 100 + r.nextID, ChatID: chatID}, nil
}

func (r *recorder) EditText(_ context.Context, chatID int64, messageID int, text string, markup *tele.ReplyMarkup) (*stateful.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.edits = append(r.edits, sent{chatID, text, markup})
	return &stateful.Message{ID: messageID, ChatID: chatID}, nil
}

func (r *recorder) EditMarkup(_ context.Context, _ int64, _ int, markup *tele.ReplyMarkup) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markups = append(r.markups, markup)
	return nil
}

func (r *recorder) AnswerCallback(context.Context, string) error { return nil }

func (r *recorder) texts() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, s := range r.sent {
		out = append(out, s.text)
	}
	return out
}

type fakeQueue struct {
	jobs  int
	chats []int64
}

func (q *fakeQueue) Enqueue(ctx context.Context, _, _ string, run func() error) error {
	q.jobs++
	q.chats = append(q.chats, logger.ChatIDFrom(ctx))
	return run()
}

func newTestReminder(t *testing.T, client Sender, queue Queue) *Reminder {
	t.Helper()
	r, err := NewReminder(Settings{Groups: []int64{-1, -2}, Interval: 15 * time.Minute}, client, queue)
	if err != nil {
		t.Fatalf("new reminder: %v", err)
	}
	return r
}

func TestReminderAnnouncesRunningWindow(t *testing.T) {
	rec := &recorder{}
	r := newTestReminder(t, rec, nil)

	next := r.check(context.Background(), at(12, 40))
	if !next.Equal(at(13, 0)) {
		t.Fatalf("next check = %v, want window end", next)
	}
	if len(rec.sent) != 2 || rec.sent[0].chatID != -1 || rec.sent[1].chatID != -2 {
		t.Fatalf("sent = %+v", rec.sent)
	}
	if rec.sent[0].text != "🍽 Lunch is on! Everyone to the canteen!" {
		t.Fatalf("text = %q", rec.sent[0].text)
	}
}

func TestReminderSoonNotices(t *testing.T) {
	rec := &recorder{}
	q := &fakeQueue{}
	r := newTestReminder(t, rec, q)

	next := r.check(context.Background(), at(12, 5))
	if !next.Equal(at(12, 20)) {
		t.Fatalf("next check = %v", next)
	}
	if got := rec.texts(); len(got) != 2 || got[0] != "🍽 Lunch soon! Starts in 25 minutes at 12:30" {
		t.Fatalf("sent = %q", got)
	}
	if q.jobs != 2 || q.chats[0] != -1 || q.chats[1] != -2 {
		t.Fatalf("queued = %d for chats %v", q.jobs, q.chats)
	}

	// Closer than ten minutes halves the interval.
	next = r.check(context.Background(), at(12, 25))
	if want := at(12, 25).Add(7*time.Minute + 30*time.Second); !next.Equal(want) {
		t.Fatalf("next check = %v, want %v", next, want)
	}
}

func TestReminderQuietFarFromLunch(t *testing.T) {
	rec := &recorder{}
	r := newTestReminder(t, rec, nil)
	if next := r.check(context.Background(), at(10, 0)); !next.Equal(at(10, 15)) {
		t.Fatalf("next check = %v", next)
	}
	if len(rec.sent) != 0 {
		t.Fatalf("sent = %+v", rec.sent)
	}
}

func TestReminderSurvivesFailedGroup(t *testing.T) {
	rec := &recorder{failChat: -1}
	r := newTestReminder(t, rec, nil)
	r.check(context.Background(), at(12, 40))
	if len(rec.sent) != 1 || rec.sent[0].chatID != -2 {
		t.Fatalf("sent = %+v", rec.sent)
	}
}

func TestReminderRunStopsOnCancel(t *testing.T) {
	rec := &recorder{}
	r := newTestReminder(t, rec, nil)
	r.now = func() time.Time { return at(10, 0) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reminder did not stop")
	}
}
