package stateful

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/m3rciful/stateful/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

func TestFreshChatFallsBackToRootModule(t *testing.T) {
	b, _, st := newTestBot(t)
	var c calls
	mustRegister(t, b, "main", NewModule().Handle("start", c.fn("main.default"), AsDefault()))
	mustRegister(t, b, "settings", NewModule().Handle("start", c.fn("settings.default"), AsDefault()))

	handle(t, b, textUpdate(1, testChat, 10, "hello"))

	if got := c.list(); !reflect.DeepEqual(got, []string{"main.default"}) {
		t.Fatalf("calls = %v", got)
	}
	rec, err := st.FindByChatAndMessage(context.Background(), testChat, 10)
	if err != nil {
		t.Fatalf("record not created: %v", err)
	}
	if rec.ModuleID != "" {
		t.Fatalf("fresh record module = %q, want empty", rec.ModuleID)
	}
}

func TestResolutionPicksFirstDeclaredAndIsDeterministic(t *testing.T) {
	b, _, _ := newTestBot(t)
	var c calls
	mustRegister(t, b, "main", NewModule().
		Handle("fallback", c.fn("fallback"), AsDefault()).
		Handle("no-conditions", c.fn("no-conditions")).
		Handle("first", c.fn("first"), OnMessage("Menu\n")).
		Handle("second", c.fn("second"), OnMessage("Menu")).
		Handle("any", c.fn("any"), OnAnyMessage()))

	for i := 0; i < 3; i++ {
		handle(t, b, textUpdate(i, testChat, 10+i, "Menu"))
	}
	handle(t, b, textUpdate(3, testChat, 20, "other"))

	want := []string{"first", "first", "first", "any"}
	if got := c.list(); !reflect.DeepEqual(got, want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
}

func TestDefaultFallbackNeverFiresForCallbacks(t *testing.T) {
	b, tr, _ := newTestBot(t)
	var c calls
	mustRegister(t, b, "main", NewModule().
		Handle("fallback", c.fn("fallback"), AsDefault()).
		Handle("yes", c.fn("yes"), OnCallback("yes")))

	handle(t, b, callbackUpdate(1, testChat, 10, "no"))
	if got := c.list(); len(got) != 0 {
		t.Fatalf("callback fell through to %v", got)
	}
	handle(t, b, callbackUpdate(2, testChat, 10, "yes"))
	if got := c.list(); !reflect.DeepEqual(got, []string{"yes"}) {
		t.Fatalf("calls = %v", got)
	}
	if !reflect.DeepEqual(tr.answered, []string{"cb-no", "cb-yes"}) {
		t.Fatalf("answered = %v", tr.answered)
	}
}

func TestDefaultWithConditionsMustMatch(t *testing.T) {
	b, _, _ := newTestBot(t)
	var c calls
	mustRegister(t, b, "main", NewModule().
		Handle("never", c.fn("never"), AsDefault(), When("never", func(context.Context, *Handler) bool { return false })).
		Handle("always", c.fn("always"), AsDefault()))

	handle(t, b, textUpdate(1, testChat, 1, "x"))
	if got := c.list(); !reflect.DeepEqual(got, []string{"always"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestBuiltinModuleInterceptsInternalCallbacks(t *testing.T) {
	b, _, _ := newTestBot(t)
	var c calls
	mustRegister(t, b, "main", NewModule().Handle("any", c.fn("any"), OnAnyCallback()))

	handle(t, b, callbackUpdate(1, testChat, 10, InternalPrefix+"noop"))
	if got := c.list(); len(got) != 0 {
		t.Fatalf("internal callback reached module: %v", got)
	}
	handle(t, b, callbackUpdate(2, testChat, 10, "user-data"))
	if got := c.list(); !reflect.DeepEqual(got, []string{"any"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestHandlerFailureIsIsolated(t *testing.T) {
	b, _, _ := newTestBot(t)
	var c calls
	mustRegister(t, b, "main", NewModule().
		Handle("boom", func(context.Context, *Handler) error { return errors.New("boom") }, OnMessage("boom")).
		Handle("panic", func(context.Context, *Handler) error { panic("bad handler") }, OnMessage("panic")).
		Handle("ok", c.fn("ok"), OnMessage("ok")))

	handle(t, b, textUpdate(1, testChat, 1, "boom"))
	handle(t, b, textUpdate(2, testChat, 2, "panic"))
	handle(t, b, textUpdate(3, testChat, 3, "ok"))

	if got := c.list(); !reflect.DeepEqual(got, []string{"ok"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestChangeHandlerPersistsBeforeDefaultRuns(t *testing.T) {
	b, _, st := newTestBot(t)
	ctx := context.Background()
	var seen string
	var c calls
	mustRegister(t, b, "main", NewModule().
		Handle("settings", func(ctx context.Context, h *Handler) error {
			return h.ChangeHandler(ctx, "settings", true)
		}, OnMessage("Settings")))
	mustRegister(t, b, "settings", NewModule().
		Handle("greet", func(ctx context.Context, h *Handler) error {
			rec, err := st.FindLatestByChat(ctx, testChat)
			if err != nil {
				return err
			}
			seen = rec.ModuleID
			return errors.New("greeting failed")
		}, AsDefault()).
		Handle("back", c.fn("back"), OnMessage("Back")))

	handle(t, b, textUpdate(1, testChat, 1, "Settings"))
	if seen != "settings" {
		t.Fatalf("default saw module %q before it ran, want settings", seen)
	}
	rec, _ := st.FindLatestByChat(ctx, testChat)
	if rec.ModuleID != "settings" {
		t.Fatalf("stored module = %q after failed default", rec.ModuleID)
	}

	handle(t, b, textUpdate(2, testChat, 2, "Back"))
	if got := c.list(); !reflect.DeepEqual(got, []string{"back"}) {
		t.Fatalf("next update should resolve in settings: %v", got)
	}
}

func TestChangeHandlerRunsDefaultFromCallback(t *testing.T) {
	b, _, _ := newTestBot(t)
	var c calls
	mustRegister(t, b, "main", NewModule().
		Handle("open", func(ctx context.Context, h *Handler) error {
			return h.ChangeHandler(ctx, "settings", true)
		}, OnCallback("open")))
	mustRegister(t, b, "settings", NewModule().Handle("greet", c.fn("greet"), AsDefault()))

	handle(t, b, callbackUpdate(1, testChat, 1, "open"))
	if got := c.list(); !reflect.DeepEqual(got, []string{"greet"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestChangeHandlerUnknownModule(t *testing.T) {
	b, _, st := newTestBot(t)
	var got error
	mustRegister(t, b, "main", NewModule().
		Handle("go", func(ctx context.Context, h *Handler) error {
			got = h.ChangeHandler(ctx, "nowhere", true)
			return nil
		}, OnMessage("go")))

	handle(t, b, textUpdate(1, testChat, 1, "go"))
	if !errors.Is(got, ErrUnknownModule) {
		t.Fatalf("err = %v, want ErrUnknownModule", got)
	}
	rec, _ := st.FindLatestByChat(context.Background(), testChat)
	if rec.ModuleID != "" {
		t.Fatalf("module = %q, want unchanged", rec.ModuleID)
	}
}

func TestUnknownStoredModuleFallsBackToRoot(t *testing.T) {
	b, _, st := newTestBot(t)
	ctx := context.Background()
	rec := state.NewRecord(testChat, 5)
	rec.ModuleID = "removed"
	if err := st.Insert(ctx, rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	var c calls
	mustRegister(t, b, "main", NewModule().Handle("d", c.fn("main"), AsDefault()))

	handle(t, b, textUpdate(1, testChat, 5, "hi"))
	if got := c.list(); !reflect.DeepEqual(got, []string{"main"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestChatScope(t *testing.T) {
	b, tr, st := newTestBot(t, func(o *Options) { o.ChatTypes = []string{"group"} })
	var c calls
	mustRegister(t, b, "main", NewModule().
		Handle("d", c.fn("d"), AsDefault()).
		Handle("cb", c.fn("cb"), OnAnyCallback()))

	private := textUpdate(1, 42, 1, "hi")
	private.Message.Chat.Type = tele.ChatPrivate
	handle(t, b, private)

	cb := callbackUpdate(2, 42, 1, "x")
	cb.Callback.Message.Chat.Type = tele.ChatPrivate
	handle(t, b, cb)

	if got := c.list(); len(got) != 0 {
		t.Fatalf("out of scope updates dispatched: %v", got)
	}
	if len(tr.answered) != 1 {
		t.Fatalf("out of scope callback must still be answered: %v", tr.answered)
	}
	if st.Len() != 0 {
		t.Fatalf("records created for out of scope updates: %d", st.Len())
	}
}

func TestNonConversationalUpdatesAreDropped(t *testing.T) {
	b, _, st := newTestBot(t)
	var c calls
	mustRegister(t, b, "main", NewModule().Handle("d", c.fn("d"), AsDefault()))

	handle(t, b, tele.Update{ID: 1, ChannelPost: &tele.Message{ID: 1, Chat: &tele.Chat{ID: 1}}})
	handle(t, b, tele.Update{ID: 2, Query: &tele.Query{ID: "q", Sender: &tele.User{ID: 7}}})
	handle(t, b, tele.Update{ID: 3})

	if len(c.list()) != 0 || st.Len() != 0 {
		t.Fatalf("dropped kinds were processed: calls=%v records=%d", c.list(), st.Len())
	}
}

func TestStoreFailureIsReturned(t *testing.T) {
	b, err := New(Options{Transport: &fakeTransport{}, Store: failingStore{}})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	mustRegister(t, b, "main", NewModule().Handle("d", func(context.Context, *Handler) error { return nil }, AsDefault()))
	if err := b.HandleUpdate(context.Background(), textUpdate(1, testChat, 1, "x")); !errors.Is(err, errStoreDown) {
		t.Fatalf("err = %v, want store failure", err)
	}
}

func TestRegisterRules(t *testing.T) {
	b, _, _ := newTestBot(t)
	m := NewModule()
	mustRegister(t, b, "main", m)
	if err := b.Register("main", m); !errors.Is(err, ErrDuplicateModule) {
		t.Fatalf("duplicate err = %v", err)
	}
	if err := b.Register(InternalModuleID, m); err == nil {
		t.Fatal("reserved id accepted")
	}
	if err := b.Register("", m); err == nil {
		t.Fatal("empty id accepted")
	}
	if err := b.Register("nil", nil); err == nil {
		t.Fatal("nil module accepted")
	}
	handle(t, b, textUpdate(1, testChat, 1, "x"))
	if err := b.Register("late", m); !errors.Is(err, ErrRegistryFrozen) {
		t.Fatalf("late register err = %v", err)
	}
	if got := b.Modules(); !reflect.DeepEqual(got, []string{"main"}) {
		t.Fatalf("modules = %v", got)
	}
	if _, err := New(Options{Store: state.NewMemoryStore()}); err == nil {
		t.Fatal("missing transport accepted")
	}
}

func TestSendMessageForksState(t *testing.T) {
	b, tr, st := newTestBot(t)
	ctx := context.Background()
	var first *state.Record
	mustRegister(t, b, "main", NewModule().
		Handle("send", func(ctx context.Context, h *Handler) error {
			first = h.State
			if err := h.State.Set("step", 2); err != nil {
				return err
			}
			_, err := h.SendMessage(ctx, "next", nil)
			return err
		}, OnMessage("send")))
	mustRegister(t, b, "other", NewModule())

	handle(t, b, textUpdate(1, testChat, 1, "send"))

	sent := tr.lastSent(t)
	if sent.chatID != testChat || sent.text != "next" {
		t.Fatalf("sent = %+v", sent)
	}
	forked, err := st.FindByChatAndMessage(ctx, testChat, 1001)
	if err != nil {
		t.Fatalf("forked record missing: %v", err)
	}
	if forked.ID == first.ID {
		t.Fatal("fork must get its own id")
	}
	if step, ok, _ := state.Decode[int](forked, "step"); !ok || step != 2 {
		t.Fatalf("forked data step = %v %v", step, ok)
	}
	orig, _ := st.FindByChatAndMessage(ctx, testChat, 1)
	if orig.Has("step") {
		t.Fatal("original record should keep its stored data")
	}
	latest, _ := st.FindLatestByChat(ctx, testChat)
	if latest.ID != forked.ID {
		t.Fatal("forked record should become the latest of the chat")
	}
}

func TestEditMessageNotModified(t *testing.T) {
	b, tr, st := newTestBot(t)
	tr.notModified = true
	var msg *Message
	var editErr error
	mustRegister(t, b, "main", NewModule().
		Handle("edit", func(ctx context.Context, h *Handler) error {
			_ = h.State.Set("edited", true)
			msg, editErr = h.SendOrEditMessage(ctx, "same", nil)
			return nil
		}, OnCallback("edit")))

	handle(t, b, callbackUpdate(1, testChat, 3, "edit"))
	if msg != nil || editErr != nil {
		t.Fatalf("not modified = %v, %v; want nil, nil", msg, editErr)
	}
	if len(tr.sent) != 0 {
		t.Fatal("callback must edit, not send")
	}
	rec, _ := st.FindByChatAndMessage(context.Background(), testChat, 3)
	if !rec.Has("edited") {
		t.Fatal("record should be saved even when the text did not change")
	}
}

func TestOnCommand(t *testing.T) {
	b, _, _ := newTestBot(t)
	var c calls
	mustRegister(t, b, "main", NewModule().Handle("list", c.fn("list"), OnCommand("list")))

	handle(t, b, textUpdate(1, testChat, 1, "/list"))
	handle(t, b, textUpdate(2, testChat, 2, "/list@Lunch_Bot extra"))
	handle(t, b, textUpdate(3, testChat, 3, "/list@other_bot"))
	handle(t, b, textUpdate(4, testChat, 4, "/listing"))

	if got := c.list(); !reflect.DeepEqual(got, []string{"list", "list"}) {
		t.Fatalf("calls = %v", got)
	}
}

func TestUpdatesForOneChatAreSerialized(t *testing.T) {
	b, _, st := newTestBot(t)
	mustRegister(t, b, "main", NewModule().
		Handle("inc", func(ctx context.Context, h *Handler) error {
			n, _, err := state.Decode[int](h.State, "n")
			if err != nil {
				return err
			}
			if err := h.State.Set("n", n+1); err != nil {
				return err
			}
			return h.Save(ctx)
		}, AsDefault()))

	const updates = 50
	var wg sync.WaitGroup
	for i := 0; i < updates; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = b.HandleUpdate(context.Background(), textUpdate(i, testChat, 500+i, "tick"))
		}(i)
	}
	wg.Wait()

	rec, err := st.FindLatestByChat(context.Background(), testChat)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if n, _, _ := state.Decode[int](rec, "n"); n != updates {
		t.Fatalf("n = %d, want %d", n, updates)
	}
	if st.Len() != 1 {
		t.Fatalf("records = %d, want 1", st.Len())
	}
	if b.locks.size() != 0 {
		t.Fatalf("chat locks leaked: %d", b.locks.size())
	}
}
