package stateful

import (
	"context"
	"reflect"
	"strconv"
	"testing"

	"github.com/m3rciful/stateful/core/telegram/keyboard"
	"github.com/m3rciful/stateful/core/telegram/state"
)

func items(n int) []keyboard.InlineBtn {
	out := make([]keyboard.InlineBtn, n)
	for i := range out {
		s := strconv.Itoa(i)
		out[i] = keyboard.InlineBtn{Text: "item " + s, Data: "item-" + s}
	}
	return out
}

func storedCursor(t *testing.T, st *state.MemoryStore, msgID int) Paginator {
	t.Helper()
	rec, err := st.FindByChatAndMessage(context.Background(), testChat, msgID)
	if err != nil {
		t.Fatalf("record for %d: %v", msgID, err)
	}
	p, ok, err := state.Decode[Paginator](rec, PaginatorKey)
	if err != nil || !ok {
		t.Fatalf("cursor missing: %v", err)
	}
	return p
}

func TestPaginatorMarkup(t *testing.T) {
	p := NewPaginator(items(7), 3)
	if p.Pages != 3 {
		t.Fatalf("pages = %d, want 3", p.Pages)
	}
	want := []string{"item-0", "item-1", "item-2", InternalPrefix + "noop", PageData(1)}
	if got := keyboard.InlineData(p.Markup()); !reflect.DeepEqual(got, want) {
		t.Fatalf("first page = %v, want %v", got, want)
	}
	p.Turn(2)
	want = []string{"item-6", PageData(1), InternalPrefix + "noop"}
	if got := keyboard.InlineData(p.Markup()); !reflect.DeepEqual(got, want) {
		t.Fatalf("last page = %v, want %v", got, want)
	}
	if single := NewPaginator(nil, 0); single.Pages != 1 || len(single.Markup().InlineKeyboard) != 0 {
		t.Fatalf("empty paginator = %+v", single)
	}
}

func TestPaginationScenario(t *testing.T) {
	b, tr, st := newTestBot(t)
	var picked []string
	mustRegister(t, b, "main", NewModule().
		Handle("list", func(ctx context.Context, h *Handler) error {
			_, err := h.SendPaginated(ctx, "Windows", items(25), 5)
			return err
		}, OnCommand("list")).
		Handle("pick", func(_ context.Context, h *Handler) error {
			d, _ := h.CallbackData()
			picked = append(picked, d)
			return nil
		}, OnAnyCallback()))

	handle(t, b, textUpdate(1, testChat, 1, "/list"))
	msgID := 1001
	if p := storedCursor(t, st, msgID); p.Page != 0 || p.Pages != 5 {
		t.Fatalf("initial cursor = %+v", p)
	}

	handle(t, b, callbackUpdate(2, testChat, msgID, PageData(2)))
	handle(t, b, callbackUpdate(3, testChat, msgID, PageData(3)))
	if p := storedCursor(t, st, msgID); p.Page != 3 {
		t.Fatalf("cursor = %d, want 3", p.Page)
	}
	if len(tr.markups) != 2 {
		t.Fatalf("markup edits = %d, want 2", len(tr.markups))
	}
	last := tr.markups[len(tr.markups)-1]
	if last.messageID != msgID || last.chatID != testChat {
		t.Fatalf("edited %d/%d", last.chatID, last.messageID)
	}
	want := []string{"item-15", "item-16", "item-17", "item-18", "item-19", PageData(2), InternalPrefix + "noop", PageData(4)}
	if got := keyboard.InlineData(last.markup); !reflect.DeepEqual(got, want) {
		t.Fatalf("page 3 markup = %v", got)
	}

	// Current page, out of range pages and garbage are no-ops.
	for i, data := range []string{PageData(3), PageData(-1), PageData(5), InternalPrefix + "paginator-x"} {
		handle(t, b, callbackUpdate(10+i, testChat, msgID, data))
	}
	if p := storedCursor(t, st, msgID); p.Page != 3 {
		t.Fatalf("cursor moved to %d", p.Page)
	}
	if len(tr.markups) != 2 {
		t.Fatalf("no-op transitions edited the menu: %d edits", len(tr.markups))
	}

	handle(t, b, callbackUpdate(20, testChat, msgID, PageData(2)))
	if p := storedCursor(t, st, msgID); p.Page != 2 || len(tr.markups) != 3 {
		t.Fatalf("cursor = %d edits = %d, want 2 and 3", p.Page, len(tr.markups))
	}

	handle(t, b, callbackUpdate(21, testChat, msgID, "item-12"))
	if !reflect.DeepEqual(picked, []string{"item-12"}) {
		t.Fatalf("picked = %v", picked)
	}
	if len(picked) != 1 {
		t.Fatal("internal callbacks must not reach the module")
	}
}

func TestPaginatorIgnoresRecordsWithoutCursor(t *testing.T) {
	b, tr, _ := newTestBot(t)
	mustRegister(t, b, "main", NewModule())
	handle(t, b, callbackUpdate(1, testChat, 9, PageData(1)))
	if len(tr.markups) != 0 {
		t.Fatal("menu edited without a stored cursor")
	}
}
