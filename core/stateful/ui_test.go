package stateful

import (
	"context"
	"reflect"
	"testing"

	"github.com/m3rciful/stateful/core/telegram/keyboard"
	"github.com/m3rciful/stateful/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

func isAdmin(_ context.Context, h *Handler) bool {
	admin, _, _ := state.Decode[bool](h.State, "admin")
	return admin
}

func noop(context.Context, *Handler) error { return nil }

func menuModule() *Module {
	return NewModule().
		Handle("start", noop, AsDefault()).
		Handle("lunch", noop, OnMessage("Lunch")).
		Handle("list", noop, OnMessage("List\n")).
		Handle("secret", noop, OnMessage("Secret"), Hidden()).
		Handle("admin", noop, OnMessage("Admin"), When("admin", isAdmin)).
		Handle("shadowed", noop, OnMessage("Lunch")).
		Handle("help", noop, OnCommand("help")).
		Handle("plus", noop, OnCallback("tz+"), Label("+1 hour")).
		Handle("minus", noop, OnCallback("tz-\n")).
		Handle("back", noop, OnCallback("back"), Label("Back\n")).
		Handle("hidden-cb", noop, OnCallback("x"), Hidden()).
		Handle("admin-cb", noop, OnCallback("wipe"), When("admin", isAdmin)).
		Handle("any-cb", noop, OnAnyCallback())
}

func menuHandler(t *testing.T, admin bool) *Handler {
	t.Helper()
	b, _, _ := newTestBot(t)
	mod := menuModule()
	mustRegister(t, b, "main", mod)
	rec := state.NewRecord(testChat, 1)
	_ = rec.Set("admin", admin)
	return b.newHandler("main", mod, rec, textUpdate(1, testChat, 1, "hi"))
}

func TestGenerateReply(t *testing.T) {
	h := menuHandler(t, false)
	m := h.GenerateReply(context.Background())
	want := [][]string{{"Lunch", "List"}, {"/help"}}
	var got [][]string
	for _, row := range m.ReplyKeyboard {
		var labels []string
		for _, b := range row {
			labels = append(labels, b.Text)
		}
		got = append(got, labels)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("reply rows = %v, want %v", got, want)
	}

	admin := menuHandler(t, true).GenerateReply(context.Background())
	if labels := keyboard.ReplyLabels(admin); !reflect.DeepEqual(labels, []string{"Lunch", "List", "Admin", "/help"}) {
		t.Fatalf("admin labels = %v", labels)
	}
}

func TestGenerateInline(t *testing.T) {
	m := menuHandler(t, false).GenerateInline(context.Background())
	if len(m.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2: %+v", len(m.InlineKeyboard), m.InlineKeyboard)
	}
	first, second := m.InlineKeyboard[0], m.InlineKeyboard[1]
	if len(first) != 2 || first[0].Text != "+1 hour" || first[0].Data != "tz+" || first[1].Text != "tz-" || first[1].Data != "tz-" {
		t.Fatalf("first row = %+v", first)
	}
	if len(second) != 1 || second[0].Text != "Back" || second[0].Data != "back" {
		t.Fatalf("second row = %+v", second)
	}
	if data := keyboard.InlineData(m); !reflect.DeepEqual(data, []string{"tz+", "tz-", "back"}) {
		t.Fatalf("data = %v", data)
	}
}

// Every generated menu item, fed back as an update, resolves to a method of the module.
func TestMenuItemsResolveToTheirMethods(t *testing.T) {
	for _, admin := range []bool{false, true} {
		h := menuHandler(t, admin)
		ctx := context.Background()

		var probes []tele.Update
		for _, label := range keyboard.ReplyLabels(h.GenerateReply(ctx)) {
			probes = append(probes, textUpdate(2, testChat, 1, label))
		}
		for _, data := range keyboard.InlineData(h.GenerateInline(ctx)) {
			probes = append(probes, callbackUpdate(3, testChat, 1, data))
		}
		if len(probes) == 0 {
			t.Fatal("no menu items generated")
		}
		for _, u := range probes {
			got, meth := h.Bot.resolve(ctx, h.State, u)
			if meth == nil || got.Module() != "main" {
				t.Fatalf("menu item %+v does not resolve in main", u)
			}
			if meth.IsDefault() || meth.hidden {
				t.Fatalf("menu item resolved to %s", meth.Name)
			}
			if _, shown := meth.display(CondMessage, CondCommand, CondCallback); !shown {
				t.Fatalf("menu item resolved to undisplayed method %s", meth.Name)
			}
		}
	}
}

func TestMenuSkipsItemsInterceptedByBuiltins(t *testing.T) {
	b, _, _ := newTestBot(t)
	mod := NewModule().
		Handle("fake-page", noop, OnCallback(PageData(1))).
		Handle("ok", noop, OnCallback("ok"))
	mustRegister(t, b, "main", mod)
	h := b.newHandler("main", mod, state.NewRecord(testChat, 1), textUpdate(1, testChat, 1, "x"))
	if data := keyboard.InlineData(h.GenerateInline(context.Background())); !reflect.DeepEqual(data, []string{"ok"}) {
		t.Fatalf("data = %v", data)
	}
}
