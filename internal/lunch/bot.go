package lunch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/stateful/core/stateful"
	"github.com/m3rciful/stateful/core/telegram/keyboard"
	"github.com/m3rciful/stateful/core/telegram/state"
)

// Module ids.
const (
	MainModule     = "main"
	SettingsModule = "settings"
)

const (
	// offsetKey holds the chat's own UTC offset in the conversation record.
	offsetKey    = "tz_offset"
	windowPrefix = "window:"

	minOffset = -12
	maxOffset = 14
)

// App holds the lunch conversation modules.
type App struct {
	schedule Schedule
	pageSize int
	now      func() time.Time
}

// NewApp builds the app from its configuration section.
func NewApp(s Settings) (*App, error) {
	sched, err := s.Schedule()
	if err != nil {
		return nil, err
	}
	return &App{schedule: sched, pageSize: s.PageSize, now: time.Now}, nil
}

// Register adds the app modules to b. The main module is registered first and
// becomes the root of every new conversation.
func (a *App) Register(b *stateful.Bot) error {
	if err := b.Register(MainModule, a.mainModule()); err != nil {
		return err
	}
	return b.Register(SettingsModule, a.settingsModule())
}

func (a *App) mainModule() *stateful.Module {
	return stateful.NewModule().
		Handle("idle", func(context.Context, *stateful.Handler) error { return nil }, stateful.AsDefault()).
		Handle("lunch", a.current, stateful.OnCommand("lunch"), stateful.Label("When is lunch")).
		Handle("list", a.list, stateful.OnCommand("list"), stateful.Label("Today's lunch windows")).
		Handle("settings", a.openSettings, stateful.OnCommand("settings"), stateful.Label("Time zone settings")).
		Handle("window", a.window, stateful.OnAnyCallback(), stateful.When("window", isWindowCallback), stateful.Hidden())
}

func (a *App) settingsModule() *stateful.Module {
	return stateful.NewModule().
		Handle("show", a.showSettings, stateful.AsDefault(), stateful.OnCommand("settings")).
		Handle("east", a.shift(1), stateful.OnCallback("tz:+1"), stateful.Label("+1 h")).
		Handle("west", a.shift(-1), stateful.OnCallback("tz:-1"), stateful.Label("-1 h\n")).
		Handle("done", a.closeSettings, stateful.OnCallback("tz:done"), stateful.Label("Done")).
		Handle("leave", a.leaveSettings, stateful.OnCommand("done"), stateful.Label("Leave settings"))
}

// scheduleFor applies the chat's own offset when it has chosen one.
func (a *App) scheduleFor(h *stateful.Handler) Schedule {
	off, ok, err := state.Decode[int](h.State, offsetKey)
	if err != nil || !ok {
		return a.schedule
	}
	return a.schedule.In(off)
}

func (a *App) current(ctx context.Context, h *stateful.Handler) error {
	_, err := h.SendMessage(ctx, CurrentText(a.scheduleFor(h), a.now()), nil)
	return err
}

// CurrentText describes the running window, or the next one.
func CurrentText(s Schedule, now time.Time) string {
	if w, ok := s.Current(now); ok {
		end := s.EndsAt(w, now)
		return fmt.Sprintf("🍽 Lunch ends in %s at %s", Span(end.Sub(now)), clock(w.End))
	}
	w, start, ok := s.Closest(now)
	if !ok {
		return "🍽 No lunch is scheduled"
	}
	return fmt.Sprintf("🍽 Next lunch in %s at %s", Span(start.Sub(now)), clock(w.Start))
}

// ListItems renders one button per window, in schedule order.
func ListItems(s Schedule, now time.Time) []keyboard.InlineBtn {
	items := make([]keyboard.InlineBtn, 0, len(s.Windows))
	for i, w := range s.Windows {
		items = append(items, keyboard.InlineBtn{
			Text: fmt.Sprintf("%d. %s (in %s)", i+1, w, Span(s.StartsAt(w, now).Sub(now))),
			Data: windowPrefix + strconv.Itoa(i),
		})
	}
	return items
}

func (a *App) list(ctx context.Context, h *stateful.Handler) error {
	s := a.scheduleFor(h)
	_, err := h.SendPaginated(ctx, "🍽 Lunch windows of the day:", ListItems(s, a.now()), a.pageSize)
	return err
}

func isWindowCallback(_ context.Context, h *stateful.Handler) bool {
	d, ok := h.CallbackData()
	return ok && strings.HasPrefix(d, windowPrefix)
}

func (a *App) window(ctx context.Context, h *stateful.Handler) error {
	d, _ := h.CallbackData()
	i, err := strconv.Atoi(strings.TrimPrefix(d, windowPrefix))
	s := a.scheduleFor(h)
	if err != nil || i < 0 || i >= len(s.Windows) {
		return nil
	}
	w := s.Windows[i]
	now := a.now()
	text := fmt.Sprintf("🍽 Lunch #%d runs %s (%s), next start in %s",
		i+1, w, zoneName(s.Offset), Span(s.StartsAt(w, now).Sub(now)))
	_, err = h.SendMessage(ctx, text, nil)
	return err
}

func (a *App) openSettings(ctx context.Context, h *stateful.Handler) error {
	return h.ChangeHandler(ctx, SettingsModule, true)
}

func settingsText(s Schedule, now time.Time) string {
	return fmt.Sprintf("⚙️ Time zone: %s\nLocal time: %s", zoneName(s.Offset), s.Local(now).Format("15:04"))
}

func (a *App) showSettings(ctx context.Context, h *stateful.Handler) error {
	_, err := h.SendOrEditMessage(ctx, settingsText(a.scheduleFor(h), a.now()), h.GenerateInline(ctx))
	return err
}

func (a *App) shift(delta int) stateful.HandlerFunc {
	return func(ctx context.Context, h *stateful.Handler) error {
		off := a.scheduleFor(h).Offset + delta
		if off < minOffset || off > maxOffset {
			return nil
		}
		if err := h.State.Set(offsetKey, off); err != nil {
			return err
		}
		_, err := h.EditMessage(ctx, settingsText(a.schedule.In(off), a.now()), h.GenerateInline(ctx))
		return err
	}
}

func (a *App) closeSettings(ctx context.Context, h *stateful.Handler) error {
	if err := h.ChangeHandler(ctx, MainModule, false); err != nil {
		return err
	}
	_, err := h.EditMessage(ctx, "✅ Time zone set to "+zoneName(a.scheduleFor(h).Offset), nil)
	return err
}

func (a *App) leaveSettings(ctx context.Context, h *stateful.Handler) error {
	if err := h.ChangeHandler(ctx, MainModule, false); err != nil {
		return err
	}
	_, err := h.SendMessage(ctx, "✅ Time zone set to "+zoneName(a.scheduleFor(h).Offset), nil)
	return err
}
