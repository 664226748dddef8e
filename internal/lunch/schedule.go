// Package lunch is a group chat bot that announces the daily lunch windows.
package lunch

import (
	"fmt"
	"strings"
	"time"
)

const day = 24 * time.Hour

// Window is a lunch break given as offsets from local midnight.
type Window struct {
	Start time.Duration
	End   time.Duration
}

// DefaultWindows are the breaks of a regular work day.
var DefaultWindows = []Window{
	{Start: 8*time.Hour + 30*time.Minute, End: 9 * time.Hour},
	{Start: 12*time.Hour + 30*time.Minute, End: 13 * time.Hour},
	{Start: 16 * time.Hour, End: 16*time.Hour + 30*time.Minute},
	{Start: 19 * time.Hour, End: 19*time.Hour + 30*time.Minute},
	{Start: 21 * time.Hour, End: 21*time.Hour + 30*time.Minute},
}

// ParseWindow parses "HH:MM-HH:MM".
func ParseWindow(s string) (Window, error) {
	from, to, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return Window{}, fmt.Errorf("lunch: window %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return Window{}, fmt.Errorf("lunch: window %q: %w", s, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return Window{}, fmt.Errorf("lunch: window %q: %w", s, err)
	}
	if end <= start {
		return Window{}, fmt.Errorf("lunch: window %q ends before it starts", s)
	}
	return Window{Start: start, End: end}, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// String renders the window as "HH:MM - HH:MM".
func (w Window) String() string {
	return clock(w.Start) + " - " + clock(w.End)
}

func clock(d time.Duration) string {
	d = d % day
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// Schedule is a list of daily windows in a fixed UTC offset.
type Schedule struct {
	Windows []Window
	// Offset is the whole-hour UTC offset of the windows.
	Offset int
}

// In returns the schedule shifted to another UTC offset.
func (s Schedule) In(offset int) Schedule {
	return Schedule{Windows: s.Windows, Offset: offset}
}

// Local converts t to the schedule's time zone.
func (s Schedule) Local(t time.Time) time.Time {
	return t.In(time.FixedZone(zoneName(s.Offset), s.Offset*3600))
}

func zoneName(offset int) string {
	if offset == 0 {
		return "UTC"
	}
	return fmt.Sprintf("UTC%+d", offset)
}

// next returns the first moment at or after now whose clock reads at.
// A clock reading equal to now belongs to today.
func (s Schedule) next(now time.Time, at time.Duration) time.Time {
	local := s.Local(now)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location())
	t := midnight.Add(at)
	if local.Sub(midnight) > at {
		t = t.Add(day)
	}
	return t
}

// StartsAt returns the next start of w.
func (s Schedule) StartsAt(w Window, now time.Time) time.Time { return s.next(now, w.Start) }

// EndsAt returns the next end of w.
func (s Schedule) EndsAt(w Window, now time.Time) time.Time { return s.next(now, w.End) }

// Current returns the window now falls into. Window bounds are exclusive.
func (s Schedule) Current(now time.Time) (Window, bool) {
	local := s.Local(now)
	tod := local.Sub(time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, local.Location()))
	for _, w := range s.Windows {
		if tod > w.Start && tod < w.End {
			return w, true
		}
	}
	return Window{}, false
}

// Closest returns the window that starts next and its start time.
func (s Schedule) Closest(now time.Time) (Window, time.Time, bool) {
	var (
		best  Window
		start time.Time
		found bool
	)
	for _, w := range s.Windows {
		t := s.StartsAt(w, now)
		if !found || t.Before(start) {
			best, start, found = w, t, true
		}
	}
	return best, start, found
}
