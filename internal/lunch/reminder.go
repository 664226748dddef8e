package lunch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/stateful"
	"github.com/m3rciful/stateful/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

const (
	component = "reminder"

	// soonThreshold opens the "lunch is coming" notices before a window.
	soonThreshold = 30 * time.Minute
	// urgentThreshold halves the check interval right before a window.
	urgentThreshold = 10 * time.Minute
)

// Sender is the outbound call the reminder needs.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) (*stateful.Message, error)
}

// Queue runs outbound calls asynchronously; sender.Dispatcher satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, action, endpoint string, run func() error) error
}

var _ Queue = (*sender.Dispatcher)(nil)

// Reminder broadcasts lunch notices to the configured groups.
type Reminder struct {
	schedule Schedule
	groups   []int64
	interval time.Duration
	client   Sender
	queue    Queue
	now      func() time.Time
}

// NewReminder builds a reminder. A nil queue sends inline.
func NewReminder(s Settings, client Sender, queue Queue) (*Reminder, error) {
	sched, err := s.Schedule()
	if err != nil {
		return nil, err
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Reminder{
		schedule: sched,
		groups:   append([]int64(nil), s.Groups...),
		interval: interval,
		client:   client,
		queue:    queue,
		now:      time.Now,
	}, nil
}

// Run checks the schedule until ctx is done.
func (r *Reminder) Run(ctx context.Context) error {
	logger.Info(ctx, component, "reminder.start",
		slog.Int("groups", len(r.groups)),
		slog.Duration("interval", r.interval),
	)
	next := r.now()
	for {
		if wait := next.Sub(r.now()); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.Info(ctx, component, "reminder.stop")
				return nil
			case <-timer.C:
			}
		} else if ctx.Err() != nil {
			logger.Info(ctx, component, "reminder.stop")
			return nil
		}
		next = r.check(ctx, r.now())
	}
}

// check sends the notice due at now, if any, and returns the next check time.
func (r *Reminder) check(ctx context.Context, now time.Time) time.Time {
	if w, ok := r.schedule.Current(now); ok {
		r.broadcast(ctx, "🍽 Lunch is on! Everyone to the canteen!")
		return r.schedule.EndsAt(w, now)
	}

	w, start, ok := r.schedule.Closest(now)
	if !ok {
		return now.Add(r.interval)
	}
	left := start.Sub(now)
	if left > soonThreshold {
		return now.Add(r.interval)
	}
	r.broadcast(ctx, fmt.Sprintf("🍽 Lunch soon! Starts in %s at %s", Span(left), clock(w.Start)))
	if left < urgentThreshold {
		return now.Add(r.interval / 2)
	}
	return now.Add(r.interval)
}

// broadcast sends text to every group. Failures are logged per group.
func (r *Reminder) broadcast(ctx context.Context, text string) {
	for _, chatID := range r.groups {
		chatCtx := logger.WithUpdateMeta(ctx, 0, 0, chatID)
		send := func() error {
			_, err := r.client.SendText(chatCtx, chatID, text, nil)
			return err
		}
		var err error
		if r.queue != nil {
			err = r.queue.Enqueue(chatCtx, "reminder.broadcast", "sendMessage", send)
		} else {
			err = send()
		}
		if err != nil {
			logger.Error(ctx, component, "reminder.send",
				slog.String("status", "fail"),
				slog.Int64("chat_id", chatID),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
			continue
		}
		logger.Debug(ctx, component, "reminder.send",
			slog.String("status", "ok"),
			slog.Int64("chat_id", chatID),
		)
	}
}
