// Package sender runs outbound Telegram calls on a worker pool with retries.
// It carries broadcast traffic; handler replies are sent inline.
package sender

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/telegram/netutil"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrQueueClosed is returned by Enqueue after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull is returned by Enqueue when every slot is taken.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

type job struct {
	ctx      context.Context
	action   string
	endpoint string
	run      func() error
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
// Retries back off exponentially and honour flood control waits.
type Dispatcher struct {
	opts Options
	jobs chan job

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup
	errs   atomic.Uint64
}

// NewDispatcher starts opts.Workers workers. Zero options take broadcast defaults.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 12 * time.Second
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan job, opts.QueueSize),
	}

	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}

	return d
}

// Enqueue hands run to a worker without blocking; a full queue yields ErrQueueFull.
// run may be called more than once.
func (d *Dispatcher) Enqueue(ctx context.Context, action, endpoint string, run func() error) error {
	if run == nil {
		return errors.New("telegram sender: nil run function")
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}

	j := job{
		ctx:      ctx,
		action:   action,
		endpoint: endpoint,
		run:      run,
	}

	select {
	case d.jobs <- j:
		return nil
	default:
		return ErrQueueFull
	}
}

// ErrorCount reports how many jobs failed after their last attempt.
func (d *Dispatcher) ErrorCount() uint64 {
	return d.errs.Load()
}

// Close rejects new jobs, drains the queue and waits for the workers.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.jobs {
		d.handleJob(j)
	}
}

// floodAware waits at least as long as Telegram flood control demands.
type floodAware struct {
	backoff.BackOff
	wait time.Duration
}

func (f *floodAware) NextBackOff() time.Duration {
	next := f.BackOff.NextBackOff()
	if next == backoff.Stop {
		return next
	}
	if f.wait > next {
		next = f.wait
	}
	f.wait = 0
	return next
}

func (d *Dispatcher) handleJob(j job) {
	ctx := j.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	deadlineCtx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = d.opts.RetryBackoff
	policy.MaxElapsedTime = 0
	b := &floodAware{BackOff: backoff.WithMaxRetries(policy, uint64(d.opts.MaxRetries))}

	attempt := 0
	err := backoff.RetryNotify(
		func() error {
			attempt++
			err := j.run()
			if err != nil && !netutil.ShouldRetry(err) {
				return backoff.Permanent(err)
			}
			b.wait = netutil.RetryAfter(err)
			return err
		},
		backoff.WithContext(b, deadlineCtx),
		func(err error, delay time.Duration) {
			logger.Debug(ctx, "tg.sender", "send.retry",
				append(jobAttrs(ctx, j),
					slog.Int("attempt", attempt),
					slog.Duration("delay", delay),
					slog.String("error_kind", errorKind(err)),
				)...,
			)
		},
	)
	attrs := append(jobAttrs(ctx, j),
		slog.Int("attempts", attempt),
		slog.Duration("duration", logger.Took(start)),
	)
	if err != nil {
		d.errs.Add(1)
		logger.Error(ctx, "tg.sender", "send.fail", append(attrs,
			slog.String("error_kind", errorKind(err)),
			slog.String("err", redact(err)),
		)...)
		return
	}
	logger.Debug(ctx, "tg.sender", "send.ok", attrs...)
}

func jobAttrs(ctx context.Context, j job) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("action", j.action),
		slog.String("endpoint", j.endpoint),
	}
	if chatID := logger.ChatIDFrom(ctx); chatID != 0 {
		attrs = append(attrs, slog.Int64("chat_id", chatID))
	}
	if rid := logger.RIDFrom(ctx); rid != "" {
		attrs = append(attrs, slog.String("rid", rid))
	}
	return attrs
}

// errorKind buckets a send failure for logs.
func errorKind(err error) string {
	var (
		floodErr tele.FloodError
		apiErr   *tele.Error
		netErr   net.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &floodErr):
		return "flood"
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Code == http.StatusForbidden:
			return "forbidden"
		case apiErr.Code >= 500:
			return "api_5xx"
		}
		return "api_4xx"
	case netutil.NotSent(err):
		return "not_sent"
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}
	return "unknown"
}

// redact hides bot tokens that telebot embeds in request URLs.
func redact(err error) string {
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
