// Package stateful dispatches Telegram updates to conversation modules.
//
// A module is an ordered list of methods guarded by conditions. Each chat keeps a
// persisted record naming its active module; the dispatcher loads it, resolves a
// method against the built-in module first and the active module second, and
// invokes it with a handler bound to that single update.
package stateful

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/m3rciful/stateful/core/logger"
	"github.com/m3rciful/stateful/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// InternalModuleID names the built-in module that is resolved before any registered one.
const InternalModuleID = "stinternal"

var (
	// ErrDuplicateModule is returned by Register for an id that is already taken.
	ErrDuplicateModule = errors.New("stateful: duplicate module id")
	// ErrUnknownModule is returned when switching to a module that is not registered.
	ErrUnknownModule = errors.New("stateful: unknown module")
	// ErrRegistryFrozen is returned by Register once updates are being handled.
	ErrRegistryFrozen = errors.New("stateful: registry is frozen")
	// ErrNoChat is returned by handler calls that need a chat the update does not carry.
	ErrNoChat = errors.New("stateful: update has no chat")
)

// Options configures a Bot.
type Options struct {
	Transport Transport
	Store     state.Store
	// ChatTypes restricts dispatch to these chat types; empty accepts all chats.
	ChatTypes []string
	// Username is the bot username used to match "/cmd@bot" commands.
	Username string
}

// Bot owns the module registry and dispatches updates.
type Bot struct {
	client    Transport
	store     state.Store
	chatTypes map[string]struct{}
	username  string
	internal  *Module
	locks     *chatLocks

	mu      sync.Mutex
	frozen  bool
	order   []string
	modules map[string]*Module
}

// New constructs a Bot. Transport and Store are required.
func New(opts Options) (*Bot, error) {
	if opts.Transport == nil {
		return nil, fmt.Errorf("stateful: transport is required")
	}
	if opts.Store == nil {
		return nil, fmt.Errorf("stateful: store is required")
	}
	b := &Bot{
		client:   opts.Transport,
		store:    opts.Store,
		username: strings.TrimPrefix(opts.Username, "@"),
		internal: internalModule(),
		locks:    newChatLocks(),
		modules:  make(map[string]*Module),
	}
	if len(opts.ChatTypes) > 0 {
		b.chatTypes = make(map[string]struct{}, len(opts.ChatTypes))
		for _, t := range opts.ChatTypes {
			b.chatTypes[strings.ToLower(t)] = struct{}{}
		}
	}
	return b, nil
}

// Register adds a module under id. The first registered module is the root:
// conversations without a valid module id are dispatched to it.
func (b *Bot) Register(id string, m *Module) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("stateful: empty module id")
	}
	if id == InternalModuleID {
		return fmt.Errorf("%w: %q is reserved", ErrDuplicateModule, id)
	}
	if m == nil {
		return fmt.Errorf("stateful: nil module %q", id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.frozen {
		return ErrRegistryFrozen
	}
	if _, ok := b.modules[id]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateModule, id)
	}
	b.modules[id] = m
	b.order = append(b.order, id)
	logger.TWire.Info("tg.wire",
		slog.String("event", "module.registered"),
		slog.String("module", id),
		slog.Int("count", len(m.methods)),
	)
	return nil
}

// Modules returns registered module ids in registration order.
func (b *Bot) Modules() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.order...)
}

// Username returns the bot username without the leading "@".
func (b *Bot) Username() string { return b.username }

// Store returns the state store.
func (b *Bot) Store() state.Store { return b.store }

// Transport returns the outbound transport.
func (b *Bot) Transport() Transport { return b.client }

// freeze makes the registry read-only. Taking the lock also publishes
// every earlier registration to the calling goroutine.
func (b *Bot) freeze() {
	b.mu.Lock()
	b.frozen = true
	b.mu.Unlock()
}

func (b *Bot) module(id string) (*Module, bool) {
	m, ok := b.modules[id]
	return m, ok
}

// target returns the record's module or the root module.
func (b *Bot) target(id string) (string, *Module) {
	if m, ok := b.modules[id]; ok {
		return id, m
	}
	if len(b.order) == 0 {
		return "", nil
	}
	root := b.order[0]
	return root, b.modules[root]
}

func (b *Bot) inScope(u tele.Update) bool {
	if len(b.chatTypes) == 0 {
		return true
	}
	_, ok := b.chatTypes[ChatType(u)]
	return ok
}

// HandleUpdate dispatches one update. Only messages, edited messages and callbacks
// inside the configured chat scope are handled; everything else is dropped.
// Resolution misses and handler failures are logged, not returned. The returned
// error reports a state store failure; the update is lost in that case.
func (b *Bot) HandleUpdate(ctx context.Context, u tele.Update) error {
	b.freeze()
	kind := Classify(u)
	if !kind.conversational() {
		if logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.Dispatch, slog.LevelDebug, "update.skipped",
				slog.String("kind", kind.String()),
				slog.Int("update_id", u.ID),
			)
		}
		return nil
	}
	if kind == KindCallback {
		if err := b.client.AnswerCallback(ctx, u.Callback.ID); err != nil {
			logger.LogEvent(ctx, logger.Dispatch, slog.LevelWarn, "callback.answer",
				slog.String("status", "fail"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		}
	}
	if !b.inScope(u) {
		return nil
	}
	chatID, ok := ChatID(u)
	if !ok {
		return nil
	}
	messageID, _ := MessageID(u)
	userID, _ := UserID(u)
	ctx = logger.WithUpdateMeta(ctx, u.ID, userID, chatID)
	ctx = logger.WithMessageID(ctx, messageID)
	if logger.RIDFrom(ctx) == "" {
		ctx = logger.WithRID(ctx, logger.BuildRID(u.ID, chatID, userID))
	}

	unlock := b.locks.lock(chatID)
	defer unlock()

	rec, created, err := state.Load(ctx, b.store, chatID, messageID)
	if err != nil {
		return fmt.Errorf("stateful: load state: %w", err)
	}
	if created {
		logger.LogEvent(ctx, logger.Store, slog.LevelDebug, "record.created",
			slog.String("status", "ok"),
			slog.String("record_id", rec.ID),
		)
	}

	h, meth := b.resolve(ctx, rec, u)
	if meth == nil {
		logger.LogEvent(ctx, logger.Dispatch, slog.LevelInfo, "dispatch.miss",
			slog.String("status", "skip"),
			slog.String("kind", kind.String()),
			slog.String("module", rec.ModuleID),
		)
		return nil
	}
	b.invoke(ctx, h, meth)
	return nil
}

// resolve runs the built-in module first and the target module second.
func (b *Bot) resolve(ctx context.Context, rec *state.Record, u tele.Update) (*Handler, *Method) {
	h := b.newHandler(InternalModuleID, b.internal, rec, u)
	if m := b.internal.resolve(ctx, h); m != nil {
		return h, m
	}
	id, mod := b.target(rec.ModuleID)
	if mod == nil {
		return nil, nil
	}
	h = b.newHandler(id, mod, rec, u)
	return h, mod.resolve(ctx, h)
}

func (b *Bot) newHandler(id string, mod *Module, rec *state.Record, u tele.Update) *Handler {
	return &Handler{
		Client:   b.client,
		Bot:      b,
		State:    rec,
		Update:   u,
		moduleID: id,
		module:   mod,
	}
}

// invoke runs the method. Errors and panics are logged with module and method names.
func (b *Bot) invoke(ctx context.Context, h *Handler, m *Method) {
	h.method = m.Name
	ctx = logger.WithModule(ctx, h.moduleID)
	ctx = logger.WithHandler(ctx, m.Name)
	start := time.Now()

	var stack string
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				stack = string(debug.Stack())
			}
		}()
		if m.Fn == nil {
			return nil
		}
		return m.Fn(ctx, h)
	}()

	if err != nil {
		attrs := []slog.Attr{
			slog.String("status", "fail"),
			slog.String("module", h.moduleID),
			slog.String("method", m.Name),
			slog.String("err", logger.SanitizeLimit(err.Error(), 512)),
			slog.Duration("duration", logger.Took(start)),
		}
		if stack != "" {
			attrs = append(attrs, slog.String("stack", stack))
		}
		logger.LogEvent(ctx, logger.Dispatch, slog.LevelError, "method.failed", attrs...)
		return
	}
	logger.LogEvent(ctx, logger.Dispatch, slog.LevelDebug, "method.invoked",
		slog.String("status", "ok"),
		slog.String("module", h.moduleID),
		slog.String("method", m.Name),
		slog.Duration("duration", logger.Took(start)),
	)
}
