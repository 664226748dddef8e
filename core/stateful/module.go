package stateful

import (
	"context"
	"strings"
)

// HandlerFunc is the logic of one method. It receives a handler bound to a single update.
type HandlerFunc func(ctx context.Context, h *Handler) error

// Method pairs a HandlerFunc with its conditions and menu metadata.
type Method struct {
	Name       string
	Conditions []Condition
	Fn         HandlerFunc

	isDefault bool
	hidden    bool
	label     string
}

// IsDefault reports whether the method is the module fallback.
func (m *Method) IsDefault() bool { return m.isDefault }

// MethodOption configures a method at registration. Conditions are options too.
type MethodOption interface {
	applyTo(*Method)
}

type optionFunc func(*Method)

func (f optionFunc) applyTo(m *Method) { f(m) }

func (c Condition) applyTo(m *Method) { m.Conditions = append(m.Conditions, c) }

// AsDefault marks the method as the module fallback. It runs only for non-callback
// updates that no other method of the module accepts, and on module switches.
func AsDefault() MethodOption {
	return optionFunc(func(m *Method) { m.isDefault = true })
}

// Hidden keeps the method out of generated menus.
func Hidden() MethodOption {
	return optionFunc(func(m *Method) { m.hidden = true })
}

// Label sets the inline button text, or the menu description of a command.
// Callback data is shown when no label is set. A trailing "\n" closes the button row.
func Label(text string) MethodOption {
	return optionFunc(func(m *Method) { m.label = text })
}

// Module is one phase of a conversation: an ordered list of methods.
type Module struct {
	methods []*Method
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{}
}

// Handle declares a method. Declaration order is resolution and menu order.
func (m *Module) Handle(name string, fn HandlerFunc, opts ...MethodOption) *Module {
	meth := &Method{Name: name, Fn: fn}
	for _, opt := range opts {
		opt.applyTo(meth)
	}
	m.methods = append(m.methods, meth)
	return m
}

// Methods returns the declared methods in order.
func (m *Module) Methods() []*Method {
	return m.methods
}

// matches evaluates the conjunction of conditions, stopping at the first miss.
func (meth *Method) matches(ctx context.Context, h *Handler) bool {
	for _, c := range meth.Conditions {
		if c.Match == nil || !c.Match(ctx, h) {
			return false
		}
	}
	return true
}

// resolve picks the first non-default method whose conditions all hold.
// A method without conditions never matches this way. When nothing matches and
// the update is not a callback, the first applicable default is returned.
func (m *Module) resolve(ctx context.Context, h *Handler) *Method {
	for _, meth := range m.methods {
		if meth.isDefault || len(meth.Conditions) == 0 {
			continue
		}
		if meth.matches(ctx, h) {
			return meth
		}
	}
	if h.Kind() == KindCallback {
		return nil
	}
	return m.defaultMethod(ctx, h)
}

// defaultMethod returns the first default whose own conditions hold.
func (m *Module) defaultMethod(ctx context.Context, h *Handler) *Method {
	for _, meth := range m.methods {
		if meth.isDefault && meth.matches(ctx, h) {
			return meth
		}
	}
	return nil
}

// display returns the index of the condition that represents the method in a
// menu of the given kinds.
func (meth *Method) display(kinds ...ConditionKind) (int, bool) {
	if meth.hidden {
		return -1, false
	}
	for i, c := range meth.Conditions {
		if strings.TrimSpace(c.Literal) == "" {
			continue
		}
		for _, k := range kinds {
			if c.Kind == k {
				return i, true
			}
		}
	}
	return -1, false
}
