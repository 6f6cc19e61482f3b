package dispatch

import (
	"context"
	"errors"
)

// Wildcard is the literal trigger used when no exact text matches.
const Wildcard = "*"

// ErrNoWildcard is returned by Build when no wildcard handler was registered.
var ErrNoWildcard = errors.New("literal table has no wildcard handler")

// LiteralHandler answers a non-command message in a room.
type LiteralHandler func(ctx context.Context, roomID string) error

// LiteralsBuilder collects literal-message handlers during initialization.
type LiteralsBuilder struct {
	handlers map[string]LiteralHandler
	order    []string
}

// NewLiterals starts an empty literal table.
func NewLiterals() *LiteralsBuilder {
	return &LiteralsBuilder{handlers: make(map[string]LiteralHandler)}
}

// Register binds an exact message text to a handler. Registering the same trigger again
// replaces the earlier handler.
func (b *LiteralsBuilder) Register(trigger string, h LiteralHandler) *LiteralsBuilder {
	if _, exists := b.handlers[trigger]; !exists {
		b.order = append(b.order, trigger)
	}
	b.handlers[trigger] = h
	return b
}

// Build freezes the table. The wildcard entry is required.
func (b *LiteralsBuilder) Build() (*Literals, error) {
	if h, ok := b.handlers[Wildcard]; !ok || h == nil {
		return nil, ErrNoWildcard
	}
	l := &Literals{handlers: make(map[string]LiteralHandler, len(b.handlers))}
	for _, trigger := range b.order {
		if h := b.handlers[trigger]; h != nil {
			l.handlers[trigger] = h
			l.triggers = append(l.triggers, trigger)
		}
	}
	return l, nil
}

// Literals is an immutable exact-match table.
type Literals struct {
	handlers map[string]LiteralHandler
	triggers []string
}

// Lookup returns the handler registered for exactly text.
func (l *Literals) Lookup(text string) (LiteralHandler, bool) {
	if l == nil {
		return nil, false
	}
	h, ok := l.handlers[text]
	return h, ok
}

// Triggers returns the registered triggers in registration order.
func (l *Literals) Triggers() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.triggers...)
}
