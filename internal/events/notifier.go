// Package events implements the change-notification contract between the
// storage core and its consumers. Stores publish after every successful
// write or delete; consumers subscribe instead of polling.
package events

import (
	"log/slog"
	"sync"
)

// Kind names a category of storage change.
type Kind string

const (
	WriteSource  Kind = "write-source"
	WriteEpisode Kind = "write-episode"
	DeleteSource Kind = "delete-source"
)

// Handler receives the full committed record affected by a change.
type Handler func(payload any)

// Notifier fans a published event out to all subscribers of its kind.
// Publish is synchronous and fire-and-forget: handlers run in registration
// order on the caller's goroutine, and a panicking handler never prevents
// the remaining handlers from running.
type Notifier struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
	logger   *slog.Logger
}

// NewNotifier creates an empty notifier.
func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		handlers: make(map[Kind][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for one event kind. There is no
// subscriber-count limit and no way to unsubscribe; subscriptions live for
// the process lifetime.
func (n *Notifier) Subscribe(kind Kind, handler Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[kind] = append(n.handlers[kind], handler)
}

// Publish delivers payload to every subscriber of kind, in registration
// order. Failures are isolated per handler.
func (n *Notifier) Publish(kind Kind, payload any) {
	n.mu.RLock()
	handlers := n.handlers[kind]
	n.mu.RUnlock()

	for _, handler := range handlers {
		n.invoke(kind, handler, payload)
	}
}

func (n *Notifier) invoke(kind Kind, handler Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("event handler panicked", "kind", string(kind), "panic", r)
		}
	}()
	handler(payload)
}
