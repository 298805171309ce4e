// Package worker defines the background work contract the engine hands
// deferred cleanup to, plus the reaper that performs physical removal of
// soft-deleted documents.
package worker

import (
	"context"
	"sync"

	"github.com/vigilhq/vigil/id"
)

// Well-known message names.
const (
	MessageReap          = "reap"
	MessageCascadeDelete = "cascade-delete"
)

// Message is one unit of deferred work.
type Message struct {
	Name    string
	OrgID   id.ID
	Object  string
	Subject id.ID
	Payload map[string]any
}

// Runner accepts deferred work. Scheduling failures are logged by callers,
// never escalated into the mutation path.
type Runner interface {
	Schedule(ctx context.Context, msg Message) error
}

// Handler processes one scheduled message.
type Handler func(ctx context.Context, msg Message) error

// Memory is a Runner that queues messages in memory and dispatches
// synchronously to registered handlers. Intended for tests and embedded
// setups.
type Memory struct {
	mu       sync.Mutex
	queued   []Message
	handlers map[string]Handler
}

var _ Runner = (*Memory)(nil)

// NewMemory returns an empty runner.
func NewMemory() *Memory {
	return &Memory{handlers: make(map[string]Handler)}
}

// Handle registers a handler for a message name. Messages with no handler
// stay queued.
func (m *Memory) Handle(name string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = h
}

// Schedule queues the message, dispatching immediately when a handler is
// registered for its name.
func (m *Memory) Schedule(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	h := m.handlers[msg.Name]
	m.queued = append(m.queued, msg)
	m.mu.Unlock()

	if h != nil {
		return h(ctx, msg)
	}

	return nil
}

// Messages returns a copy of everything scheduled so far.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Message(nil), m.queued...)
}

// MessagesNamed returns scheduled messages with the given name.
func (m *Memory) MessagesNamed(name string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Message
	for _, msg := range m.queued {
		if msg.Name == name {
			out = append(out, msg)
		}
	}

	return out
}
