// Package audit defines the mutation audit event and its recorder
// interface, with in-memory and slog-backed recorders.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vigilhq/vigil/id"
)

// Event is a single recorded mutation.
type Event struct {
	ID        id.ID          `json:"id"`
	OrgID     id.ID          `json:"org_id"`
	Principal id.ID          `json:"principal"`
	Object    string         `json:"object"`
	Subject   id.ID          `json:"subject"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Recorder accepts audit events. Recording failures are the caller's to
// log; they never fail the mutation that produced the event.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Memory is a Recorder that retains events in memory. Safe for concurrent
// use; intended for tests and embedded setups.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

var _ Recorder = (*Memory)(nil)

// NewMemory returns an empty in-memory recorder.
func NewMemory() *Memory {
	return &Memory{}
}

// Record stores the event, stamping id and time if unset.
func (m *Memory) Record(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if ev.ID.IsNil() {
		ev.ID = id.NewAuditID()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)

	return nil
}

// Events returns a copy of every recorded event.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]Event(nil), m.events...)
}

// Logger is a Recorder that emits events to a slog.Logger.
type Logger struct {
	log *slog.Logger
}

var _ Recorder = (*Logger)(nil)

// NewLogger returns a slog-backed recorder. A nil logger uses
// slog.Default().
func NewLogger(log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}

	return &Logger{log: log}
}

// Record logs the event at info level.
func (l *Logger) Record(ctx context.Context, ev Event) error {
	l.log.InfoContext(ctx, "audit event",
		"action", ev.Action,
		"org", ev.OrgID.String(),
		"principal", ev.Principal.String(),
		"object", ev.Object,
		"subject", ev.Subject.String(),
	)

	return nil
}
