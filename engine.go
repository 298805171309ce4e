package vigil

import (
	"context"
	"log/slog"
	"sync"

	"github.com/vigilhq/vigil/audit"
	"github.com/vigilhq/vigil/hook"
	"github.com/vigilhq/vigil/stats"
	"github.com/vigilhq/vigil/worker"
)

// Engine owns the collaborators every AccessContext operates through. It
// is safe for concurrent use; all per-operation state lives on the
// contexts it hands out.
type Engine struct {
	registry Registry
	hooks    *hook.Registry
	triggers TriggerDispatcher
	auditor  audit.Recorder
	stats    stats.Sink
	workers  worker.Runner
	aclSync  ACLSyncer
	cleanup  Cleanup
	logger   *slog.Logger
	config   Config

	// Tracks fire-and-forget post-delete fan-out so Stop can drain it.
	background sync.WaitGroup
}

// NewEngine creates an engine with the given options.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		hooks:  hook.NewRegistry(),
		logger: slog.Default(),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}

	return e, nil
}

// Registry returns the org/object registry (may be nil).
func (e *Engine) Registry() Registry { return e.registry }

// Hooks returns the dynamic hook registry.
func (e *Engine) Hooks() *hook.Registry { return e.hooks }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Start performs any startup initialization.
func (e *Engine) Start(_ context.Context) error { return nil }

// Stop drains background fan-out work. The context bounds the wait.
func (e *Engine) Stop(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.background.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) recordAudit(ctx context.Context, ev audit.Event) {
	if e.auditor == nil {
		return
	}
	if err := e.auditor.Record(ctx, ev); err != nil {
		e.logger.Warn("audit record failed", "action", ev.Action, "error", err)
	}
}

func (e *Engine) recordStats(ctx context.Context, d stats.Delta) {
	if e.stats == nil {
		return
	}
	if err := e.stats.Record(ctx, d); err != nil {
		e.logger.Warn("stats record failed", "object", d.Object, "error", err)
	}
}

func (e *Engine) schedule(ctx context.Context, msg worker.Message) {
	if e.workers == nil {
		return
	}
	if err := e.workers.Schedule(ctx, msg); err != nil {
		e.logger.Warn("worker schedule failed", "message", msg.Name, "error", err)
	}
}
