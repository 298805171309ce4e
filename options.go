package vigil

import (
	"log/slog"

	"github.com/vigilhq/vigil/audit"
	"github.com/vigilhq/vigil/hook"
	"github.com/vigilhq/vigil/stats"
	"github.com/vigilhq/vigil/storage"
	"github.com/vigilhq/vigil/worker"
)

// Option is a functional option for the Engine.
type Option func(*Engine)

// WithRegistry sets the org/object registry.
func WithRegistry(r Registry) Option { return func(e *Engine) { e.registry = r } }

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithConfig sets the engine configuration.
func WithConfig(c Config) Option { return func(e *Engine) { e.config = c } }

// WithHooks sets the dynamic hook registry fired alongside object hooks.
func WithHooks(r *hook.Registry) Option { return func(e *Engine) { e.hooks = r } }

// WithTriggers sets the script trigger dispatcher.
func WithTriggers(t TriggerDispatcher) Option { return func(e *Engine) { e.triggers = t } }

// WithAudit sets the audit recorder.
func WithAudit(r audit.Recorder) Option { return func(e *Engine) { e.auditor = r } }

// WithStats sets the document accounting sink.
func WithStats(s stats.Sink) Option { return func(e *Engine) { e.stats = s } }

// WithWorkers sets the deferred work runner.
func WithWorkers(w worker.Runner) Option { return func(e *Engine) { e.workers = w } }

// WithACLSync sets the denormalized ACL mirror.
func WithACLSync(s ACLSyncer) Option { return func(e *Engine) { e.aclSync = s } }

// Cleanup names the secondary collections swept after a delete. Nil
// collections are skipped.
type Cleanup struct {
	Notifications storage.Collection
	History       storage.Collection
	Posts         storage.Collection
	Comments      storage.Collection
	Connections   storage.Collection
}

// WithCleanup sets the post-delete fan-out collections.
func WithCleanup(c Cleanup) Option { return func(e *Engine) { e.cleanup = c } }
