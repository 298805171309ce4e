package vigil

import (
	"context"
	"errors"
	"fmt"

	"github.com/vigilhq/vigil/hook"
	"github.com/vigilhq/vigil/storage"
)

// SaveOptions tunes one pipeline run.
type SaveOptions struct {
	// ExpectedVersion is required when the object is versioned: the
	// version the caller last observed.
	ExpectedVersion *int64

	// DisableTriggers skips script triggers (object hooks still fire).
	DisableTriggers bool

	// SkipValidation skips schema validation.
	SkipValidation bool

	// Preview prepares the create payload without persisting it.
	Preview bool

	// ReadableModified carries externally-queued readable-modified paths
	// for properties changed indirectly, e.g. through a nested list
	// write that never marked the root document modified.
	ReadableModified []string
}

// SaveResult reports what a pipeline run did.
type SaveResult struct {
	// Modified is the readable modified path list.
	Modified []string

	// Insert is the prepared payload when Preview was set.
	Insert storage.M
}

// Save persists the subject: create for never-persisted subjects, delete
// when the context method is MethodDelete, update otherwise.
//
// Authorization is expected to have gated the call site already; Save
// focuses on hook sequencing and optimistic-concurrency-safe persistence.
func (ac *AccessContext) Save(ctx context.Context, opts SaveOptions) (*SaveResult, error) {
	if ac.subject == nil {
		return nil, wrap("save", fmt.Errorf("%w: subject required", ErrInvalidArgument))
	}
	if ac.object == nil {
		return nil, wrap("save", fmt.Errorf("%w: object required", ErrInvalidArgument))
	}

	switch {
	case ac.subject.IsNew():
		return ac.saveCreate(ctx, opts)
	case ac.method == MethodDelete:
		return ac.saveDelete(ctx, opts)
	default:
		return ac.saveUpdate(ctx, opts)
	}
}

// ──────────────────────────────────────────────────
// Hook chains
// ──────────────────────────────────────────────────

// action prefixes base with the context's hook scope.
func (ac *AccessContext) action(base string) string {
	if ac.hookScope == "" {
		return base
	}

	return ac.hookScope + "." + base
}

func (ac *AccessContext) event(modified []string) *hook.Event {
	return &hook.Event{
		Context:  ac,
		Subject:  ac.subject,
		Modified: modified,
	}
}

func (ac *AccessContext) fireTrigger(ctx context.Context, opts SaveOptions, name hook.Name, modified []string) error {
	if ac.eng.triggers == nil || opts.DisableTriggers {
		return nil
	}

	return ac.eng.triggers.Trigger(ctx, ac, name, modified)
}

func (ac *AccessContext) fireBoth(ctx context.Context, name hook.Name, ev *hook.Event) error {
	if err := ac.object.FireHook(ctx, name, ev); err != nil {
		return err
	}

	return ac.eng.hooks.Fire(ctx, name, ev)
}

// preAction runs the sequential before-chain for an action. Any error
// short-circuits and propagates unchanged.
func (ac *AccessContext) preAction(ctx context.Context, action string, opts SaveOptions, modified []string) error {
	ev := ac.event(modified)

	if err := ac.fireTrigger(ctx, opts, hook.Before(action), modified); err != nil {
		return err
	}
	if err := ac.fireBoth(ctx, hook.Before(action), ev); err != nil {
		return err
	}
	if err := ac.fireBoth(ctx, hook.ValidateBefore, ev); err != nil {
		return err
	}
	if !opts.SkipValidation {
		if err := ac.subject.Validate(ctx); err != nil {
			return err
		}
	}
	if err := ac.fireBoth(ctx, hook.ValidateAfter, ev); err != nil {
		return err
	}

	return ac.fireBoth(ctx, hook.SaveBefore, ev)
}

// postAction runs the after-chain. The primary mutation has already
// committed, so hook and trigger failures are logged, not returned, with
// one exception: an inline script result error surfaces to the caller.
func (ac *AccessContext) postAction(ctx context.Context, action string, opts SaveOptions, modified []string) error {
	ev := ac.event(modified)

	if err := ac.fireBoth(ctx, hook.SaveAfter, ev); err != nil {
		ac.eng.logger.Warn("save.after hook failed", "object", ac.object.Name(), "error", err)
	}
	if err := ac.fireBoth(ctx, hook.After(action), ev); err != nil {
		ac.eng.logger.Warn("after hook failed", "action", action, "object", ac.object.Name(), "error", err)
	}

	if err := ac.fireTrigger(ctx, opts, hook.After(action), modified); err != nil {
		var inline *InlineResultError
		if errors.As(err, &inline) {
			return fmt.Errorf("%w: %w", ErrScript, inline.Err)
		}
		ac.eng.logger.Warn("after trigger failed", "action", action, "object", ac.object.Name(), "error", err)
	}

	return nil
}
