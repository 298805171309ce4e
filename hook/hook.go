// Package hook provides the typed lifecycle hook names and the sequential
// dispatch registry the write pipeline fires into.
//
// Hooks run strictly in registration order; the first error aborts the
// remainder of the stage. Whether that error is fatal to the operation is
// the caller's decision (before-stages abort, after-stages log).
package hook

import (
	"context"
	"sync"
)

// Name identifies one lifecycle point.
type Name string

// Lifecycle points fired by the document write pipeline.
const (
	CreateBefore   Name = "create.before"
	CreateAfter    Name = "create.after"
	UpdateBefore   Name = "update.before"
	UpdateAfter    Name = "update.after"
	DeleteBefore   Name = "delete.before"
	DeleteAfter    Name = "delete.after"
	ValidateBefore Name = "validate.before"
	ValidateAfter  Name = "validate.after"
	SaveBefore     Name = "save.before"
	SaveAfter      Name = "save.after"
)

// Lifecycle points fired by the feed pipeline.
const (
	PostCreateBefore    Name = "post.create.before"
	PostCreateAfter     Name = "post.create.after"
	PostUpdateBefore    Name = "post.update.before"
	PostUpdateAfter     Name = "post.update.after"
	PostDeleteBefore    Name = "post.delete.before"
	PostDeleteAfter     Name = "post.delete.after"
	CommentCreateBefore Name = "comment.create.before"
	CommentCreateAfter  Name = "comment.create.after"
	CommentUpdateBefore Name = "comment.update.before"
	CommentUpdateAfter  Name = "comment.update.after"
	CommentDeleteBefore Name = "comment.delete.before"
	CommentDeleteAfter  Name = "comment.delete.after"
)

// Before returns the before-name for an action.
func Before(action string) Name {
	return Name(action + ".before")
}

// After returns the after-name for an action.
func After(action string) Name {
	return Name(action + ".after")
}

// Event carries the firing operation's state into hooks. Context and
// Subject are typed as any so leaf packages can register hooks without
// importing the engine.
type Event struct {
	Context  any
	Subject  any
	Comment  any
	Modified []string
	Insert   map[string]any
}

// Func is one registered hook.
type Func func(ctx context.Context, ev *Event) error

// Registry holds hooks by lifecycle point. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	hooks map[Name][]Func
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{hooks: make(map[Name][]Func)}
}

// Register appends fn to the hooks for name.
func (r *Registry) Register(name Name, fn Func) {
	if fn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[name] = append(r.hooks[name], fn)
}

// Fire runs the hooks for name in registration order, stopping at the
// first error.
func (r *Registry) Fire(ctx context.Context, name Name, ev *Event) error {
	r.mu.RLock()
	fns := r.hooks[name]
	r.mu.RUnlock()

	for _, fn := range fns {
		if err := fn(ctx, ev); err != nil {
			return err
		}
	}

	return nil
}

// Count returns the number of hooks registered for name.
func (r *Registry) Count(name Name) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.hooks[name])
}
