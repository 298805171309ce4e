package vigil

import (
	"context"
	"fmt"

	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/org"
	"github.com/vigilhq/vigil/principal"
)

// Well-known object type names the engine gives special treatment.
const (
	ObjectAccount = "account"
	ObjectOrg     = "org"
)

// MethodDelete selects the delete path of the write pipeline.
const MethodDelete = "delete"

// AccessContext binds one principal to one optional subject for one
// logical operation. It owns access resolution, the resource/path stacks
// used for error attribution, and the write pipeline.
//
// A context is not safe for concurrent use; callers needing parallelism
// construct one context per operation.
type AccessContext struct {
	eng       *Engine
	principal *principal.Principal
	subject   Subject
	object    Object

	// hookScope prefixes pipeline hook names ("post", "comment").
	hookScope string

	grant    access.Level
	override *access.Level
	roles    []id.ID
	pacl     []access.Entry
	scoped   bool
	method   string
	dryRun   bool
	passive  bool

	options map[string]any

	resourceStack []string
	pathStack     []string

	safeToUpdate map[string]bool
	reindex      map[string]bool

	// Memoized until principal/subject/override changes.
	accessMemo *access.Access
	rolesMemo  []id.ID
	orgMemo    *org.Org
}

// ContextOption configures an AccessContext at construction.
type ContextOption func(*AccessContext)

// WithObject sets the object handle explicitly. Required when there is no
// subject to derive it from.
func WithObject(obj Object) ContextOption { return func(ac *AccessContext) { ac.object = obj } }

// WithGrant merges a floor level into every resolution on this context.
func WithGrant(l access.Level) ContextOption { return func(ac *AccessContext) { ac.grant = l } }

// WithOverride replaces the naturally resolved level entirely. Privileged
// bypass; not a floor.
func WithOverride(l access.Level) ContextOption {
	return func(ac *AccessContext) { ac.override = &l }
}

// WithRoles adds explicit role ids considered alongside the principal's.
func WithRoles(roles ...id.ID) ContextOption {
	return func(ac *AccessContext) { ac.roles = append(ac.roles, roles...) }
}

// WithPACL sets the pointer ACL used by nested field-level access.
func WithPACL(entries []access.Entry) ContextOption {
	return func(ac *AccessContext) { ac.pacl = entries }
}

// WithMethod sets the operation method; MethodDelete selects the delete
// pipeline.
func WithMethod(m string) ContextOption { return func(ac *AccessContext) { ac.method = m } }

// WithScoped enables auth-scope checking on this context.
func WithScoped(scoped bool) ContextOption { return func(ac *AccessContext) { ac.scoped = scoped } }

// WithDryRun makes every pipeline run stop before touching storage.
func WithDryRun(dry bool) ContextOption { return func(ac *AccessContext) { ac.dryRun = dry } }

// WithPassive suppresses non-essential side effects (auditing, stats).
func WithPassive(passive bool) ContextOption { return func(ac *AccessContext) { ac.passive = passive } }

// WithContextOption stores an arbitrary key in the context's option bag.
func WithContextOption(key string, val any) ContextOption {
	return func(ac *AccessContext) { ac.options[key] = val }
}

// Context builds an AccessContext for a principal and an optional subject.
// The object handle is derived from the subject when not set explicitly.
func (e *Engine) Context(p *principal.Principal, subject Subject, opts ...ContextOption) (*AccessContext, error) {
	if p == nil {
		return nil, wrap("context", fmt.Errorf("%w: principal required", ErrInvalidArgument))
	}

	ac := &AccessContext{
		eng:          e,
		principal:    p,
		subject:      subject,
		options:      make(map[string]any),
		safeToUpdate: make(map[string]bool),
		reindex:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(ac)
	}
	if ac.object == nil && subject != nil {
		ac.object = subject.Object()
	}
	if subject != nil && ac.object != nil && subject.Object() != nil &&
		subject.Object().Name() != ac.object.Name() {
		return nil, wrap("context", fmt.Errorf("%w: object %q does not match subject object %q",
			ErrInvalidArgument, ac.object.Name(), subject.Object().Name()))
	}

	return ac, nil
}

// ──────────────────────────────────────────────────
// Accessors and mutation
// ──────────────────────────────────────────────────

// Principal returns the context's principal.
func (ac *AccessContext) Principal() *principal.Principal { return ac.principal }

// Subject returns the context's subject (may be nil).
func (ac *AccessContext) Subject() Subject { return ac.subject }

// Object returns the object handle (may be nil).
func (ac *AccessContext) Object() Object { return ac.object }

// Engine returns the owning engine.
func (ac *AccessContext) Engine() *Engine { return ac.eng }

// Method returns the operation method.
func (ac *AccessContext) Method() string { return ac.method }

// DryRun reports whether pipeline runs stop before storage.
func (ac *AccessContext) DryRun() bool { return ac.dryRun }

// Grant returns the context's floor level.
func (ac *AccessContext) Grant() access.Level { return ac.grant }

// Override returns the override level and whether one is set.
func (ac *AccessContext) Override() (access.Level, bool) {
	if ac.override == nil {
		return access.None, false
	}

	return *ac.override, true
}

// SetPrincipal replaces the principal and invalidates memoized state.
func (ac *AccessContext) SetPrincipal(p *principal.Principal) error {
	if p == nil {
		return wrap("context", fmt.Errorf("%w: principal required", ErrInvalidArgument))
	}
	ac.principal = p
	ac.invalidate()

	return nil
}

// SetSubject replaces the subject and invalidates memoized state. The
// object handle is re-derived when it was not set explicitly.
func (ac *AccessContext) SetSubject(subject Subject) {
	ac.subject = subject
	if subject != nil && ac.object == nil {
		ac.object = subject.Object()
	}
	ac.invalidate()
}

// SetOverride replaces the naturally resolved level and invalidates
// memoized state.
func (ac *AccessContext) SetOverride(l access.Level) {
	ac.override = &l
	ac.invalidate()
}

// ClearOverride removes the override.
func (ac *AccessContext) ClearOverride() {
	ac.override = nil
	ac.invalidate()
}

// SetGrant replaces the floor level.
func (ac *AccessContext) SetGrant(l access.Level) {
	ac.grant = l
	ac.invalidate()
}

func (ac *AccessContext) invalidate() {
	ac.accessMemo = nil
	ac.rolesMemo = nil
}

// Option reads a key from the option bag.
func (ac *AccessContext) Option(key string) (any, bool) {
	v, ok := ac.options[key]

	return v, ok
}

// SetOption stores a key in the option bag.
func (ac *AccessContext) SetOption(key string, val any) {
	ac.options[key] = val
}

// ──────────────────────────────────────────────────
// Resource and path attribution
// ──────────────────────────────────────────────────

// PushResource enters a named resource for error attribution.
func (ac *AccessContext) PushResource(name string) {
	ac.resourceStack = append(ac.resourceStack, name)
}

// PopResource leaves the current resource.
func (ac *AccessContext) PopResource() {
	if n := len(ac.resourceStack); n > 0 {
		ac.resourceStack = ac.resourceStack[:n-1]
	}
}

// Resource returns the current resource, or empty.
func (ac *AccessContext) Resource() string {
	if n := len(ac.resourceStack); n > 0 {
		return ac.resourceStack[n-1]
	}

	return ""
}

// PushPath enters a property path for error attribution.
func (ac *AccessContext) PushPath(path string) {
	ac.pathStack = append(ac.pathStack, path)
}

// PopPath leaves the current property path.
func (ac *AccessContext) PopPath() {
	if n := len(ac.pathStack); n > 0 {
		ac.pathStack = ac.pathStack[:n-1]
	}
}

// Path returns the current property path, or empty.
func (ac *AccessContext) Path() string {
	if n := len(ac.pathStack); n > 0 {
		return ac.pathStack[n-1]
	}

	return ""
}

func (ac *AccessContext) fault(err error, reason string) *Fault {
	return NewFault(err, ac.Resource(), ac.Path(), reason)
}

// ──────────────────────────────────────────────────
// Array-overwrite safety markers
// ──────────────────────────────────────────────────

// MarkSafeToUpdate permits a full overwrite of the array node at path for
// this context's current operation.
func (ac *AccessContext) MarkSafeToUpdate(path string) {
	ac.safeToUpdate[path] = true
}

// IsSafeToUpdate reports whether path was marked safe to overwrite.
func (ac *AccessContext) IsSafeToUpdate(path string) bool {
	return ac.safeToUpdate[path]
}

func (ac *AccessContext) clearSafeToUpdate() {
	ac.safeToUpdate = make(map[string]bool)
}

// AddReindex queues an index rebuild for path.
func (ac *AccessContext) AddReindex(path string) {
	ac.reindex[path] = true
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Copy derives a child context for another subject. The child inherits
// grant, override, method, scope, dry-run, and the option bag; roles are
// inherited only when inheritRoles is set.
func (ac *AccessContext) Copy(subject Subject, inheritRoles bool, opts ...ContextOption) (*AccessContext, error) {
	all := []ContextOption{
		WithGrant(ac.grant),
		WithMethod(ac.method),
		WithScoped(ac.scoped),
		WithDryRun(ac.dryRun),
		WithPassive(ac.passive),
	}
	if ac.override != nil {
		all = append(all, WithOverride(*ac.override))
	}
	if inheritRoles {
		all = append(all, WithRoles(ac.roles...))
	}
	all = append(all, opts...)

	child, err := ac.eng.Context(ac.principal, subject, all...)
	if err != nil {
		return nil, err
	}
	for k, v := range ac.options {
		child.options[k] = v
	}
	child.resourceStack = append(child.resourceStack, ac.resourceStack...)

	return child, nil
}

// Dispose drops references so a long-lived holder cannot pin the subject.
func (ac *AccessContext) Dispose() {
	ac.subject = nil
	ac.object = nil
	ac.options = make(map[string]any)
	ac.safeToUpdate = make(map[string]bool)
	ac.reindex = make(map[string]bool)
	ac.invalidate()
	ac.orgMemo = nil
}

// MarshalJSON always encodes as null. Contexts hold privileged state and
// must never leak through accidental serialization; use ToObject for
// logging.
func (ac *AccessContext) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// ToObject returns a safe serialization for logs and audit metadata.
func (ac *AccessContext) ToObject() map[string]any {
	out := map[string]any{}
	if ac.principal != nil {
		out["principal"] = ac.principal.ID.String()
		out["org"] = ac.principal.OrgID.String()
	}
	if ac.object != nil {
		out["object"] = ac.object.Name()
	}
	if ac.subject != nil {
		out["subject"] = ac.subject.SubjectID().String()
	}
	if ac.method != "" {
		out["method"] = ac.method
	}
	if ac.dryRun {
		out["dryRun"] = true
	}

	return out
}

func (ac *AccessContext) org(ctx context.Context) (*org.Org, error) {
	if ac.orgMemo != nil {
		return ac.orgMemo, nil
	}
	if ac.eng.registry == nil || ac.principal == nil {
		return nil, nil
	}

	o, err := ac.eng.registry.Org(ctx, ac.principal.OrgID)
	if err != nil {
		return nil, err
	}
	ac.orgMemo = o

	return o, nil
}
