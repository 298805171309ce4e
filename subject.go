// Package vigil is the authorization-and-mutation core of a multi-tenant
// document platform: it resolves the access level a principal holds over a
// subject document and gates every create, update, and delete behind hook
// chains and optimistic-concurrency conditioned writes.
package vigil

import (
	"context"

	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/hook"
	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/org"
	"github.com/vigilhq/vigil/storage"
)

// Subject is the in-memory document instance an AccessContext drives. The
// engine consumes this contract; the document package provides the
// reference implementation.
//
// A subject has a single owner: the context running the current
// operation. Concurrent mutation of one in-memory subject is not
// supported; cross-writer safety lives entirely in the conditioned write.
type Subject interface {
	SubjectID() id.ID
	OrgID() id.ID
	IsNew() bool

	// ACL state as persisted.
	ACL() []access.Entry
	OwnerID() id.ID
	CreatorID() id.ID

	// Optimistic-concurrency counters as last read.
	Sequence() int64
	RawVersion() (int64, bool)
	ACLVersion() int64
	IndexVersion() int64

	// Increment requests that the next delta be conditioned on the
	// current sequence and increment it.
	Increment()

	ModifiedPaths() []string
	ReadableModifiedPaths() []string
	IsModified(paths ...string) bool
	IsSelected(path string) bool

	GetValue(path string) (any, bool)
	SetValue(path string, v any) error
	SetPayload(payload storage.M) error

	// Delta returns the conditioned update for the pending modifications,
	// or nil when there is nothing to write.
	Delta() (*storage.Delta, error)
	ToInsert() (storage.M, error)

	// ApplyWrite mirrors a committed update into the in-memory state and
	// resets modification tracking.
	ApplyWrite(update storage.M) error
	Reset()

	Validate(ctx context.Context) error

	Object() Object
}

// SchemaNode is one property of an object's schema tree.
type SchemaNode interface {
	NodeID() id.ID
	Path() string
	IsArray() bool
	IsIndexed() bool
	IsUnique() bool

	// AutoCreateObject returns the dependent object a create must
	// materialize at this path, if the schema declares one.
	AutoCreateObject() (Object, bool)

	// IsCascadeDelete reports whether the referenced remote documents
	// are cascade-deleted with this one.
	IsCascadeDelete() bool
}

// Object is the schema/model handle for a subject kind.
type Object interface {
	Name() string

	DefaultACL() []access.Entry
	CreateACL() []access.Entry

	IsVersioned() bool
	IsUnmanaged() bool
	HasOwner() bool
	HasCreator() bool
	Auditing() bool
	Migrating() bool

	// StrictPaths rejects writes to paths the schema does not declare.
	StrictPaths() bool

	Collection() storage.Collection
	FireHook(ctx context.Context, name hook.Name, ev *hook.Event) error

	Node(path string) (SchemaNode, bool)
	NodeByID(propID id.ID) (SchemaNode, bool)
	Nodes() []SchemaNode

	// RequiredACLPaths is the projection used when re-reading a subject
	// for ACL mutation.
	RequiredACLPaths() []string

	NewSubject(orgID id.ID) Subject
	SubjectFromRaw(raw storage.M) (Subject, error)
}

// PostObject extends Object for feed posts and their comments.
type PostObject interface {
	Object

	// PostInstanceACL is resolved for post subjects the way DefaultACL
	// is resolved for documents.
	PostInstanceACL() []access.Entry
	PostCreateACL() []access.Entry

	// ContextCreateAccess is the level required on the parent context
	// before the post-specific create ACL is even consulted.
	ContextCreateAccess() access.Level

	// ParentCollection is the posts collection for comment objects, nil
	// for post objects themselves.
	ParentCollection() storage.Collection
}

// PostSubject extends Subject for feed posts and comments.
type PostSubject interface {
	Subject

	IsComment() bool

	// ParentPostID is the owning post for comment subjects.
	ParentPostID() id.ID
}

// Registry resolves orgs and object types for the engine.
type Registry interface {
	Org(ctx context.Context, orgID id.ID) (*org.Org, error)
	ObjectByName(name string) (Object, bool)
	Objects() []Object
}

// TriggerDispatcher runs script triggers around pipeline stages. A nil
// dispatcher skips triggers entirely.
type TriggerDispatcher interface {
	Trigger(ctx context.Context, ac *AccessContext, name hook.Name, modified []string) error
}

// InlineResultError marks a trigger error that must surface to the caller
// even from the normally non-fatal after-chain.
type InlineResultError struct {
	Err error
}

func (e *InlineResultError) Error() string {
	return "vigil: inline script result: " + e.Err.Error()
}

func (e *InlineResultError) Unwrap() error {
	return e.Err
}

// ACLSyncer mirrors committed ACL changes into denormalized copies such as
// feed-post snapshots. A nil syncer skips mirroring.
type ACLSyncer interface {
	SyncACL(ctx context.Context, obj Object, subjectID id.ID, entries []access.Entry) error
}
