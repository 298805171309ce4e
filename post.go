package vigil

import (
	"context"
	"fmt"
	"time"

	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/storage"
	"github.com/vigilhq/vigil/worker"
)

// PostAccessContext drives feed posts and comments attached to a context
// document. Resolution is deliberately coarser than for documents: a
// comment is readable by anyone who reached its context and deletable
// only by its author; a post floors at Read and grants its creator
// Delete.
type PostAccessContext struct {
	*AccessContext

	parent *AccessContext
	post   PostSubject
	obj    PostObject
}

// PostContext derives a feed context from the context-document context.
func (ac *AccessContext) PostContext(subject PostSubject, obj PostObject, opts ...ContextOption) (*PostAccessContext, error) {
	if subject == nil || obj == nil {
		return nil, wrap("post context", fmt.Errorf("%w: post subject and object required", ErrInvalidArgument))
	}

	child, err := ac.Copy(subject, true, append([]ContextOption{WithObject(obj)}, opts...)...)
	if err != nil {
		return nil, err
	}
	child.hookScope = "post"
	if subject.IsComment() {
		child.hookScope = "comment"
	}

	return &PostAccessContext{
		AccessContext: child,
		parent:        ac,
		post:          subject,
		obj:           obj,
	}, nil
}

// Parent returns the context-document context this feed hangs off.
func (pc *PostAccessContext) Parent() *AccessContext { return pc.parent }

// Resolve computes the principal's level on the post or comment. An
// override still replaces everything.
func (pc *PostAccessContext) Resolve(ctx context.Context) (access.Level, error) {
	if lvl, ok := pc.Override(); ok {
		return lvl, nil
	}
	p := pc.Principal()
	if p == nil {
		return access.None, nil
	}

	creator := pc.post.CreatorID()
	isCreator := !creator.IsNil() && creator.Equal(p.ID)

	if pc.post.IsComment() {
		if isCreator {
			return access.Delete, nil
		}

		return access.Read, nil
	}

	entries := access.MergeAndSanitizeEntries(pc.obj.PostInstanceACL(), pc.post.ACL())
	if entries == nil {
		entries = []access.Entry{}
	}
	res, err := pc.ResolveAccess(ctx, ResolveOptions{
		CustomACL:  entries,
		WithGrants: true,
	})
	if err != nil {
		return access.None, err
	}

	lvl := access.MaxLevel(res.Resolved(), access.Read)
	if isCreator {
		lvl = access.MaxLevel(lvl, access.Delete)
	}

	return lvl, nil
}

// HasAccess reports whether the principal holds at least l on the post.
func (pc *PostAccessContext) HasAccess(ctx context.Context, l access.Level) (bool, error) {
	lvl, err := pc.Resolve(ctx)
	if err != nil {
		return false, err
	}

	return lvl >= access.Clamp(l, true), nil
}

// CanCreate gates posting. The principal needs the object's declared
// level on the context document first; only then is the post create ACL
// consulted.
func (pc *PostAccessContext) CanCreate(ctx context.Context) (bool, error) {
	ok, err := pc.parent.HasAccess(ctx, pc.obj.ContextCreateAccess())
	if err != nil || !ok {
		return false, err
	}

	return pc.AccessContext.CanCreate(ctx, pc.obj.PostCreateACL(), true)
}

// Save runs the write pipeline with post or comment hook names. Direct
// ACL writes are rejected; post ACLs change only through the mirror of
// their context document's ACL.
func (pc *PostAccessContext) Save(ctx context.Context, opts SaveOptions) (*SaveResult, error) {
	if pc.post.IsModified("acl") {
		return nil, pc.faultAt(ErrUnsupportedOperation, "acl", "post acl is derived, not writable")
	}

	res, err := pc.AccessContext.Save(ctx, opts)
	if err != nil {
		return nil, err
	}

	pc.bumpParentPost(ctx)

	return res, nil
}

// bumpParentPost advances the parent post's activity timestamp after a
// comment write. Conditioned on $lt so concurrent bumps never move the
// timestamp backwards.
func (pc *PostAccessContext) bumpParentPost(ctx context.Context) {
	if !pc.post.IsComment() {
		return
	}
	postID := pc.post.ParentPostID()
	col := pc.obj.ParentCollection()
	if postID.IsNil() || col == nil {
		return
	}

	now := time.Now().UTC()
	_, err := col.UpdateOne(ctx,
		storage.M{"_id": postID.String(), "updated": storage.M{"$lt": now}},
		storage.M{"$set": storage.M{"updated": now}})
	if err != nil {
		pc.eng.logger.Warn("post timestamp bump failed",
			"post", postID.String(), "error", err)
	}
}

// ScheduleContextFeedReap queues reaping of every soft-deleted post and
// comment attached to a context document.
func (e *Engine) ScheduleContextFeedReap(ctx context.Context, orgID, contextID id.ID) {
	e.schedule(ctx, worker.Message{
		Name:    worker.MessageReap,
		OrgID:   orgID,
		Subject: contextID,
		Payload: storage.M{"feed": true},
	})
}
