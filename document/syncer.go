package document

import (
	"context"

	"github.com/vigilhq/vigil"
	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/storage"
)

// ACLMirror copies a context document's committed ACL into the stored
// snapshot of every post attached to it, so feed reads resolve without
// loading the context.
type ACLMirror struct {
	posts storage.Collection
}

// NewACLMirror builds a mirror writing into the posts collection.
func NewACLMirror(posts storage.Collection) *ACLMirror {
	return &ACLMirror{posts: posts}
}

func (m *ACLMirror) SyncACL(ctx context.Context, _ vigil.Object, subjectID id.ID, entries []access.Entry) error {
	if m.posts == nil {
		return nil
	}

	_, err := m.posts.UpdateMany(ctx,
		storage.M{"context": subjectID.String()},
		storage.M{
			"$set": storage.M{"acl": access.EntriesToAny(entries)},
			"$inc": storage.M{"aclv": int64(1)},
		})

	return err
}

var _ vigil.ACLSyncer = (*ACLMirror)(nil)
