package document

import (
	"fmt"
	"time"

	"github.com/vigilhq/vigil"
	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/storage"
)

// PostObjectConfig declares a feed object: posts attached to a context
// document, or comments attached to a post.
type PostObjectConfig struct {
	ObjectConfig

	// Comment marks this object's subjects as comments.
	Comment bool

	// PostInstanceACL is combined with each post's stored ACL snapshot
	// when resolving access.
	PostInstanceACL []access.Entry

	// PostCreateACL gates posting once the context-level requirement is
	// met.
	PostCreateACL []access.Entry

	// ContextCreateAccess is the level required on the context document
	// before PostCreateACL is consulted.
	ContextCreateAccess access.Level

	// ParentCollection is the posts collection for comment objects.
	ParentCollection storage.Collection
}

// PostObject is the schema handle for posts or comments.
type PostObject struct {
	*Object
	cfgPost PostObjectConfig
}

// NewPostObject builds a feed object from its configuration.
func NewPostObject(cfg PostObjectConfig) (*PostObject, error) {
	if cfg.Comment && cfg.ParentCollection == nil {
		return nil, fmt.Errorf("document: %s: comment object needs a parent collection", cfg.Name)
	}

	base, err := NewObject(cfg.ObjectConfig)
	if err != nil {
		return nil, err
	}

	return &PostObject{Object: base, cfgPost: cfg}, nil
}

func (o *PostObject) PostInstanceACL() []access.Entry { return o.cfgPost.PostInstanceACL }
func (o *PostObject) PostCreateACL() []access.Entry   { return o.cfgPost.PostCreateACL }

func (o *PostObject) ContextCreateAccess() access.Level { return o.cfgPost.ContextCreateAccess }

func (o *PostObject) ParentCollection() storage.Collection {
	if !o.cfgPost.Comment {
		return nil
	}

	return o.cfgPost.ParentCollection
}

func (o *PostObject) NewSubject(orgID id.ID) vigil.Subject {
	d := newDocument(o.Object, orgID)
	prefix := id.PrefixPost
	if o.cfgPost.Comment {
		prefix = id.PrefixComment
	}
	d.subjectID = id.New(prefix)
	d.data["_id"] = d.subjectID.String()
	d.data["updated"] = time.Now().UTC()

	return &PostDocument{Document: d, comment: o.cfgPost.Comment}
}

func (o *PostObject) SubjectFromRaw(raw storage.M) (vigil.Subject, error) {
	d, err := fromRaw(o.Object, raw)
	if err != nil {
		return nil, err
	}

	return &PostDocument{Document: d, comment: o.cfgPost.Comment}, nil
}

var _ vigil.PostObject = (*PostObject)(nil)

// PostDocument is a post or comment subject.
type PostDocument struct {
	*Document
	comment bool
}

func (d *PostDocument) IsComment() bool { return d.comment }

// ParentPostID is the owning post for comments, nil otherwise.
func (d *PostDocument) ParentPostID() id.ID {
	if !d.comment {
		return id.Nil
	}
	s, ok := d.data["post"].(string)
	if !ok || s == "" {
		return id.Nil
	}
	parsed, err := id.ParseWithPrefix(s, id.PrefixPost)
	if err != nil {
		return id.Nil
	}

	return parsed
}

// SetContext attaches the subject to its context document.
func (d *PostDocument) SetContext(contextID id.ID) error {
	return d.SetValue("context", contextID.String())
}

// SetParentPost attaches a comment to its post.
func (d *PostDocument) SetParentPost(postID id.ID) error {
	if !d.comment {
		return fmt.Errorf("document: %s is not a comment object", d.obj.Name())
	}

	return d.SetValue("post", postID.String())
}

var _ vigil.PostSubject = (*PostDocument)(nil)
