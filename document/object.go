// Package document provides the reference subject implementation driven
// by the vigil engine: schema-described documents persisted as operator
// deltas with sequence, version, acl, and index counters.
package document

import (
	"context"
	"fmt"
	"strings"

	"github.com/vigilhq/vigil"
	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/hook"
	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/storage"
)

// Validator checks a document before it is persisted.
type Validator func(ctx context.Context, d *Document) error

// NodeConfig declares one schema property.
type NodeConfig struct {
	ID      id.ID
	Path    string
	Array   bool
	Indexed bool
	Unique  bool

	// AutoCreate names a dependent object materialized when the property
	// is empty on create.
	AutoCreate *Object

	// CascadeDelete queues deletion of referenced remote documents when
	// this document is deleted.
	CascadeDelete bool
}

// Node is one property of an object's schema.
type Node struct {
	cfg        NodeConfig
	autoCreate vigil.Object
}

func (n *Node) NodeID() id.ID         { return n.cfg.ID }
func (n *Node) Path() string          { return n.cfg.Path }
func (n *Node) IsArray() bool         { return n.cfg.Array }
func (n *Node) IsIndexed() bool       { return n.cfg.Indexed }
func (n *Node) IsUnique() bool        { return n.cfg.Unique }
func (n *Node) IsCascadeDelete() bool { return n.cfg.CascadeDelete }

func (n *Node) AutoCreateObject() (vigil.Object, bool) {
	if n.autoCreate == nil {
		return nil, false
	}

	return n.autoCreate, true
}

var _ vigil.SchemaNode = (*Node)(nil)

// ObjectConfig declares an object type.
type ObjectConfig struct {
	Name       string
	Collection storage.Collection

	DefaultACL []access.Entry
	CreateACL  []access.Entry

	Versioned bool
	Unmanaged bool
	Owner     bool
	Creator   bool
	Auditing  bool
	Migrating bool

	// Strict rejects writes to undeclared paths.
	Strict bool

	Nodes    []NodeConfig
	Validate Validator
}

// Object is the schema/model handle for one document kind.
type Object struct {
	cfg    ObjectConfig
	hooks  *hook.Registry
	nodes  []*Node
	byPath map[string]*Node
	byID   map[string]*Node
}

// NewObject builds an object from its configuration.
func NewObject(cfg ObjectConfig) (*Object, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("document: object name required")
	}

	o := &Object{
		cfg:    cfg,
		hooks:  hook.NewRegistry(),
		byPath: make(map[string]*Node),
		byID:   make(map[string]*Node),
	}
	for _, nc := range cfg.Nodes {
		if nc.Path == "" {
			return nil, fmt.Errorf("document: %s: node path required", cfg.Name)
		}
		if _, dup := o.byPath[nc.Path]; dup {
			return nil, fmt.Errorf("document: %s: duplicate node path %s", cfg.Name, nc.Path)
		}
		if nc.ID.IsNil() {
			nc.ID = id.NewPropertyID()
		}
		n := &Node{cfg: nc}
		if nc.AutoCreate != nil {
			n.autoCreate = nc.AutoCreate
		}
		o.nodes = append(o.nodes, n)
		o.byPath[nc.Path] = n
		o.byID[nc.ID.String()] = n
	}

	return o, nil
}

func (o *Object) Name() string { return o.cfg.Name }

func (o *Object) DefaultACL() []access.Entry { return o.cfg.DefaultACL }
func (o *Object) CreateACL() []access.Entry  { return o.cfg.CreateACL }

func (o *Object) IsVersioned() bool { return o.cfg.Versioned }
func (o *Object) IsUnmanaged() bool { return o.cfg.Unmanaged }
func (o *Object) HasOwner() bool    { return o.cfg.Owner }
func (o *Object) HasCreator() bool  { return o.cfg.Creator }
func (o *Object) Auditing() bool    { return o.cfg.Auditing }
func (o *Object) Migrating() bool   { return o.cfg.Migrating }

func (o *Object) StrictPaths() bool { return o.cfg.Strict }

func (o *Object) Collection() storage.Collection { return o.cfg.Collection }

// RegisterHook attaches a lifecycle hook to this object type.
func (o *Object) RegisterHook(name hook.Name, fn hook.Func) {
	o.hooks.Register(name, fn)
}

func (o *Object) FireHook(ctx context.Context, name hook.Name, ev *hook.Event) error {
	return o.hooks.Fire(ctx, name, ev)
}

func (o *Object) Node(path string) (vigil.SchemaNode, bool) {
	n, ok := o.byPath[path]
	if !ok {
		return nil, false
	}

	return n, true
}

func (o *Object) NodeByID(propID id.ID) (vigil.SchemaNode, bool) {
	n, ok := o.byID[propID.String()]
	if !ok {
		return nil, false
	}

	return n, true
}

func (o *Object) Nodes() []vigil.SchemaNode {
	out := make([]vigil.SchemaNode, len(o.nodes))
	for i, n := range o.nodes {
		out[i] = n
	}

	return out
}

func (o *Object) RequiredACLPaths() []string {
	return []string{"owner", "creator", "org"}
}

func (o *Object) NewSubject(orgID id.ID) vigil.Subject {
	return newDocument(o, orgID)
}

func (o *Object) SubjectFromRaw(raw storage.M) (vigil.Subject, error) {
	return fromRaw(o, raw)
}

var _ vigil.Object = (*Object)(nil)

// rootOf returns the first segment of a dotted path.
func rootOf(path string) string {
	if i := strings.IndexByte(path, '.'); i > 0 {
		return path[:i]
	}

	return path
}
