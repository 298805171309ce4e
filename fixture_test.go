package vigil_test

import (
	"testing"

	"github.com/vigilhq/vigil"
	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/document"
	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/org"
	"github.com/vigilhq/vigil/principal"
	"github.com/vigilhq/vigil/storage/memory"
)

// fixture wires an engine against the in-memory backend with one org and
// one document object.
type fixture struct {
	eng      *vigil.Engine
	registry *vigil.StaticRegistry
	store    *memory.Store
	org      *org.Org
	orgID    id.ID

	editorRole id.ID
	viewerRole id.ID

	obj *document.Object
}

func newFixture(t *testing.T, opts ...vigil.Option) *fixture {
	t.Helper()

	f := &fixture{
		store:      memory.NewStore(),
		orgID:      id.NewOrgID(),
		editorRole: id.NewRoleID(),
		viewerRole: id.NewRoleID(),
	}

	// editor includes viewer.
	f.org = org.New(f.orgID, "acme", []org.Role{
		{ID: f.editorRole, Code: "editor", Include: []id.ID{f.viewerRole}},
		{ID: f.viewerRole, Code: "viewer"},
	})

	obj, err := document.NewObject(document.ObjectConfig{
		Name:       "project",
		Collection: f.store.Collection("projects"),
		Creator:    true,
		Owner:      true,
		Auditing:   true,
		Nodes: []document.NodeConfig{
			{Path: "slug", Indexed: true, Unique: true},
			{Path: "tags", Array: true, Indexed: true},
			{Path: "title"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	f.obj = obj

	f.registry = vigil.NewStaticRegistry()
	f.registry.RegisterOrg(f.org)
	f.registry.RegisterObject(obj)

	all := append([]vigil.Option{vigil.WithRegistry(f.registry)}, opts...)
	f.eng, err = vigil.NewEngine(all...)
	if err != nil {
		t.Fatal(err)
	}

	return f
}

func (f *fixture) account(t *testing.T, roles ...id.ID) *principal.Principal {
	t.Helper()

	return principal.SynthesizeAccount(f.orgID, id.NewAccountID(), roles)
}

func (f *fixture) anonymous() *principal.Principal {
	return principal.SynthesizeAnonymous(f.orgID)
}

// subjectWithACL builds a persisted-looking subject carrying entries.
func (f *fixture) subjectWithACL(t *testing.T, entries []access.Entry) vigil.Subject {
	t.Helper()

	d := f.obj.NewSubject(f.orgID)
	if err := d.SetValue("acl", access.EntriesToAny(entries)); err != nil {
		t.Fatal(err)
	}

	return d
}

func (f *fixture) context(t *testing.T, p *principal.Principal, s vigil.Subject, opts ...vigil.ContextOption) *vigil.AccessContext {
	t.Helper()

	ac, err := f.eng.Context(p, s, opts...)
	if err != nil {
		t.Fatal(err)
	}

	return ac
}

func entry(target id.ID, allow access.Level) access.Entry {
	return access.Entry{Type: access.TargetAccount, Target: target, Allow: allow}
}

func roleEntry(roleID id.ID, allow access.Level) access.Entry {
	return access.Entry{Type: access.TargetOrgRole, Target: roleID, Allow: allow}
}

func roleGrant(target, roleID id.ID) access.Entry {
	return access.Entry{Type: access.TargetAccount, Target: target, Role: roleID}
}
