package vigil_test

import (
	"context"
	"testing"

	"github.com/vigilhq/vigil"
	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/document"
	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/principal"
)

func resolveLevel(t *testing.T, ac *vigil.AccessContext) access.Level {
	t.Helper()

	lvl, err := ac.Resolve(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}

	return lvl
}

func TestResolveDirectEntry(t *testing.T) {
	f := newFixture(t)
	p := f.account(t)

	subject := f.subjectWithACL(t, []access.Entry{entry(p.ID, access.Update)})
	ac := f.context(t, p, subject)

	if got := resolveLevel(t, ac); got != access.Update {
		t.Fatalf("resolved = %v, want update", got)
	}
}

func TestResolveAnonymousEntryIsUniversal(t *testing.T) {
	f := newFixture(t)

	subject := f.subjectWithACL(t, []access.Entry{entry(id.Anonymous, access.Read)})

	for name, p := range map[string]*principal.Principal{
		"anonymous": f.anonymous(),
		"account":   f.account(t),
	} {
		ac := f.context(t, p, subject)
		if got := resolveLevel(t, ac); got != access.Read {
			t.Fatalf("%s resolved = %v, want read", name, got)
		}
	}
}

func TestResolvePublicExcludesAnonymous(t *testing.T) {
	f := newFixture(t)

	subject := f.subjectWithACL(t, []access.Entry{entry(id.Public, access.Read)})

	if got := resolveLevel(t, f.context(t, f.account(t), subject)); got != access.Read {
		t.Fatalf("account resolved = %v, want read", got)
	}
	if got := resolveLevel(t, f.context(t, f.anonymous(), subject)); got != access.None {
		t.Fatalf("anonymous resolved = %v, want none", got)
	}
}

func TestResolveCrossOrgIsolation(t *testing.T) {
	f := newFixture(t)

	outsider := principal.SynthesizeAccount(id.NewOrgID(), id.NewAccountID(), nil)
	subject := f.subjectWithACL(t, []access.Entry{
		entry(id.Anonymous, access.Read),
		entry(outsider.ID, access.Delete),
	})

	ac := f.context(t, outsider, subject)
	if got := resolveLevel(t, ac); got != access.None {
		t.Fatalf("cross-org resolved = %v, want none", got)
	}
}

func TestResolveOverrideReplaces(t *testing.T) {
	f := newFixture(t)
	p := f.account(t)

	subject := f.subjectWithACL(t, []access.Entry{entry(p.ID, access.Delete)})
	ac := f.context(t, p, subject, vigil.WithOverride(access.Read))

	// The override replaces the natural delete, it is not a floor.
	if got := resolveLevel(t, ac); got != access.Read {
		t.Fatalf("resolved = %v, want read", got)
	}

	ac.ClearOverride()
	if got := resolveLevel(t, ac); got != access.Delete {
		t.Fatalf("after clear resolved = %v, want delete", got)
	}
}

func TestResolveGrantIsFloor(t *testing.T) {
	f := newFixture(t)
	p := f.account(t)

	subject := f.subjectWithACL(t, []access.Entry{entry(p.ID, access.Delete)})
	ac := f.context(t, p, subject, vigil.WithGrant(access.Read))

	if got := resolveLevel(t, ac); got != access.Delete {
		t.Fatalf("resolved = %v, grant must not cap the natural level", got)
	}

	none := f.context(t, p, f.subjectWithACL(t, nil), vigil.WithGrant(access.Read))
	if got := resolveLevel(t, none); got != access.Read {
		t.Fatalf("resolved = %v, want the grant floor", got)
	}
}

func TestResolveRoleEntryViaInclusion(t *testing.T) {
	f := newFixture(t)

	// Entry targets viewer; the principal holds editor, which includes
	// viewer through the role graph.
	p := f.account(t, f.editorRole)
	subject := f.subjectWithACL(t, []access.Entry{roleEntry(f.viewerRole, access.Share)})

	ac := f.context(t, p, subject)
	if got := resolveLevel(t, ac); got != access.Share {
		t.Fatalf("resolved = %v, want share", got)
	}

	ac2 := f.context(t, f.account(t), subject)
	if got := resolveLevel(t, ac2); got != access.None {
		t.Fatalf("unrelated account resolved = %v, want none", got)
	}
}

func TestResolveRoleGrantEntry(t *testing.T) {
	f := newFixture(t)
	p := f.account(t)

	// The subject grants the principal the editor role; a second entry
	// gives viewer (reached through editor's inclusion) share access.
	subject := f.subjectWithACL(t, []access.Entry{
		roleGrant(p.ID, f.editorRole),
		roleEntry(f.viewerRole, access.Share),
	})

	ac := f.context(t, p, subject)
	if got := resolveLevel(t, ac); got != access.Share {
		t.Fatalf("resolved = %v, want share", got)
	}
}

func TestResolveOwnerAndCreator(t *testing.T) {
	f := newFixture(t)
	p := f.account(t)

	d := f.obj.NewSubject(f.orgID)
	if err := d.SetValue("owner", p.ID.String()); err != nil {
		t.Fatal(err)
	}
	if err := d.SetValue("acl", access.EntriesToAny([]access.Entry{
		{Type: access.TargetOwner, Allow: access.Delete},
	})); err != nil {
		t.Fatal(err)
	}

	if got := resolveLevel(t, f.context(t, p, d)); got != access.Delete {
		t.Fatalf("owner resolved = %v, want delete", got)
	}
	if got := resolveLevel(t, f.context(t, f.account(t), d)); got != access.None {
		t.Fatalf("non-owner resolved = %v, want none", got)
	}
}

func TestOrgAdminFloorOnOwnOrg(t *testing.T) {
	f := newFixture(t)

	orgDoc, err := document.NewObject(document.ObjectConfig{
		Name:       "org",
		Collection: f.store.Collection("orgs"),
	})
	if err != nil {
		t.Fatal(err)
	}
	f.registry.RegisterObject(orgDoc)

	admin := f.account(t, id.OrgAdminRole)

	// Fake the org record subject: its id is the org id.
	raw := map[string]any{"_id": f.orgID.String(), "org": f.orgID.String()}
	subject, err := orgDoc.SubjectFromRaw(raw)
	if err != nil {
		t.Fatal(err)
	}

	if got := resolveLevel(t, f.context(t, admin, subject)); got != access.Update {
		t.Fatalf("admin resolved = %v, want update", got)
	}
	if got := resolveLevel(t, f.context(t, f.account(t), subject)); got != access.None {
		t.Fatalf("member resolved = %v, want none", got)
	}
}

func TestCanCreate(t *testing.T) {
	f := newFixture(t)

	obj, err := document.NewObject(document.ObjectConfig{
		Name:       "report",
		Collection: f.store.Collection("reports"),
		CreateACL:  []access.Entry{roleEntry(f.editorRole, access.Update)},
	})
	if err != nil {
		t.Fatal(err)
	}
	f.registry.RegisterObject(obj)

	editor := f.context(t, f.account(t, f.editorRole), nil, vigil.WithObject(obj))
	ok, err := editor.CanCreate(context.Background(), nil, false)
	if err != nil || !ok {
		t.Fatalf("editor CanCreate = %v, %v", ok, err)
	}

	member := f.context(t, f.account(t), nil, vigil.WithObject(obj))
	ok, err = member.CanCreate(context.Background(), nil, false)
	if err != nil || ok {
		t.Fatalf("member CanCreate = %v, %v", ok, err)
	}

	// A replacing custom ACL ignores the object create ACL entirely.
	ok, err = editor.CanCreate(context.Background(), []access.Entry{}, true)
	if err != nil || ok {
		t.Fatalf("empty replacement CanCreate = %v, %v", ok, err)
	}
}

func TestRolesExpansionMemoized(t *testing.T) {
	f := newFixture(t)
	p := f.account(t, f.editorRole)
	ac := f.context(t, p, f.subjectWithACL(t, nil))

	roles, err := ac.Roles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !id.InSlice(roles, f.editorRole) || !id.InSlice(roles, f.viewerRole) {
		t.Fatalf("roles = %v, want editor and viewer", id.Strings(roles))
	}

	// The returned slice is a copy; mutating it must not poison the memo.
	roles[0] = id.NewRoleID()
	again, err := ac.Roles(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !id.InSlice(again, f.editorRole) {
		t.Fatal("memoized roles were mutated through the returned slice")
	}
}
