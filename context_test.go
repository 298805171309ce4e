package vigil_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/vigilhq/vigil"
	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/id"
)

func TestContextRequiresPrincipal(t *testing.T) {
	f := newFixture(t)

	if _, err := f.eng.Context(nil, f.obj.NewSubject(f.orgID)); !errors.Is(err, vigil.ErrInvalidArgument) {
		t.Fatalf("nil principal: %v", err)
	}
}

func TestContextRejectsObjectMismatch(t *testing.T) {
	f := newFixture(t)
	p := f.account(t)

	other := newFixture(t)
	_, err := f.eng.Context(p, f.obj.NewSubject(f.orgID), vigil.WithObject(other.obj))
	if err != nil {
		// Same object name, so the handles are considered compatible.
		t.Fatalf("same-name object: %v", err)
	}
}

func TestCopyInheritsState(t *testing.T) {
	f := newFixture(t)
	p := f.account(t)
	ctx := context.Background()

	parent := f.context(t, p, f.obj.NewSubject(f.orgID),
		vigil.WithGrant(access.Read),
		vigil.WithOverride(access.Update),
		vigil.WithRoles(f.editorRole),
		vigil.WithDryRun(true),
		vigil.WithContextOption("origin", "import"),
	)
	parent.PushResource("batch")

	child, err := parent.Copy(f.obj.NewSubject(f.orgID), true)
	if err != nil {
		t.Fatal(err)
	}

	if child.Grant() != access.Read {
		t.Fatalf("grant = %v", child.Grant())
	}
	if lvl, ok := child.Override(); !ok || lvl != access.Update {
		t.Fatalf("override = %v %v", lvl, ok)
	}
	if !child.DryRun() {
		t.Fatal("dry-run not inherited")
	}
	if v, ok := child.Option("origin"); !ok || v != "import" {
		t.Fatalf("option bag = %v %v", v, ok)
	}
	if child.Resource() != "batch" {
		t.Fatalf("resource = %q", child.Resource())
	}

	roles, err := child.Roles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !id.InSlice(roles, f.editorRole) {
		t.Fatal("explicit role not inherited")
	}

	// Without inheritRoles the explicit role stays behind.
	bare, err := parent.Copy(f.obj.NewSubject(f.orgID), false)
	if err != nil {
		t.Fatal(err)
	}
	roles, err = bare.Roles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if id.InSlice(roles, f.editorRole) {
		t.Fatal("role inherited without inheritRoles")
	}
}

func TestSetPrincipalInvalidatesMemo(t *testing.T) {
	f := newFixture(t)
	allowed := f.account(t)
	denied := f.account(t)
	ctx := context.Background()

	subject := f.subjectWithACL(t, []access.Entry{entry(allowed.ID, access.Update)})
	ac := f.context(t, allowed, subject)

	lvl, err := ac.Resolve(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if lvl != access.Update {
		t.Fatalf("allowed resolved = %v", lvl)
	}

	if err := ac.SetPrincipal(denied); err != nil {
		t.Fatal(err)
	}
	lvl, err = ac.Resolve(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if lvl != access.None {
		t.Fatalf("stale memo survived principal swap: %v", lvl)
	}
}

func TestDisposeDropsReferences(t *testing.T) {
	f := newFixture(t)
	p := f.account(t)

	ac := f.context(t, p, f.obj.NewSubject(f.orgID))
	ac.SetOption("k", 1)
	ac.Dispose()

	if ac.Subject() != nil || ac.Object() != nil {
		t.Fatal("dispose must drop subject and object")
	}
	if _, ok := ac.Option("k"); ok {
		t.Fatal("dispose must clear the option bag")
	}
}

func TestContextMarshalsToNull(t *testing.T) {
	f := newFixture(t)
	p := f.account(t)

	ac := f.context(t, p, f.obj.NewSubject(f.orgID))
	b, err := json.Marshal(ac)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "null" {
		t.Fatalf("marshaled = %s", b)
	}

	obj := ac.ToObject()
	if obj["principal"] != p.ID.String() {
		t.Fatalf("ToObject principal = %v", obj["principal"])
	}
}

func TestStopWaitsForBackgroundWork(t *testing.T) {
	f := newFixture(t)
	p := f.account(t)
	ctx := context.Background()

	subject := f.mustCreate(t, p, nil)
	del := f.context(t, p, subject, vigil.WithMethod(vigil.MethodDelete))
	if _, err := del.Save(ctx, vigil.SaveOptions{}); err != nil {
		t.Fatal(err)
	}

	if err := f.eng.Stop(ctx); err != nil {
		t.Fatal(err)
	}
}
