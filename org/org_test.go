package org_test

import (
	"testing"

	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/org"
)

func newOrg(t *testing.T, roles []org.Role, opts ...org.Option) *org.Org {
	t.Helper()

	return org.New(id.NewOrgID(), "acme", roles, opts...)
}

func TestBuiltinAdminRole(t *testing.T) {
	o := newOrg(t, nil)

	if !o.HasRole(id.OrgAdminRole) {
		t.Fatal("expected built-in admin role")
	}
	r, ok := o.RoleByCode("admin")
	if !ok || !r.ID.Equal(id.OrgAdminRole) {
		t.Error("admin role should resolve by code")
	}
}

func TestExpandRolesClosure(t *testing.T) {
	a := id.NewRoleID()
	b := id.NewRoleID()
	c := id.NewRoleID()

	o := newOrg(t, []org.Role{
		{ID: a, Code: "editor", Include: []id.ID{b}},
		{ID: b, Code: "reviewer", Include: []id.ID{c}},
		{ID: c, Code: "reader"},
	})

	got := o.ExpandRoles([]id.ID{a})
	if !id.SameSet(got, []id.ID{a, b, c}) {
		t.Errorf("expected closure {a,b,c}, got %v", id.Strings(got))
	}
}

func TestExpandRolesCycleTerminates(t *testing.T) {
	a := id.NewRoleID()
	b := id.NewRoleID()

	o := newOrg(t, []org.Role{
		{ID: a, Code: "a", Include: []id.ID{b}},
		{ID: b, Code: "b", Include: []id.ID{a}},
	})

	got := o.ExpandRoles([]id.ID{a})
	if !id.SameSet(got, []id.ID{a, b}) {
		t.Errorf("expected exactly {a,b} for cyclic graph, got %v", id.Strings(got))
	}
}

func TestExpandRolesDropsUnknown(t *testing.T) {
	a := id.NewRoleID()
	o := newOrg(t, []org.Role{{ID: a, Code: "a"}})

	got := o.ExpandRoles([]id.ID{a, id.NewRoleID()})
	if !id.SameSet(got, []id.ID{a}) {
		t.Errorf("unknown role ids should be dropped, got %v", id.Strings(got))
	}
}

func TestExpandRolesInlinedFastPath(t *testing.T) {
	a := id.NewRoleID()
	b := id.NewRoleID()
	c := id.NewRoleID()

	// Graph walk would only find a; the inlined map wins.
	o := newOrg(t, []org.Role{{ID: a, Code: "a"}},
		org.WithInlinedRoles(map[string][]id.ID{
			a.String(): {b, c},
		}))

	got := o.ExpandRoles([]id.ID{a, id.NewRoleID()})
	if !id.SameSet(got, []id.ID{a, b, c}) {
		t.Errorf("expected inlined closure {a,b,c}, got %v", id.Strings(got))
	}
}

func TestExpandRolesMemoized(t *testing.T) {
	a := id.NewRoleID()
	b := id.NewRoleID()
	o := newOrg(t, []org.Role{
		{ID: a, Code: "a", Include: []id.ID{b}},
		{ID: b, Code: "b"},
	})

	first := o.ExpandRoles([]id.ID{a})
	first[0] = id.NewRoleID() // caller mutation must not poison the memo

	second := o.ExpandRoles([]id.ID{a})
	if !id.SameSet(second, []id.ID{a, b}) {
		t.Errorf("memoized result corrupted: %v", id.Strings(second))
	}

	// Holder order must not change the key.
	reordered := o.ExpandRoles([]id.ID{b, a})
	if !id.SameSet(reordered, []id.ID{a, b}) {
		t.Errorf("unexpected expansion for reordered holder set: %v", id.Strings(reordered))
	}
}

func TestResolveRoles(t *testing.T) {
	a := id.NewRoleID()
	o := newOrg(t, []org.Role{{ID: a, Code: "editor"}})

	got := o.ResolveRoles([]string{a.String(), "editor", "EDITOR", "ghost", id.NewRoleID().String()})
	if !id.SameSet(got, []id.ID{a}) {
		t.Errorf("expected {a} deduplicated, got %v", id.Strings(got))
	}
}

func TestCodesFor(t *testing.T) {
	a := id.NewRoleID()
	o := newOrg(t, []org.Role{{ID: a, Code: "editor"}})

	got := o.CodesFor([]id.ID{a, id.NewRoleID()})
	if len(got) != 1 || got[0] != "editor" {
		t.Errorf("expected [editor], got %v", got)
	}
}
