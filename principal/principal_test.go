package principal_test

import (
	"testing"

	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/principal"
)

func TestNew(t *testing.T) {
	orgID := id.NewOrgID()
	acctID := id.NewAccountID()

	p, err := principal.New(orgID, acctID)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !p.ID.Equal(acctID) || !p.OrgID.Equal(orgID) {
		t.Error("identity mismatch")
	}
	if p.IsAnonymous() {
		t.Error("regular account should not be anonymous")
	}
}

func TestNewRejectsBadIDs(t *testing.T) {
	orgID := id.NewOrgID()

	if _, err := principal.New(id.Nil, id.NewAccountID()); err == nil {
		t.Error("expected error for nil org")
	}
	if _, err := principal.New(orgID, id.Nil); err == nil {
		t.Error("expected error for nil account")
	}
	if _, err := principal.New(orgID, id.NewRoleID()); err == nil {
		t.Error("expected error for non-account id")
	}
}

func TestSynthesizeAnonymous(t *testing.T) {
	p := principal.SynthesizeAnonymous(id.NewOrgID())
	if !p.IsAnonymous() {
		t.Error("expected anonymous")
	}
	if !p.ID.Equal(id.Anonymous) {
		t.Errorf("expected anonymous sentinel id, got %s", p.ID)
	}
	if p.IsOrgAdmin() {
		t.Error("anonymous should never be org admin")
	}
}

func TestNewDetectsAnonymousSentinel(t *testing.T) {
	p, err := principal.New(id.NewOrgID(), id.Anonymous)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !p.IsAnonymous() {
		t.Error("principal built from the anonymous sentinel should be anonymous")
	}
}

func TestRoles(t *testing.T) {
	role := id.NewRoleID()
	p := principal.SynthesizeAccount(id.NewOrgID(), id.NewAccountID(), []id.ID{role})

	if !p.HasRole(role) {
		t.Error("expected held role")
	}
	if p.HasRole(id.NewRoleID()) {
		t.Error("unexpected role")
	}
	if p.IsOrgAdmin() {
		t.Error("not an admin")
	}

	p.Roles = append(p.Roles, id.OrgAdminRole)
	if !p.IsOrgAdmin() {
		t.Error("expected org admin after granting the built-in role")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	role := id.NewRoleID()
	p := principal.SynthesizeAccount(id.NewOrgID(), id.NewAccountID(), []id.ID{role})

	cp := p.Clone()
	cp.Roles = append(cp.Roles, id.OrgAdminRole)

	if p.IsOrgAdmin() {
		t.Error("mutating the clone should not affect the original")
	}
}

func TestNilReceivers(t *testing.T) {
	var p *principal.Principal
	if !p.IsAnonymous() {
		t.Error("nil principal should read as anonymous")
	}
	if p.HasRole(id.NewRoleID()) {
		t.Error("nil principal holds no roles")
	}
	if p.Clone() != nil {
		t.Error("clone of nil should be nil")
	}
}
