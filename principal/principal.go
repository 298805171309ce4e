// Package principal models the calling identity an operation runs as.
package principal

import (
	"fmt"

	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/id"
)

// Principal is the authenticated (or anonymous) identity performing an
// operation. Roles holds the identity's directly assigned role ids; the
// transitive closure is computed during resolution, not here.
type Principal struct {
	ID    id.ID
	OrgID id.ID
	Roles []id.ID

	// Grant is a floor merged into every resolution for this principal.
	Grant access.Level

	anonymous bool
}

// New returns a principal for the given account in the given org.
func New(orgID, accountID id.ID) (*Principal, error) {
	if orgID.IsNil() {
		return nil, fmt.Errorf("principal: org id required")
	}
	if accountID.IsNil() || accountID.Prefix() != id.PrefixAccount {
		return nil, fmt.Errorf("principal: account id required, got %q", accountID.String())
	}

	return &Principal{
		ID:        accountID,
		OrgID:     orgID,
		anonymous: accountID.Equal(id.Anonymous),
	}, nil
}

// SynthesizeAnonymous returns the anonymous principal for an org. It holds
// no roles and no grant floor.
func SynthesizeAnonymous(orgID id.ID) *Principal {
	return &Principal{
		ID:        id.Anonymous,
		OrgID:     orgID,
		anonymous: true,
	}
}

// SynthesizeAccount builds a principal for an account without loading it,
// carrying the supplied role set. Used by callers that already hold the
// account's role list.
func SynthesizeAccount(orgID, accountID id.ID, roles []id.ID) *Principal {
	return &Principal{
		ID:        accountID,
		OrgID:     orgID,
		Roles:     append([]id.ID(nil), roles...),
		anonymous: accountID.Equal(id.Anonymous),
	}
}

// IsAnonymous reports whether this is the anonymous identity.
func (p *Principal) IsAnonymous() bool {
	return p == nil || p.anonymous
}

// IsOrgAdmin reports whether the principal directly holds the built-in
// administrator role.
func (p *Principal) IsOrgAdmin() bool {
	return p.HasRole(id.OrgAdminRole)
}

// HasRole reports whether the principal directly holds the given role.
func (p *Principal) HasRole(role id.ID) bool {
	if p == nil {
		return false
	}

	return id.InSlice(p.Roles, role)
}

// Clone returns a copy with an independent role slice.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}

	cp := *p
	cp.Roles = append([]id.ID(nil), p.Roles...)

	return &cp
}
