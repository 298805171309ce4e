package vigil

import (
	"context"

	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/principal"
)

// ResolveOptions tunes one resolution pass.
type ResolveOptions struct {
	// Principal overrides the context's principal for this pass.
	Principal *principal.Principal

	// CustomACL replaces the object default ACL + subject ACL pair.
	CustomACL []access.Entry

	// WithGrants additionally merges the context grant floor and the
	// override as floors into the returned accumulator.
	WithGrants bool
}

// ResolveAccess runs the entry-matching algorithm and returns a fresh
// accumulator. Most callers want Resolve or HasAccess instead; this is the
// raw pass.
func (ac *AccessContext) ResolveAccess(ctx context.Context, opts ResolveOptions) (*access.Access, error) {
	acc := access.NewAccess()

	p := opts.Principal
	if p == nil {
		p = ac.principal
	}
	if p == nil {
		return acc, nil
	}

	// Cross-tenant ACL entries are never honored: a subject from another
	// org contributes nothing, whatever its entries say.
	crossOrg := ac.subject != nil &&
		!ac.subject.OrgID().IsNil() &&
		!ac.subject.OrgID().Equal(p.OrgID)

	if !crossOrg {
		entries := opts.CustomACL
		if entries == nil {
			if ac.object != nil {
				entries = append(entries, ac.object.DefaultACL()...)
			}
			if ac.subject != nil {
				entries = append(entries, ac.subject.ACL()...)
			}
		}

		// Administrators always hold at least update on their own org
		// record, independent of stored ACL.
		if p.IsOrgAdmin() && ac.object != nil && ac.object.Name() == ObjectOrg &&
			ac.subject != nil && ac.subject.SubjectID().Equal(p.OrgID) {
			acc.Merge(access.Update)
		}

		internal, err := ac.resolveEntryRoles(ctx, p, entries)
		if err != nil {
			return nil, err
		}

		for _, e := range entries {
			if e.IsRoleGrant() {
				continue
			}
			if ac.entryMatches(e, p, internal) {
				acc.Merge(e.Allow)
			}
		}
	}

	if opts.WithGrants {
		acc.Merge(ac.effectiveGrant(p))
		if ac.override != nil {
			acc.Merge(*ac.override)
		}
	}

	return acc, nil
}

// resolveEntryRoles computes the internal role set for a pass: the
// context's expanded roles plus roles implied by matching role-grant
// entries, expanded again so granted roles pull in their inclusions.
func (ac *AccessContext) resolveEntryRoles(ctx context.Context, p *principal.Principal, entries []access.Entry) ([]id.ID, error) {
	internal, err := ac.Roles(ctx)
	if err != nil {
		return nil, err
	}

	granted := false
	for _, e := range entries {
		if !e.IsRoleGrant() {
			continue
		}
		if ac.entryMatches(e, p, internal) && !id.InSlice(internal, e.Role) {
			internal = append(internal, e.Role)
			granted = true
		}
	}

	if granted {
		o, err := ac.org(ctx)
		if err != nil {
			return nil, err
		}
		if o != nil {
			internal = o.ExpandRoles(internal)
		}
	}

	return internal, nil
}

// entryMatches evaluates one entry's target/condition against a principal.
func (ac *AccessContext) entryMatches(e access.Entry, p *principal.Principal, internalRoles []id.ID) bool {
	switch e.Type {
	case access.TargetAccount:
		if e.Target.IsNil() {
			return false
		}
		// An Anonymous-targeted entry is a universal floor; a
		// Public-targeted one excludes the anonymous identity.
		if e.Target.Equal(id.Anonymous) {
			return true
		}
		if e.Target.Equal(id.Public) {
			return !p.IsAnonymous()
		}

		return e.Target.Equal(p.ID)

	case access.TargetOrgRole:
		if e.Target.IsNil() {
			return false
		}

		return id.InSlice(internalRoles, e.Target) || p.HasRole(e.Target)

	case access.TargetSelf:
		return ac.object != nil && ac.object.Name() == ObjectAccount &&
			ac.subject != nil && ac.subject.SubjectID().Equal(p.ID)

	case access.TargetOwner:
		return ac.object != nil && ac.object.HasOwner() &&
			ac.subject != nil && ac.subject.OwnerID().Equal(p.ID)

	case access.TargetCreator:
		return ac.object != nil && ac.object.HasCreator() &&
			ac.subject != nil && ac.subject.CreatorID().Equal(p.ID)

	default:
		// Access and Expression entries are reserved wire values.
		return false
	}
}

func (ac *AccessContext) effectiveGrant(p *principal.Principal) access.Level {
	g := ac.grant
	if p != nil {
		g = access.MaxLevel(g, p.Grant)
	}

	return g
}

// Roles returns the expanded role set for this context: the union of the
// principal's roles and the context's explicit roles, closed over the
// org's role graph. Memoized until the context is invalidated.
func (ac *AccessContext) Roles(ctx context.Context) ([]id.ID, error) {
	if ac.rolesMemo != nil {
		return append([]id.ID(nil), ac.rolesMemo...), nil
	}

	var holder []id.ID
	if ac.principal != nil {
		holder = append(holder, ac.principal.Roles...)
	}
	holder = id.Union(holder, ac.roles)

	o, err := ac.org(ctx)
	if err != nil {
		return nil, err
	}
	if o != nil {
		holder = o.ExpandRoles(holder)
	}
	ac.rolesMemo = holder

	return append([]id.ID(nil), holder...), nil
}

// RoleCodes returns the codes of the context's expanded roles.
func (ac *AccessContext) RoleCodes(ctx context.Context) ([]string, error) {
	roles, err := ac.Roles(ctx)
	if err != nil {
		return nil, err
	}
	o, err := ac.org(ctx)
	if err != nil || o == nil {
		return nil, err
	}

	return o.CodesFor(roles), nil
}

// HasRole reports whether the context's expanded role set holds role.
func (ac *AccessContext) HasRole(ctx context.Context, role id.ID) (bool, error) {
	roles, err := ac.Roles(ctx)
	if err != nil {
		return false, err
	}

	return id.InSlice(roles, role), nil
}

// Resolve returns the effective resolved level: the override when one is
// set, otherwise the maximum of the grant floor and the naturally resolved
// level. Memoized; force recomputes.
func (ac *AccessContext) Resolve(ctx context.Context, force bool) (access.Level, error) {
	// Override replaces the natural result entirely. This is a
	// privileged bypass, not a floor.
	if ac.override != nil {
		return *ac.override, nil
	}

	if force || ac.accessMemo == nil {
		acc, err := ac.ResolveAccess(ctx, ResolveOptions{})
		if err != nil {
			return access.None, err
		}
		ac.accessMemo = acc
	}

	return access.MaxLevel(ac.effectiveGrant(ac.principal), ac.accessMemo.Resolved()), nil
}

// HasAccess reports whether the effective resolved level satisfies l.
func (ac *AccessContext) HasAccess(ctx context.Context, l access.Level) (bool, error) {
	resolved, err := ac.Resolve(ctx, false)
	if err != nil {
		return false, err
	}

	return resolved >= access.Clamp(l, true), nil
}

// CanCreate reports whether the principal may create instances of the
// context's object: a binary floor check against the object's create ACL.
// A custom ACL merges with the create ACL, or replaces it when replace is
// set.
func (ac *AccessContext) CanCreate(ctx context.Context, customACL []access.Entry, replace bool) (bool, error) {
	if ac.object == nil {
		return false, nil
	}

	entries := ac.object.CreateACL()
	if customACL != nil {
		if replace {
			entries = customACL
		} else {
			entries = access.MergeAndSanitizeEntries(entries, customACL)
		}
	}
	if entries == nil {
		// Distinguish "empty create ACL" from "no custom ACL supplied".
		entries = []access.Entry{}
	}

	acc, err := ac.ResolveAccess(ctx, ResolveOptions{CustomACL: entries, WithGrants: true})
	if err != nil {
		return false, err
	}

	return acc.HasAccess(access.Min), nil
}
