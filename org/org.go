// Package org models a tenant org and its role-inclusion graph.
//
// Role sets are expanded to their transitive closure during access
// resolution. Expansion results are memoized per holder-role set; the memo
// is owned by the Org value, so replacing the org after a role change
// drops every cached expansion at once.
package org

import (
	"sort"
	"strings"
	"time"

	"github.com/viccon/sturdyc"

	"github.com/vigilhq/vigil/id"
)

// Role is one node of the org's role graph. Include lists the roles this
// role implies; closure over Include yields the full expanded set.
type Role struct {
	ID      id.ID
	Code    string
	Name    string
	Include []id.ID
}

// Org is a tenant with its role graph.
type Org struct {
	ID   id.ID
	Code string
	Name string

	roles   []Role
	byID    map[string]Role
	byCode  map[string]Role
	inlined map[string][]id.ID

	memo *sturdyc.Client[[]id.ID]
}

// Option configures an Org.
type Option func(*Org)

// WithInlinedRoles supplies a precomputed closure map (role id string to
// full expanded set) that lets expansion skip the graph walk.
func WithInlinedRoles(inlined map[string][]id.ID) Option {
	return func(o *Org) {
		o.inlined = inlined
	}
}

// New builds an org from its role graph. The built-in administrator role is
// added if the supplied graph does not already define it.
func New(orgID id.ID, code string, roles []Role, opts ...Option) *Org {
	o := &Org{
		ID:     orgID,
		Code:   code,
		byID:   make(map[string]Role),
		byCode: make(map[string]Role),
		memo: sturdyc.New[[]id.ID](512, 1, 5*time.Minute, 10,
			sturdyc.WithEvictionInterval(time.Minute),
		),
	}

	hasAdmin := false
	for _, r := range roles {
		if r.ID.Equal(id.OrgAdminRole) {
			hasAdmin = true
		}
	}
	if !hasAdmin {
		roles = append([]Role{{ID: id.OrgAdminRole, Code: "admin", Name: "Administrator"}}, roles...)
	}

	o.roles = roles
	for _, r := range roles {
		o.byID[r.ID.String()] = r
		if r.Code != "" {
			o.byCode[strings.ToLower(r.Code)] = r
		}
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Roles returns the org's role graph.
func (o *Org) Roles() []Role {
	return o.roles
}

// RoleByID returns the role record for an id.
func (o *Org) RoleByID(roleID id.ID) (Role, bool) {
	r, ok := o.byID[roleID.String()]

	return r, ok
}

// RoleByCode returns the role record for a case-insensitive code.
func (o *Org) RoleByCode(code string) (Role, bool) {
	r, ok := o.byCode[strings.ToLower(code)]

	return r, ok
}

// HasRole reports whether the org defines the given role.
func (o *Org) HasRole(roleID id.ID) bool {
	_, ok := o.byID[roleID.String()]

	return ok
}

// ResolveRoles maps role id strings and role codes to role ids.
// Unresolvable values are silently dropped.
func (o *Org) ResolveRoles(refs []string) []id.ID {
	out := make([]id.ID, 0, len(refs))
	for _, ref := range refs {
		if parsed, err := id.ParseWithPrefix(ref, id.PrefixRole); err == nil {
			if o.HasRole(parsed) && !id.InSlice(out, parsed) {
				out = append(out, parsed)
			}

			continue
		}
		if r, ok := o.RoleByCode(ref); ok && !id.InSlice(out, r.ID) {
			out = append(out, r.ID)
		}
	}

	return out
}

// CodesFor returns the codes of the given roles, skipping unknown ids and
// roles without a code.
func (o *Org) CodesFor(roleIDs []id.ID) []string {
	out := make([]string, 0, len(roleIDs))
	for _, roleID := range roleIDs {
		if r, ok := o.byID[roleID.String()]; ok && r.Code != "" {
			out = append(out, r.Code)
		}
	}

	return out
}

// ExpandRoles returns the transitive closure of the holder's role set over
// this org's graph, memoized per holder set.
func (o *Org) ExpandRoles(holder []id.ID) []id.ID {
	if len(holder) == 0 {
		return nil
	}

	key := memoKey(holder)
	if cached, ok := o.memo.Get(key); ok {
		return append([]id.ID(nil), cached...)
	}

	expanded := ExpandRoles(o.roles, holder, o.inlined)
	o.memo.Set(key, expanded)

	return append([]id.ID(nil), expanded...)
}

func memoKey(holder []id.ID) string {
	keys := id.Strings(holder)
	sort.Strings(keys)

	return strings.Join(keys, ",")
}

// ExpandRoles computes the transitive closure of holder over the role
// graph. When an inlined closure map is supplied the walk is skipped and
// each held role contributes itself plus its precomputed closure. Cyclic
// Include graphs terminate; role ids with no matching record are dropped.
func ExpandRoles(roles []Role, holder []id.ID, inlined map[string][]id.ID) []id.ID {
	if inlined != nil {
		var out []id.ID
		for _, roleID := range holder {
			closure, ok := inlined[roleID.String()]
			if !ok {
				continue
			}
			if !id.InSlice(out, roleID) {
				out = append(out, roleID)
			}
			for _, implied := range closure {
				if !id.InSlice(out, implied) {
					out = append(out, implied)
				}
			}
		}

		return out
	}

	byID := make(map[string]Role, len(roles))
	for _, r := range roles {
		byID[r.ID.String()] = r
	}

	var (
		out   []id.ID
		visit func(roleID id.ID)
	)
	visit = func(roleID id.ID) {
		r, ok := byID[roleID.String()]
		if !ok || id.InSlice(out, roleID) {
			return
		}
		out = append(out, roleID)
		for _, included := range r.Include {
			visit(included)
		}
	}

	for _, roleID := range holder {
		visit(roleID)
	}

	return out
}
