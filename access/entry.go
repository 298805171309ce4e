package access

import (
	"fmt"

	"github.com/vigilhq/vigil/id"
)

// EntryType discriminates how an ACL entry selects the principals it
// applies to.
type EntryType int

// Entry target kinds. Access and Expression are reserved wire values that
// resolution never matches.
const (
	TargetAccount EntryType = iota + 1
	TargetSelf
	TargetOrgRole
	TargetOwner
	TargetCreator
	TargetAccess
	TargetExpression
)

var entryTypeNames = map[EntryType]string{
	TargetAccount:    "account",
	TargetSelf:       "self",
	TargetOrgRole:    "role",
	TargetOwner:      "owner",
	TargetCreator:    "creator",
	TargetAccess:     "access",
	TargetExpression: "expression",
}

// String returns the lowercase label for the entry type.
func (t EntryType) String() string {
	if name, ok := entryTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("entrytype(%d)", int(t))
}

// Valid reports whether t is a defined entry type.
func (t EntryType) Valid() bool {
	_, ok := entryTypeNames[t]

	return ok
}

// Entry is one ACL rule. It grants either an access level (Allow) or a role
// (Role set, Allow ignored) to whichever principals its type/target selects.
type Entry struct {
	Type   EntryType
	Target id.ID
	Allow  Level
	Role   id.ID
}

// IsRoleGrant reports whether the entry grants a role rather than a level.
func (e Entry) IsRoleGrant() bool {
	return !e.Role.IsNil()
}

// HasTarget reports whether the entry's type carries an explicit target id.
func (e Entry) HasTarget() bool {
	return e.Type == TargetAccount || e.Type == TargetOrgRole
}

func (e Entry) coalesceKey() string {
	kind := "l"
	if e.IsRoleGrant() {
		kind = "r:" + e.Role.String()
	}

	return fmt.Sprintf("%d|%s|%s", e.Type, e.Target.String(), kind)
}

// MergeAndSanitizeEntries coalesces any number of entry lists into one
// sanitized list: duplicate (type, target, allow-kind) entries collapse to
// the highest level, role grants deduplicate, and level entries that end up
// at None are pruned. First-seen order is preserved.
func MergeAndSanitizeEntries(lists ...[]Entry) []Entry {
	var (
		order []string
		byKey = make(map[string]Entry)
	)

	for _, list := range lists {
		for _, e := range list {
			if !e.Type.Valid() {
				continue
			}
			if !e.IsRoleGrant() {
				e.Allow = Clamp(e.Allow, true)
			}

			key := e.coalesceKey()
			prev, ok := byKey[key]
			if !ok {
				order = append(order, key)
				byKey[key] = e

				continue
			}
			if !e.IsRoleGrant() && e.Allow > prev.Allow {
				prev.Allow = e.Allow
				byKey[key] = prev
			}
		}
	}

	out := make([]Entry, 0, len(order))
	for _, key := range order {
		e := byKey[key]
		if !e.IsRoleGrant() && e.Allow == None {
			continue
		}
		out = append(out, e)
	}

	return out
}

// ──────────────────────────────────────────────────
// Storage conversion
// ──────────────────────────────────────────────────

// ToMap converts an entry to its stored document form.
func (e Entry) ToMap() map[string]any {
	m := map[string]any{"type": int64(e.Type)}
	if !e.Target.IsNil() {
		m["target"] = e.Target.String()
	}
	if e.IsRoleGrant() {
		m["role"] = e.Role.String()
	} else {
		m["allow"] = int64(e.Allow)
	}

	return m
}

// EntryFromMap converts a stored document form back to an entry.
// Malformed documents return an error rather than a partial entry.
func EntryFromMap(m map[string]any) (Entry, error) {
	var e Entry

	t, ok := asInt(m["type"])
	if !ok {
		return e, fmt.Errorf("access: entry missing type")
	}
	e.Type = EntryType(t)
	if !e.Type.Valid() {
		return e, fmt.Errorf("access: entry type %d out of range", t)
	}

	if raw, ok := m["target"].(string); ok && raw != "" {
		target, err := id.Parse(raw)
		if err != nil {
			return e, fmt.Errorf("access: entry target: %w", err)
		}
		e.Target = target
	}

	if raw, ok := m["role"].(string); ok && raw != "" {
		role, err := id.ParseWithPrefix(raw, id.PrefixRole)
		if err != nil {
			return e, fmt.Errorf("access: entry role: %w", err)
		}
		e.Role = role

		return e, nil
	}

	allow, ok := asInt(m["allow"])
	if !ok {
		return e, fmt.Errorf("access: entry missing allow")
	}
	e.Allow = Clamp(Level(allow), true)

	return e, nil
}

// EntriesToAny converts entries to the []any form stored in a document's
// acl field.
func EntriesToAny(entries []Entry) []any {
	out := make([]any, len(entries))
	for n, e := range entries {
		out[n] = e.ToMap()
	}

	return out
}

// EntriesFromAny converts a stored acl field back to entries, skipping
// elements that are not entry documents.
func EntriesFromAny(raw any) []Entry {
	items, ok := raw.([]any)
	if !ok {
		return nil
	}

	out := make([]Entry, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		e, err := EntryFromMap(m)
		if err != nil {
			continue
		}
		out = append(out, e)
	}

	return out
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case Level:
		return int64(n), true
	case EntryType:
		return int64(n), true
	default:
		return 0, false
	}
}
