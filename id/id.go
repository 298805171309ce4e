// Package id defines TypeID-based identity types for all Vigil entities.
//
// Every entity in Vigil uses a single ID struct with a prefix that identifies
// the entity type. IDs are K-sortable (UUIDv7-based), globally unique,
// and URL-safe in the format "prefix_suffix".
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all Vigil entity types.
const (
	PrefixAccount  Prefix = "acct"
	PrefixOrg      Prefix = "org"
	PrefixRole     Prefix = "role"
	PrefixObject   Prefix = "obj"
	PrefixDocument Prefix = "doc"
	PrefixPost     Prefix = "post"
	PrefixComment  Prefix = "cmt"
	PrefixProperty Prefix = "prop"
	PrefixAudit    Prefix = "audit"
	PrefixRequest  Prefix = "req"
)

// ID is the primary identifier type for all Vigil entities.
// It wraps a TypeID providing a prefix-qualified, globally unique,
// sortable, URL-safe identifier in the format "prefix_suffix".
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// Reserved principal identities. An ACL entry targeting Anonymous applies to
// every caller; one targeting Public applies to every authenticated caller.
var (
	Anonymous = MustParse("acct_00000000000000000000000001")
	Public    = MustParse("acct_00000000000000000000000003")
)

// OrgAdminRole is the built-in administrator role present in every org.
var OrgAdminRole = MustParse("role_00000000000000000000000001")

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "role_01h2xcejqtf2nbrexx3vqjhp41")
// into an ID. Returns an error if the string is not valid.
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// ──────────────────────────────────────────────────
// Convenience constructors and parsers
// ──────────────────────────────────────────────────

// NewAccountID generates a new unique account ID.
func NewAccountID() ID { return New(PrefixAccount) }

// NewOrgID generates a new unique org ID.
func NewOrgID() ID { return New(PrefixOrg) }

// NewRoleID generates a new unique role ID.
func NewRoleID() ID { return New(PrefixRole) }

// NewDocumentID generates a new unique document ID.
func NewDocumentID() ID { return New(PrefixDocument) }

// NewPostID generates a new unique post ID.
func NewPostID() ID { return New(PrefixPost) }

// NewCommentID generates a new unique comment ID.
func NewCommentID() ID { return New(PrefixComment) }

// NewPropertyID generates a new unique schema property ID.
func NewPropertyID() ID { return New(PrefixProperty) }

// NewAuditID generates a new unique audit event ID.
func NewAuditID() ID { return New(PrefixAudit) }

// ParseRoleID parses a string and validates the "role" prefix.
func ParseRoleID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRole) }

// ParseAccountID parses a string and validates the "acct" prefix.
func ParseAccountID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAccount) }

// ParseAny parses a string into an ID without type checking the prefix.
func ParseAny(s string) (ID, error) { return Parse(s) }

// ──────────────────────────────────────────────────
// ID methods
// ──────────────────────────────────────────────────

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// Equal reports whether two IDs are the same identity.
func (i ID) Equal(other ID) bool {
	if !i.valid || !other.valid {
		return i.valid == other.valid
	}

	return i.inner.String() == other.inner.String()
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}

// ──────────────────────────────────────────────────
// Slice helpers
// ──────────────────────────────────────────────────

// InSlice reports whether target appears in ids.
func InSlice(ids []ID, target ID) bool {
	for _, v := range ids {
		if v.Equal(target) {
			return true
		}
	}

	return false
}

// Union returns the deduplicated union of a and b, preserving order.
func Union(a, b []ID) []ID {
	out := make([]ID, 0, len(a)+len(b))
	for _, v := range a {
		if !InSlice(out, v) {
			out = append(out, v)
		}
	}
	for _, v := range b {
		if !InSlice(out, v) {
			out = append(out, v)
		}
	}

	return out
}

// Intersect returns the IDs present in both a and b.
func Intersect(a, b []ID) []ID {
	var out []ID
	for _, v := range a {
		if InSlice(b, v) && !InSlice(out, v) {
			out = append(out, v)
		}
	}

	return out
}

// SameSet reports whether a and b contain the same identities,
// ignoring order and duplicates.
func SameSet(a, b []ID) bool {
	for _, v := range a {
		if !InSlice(b, v) {
			return false
		}
	}
	for _, v := range b {
		if !InSlice(a, v) {
			return false
		}
	}

	return true
}

// Strings converts a slice of IDs to their string forms.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for n, v := range ids {
		out[n] = v.String()
	}

	return out
}
