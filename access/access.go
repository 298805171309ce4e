package access

// Access accumulates the resolved level for one resolution pass.
// It is merge-only: the held level never decreases.
type Access struct {
	allow Level
}

// NewAccess returns an accumulator holding None.
func NewAccess() *Access {
	return &Access{allow: None}
}

// Merge raises the held level to l if l is higher. Out-of-range values are
// clamped into the scale first.
func (a *Access) Merge(l Level) *Access {
	l = Clamp(l, true)
	if l > a.allow {
		a.allow = l
	}

	return a
}

// Resolved returns the currently held level.
func (a *Access) Resolved() Level {
	return a.allow
}

// HasAccess reports whether the held level satisfies l.
func (a *Access) HasAccess(l Level) bool {
	return a.allow >= Clamp(l, true)
}
