// Package access defines the ordered access-level scale, ACL entries, and
// the merge-only accumulator used during access resolution.
package access

import (
	"fmt"
	"strings"
)

// Level is a totally ordered access tier. Merging levels only ever
// increases the result.
type Level int

// Access tiers, lowest to highest.
const (
	None      Level = 0
	Public    Level = 1
	Connected Level = 2
	Reserved  Level = 3
	Read      Level = 4
	Share     Level = 5
	Update    Level = 6
	Delete    Level = 7
	Script    Level = 8
	System    Level = 9
)

// Min is the lowest level a caller can meaningfully hold or request.
// Max is the ceiling any merge clamps to.
const (
	Min = Public
	Max = System
)

// Inherit is a sentinel passed to administrative level mutation meaning
// "keep the current level, change only role grants".
const Inherit Level = -1

var levelNames = map[Level]string{
	None:      "none",
	Public:    "public",
	Connected: "connected",
	Reserved:  "reserved",
	Read:      "read",
	Share:     "share",
	Update:    "update",
	Delete:    "delete",
	Script:    "script",
	System:    "system",
}

var levelValues = func() map[string]Level {
	m := make(map[string]Level, len(levelNames))
	for l, name := range levelNames {
		m[name] = l
	}
	return m
}()

// String returns the lowercase label for the level, or a numeric form for
// out-of-range values.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}

	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is within the defined scale.
func (l Level) Valid() bool {
	_, ok := levelNames[l]

	return ok
}

// ParseLevel converts a case-insensitive level label to its ordinal.
func ParseLevel(s string) (Level, error) {
	l, ok := levelValues[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return None, fmt.Errorf("access: unknown level %q", s)
	}

	return l, nil
}

// Clamp bounds a level into the valid range. The lower bound is None when
// includeNone is set, Min otherwise.
func Clamp(l Level, includeNone bool) Level {
	floor := Min
	if includeNone {
		floor = None
	}

	if l < floor {
		return floor
	}
	if l > Max {
		return Max
	}

	return l
}

// MaxLevel returns the greater of a and b.
func MaxLevel(a, b Level) Level {
	if a > b {
		return a
	}

	return b
}

// MinLevel returns the lesser of a and b.
func MinLevel(a, b Level) Level {
	if a < b {
		return a
	}

	return b
}
