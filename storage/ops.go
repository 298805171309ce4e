package storage

import (
	"fmt"
	"strings"
	"time"
)

// Matches evaluates a match document against doc. Supported operators:
// $and, $or, $exists, $eq, $ne, $in, $lt, $lte, $gt, $gte. Dotted paths
// fan out over array elements, so {"acl.target": x} matches a document
// whose acl array contains an element with target x.
func Matches(doc, match M) bool {
	for key, cond := range match {
		switch key {
		case "$and":
			clauses, ok := cond.([]any)
			if !ok {
				return false
			}
			for _, clause := range clauses {
				m, ok := clause.(M)
				if !ok || !Matches(doc, m) {
					return false
				}
			}
		case "$or":
			clauses, ok := cond.([]any)
			if !ok {
				return false
			}
			hit := false
			for _, clause := range clauses {
				if m, ok := clause.(M); ok && Matches(doc, m) {
					hit = true

					break
				}
			}
			if !hit {
				return false
			}
		default:
			if !matchField(doc, key, cond) {
				return false
			}
		}
	}

	return true
}

func matchField(doc M, path string, cond any) bool {
	vals := ResolvePath(doc, path)

	ops, isOps := operatorMap(cond)
	if !isOps {
		return anyEquals(vals, cond)
	}

	for op, arg := range ops {
		switch op {
		case "$exists":
			want, _ := arg.(bool)
			if (len(vals) > 0) != want {
				return false
			}
		case "$eq":
			if !anyEquals(vals, arg) {
				return false
			}
		case "$ne":
			if anyEquals(vals, arg) {
				return false
			}
		case "$in":
			items, ok := arg.([]any)
			if !ok {
				return false
			}
			hit := false
			for _, item := range items {
				if anyEquals(vals, item) {
					hit = true

					break
				}
			}
			if !hit {
				return false
			}
		case "$lt", "$lte", "$gt", "$gte":
			if !anyCompares(vals, op, arg) {
				return false
			}
		default:
			return false
		}
	}

	return true
}

func operatorMap(cond any) (M, bool) {
	m, ok := cond.(M)
	if !ok || len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}

	return m, true
}

// ResolvePath walks a dotted path, fanning out over array elements. The
// result is every value reachable at the path; a missing path yields nil.
func ResolvePath(doc M, path string) []any {
	parts := strings.Split(path, ".")
	current := []any{doc}

	for _, part := range parts {
		var next []any
		for _, v := range current {
			switch tv := v.(type) {
			case M:
				if child, ok := tv[part]; ok {
					next = append(next, child)
				}
			case []any:
				for _, item := range tv {
					if m, ok := item.(M); ok {
						if child, ok := m[part]; ok {
							next = append(next, child)
						}
					}
				}
			}
		}
		current = next
		if len(current) == 0 {
			return nil
		}
	}

	return current
}

func anyEquals(vals []any, want any) bool {
	for _, v := range vals {
		if ValueEquals(v, want) {
			return true
		}
		if items, ok := v.([]any); ok {
			for _, item := range items {
				if ValueEquals(item, want) {
					return true
				}
			}
		}
	}

	return false
}

func anyCompares(vals []any, op string, want any) bool {
	wf, ok := AsFloat(want)
	if !ok {
		return false
	}
	for _, v := range vals {
		vf, ok := AsFloat(v)
		if !ok {
			continue
		}
		switch op {
		case "$lt":
			if vf < wf {
				return true
			}
		case "$lte":
			if vf <= wf {
				return true
			}
		case "$gt":
			if vf > wf {
				return true
			}
		case "$gte":
			if vf >= wf {
				return true
			}
		}
	}

	return false
}

// ValueEquals compares two scalar document values, treating all numeric
// types as one domain.
func ValueEquals(a, b any) bool {
	if af, ok := AsFloat(a); ok {
		bf, ok := AsFloat(b)

		return ok && af == bf
	}

	return a == b
}

// AsFloat normalizes any numeric document value to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case time.Time:
		return float64(n.UnixNano()), true
	default:
		return 0, false
	}
}

// ApplyUpdate applies an operator update to doc in place. Supported:
// $set, $inc, $unset, $addToSet (with $each), $push (with $each), $pull,
// and top-level field replacement for non-operator keys.
func ApplyUpdate(doc, update M) error {
	for op, arg := range update {
		fields, ok := arg.(M)
		if !ok && strings.HasPrefix(op, "$") {
			return fmt.Errorf("storage: malformed %s operand", op)
		}

		switch op {
		case "$set":
			for path, v := range fields {
				SetPath(doc, path, CloneValue(v))
			}
		case "$inc":
			for path, v := range fields {
				delta, ok := AsFloat(v)
				if !ok {
					return fmt.Errorf("storage: non-numeric $inc for %s", path)
				}
				current := float64(0)
				if vals := ResolvePath(doc, path); len(vals) > 0 {
					if cf, ok := AsFloat(vals[0]); ok {
						current = cf
					}
				}
				SetPath(doc, path, int64(current+delta))
			}
		case "$unset":
			for path := range fields {
				UnsetPath(doc, path)
			}
		case "$addToSet":
			for path, v := range fields {
				if err := appendPath(doc, path, v, true); err != nil {
					return err
				}
			}
		case "$push":
			for path, v := range fields {
				if err := appendPath(doc, path, v, false); err != nil {
					return err
				}
			}
		case "$pull":
			for path, v := range fields {
				pullPath(doc, path, v)
			}
		default:
			if strings.HasPrefix(op, "$") {
				return fmt.Errorf("storage: unsupported operator %s", op)
			}
			SetPath(doc, op, CloneValue(arg))
		}
	}

	return nil
}

// SetPath sets a dotted path, creating intermediate maps as needed.
func SetPath(doc M, path string, v any) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		child, ok := current[part].(M)
		if !ok {
			child = M{}
			current[part] = child
		}
		current = child
	}
	current[parts[len(parts)-1]] = v
}

// UnsetPath removes a dotted path if present.
func UnsetPath(doc M, path string) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		child, ok := current[part].(M)
		if !ok {
			return
		}
		current = child
	}
	delete(current, parts[len(parts)-1])
}

func appendPath(doc M, path string, arg any, dedupe bool) error {
	items := []any{arg}
	if m, ok := arg.(M); ok {
		if each, ok := m["$each"]; ok {
			items, ok = each.([]any)
			if !ok {
				return fmt.Errorf("storage: malformed $each for %s", path)
			}
		}
	}

	var list []any
	if vals := ResolvePath(doc, path); len(vals) > 0 {
		existing, ok := vals[0].([]any)
		if !ok {
			return fmt.Errorf("storage: %s is not an array", path)
		}
		list = existing
	}

	for _, item := range items {
		if dedupe && anyEquals([]any{list}, item) {
			continue
		}
		list = append(list, CloneValue(item))
	}
	SetPath(doc, path, list)

	return nil
}

func pullPath(doc M, path string, cond any) {
	vals := ResolvePath(doc, path)
	if len(vals) == 0 {
		return
	}
	list, ok := vals[0].([]any)
	if !ok {
		return
	}

	var kept []any
	for _, item := range list {
		if pullMatches(item, cond) {
			continue
		}
		kept = append(kept, item)
	}
	SetPath(doc, path, kept)
}

func pullMatches(item, cond any) bool {
	condDoc, ok := cond.(M)
	if !ok {
		return ValueEquals(item, cond)
	}
	itemDoc, ok := item.(M)
	if !ok {
		return false
	}

	return Matches(itemDoc, condDoc)
}
