package vigil

import (
	"context"
	"errors"
	"fmt"

	"github.com/vigilhq/vigil/access"
	"github.com/vigilhq/vigil/id"
	"github.com/vigilhq/vigil/org"
	"github.com/vigilhq/vigil/storage"
)

// ACLUpdateResult reports what an administrative ACL mutation changed for
// one target.
type ACLUpdateResult struct {
	Updated  bool
	OldLevel access.Level
	NewLevel access.Level
	OldRoles []id.ID
	NewRoles []id.ID
}

// SetAccessOptions tunes SetAccessLevel.
type SetAccessOptions struct {
	// Roles replaces the target's role grants. A nil slice keeps the
	// existing grants; an empty non-nil slice clears them. Grants naming
	// roles the org does not define are dropped.
	Roles []id.ID

	// ForceACL replaces the stored entry set wholesale before the target
	// mutation is applied.
	ForceACL []access.Entry

	// Filter drops non-matching stored entries before the mutation.
	Filter func(access.Entry) bool

	// LevelFilter adjusts the requested level against the target's
	// current level as observed by the fresh read of each retry attempt.
	// Returning the current level makes the attempt a no-op.
	LevelFilter func(current, requested access.Level) access.Level
}

// mutateACL re-reads the subject fresh, applies mutate to its stored
// entries, and writes the sanitized result conditioned on the ACL version
// and sequence observed by that same read. A lost race surfaces as a
// sequencing conflict and is retried with fresh state. mutate returning a
// nil slice with keep=false aborts as a no-op.
func (ac *AccessContext) mutateACL(ctx context.Context, verb string, extraSet storage.M,
	mutate func(fresh Subject, entries []access.Entry) ([]access.Entry, bool, error)) error {

	obj, subject := ac.object, ac.subject
	if subject == nil || subject.IsNew() {
		return wrap(verb, fmt.Errorf("%w: persisted subject required", ErrInvalidArgument))
	}
	sid := subject.SubjectID().String()
	project := append([]string{"_id", "acl", "aclv", "sequence", "owner", "creator", "reap"},
		obj.RequiredACLPaths()...)

	return Sequenced(ctx, ac.eng.config.retryAttempts(), func(ctx context.Context) error {
		raw, err := obj.Collection().FindOne(ctx, storage.M{"_id": sid}, project)
		if err != nil {
			if errors.Is(err, storage.ErrNoDocument) {
				return ac.faultAt(ErrNotFound, "", "subject no longer exists")
			}

			return wrap(verb, err)
		}
		fresh, err := obj.SubjectFromRaw(raw)
		if err != nil {
			return wrap(verb, err)
		}

		next, keep, err := mutate(fresh, fresh.ACL())
		if err != nil {
			return err
		}
		if !keep {
			return nil
		}
		next = access.MergeAndSanitizeEntries(next)

		set := storage.M{"acl": access.EntriesToAny(next)}
		for k, v := range extraSet {
			set[k] = v
		}

		res, err := obj.Collection().UpdateOne(ctx,
			storage.M{"_id": sid, "aclv": fresh.ACLVersion(), "sequence": fresh.Sequence()},
			storage.M{
				"$set": set,
				"$inc": storage.M{"aclv": int64(1), "sequence": int64(1)},
			})
		if err != nil {
			return wrap(verb, err)
		}
		if res.Matched == 0 {
			return ac.fault(ErrSequencing, "concurrent acl write")
		}

		mirror := storage.M{
			"acl":      access.EntriesToAny(next),
			"aclv":     fresh.ACLVersion() + 1,
			"sequence": fresh.Sequence() + 1,
		}
		for k, v := range extraSet {
			mirror[k] = v
		}
		if err := subject.ApplyWrite(storage.M{"$set": mirror}); err != nil {
			return wrap(verb, err)
		}
		ac.invalidate()

		if ac.eng.aclSync != nil {
			if err := ac.eng.aclSync.SyncACL(ctx, obj, subject.SubjectID(), next); err != nil {
				ac.eng.logger.Warn("acl sync failed", "object", obj.Name(), "subject", sid, "error", err)
			}
		}

		return nil
	})
}

// SetOwner transfers ownership. The ACL version is bumped even though the
// entry list is unchanged: owner-targeted entries now resolve for a
// different account.
func (ac *AccessContext) SetOwner(ctx context.Context, owner id.ID) error {
	if owner.IsNil() || owner.Prefix() != id.PrefixAccount {
		return wrap("set owner", fmt.Errorf("%w: account id required", ErrInvalidArgument))
	}
	if !ac.object.HasOwner() {
		return wrap("set owner", fmt.Errorf("%w: %s has no owner", ErrUnsupportedOperation, ac.object.Name()))
	}

	applied := false
	err := ac.mutateACL(ctx, "set owner", storage.M{"owner": owner.String()},
		func(fresh Subject, entries []access.Entry) ([]access.Entry, bool, error) {
			if fresh.OwnerID().Equal(owner) {
				return nil, false, nil
			}
			applied = true

			return entries, true, nil
		})
	if err != nil {
		return err
	}
	if applied {
		ac.recordAudit(ctx, "acl.owner", map[string]any{"owner": owner.String()})
	}

	return nil
}

// SetAccessLevel sets the direct level and, optionally, the role grants
// one target holds on the subject. Level Inherit keeps the current level
// entries untouched; level None removes them.
func (ac *AccessContext) SetAccessLevel(ctx context.Context, target id.ID, level access.Level, opts SetAccessOptions) (*ACLUpdateResult, error) {
	if target.IsNil() {
		return nil, wrap("set access", fmt.Errorf("%w: target required", ErrInvalidArgument))
	}
	if level != access.Inherit {
		level = access.Clamp(level, true)
	}

	keepGrants := opts.Roles == nil
	roles := opts.Roles
	if len(roles) > 0 {
		if o, err := ac.org(ctx); err != nil {
			return nil, err
		} else if o != nil {
			roles = id.Intersect(roles, orgRoleIDs(o))
			if roles == nil {
				roles = []id.ID{}
			}
		}
	}

	result := &ACLUpdateResult{}
	err := ac.mutateACL(ctx, "set access", nil,
		func(_ Subject, entries []access.Entry) ([]access.Entry, bool, error) {
			result.OldLevel, result.OldRoles = targetState(entries, target)

			// The filter sees the level of this attempt's fresh read, so
			// a floor or cap holds against concurrent mutations.
			eff := level
			if opts.LevelFilter != nil && eff != access.Inherit {
				eff = opts.LevelFilter(result.OldLevel, eff)
			}

			base := entries
			if opts.ForceACL != nil {
				base = opts.ForceACL
			}

			var next []access.Entry
			for _, e := range base {
				if opts.Filter != nil && !opts.Filter(e) {
					continue
				}
				if e.Target.Equal(target) {
					if e.IsRoleGrant() && keepGrants {
						next = append(next, e)
					}
					if !e.IsRoleGrant() && eff == access.Inherit {
						next = append(next, e)
					}
					continue
				}
				next = append(next, e)
			}
			if eff != access.Inherit && eff > access.None {
				next = append(next, access.Entry{Type: access.TargetAccount, Target: target, Allow: eff})
			}
			for _, role := range roles {
				next = append(next, access.Entry{Type: access.TargetAccount, Target: target, Role: role})
			}

			result.NewLevel, result.NewRoles = targetState(next, target)
			result.Updated = !entriesSame(
				access.MergeAndSanitizeEntries(entries),
				access.MergeAndSanitizeEntries(next))
			if !result.Updated {
				return nil, false, nil
			}

			return next, true, nil
		})
	if err != nil {
		return nil, err
	}

	if result.Updated {
		ac.recordAudit(ctx, "acl.set", map[string]any{
			"target": target.String(),
			"level":  result.NewLevel.String(),
			"roles":  id.Strings(result.NewRoles),
		})
	}

	return result, nil
}

// IncreaseAccessLevel raises the target's direct level to at least level.
// Already-sufficient access is a no-op. The floor is taken against the
// level each retry attempt reads, so a concurrently raised grant is never
// lowered.
func (ac *AccessContext) IncreaseAccessLevel(ctx context.Context, target id.ID, level access.Level) (*ACLUpdateResult, error) {
	return ac.SetAccessLevel(ctx, target, level, SetAccessOptions{
		LevelFilter: access.MaxLevel,
	})
}

// DecreaseAccessLevel lowers the target's direct level to at most level,
// with the cap taken against each attempt's fresh read.
func (ac *AccessContext) DecreaseAccessLevel(ctx context.Context, target id.ID, level access.Level) (*ACLUpdateResult, error) {
	return ac.SetAccessLevel(ctx, target, level, SetAccessOptions{
		LevelFilter: access.MinLevel,
	})
}

// RemoveAccess strips every entry naming target from the subject's ACL.
func (ac *AccessContext) RemoveAccess(ctx context.Context, target id.ID) (*ACLUpdateResult, error) {
	if target.IsNil() {
		return nil, wrap("remove access", fmt.Errorf("%w: target required", ErrInvalidArgument))
	}

	result := &ACLUpdateResult{}
	err := ac.mutateACL(ctx, "remove access", nil,
		func(_ Subject, entries []access.Entry) ([]access.Entry, bool, error) {
			result.OldLevel, result.OldRoles = targetState(entries, target)

			next := make([]access.Entry, 0, len(entries))
			for _, e := range entries {
				if e.Target.Equal(target) {
					continue
				}
				next = append(next, e)
			}
			if len(next) == len(entries) {
				return nil, false, nil
			}
			result.Updated = true

			return next, true, nil
		})
	if err != nil {
		return nil, err
	}

	if result.Updated {
		ac.recordAudit(ctx, "acl.remove", map[string]any{"target": target.String()})
	}

	return result, nil
}

// RemoveAllTargetEntries strips target from the ACL of every document of
// every registered object. Used when an identity leaves the org entirely.
// A failure on one collection is logged and the sweep moves on; affected
// post snapshots are re-mirrored through the ACL syncer.
func (e *Engine) RemoveAllTargetEntries(ctx context.Context, target id.ID) error {
	if target.IsNil() {
		return wrap("remove target entries", fmt.Errorf("%w: target required", ErrInvalidArgument))
	}
	if e.registry == nil {
		return wrap("remove target entries", fmt.Errorf("%w: registry required", ErrInvalidArgument))
	}

	sid := target.String()
	for _, obj := range e.registry.Objects() {
		col := obj.Collection()
		if col == nil {
			continue
		}

		affected, err := col.Find(ctx, storage.M{"acl.target": sid}, []string{"_id", "acl"})
		if err != nil {
			e.logger.Warn("acl sweep read failed", "object", obj.Name(), "target", sid, "error", err)
			continue
		}
		if len(affected) == 0 {
			continue
		}

		_, err = col.UpdateMany(ctx,
			storage.M{"acl.target": sid},
			storage.M{
				"$inc":  storage.M{"aclv": int64(1), "sequence": int64(1)},
				"$pull": storage.M{"acl": storage.M{"target": sid}},
			})
		if err != nil {
			e.logger.Warn("acl sweep failed", "object", obj.Name(), "target", sid, "error", err)
			continue
		}

		if e.aclSync == nil {
			continue
		}
		for _, raw := range affected {
			docID, perr := parseDocID(raw["_id"])
			if perr != nil {
				continue
			}
			var next []access.Entry
			for _, entry := range access.EntriesFromAny(raw["acl"]) {
				if entry.Target.Equal(target) {
					continue
				}
				next = append(next, entry)
			}
			if serr := e.aclSync.SyncACL(ctx, obj, docID, access.MergeAndSanitizeEntries(next)); serr != nil {
				e.logger.Warn("acl sweep sync failed", "object", obj.Name(), "subject", docID.String(), "error", serr)
			}
		}
	}

	return nil
}

func parseDocID(v any) (id.ID, error) {
	s, _ := v.(string)

	return id.ParseAny(s)
}

func orgRoleIDs(o *org.Org) []id.ID {
	roles := o.Roles()
	out := make([]id.ID, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.ID)
	}

	return out
}

func targetState(entries []access.Entry, target id.ID) (access.Level, []id.ID) {
	level := access.None
	var roles []id.ID
	for _, e := range entries {
		if !e.Target.Equal(target) {
			continue
		}
		if e.IsRoleGrant() {
			roles = append(roles, e.Role)
			continue
		}
		if e.Allow > level {
			level = e.Allow
		}
	}

	return level, roles
}

func entriesSame(a, b []access.Entry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Type != b[i].Type ||
			!a[i].Target.Equal(b[i].Target) ||
			a[i].Allow != b[i].Allow ||
			!a[i].Role.Equal(b[i].Role) {
			return false
		}
	}

	return true
}
