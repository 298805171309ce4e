package vigil

import (
	"context"
	"errors"
	"fmt"

	"github.com/vigilhq/vigil/storage"
)

// LowLevelUpdate persists the subject's pending delta with full
// optimistic-concurrency conditioning but no hooks, triggers, auditing,
// or stats. Internal maintenance writes go through here.
func (ac *AccessContext) LowLevelUpdate(ctx context.Context, opts SaveOptions) error {
	if ac.subject == nil {
		return wrap("low-level update", fmt.Errorf("%w: subject required", ErrInvalidArgument))
	}
	if ac.subject.IsNew() {
		return wrap("low-level update", fmt.Errorf("%w: subject not persisted", ErrInvalidArgument))
	}

	plan, err := ac.planUpdate(opts)
	if err != nil {
		return err
	}
	if plan == nil {
		return nil
	}
	if ac.dryRun {
		return nil
	}

	res, err := ac.object.Collection().UpdateOne(ctx, plan.delta.Match, plan.delta.Update)
	if err != nil {
		if storage.IsDuplicateKey(err) {
			return ac.duplicateKeyFault(err)
		}

		return wrap("low-level update", err)
	}
	if res.Matched == 0 {
		return ac.classifyWriteConflict(ctx, opts, plan)
	}

	if err := ac.subject.ApplyWrite(plan.delta.Update); err != nil {
		return wrap("low-level update", err)
	}
	ac.clearSafeToUpdate()

	return nil
}

// SidebandUpdate applies a payload outside the hook pipeline. A new
// subject just absorbs the payload into its pending state. A persisted
// subject is re-read detached under a sequenced retry so the write never
// clobbers fields some other writer changed since our copy was loaded;
// the committed values are then mirrored back into the caller's subject.
func (ac *AccessContext) SidebandUpdate(ctx context.Context, payload storage.M, opts SaveOptions) error {
	if len(payload) == 0 {
		return nil
	}
	if ac.subject == nil {
		return wrap("sideband update", fmt.Errorf("%w: subject required", ErrInvalidArgument))
	}

	if ac.subject.IsNew() {
		return ac.subject.SetPayload(payload)
	}

	obj, subject := ac.object, ac.subject
	paths := make([]string, 0, len(payload))
	for k := range payload {
		paths = append(paths, k)
	}
	project := append([]string{"_id", "acl", "aclv", "sequence", "version", "idx.v", "reap"}, paths...)

	return Sequenced(ctx, ac.eng.config.retryAttempts(), func(ctx context.Context) error {
		raw, err := obj.Collection().FindOne(ctx,
			storage.M{"_id": subject.SubjectID().String()}, project)
		if err != nil {
			if errors.Is(err, storage.ErrNoDocument) {
				return ac.fault(ErrNotFound, "subject no longer exists")
			}

			return wrap("sideband update", err)
		}

		detached, err := obj.SubjectFromRaw(raw)
		if err != nil {
			return wrap("sideband update", err)
		}
		if err := detached.SetPayload(payload); err != nil {
			return wrap("sideband update", err)
		}

		child, err := ac.Copy(detached, true)
		if err != nil {
			return err
		}
		if err := child.LowLevelUpdate(ctx, opts); err != nil {
			return err
		}

		values := storage.M{}
		for _, p := range paths {
			if v, ok := detached.GetValue(p); ok {
				values[p] = v
			}
		}
		if len(values) == 0 {
			return nil
		}

		return subject.ApplyWrite(storage.M{"$set": values})
	})
}
