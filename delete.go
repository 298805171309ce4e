package vigil

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/vigilhq/vigil/hook"
	"github.com/vigilhq/vigil/storage"
	"github.com/vigilhq/vigil/worker"
)

func (ac *AccessContext) saveDelete(ctx context.Context, opts SaveOptions) (*SaveResult, error) {
	obj, subject := ac.object, ac.subject

	ac.PushResource(obj.Name())
	defer ac.PopResource()

	ev := ac.event(nil)
	if err := ac.fireTrigger(ctx, opts, hook.Before(ac.action("delete")), nil); err != nil {
		return nil, err
	}
	if err := ac.fireBoth(ctx, hook.Before(ac.action("delete")), ev); err != nil {
		return nil, err
	}

	if ac.dryRun {
		return &SaveResult{}, nil
	}

	res, err := obj.Collection().UpdateOne(ctx,
		storage.M{"_id": subject.SubjectID().String(), "reap": false},
		storage.M{
			"$inc": storage.M{"sequence": int64(1)},
			"$set": storage.M{"reap": true, "idx.v": int64(-1)},
		})
	if err != nil {
		return nil, wrap("delete", err)
	}

	if res.Matched > 0 {
		ac.recordAudit(ctx, "delete", nil)

		var size int64
		if doc, derr := subject.ToInsert(); derr == nil {
			size = storage.EstimateSize(doc)
		}
		ac.recordStats(ctx, -1, -size)

		ac.kickReaper(ctx)
	}

	// The after-chain and cleanup fan-out run even for an already-reaped
	// document so downstream state converges under retries.
	if err := ac.fireBoth(ctx, hook.After(ac.action("delete")), ev); err != nil {
		ac.eng.logger.Warn("delete.after hook failed", "object", obj.Name(), "error", err)
	}
	if err := ac.fireTrigger(ctx, opts, hook.After(ac.action("delete")), nil); err != nil {
		ac.eng.logger.Warn("after trigger failed", "action", "delete", "object", obj.Name(), "error", err)
	}

	if !obj.IsUnmanaged() {
		ac.spawnCleanup(context.WithoutCancel(ctx))
	}

	return &SaveResult{}, nil
}

func (ac *AccessContext) kickReaper(ctx context.Context) {
	if ac.eng.config.InstantReaping {
		r := worker.NewReaper(ac.object.Collection(), ac.eng.logger)
		if _, err := r.Reap(ctx, ac.subject.SubjectID()); err != nil {
			ac.eng.logger.Warn("instant reap failed",
				"object", ac.object.Name(),
				"subject", ac.subject.SubjectID().String(),
				"error", err)
		}

		return
	}

	ac.eng.schedule(ctx, worker.Message{
		Name:    worker.MessageReap,
		OrgID:   ac.subject.OrgID(),
		Object:  ac.object.Name(),
		Subject: ac.subject.SubjectID(),
	})
}

// spawnCleanup fans out the post-delete cleanup concurrently in the
// background: cascade-delete messages for declared references, attached
// feed and notification cleanup, and, for account deletions, an ACL sweep
// across every registered collection. Failures are logged; the delete has
// already committed.
func (ac *AccessContext) spawnCleanup(ctx context.Context) {
	eng := ac.eng
	obj := ac.object
	nodes := obj.Nodes()
	orgID := ac.subject.OrgID()
	subjectID := ac.subject.SubjectID()
	sid := subjectID.String()

	eng.background.Add(1)
	go func() {
		defer eng.background.Done()

		g, gctx := errgroup.WithContext(ctx)

		for _, node := range nodes {
			if !node.IsCascadeDelete() {
				continue
			}
			node := node
			g.Go(func() error {
				eng.schedule(gctx, worker.Message{
					Name:    worker.MessageCascadeDelete,
					OrgID:   orgID,
					Object:  obj.Name(),
					Subject: subjectID,
					Payload: storage.M{"path": node.Path()},
				})

				return nil
			})
		}

		if col := eng.cleanup.Notifications; col != nil {
			g.Go(func() error {
				_, err := col.DeleteMany(gctx, storage.M{"subject": sid})

				return err
			})
		}
		if col := eng.cleanup.History; col != nil {
			g.Go(func() error {
				_, err := col.UpdateMany(gctx,
					storage.M{"subject": sid},
					storage.M{"$set": storage.M{"reap": true}})

				return err
			})
		}
		if col := eng.cleanup.Posts; col != nil {
			g.Go(func() error {
				_, err := col.UpdateMany(gctx,
					storage.M{"context": sid},
					storage.M{"$set": storage.M{"reap": true}})

				return err
			})
		}
		if col := eng.cleanup.Comments; col != nil {
			g.Go(func() error {
				_, err := col.UpdateMany(gctx,
					storage.M{"context": sid},
					storage.M{"$set": storage.M{"reap": true}})

				return err
			})
		}
		if col := eng.cleanup.Connections; col != nil {
			g.Go(func() error {
				_, err := col.DeleteMany(gctx, storage.M{
					"$or": []any{
						storage.M{"from": sid},
						storage.M{"to": sid},
					},
				})

				return err
			})
		}

		if obj.Name() == ObjectAccount && eng.registry != nil {
			for _, target := range eng.registry.Objects() {
				col := target.Collection()
				if col == nil {
					continue
				}
				g.Go(func() error {
					_, err := col.UpdateMany(gctx,
						storage.M{"acl.target": sid},
						storage.M{
							"$inc":  storage.M{"aclv": int64(1), "sequence": int64(1)},
							"$pull": storage.M{"acl": storage.M{"target": sid}},
						})

					return err
				})
			}
		}

		if err := g.Wait(); err != nil {
			eng.logger.Warn("post-delete cleanup failed",
				"object", obj.Name(), "subject", sid, "error", err)
		}
	}()
}
