package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

// sweep removes the links whose origin task was not part of this pass,
// deleting the counterpart first. A link goes whenever the delete was
// attempted, whatever its outcome.
func (s *Syncer) sweep(ctx context.Context, p *pass) error {
	all, err := s.store.ScanAll(ctx)
	if err != nil {
		return syncerr.StoreUnavailable("scan", err)
	}

	origin := s.origin.Side()
	var stale []model.Mapping
	for _, m := range all {
		if _, ok := p.touched[m.ID(origin)]; !ok {
			stale = append(stale, m)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if stale, err = s.outsideSnapshot(ctx, p, stale); err != nil {
		return err
	}
	if len(stale) == 0 {
		return nil
	}

	if s.opts.MaxSweepDeletes > 0 && len(stale) > s.opts.MaxSweepDeletes {
		p.report.SweepSkipped = true
		p.report.Errors++
		p.logger.Error("Refusing to sweep, too many origin tasks missing",
			zap.String("op", "sweep"),
			zap.Int("candidates", len(stale)),
			zap.Int("limit", s.opts.MaxSweepDeletes),
			zap.Int("snapshot", len(p.snapshot)))
		return nil
	}

	attempted := make(map[string]struct{}, len(stale))
	var cancelled error
	for _, m := range stale {
		if cancelled = ctx.Err(); cancelled != nil {
			break
		}
		originID, oppositeID := m.ID(origin), m.ID(s.opposite.Side())
		fields := []zap.Field{
			zap.String("op", "delete"),
			zap.String("origin_id", originID),
			zap.String("opposite_id", oppositeID),
		}

		err := s.opposite.Delete(ctx, oppositeID)
		switch {
		case err == nil:
			p.logger.Info("Deleted counterpart of removed task", fields...)
		case errors.Is(err, syncerr.ErrNotFound):
			p.logger.Info("Counterpart of removed task already gone", fields...)
		default:
			p.logger.Warn("Failed to delete counterpart, dropping link anyway", append(fields, zap.Error(err))...)
		}
		attempted[originID] = struct{}{}
	}

	if len(attempted) > 0 {
		n, err := s.store.DeleteWhere(context.WithoutCancel(ctx), func(e model.Mapping) bool {
			_, ok := attempted[e.ID(origin)]
			return ok
		})
		if err != nil {
			return syncerr.StoreUnavailable("delete", err)
		}
		p.report.Deleted += n
	}
	return cancelled
}

// outsideSnapshot drops the candidates whose origin task still exists beyond
// what List returned. A failed lookup aborts the sweep.
func (s *Syncer) outsideSnapshot(ctx context.Context, p *pass, stale []model.Mapping) ([]model.Mapping, error) {
	inv, ok := s.origin.(Inventory)
	if !ok {
		return stale, nil
	}
	ids, err := inv.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep: failed to list %s task ids: %w", s.origin.Side(), err)
	}

	origin := s.origin.Side()
	kept := stale[:0]
	for _, m := range stale {
		if _, ok := ids[m.ID(origin)]; ok {
			p.logger.Info("Linked task is outside the synced lists, keeping link",
				zap.String("op", "sweep"),
				zap.String("origin_id", m.ID(origin)),
				zap.String("opposite_id", m.ID(s.opposite.Side())))
			continue
		}
		kept = append(kept, m)
	}
	return kept, nil
}
