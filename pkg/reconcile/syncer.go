package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harrisonrobin/tasklink/pkg/deferred"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/store"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

// Options tunes a Syncer. The zero value is usable.
type Options struct {
	Logger *zap.Logger
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Ledger records deferred tasks across passes. Nil disables it.
	Ledger *deferred.Ledger
	// EscalateAfter reports tasks deferred for longer as data integrity
	// errors. Zero disables escalation.
	EscalateAfter time.Duration
	// MaxSweepDeletes skips the sweep when more links would be removed in
	// one pass. Zero means no limit.
	MaxSweepDeletes int
	// ParentRetries bounds how deep an unlinked parent is reconciled ahead
	// of its child. Zero means 1.
	ParentRetries int
}

// Syncer mirrors origin onto opposite.
type Syncer struct {
	origin   Endpoint
	opposite Endpoint
	store    store.Store
	opts     Options
	logger   *zap.Logger
}

func New(origin, opposite Endpoint, st store.Store, opts Options) *Syncer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.ParentRetries <= 0 {
		opts.ParentRetries = 1
	}
	return &Syncer{
		origin:   origin,
		opposite: opposite,
		store:    st,
		opts:     opts,
		logger: opts.Logger.Named("sync").With(
			zap.String("side", origin.Side().String()),
		),
	}
}

func (s *Syncer) Origin() model.Side   { return s.origin.Side() }
func (s *Syncer) Opposite() model.Side { return s.opposite.Side() }

// pass holds the state of one Sync call.
type pass struct {
	logger     *zap.Logger
	now        time.Time
	report     *Report
	snapshot   map[string]model.Task
	touched    map[string]struct{}
	done       map[string]struct{}
	inProgress map[string]struct{}
}

// deferral means the task could not be linked yet and should be retried on
// a later pass.
type deferral struct {
	reason     string
	parentID   string
	inSnapshot bool
}

func (d *deferral) Error() string { return d.reason }

// Sync runs one pass. Per-task failures are logged and counted in the
// report. The returned error is non-nil only when the pass was aborted: the
// origin snapshot could not be fetched, the store failed, or ctx ended.
// Endpoints implementing Inventory are asked for their task ids before the
// sweep; a failure there aborts the pass too.
func (s *Syncer) Sync(ctx context.Context) (Report, error) {
	runID := uuid.NewString()
	p := &pass{
		logger: s.logger.With(zap.String("run_id", runID)),
		now:    s.opts.Clock().UTC(),
		report: &Report{
			Origin:   s.origin.Side(),
			Opposite: s.opposite.Side(),
			RunID:    runID,
		},
		snapshot:   make(map[string]model.Task),
		touched:    make(map[string]struct{}),
		done:       make(map[string]struct{}),
		inProgress: make(map[string]struct{}),
	}
	start := time.Now()
	finish := func(err error) (Report, error) {
		p.report.Duration = time.Since(start)
		if err != nil {
			p.report.Errors++
			p.logger.Error("Aborting pass", append(p.report.fields(), zap.Error(err))...)
			return *p.report, fmt.Errorf("%s pass: %w", s.origin.Side(), err)
		}
		p.logger.Info("Pass complete", p.report.fields()...)
		return *p.report, nil
	}

	tasks, err := s.origin.List(ctx)
	if err != nil {
		return finish(fmt.Errorf("list: %w", err))
	}
	for _, t := range tasks {
		p.snapshot[t.ID] = t
	}
	p.report.Seen = len(tasks)
	p.logger.Debug("Fetched origin snapshot", zap.Int("tasks", len(tasks)))

	for _, t := range tasks {
		if err := ctx.Err(); err != nil {
			return finish(err)
		}
		if err := s.reconcile(ctx, p, t, s.opts.ParentRetries); err != nil {
			return finish(err)
		}
	}

	s.reviewLedger(p)

	if err := s.sweep(ctx, p); err != nil {
		return finish(err)
	}
	return finish(nil)
}

// reconcile brings the counterpart of t up to date. It returns an error only
// when the pass must stop.
func (s *Syncer) reconcile(ctx context.Context, p *pass, t model.Task, budget int) error {
	if _, ok := p.done[t.ID]; ok {
		return nil
	}
	p.touched[t.ID] = struct{}{}
	p.inProgress[t.ID] = struct{}{}
	defer delete(p.inProgress, t.ID)

	var err error
	m, findErr := s.store.FindByID(ctx, s.origin.Side(), t.ID)
	switch {
	case errors.Is(findErr, store.ErrNotFound):
		err = s.create(ctx, p, t, budget)
	case findErr != nil:
		err = syncerr.StoreUnavailable("find", findErr)
	default:
		err = s.update(ctx, p, t, m, budget)
	}
	p.done[t.ID] = struct{}{}
	return s.settle(p, t, m.ID(s.opposite.Side()), err)
}

// settle logs and counts a per-task failure. Only store failures escape.
func (s *Syncer) settle(p *pass, t model.Task, oppositeID string, err error) error {
	if err == nil {
		return nil
	}
	fields := []zap.Field{zap.String("origin_id", t.ID), zap.String("title", t.Title)}
	if oppositeID != "" {
		fields = append(fields, zap.String("opposite_id", oppositeID))
	}
	fields = append(fields, zap.Error(err))

	var d *deferral
	switch {
	case errors.Is(err, syncerr.ErrStoreUnavailable):
		return err
	case errors.As(err, &d):
		p.report.Deferred++
		if s.opts.Ledger != nil {
			e := s.opts.Ledger.Defer(s.origin.Side(), t.ID, t.Title, d.reason, p.now)
			fields = append(fields, zap.Int("attempts", e.Attempts))
		}
		p.logger.Warn("Deferring task", append(fields, zap.String("op", "link"))...)
	case errors.Is(err, syncerr.ErrMissingField):
		p.report.Skipped++
		p.logger.Info("Skipping task with missing fields", append(fields, zap.String("op", "validate"))...)
	case errors.Is(err, syncerr.ErrNotFound):
		p.report.Skipped++
		p.logger.Info("Counterpart vanished, leaving it to the reverse pass", append(fields, zap.String("op", "update"))...)
	case errors.Is(err, syncerr.ErrDataIntegrity):
		p.report.Failed++
		p.report.Errors++
		p.logger.Error("Data integrity violation", fields...)
	default:
		p.report.Failed++
		p.logger.Warn("Failed to sync task", fields...)
	}
	return nil
}

func (s *Syncer) create(ctx context.Context, p *pass, t model.Task, budget int) error {
	if err := s.opposite.Validate(t); err != nil {
		return err
	}
	parentID, err := s.resolveParent(ctx, p, t, budget)
	if err != nil {
		return err
	}

	created, err := s.opposite.Create(ctx, t.WithParent(parentID))
	if errors.Is(err, syncerr.ErrInvalidParent) {
		p.logger.Warn("Opposite side rejected parent, retrying once",
			zap.String("op", "create"),
			zap.String("origin_id", t.ID),
			zap.String("parent_id", parentID),
			zap.Error(err))
		if parentID, err = s.lookupParent(ctx, t); err != nil {
			return err
		}
		created, err = s.opposite.Create(ctx, t.WithParent(parentID))
		if errors.Is(err, syncerr.ErrInvalidParent) {
			return &deferral{reason: fmt.Sprintf("parent %s rejected by %s: %v", t.ParentID, s.opposite.Side(), err), parentID: t.ParentID, inSnapshot: true}
		}
	}
	if err != nil {
		return err
	}

	m := model.NewMapping(s.origin.Side(), t.ID, created.ID)
	m.SetSyncedAt(s.origin.Side(), later(p.now, t.LastModified))
	m.SetSyncedAt(s.opposite.Side(), later(p.now, created.LastModified))
	if err := s.upsert(ctx, t, m); err != nil {
		return err
	}
	p.report.Created++
	p.logger.Info("Created counterpart",
		zap.String("op", "create"),
		zap.String("origin_id", t.ID),
		zap.String("opposite_id", created.ID),
		zap.String("title", t.Title))
	s.resolveLedger(p, t)
	return nil
}

func (s *Syncer) update(ctx context.Context, p *pass, t model.Task, m model.Mapping, budget int) error {
	oppositeID := m.ID(s.opposite.Side())
	if !t.LastModified.After(m.SyncedAt(s.origin.Side())) {
		p.report.Unchanged++
		return nil
	}
	if err := s.opposite.Validate(t); err != nil {
		return err
	}

	parentID, err := s.resolveParent(ctx, p, t, budget)
	var d *deferral
	if errors.As(err, &d) && !d.inSnapshot {
		return syncerr.DataIntegrity(s.origin.Side(), "resolve_parent", t.ID,
			fmt.Errorf("parent %s does not exist on %s", t.ParentID, s.origin.Side()))
	}
	if err != nil {
		return err
	}

	updated, err := s.opposite.Update(ctx, oppositeID, t.WithParent(parentID))
	if err != nil {
		return err
	}
	moved := false
	if updated.ParentID != parentID {
		updated, err = s.opposite.MoveParent(ctx, oppositeID, parentID)
		if errors.Is(err, syncerr.ErrInvalidParent) {
			return &deferral{reason: fmt.Sprintf("move under %s rejected by %s: %v", parentID, s.opposite.Side(), err), parentID: t.ParentID, inSnapshot: true}
		}
		if err != nil {
			return err
		}
		moved = true
	}

	m.SetSyncedAt(s.origin.Side(), later(p.now, t.LastModified))
	m.SetSyncedAt(s.opposite.Side(), later(p.now, updated.LastModified))
	if err := s.upsert(ctx, t, m); err != nil {
		return err
	}
	p.report.Updated++
	if moved {
		p.report.Moved++
	}
	p.logger.Info("Updated counterpart",
		zap.String("op", "update"),
		zap.String("origin_id", t.ID),
		zap.String("opposite_id", oppositeID),
		zap.Bool("moved", moved))
	s.resolveLedger(p, t)
	return nil
}

// resolveParent maps t's parent to the opposite side. An unlinked parent
// that is part of this snapshot is reconciled first while budget lasts.
func (s *Syncer) resolveParent(ctx context.Context, p *pass, t model.Task, budget int) (string, error) {
	if !t.HasParent() {
		return "", nil
	}
	id, err := s.lookupParent(ctx, t)
	var d *deferral
	if !errors.As(err, &d) {
		return id, err
	}

	parent, inSnapshot := p.snapshot[t.ParentID]
	d.inSnapshot = inSnapshot
	_, busy := p.inProgress[t.ParentID]
	if budget <= 0 || !inSnapshot || busy {
		return "", d
	}

	p.logger.Debug("Reconciling parent ahead of child",
		zap.String("origin_id", t.ID),
		zap.String("parent_id", t.ParentID))
	if err := s.reconcile(ctx, p, parent, budget-1); err != nil {
		return "", err
	}
	id, err = s.lookupParent(ctx, t)
	if errors.As(err, &d) {
		d.inSnapshot = true
	}
	return id, err
}

func (s *Syncer) lookupParent(ctx context.Context, t model.Task) (string, error) {
	if !t.HasParent() {
		return "", nil
	}
	pm, err := s.store.FindByID(ctx, s.origin.Side(), t.ParentID)
	if errors.Is(err, store.ErrNotFound) {
		return "", &deferral{reason: fmt.Sprintf("parent %s is not linked yet", t.ParentID), parentID: t.ParentID}
	}
	if err != nil {
		return "", syncerr.StoreUnavailable("find_parent", err)
	}
	return pm.ID(s.opposite.Side()), nil
}

func (s *Syncer) upsert(ctx context.Context, t model.Task, m model.Mapping) error {
	err := s.store.Upsert(ctx, m)
	if errors.Is(err, store.ErrConflict) {
		return syncerr.DataIntegrity(s.origin.Side(), "upsert", t.ID, err)
	}
	if err != nil {
		return syncerr.StoreUnavailable("upsert", err)
	}
	return nil
}

func (s *Syncer) resolveLedger(p *pass, t model.Task) {
	if s.opts.Ledger == nil {
		return
	}
	if e, ok := s.opts.Ledger.Resolve(s.origin.Side(), t.ID); ok {
		p.logger.Info("Linked previously deferred task",
			zap.String("origin_id", t.ID),
			zap.Int("attempts", e.Attempts),
			zap.Duration("waited", p.now.Sub(e.FirstDeferred)))
	}
}

// reviewLedger forgets deferred tasks that left the origin and escalates
// the ones that have waited too long.
func (s *Syncer) reviewLedger(p *pass) {
	if s.opts.Ledger == nil {
		return
	}
	present := make(map[string]struct{}, len(p.snapshot))
	for id := range p.snapshot {
		present[id] = struct{}{}
	}
	for _, e := range s.opts.Ledger.Retain(s.origin.Side(), present) {
		p.logger.Debug("Dropping deferred task gone from origin", zap.String("origin_id", e.TaskID))
	}

	if s.opts.EscalateAfter <= 0 {
		return
	}
	for _, e := range s.opts.Ledger.Sweep(s.origin.Side(), p.now.Add(-s.opts.EscalateAfter), p.now) {
		p.report.Errors++
		err := syncerr.DataIntegrity(s.origin.Side(), "link", e.TaskID, errors.New(e.Reason))
		p.logger.Error("Task has been deferred too long",
			zap.String("origin_id", e.TaskID),
			zap.String("title", e.Title),
			zap.Int("attempts", e.Attempts),
			zap.Error(err))
	}
}

func later(a, b time.Time) time.Time {
	if b.After(a) {
		return b.UTC()
	}
	return a.UTC()
}
