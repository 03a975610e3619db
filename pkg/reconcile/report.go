package reconcile

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

// Report summarizes one pass.
type Report struct {
	Origin   model.Side
	Opposite model.Side
	RunID    string

	Seen      int
	Created   int
	Updated   int
	Moved     int
	Unchanged int
	Skipped   int
	Deferred  int
	Failed    int
	Deleted   int
	Errors    int

	// SweepSkipped is set when the deletion guard held back the sweep.
	SweepSkipped bool
	Duration     time.Duration
}

// Writes counts the changes made on the opposite side and in the store.
func (r Report) Writes() int {
	return r.Created + r.Updated + r.Moved + r.Deleted
}

func (r Report) String() string {
	return fmt.Sprintf("%s -> %s: seen=%d created=%d updated=%d moved=%d unchanged=%d skipped=%d deferred=%d failed=%d deleted=%d errors=%d (%s)",
		r.Origin, r.Opposite, r.Seen, r.Created, r.Updated, r.Moved, r.Unchanged,
		r.Skipped, r.Deferred, r.Failed, r.Deleted, r.Errors, r.Duration.Round(time.Millisecond))
}

func (r Report) fields() []zap.Field {
	return []zap.Field{
		zap.Int("seen", r.Seen),
		zap.Int("created", r.Created),
		zap.Int("updated", r.Updated),
		zap.Int("moved", r.Moved),
		zap.Int("unchanged", r.Unchanged),
		zap.Int("skipped", r.Skipped),
		zap.Int("deferred", r.Deferred),
		zap.Int("failed", r.Failed),
		zap.Int("deleted", r.Deleted),
		zap.Int("errors", r.Errors),
		zap.Bool("sweep_skipped", r.SweepSkipped),
		zap.Duration("took", r.Duration),
	}
}
