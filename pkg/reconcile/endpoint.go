// Package reconcile mirrors one side's tasks onto the other. A Syncer walks
// the origin snapshot, creates or updates counterparts through the opposite
// Endpoint, records links in the mapping store and finally sweeps links whose
// origin task disappeared. Two Syncers with swapped roles give two-way sync.
package reconcile

import (
	"context"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

// Endpoint is what a Syncer needs from one task system.
//
// Tasks handed to Create, Update and MoveParent carry parent ids that are
// already valid on this endpoint's side. Update never changes the parent;
// MoveParent does. Implementations report failures as syncerr kinds.
type Endpoint interface {
	Side() model.Side
	// List returns the complete current snapshot.
	List(ctx context.Context) ([]model.Task, error)
	// Validate reports a syncerr.MissingField error when t lacks something
	// this side needs to hold it.
	Validate(t model.Task) error
	Create(ctx context.Context, t model.Task) (model.Task, error)
	Update(ctx context.Context, id string, t model.Task) (model.Task, error)
	Delete(ctx context.Context, id string) error
	// MoveParent makes parentID the parent of id. An empty parentID moves the
	// task to the top level.
	MoveParent(ctx context.Context, id, parentID string) (model.Task, error)
}

// Inventory is implemented by endpoints whose List covers only part of the
// account. ListIDs returns every task id that still exists, so the sweep
// leaves links to tasks outside the snapshot alone.
type Inventory interface {
	ListIDs(ctx context.Context) (map[string]struct{}, error)
}
