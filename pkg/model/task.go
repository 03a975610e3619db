package model

import "time"

// Side identifies one of the two task systems kept in sync.
type Side string

const (
	// SideNotion is the Notion task database (side A).
	SideNotion Side = "notion"
	// SideGoogle is the Google Tasks account (side B).
	SideGoogle Side = "google"
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideNotion {
		return SideGoogle
	}
	return SideNotion
}

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideNotion || s == SideGoogle
}

func (s Side) String() string { return string(s) }

// Status is the side-neutral completion state of a task.
type Status string

const (
	StatusUnset Status = ""
	StatusTodo  Status = "todo"
	StatusDone  Status = "done"
)

// Task represents a task as read from either side.
type Task struct {
	ID    string
	Title string
	Notes string
	// Status is derived from StatusID through the status table on Notion,
	// and from the needsAction/completed field on Google.
	Status   Status
	StatusID string
	// ParentID is the parent's id on the same side as ID.
	ParentID string
	// List is the side-neutral container name (Notion bucket / Google tasklist).
	List         string
	Due          time.Time
	LastModified time.Time
}

// HasParent reports whether the task is a subtask.
func (t Task) HasParent() bool { return t.ParentID != "" }

// WithParent returns a copy of t whose parent is parentID.
func (t Task) WithParent(parentID string) Task {
	t.ParentID = parentID
	return t
}
