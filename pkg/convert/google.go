package convert

import (
	"fmt"
	"time"

	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

const (
	GoogleStatusTodo = "needsAction"
	GoogleStatusDone = "completed"
)

// GoogleFields is what gets written to a Google task.
type GoogleFields struct {
	Title      string
	Notes      string
	Status     string
	Due        string
	TasklistID string
	ParentID   string
}

// TaskFromGoogle converts a Google task living in the named list.
func TaskFromGoogle(gt *tasks.Task, listName string) (model.Task, error) {
	if gt == nil {
		return model.Task{}, fmt.Errorf("could not convert nil Task")
	}
	updated, err := ParseGoogleTime(gt.Updated)
	if err != nil {
		return model.Task{}, fmt.Errorf("task %s: updated: %w", gt.Id, err)
	}
	t := model.Task{
		ID:           gt.Id,
		Title:        gt.Title,
		Notes:        gt.Notes,
		Status:       model.StatusTodo,
		StatusID:     gt.Status,
		ParentID:     gt.Parent,
		List:         listName,
		LastModified: updated,
	}
	if gt.Status == GoogleStatusDone {
		t.Status = model.StatusDone
	}
	if gt.Due != "" {
		due, err := ParseGoogleTime(gt.Due)
		if err != nil {
			return model.Task{}, fmt.Errorf("task %s: due: %w", gt.Id, err)
		}
		t.Due = DateOnly(due)
	}
	return t, nil
}

// GoogleFieldsFor builds the Google payload for t. The parent must already
// be resolved to a Google task id by the caller.
func GoogleFieldsFor(t model.Task, lists ListTable) (GoogleFields, error) {
	if t.Status == model.StatusUnset {
		return GoogleFields{}, syncerr.MissingField(model.SideGoogle, t.ID, "status")
	}
	row, ok := lists.ByName(t.List)
	if !ok || t.List == "" {
		return GoogleFields{}, syncerr.MissingField(model.SideGoogle, t.ID, "tasklist")
	}
	status := GoogleStatusTodo
	if t.Status == model.StatusDone {
		status = GoogleStatusDone
	}
	return GoogleFields{
		Title:      t.Title,
		Notes:      t.Notes,
		Status:     status,
		Due:        FormatGoogleDue(t.Due),
		TasklistID: row.GoogleTasklistID,
		ParentID:   t.ParentID,
	}, nil
}

// GoogleFieldsOf reads the writable fields back from an existing task.
func GoogleFieldsOf(gt *tasks.Task, tasklistID string) GoogleFields {
	f := GoogleFields{
		Title:      gt.Title,
		Notes:      gt.Notes,
		Status:     gt.Status,
		TasklistID: tasklistID,
		ParentID:   gt.Parent,
	}
	if due, err := ParseGoogleTime(gt.Due); err == nil {
		f.Due = FormatGoogleDue(due)
	}
	return f
}

// GoogleFieldsEqual reports whether writing want over have would change
// anything visible. The parent is excluded: it only changes through move.
func GoogleFieldsEqual(have, want GoogleFields) bool {
	return have.Title == want.Title &&
		have.Notes == want.Notes &&
		have.Status == want.Status &&
		have.Due == want.Due
}

// ToGoogleTask renders fields as an API resource.
func ToGoogleTask(f GoogleFields) *tasks.Task {
	gt := &tasks.Task{
		Title:  f.Title,
		Notes:  f.Notes,
		Status: f.Status,
		Due:    f.Due,
	}
	if f.Due == "" {
		gt.NullFields = append(gt.NullFields, "Due")
	}
	if f.Status == GoogleStatusTodo {
		// Reopening a task requires clearing its completion time.
		gt.NullFields = append(gt.NullFields, "Completed")
	}
	return gt
}

// FormatGoogleDue renders a due date the way Google Tasks stores it: the
// date at midnight UTC. The API discards the time portion.
func FormatGoogleDue(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return DateOnly(d).Format("2006-01-02T15:04:05.000Z")
}

// ParseGoogleTime parses an RFC 3339 timestamp with or without fractional seconds.
func ParseGoogleTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse Google time string '%s': %w", s, err)
	}
	return t.UTC(), nil
}
