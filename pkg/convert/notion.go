package convert

import (
	"strings"
	"time"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

// NotionRecord holds the raw properties of a Notion task page.
type NotionRecord struct {
	ID         string
	Title      string
	Notes      string
	StatusID   string
	BucketID   string
	ParentID   string
	Due        time.Time
	LastEdited time.Time
}

// NotionFields is what gets written to a Notion task page.
type NotionFields struct {
	Title      string
	Notes      string
	StatusName string
	Due        time.Time
	BucketID   string
	ParentID   string
}

// TaskFromNotion converts a Notion page into a side-neutral task.
func TaskFromNotion(rec NotionRecord, statuses StatusTable, lists ListTable) model.Task {
	t := model.Task{
		ID:           NormalizeNotionID(rec.ID),
		Title:        rec.Title,
		Notes:        rec.Notes,
		StatusID:     rec.StatusID,
		ParentID:     NormalizeNotionID(rec.ParentID),
		Due:          DateOnly(rec.Due),
		LastModified: rec.LastEdited.UTC(),
	}
	if rec.StatusID != "" {
		t.Status = model.StatusTodo
		if statuses.IsDone(rec.StatusID) {
			t.Status = model.StatusDone
		}
	}
	if row, ok := lists.ByBucket(rec.BucketID); ok && rec.BucketID != "" {
		t.List = row.Name
	}
	return t
}

// NotionFieldsFor builds the Notion payload for t. The parent must already be
// resolved to a Notion page id by the caller.
func NotionFieldsFor(t model.Task, statuses StatusTable, lists ListTable) (NotionFields, error) {
	if t.Status == model.StatusUnset {
		return NotionFields{}, syncerr.MissingField(model.SideNotion, t.ID, "status")
	}
	opt, ok := statuses.Option(t.Status == model.StatusDone)
	if !ok {
		return NotionFields{}, syncerr.MissingField(model.SideNotion, t.ID, "status option for "+string(t.Status))
	}
	row, ok := lists.ByName(t.List)
	if !ok || t.List == "" {
		return NotionFields{}, syncerr.MissingField(model.SideNotion, t.ID, "bucket")
	}
	return NotionFields{
		Title:      t.Title,
		Notes:      t.Notes,
		StatusName: opt.Name,
		Due:        DateOnly(t.Due),
		BucketID:   row.NotionBucketID,
		ParentID:   t.ParentID,
	}, nil
}

// NormalizeNotionID renders a Notion id in its dashed 8-4-4-4-12 form so ids
// copied from URLs and ids returned by the API compare equal.
func NormalizeNotionID(id string) string {
	raw := strings.ReplaceAll(strings.TrimSpace(id), "-", "")
	if len(raw) != 32 {
		return strings.TrimSpace(id)
	}
	raw = strings.ToLower(raw)
	return raw[0:8] + "-" + raw[8:12] + "-" + raw[12:16] + "-" + raw[16:20] + "-" + raw[20:]
}

// DateOnly truncates t to its calendar date at midnight UTC.
func DateOnly(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
