// Package convert maps tasks between the Notion and Google Tasks field
// vocabularies. Everything here is pure: no I/O, no parent lookups.
package convert

// StatusOption is one row of the status table: a Notion select option and
// whether it counts as done.
type StatusOption struct {
	NotionID string
	Name     string
	Done     bool
}

// StatusTable translates Notion status ids to a done flag and back.
type StatusTable struct {
	options []StatusOption
}

// NewStatusTable builds a table from configured rows. Order matters: Option
// returns the first row matching the requested done flag.
func NewStatusTable(options []StatusOption) StatusTable {
	return StatusTable{options: append([]StatusOption(nil), options...)}
}

// IsDone reports whether the Notion status id maps to done. Unknown ids are
// not done.
func (t StatusTable) IsDone(notionID string) bool {
	for _, o := range t.options {
		if o.NotionID == notionID {
			return o.Done
		}
	}
	return false
}

// Option returns the status to write on Notion for a done flag.
func (t StatusTable) Option(done bool) (StatusOption, bool) {
	for _, o := range t.options {
		if o.Done == done {
			return o, true
		}
	}
	return StatusOption{}, false
}

// Len returns the number of configured statuses.
func (t StatusTable) Len() int { return len(t.options) }

// ListRow pairs a Notion bucket with a Google tasklist under one name.
type ListRow struct {
	Name             string
	NotionBucketID   string
	GoogleTasklistID string
}

// ListTable is the bucket <-> tasklist correspondence.
type ListTable struct {
	rows []ListRow
}

func NewListTable(rows []ListRow) ListTable {
	return ListTable{rows: append([]ListRow(nil), rows...)}
}

func (t ListTable) ByName(name string) (ListRow, bool) {
	return t.find(func(r ListRow) bool { return r.Name == name })
}

func (t ListTable) ByBucket(bucketID string) (ListRow, bool) {
	bucketID = NormalizeNotionID(bucketID)
	return t.find(func(r ListRow) bool { return NormalizeNotionID(r.NotionBucketID) == bucketID })
}

func (t ListTable) ByTasklist(tasklistID string) (ListRow, bool) {
	return t.find(func(r ListRow) bool { return r.GoogleTasklistID == tasklistID })
}

// Rows returns a copy of all rows.
func (t ListTable) Rows() []ListRow {
	return append([]ListRow(nil), t.rows...)
}

func (t ListTable) find(match func(ListRow) bool) (ListRow, bool) {
	for _, r := range t.rows {
		if match(r) {
			return r, true
		}
	}
	return ListRow{}, false
}
