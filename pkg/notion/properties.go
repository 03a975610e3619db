package notion

import (
	"strings"
	"time"

	"github.com/jomei/notionapi"

	"github.com/harrisonrobin/tasklink/pkg/convert"
)

// record extracts the task columns of a page.
func (c *Client) record(page *notionapi.Page) convert.NotionRecord {
	rec := convert.NotionRecord{
		ID:         string(page.ID),
		LastEdited: page.LastEditedTime,
	}
	props := page.Properties

	if p, ok := props[c.props.Title].(*notionapi.TitleProperty); ok {
		rec.Title = plainText(p.Title)
	}
	if p, ok := props[c.props.Notes].(*notionapi.RichTextProperty); ok {
		rec.Notes = plainText(p.RichText)
	}
	rec.StatusID, _ = statusOf(props[c.props.Status])
	if p, ok := props[c.props.Due].(*notionapi.DateProperty); ok && p.Date != nil && p.Date.Start != nil {
		rec.Due = time.Time(*p.Date.Start)
	}
	rec.BucketID = firstRelation(props[c.props.List])
	rec.ParentID = firstRelation(props[c.props.Parent])
	return rec
}

// statusOf returns the option id and name of a select or status property.
func statusOf(p notionapi.Property) (string, string) {
	switch v := p.(type) {
	case *notionapi.SelectProperty:
		return string(v.Select.ID), v.Select.Name
	case *notionapi.StatusProperty:
		return string(v.Status.ID), v.Status.Name
	}
	return "", ""
}

// keepStatus returns the page's current status name when it already agrees
// with done, so options like "In progress" survive an update from Google.
func keepStatus(p notionapi.Property, want string, done bool, statuses convert.StatusTable) string {
	id, name := statusOf(p)
	if id == "" || name == "" || statuses.IsDone(id) != done {
		return want
	}
	return name
}

func firstRelation(p notionapi.Property) string {
	r, ok := p.(*notionapi.RelationProperty)
	if !ok || len(r.Relation) == 0 {
		return ""
	}
	return convert.NormalizeNotionID(string(r.Relation[0].ID))
}

// properties renders every writable column except the parent relation.
func (c *Client) properties(f convert.NotionFields) notionapi.Properties {
	props := notionapi.Properties{
		c.props.Title: &notionapi.TitleProperty{Title: richText(f.Title)},
		c.props.Notes: &notionapi.RichTextProperty{RichText: richText(f.Notes)},
		c.props.List:  relation(f.BucketID),
	}
	if c.props.StatusKind == StatusKindStatus {
		props[c.props.Status] = &notionapi.StatusProperty{Status: notionapi.Status{Name: f.StatusName}}
	} else {
		props[c.props.Status] = &notionapi.SelectProperty{Select: notionapi.Option{Name: f.StatusName}}
	}
	due := &notionapi.DateProperty{}
	if !f.Due.IsZero() {
		start := notionapi.Date(f.Due)
		due.Date = &notionapi.DateObject{Start: &start}
	}
	props[c.props.Due] = due
	return props
}

// matches reports whether writing f over page would change nothing visible.
func (c *Client) matches(page *notionapi.Page, f convert.NotionFields) bool {
	rec := c.record(page)
	_, statusName := statusOf(page.Properties[c.props.Status])
	return rec.Title == f.Title &&
		rec.Notes == f.Notes &&
		statusName == f.StatusName &&
		convert.DateOnly(rec.Due).Equal(convert.DateOnly(f.Due)) &&
		rec.BucketID == convert.NormalizeNotionID(f.BucketID)
}

func relation(id string) *notionapi.RelationProperty {
	rel := []notionapi.Relation{}
	if id != "" {
		rel = append(rel, notionapi.Relation{ID: notionapi.PageID(id)})
	}
	return &notionapi.RelationProperty{Relation: rel}
}

func richText(s string) []notionapi.RichText {
	if s == "" {
		return []notionapi.RichText{}
	}
	return []notionapi.RichText{{
		Type: notionapi.ObjectTypeText,
		Text: &notionapi.Text{Content: s},
	}}
}

func plainText(rt []notionapi.RichText) string {
	var b strings.Builder
	for _, r := range rt {
		if r.PlainText != "" {
			b.WriteString(r.PlainText)
		} else if r.Text != nil {
			b.WriteString(r.Text.Content)
		}
	}
	return b.String()
}
