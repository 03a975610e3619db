package notion

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/tasklink/pkg/convert"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

const (
	databaseID = "a1b2c3d4-0000-4000-8000-000000000001"
	workBucket = "5d9f3c1a-0c1e-4f7b-9d55-2a8b77c01e11"
	todoOption = "c062eac1-aff7-4c30-b4bb-76656a4c5495"
	doneOption = "8be52672-830d-4447-86d2-1072bb266d92"
	busyOption = "3f0c9e1a-6b7d-4e2f-9a10-4c5d6e7f8a9b"
)

// fakeNotion keeps pages in memory and resolves select names to option ids
// like the real API.
type fakeNotion struct {
	pages   map[string]*notionapi.Page
	order   []string
	seq     int
	options map[string]string
	creates int
	updates int
	queries int
	last    *notionapi.PageUpdateRequest
}

func newFakeNotion() *fakeNotion {
	return &fakeNotion{
		pages:   make(map[string]*notionapi.Page),
		options: map[string]string{"To Do": todoOption, "Done": doneOption, "In progress": busyOption},
	}
}

func (f *fakeNotion) nextID() string {
	f.seq++
	return fmt.Sprintf("%08x-0000-4000-8000-%012x", f.seq, f.seq)
}

func (f *fakeNotion) notFound() error {
	return &notionapi.Error{Status: 404, Code: "object_not_found", Message: "Could not find page"}
}

func (f *fakeNotion) resolve(props notionapi.Properties) (notionapi.Properties, error) {
	out := notionapi.Properties{}
	for name, p := range props {
		switch v := p.(type) {
		case *notionapi.SelectProperty:
			opt := v.Select
			opt.ID = notionapi.PropertyID(f.options[opt.Name])
			out[name] = &notionapi.SelectProperty{Select: opt}
		case *notionapi.RelationProperty:
			for _, r := range v.Relation {
				if _, ok := f.pages[string(r.ID)]; !ok && string(r.ID) != workBucket {
					return nil, &notionapi.Error{Status: 400, Code: "validation_error", Message: "related page not found"}
				}
			}
			out[name] = v
		default:
			out[name] = p
		}
	}
	return out, nil
}

func (f *fakeNotion) Get(_ context.Context, id notionapi.PageID) (*notionapi.Page, error) {
	p, ok := f.pages[string(id)]
	if !ok {
		return nil, f.notFound()
	}
	cp := *p
	return &cp, nil
}

func (f *fakeNotion) Create(_ context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	if req.Parent.DatabaseID != databaseID {
		return nil, f.notFound()
	}
	props, err := f.resolve(req.Properties)
	if err != nil {
		return nil, err
	}
	f.creates++
	id := f.nextID()
	page := &notionapi.Page{ID: notionapi.ObjectID(id), LastEditedTime: time.Now().UTC(), Properties: props}
	f.pages[id] = page
	f.order = append(f.order, id)
	return f.Get(context.Background(), notionapi.PageID(id))
}

func (f *fakeNotion) Update(_ context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	p, ok := f.pages[string(id)]
	if !ok {
		return nil, f.notFound()
	}
	props, err := f.resolve(req.Properties)
	if err != nil {
		return nil, err
	}
	f.updates++
	f.last = req
	for name, v := range props {
		p.Properties[name] = v
	}
	p.Archived = req.Archived
	p.LastEditedTime = time.Now().UTC()
	return f.Get(context.Background(), id)
}

func (f *fakeNotion) Query(_ context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	if string(id) != databaseID {
		return nil, f.notFound()
	}
	f.queries++
	start := 0
	if req.StartCursor != "" {
		start, _ = strconv.Atoi(string(req.StartCursor))
	}
	end := start + req.PageSize
	if end > len(f.order) {
		end = len(f.order)
	}
	resp := &notionapi.DatabaseQueryResponse{}
	for _, pid := range f.order[start:end] {
		resp.Results = append(resp.Results, *f.pages[pid])
	}
	if end < len(f.order) {
		resp.HasMore = true
		resp.NextCursor = notionapi.Cursor(strconv.Itoa(end))
	}
	return resp, nil
}

func testClient(t *testing.T, api *fakeNotion, opts Options) *Client {
	t.Helper()
	statuses := convert.NewStatusTable([]convert.StatusOption{
		{NotionID: todoOption, Name: "To Do"},
		{NotionID: doneOption, Name: "Done", Done: true},
	})
	lists := convert.NewListTable([]convert.ListRow{{Name: "Work", NotionBucketID: workBucket, GoogleTasklistID: "L1"}})
	opts.DatabaseID = databaseID
	c, err := newClient(api, api, statuses, lists, opts)
	require.NoError(t, err)
	return c
}

func milk() model.Task {
	return model.Task{ID: "g1", Title: "Buy milk", Notes: "2 liters", Status: model.StatusTodo, List: "Work"}
}

func TestCreateAndList(t *testing.T) {
	api := newFakeNotion()
	c := testClient(t, api, Options{PageSize: 2})
	ctx := context.Background()

	parent, err := c.Create(ctx, milk())
	require.NoError(t, err)
	assert.Equal(t, "Buy milk", parent.Title)
	assert.Equal(t, model.StatusTodo, parent.Status)
	assert.Equal(t, "Work", parent.List)

	child := milk()
	child.Title = "Oat milk"
	child.Status = model.StatusDone
	child.ParentID = parent.ID
	child.Due = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	created, err := c.Create(ctx, child)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, created.ParentID)

	_, err = c.Create(ctx, milk())
	require.NoError(t, err)

	all, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 2, api.queries)
	assert.Equal(t, model.StatusDone, all[1].Status)
	assert.Equal(t, doneOption, all[1].StatusID)
	assert.True(t, all[1].Due.Equal(child.Due))
	assert.Equal(t, "2 liters", all[0].Notes)
}

func TestListSkipsArchived(t *testing.T) {
	api := newFakeNotion()
	c := testClient(t, api, Options{})
	ctx := context.Background()

	created, err := c.Create(ctx, milk())
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, created.ID))

	all, err := c.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateRejectsUnknownParent(t *testing.T) {
	c := testClient(t, newFakeNotion(), Options{})
	task := milk()
	task.ParentID = "ffffffff-0000-4000-8000-ffffffffffff"

	_, err := c.Create(context.Background(), task)
	assert.ErrorIs(t, err, syncerr.ErrInvalidParent)
}

func TestValidate(t *testing.T) {
	c := testClient(t, newFakeNotion(), Options{})
	assert.NoError(t, c.Validate(milk()))

	noList := milk()
	noList.List = "Garden"
	assert.ErrorIs(t, c.Validate(noList), syncerr.ErrMissingField)
}

func TestUpdate(t *testing.T) {
	api := newFakeNotion()
	c := testClient(t, api, Options{})
	ctx := context.Background()

	created, err := c.Create(ctx, milk())
	require.NoError(t, err)

	_, err = c.Update(ctx, created.ID, milk())
	require.NoError(t, err)
	assert.Zero(t, api.updates, "unchanged fields must not be written")

	done := milk()
	done.Status = model.StatusDone
	updated, err := c.Update(ctx, created.ID, done)
	require.NoError(t, err)
	assert.Equal(t, 1, api.updates)
	assert.Equal(t, model.StatusDone, updated.Status)
	assert.NotContains(t, api.last.Properties, "Parent tasks")

	_, err = c.Update(ctx, "00000000-0000-4000-8000-000000000000", done)
	assert.ErrorIs(t, err, syncerr.ErrNotFound)
}

func TestUpdateKeepsStatusWithSameDoneFlag(t *testing.T) {
	api := newFakeNotion()
	c := testClient(t, api, Options{})
	ctx := context.Background()

	created, err := c.Create(ctx, milk())
	require.NoError(t, err)
	api.pages[created.ID].Properties["Status"] = &notionapi.SelectProperty{
		Select: notionapi.Option{ID: notionapi.PropertyID(busyOption), Name: "In progress"},
	}

	_, err = c.Update(ctx, created.ID, milk())
	require.NoError(t, err)
	assert.Zero(t, api.updates, "a not-done option other than To Do still matches a todo task")

	renamed := milk()
	renamed.Title = "Buy oat milk"
	updated, err := c.Update(ctx, created.ID, renamed)
	require.NoError(t, err)
	assert.Equal(t, 1, api.updates)
	assert.Equal(t, "Buy oat milk", updated.Title)
	id, name := statusOf(api.pages[created.ID].Properties["Status"])
	assert.Equal(t, busyOption, id)
	assert.Equal(t, "In progress", name)
	assert.Equal(t, model.StatusTodo, updated.Status)

	done := renamed
	done.Status = model.StatusDone
	updated, err = c.Update(ctx, created.ID, done)
	require.NoError(t, err)
	assert.Equal(t, 2, api.updates)
	assert.Equal(t, model.StatusDone, updated.Status)
	id, _ = statusOf(api.pages[created.ID].Properties["Status"])
	assert.Equal(t, doneOption, id)
}

func TestDelete(t *testing.T) {
	api := newFakeNotion()
	c := testClient(t, api, Options{})
	ctx := context.Background()

	created, err := c.Create(ctx, milk())
	require.NoError(t, err)
	require.NoError(t, c.Delete(ctx, created.ID))
	assert.True(t, api.pages[created.ID].Archived)

	assert.ErrorIs(t, c.Delete(ctx, created.ID), syncerr.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, "00000000-0000-4000-8000-000000000000"), syncerr.ErrNotFound)
}

func TestMoveParent(t *testing.T) {
	c := testClient(t, newFakeNotion(), Options{})
	ctx := context.Background()

	parent, err := c.Create(ctx, milk())
	require.NoError(t, err)
	child, err := c.Create(ctx, milk())
	require.NoError(t, err)

	moved, err := c.MoveParent(ctx, child.ID, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, moved.ParentID)

	moved, err = c.MoveParent(ctx, child.ID, "")
	require.NoError(t, err)
	assert.Empty(t, moved.ParentID)

	_, err = c.MoveParent(ctx, child.ID, "ffffffff-0000-4000-8000-ffffffffffff")
	assert.ErrorIs(t, err, syncerr.ErrInvalidParent)
}

func TestStatusPropertyKind(t *testing.T) {
	c := testClient(t, newFakeNotion(), Options{Properties: Properties{StatusKind: StatusKindStatus}})
	props := c.properties(convert.NotionFields{Title: "x", StatusName: "Done", BucketID: workBucket})

	p, ok := props["Status"].(*notionapi.StatusProperty)
	require.True(t, ok)
	assert.Equal(t, "Done", p.Status.Name)

	due, ok := props["Due"].(*notionapi.DateProperty)
	require.True(t, ok)
	assert.Nil(t, due.Date, "an empty due date clears the column")
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		withParent bool
		want       error
	}{
		{"missing page", &notionapi.Error{Status: 404, Code: "object_not_found"}, false, syncerr.ErrNotFound},
		{"rate limited", &notionapi.Error{Status: 429, Code: "rate_limited"}, false, syncerr.ErrTransient},
		{"server", &notionapi.Error{Status: 502}, false, syncerr.ErrTransient},
		{"bad relation", &notionapi.Error{Status: 400, Code: "validation_error"}, true, syncerr.ErrInvalidParent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tc.err, "op", "id", tc.withParent), tc.want)
		})
	}
	err := classify(&notionapi.Error{Status: 400, Code: "validation_error"}, "op", "id", false)
	assert.Equal(t, syncerr.KindUnknown, syncerr.KindOf(err))
	assert.NoError(t, classify(nil, "op", "id", false))
	assert.Equal(t, syncerr.KindUnknown, syncerr.KindOf(classify(errors.New("boom"), "op", "id", false)))
}

func TestNewClientRequiresDatabase(t *testing.T) {
	api := newFakeNotion()
	_, err := newClient(api, api, convert.StatusTable{}, convert.ListTable{}, Options{})
	assert.Error(t, err)
	_, err = NewClient("", convert.StatusTable{}, convert.ListTable{}, Options{DatabaseID: databaseID})
	assert.Error(t, err)
}
