// Package notion is the Notion side of the sync: one database whose pages
// are tasks.
package notion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jomei/notionapi"
	"go.uber.org/zap"

	"github.com/harrisonrobin/tasklink/pkg/convert"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/retry"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

// Property kinds accepted for the status column.
const (
	StatusKindSelect = "select"
	StatusKindStatus = "status"
)

// Properties names the database columns holding each task field.
type Properties struct {
	Title  string
	Notes  string
	Status string
	// StatusKind is select or status.
	StatusKind string
	Due        string
	List       string
	Parent     string
}

// DefaultProperties matches the column names of the stock task template.
func DefaultProperties() Properties {
	return Properties{
		Title:      "Task",
		Notes:      "Details",
		Status:     "Status",
		StatusKind: StatusKindSelect,
		Due:        "Due",
		List:       "Bucket",
		Parent:     "Parent tasks",
	}
}

type pageAPI interface {
	Get(ctx context.Context, id notionapi.PageID) (*notionapi.Page, error)
	Create(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	Update(ctx context.Context, id notionapi.PageID, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

type databaseAPI interface {
	Query(ctx context.Context, id notionapi.DatabaseID, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
}

// Options configures a Client.
type Options struct {
	DatabaseID string
	Properties Properties
	Logger     *zap.Logger
	Retry      retry.Policy
	// PageSize for database queries, at most 100.
	PageSize int
}

// Client implements the sync endpoint over the Notion API.
type Client struct {
	pages     pageAPI
	databases databaseAPI
	database  notionapi.DatabaseID
	props     Properties
	pageSize  int
	retry     retry.Policy
	logger    *zap.Logger

	mu       sync.RWMutex
	statuses convert.StatusTable
	lists    convert.ListTable
}

// NewClient connects with an integration token.
func NewClient(token string, statuses convert.StatusTable, lists convert.ListTable, opts Options) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("notion token is empty")
	}
	api := notionapi.NewClient(notionapi.Token(token))
	return newClient(api.Page, api.Database, statuses, lists, opts)
}

func newClient(pages pageAPI, databases databaseAPI, statuses convert.StatusTable, lists convert.ListTable, opts Options) (*Client, error) {
	if opts.DatabaseID == "" {
		return nil, fmt.Errorf("notion database id is empty")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.PageSize <= 0 || opts.PageSize > 100 {
		opts.PageSize = 100
	}
	props := opts.Properties
	defaults := DefaultProperties()
	if props.Title == "" {
		props.Title = defaults.Title
	}
	if props.Notes == "" {
		props.Notes = defaults.Notes
	}
	if props.Status == "" {
		props.Status = defaults.Status
	}
	if props.StatusKind == "" {
		props.StatusKind = defaults.StatusKind
	}
	if props.Due == "" {
		props.Due = defaults.Due
	}
	if props.List == "" {
		props.List = defaults.List
	}
	if props.Parent == "" {
		props.Parent = defaults.Parent
	}
	return &Client{
		pages:     pages,
		databases: databases,
		database:  notionapi.DatabaseID(convert.NormalizeNotionID(opts.DatabaseID)),
		props:     props,
		pageSize:  opts.PageSize,
		retry:     opts.Retry,
		logger:    opts.Logger.Named("notion"),
		statuses:  statuses,
		lists:     lists,
	}, nil
}

// SetTables swaps the status and list tables, e.g. after a config reload.
func (c *Client) SetTables(statuses convert.StatusTable, lists convert.ListTable) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = statuses
	c.lists = lists
}

func (c *Client) tables() (convert.StatusTable, convert.ListTable) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.statuses, c.lists
}

func (c *Client) Side() model.Side { return model.SideNotion }

// List queries the whole task database.
func (c *Client) List(ctx context.Context) ([]model.Task, error) {
	statuses, lists := c.tables()
	var out []model.Task
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{StartCursor: cursor, PageSize: c.pageSize}
		resp, err := retry.Do(ctx, c.retry, c.logger, func() (*notionapi.DatabaseQueryResponse, error) {
			resp, err := c.databases.Query(ctx, c.database, req)
			return resp, classify(err, "query", string(c.database), false)
		})
		if err != nil {
			return nil, err
		}
		for i := range resp.Results {
			page := &resp.Results[i]
			if page.Archived {
				continue
			}
			out = append(out, convert.TaskFromNotion(c.record(page), statuses, lists))
		}
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	c.logger.Debug("Queried task database", zap.Int("pages", len(out)))
	return out, nil
}

func (c *Client) Validate(t model.Task) error {
	statuses, lists := c.tables()
	_, err := convert.NotionFieldsFor(t, statuses, lists)
	return err
}

func (c *Client) Create(ctx context.Context, t model.Task) (model.Task, error) {
	statuses, lists := c.tables()
	fields, err := convert.NotionFieldsFor(t, statuses, lists)
	if err != nil {
		return model.Task{}, err
	}
	props := c.properties(fields)
	if fields.ParentID != "" {
		props[c.props.Parent] = relation(fields.ParentID)
	}
	req := &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: c.database,
		},
		Properties: props,
	}
	page, err := retry.Do(ctx, c.retry, c.logger, func() (*notionapi.Page, error) {
		page, err := c.pages.Create(ctx, req)
		return page, classify(err, "create", t.ID, fields.ParentID != "")
	})
	if err != nil {
		return model.Task{}, err
	}
	return convert.TaskFromNotion(c.record(page), statuses, lists), nil
}

// Update writes every field except the parent relation. Writes that would
// change nothing are skipped.
func (c *Client) Update(ctx context.Context, id string, t model.Task) (model.Task, error) {
	statuses, lists := c.tables()
	fields, err := convert.NotionFieldsFor(t, statuses, lists)
	if err != nil {
		return model.Task{}, err
	}
	current, err := c.get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	fields.StatusName = keepStatus(current.Properties[c.props.Status], fields.StatusName, t.Status == model.StatusDone, statuses)
	if c.matches(current, fields) {
		return convert.TaskFromNotion(c.record(current), statuses, lists), nil
	}

	page, err := c.update(ctx, "update", id, &notionapi.PageUpdateRequest{Properties: c.properties(fields)}, false)
	if err != nil {
		return model.Task{}, err
	}
	return convert.TaskFromNotion(c.record(page), statuses, lists), nil
}

// Delete archives the page. Pages already archived count as not found.
func (c *Client) Delete(ctx context.Context, id string) error {
	if _, err := c.get(ctx, id); err != nil {
		return err
	}
	_, err := c.update(ctx, "delete", id, &notionapi.PageUpdateRequest{Archived: true, Properties: notionapi.Properties{}}, false)
	return err
}

func (c *Client) MoveParent(ctx context.Context, id, parentID string) (model.Task, error) {
	req := &notionapi.PageUpdateRequest{
		Properties: notionapi.Properties{c.props.Parent: relation(parentID)},
	}
	page, err := c.update(ctx, "move", id, req, parentID != "")
	if err != nil {
		return model.Task{}, err
	}
	statuses, lists := c.tables()
	return convert.TaskFromNotion(c.record(page), statuses, lists), nil
}

func (c *Client) get(ctx context.Context, id string) (*notionapi.Page, error) {
	page, err := retry.Do(ctx, c.retry, c.logger, func() (*notionapi.Page, error) {
		page, err := c.pages.Get(ctx, notionapi.PageID(id))
		return page, classify(err, "get", id, false)
	})
	if err != nil {
		return nil, err
	}
	if page.Archived {
		return nil, syncerr.NotFound(model.SideNotion, "get", id, errors.New("page is archived"))
	}
	return page, nil
}

func (c *Client) update(ctx context.Context, op, id string, req *notionapi.PageUpdateRequest, withParent bool) (*notionapi.Page, error) {
	return retry.Do(ctx, c.retry, c.logger, func() (*notionapi.Page, error) {
		page, err := c.pages.Update(ctx, notionapi.PageID(id), req)
		return page, classify(err, op, id, withParent)
	})
}
