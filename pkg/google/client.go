package google

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/tasklink/pkg/auth"
	"github.com/harrisonrobin/tasklink/pkg/convert"
	"github.com/harrisonrobin/tasklink/pkg/index"
	"github.com/harrisonrobin/tasklink/pkg/retry"
)

// Options configures a Client.
type Options struct {
	Logger *zap.Logger
	Retry  retry.Policy
}

// NewClient authenticates and returns a client for the configured lists.
func NewClient(ctx context.Context, authOpts auth.Options, lists convert.ListTable, idx *index.TasklistIndex, opts Options) (*Client, error) {
	srv, err := auth.GetTasksService(ctx, authOpts)
	if err != nil {
		return nil, err
	}
	return NewTasksClient(ctx, srv, lists, idx, opts)
}

// NewTasksClient wraps an existing service. Tasklists given by title are
// resolved to their ids here.
func NewTasksClient(ctx context.Context, srv *tasks.Service, lists convert.ListTable, idx *index.TasklistIndex, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if idx == nil {
		idx, _ = index.New("")
	}
	c := &Client{
		srv:    srv,
		index:  idx,
		retry:  opts.Retry,
		logger: opts.Logger.Named("google"),
	}
	if err := c.SetLists(ctx, lists); err != nil {
		return nil, err
	}
	return c, nil
}

// NewServiceForEndpoint builds an unauthenticated service talking to
// endpoint. It exists for tests and local API fakes.
func NewServiceForEndpoint(ctx context.Context, endpoint string, opts ...option.ClientOption) (*tasks.Service, error) {
	opts = append([]option.ClientOption{option.WithEndpoint(endpoint), option.WithoutAuthentication()}, opts...)
	srv, err := tasks.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create Tasks service: %w", err)
	}
	return srv, nil
}

// SetLists replaces the list table, resolving tasklist titles to ids.
func (c *Client) SetLists(ctx context.Context, lists convert.ListTable) error {
	all, err := c.tasklists(ctx)
	if err != nil {
		return fmt.Errorf("unable to retrieve tasklists: %w", err)
	}

	rows := lists.Rows()
	for i, row := range rows {
		id, err := resolveTasklist(all, row.GoogleTasklistID)
		if err != nil {
			return fmt.Errorf("list %q: %w", row.Name, err)
		}
		rows[i].GoogleTasklistID = id
	}

	c.mu.Lock()
	c.lists = convert.NewListTable(rows)
	c.mu.Unlock()
	return nil
}

// tasklists returns every tasklist of the account, mapped or not.
func (c *Client) tasklists(ctx context.Context) ([]*tasks.TaskList, error) {
	var all []*tasks.TaskList
	err := c.srv.Tasklists.List().MaxResults(100).Pages(ctx, func(page *tasks.TaskLists) error {
		all = append(all, page.Items...)
		return nil
	})
	return all, classify(err, "list_tasklists", "")
}

func resolveTasklist(all []*tasks.TaskList, ref string) (string, error) {
	for _, tl := range all {
		if tl.Id == ref {
			return tl.Id, nil
		}
	}
	for _, tl := range all {
		if tl.Title == ref {
			return tl.Id, nil
		}
	}
	return "", fmt.Errorf("tasklist '%s' not found", ref)
}
