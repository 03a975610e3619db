package google

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/tasklink/pkg/convert"
	"github.com/harrisonrobin/tasklink/pkg/index"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/retry"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

// Client is the Google Tasks side of the sync.
type Client struct {
	srv    *tasks.Service
	index  *index.TasklistIndex
	retry  retry.Policy
	logger *zap.Logger

	mu    sync.RWMutex
	lists convert.ListTable
}

func (c *Client) Side() model.Side { return model.SideGoogle }

func (c *Client) listTable() convert.ListTable {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lists
}

// List returns every task of every configured tasklist, including completed
// and hidden ones.
func (c *Client) List(ctx context.Context) ([]model.Task, error) {
	var out []model.Task
	for _, row := range c.listTable().Rows() {
		items, err := c.listTasklist(ctx, row.GoogleTasklistID)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(items))
		for _, gt := range items {
			t, err := convert.TaskFromGoogle(gt, row.Name)
			if err != nil {
				return nil, syncerr.New(syncerr.KindUnknown, model.SideGoogle, "list", gt.Id, err)
			}
			out = append(out, t)
			ids = append(ids, gt.Id)
		}
		c.index.Replace(row.GoogleTasklistID, ids)
	}
	return out, nil
}

// ListIDs returns the ids of all tasks in the account, including tasklists
// with no list row. The index learns where each of them lives.
func (c *Client) ListIDs(ctx context.Context) (map[string]struct{}, error) {
	all, err := c.tasklists(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{})
	for _, tl := range all {
		items, err := c.listTasklist(ctx, tl.Id)
		if err != nil {
			return nil, err
		}
		ids := make([]string, 0, len(items))
		for _, gt := range items {
			out[gt.Id] = struct{}{}
			ids = append(ids, gt.Id)
		}
		c.index.Replace(tl.Id, ids)
	}
	return out, nil
}

func (c *Client) listTasklist(ctx context.Context, tasklistID string) ([]*tasks.Task, error) {
	return retry.Do(ctx, c.retry, c.logger, func() ([]*tasks.Task, error) {
		var items []*tasks.Task
		err := c.srv.Tasks.List(tasklistID).
			ShowCompleted(true).
			ShowHidden(true).
			ShowDeleted(false).
			MaxResults(100).
			Pages(ctx, func(page *tasks.Tasks) error {
				for _, gt := range page.Items {
					if !gt.Deleted {
						items = append(items, gt)
					}
				}
				return nil
			})
		return items, classify(err, "list", tasklistID)
	})
}

func (c *Client) Validate(t model.Task) error {
	_, err := convert.GoogleFieldsFor(t, c.listTable())
	return err
}

func (c *Client) Create(ctx context.Context, t model.Task) (model.Task, error) {
	lists := c.listTable()
	fields, err := convert.GoogleFieldsFor(t, lists)
	if err != nil {
		return model.Task{}, err
	}
	created, err := retry.Do(ctx, c.retry, c.logger, func() (*tasks.Task, error) {
		call := c.srv.Tasks.Insert(fields.TasklistID, convert.ToGoogleTask(fields))
		if fields.ParentID != "" {
			call = call.Parent(fields.ParentID)
		}
		res, err := call.Context(ctx).Do()
		return res, classifyParentOp(err, "create", t.ID, fields.ParentID != "")
	})
	if err != nil {
		return model.Task{}, err
	}
	c.index.Set(created.Id, fields.TasklistID)
	return convert.TaskFromGoogle(created, t.List)
}

// Update writes every field except the parent. Writes that would change
// nothing are skipped.
func (c *Client) Update(ctx context.Context, id string, t model.Task) (model.Task, error) {
	lists := c.listTable()
	fields, err := convert.GoogleFieldsFor(t, lists)
	if err != nil {
		return model.Task{}, err
	}

	var result *tasks.Task
	var listName string
	err = c.withTasklist(ctx, id, func(tasklistID string) error {
		if tasklistID != fields.TasklistID {
			c.logger.Warn("Task belongs to another tasklist, not moving it",
				zap.String("op", "update"),
				zap.String("opposite_id", id),
				zap.String("tasklist", tasklistID),
				zap.String("wanted", fields.TasklistID))
		}
		f := fields
		f.TasklistID = tasklistID
		listName = t.List
		if row, ok := lists.ByTasklist(tasklistID); ok {
			listName = row.Name
		}

		current, err := retry.Do(ctx, c.retry, c.logger, func() (*tasks.Task, error) {
			res, err := c.srv.Tasks.Get(tasklistID, id).Context(ctx).Do()
			return res, classify(err, "get", id)
		})
		if err != nil {
			return err
		}
		if convert.GoogleFieldsEqual(convert.GoogleFieldsOf(current, tasklistID), f) {
			result = current
			return nil
		}

		body := convert.ToGoogleTask(f)
		body.Id = id
		body.Parent = current.Parent
		result, err = retry.Do(ctx, c.retry, c.logger, func() (*tasks.Task, error) {
			res, err := c.srv.Tasks.Update(tasklistID, id, body).Context(ctx).Do()
			return res, classify(err, "update", id)
		})
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	return convert.TaskFromGoogle(result, listName)
}

func (c *Client) Delete(ctx context.Context, id string) error {
	err := c.withTasklist(ctx, id, func(tasklistID string) error {
		return retry.Run(ctx, c.retry, c.logger, func() error {
			return classify(c.srv.Tasks.Delete(tasklistID, id).Context(ctx).Do(), "delete", id)
		})
	})
	if err == nil || errors.Is(err, syncerr.ErrNotFound) {
		c.index.Remove(id)
	}
	return err
}

func (c *Client) MoveParent(ctx context.Context, id, parentID string) (model.Task, error) {
	var result *tasks.Task
	var listName string
	err := c.withTasklist(ctx, id, func(tasklistID string) error {
		if row, ok := c.listTable().ByTasklist(tasklistID); ok {
			listName = row.Name
		}
		var err error
		result, err = retry.Do(ctx, c.retry, c.logger, func() (*tasks.Task, error) {
			call := c.srv.Tasks.Move(tasklistID, id)
			if parentID != "" {
				call = call.Parent(parentID)
			}
			res, err := call.Context(ctx).Do()
			return res, classifyParentOp(err, "move", id, parentID != "")
		})
		return err
	})
	if err != nil {
		return model.Task{}, err
	}
	return convert.TaskFromGoogle(result, listName)
}

// withTasklist runs op against the tasklist holding id. A stale index entry
// gets one second chance after a refresh.
func (c *Client) withTasklist(ctx context.Context, id string, op func(tasklistID string) error) error {
	tasklistID := c.index.Get(id)
	if tasklistID != "" {
		err := op(tasklistID)
		if !errors.Is(err, syncerr.ErrNotFound) {
			return err
		}
	}

	if err := c.refreshIndex(ctx); err != nil {
		return err
	}
	fresh := c.index.Get(id)
	if fresh == "" || fresh == tasklistID {
		return syncerr.NotFound(model.SideGoogle, "locate", id, errors.New("task is in none of the configured tasklists"))
	}
	return op(fresh)
}

func (c *Client) refreshIndex(ctx context.Context) error {
	for _, row := range c.listTable().Rows() {
		items, err := c.listTasklist(ctx, row.GoogleTasklistID)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(items))
		for _, gt := range items {
			ids = append(ids, gt.Id)
		}
		c.index.Replace(row.GoogleTasklistID, ids)
	}
	c.logger.Debug("Refreshed tasklist index", zap.Int("tasks", c.index.Len()))
	return nil
}
