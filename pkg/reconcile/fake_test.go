package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// fakeEndpoint is an in-memory task system. Writes stamp LastModified with
// the shared clock, like a server would.
type fakeEndpoint struct {
	side  model.Side
	clock *fakeClock
	tasks map[string]model.Task
	order []string
	calls map[string]int

	listErr   error
	createErr func(t model.Task) error
	moveErr   error
	deleteErr error
}

func newFake(side model.Side, clock *fakeClock) *fakeEndpoint {
	return &fakeEndpoint{
		side:  side,
		clock: clock,
		tasks: make(map[string]model.Task),
		calls: make(map[string]int),
	}
}

// put adds or edits a task directly, as a user would.
func (f *fakeEndpoint) put(t model.Task) model.Task {
	if _, ok := f.tasks[t.ID]; !ok {
		f.order = append(f.order, t.ID)
	}
	if t.LastModified.IsZero() {
		t.LastModified = f.clock.Now()
	}
	f.tasks[t.ID] = t
	return t
}

func (f *fakeEndpoint) remove(id string) {
	delete(f.tasks, id)
	for i, o := range f.order {
		if o == id {
			f.order = append(f.order[:i], f.order[i+1:]...)
			break
		}
	}
}

func (f *fakeEndpoint) writes() int {
	return f.calls["create"] + f.calls["update"] + f.calls["delete"] + f.calls["move"]
}

func (f *fakeEndpoint) Side() model.Side { return f.side }

func (f *fakeEndpoint) List(_ context.Context) ([]model.Task, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Task, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.tasks[id])
	}
	return out, nil
}

func (f *fakeEndpoint) Validate(t model.Task) error {
	if t.Status == model.StatusUnset {
		return syncerr.MissingField(f.side, t.ID, "status")
	}
	if t.List == "" {
		return syncerr.MissingField(f.side, t.ID, "list")
	}
	return nil
}

func (f *fakeEndpoint) Create(_ context.Context, t model.Task) (model.Task, error) {
	if f.createErr != nil {
		if err := f.createErr(t); err != nil {
			return model.Task{}, err
		}
	}
	if t.HasParent() {
		if _, ok := f.tasks[t.ParentID]; !ok {
			return model.Task{}, syncerr.InvalidParent(f.side, "create", t.ID, errors.New("no such parent"))
		}
	}
	f.calls["create"]++
	t.ID = uuid.NewString()
	t.LastModified = f.clock.Now()
	return f.put(t), nil
}

func (f *fakeEndpoint) Update(_ context.Context, id string, t model.Task) (model.Task, error) {
	cur, ok := f.tasks[id]
	if !ok {
		return model.Task{}, syncerr.NotFound(f.side, "update", id, errors.New("gone"))
	}
	f.calls["update"]++
	cur.Title = t.Title
	cur.Notes = t.Notes
	cur.Status = t.Status
	cur.Due = t.Due
	cur.List = t.List
	cur.LastModified = f.clock.Now()
	f.tasks[id] = cur
	return cur, nil
}

func (f *fakeEndpoint) Delete(_ context.Context, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.tasks[id]; !ok {
		return syncerr.NotFound(f.side, "delete", id, errors.New("gone"))
	}
	f.calls["delete"]++
	f.remove(id)
	return nil
}

func (f *fakeEndpoint) MoveParent(_ context.Context, id, parentID string) (model.Task, error) {
	if f.moveErr != nil {
		return model.Task{}, f.moveErr
	}
	cur, ok := f.tasks[id]
	if !ok {
		return model.Task{}, syncerr.NotFound(f.side, "move", id, errors.New("gone"))
	}
	if parentID != "" {
		if _, ok := f.tasks[parentID]; !ok {
			return model.Task{}, syncerr.InvalidParent(f.side, "move", id, errors.New("no such parent"))
		}
	}
	f.calls["move"]++
	cur.ParentID = parentID
	cur.LastModified = f.clock.Now()
	f.tasks[id] = cur
	return cur, nil
}

// partialEndpoint lists only part of its tasks, like a Google account with
// tasklists nobody mapped. outside holds ids that exist but are not listed.
type partialEndpoint struct {
	*fakeEndpoint
	outside    map[string]struct{}
	listIDsErr error
}

func (p *partialEndpoint) ListIDs(_ context.Context) (map[string]struct{}, error) {
	if p.listIDsErr != nil {
		return nil, p.listIDsErr
	}
	ids := make(map[string]struct{}, len(p.tasks)+len(p.outside))
	for id := range p.tasks {
		ids[id] = struct{}{}
	}
	for id := range p.outside {
		ids[id] = struct{}{}
	}
	return ids, nil
}

// mockStore is a testify mock of store.Store.
type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindByID(ctx context.Context, side model.Side, id string) (model.Mapping, error) {
	args := m.Called(ctx, side, id)
	return args.Get(0).(model.Mapping), args.Error(1)
}

func (m *mockStore) Upsert(ctx context.Context, mp model.Mapping) error {
	args := m.Called(ctx, mp)
	return args.Error(0)
}

func (m *mockStore) DeleteWhere(ctx context.Context, pred func(model.Mapping) bool) (int, error) {
	args := m.Called(ctx, pred)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) ScanAll(ctx context.Context) ([]model.Mapping, error) {
	args := m.Called(ctx)
	return args.Get(0).([]model.Mapping), args.Error(1)
}

func (m *mockStore) Close() error { return nil }
