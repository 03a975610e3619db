package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/reconcile"
	"github.com/harrisonrobin/tasklink/pkg/syncerr"
)

type recorder struct {
	mu    sync.Mutex
	order []model.Side
}

func (r *recorder) add(s model.Side) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, s)
}

func (r *recorder) sides() []model.Side {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Side(nil), r.order...)
}

type stubRunner struct {
	side model.Side
	rec  *recorder
	err  error
	hook func()
}

func (s *stubRunner) Origin() model.Side { return s.side }

func (s *stubRunner) Sync(ctx context.Context) (reconcile.Report, error) {
	s.rec.add(s.side)
	if s.hook != nil {
		s.hook()
	}
	return reconcile.Report{Origin: s.side}, s.err
}

func TestRunOnceOrder(t *testing.T) {
	rec := &recorder{}
	var before, after int
	d := New([]Runner{
		&stubRunner{side: model.SideNotion, rec: rec},
		&stubRunner{side: model.SideGoogle, rec: rec},
	}, time.Minute, Hooks{
		BeforeCycle: func(context.Context) { before++ },
		AfterCycle:  func(_ context.Context, reports []reconcile.Report) { after = len(reports) },
	}, nil)

	reports, err := d.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Len(t, reports, 2)
	assert.Equal(t, []model.Side{model.SideNotion, model.SideGoogle}, rec.sides())
	assert.Equal(t, 1, before)
	assert.Equal(t, 2, after)
}

func TestRunOnceContinuesAfterPassFailure(t *testing.T) {
	rec := &recorder{}
	d := New([]Runner{
		&stubRunner{side: model.SideNotion, rec: rec, err: syncerr.Transient(model.SideNotion, "list", "", errors.New("502"))},
		&stubRunner{side: model.SideGoogle, rec: rec},
	}, time.Minute, Hooks{}, nil)

	_, err := d.RunOnce(context.Background())
	assert.ErrorIs(t, err, syncerr.ErrTransient)
	assert.Equal(t, []model.Side{model.SideNotion, model.SideGoogle}, rec.sides())
}

func TestRunOnceStopsOnStoreFailure(t *testing.T) {
	rec := &recorder{}
	d := New([]Runner{
		&stubRunner{side: model.SideGoogle, rec: rec, err: syncerr.StoreUnavailable("find", errors.New("refused"))},
		&stubRunner{side: model.SideNotion, rec: rec},
	}, time.Minute, Hooks{}, nil)

	_, err := d.RunOnce(context.Background())
	assert.ErrorIs(t, err, syncerr.ErrStoreUnavailable)
	assert.Equal(t, []model.Side{model.SideGoogle}, rec.sides())
}

func TestRunFinishesCycleOnCancel(t *testing.T) {
	rec := &recorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cycles := 0
	d := New([]Runner{
		&stubRunner{side: model.SideNotion, rec: rec, hook: func() {
			cycles++
			if cycles == 2 {
				cancel()
			}
		}},
		&stubRunner{side: model.SideGoogle, rec: rec},
	}, time.Millisecond, Hooks{}, nil)

	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	assert.Equal(t, []model.Side{
		model.SideNotion, model.SideGoogle,
		model.SideNotion, model.SideGoogle,
	}, rec.sides())
}
