package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/harrisonrobin/tasklink/pkg/auth"
	"github.com/harrisonrobin/tasklink/pkg/config"
	"github.com/harrisonrobin/tasklink/pkg/deferred"
	"github.com/harrisonrobin/tasklink/pkg/google"
	"github.com/harrisonrobin/tasklink/pkg/index"
	"github.com/harrisonrobin/tasklink/pkg/logging"
	"github.com/harrisonrobin/tasklink/pkg/model"
	"github.com/harrisonrobin/tasklink/pkg/notion"
	"github.com/harrisonrobin/tasklink/pkg/poller"
	"github.com/harrisonrobin/tasklink/pkg/reconcile"
	"github.com/harrisonrobin/tasklink/pkg/retry"
	"github.com/harrisonrobin/tasklink/pkg/store"
)

// app holds everything a sync cycle needs.
type app struct {
	cfg     *config.Config
	cfgPath string
	logger  *zap.Logger
	flush   func()

	store   store.Store
	index   *index.TasklistIndex
	ledger  *deferred.Ledger
	notion  *notion.Client
	google  *google.Client
	runners []poller.Runner
}

func newApp(ctx context.Context, cfgPath string) (_ *app, err error) {
	if cfgPath == "" {
		if cfgPath, err = config.GetConfigPath(); err != nil {
			return nil, err
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s:\n%w", cfgPath, err)
	}

	logger, flush, err := logging.New(logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		JSON:       cfg.Log.JSON,
	})
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, cfgPath: cfgPath, logger: logger, flush: flush}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.store, err = store.Open(ctx, store.Options{Driver: cfg.Store.Driver, DSN: cfg.Store.DSN}, logger); err != nil {
		return nil, err
	}
	if a.index, err = index.New(cfg.Google.IndexFile); err != nil {
		return nil, fmt.Errorf("failed to load tasklist index: %w", err)
	}
	if a.ledger, err = deferred.New(cfg.Deferred.Path); err != nil {
		return nil, fmt.Errorf("failed to load deferred ledger: %w", err)
	}

	policy := retry.DefaultPolicy()
	props := cfg.Notion.Properties
	a.notion, err = notion.NewClient(cfg.Notion.Token, cfg.StatusTable(), cfg.ListTable(), notion.Options{
		DatabaseID: cfg.Notion.DatabaseID,
		Properties: notion.Properties{
			Title:      props.Title,
			Notes:      props.Notes,
			Status:     props.Status,
			StatusKind: props.StatusKind,
			Due:        props.Due,
			List:       props.List,
			Parent:     props.Parent,
		},
		Logger: logger,
		Retry:  policy,
	})
	if err != nil {
		return nil, err
	}

	authOpts := auth.Options{
		CredentialsFile: cfg.Google.CredentialsFile,
		TokenFile:       cfg.Google.TokenFile,
		Port:            cfg.Google.AuthPort,
		Logger:          logger,
	}
	a.google, err = google.NewClient(ctx, authOpts, cfg.ListTable(), a.index, google.Options{Logger: logger, Retry: policy})
	if err != nil {
		return nil, err
	}

	sides, err := cfg.Sides()
	if err != nil {
		return nil, err
	}
	endpoints := map[model.Side]reconcile.Endpoint{
		model.SideNotion: a.notion,
		model.SideGoogle: a.google,
	}
	for _, side := range sides {
		a.runners = append(a.runners, reconcile.New(endpoints[side], endpoints[side.Other()], a.store, reconcile.Options{
			Logger:          logger,
			Ledger:          a.ledger,
			EscalateAfter:   cfg.Deferred.EscalateAfter,
			MaxSweepDeletes: cfg.Sweep.MaxDeletes,
		}))
	}
	return a, nil
}

// driver builds the poll loop. With a watcher, reloaded tables are applied
// before the next cycle.
func (a *app) driver(watcher *config.Watcher) *poller.Driver {
	hooks := poller.Hooks{
		AfterCycle: func(context.Context, []reconcile.Report) { a.persist() },
	}
	if watcher != nil {
		hooks.BeforeCycle = func(ctx context.Context) {
			if cfg, ok := watcher.Pending(); ok {
				a.applyTables(ctx, cfg)
			}
		}
	}
	return poller.New(a.runners, a.cfg.Interval, hooks, a.logger)
}

// applyTables swaps in new status and list tables. Google resolves tasklist
// titles first; when that fails both sides keep the old tables.
func (a *app) applyTables(ctx context.Context, cfg *config.Config) {
	lists := cfg.ListTable()
	if err := a.google.SetLists(ctx, lists); err != nil {
		a.logger.Warn("Keeping previous tables", zap.Error(err))
		return
	}
	a.notion.SetTables(cfg.StatusTable(), lists)
	a.logger.Info("Applied reloaded status and list tables")
}

func (a *app) persist() {
	if err := a.ledger.Save(); err != nil {
		a.logger.Warn("Failed to save deferred ledger", zap.Error(err))
	}
	if err := a.index.Save(); err != nil {
		a.logger.Warn("Failed to save tasklist index", zap.Error(err))
	}
}

func (a *app) Close() {
	if a.ledger != nil && a.index != nil {
		a.persist()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("Failed to close mapping store", zap.Error(err))
		}
	}
	a.flush()
}
