// Package store persists the correspondence table between Notion pages and
// Google tasks. It is the only source of truth for cross references.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

var (
	// ErrNotFound is returned by FindByID when no entry links the id.
	ErrNotFound = errors.New("mapping not found")
	// ErrConflict is returned by Upsert when one of the ids is already linked
	// to a different partner.
	ErrConflict = errors.New("mapping conflict")
)

// Store is the mapping table.
type Store interface {
	// FindByID returns the entry whose id on side equals id.
	FindByID(ctx context.Context, side model.Side, id string) (model.Mapping, error)
	// Upsert inserts m or replaces the entry with the same Notion id.
	Upsert(ctx context.Context, m model.Mapping) error
	// DeleteWhere removes every entry matching pred and returns how many went.
	DeleteWhere(ctx context.Context, pred func(model.Mapping) bool) (int, error)
	// ScanAll returns every entry.
	ScanAll(ctx context.Context) ([]model.Mapping, error)
	Close() error
}

const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and configures a backend.
type Options struct {
	Driver string
	// DSN is a file path for file and sqlite, a connection URL for postgres.
	DSN string
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("store")
	logger.Info("Opening mapping store", zap.String("driver", opts.Driver))

	switch opts.Driver {
	case DriverFile, "":
		return NewFileStore(opts.DSN)
	case DriverSQLite:
		return NewSQLiteStore(opts.DSN)
	case DriverPostgres:
		return NewPostgresStore(ctx, opts.DSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
	}
}
