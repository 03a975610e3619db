package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Watcher re-reads the config file when it changes. Only the status and list
// tables are picked up; a reloaded config waits in Pending until the next
// cycle boundary.
type Watcher struct {
	v      *viper.Viper
	logger *zap.Logger

	mu      sync.Mutex
	pending *Config
}

// Watch starts watching the config file at path.
func Watch(path string, logger *zap.Logger) (*Watcher, error) {
	w, err := newWatcher(path, logger)
	if err != nil {
		return nil, err
	}
	w.v.OnConfigChange(w.onChange)
	w.v.WatchConfig()
	return w, nil
}

func newWatcher(path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", v.ConfigFileUsed(), err)
	}
	return &Watcher{v: v, logger: logger.Named("config")}, nil
}

func (w *Watcher) onChange(e fsnotify.Event) {
	if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
		return
	}
	cfg, err := decode(w.v)
	if err == nil {
		err = cfg.validateTables()
	}
	if err != nil {
		w.logger.Warn("Ignoring config change", zap.String("file", e.Name), zap.Error(err))
		return
	}

	w.mu.Lock()
	w.pending = cfg
	w.mu.Unlock()
	w.logger.Info("Config changed, new tables apply at the next cycle",
		zap.String("file", e.Name),
		zap.Int("statuses", len(cfg.Statuses)),
		zap.Int("lists", len(cfg.Lists)))
}

// Pending hands out the latest reloaded config once.
func (w *Watcher) Pending() (*Config, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	cfg := w.pending
	w.pending = nil
	return cfg, cfg != nil
}
