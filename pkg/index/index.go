// Package index remembers which Google tasklist each Google task lives in.
// The Tasks API addresses every task through its tasklist, while the mapping
// store only records bare task ids.
package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

type TasklistIndex struct {
	Tasklists map[string]string `json:"tasklists"` // task id -> tasklist id
	Path      string            `json:"-"`
	mu        sync.RWMutex
	dirty     bool
}

// New loads the index stored at path. An empty path keeps it in memory.
func New(path string) (*TasklistIndex, error) {
	idx := &TasklistIndex{
		Tasklists: make(map[string]string),
		Path:      path,
	}
	if path == "" {
		return idx, nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := idx.Load(); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

// DefaultPath is tasklists.json in the config directory dir.
func DefaultPath(dir string) string {
	return filepath.Join(dir, "tasklists.json")
}

func (idx *TasklistIndex) Load() error {
	f, err := os.Open(idx.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if err := json.NewDecoder(f).Decode(idx); err != nil {
		return err
	}
	if idx.Tasklists == nil {
		idx.Tasklists = make(map[string]string)
	}
	return nil
}

// Save writes the index if it changed since the last save.
func (idx *TasklistIndex) Save() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if !idx.dirty || idx.Path == "" {
		return nil
	}

	dir := filepath.Dir(idx.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	tmp := idx.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(idx); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, idx.Path); err != nil {
		return err
	}
	idx.dirty = false
	return nil
}

// Get returns the tasklist of taskID, or "" when unknown.
func (idx *TasklistIndex) Get(taskID string) string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.Tasklists[taskID]
}

func (idx *TasklistIndex) Set(taskID, tasklistID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.Tasklists[taskID] != tasklistID {
		idx.Tasklists[taskID] = tasklistID
		idx.dirty = true
	}
}

func (idx *TasklistIndex) Remove(taskID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if _, exists := idx.Tasklists[taskID]; exists {
		delete(idx.Tasklists, taskID)
		idx.dirty = true
	}
}

// Replace makes taskIDs the complete content of tasklistID, dropping tasks
// that were recorded there but are gone now.
func (idx *TasklistIndex) Replace(tasklistID string, taskIDs []string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	keep := make(map[string]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		keep[id] = struct{}{}
		if idx.Tasklists[id] != tasklistID {
			idx.Tasklists[id] = tasklistID
			idx.dirty = true
		}
	}
	for id, list := range idx.Tasklists {
		if list != tasklistID {
			continue
		}
		if _, ok := keep[id]; !ok {
			delete(idx.Tasklists, id)
			idx.dirty = true
		}
	}
}

func (idx *TasklistIndex) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.Tasklists)
}
