package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

// FileStore keeps the table in memory and writes a JSON snapshot after every
// change. With an empty path it never touches disk.
type FileStore struct {
	Mappings map[string]model.Mapping `json:"mappings"` // keyed by Notion id
	Path     string                   `json:"-"`
	mu       sync.RWMutex
	byGoogle map[string]string // Google id -> Notion id
}

// NewFileStore loads path if it exists.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		Mappings: make(map[string]model.Mapping),
		Path:     path,
		byGoogle: make(map[string]string),
	}
	if path == "" {
		return s, nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := s.load(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *FileStore) load() error {
	f, err := os.Open(s.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(s); err != nil {
		return fmt.Errorf("failed to decode mapping file %s: %w", s.Path, err)
	}
	if s.Mappings == nil {
		s.Mappings = make(map[string]model.Mapping)
	}
	s.reindex()
	return nil
}

// reindex rebuilds byGoogle from Mappings.
func (s *FileStore) reindex() {
	s.byGoogle = make(map[string]string, len(s.Mappings))
	for id, m := range s.Mappings {
		s.byGoogle[m.GoogleID] = id
	}
}

// save must be called with the write lock held.
func (s *FileStore) save() error {
	if s.Path == "" {
		return nil
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".mappings-*.json")
	if err != nil {
		return err
	}
	encoder := json.NewEncoder(tmp)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

func (s *FileStore) FindByID(_ context.Context, side model.Side, id string) (model.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if side == model.SideNotion {
		if m, ok := s.Mappings[id]; ok {
			return m, nil
		}
		return model.Mapping{}, ErrNotFound
	}
	if notionID, ok := s.byGoogle[id]; ok {
		return s.Mappings[notionID], nil
	}
	return model.Mapping{}, ErrNotFound
}

func (s *FileStore) Upsert(_ context.Context, m model.Mapping) error {
	if m.NotionID == "" || m.GoogleID == "" {
		return fmt.Errorf("mapping needs both ids, got notion=%q google=%q", m.NotionID, m.GoogleID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byGoogle[m.GoogleID]; ok && owner != m.NotionID {
		return fmt.Errorf("%w: google task %s already linked to notion page %s", ErrConflict, m.GoogleID, owner)
	}
	old, existed := s.Mappings[m.NotionID]
	s.Mappings[m.NotionID] = m
	if existed {
		delete(s.byGoogle, old.GoogleID)
	}
	s.byGoogle[m.GoogleID] = m.NotionID
	if err := s.save(); err != nil {
		if existed {
			s.Mappings[m.NotionID] = old
		} else {
			delete(s.Mappings, m.NotionID)
		}
		s.reindex()
		return fmt.Errorf("failed to write mapping file: %w", err)
	}
	return nil
}

func (s *FileStore) DeleteWhere(_ context.Context, pred func(model.Mapping) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := make(map[string]model.Mapping)
	for id, m := range s.Mappings {
		if pred(m) {
			removed[id] = m
			delete(s.Mappings, id)
			delete(s.byGoogle, m.GoogleID)
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	if err := s.save(); err != nil {
		for id, m := range removed {
			s.Mappings[id] = m
			s.byGoogle[m.GoogleID] = id
		}
		return 0, fmt.Errorf("failed to write mapping file: %w", err)
	}
	return len(removed), nil
}

func (s *FileStore) ScanAll(_ context.Context) ([]model.Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked(), nil
}

func (s *FileStore) sortedLocked() []model.Mapping {
	out := make([]model.Mapping, 0, len(s.Mappings))
	for _, m := range s.Mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NotionID < out[j].NotionID })
	return out
}

func (s *FileStore) Close() error { return nil }
