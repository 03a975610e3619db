package index

import (
	"path/filepath"
	"testing"
)

func TestIndexPersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasklists.json")
	idx, err := New(path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	idx.Set("g1", "list-work")
	idx.Set("g2", "list-home")
	if err := idx.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := New(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if got := loaded.Get("g1"); got != "list-work" {
		t.Errorf("Expected list-work, got %q", got)
	}
	if loaded.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", loaded.Len())
	}
}

func TestIndexReplace(t *testing.T) {
	idx, _ := New("")
	idx.Set("g1", "list-work")
	idx.Set("g2", "list-work")
	idx.Set("g3", "list-home")

	idx.Replace("list-work", []string{"g2", "g4"})

	if idx.Get("g1") != "" {
		t.Error("Expected g1 to be dropped from list-work")
	}
	if idx.Get("g4") != "list-work" {
		t.Error("Expected g4 to be added")
	}
	if idx.Get("g3") != "list-home" {
		t.Error("Expected other lists to be untouched")
	}
}

func TestIndexSaveSkipsWhenClean(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "tasklists.json")
	idx, _ := New(path)
	if err := idx.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	idx.Set("g1", "l")
	idx.Remove("g1")
	if !idx.dirty {
		t.Error("Expected index to be dirty after changes")
	}
}
