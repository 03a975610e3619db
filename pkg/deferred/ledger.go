// Package deferred records tasks whose link to the other side had to wait
// for a parent. Entries survive restarts so a task stuck behind a parent that
// never shows up is eventually escalated instead of retried silently forever.
package deferred

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/harrisonrobin/tasklink/pkg/model"
)

type Entry struct {
	Side          model.Side `json:"side"`
	TaskID        string     `json:"task_id"`
	Title         string     `json:"title"`
	Reason        string     `json:"reason"`
	FirstDeferred time.Time  `json:"first_deferred"`
	LastAttempt   time.Time  `json:"last_attempt"`
	Attempts      int        `json:"attempts"`
}

type Ledger struct {
	Entries map[string]Entry `json:"entries"`
	Path    string           `json:"-"`
	mu      sync.Mutex
	dirty   bool
}

// New loads the ledger stored at path. An empty path keeps it in memory.
func New(path string) (*Ledger, error) {
	l := &Ledger{
		Path:    path,
		Entries: make(map[string]Entry),
	}
	if path == "" {
		return l, nil
	}
	if _, err := os.Stat(path); err == nil {
		if err := l.Load(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// DefaultPath is deferred.json in the config directory dir.
func DefaultPath(dir string) string {
	return filepath.Join(dir, "deferred.json")
}

func key(side model.Side, taskID string) string {
	return string(side) + ":" + taskID
}

func (l *Ledger) Load() error {
	f, err := os.Open(l.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := json.NewDecoder(f).Decode(l); err != nil {
		return err
	}
	if l.Entries == nil {
		l.Entries = make(map[string]Entry)
	}
	return nil
}

func (l *Ledger) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.dirty || l.Path == "" {
		return nil
	}
	dir := filepath.Dir(l.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	f, err := os.Create(l.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(l)
	if err == nil {
		l.dirty = false
	}
	return err
}

// Defer records another failed attempt for the task and returns the updated entry.
func (l *Ledger) Defer(side model.Side, taskID, title, reason string, now time.Time) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(side, taskID)
	e, exists := l.Entries[k]
	if !exists {
		e = Entry{Side: side, TaskID: taskID, FirstDeferred: now}
	}
	e.Title = title
	e.Reason = reason
	e.LastAttempt = now
	e.Attempts++
	l.Entries[k] = e
	l.dirty = true
	return e
}

// Resolve removes the task and returns its entry, if it had one.
func (l *Ledger) Resolve(side model.Side, taskID string) (Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(side, taskID)
	e, exists := l.Entries[k]
	if exists {
		delete(l.Entries, k)
		l.dirty = true
	}
	return e, exists
}

// Pending returns the entries for side ordered by task id.
func (l *Ledger) Pending(side model.Side) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.Entries {
		if e.Side == side {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Sweep returns the entries of side first deferred before cutoff. Their
// clock restarts at now, so each stuck task is reported once per period.
func (l *Ledger) Sweep(side model.Side, cutoff, now time.Time) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var swept []Entry
	for k, e := range l.Entries {
		if e.Side == side && e.FirstDeferred.Before(cutoff) {
			swept = append(swept, e)
			e.FirstDeferred = now
			l.Entries[k] = e
			l.dirty = true
		}
	}
	sort.Slice(swept, func(i, j int) bool { return swept[i].TaskID < swept[j].TaskID })
	return swept
}

// Retain drops every entry of side whose task is not in present.
func (l *Ledger) Retain(side model.Side, present map[string]struct{}) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var dropped []Entry
	for k, e := range l.Entries {
		if e.Side != side {
			continue
		}
		if _, ok := present[e.TaskID]; !ok {
			dropped = append(dropped, e)
			delete(l.Entries, k)
			l.dirty = true
		}
	}
	return dropped
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.Entries)
}
