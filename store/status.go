package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"audioscribe/logger"
	"audioscribe/model"
)

// StatusStore holds the processing state of every item ever seen, backed by a
// single JSON document. All mutation goes through Upsert, which persists the
// whole collection with a write-to-temp-then-rename so a concurrent reader of
// the file never observes a torn document. Reads are served from memory.
type StatusStore struct {
	path string

	mu   sync.RWMutex
	data model.StatusCollection

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewStatusStore loads the status document at path, creating parent
// directories as needed. Entries left in processing state by a previous
// crashed run are reset to pending so they become eligible again.
func NewStatusStore(path string) (*StatusStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create status directory: %w", err)
	}

	s := &StatusStore{
		path: path,
		data: model.NewStatusCollection(),
		done: make(chan struct{}),
	}

	if err := s.load(); err != nil {
		return nil, err
	}

	if n := s.recoverStale(); n > 0 {
		logger.Warn("reset stale processing entries to pending", logger.Int("count", n))
		s.mu.Lock()
		err := s.persistLocked()
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *StatusStore) load() error {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read status document: %w", err)
	}

	var col model.StatusCollection
	if err := json.Unmarshal(data, &col); err != nil {
		return fmt.Errorf("parse status document %s: %w", s.path, err)
	}
	if col.Items == nil {
		col.Items = make(map[string]model.StatusEntry)
	}

	s.mu.Lock()
	s.data = col
	s.mu.Unlock()
	return nil
}

// recoverStale flips processing entries back to pending and reports how many
// it touched. A processing entry at startup can only mean a crashed run.
func (s *StatusStore) recoverStale() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	now := time.Now()
	for id, entry := range s.data.Items {
		if entry.State == model.StateProcessing {
			entry.State = model.StatePending
			entry.UpdatedAt = now
			s.data.Items[id] = entry
			count++
		}
	}
	if count > 0 {
		s.data.LastUpdated = now
	}
	return count
}

// Get returns the entry for id, if one exists. Absence means the item has
// never been selected for processing and is treated as pending by callers.
func (s *StatusStore) Get(id string) (model.StatusEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.data.Items[id]
	return entry, ok
}

// Upsert applies one state transition and persists the whole collection
// before returning. CreatedAt is set only when the entry is new; errCode is
// recorded only for failed transitions. A persistence failure is returned to
// the caller — losing a state update silently is not acceptable.
func (s *StatusStore) Upsert(id string, state model.State, errCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.data.Items[id]
	if !ok {
		entry.CreatedAt = now
	}
	entry.State = state
	entry.UpdatedAt = now
	if state == model.StateFailed {
		entry.Error = errCode
	} else {
		entry.Error = ""
	}

	s.data.Items[id] = entry
	s.data.LastUpdated = now

	return s.persistLocked()
}

// Snapshot returns a deep copy of the full collection.
func (s *StatusStore) Snapshot() model.StatusCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// persistLocked writes the collection atomically. Callers hold s.mu.
func (s *StatusStore) persistLocked() error {
	data, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode status document: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".status-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp status file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write status document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp status file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace status document: %w", err)
	}
	return nil
}

// Watch starts reloading the in-memory collection when the persisted document
// is replaced by someone else, e.g. an operator editing item states by hand.
// The store's own atomic renames are recognized by the lastUpdated stamp and
// ignored.
func (s *StatusStore) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create status watcher: %w", err)
	}
	// Watch the directory: a rename onto the file would drop a watch placed
	// on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch status directory: %w", err)
	}
	s.watcher = watcher

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				s.reloadIfChanged()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("status watcher error", logger.ErrorField(err))
			case <-s.done:
				return
			}
		}
	}()

	return nil
}

func (s *StatusStore) reloadIfChanged() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		logger.Warn("reload status document", logger.ErrorField(err))
		return
	}
	var col model.StatusCollection
	if err := json.Unmarshal(data, &col); err != nil {
		logger.Warn("ignoring malformed status document edit", logger.ErrorField(err))
		return
	}
	if col.Items == nil {
		col.Items = make(map[string]model.StatusEntry)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col.LastUpdated.Equal(s.data.LastUpdated) {
		// Our own write coming back around.
		return
	}
	logger.Info("status document changed on disk, reloading",
		logger.Int("entries", len(col.Items)))
	s.data = col
}

// Close stops the watcher, if one was started.
func (s *StatusStore) Close() error {
	close(s.done)
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}
