package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"audioscribe/model"
)

// ErrBadItemID is returned for identifiers that cannot name a result file.
var ErrBadItemID = errors.New("invalid item identifier")

// ResultStore keeps one transcript document per completed item. Each result
// is written exactly once by the run that completed the item, so there is no
// write contention; the temp-then-rename still guarantees a reader sees
// either the whole document or nothing.
type ResultStore struct {
	dir string
}

// NewResultStore creates the output directory if needed.
func NewResultStore(dir string) (*ResultStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create result directory: %w", err)
	}
	return &ResultStore{dir: dir}, nil
}

func (s *ResultStore) resultPath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("%w: %q", ErrBadItemID, id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// Put writes the transcript for id. Retrying with identical content is
// harmless; completed items are never rewritten with different content.
func (s *ResultStore) Put(id string, result *model.TranscriptResult) error {
	path, err := s.resultPath(id)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode transcript for %s: %w", id, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".result-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp result file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write transcript for %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp result file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace transcript for %s: %w", id, err)
	}
	return nil
}

// Get returns the transcript for id, reporting absence without error.
func (s *ResultStore) Get(id string) (*model.TranscriptResult, bool, error) {
	path, err := s.resultPath(id)
	if err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read transcript for %s: %w", id, err)
	}

	var result model.TranscriptResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, false, fmt.Errorf("parse transcript for %s: %w", id, err)
	}
	return &result, true, nil
}
