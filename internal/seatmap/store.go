package seatmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists the whole seat map.
type Store interface {
	Load() (Map, error)
	Save(Map) error
}

// FileStore keeps the map as a JSON object keyed by room id.
type FileStore struct {
	Path string
}

// Load returns an empty map when the file does not exist.
func (f FileStore) Load() (Map, error) {
	b, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Map{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("seatmap: read %s: %w", f.Path, err)
	}
	m := Map{}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("seatmap: parse %s: %w", f.Path, err)
	}
	return m, nil
}

// Save writes through a temp file and rename so readers never see a torn file.
func (f FileStore) Save(m Map) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".seatmap-*.json")
	if err != nil {
		return fmt.Errorf("seatmap: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return fmt.Errorf("seatmap: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("seatmap: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.Path); err != nil {
		return fmt.Errorf("seatmap: rename: %w", err)
	}
	return nil
}
