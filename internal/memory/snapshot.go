package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Snapshot is the full serialized store state. Persistence always writes the
// whole thing; there is no incremental format.
type Snapshot struct {
	Sessions         map[string]*Session `json:"sessions"`
	CurrentSessionID string              `json:"current_session_id"`
}

// Snapshotter persists and restores a full store snapshot.
type Snapshotter interface {
	Save(*Snapshot) error
	// Load returns (nil, nil) when no snapshot exists yet.
	Load() (*Snapshot, error)
	Close() error
}

// FileSnapshotter stores the snapshot as a single JSON file, written to a
// temp file in the same directory and renamed into place so readers never
// see a partial write.
type FileSnapshotter struct {
	path string
}

func NewFileSnapshotter(path string) *FileSnapshotter {
	return &FileSnapshotter{path: path}
}

func (f *FileSnapshotter) Save(snap *Snapshot) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".memory-*.json")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}

func (f *FileSnapshotter) Load() (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot %s: %w", f.path, err)
	}
	return &snap, nil
}

func (f *FileSnapshotter) Close() error { return nil }

// NullSnapshotter keeps nothing; useful for ephemeral stores and tests.
type NullSnapshotter struct{}

func (NullSnapshotter) Save(*Snapshot) error     { return nil }
func (NullSnapshotter) Load() (*Snapshot, error) { return nil, nil }
func (NullSnapshotter) Close() error             { return nil }
