package local

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/JakeFAU/product-image-crawler/internal/crawler"
)

// CheckpointStore persists the stop URLs as one indented JSON object.
type CheckpointStore struct {
	path string
}

// NewCheckpointStore builds a CheckpointStore backed by path.
func NewCheckpointStore(path string) *CheckpointStore {
	return &CheckpointStore{path: path}
}

// Path returns the checkpoint file location.
func (s *CheckpointStore) Path() string {
	return s.path
}

// Load reads the checkpoint. A missing file is an empty checkpoint; a
// malformed one yields an empty checkpoint and an error.
func (s *CheckpointStore) Load() (crawler.Checkpoint, error) {
	// #nosec G304 -- the checkpoint path comes from configuration.
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return crawler.Checkpoint{}, nil
	}
	if err != nil {
		return crawler.Checkpoint{}, fmt.Errorf("read checkpoint: %w", err)
	}
	cp := crawler.Checkpoint{}
	if err := json.Unmarshal(data, &cp); err != nil {
		return crawler.Checkpoint{}, fmt.Errorf("decode checkpoint %s: %w", s.path, err)
	}
	if cp == nil {
		cp = crawler.Checkpoint{}
	}
	return cp, nil
}

// Save overwrites the checkpoint file.
func (s *CheckpointStore) Save(cp crawler.Checkpoint) error {
	if cp == nil {
		cp = crawler.Checkpoint{}
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create checkpoint dir: %w", err)
		}
	}
	// #nosec G306 -- the checkpoint is published alongside the repository.
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return nil
}
