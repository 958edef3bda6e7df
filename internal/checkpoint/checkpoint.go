// Package checkpoint persists mirror progress so interrupted or repeated
// runs resume instead of re-materializing from the beginning of the range.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joyprojects/goes-fetch/internal/scankey"
)

// ErrNoCheckpoint is returned when no checkpoint exists.
var ErrNoCheckpoint = errors.New("no checkpoint found")

// Checkpoint records the last materialized scan for one satellite/region.
type Checkpoint struct {
	Satellite        scankey.Satellite `json:"satellite"`
	Region           scankey.Region    `json:"region"`
	LastMaterialized time.Time         `json:"last_materialized"`
	Observations     int               `json:"observations"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Manager handles checkpoint persistence and retrieval.
type Manager interface {
	// Load reads the checkpoint for a satellite/region.
	Load(ctx context.Context, sat scankey.Satellite, region scankey.Region) (*Checkpoint, error)

	// Save persists the checkpoint.
	Save(ctx context.Context, cp *Checkpoint) error
}

// Config configures the checkpoint manager.
type Config struct {
	Enabled bool
	Dir     string // Directory for checkpoint files
}

// NewManager creates a checkpoint manager based on configuration.
func NewManager(cfg Config) (Manager, error) {
	if !cfg.Enabled {
		return &noopManager{}, nil
	}
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Dir, err)
	}
	return &fileManager{dir: cfg.Dir}, nil
}

// fileManager persists checkpoints to local files.
type fileManager struct {
	dir string
}

func (m *fileManager) path(sat scankey.Satellite, region scankey.Region) string {
	return filepath.Join(m.dir, fmt.Sprintf("checkpoint_%s_%s.json", sat, region))
}

// Load reads the checkpoint from file.
func (m *fileManager) Load(ctx context.Context, sat scankey.Satellite, region scankey.Region) (*Checkpoint, error) {
	data, err := os.ReadFile(m.path(sat, region))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint file: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint file: %w", err)
	}
	return &cp, nil
}

// Save persists the checkpoint atomically.
func (m *fileManager) Save(ctx context.Context, cp *Checkpoint) error {
	path := m.path(cp.Satellite, cp.Region)

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("rename checkpoint file: %w", err)
	}
	return nil
}

// noopManager is used when checkpointing is disabled.
type noopManager struct{}

func (m *noopManager) Load(ctx context.Context, sat scankey.Satellite, region scankey.Region) (*Checkpoint, error) {
	return nil, ErrNoCheckpoint
}

func (m *noopManager) Save(ctx context.Context, cp *Checkpoint) error {
	return nil
}
