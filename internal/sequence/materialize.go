package sequence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/joyprojects/goes-fetch/internal/align"
	"github.com/joyprojects/goes-fetch/internal/checkpoint"
	"github.com/joyprojects/goes-fetch/internal/fetch"
	"github.com/joyprojects/goes-fetch/internal/logging"
)

// Manifest records what one materialize run put on disk.
type Manifest struct {
	BuildID   string    `json:"build_id"`
	CreatedAt time.Time `json:"created_at"`

	Satellite string    `json:"satellite"`
	Region    string    `json:"region"`
	FirstScan time.Time `json:"first_scan"`
	LastScan  time.Time `json:"last_scan"`

	Observations int            `json:"observations"`
	TotalBytes   int64          `json:"total_bytes"`
	Files        []ManifestFile `json:"files"`
}

// ManifestFile is one mirrored object.
type ManifestFile struct {
	Key       string `json:"key"`
	LocalPath string `json:"local_path"`
	Bytes     int64  `json:"bytes"`
}

// MaterializeResult reports the outcome of one materialize run. Failures
// never hide successes: every fetched file is listed even when siblings
// failed.
type MaterializeResult struct {
	BuildID      string
	Fetched      []string
	Failures     []fetch.Result
	TotalBytes   int64
	ManifestPath string
}

// Materialize mirrors every file of the sequence under root, preserving the
// store layout. Individual fetch failures are collected, not fatal; the run
// only errors when the mirror itself cannot be written to.
func (a *Assembler) Materialize(ctx context.Context, seq *align.Sequence, root string) (*MaterializeResult, error) {
	buildID := uuid.New().String()
	log := logging.Component("sequence").With("build_id", buildID)

	var tasks []fetch.Task
	for _, o := range seq.Observations() {
		for _, k := range o.Bands.Keys() {
			tasks = append(tasks, fetch.Task{
				Key:       k.Path,
				LocalPath: k.LocalPath(root),
			})
		}
	}
	log.Info("materializing sequence",
		"observations", seq.Len(),
		"files", len(tasks),
		"root", root,
	)

	results := fetch.New(a.dl, a.maxConcurrency).FetchAll(ctx, tasks)

	res := &MaterializeResult{
		BuildID:  buildID,
		Fetched:  fetch.Successes(results),
		Failures: fetch.Failures(results),
	}
	manifest := Manifest{
		BuildID:      buildID,
		CreatedAt:    time.Now().UTC(),
		Satellite:    string(seq.Satellite),
		Region:       string(seq.Region),
		FirstScan:    seq.First(),
		LastScan:     seq.Last(),
		Observations: seq.Len(),
	}
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		res.TotalBytes += r.Bytes
		manifest.Files = append(manifest.Files, ManifestFile{
			Key:       r.Task.Key,
			LocalPath: r.Task.LocalPath,
			Bytes:     r.Bytes,
		})
	}
	manifest.TotalBytes = res.TotalBytes

	path, err := writeManifest(root, manifest)
	if err != nil {
		return res, err
	}
	res.ManifestPath = path

	if a.checkpoints != nil && len(res.Failures) == 0 {
		cp := &checkpoint.Checkpoint{
			Satellite:        seq.Satellite,
			Region:           seq.Region,
			LastMaterialized: seq.Last(),
			Observations:     seq.Len(),
			UpdatedAt:        time.Now().UTC(),
		}
		if err := a.checkpoints.Save(ctx, cp); err != nil {
			log.Warn("failed to save checkpoint", "error", err)
		}
	}

	log.Info("materialize complete",
		"fetched", len(res.Fetched),
		"failures", len(res.Failures),
		"bytes", res.TotalBytes,
	)
	return res, nil
}

// writeManifest persists the manifest atomically next to the mirrored data.
func writeManifest(root string, m Manifest) (string, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("create mirror root %s: %w", root, err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	path := filepath.Join(root, fmt.Sprintf("manifest_%s.json", m.BuildID))
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return "", fmt.Errorf("write manifest temp file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("rename manifest file: %w", err)
	}
	return path, nil
}
