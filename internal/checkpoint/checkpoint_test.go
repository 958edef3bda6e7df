package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joyprojects/goes-fetch/internal/scankey"
)

func TestFileManagerRoundTrip(t *testing.T) {
	mgr, err := NewManager(Config{Enabled: true, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	ctx := context.Background()

	if _, err := mgr.Load(ctx, scankey.Goes16, scankey.RegionMeso1); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("load before save = %v, want ErrNoCheckpoint", err)
	}

	saved := &Checkpoint{
		Satellite:        scankey.Goes16,
		Region:           scankey.RegionMeso1,
		LastMaterialized: time.Date(2021, 6, 1, 0, 5, 0, 0, time.UTC),
		Observations:     6,
		UpdatedAt:        time.Now().UTC(),
	}
	if err := mgr.Save(ctx, saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := mgr.Load(ctx, scankey.Goes16, scankey.RegionMeso1)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !got.LastMaterialized.Equal(saved.LastMaterialized) {
		t.Errorf("last materialized = %s, want %s", got.LastMaterialized, saved.LastMaterialized)
	}
	if got.Observations != 6 {
		t.Errorf("observations = %d, want 6", got.Observations)
	}
}

func TestFileManagerKeysBySatelliteAndRegion(t *testing.T) {
	mgr, err := NewManager(Config{Enabled: true, Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	ctx := context.Background()

	if err := mgr.Save(ctx, &Checkpoint{
		Satellite:        scankey.Goes16,
		Region:           scankey.RegionMeso1,
		LastMaterialized: time.Date(2021, 6, 1, 0, 5, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := mgr.Load(ctx, scankey.Goes16, scankey.RegionMeso2); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("other region load = %v, want ErrNoCheckpoint", err)
	}
	if _, err := mgr.Load(ctx, scankey.Goes17, scankey.RegionMeso1); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("other satellite load = %v, want ErrNoCheckpoint", err)
	}
}

func TestNoopManager(t *testing.T) {
	mgr, err := NewManager(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	ctx := context.Background()

	if err := mgr.Save(ctx, &Checkpoint{Satellite: scankey.Goes16, Region: scankey.RegionMeso1}); err != nil {
		t.Errorf("noop save failed: %v", err)
	}
	if _, err := mgr.Load(ctx, scankey.Goes16, scankey.RegionMeso1); !errors.Is(err, ErrNoCheckpoint) {
		t.Errorf("noop load = %v, want ErrNoCheckpoint", err)
	}
}
