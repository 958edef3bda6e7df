// Command goes-fetch builds a temporally aligned sequence of GOES ABI scans
// from an object store and mirrors it to local disk.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joyprojects/goes-fetch/internal/checkpoint"
	"github.com/joyprojects/goes-fetch/internal/config"
	"github.com/joyprojects/goes-fetch/internal/logging"
	"github.com/joyprojects/goes-fetch/internal/metrics"
	"github.com/joyprojects/goes-fetch/internal/scankey"
	"github.com/joyprojects/goes-fetch/internal/sequence"
	"github.com/joyprojects/goes-fetch/internal/store"
)

func main() {
	cfg := config.MustLoad()

	logging.Setup(logging.Config{
		Format: cfg.Log.Format,
		Level:  cfg.Log.Level,
	})

	metrics.Init("")
	if cfg.Metrics.Enabled {
		go func() {
			slog.Info("starting metrics server", "address", cfg.Metrics.Address)
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				slog.Error("metrics server failed", "error", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	sat, err := scankey.ParseSatellite(cfg.Query.Satellite)
	if err != nil {
		return err
	}
	region, err := scankey.ParseRegion(cfg.Query.Region)
	if err != nil {
		return err
	}
	start, err := cfg.Query.StartTime()
	if err != nil {
		return err
	}
	end, err := cfg.Query.EndTime()
	if err != nil {
		return err
	}

	st, err := store.Open(ctx, store.Config{
		Backend:    cfg.Store.Backend,
		Bucket:     bucketOrDefault(cfg.Store.Bucket, sat),
		S3Endpoint: cfg.Store.S3Endpoint,
		S3Region:   cfg.Store.S3Region,
		LocalDir:   cfg.Store.LocalDir,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	cpMgr, err := checkpoint.NewManager(checkpoint.Config{
		Enabled: cfg.Checkpoint.Enabled,
		Dir:     cfg.Checkpoint.Dir,
	})
	if err != nil {
		return err
	}

	if cp, err := cpMgr.Load(ctx, sat, region); err == nil {
		resumed, upToDate := resumeStart(start, end, cp)
		if upToDate {
			slog.Info("mirror already up to date",
				"last_materialized", cp.LastMaterialized,
				"requested_end", end,
			)
			return nil
		}
		if !resumed.Equal(start) {
			slog.Info("resuming past checkpoint",
				"last_materialized", cp.LastMaterialized,
				"requested_start", start,
			)
			start = resumed
		}
	} else if !errors.Is(err, checkpoint.ErrNoCheckpoint) {
		slog.Warn("checkpoint load failed, starting from requested range", "error", err)
	}

	asm := sequence.New(st, st, cpMgr, cfg.Fetch.MaxConcurrency)

	seq, report, err := asm.Build(ctx, sequence.Query{
		Satellite: sat,
		Region:    region,
		Start:     start,
		End:       end,
		Cadence:   time.Duration(cfg.Query.CadenceMinutes) * time.Minute,
	})
	if err != nil {
		return err
	}
	slog.Info("sequence built",
		"correlation_id", report.CorrelationID,
		"observations", report.Observations,
		"incomplete", report.Incomplete,
		"skipped_steps", report.SkippedSteps,
	)

	res, err := asm.Materialize(ctx, seq, cfg.Fetch.DestDir)
	if err != nil {
		return err
	}
	slog.Info("mirror updated",
		"fetched", len(res.Fetched),
		"failures", len(res.Failures),
		"bytes", res.TotalBytes,
		"manifest", res.ManifestPath,
	)

	if len(res.Failures) > 0 {
		for _, f := range res.Failures {
			slog.Warn("fetch failed", "key", f.Task.Key, "error", f.Err)
		}
		return errors.New("materialize finished with failures")
	}
	return nil
}

// resumeStart advances the range start past a checkpoint. The second return
// is true when the checkpoint already covers the whole requested range, so
// there is nothing left to mirror.
func resumeStart(start, end time.Time, cp *checkpoint.Checkpoint) (time.Time, bool) {
	if !cp.LastMaterialized.After(start) {
		return start, false
	}
	next := cp.LastMaterialized.Add(time.Minute)
	if !end.IsZero() && next.After(end) {
		return next, true
	}
	return next, false
}

// bucketOrDefault falls back to the satellite's public bucket when no bucket
// is configured.
func bucketOrDefault(bucket string, sat scankey.Satellite) string {
	if bucket != "" {
		return bucket
	}
	return sat.Bucket()
}
