// Package sequence assembles aligned scan sequences from the store and
// materializes them into a local mirror.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joyprojects/goes-fetch/internal/align"
	"github.com/joyprojects/goes-fetch/internal/checkpoint"
	"github.com/joyprojects/goes-fetch/internal/fetch"
	"github.com/joyprojects/goes-fetch/internal/logging"
	"github.com/joyprojects/goes-fetch/internal/metrics"
	"github.com/joyprojects/goes-fetch/internal/planner"
	"github.com/joyprojects/goes-fetch/internal/scankey"
)

// ErrEmptyRange is returned when a query matches no scans at all.
var ErrEmptyRange = errors.New("no scans found in range")

// Lister lists store keys matching a set of patterns.
type Lister interface {
	ListAll(ctx context.Context, patterns []planner.Pattern) ([]string, error)
}

// Query describes one sequence request.
type Query struct {
	Satellite scankey.Satellite
	Region    scankey.Region

	// Start of the range. A zero End makes this a single scan lookup.
	Start time.Time
	End   time.Time

	// Cadence between observations. Zero or anything below the region's
	// minimum revisit interval is floored to that minimum.
	Cadence time.Duration
}

// Report summarizes what one Build run saw and decided.
type Report struct {
	CorrelationID string

	Patterns   int
	KeysListed int
	Malformed  int
	Duplicates int

	Observations int
	Incomplete   int
	SkippedSteps int
}

// Assembler wires discovery, alignment and retrieval together.
type Assembler struct {
	lister         Lister
	dl             fetch.Downloader
	checkpoints    checkpoint.Manager
	maxConcurrency int
}

// New creates an assembler. checkpoints may be nil to disable resume
// tracking entirely.
func New(lister Lister, dl fetch.Downloader, checkpoints checkpoint.Manager, maxConcurrency int) *Assembler {
	return &Assembler{
		lister:         lister,
		dl:             dl,
		checkpoints:    checkpoints,
		maxConcurrency: maxConcurrency,
	}
}

// Build discovers scans for the query, clusters them by scan time, and
// selects a cadence of observations. It fails with ErrEmptyRange when the
// query yields no observations; a partially incomplete sequence is returned,
// not rejected.
func (a *Assembler) Build(ctx context.Context, q Query) (*align.Sequence, *Report, error) {
	report := &Report{CorrelationID: logging.GenerateCorrelationID()}
	log := logging.QueryLogger(report.CorrelationID, q.Satellite, q.Region, q.Start, q.End)

	if q.Satellite.Bucket() == "" {
		return nil, report, fmt.Errorf("invalid satellite %q", q.Satellite)
	}
	if !q.End.IsZero() && q.End.Before(q.Start) {
		return nil, report, fmt.Errorf("end %s before start %s", q.End, q.Start)
	}

	patterns := planner.Plan(q.Satellite, q.Region, q.Start, q.End)
	report.Patterns = len(patterns)
	log.Info("planned listing patterns",
		"patterns", len(patterns),
		"granularity", patterns[0].Granularity.String(),
	)

	paths, err := a.lister.ListAll(ctx, patterns)
	if err != nil {
		return nil, report, fmt.Errorf("list scans: %w", err)
	}
	report.KeysListed = len(paths)

	keys := a.parseListing(paths, q, report, log)
	if len(keys) == 0 {
		return nil, report, fmt.Errorf("%w: %s/%s %s", ErrEmptyRange, q.Satellite, q.Region, q.Start)
	}

	clusters, discarded, err := align.ClusterByTime(keys)
	if err != nil {
		return nil, report, fmt.Errorf("cluster scans: %w", err)
	}
	report.Duplicates = discarded
	if m := metrics.Get(); m != nil {
		m.AddDuplicateDiscards(float64(discarded))
	}

	end := q.End
	if end.IsZero() {
		end = q.Start
	}
	obs, skipped := align.SelectCadence(clusters, q.Start, end, q.Cadence, q.Region)
	report.SkippedSteps = skipped
	if m := metrics.Get(); m != nil {
		m.AddSkippedSteps(float64(skipped))
	}
	if len(obs) == 0 {
		return nil, report, fmt.Errorf("%w: %s/%s %s", ErrEmptyRange, q.Satellite, q.Region, q.Start)
	}

	seq, err := align.NewSequence(obs)
	if err != nil {
		return nil, report, fmt.Errorf("assemble sequence: %w", err)
	}

	report.Observations = seq.Len()
	for _, o := range seq.Observations() {
		if o.Incomplete {
			report.Incomplete++
		}
		if m := metrics.Get(); m != nil {
			if o.Incomplete {
				m.IncObservations("incomplete")
			} else {
				m.IncObservations("complete")
			}
		}
	}

	log.Info("sequence assembled",
		"observations", report.Observations,
		"incomplete", report.Incomplete,
		"skipped_steps", report.SkippedSteps,
		"keys_listed", report.KeysListed,
		"malformed", report.Malformed,
		"duplicates", report.Duplicates,
	)
	return seq, report, nil
}

// parseListing turns raw store paths into keys, dropping malformed entries
// and anything outside the query's satellite, region or time window.
// Coarse-grained patterns over-match at the range edges; this is where the
// excess gets trimmed.
func (a *Assembler) parseListing(paths []string, q Query, report *Report, log *slog.Logger) []scankey.Key {
	windowStart := q.Start.UTC().Truncate(time.Minute)
	windowEnd := q.End.UTC().Truncate(time.Minute)
	if q.End.IsZero() {
		windowEnd = windowStart
	}

	var keys []scankey.Key
	for _, p := range paths {
		k, err := scankey.Parse(p)
		if err != nil {
			report.Malformed++
			if m := metrics.Get(); m != nil {
				m.IncMalformedKeys()
			}
			log.Warn("skipping malformed key", "path", p, "error", err)
			continue
		}
		if k.Satellite != q.Satellite || k.Region != q.Region {
			continue
		}
		if k.Start.Before(windowStart) || k.Start.After(windowEnd) {
			continue
		}
		keys = append(keys, k)
	}
	scankey.Sort(keys)
	return keys
}
