package align

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/joyprojects/goes-fetch/internal/scankey"
)

// Observation is one element of a time series: a scan cluster pinned to its
// representative timestamp. Completeness is advisory, not an invariant;
// callers are told how many bands were found.
type Observation struct {
	Time       time.Time
	Bands      *Cluster
	Incomplete bool
}

// Sequence is an ordered mapping from timestamp to Observation. Timestamps
// are strictly increasing and unique; satellite and region are uniform
// across the sequence. Built once, never mutated afterwards.
type Sequence struct {
	Satellite scankey.Satellite
	Region    scankey.Region

	times  []time.Time
	byTime map[time.Time]Observation
}

// ErrHeterogeneousSequence is returned when observations from more than one
// satellite or region are combined.
var ErrHeterogeneousSequence = errors.New("observations span multiple satellites or regions")

// NewSequence builds a Sequence from observations. It fails on an empty
// input, on duplicate or non-increasing timestamps, and on mixed
// satellite/region.
func NewSequence(obs []Observation) (*Sequence, error) {
	if len(obs) == 0 {
		return nil, errors.New("sequence must contain at least one observation")
	}

	sorted := make([]Observation, len(obs))
	copy(sorted, obs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	for _, o := range sorted {
		if o.Bands == nil || o.Bands.BandCount() == 0 {
			return nil, fmt.Errorf("observation at %s has no bands", o.Time)
		}
	}

	first := sorted[0].Bands.Keys()[0]
	seq := &Sequence{
		Satellite: first.Satellite,
		Region:    first.Region,
		byTime:    make(map[time.Time]Observation, len(sorted)),
	}

	var last time.Time
	for i, o := range sorted {
		for _, k := range o.Bands.Keys() {
			if k.Satellite != seq.Satellite || k.Region != seq.Region {
				return nil, fmt.Errorf("%w: %s/%s and %s/%s",
					ErrHeterogeneousSequence, seq.Satellite, seq.Region, k.Satellite, k.Region)
			}
		}
		if i > 0 && !o.Time.After(last) {
			return nil, fmt.Errorf("duplicate observation timestamp %s", o.Time)
		}
		last = o.Time
		seq.times = append(seq.times, o.Time)
		seq.byTime[o.Time] = o
	}
	return seq, nil
}

// Len returns the number of observations.
func (s *Sequence) Len() int { return len(s.times) }

// Times returns the observation timestamps in increasing order.
func (s *Sequence) Times() []time.Time {
	out := make([]time.Time, len(s.times))
	copy(out, s.times)
	return out
}

// At returns the observation for an exact timestamp.
func (s *Sequence) At(t time.Time) (Observation, bool) {
	o, ok := s.byTime[t]
	return o, ok
}

// Observations returns the observations in time order.
func (s *Sequence) Observations() []Observation {
	out := make([]Observation, 0, len(s.times))
	for _, t := range s.times {
		out = append(out, s.byTime[t])
	}
	return out
}

// First returns the earliest observation timestamp.
func (s *Sequence) First() time.Time { return s.times[0] }

// Last returns the latest observation timestamp.
func (s *Sequence) Last() time.Time { return s.times[len(s.times)-1] }

// SelectCadence walks candidate timestamps from start to end stepping by
// cadence (floored at the region's minimum revisit interval) and picks for
// each step the cluster closest to it, ties going to the earlier cluster.
// A step with no cluster within half a cadence is skipped and logged.
// Partial clusters are included and flagged, not dropped. Returns the
// observations in time order, spaced at least one cadence apart, plus the
// number of skipped steps.
func SelectCadence(clusters map[time.Time]*Cluster, start, end time.Time, cadence time.Duration, region scankey.Region) ([]Observation, int) {
	log := slog.With("component", "align")

	if min := region.MinCadence(); cadence < min {
		cadence = min
	}
	start = start.UTC().Truncate(time.Minute)
	end = end.UTC().Truncate(time.Minute)
	if end.Before(start) {
		end = start
	}
	tolerance := cadence / 2

	times := make([]time.Time, 0, len(clusters))
	for t := range clusters {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	var out []Observation
	var lastUsed time.Time
	skipped := 0
	for step := start; !step.After(end); step = step.Add(cadence) {
		best, ok := closest(times, step)
		if !ok || absDiff(best, step) > tolerance {
			skipped++
			log.Warn("no scan within tolerance of cadence step",
				"step", step, "tolerance", tolerance.String())
			continue
		}
		// Picking a cluster less than one cadence after the previous pick
		// would compress the spacing below the region minimum (and a reused
		// cluster would break the strictly-increasing invariant); count the
		// step as a miss.
		if len(out) > 0 && best.Sub(lastUsed) < cadence {
			skipped++
			log.Warn("closest scan too near the previous observation", "step", step)
			continue
		}
		c := clusters[best]
		out = append(out, Observation{
			Time:       c.Start(),
			Bands:      c,
			Incomplete: !c.Complete(),
		})
		lastUsed = best
	}
	return out, skipped
}

// closest returns the member of sorted times nearest to target, preferring
// the earlier one on a tie.
func closest(times []time.Time, target time.Time) (time.Time, bool) {
	if len(times) == 0 {
		return time.Time{}, false
	}
	i := sort.Search(len(times), func(i int) bool { return !times[i].Before(target) })
	if i == 0 {
		return times[0], true
	}
	if i == len(times) {
		return times[len(times)-1], true
	}
	before, after := times[i-1], times[i]
	if absDiff(before, target) <= absDiff(after, target) {
		return before, true
	}
	return after, true
}

func absDiff(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}
