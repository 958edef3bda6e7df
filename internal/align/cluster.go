// Package align groups discovered scan keys into per-scan-time clusters and
// selects a cadence of observations from them.
package align

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/joyprojects/goes-fetch/internal/scankey"
)

// Cluster maps band number to exactly one key for a single scan time. It is
// mutable while being built by ClusterByTime and treated as immutable after.
type Cluster struct {
	start time.Time
	bands map[int]scankey.Key
}

// Start is the cluster's representative timestamp, the minimum scan start
// across its members.
func (c *Cluster) Start() time.Time { return c.start }

// BandCount returns the number of distinct bands present.
func (c *Cluster) BandCount() int { return len(c.bands) }

// Complete reports whether all 16 ABI bands are present.
func (c *Cluster) Complete() bool { return len(c.bands) == scankey.MaxBand }

// Band returns the key for a band, if present.
func (c *Cluster) Band(b int) (scankey.Key, bool) {
	k, ok := c.bands[b]
	return k, ok
}

// Keys returns the member keys ordered by band.
func (c *Cluster) Keys() []scankey.Key {
	out := make([]scankey.Key, 0, len(c.bands))
	for _, k := range c.bands {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Band < out[j].Band })
	return out
}

// add inserts a key, resolving same-band duplicates in favor of the later
// created stamp (latest reprocessing wins). Reports whether a key was
// discarded.
func (c *Cluster) add(k scankey.Key) (discarded bool) {
	prev, ok := c.bands[k.Band]
	if !ok {
		c.bands[k.Band] = k
		if c.start.IsZero() || k.Start.Before(c.start) {
			c.start = k.Start
		}
		return false
	}
	if k.Created.After(prev.Created) {
		c.bands[k.Band] = k
	}
	return true
}

// ClusterByTime groups keys sharing an identical (minute-truncated) scan
// start. All keys must belong to one satellite and region; a mixed input is
// a programming error upstream and fails loudly. Duplicate-band discards are
// logged and counted, never fatal.
func ClusterByTime(keys []scankey.Key) (map[time.Time]*Cluster, int, error) {
	log := slog.With("component", "align")

	clusters := make(map[time.Time]*Cluster)
	discarded := 0
	for _, k := range keys {
		if keys[0].Satellite != k.Satellite || keys[0].Region != k.Region {
			return nil, 0, fmt.Errorf("mixed satellite/region in key set: %s/%s vs %s/%s",
				keys[0].Satellite, keys[0].Region, k.Satellite, k.Region)
		}
		c, ok := clusters[k.Start]
		if !ok {
			c = &Cluster{bands: make(map[int]scankey.Key)}
			clusters[k.Start] = c
		}
		if c.add(k) {
			discarded++
			log.Warn("discarded duplicate band key",
				"band", k.Band,
				"scan_start", k.Start,
			)
		}
	}
	return clusters, discarded, nil
}
