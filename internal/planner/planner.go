// Package planner converts a scan time range into the minimal set of store
// listing patterns that covers it.
//
// The store only supports prefix/glob listing over its date hierarchy
// (year/day-of-year/hour), so the planner escalates pattern granularity with
// the span of the range: a range inside one hour needs a single pattern
// wildcarding only the minute, a multi-day range needs one pattern per day,
// and so on. Coarser patterns over-match at the range boundaries; discarding
// out-of-range keys is the aligner's job, never the planner's.
package planner

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/joyprojects/goes-fetch/internal/scankey"
)

// Granularity is the coarsest wildcarded time field in a pattern.
type Granularity int

const (
	Minute Granularity = iota
	Hour
	Day
	Year
)

func (g Granularity) String() string {
	switch g {
	case Minute:
		return "minute"
	case Hour:
		return "hour"
	case Day:
		return "day"
	case Year:
		return "year"
	}
	return "unknown"
}

// Pattern is one listing call against the store.
type Pattern struct {
	Glob        string
	Granularity Granularity
}

// Prefix returns the fixed leading part of the glob, the longest prefix a
// store can list without wildcard support.
func (p Pattern) Prefix() string {
	if i := strings.IndexAny(p.Glob, "*?["); i >= 0 {
		return p.Glob[:i]
	}
	return p.Glob
}

// Match reports whether a store key matches the pattern. Wildcards never
// cross a path separator, mirroring the store's own glob semantics.
func (p Pattern) Match(key string) bool {
	ok, err := path.Match(p.Glob, key)
	return err == nil && ok
}

// Plan emits the ordered pattern set covering every scan of the satellite
// and region whose start time falls in [start, end]. The union of matches
// is a superset of the range; it never under-covers. A zero end is a single
// scan lookup pinned to start's minute.
func Plan(sat scankey.Satellite, region scankey.Region, start, end time.Time) []Pattern {
	start = start.UTC()
	end = end.UTC()

	if end.IsZero() {
		return []Pattern{minutePattern(sat, region, start)}
	}

	switch {
	case start.Year() != end.Year():
		var out []Pattern
		for y := start.Year(); y <= end.Year(); y++ {
			out = append(out, Pattern{
				Glob:        fmt.Sprintf("%s/%04d/*/*/%s", dirBase(sat, region), y, fileGlob(sat, region, "")),
				Granularity: Year,
			})
		}
		return out

	case start.YearDay() != end.YearDay():
		var out []Pattern
		for d := startOfDay(start); !d.After(end); d = d.AddDate(0, 0, 1) {
			out = append(out, Pattern{
				Glob:        fmt.Sprintf("%s/%04d/%03d/*/%s", dirBase(sat, region), d.Year(), d.YearDay(), fileGlob(sat, region, "")),
				Granularity: Day,
			})
		}
		return out

	case start.Hour() != end.Hour():
		var out []Pattern
		for h := start.Truncate(time.Hour); !h.After(end); h = h.Add(time.Hour) {
			out = append(out, Pattern{
				Glob:        fmt.Sprintf("%s/%04d/%03d/%02d/%s", dirBase(sat, region), h.Year(), h.YearDay(), h.Hour(), fileGlob(sat, region, "")),
				Granularity: Hour,
			})
		}
		return out

	default:
		// Same hour: pin the hour, wildcard the minute and everything
		// finer in the stamp.
		stamp := fmt.Sprintf("%04d%03d%02d", start.Year(), start.YearDay(), start.Hour())
		return []Pattern{{
			Glob: fmt.Sprintf("%s/%04d/%03d/%02d/%s",
				dirBase(sat, region), start.Year(), start.YearDay(), start.Hour(), fileGlob(sat, region, stamp)),
			Granularity: Minute,
		}}
	}
}

// minutePattern pins everything down to the scan start minute, wildcarding
// only the seconds and tenths the stamp encodes beyond it.
func minutePattern(sat scankey.Satellite, region scankey.Region, t time.Time) Pattern {
	stamp := fmt.Sprintf("%04d%03d%02d%02d", t.Year(), t.YearDay(), t.Hour(), t.Minute())
	return Pattern{
		Glob: fmt.Sprintf("%s/%04d/%03d/%02d/%s",
			dirBase(sat, region), t.Year(), t.YearDay(), t.Hour(), fileGlob(sat, region, stamp)),
		Granularity: Minute,
	}
}

func dirBase(sat scankey.Satellite, region scankey.Region) string {
	return fmt.Sprintf("%s/ABI-L1b-Rad%s", sat.Bucket(), region.Family())
}

// fileGlob builds the filename glob. The scan mode and band are wildcarded;
// stampPrefix, when set, pins the leading digits of the s-timestamp.
func fileGlob(sat scankey.Satellite, region scankey.Region, stampPrefix string) string {
	return fmt.Sprintf("OR_ABI-L1b-Rad%s-M*C*_%s_s%s*", region, sat, stampPrefix)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
