package planner

import (
	"strings"
	"testing"
	"time"

	"github.com/joyprojects/goes-fetch/internal/scankey"
)

func TestPlanSingleScan(t *testing.T) {
	start := time.Date(2019, 10, 27, 20, 48, 0, 0, time.UTC)
	patterns := Plan(scankey.Goes16, scankey.RegionMeso1, start, time.Time{})

	if len(patterns) != 1 {
		t.Fatalf("got %d patterns, want 1", len(patterns))
	}
	p := patterns[0]
	if p.Granularity != Minute {
		t.Errorf("granularity = %s, want minute", p.Granularity)
	}
	want := "noaa-goes16/ABI-L1b-RadM/2019/300/20/OR_ABI-L1b-RadM1-M*C*_G16_s20193002048*"
	if p.Glob != want {
		t.Errorf("glob = %s, want %s", p.Glob, want)
	}
}

func TestPlanWithinOneHour(t *testing.T) {
	start := time.Date(2019, 10, 27, 20, 0, 0, 0, time.UTC)
	end := time.Date(2019, 10, 27, 20, 5, 0, 0, time.UTC)
	patterns := Plan(scankey.Goes16, scankey.RegionMeso1, start, end)

	if len(patterns) != 1 {
		t.Fatalf("got %d patterns, want 1", len(patterns))
	}
	if patterns[0].Granularity != Minute {
		t.Errorf("granularity = %s, want minute", patterns[0].Granularity)
	}
	want := "noaa-goes16/ABI-L1b-RadM/2019/300/20/OR_ABI-L1b-RadM1-M*C*_G16_s201930020*"
	if patterns[0].Glob != want {
		t.Errorf("glob = %s, want %s", patterns[0].Glob, want)
	}

	// Every minute of the hour is covered, not just the start minute.
	lastMinute := "noaa-goes16/ABI-L1b-RadM/2019/300/20/OR_ABI-L1b-RadM1-M6C01_G16_s20193002059000_e20193002059300_c20193002059500.nc"
	if !patterns[0].Match(lastMinute) {
		t.Errorf("pattern should cover the whole hour: %s", patterns[0].Glob)
	}
}

func TestPlanAcrossHours(t *testing.T) {
	start := time.Date(2019, 10, 27, 20, 50, 0, 0, time.UTC)
	end := time.Date(2019, 10, 27, 23, 10, 0, 0, time.UTC)
	patterns := Plan(scankey.Goes16, scankey.RegionMeso1, start, end)

	if len(patterns) != 4 {
		t.Fatalf("got %d patterns, want 4 (hours 20..23)", len(patterns))
	}
	for i, p := range patterns {
		if p.Granularity != Hour {
			t.Errorf("pattern %d granularity = %s, want hour", i, p.Granularity)
		}
	}
	if !strings.Contains(patterns[0].Glob, "/2019/300/20/") {
		t.Errorf("first pattern should pin hour 20: %s", patterns[0].Glob)
	}
	if !strings.Contains(patterns[3].Glob, "/2019/300/23/") {
		t.Errorf("last pattern should pin hour 23: %s", patterns[3].Glob)
	}
}

func TestPlanAcrossDays(t *testing.T) {
	start := time.Date(2019, 10, 27, 23, 0, 0, 0, time.UTC)
	end := time.Date(2019, 10, 29, 1, 0, 0, 0, time.UTC)
	patterns := Plan(scankey.Goes16, scankey.RegionConus, start, end)

	if len(patterns) != 3 {
		t.Fatalf("got %d patterns, want 3 (days 300..302)", len(patterns))
	}
	for i, p := range patterns {
		if p.Granularity != Day {
			t.Errorf("pattern %d granularity = %s, want day", i, p.Granularity)
		}
	}
	if !strings.Contains(patterns[1].Glob, "/2019/301/*/") {
		t.Errorf("middle pattern should pin day 301: %s", patterns[1].Glob)
	}
}

func TestPlanAcrossYears(t *testing.T) {
	start := time.Date(2019, 12, 31, 23, 0, 0, 0, time.UTC)
	end := time.Date(2020, 1, 1, 1, 0, 0, 0, time.UTC)
	patterns := Plan(scankey.Goes17, scankey.RegionFull, start, end)

	if len(patterns) != 2 {
		t.Fatalf("got %d patterns, want 2 (one per year)", len(patterns))
	}
	for i, p := range patterns {
		if p.Granularity != Year {
			t.Errorf("pattern %d granularity = %s, want year", i, p.Granularity)
		}
	}
	if !strings.Contains(patterns[0].Glob, "/2019/*/*/") {
		t.Errorf("first pattern should pin 2019: %s", patterns[0].Glob)
	}
	if !strings.Contains(patterns[1].Glob, "/2020/*/*/") {
		t.Errorf("second pattern should pin 2020: %s", patterns[1].Glob)
	}
}

func TestPatternPrefix(t *testing.T) {
	start := time.Date(2019, 10, 27, 20, 48, 0, 0, time.UTC)
	p := Plan(scankey.Goes16, scankey.RegionMeso1, start, time.Time{})[0]

	want := "noaa-goes16/ABI-L1b-RadM/2019/300/20/OR_ABI-L1b-RadM1-M"
	if got := p.Prefix(); got != want {
		t.Errorf("Prefix = %s, want %s", got, want)
	}

	fixed := Pattern{Glob: "noaa-goes16/ABI-L1b-RadM/2019/300/20/"}
	if got := fixed.Prefix(); got != fixed.Glob {
		t.Errorf("wildcard-free glob should be its own prefix, got %s", got)
	}
}

func TestPatternMatch(t *testing.T) {
	start := time.Date(2019, 10, 27, 20, 48, 0, 0, time.UTC)
	p := Plan(scankey.Goes16, scankey.RegionMeso1, start, time.Time{})[0]

	match := "noaa-goes16/ABI-L1b-RadM/2019/300/20/OR_ABI-L1b-RadM1-M6C14_G16_s20193002048275_e20193002048332_c20193002048405.nc"
	if !p.Match(match) {
		t.Errorf("should match same-minute key: %s", match)
	}

	otherMinute := "noaa-goes16/ABI-L1b-RadM/2019/300/20/OR_ABI-L1b-RadM1-M6C14_G16_s20193002049275_e20193002049332_c20193002049405.nc"
	if p.Match(otherMinute) {
		t.Errorf("should not match a different minute: %s", otherMinute)
	}

	meso2 := "noaa-goes16/ABI-L1b-RadM/2019/300/20/OR_ABI-L1b-RadM2-M6C14_G16_s20193002048275_e20193002048332_c20193002048405.nc"
	if p.Match(meso2) {
		t.Errorf("M1 pattern should not match M2 keys: %s", meso2)
	}
}

func TestPlanMesoWindowsShareDirectory(t *testing.T) {
	start := time.Date(2019, 10, 27, 20, 48, 0, 0, time.UTC)
	m1 := Plan(scankey.Goes16, scankey.RegionMeso1, start, time.Time{})[0]
	m2 := Plan(scankey.Goes16, scankey.RegionMeso2, start, time.Time{})[0]

	if !strings.HasPrefix(m1.Glob, "noaa-goes16/ABI-L1b-RadM/") ||
		!strings.HasPrefix(m2.Glob, "noaa-goes16/ABI-L1b-RadM/") {
		t.Error("both mesoscale windows list under ABI-L1b-RadM")
	}
	if m1.Glob == m2.Glob {
		t.Error("window filename globs must differ")
	}
}
