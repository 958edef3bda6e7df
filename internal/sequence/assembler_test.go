package sequence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/joyprojects/goes-fetch/internal/planner"
	"github.com/joyprojects/goes-fetch/internal/scankey"
)

// fakeLister serves a fixed key set, filtered by the patterns it is given,
// the way a real store listing would behave.
type fakeLister struct {
	paths []string
	err   error
	calls int
}

func (f *fakeLister) ListAll(ctx context.Context, patterns []planner.Pattern) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for _, p := range f.paths {
		for _, pat := range patterns {
			if pat.Match(p) {
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

// fakeDownloader records downloads without touching the store or disk.
type fakeDownloader struct {
	mu       sync.Mutex
	fetched  []string
	failKeys map[string]error
}

func (f *fakeDownloader) Download(ctx context.Context, key, localPath string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failKeys[key]; err != nil {
		return 0, err
	}
	f.fetched = append(f.fetched, localPath)
	return 2048, nil
}

func scanPath(start time.Time, region string, band int) string {
	family := region
	if region == "M1" || region == "M2" {
		family = "M"
	}
	return fmt.Sprintf("noaa-goes16/ABI-L1b-Rad%s/%04d/%03d/%02d/OR_ABI-L1b-Rad%s-M6C%02d_G16_s%s_e%s_c%s.nc",
		family, start.Year(), start.YearDay(), start.Hour(), region, band,
		scankey.FormatStamp(start),
		scankey.FormatStamp(start.Add(30*time.Second)),
		scankey.FormatStamp(start.Add(50*time.Second)))
}

func fullScanPaths(start time.Time) []string {
	var out []string
	for b := scankey.MinBand; b <= scankey.MaxBand; b++ {
		out = append(out, scanPath(start, "M1", b))
	}
	return out
}

func TestBuildSixMinuteMesoRange(t *testing.T) {
	t0 := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

	var paths []string
	for m := 0; m <= 5; m++ {
		paths = append(paths, fullScanPaths(t0.Add(time.Duration(m)*time.Minute))...)
	}
	lister := &fakeLister{paths: paths}
	asm := New(lister, &fakeDownloader{}, nil, 4)

	seq, report, err := asm.Build(context.Background(), Query{
		Satellite: scankey.Goes16,
		Region:    scankey.RegionMeso1,
		Start:     t0,
		End:       t0.Add(5 * time.Minute),
		Cadence:   time.Minute,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if seq.Len() != 6 {
		t.Fatalf("got %d observations, want 6", seq.Len())
	}
	for _, o := range seq.Observations() {
		if o.Incomplete || o.Bands.BandCount() != 16 {
			t.Errorf("observation at %s has %d bands, want complete 16", o.Time, o.Bands.BandCount())
		}
	}
	if report.Observations != 6 || report.Incomplete != 0 || report.SkippedSteps != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.KeysListed != 96 {
		t.Errorf("keys listed = %d, want 96", report.KeysListed)
	}
	if report.CorrelationID == "" {
		t.Error("report must carry a correlation id")
	}
}

func TestBuildFlagsPartialObservation(t *testing.T) {
	t0 := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)

	var paths []string
	for m := 0; m <= 5; m++ {
		ts := t0.Add(time.Duration(m) * time.Minute)
		if m == 3 {
			// Only ten bands landed for 00:03.
			for b := 1; b <= 10; b++ {
				paths = append(paths, scanPath(ts, "M1", b))
			}
			continue
		}
		paths = append(paths, fullScanPaths(ts)...)
	}
	asm := New(&fakeLister{paths: paths}, &fakeDownloader{}, nil, 4)

	seq, report, err := asm.Build(context.Background(), Query{
		Satellite: scankey.Goes16,
		Region:    scankey.RegionMeso1,
		Start:     t0,
		End:       t0.Add(5 * time.Minute),
		Cadence:   time.Minute,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if seq.Len() != 6 {
		t.Fatalf("got %d observations, want 6", seq.Len())
	}
	partial, ok := seq.At(t0.Add(3 * time.Minute))
	if !ok {
		t.Fatal("00:03 observation missing")
	}
	if !partial.Incomplete || partial.Bands.BandCount() != 10 {
		t.Errorf("00:03 incomplete=%v bands=%d, want flagged with 10", partial.Incomplete, partial.Bands.BandCount())
	}
	for _, o := range seq.Observations() {
		if o.Time.Equal(partial.Time) {
			continue
		}
		if o.Incomplete {
			t.Errorf("observation at %s wrongly flagged incomplete", o.Time)
		}
	}
	if report.Incomplete != 1 {
		t.Errorf("report.Incomplete = %d, want 1", report.Incomplete)
	}
}

func TestBuildEmptyRange(t *testing.T) {
	asm := New(&fakeLister{}, &fakeDownloader{}, nil, 4)

	_, _, err := asm.Build(context.Background(), Query{
		Satellite: scankey.Goes16,
		Region:    scankey.RegionMeso1,
		Start:     time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
		End:       time.Date(2021, 6, 1, 0, 5, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrEmptyRange) {
		t.Errorf("error = %v, want ErrEmptyRange", err)
	}
}

func TestBuildSingleScanLookup(t *testing.T) {
	t0 := time.Date(2021, 6, 1, 0, 2, 0, 0, time.UTC)
	paths := append(fullScanPaths(t0), fullScanPaths(t0.Add(time.Minute))...)
	asm := New(&fakeLister{paths: paths}, &fakeDownloader{}, nil, 4)

	seq, _, err := asm.Build(context.Background(), Query{
		Satellite: scankey.Goes16,
		Region:    scankey.RegionMeso1,
		Start:     t0,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if seq.Len() != 1 {
		t.Fatalf("got %d observations, want 1", seq.Len())
	}
	if !seq.First().Equal(t0) {
		t.Errorf("observation at %s, want %s", seq.First(), t0)
	}
}

func TestBuildSkipsMalformedKeys(t *testing.T) {
	t0 := time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)
	paths := fullScanPaths(t0)
	// A stray file that survives the listing glob but fails to parse must
	// not sink the build.
	paths = append(paths, "noaa-goes16/ABI-L1b-RadM/2021/152/00/OR_ABI-L1b-RadM1-M6C99_G16_s20211520000000_e20211520000300_c20211520000500.nc")
	asm := New(&fakeLister{paths: paths}, &fakeDownloader{}, nil, 4)

	seq, report, err := asm.Build(context.Background(), Query{
		Satellite: scankey.Goes16,
		Region:    scankey.RegionMeso1,
		Start:     t0,
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if report.Malformed != 1 {
		t.Errorf("malformed = %d, want 1", report.Malformed)
	}
	if seq.Len() != 1 {
		t.Errorf("got %d observations, want 1", seq.Len())
	}
}

func TestBuildListingFailure(t *testing.T) {
	boom := errors.New("store down")
	asm := New(&fakeLister{err: boom}, &fakeDownloader{}, nil, 4)

	_, _, err := asm.Build(context.Background(), Query{
		Satellite: scankey.Goes16,
		Region:    scankey.RegionMeso1,
		Start:     time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want the listing failure", err)
	}
}

func TestBuildRejectsInvertedRange(t *testing.T) {
	asm := New(&fakeLister{}, &fakeDownloader{}, nil, 4)

	_, _, err := asm.Build(context.Background(), Query{
		Satellite: scankey.Goes16,
		Region:    scankey.RegionMeso1,
		Start:     time.Date(2021, 6, 1, 1, 0, 0, 0, time.UTC),
		End:       time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err == nil {
		t.Error("expected error for end before start")
	}
}
