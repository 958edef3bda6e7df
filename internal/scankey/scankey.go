// Package scankey parses and renders GOES-R series object keys.
//
// Keys follow the NOAA bucket layout:
//
//	{bucket}/ABI-L1b-Rad{family}/{year}/{dayOfYear}/{hour}/{filename}
//
// where the filename embeds the region, scan mode, band, satellite short
// code, and three timestamps:
//
//	OR_ABI-L1b-RadM1-M6C14_G16_s20193002048275_e20193002048332_c20193002048405.nc
package scankey

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedKey is returned when a path does not match the GOES key template.
var ErrMalformedKey = errors.New("malformed scan key")

// Satellite identifies a GOES-R series satellite.
type Satellite string

const (
	Goes16 Satellite = "G16"
	Goes17 Satellite = "G17"
)

// Bucket returns the satellite's bucket name, the first path segment of a key.
func (s Satellite) Bucket() string {
	switch s {
	case Goes16:
		return "noaa-goes16"
	case Goes17:
		return "noaa-goes17"
	}
	return ""
}

// ParseSatellite accepts a short code ("G16") or bucket name ("noaa-goes16").
func ParseSatellite(v string) (Satellite, error) {
	switch strings.ToLower(v) {
	case "g16", "goes16", "noaa-goes16":
		return Goes16, nil
	case "g17", "goes17", "noaa-goes17":
		return Goes17, nil
	}
	return "", fmt.Errorf("unknown satellite %q", v)
}

// Region is the geographic coverage mode of a scan.
type Region string

const (
	RegionFull  Region = "F"  // full disk
	RegionConus Region = "C"  // continental US
	RegionMeso1 Region = "M1" // mesoscale window 1
	RegionMeso2 Region = "M2" // mesoscale window 2
)

// Family returns the product directory suffix. Both mesoscale windows share
// the "M" product directory.
func (r Region) Family() string {
	if r == RegionMeso1 || r == RegionMeso2 {
		return "M"
	}
	return string(r)
}

// MinCadence returns the shortest revisit interval the region supports.
func (r Region) MinCadence() time.Duration {
	switch r {
	case RegionMeso1, RegionMeso2:
		return 1 * time.Minute
	case RegionConus:
		return 5 * time.Minute
	default:
		return 10 * time.Minute
	}
}

// ParseRegion validates a region string.
func ParseRegion(v string) (Region, error) {
	switch strings.ToUpper(v) {
	case "F":
		return RegionFull, nil
	case "C":
		return RegionConus, nil
	case "M1":
		return RegionMeso1, nil
	case "M2":
		return RegionMeso2, nil
	}
	return "", fmt.Errorf("unknown region %q", v)
}

// Band limits for the ABI instrument.
const (
	MinBand = 1
	MaxBand = 16
)

// ValidBand reports whether b is a real ABI spectral channel.
func ValidBand(b int) bool {
	return b >= MinBand && b <= MaxBand
}

// Key is a parsed GOES object key. Values are never mutated after Parse.
type Key struct {
	Satellite Satellite
	Region    Region
	Band      int
	Mode      string // scan mode digit from the filename, e.g. "6"

	// Start is the scan start truncated to the minute. The raw stamps keep
	// full sub-second precision for rendering and tie-breaking.
	Start   time.Time
	End     time.Time
	Created time.Time

	startStamp   string
	endStamp     string
	createdStamp string

	// Path is the raw store path the key was parsed from.
	Path string
}

// Stamps are YYYYDDDHHMM with optional whole seconds and an optional tenth;
// a lone extra digit would be half a seconds field, so it is rejected.
var keyPattern = regexp.MustCompile(
	`^(noaa-goes1[67])/ABI-L1b-Rad([FCM])/(\d{4})/(\d{3})/(\d{2})/` +
		`OR_ABI-L1b-Rad(F|C|M1|M2)-M(\d)C(\d{2})_(G1[67])` +
		`_s(\d{11}(?:\d{2}\d?)?)_e(\d{11}(?:\d{2}\d?)?)_c(\d{11}(?:\d{2}\d?)?)\.nc$`)

// Parse converts a raw store path into a Key. It fails with ErrMalformedKey
// for anything that does not match the documented template.
func Parse(path string) (Key, error) {
	m := keyPattern.FindStringSubmatch(path)
	if m == nil {
		return Key{}, fmt.Errorf("%w: %s", ErrMalformedKey, path)
	}

	sat, err := ParseSatellite(m[9])
	if err != nil {
		return Key{}, fmt.Errorf("%w: %s", ErrMalformedKey, path)
	}
	if sat.Bucket() != m[1] {
		return Key{}, fmt.Errorf("%w: bucket %s does not match satellite %s", ErrMalformedKey, m[1], m[9])
	}
	region := Region(m[6])
	if region.Family() != m[2] {
		return Key{}, fmt.Errorf("%w: product family %s does not match region %s", ErrMalformedKey, m[2], m[6])
	}

	band, err := strconv.Atoi(m[8])
	if err != nil || !ValidBand(band) {
		return Key{}, fmt.Errorf("%w: band %s out of range", ErrMalformedKey, m[8])
	}

	start, err := parseStamp(m[10])
	if err != nil {
		return Key{}, fmt.Errorf("%w: start stamp %s", ErrMalformedKey, m[10])
	}
	end, err := parseStamp(m[11])
	if err != nil {
		return Key{}, fmt.Errorf("%w: end stamp %s", ErrMalformedKey, m[11])
	}
	created, err := parseStamp(m[12])
	if err != nil {
		return Key{}, fmt.Errorf("%w: created stamp %s", ErrMalformedKey, m[12])
	}

	return Key{
		Satellite:    sat,
		Region:       region,
		Band:         band,
		Mode:         m[7],
		Start:        start.Truncate(time.Minute),
		End:          end,
		Created:      created,
		startStamp:   m[10],
		endStamp:     m[11],
		createdStamp: m[12],
		Path:         path,
	}, nil
}

// RenderPath reconstructs the store path from the key's fields. For a key
// produced by Parse it reproduces Path exactly.
func (k Key) RenderPath() string {
	return fmt.Sprintf("%s/ABI-L1b-Rad%s/%04d/%03d/%02d/OR_ABI-L1b-Rad%s-M%sC%02d_%s_s%s_e%s_c%s.nc",
		k.Satellite.Bucket(), k.Region.Family(),
		k.Start.Year(), k.Start.YearDay(), k.Start.Hour(),
		k.Region, k.Mode, k.Band, k.Satellite,
		k.startStamp, k.endStamp, k.createdStamp)
}

// LocalPath maps the key to its mirror location under root. The mirror keeps
// the store layout byte for byte, bucket segment included, so a re-run
// produces the same tree a direct store browse would show.
func (k Key) LocalPath(root string) string {
	return filepath.Join(root, filepath.FromSlash(k.Path))
}

// Less orders keys by scan start, tie-broken by band.
func (k Key) Less(other Key) bool {
	if !k.Start.Equal(other.Start) {
		return k.Start.Before(other.Start)
	}
	return k.Band < other.Band
}

// Sort orders keys in place by (scan start, band).
func Sort(keys []Key) {
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
}

// FormatStamp renders a time in the key timestamp form YYYYDDDHHMMSSt.
func FormatStamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d%03d%02d%02d%02d%d",
		t.Year(), t.YearDay(), t.Hour(), t.Minute(), t.Second(),
		t.Nanosecond()/100_000_000)
}

// parseStamp parses YYYYDDDHHMM with optional seconds and tenths. The
// store encodes tenths of a second; anything finer does not exist.
func parseStamp(s string) (time.Time, error) {
	if len(s) < 11 {
		return time.Time{}, fmt.Errorf("stamp too short: %q", s)
	}
	year, err := strconv.Atoi(s[0:4])
	if err != nil {
		return time.Time{}, err
	}
	doy, err := strconv.Atoi(s[4:7])
	if err != nil {
		return time.Time{}, err
	}
	if doy < 1 || doy > 366 {
		return time.Time{}, fmt.Errorf("day of year out of range: %d", doy)
	}
	hour, err := strconv.Atoi(s[7:9])
	if err != nil {
		return time.Time{}, err
	}
	min, err := strconv.Atoi(s[9:11])
	if err != nil {
		return time.Time{}, err
	}
	sec := 0
	if len(s) >= 13 {
		if sec, err = strconv.Atoi(s[11:13]); err != nil {
			return time.Time{}, err
		}
	}
	nsec := 0
	if len(s) >= 14 {
		tenth, err := strconv.Atoi(s[13:14])
		if err != nil {
			return time.Time{}, err
		}
		nsec = tenth * 100_000_000
	}
	return time.Date(year, time.January, 1, hour, min, sec, nsec, time.UTC).
		AddDate(0, 0, doy-1), nil
}
