// Package scene models one preprocessed Sentinel-1 acquisition and the
// metadata recoverable from its product name: acquisition time and orbital
// track. Scenes are immutable once produced by a successful preprocessing
// job; the compositing stages consume them read-only.
package scene

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sarops/s1compose/internal/temporal"
)

// ErrNotSentinel1Name is returned when a file name does not look like a
// Sentinel-1 product identifier.
var ErrNotSentinel1Name = errors.New("not a Sentinel-1 product name")

// relativeOrbits is the repeat cycle length of the Sentinel-1 orbit plan.
const relativeOrbits = 175

// Scene is one single-band raster produced by the preprocessing tool.
type Scene struct {
	// ID is the product identifier (file name without extension or suffix).
	ID string
	// AcquiredAt is the acquisition start time parsed from the product name.
	AcquiredAt time.Time
	// Track identifies the relative orbit ("S1A_R042"); empty when the
	// product name carries no orbit field.
	Track string
	// Path is the raster file on disk.
	Path string
}

// productName matches Sentinel-1 SAFE product identifiers, e.g.
// S1A_IW_GRDH_1SDV_20240107T223400_20240107T223425_051234_062E15_1A2B.
// The trailing fields are optional so that derived names with processing
// suffixes still parse.
var productName = regexp.MustCompile(
	`^(S1[AB])_[A-Z0-9]{2}_[A-Z0-9]{4}_[A-Z0-9]{4}_(\d{8}T\d{6})_\d{8}T\d{6}_(\d{6})`)

// Parse extracts scene metadata from a file path. The base name must start
// with a Sentinel-1 product identifier; anything after the mandatory fields
// (band suffixes, extensions) is ignored.
func Parse(path string) (Scene, error) {
	base := filepath.Base(path)
	m := productName.FindStringSubmatch(base)
	if m == nil {
		return Scene{}, fmt.Errorf("%w: %s", ErrNotSentinel1Name, base)
	}

	acquired, err := time.Parse("20060102T150405", m[2])
	if err != nil {
		return Scene{}, fmt.Errorf("%w: bad timestamp in %s", ErrNotSentinel1Name, base)
	}

	id := strings.TrimSuffix(base, filepath.Ext(base))
	return Scene{
		ID:         id,
		AcquiredAt: acquired.UTC(),
		Track:      trackID(m[1], m[3]),
		Path:       path,
	}, nil
}

// trackID derives the relative-orbit track identifier from the mission and
// the absolute orbit number. Relative orbit is absolute orbit modulo the
// repeat cycle, with 0 mapping to the cycle length.
func trackID(mission, absOrbit string) string {
	n, err := strconv.Atoi(absOrbit)
	if err != nil {
		return ""
	}
	rel := n % relativeOrbits
	if rel == 0 {
		rel = relativeOrbits
	}
	return fmt.Sprintf("%s_R%03d", mission, rel)
}

// TrackOf returns the track bucket of a scene, or the empty string when the
// scene has no track information.
func TrackOf(s Scene) string {
	return s.Track
}

// Key is a (period, track) bucket identity.
type Key struct {
	Period int
	Track  string
}

// GroupByPeriod partitions scenes into (period, track) buckets using the
// given calendar. When byTrack is false all scenes of a period share one
// bucket with an empty track. Scenes dated outside the calendar year are
// returned separately, not silently dropped.
func GroupByPeriod(cal temporal.Calendar, scenes []Scene, byTrack bool) (map[Key][]Scene, []Scene) {
	groups := make(map[Key][]Scene)
	var outside []Scene
	for _, s := range scenes {
		p, err := cal.PeriodOf(s.AcquiredAt)
		if err != nil {
			outside = append(outside, s)
			continue
		}
		k := Key{Period: p}
		if byTrack {
			k.Track = s.Track
		}
		groups[k] = append(groups[k], s)
	}
	// Deterministic chronological order inside every bucket.
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool {
			if !g[i].AcquiredAt.Equal(g[j].AcquiredAt) {
				return g[i].AcquiredAt.Before(g[j].AcquiredAt)
			}
			return g[i].ID < g[j].ID
		})
	}
	return groups, outside
}

// ScanDir finds scene rasters (.img with .hdr sidecars) in dir whose names
// parse as Sentinel-1 products. Files that do not parse are reported in
// skipped.
func ScanDir(dir string) (scenes []Scene, skipped []string, err error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read scene directory: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".img") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		s, err := Parse(path)
		if err != nil {
			skipped = append(skipped, e.Name())
			continue
		}
		scenes = append(scenes, s)
	}
	sort.Slice(scenes, func(i, j int) bool { return scenes[i].ID < scenes[j].ID })
	return scenes, skipped, nil
}
