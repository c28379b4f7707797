package scene

import (
	"sort"

	"github.com/sarops/s1compose/internal/temporal"
)

// DefaultRevisitDays is the combined Sentinel-1 constellation revisit
// interval used to estimate expected acquisitions per period.
const DefaultRevisitDays = 6

// PeriodCoverage summarizes scene availability for one period.
type PeriodCoverage struct {
	Period   int
	Start    string
	End      string
	Scenes   int
	Expected int
	Tracks   []string
}

// CompletenessReport describes how well a scene set covers the calendar.
type CompletenessReport struct {
	Year           int
	Periods        []PeriodCoverage
	MissingPeriods []int
	OutsideYear    int
}

// Completeness builds a per-period coverage report for the scene set.
// revisitDays <= 0 selects the default constellation revisit.
func Completeness(cal temporal.Calendar, scenes []Scene, revisitDays int) CompletenessReport {
	if revisitDays <= 0 {
		revisitDays = DefaultRevisitDays
	}

	groups, outside := GroupByPeriod(cal, scenes, false)
	report := CompletenessReport{Year: cal.Year, OutsideYear: len(outside)}

	for p := 1; p <= cal.Periods(); p++ {
		start, end, err := cal.Range(p)
		if err != nil {
			continue
		}
		expected, _ := cal.ExpectedAcquisitions(p, revisitDays)

		bucket := groups[Key{Period: p}]
		tracks := make(map[string]struct{})
		for _, s := range bucket {
			if s.Track != "" {
				tracks[s.Track] = struct{}{}
			}
		}
		cov := PeriodCoverage{
			Period:   p,
			Start:    start.Format("2006-01-02"),
			End:      end.Format("2006-01-02"),
			Scenes:   len(bucket),
			Expected: expected,
		}
		for t := range tracks {
			cov.Tracks = append(cov.Tracks, t)
		}
		sort.Strings(cov.Tracks)
		if len(bucket) == 0 {
			report.MissingPeriods = append(report.MissingPeriods, p)
		}
		report.Periods = append(report.Periods, cov)
	}
	return report
}
