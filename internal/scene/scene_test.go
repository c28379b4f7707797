package scene

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarops/s1compose/internal/temporal"
)

func TestParse(t *testing.T) {
	t.Run("FullProductName", func(t *testing.T) {
		s, err := Parse("/data/out/S1A_IW_GRDH_1SDV_20240107T223400_20240107T223425_051049_062E15_1A2B.img")
		require.NoError(t, err)
		assert.Equal(t, "S1A_IW_GRDH_1SDV_20240107T223400_20240107T223425_051049_062E15_1A2B", s.ID)
		assert.Equal(t, time.Date(2024, 1, 7, 22, 34, 0, 0, time.UTC), s.AcquiredAt)
		// 51049 % 175 = 124
		assert.Equal(t, "S1A_R124", s.Track)
	})

	t.Run("ProcessingSuffix", func(t *testing.T) {
		s, err := Parse("S1B_IW_GRDH_1SDV_20230301T053000_20230301T053025_030100_0374C2_sigma0_20m.img")
		require.NoError(t, err)
		assert.Equal(t, 2023, s.AcquiredAt.Year())
		assert.Equal(t, "S1B", s.Track[:3])
	})

	t.Run("NotASentinelName", func(t *testing.T) {
		_, err := Parse("landsat_scene_42.img")
		assert.ErrorIs(t, err, ErrNotSentinel1Name)
	})
}

func TestTrackID(t *testing.T) {
	testCases := []struct {
		absOrbit string
		track    string
	}{
		{"000217", "S1A_R042"}, // 217 % 175 = 42
		{"000175", "S1A_R175"}, // multiple of the cycle maps to the cycle length
		{"000350", "S1A_R175"},
		{"000001", "S1A_R001"},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.track, trackID("S1A", tc.absOrbit), "orbit %s", tc.absOrbit)
	}
}

func TestGroupByPeriod(t *testing.T) {
	cal, err := temporal.NewCalendar(2024, 12)
	require.NoError(t, err)

	scenes := []Scene{
		{ID: "b", AcquiredAt: time.Date(2024, 1, 5, 6, 0, 0, 0, time.UTC), Track: "S1A_R042"},
		{ID: "a", AcquiredAt: time.Date(2024, 1, 5, 6, 0, 0, 0, time.UTC), Track: "S1A_R042"},
		{ID: "c", AcquiredAt: time.Date(2024, 1, 20, 6, 0, 0, 0, time.UTC), Track: "S1B_R117"},
		{ID: "d", AcquiredAt: time.Date(2023, 12, 30, 6, 0, 0, 0, time.UTC), Track: "S1A_R042"},
	}

	t.Run("ByTrack", func(t *testing.T) {
		groups, outside := GroupByPeriod(cal, scenes, true)
		require.Len(t, outside, 1)
		assert.Equal(t, "d", outside[0].ID)

		bucket := groups[Key{Period: 1, Track: "S1A_R042"}]
		require.Len(t, bucket, 2)
		// Equal timestamps fall back to id order.
		assert.Equal(t, "a", bucket[0].ID)
		assert.Equal(t, "b", bucket[1].ID)

		assert.Len(t, groups[Key{Period: 2, Track: "S1B_R117"}], 1)
	})

	t.Run("Merged", func(t *testing.T) {
		groups, _ := GroupByPeriod(cal, scenes, false)
		assert.Len(t, groups[Key{Period: 1}], 2)
		assert.Len(t, groups[Key{Period: 2}], 1)
	})
}

func TestCompleteness(t *testing.T) {
	cal, err := temporal.NewCalendar(2024, 12)
	require.NoError(t, err)

	scenes := []Scene{
		{ID: "a", AcquiredAt: time.Date(2024, 1, 5, 6, 0, 0, 0, time.UTC), Track: "S1A_R042"},
		{ID: "b", AcquiredAt: time.Date(2024, 1, 7, 6, 0, 0, 0, time.UTC), Track: "S1B_R117"},
	}

	report := Completeness(cal, scenes, 6)
	require.Len(t, report.Periods, 31)
	assert.Equal(t, 2024, report.Year)

	first := report.Periods[0]
	assert.Equal(t, 2, first.Scenes)
	assert.Equal(t, []string{"S1A_R042", "S1B_R117"}, first.Tracks)

	// Every other period is missing.
	assert.Len(t, report.MissingPeriods, 30)
	assert.NotContains(t, report.MissingPeriods, 1)
}
