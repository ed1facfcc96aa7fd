package interval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

func at(h, m int) time.Time {
	return day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
}

func iv(h1, m1, h2, m2 int) Interval {
	return Interval{Start: at(h1, m1), End: at(h2, m2)}
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, Merge(nil))
	assert.Empty(t, Merge([]Interval{}))
}

func TestMerge_OverlappingAndTouching(t *testing.T) {
	merged := Merge([]Interval{
		iv(13, 0, 14, 0),
		iv(8, 0, 10, 0),
		iv(9, 30, 11, 0),
		iv(11, 0, 12, 0), // touches previous
		iv(15, 0, 15, 0), // degenerate
	})

	require.Len(t, merged, 2)
	assert.Equal(t, iv(8, 0, 12, 0), merged[0])
	assert.Equal(t, iv(13, 0, 14, 0), merged[1])
}

func TestMerge_ContainedInterval(t *testing.T) {
	merged := Merge([]Interval{iv(8, 0, 16, 0), iv(9, 0, 10, 0)})
	assert.Equal(t, []Interval{iv(8, 0, 16, 0)}, merged)
}

func TestMerge_DoesNotModifyInput(t *testing.T) {
	input := []Interval{iv(10, 0, 11, 0), iv(8, 0, 9, 0)}
	Merge(input)
	assert.Equal(t, iv(10, 0, 11, 0), input[0])
}

func TestMerge_SortedNonOverlappingSameMeasure(t *testing.T) {
	input := []Interval{
		iv(8, 0, 9, 0), iv(8, 30, 9, 30), iv(12, 0, 13, 0), iv(12, 15, 12, 45), iv(20, 0, 22, 0),
	}
	merged := Merge(input)

	for i := 1; i < len(merged); i++ {
		assert.True(t, merged[i-1].End.Before(merged[i].Start), "merged intervals must not overlap or touch")
	}
	// union: 8:00-9:30 (90m) + 12:00-13:00 (60m) + 20:00-22:00 (120m)
	assert.Equal(t, 270*time.Minute, Total(merged))
}

func TestSubtract(t *testing.T) {
	base := iv(8, 0, 16, 0)

	tests := []struct {
		name     string
		cuts     []Interval
		expected []Interval
	}{
		{
			name:     "no cuts",
			cuts:     nil,
			expected: []Interval{base},
		},
		{
			name:     "cut fully covers base",
			cuts:     []Interval{iv(7, 0, 17, 0)},
			expected: []Interval{},
		},
		{
			name:     "cut truncates left edge",
			cuts:     []Interval{iv(7, 0, 9, 0)},
			expected: []Interval{iv(9, 0, 16, 0)},
		},
		{
			name:     "cut truncates right edge",
			cuts:     []Interval{iv(15, 0, 18, 0)},
			expected: []Interval{iv(8, 0, 15, 0)},
		},
		{
			name:     "cut strictly inside splits",
			cuts:     []Interval{iv(12, 0, 12, 30)},
			expected: []Interval{iv(8, 0, 12, 0), iv(12, 30, 16, 0)},
		},
		{
			name:     "cut outside base",
			cuts:     []Interval{iv(17, 0, 18, 0)},
			expected: []Interval{base},
		},
		{
			name:     "inverted cut ignored",
			cuts:     []Interval{iv(12, 0, 10, 0)},
			expected: []Interval{base},
		},
		{
			name:     "overlapping unsorted cuts",
			cuts:     []Interval{iv(14, 0, 15, 0), iv(9, 0, 10, 0), iv(9, 30, 11, 0)},
			expected: []Interval{iv(8, 0, 9, 0), iv(11, 0, 14, 0), iv(15, 0, 16, 0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Subtract(base, tt.cuts))
		})
	}
}

func TestSubtract_DegenerateBase(t *testing.T) {
	assert.Empty(t, Subtract(iv(10, 0, 10, 0), []Interval{iv(9, 0, 11, 0)}))
	assert.Empty(t, Subtract(iv(11, 0, 10, 0), nil))
}

func TestSubtract_DurationProperty(t *testing.T) {
	base := iv(6, 0, 18, 0)
	cuts := []Interval{iv(5, 0, 7, 0), iv(10, 0, 11, 0), iv(10, 30, 12, 0), iv(17, 30, 19, 0)}

	remaining := Subtract(base, cuts)

	var removed time.Duration
	for _, c := range Merge(cuts) {
		removed += base.Intersect(c).Duration()
	}
	assert.Equal(t, base.Duration()-removed, Total(remaining))
	for _, piece := range remaining {
		assert.False(t, piece.Start.Before(base.Start))
		assert.False(t, piece.End.After(base.End))
	}
}

func TestSubtract_OrderIndependent(t *testing.T) {
	base := iv(8, 0, 16, 0)
	a := []Interval{iv(9, 0, 10, 0), iv(12, 0, 13, 0), iv(9, 30, 12, 30)}
	b := []Interval{a[2], a[0], a[1]}
	assert.Equal(t, Subtract(base, a), Subtract(base, b))
}

func TestNew_Overnight(t *testing.T) {
	night := New(day, 22*time.Hour, 6*time.Hour)
	assert.Equal(t, at(22, 0), night.Start)
	assert.Equal(t, day.Add(30*time.Hour), night.End)
	assert.Equal(t, 8*time.Hour, night.Duration())
	assert.True(t, night.Contains(day.Add(26*time.Hour)))
	assert.False(t, night.Contains(day.Add(30*time.Hour)))
}

func TestIntersect(t *testing.T) {
	assert.Equal(t, iv(10, 0, 12, 0), iv(8, 0, 12, 0).Intersect(iv(10, 0, 14, 0)))
	assert.Equal(t, Interval{}, iv(8, 0, 9, 0).Intersect(iv(9, 0, 10, 0)))
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"07:30", 7*time.Hour + 30*time.Minute, false},
		{"7:05", 7*time.Hour + 5*time.Minute, false},
		{"13:15:30", 13*time.Hour + 15*time.Minute + 30*time.Second, false},
		{"08.45", 8*time.Hour + 45*time.Minute, false},
		{" 24:00 ", 24 * time.Hour, false},
		{"", 0, true},
		{"abc", 0, true},
		{"25:00", 0, true},
		{"12:60", 0, true},
		{"24:30", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseClock(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "07:30", FormatClock(7*time.Hour+30*time.Minute))
	assert.Equal(t, "00:00", FormatClock(0))
}
