package interval

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Interval is a half-open time range [Start, End)
type Interval struct {
	Start time.Time
	End   time.Time
}

// New builds an interval on the given day from two clock offsets.
// If end is not after start the window is treated as overnight and end moves to the next day.
func New(day time.Time, start, end time.Duration) Interval {
	midnight := StartOfDay(day)
	return Normalize(Interval{Start: midnight.Add(start), End: midnight.Add(end)})
}

// Normalize pushes an end that is not after the start into the following day
func Normalize(iv Interval) Interval {
	if !iv.End.After(iv.Start) {
		iv.End = iv.End.Add(24 * time.Hour)
	}
	return iv
}

// Valid reports whether the interval has a positive length
func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// Duration returns the length of the interval, zero for degenerate intervals
func (iv Interval) Duration() time.Duration {
	if !iv.Valid() {
		return 0
	}
	return iv.End.Sub(iv.Start)
}

// Contains reports whether t lies in [Start, End)
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && t.Before(iv.End)
}

// Overlaps reports whether two intervals share any positive-length range
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Intersect returns the common part of two intervals, or a zero interval if they do not overlap
func (iv Interval) Intersect(other Interval) Interval {
	start := iv.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := iv.End
	if other.End.Before(end) {
		end = other.End
	}
	if !end.After(start) {
		return Interval{}
	}
	return Interval{Start: start, End: end}
}

func (iv Interval) String() string {
	return fmt.Sprintf("[%s, %s)", iv.Start.Format("15:04"), iv.End.Format("15:04"))
}

// Merge sorts intervals by start and coalesces overlapping or touching ones.
// Degenerate intervals are dropped. The input slice is not modified.
func Merge(intervals []Interval) []Interval {
	sorted := make([]Interval, 0, len(intervals))
	for _, iv := range intervals {
		if iv.Valid() {
			sorted = append(sorted, iv)
		}
	}
	if len(sorted) == 0 {
		return []Interval{}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Subtract removes every cut from base and returns the remaining pieces in ascending order.
// Cuts may overlap each other and may be in any order.
func Subtract(base Interval, cuts []Interval) []Interval {
	if !base.Valid() {
		return []Interval{}
	}

	pieces := []Interval{base}
	for _, cut := range cuts {
		if !cut.Valid() {
			continue
		}
		next := make([]Interval, 0, len(pieces)+1)
		for _, piece := range pieces {
			if !piece.Overlaps(cut) {
				next = append(next, piece)
				continue
			}
			// Left remainder
			if cut.Start.After(piece.Start) {
				next = append(next, Interval{Start: piece.Start, End: cut.Start})
			}
			// Right remainder
			if cut.End.Before(piece.End) {
				next = append(next, Interval{Start: cut.End, End: piece.End})
			}
		}
		pieces = next
	}

	sort.SliceStable(pieces, func(i, j int) bool {
		return pieces[i].Start.Before(pieces[j].Start)
	})
	return pieces
}

// Total sums the durations of the given intervals
func Total(intervals []Interval) time.Duration {
	var total time.Duration
	for _, iv := range intervals {
		total += iv.Duration()
	}
	return total
}

// StartOfDay truncates t to midnight in its own location
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ParseClock parses a time-of-day such as "07:30", "7:30", "07:30:00" or "07.30"
// and returns the offset from midnight. "24:00" is accepted as end of day.
func ParseClock(text string) (time.Duration, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, fmt.Errorf("empty time")
	}
	s = strings.ReplaceAll(s, ".", ":")

	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q", text)
	}

	values := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q: %w", text, err)
		}
		values[i] = v
	}

	hour, minute := values[0], values[1]
	second := 0
	if len(values) == 3 {
		second = values[2]
	}
	if minute < 0 || minute > 59 || second < 0 || second > 59 || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("time out of range %q", text)
	}
	if hour == 24 && (minute != 0 || second != 0) {
		return 0, fmt.Errorf("time out of range %q", text)
	}

	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(second)*time.Second, nil
}

// FormatClock renders an offset from midnight as HH:MM
func FormatClock(d time.Duration) string {
	d = d.Round(time.Minute)
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
