package schedule

import (
	"sort"
	"time"

	"github.com/jakechorley/fairshare/pkg/core/interval"
	"github.com/jakechorley/fairshare/pkg/core/model"
)

// Schedule is the compiled, read-only availability for one day
type Schedule struct {
	Date   time.Time
	Issues []Issue

	resourceTypes []string
	byRT          map[string][]Segment
	gapSegments   []Segment
	gaps          map[model.WorkerID][]interval.Interval
}

// Emit groups compiled segments by resource type, ordered by (start, worker)
func Emit(date time.Time, resourceTypes []string, shifts, gaps []Segment, issues []Issue) *Schedule {
	byRT := make(map[string][]Segment, len(resourceTypes))
	for _, rt := range resourceTypes {
		byRT[rt] = make([]Segment, 0)
	}
	for _, s := range shifts {
		byRT[s.ResourceType] = append(byRT[s.ResourceType], s)
	}
	for rt := range byRT {
		segments := byRT[rt]
		sort.SliceStable(segments, func(i, j int) bool {
			a, b := segments[i], segments[j]
			if !a.Window.Start.Equal(b.Window.Start) {
				return a.Window.Start.Before(b.Window.Start)
			}
			if a.Worker != b.Worker {
				return a.Worker < b.Worker
			}
			return a.Order < b.Order
		})
	}

	gapSegments := make([]Segment, len(gaps))
	copy(gapSegments, gaps)

	if issues == nil {
		issues = []Issue{}
	}

	return &Schedule{
		Date:          date,
		Issues:        issues,
		resourceTypes: resourceTypes,
		byRT:          byRT,
		gapSegments:   gapSegments,
		gaps:          MergedGaps(gaps),
	}
}

// Empty returns a schedule with no segments
func Empty(resourceTypes []string) *Schedule {
	return Emit(time.Time{}, resourceTypes, nil, nil, nil)
}

// ResourceTypes returns the resource types the schedule was emitted for
func (s *Schedule) ResourceTypes() []string {
	return s.resourceTypes
}

// Segments returns all shift segments for a resource type
func (s *Schedule) Segments(resourceType string) []Segment {
	return s.byRT[resourceType]
}

// WorkerSegments returns one worker's shift segments for a resource type
func (s *Schedule) WorkerSegments(resourceType string, worker model.WorkerID) []Segment {
	result := make([]Segment, 0)
	for _, seg := range s.byRT[resourceType] {
		if seg.Worker == worker {
			result = append(result, seg)
		}
	}
	return result
}

// Gaps returns the worker's merged non-counting gap windows
func (s *Schedule) Gaps(worker model.WorkerID) []interval.Interval {
	return s.gaps[worker]
}

// GapSegments returns the gap segments as compiled, before merging
func (s *Schedule) GapSegments() []Segment {
	return s.gapSegments
}

// InGap reports whether the worker is inside a non-counting gap at t
func (s *Schedule) InGap(worker model.WorkerID, t time.Time) bool {
	for _, g := range s.gaps[worker] {
		if g.Contains(t) {
			return true
		}
	}
	return false
}

// Workers returns every worker with at least one segment, sorted
func (s *Schedule) Workers() []model.WorkerID {
	seen := make(map[model.WorkerID]bool)
	for _, segments := range s.byRT {
		for _, seg := range segments {
			seen[seg.Worker] = true
		}
	}
	for _, g := range s.gapSegments {
		seen[g.Worker] = true
	}

	workers := make([]model.WorkerID, 0, len(seen))
	for w := range seen {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i] < workers[j] })
	return workers
}

// All returns every shift segment in resource-type order followed by the gaps
func (s *Schedule) All() []Segment {
	result := make([]Segment, 0)
	for _, rt := range s.resourceTypes {
		result = append(result, s.byRT[rt]...)
	}
	return append(result, s.gapSegments...)
}
