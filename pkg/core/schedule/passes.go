package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/interval"
	"github.com/jakechorley/fairshare/pkg/core/model"
)

// Match links a record to the rule that classified it
type Match struct {
	RecordIndex int
	RuleIndex   int
}

// BaselineProvider supplies roster baselines by canonical identity
type BaselineProvider interface {
	Baseline(id model.WorkerID) capability.Matrix
}

// CollectRecords keeps records dated on the target day (or undated) that carry a name
// and an activity, and reports the rest as issues
func CollectRecords(records []Record, date time.Time) ([]int, []Issue) {
	kept := make([]int, 0, len(records))
	issues := make([]Issue, 0)

	for i, rec := range records {
		switch {
		case strings.TrimSpace(rec.DisplayName) == "":
			issues = append(issues, Issue{RecordIndex: i, Activity: rec.Activity, Reason: "missing worker name"})
		case strings.TrimSpace(rec.Activity) == "":
			issues = append(issues, Issue{RecordIndex: i, DisplayName: rec.DisplayName, Reason: "missing activity"})
		case rec.DateText != "":
			issues = append(issues, Issue{
				RecordIndex: i,
				DisplayName: rec.DisplayName,
				Activity:    rec.Activity,
				Reason:      fmt.Sprintf("unrecognised date %q", rec.DateText),
			})
		case !rec.Date.IsZero() && !sameDay(rec.Date, date):
			issues = append(issues, Issue{
				RecordIndex: i,
				DisplayName: rec.DisplayName,
				Activity:    rec.Activity,
				Reason:      fmt.Sprintf("record dated %s outside target date %s", rec.Date.Format("2006-01-02"), date.Format("2006-01-02")),
			})
		default:
			kept = append(kept, i)
		}
	}

	return kept, issues
}

// ClassifyRules matches each kept record against the priority-ordered rules.
// The first rule applying on the date whose substring matches wins.
func ClassifyRules(records []Record, kept []int, rules []Rule, date time.Time) ([]Match, []Issue) {
	matches := make([]Match, 0, len(kept))
	issues := make([]Issue, 0)

	for _, recordIndex := range kept {
		rec := records[recordIndex]
		activity := strings.ToLower(rec.Activity)

		ruleIndex := -1
		for i, rule := range rules {
			if rule.AppliesOn != nil && !rule.AppliesOn(date) {
				continue
			}
			if matchesAny(activity, rule.Match) {
				ruleIndex = i
				break
			}
		}

		if ruleIndex == -1 {
			issues = append(issues, Issue{
				RecordIndex: recordIndex,
				DisplayName: rec.DisplayName,
				Activity:    rec.Activity,
				Reason:      "no matching rule",
			})
			continue
		}
		matches = append(matches, Match{RecordIndex: recordIndex, RuleIndex: ruleIndex})
	}

	return matches, issues
}

func matchesAny(activity string, needles []string) bool {
	for _, needle := range needles {
		n := strings.ToLower(strings.TrimSpace(needle))
		if n != "" && strings.Contains(activity, n) {
			return true
		}
	}
	return false
}

// SegmentInput bundles the lookups BuildSegments needs
type SegmentInput struct {
	Records    []Record
	Matches    []Match
	Rules      []Rule
	Date       time.Time
	Catalog    *model.Catalog
	Roster     BaselineProvider
	Identities *model.Identities
	Resolve    capability.Options
}

// BuildSegments turns classified records into shift segments (one per applicable
// resource type) and gap segments (resource-type independent)
func BuildSegments(in SegmentInput) (shifts []Segment, gaps []Segment, issues []Issue) {
	shifts = make([]Segment, 0, len(in.Matches))
	gaps = make([]Segment, 0)
	issues = make([]Issue, 0)

	for _, m := range in.Matches {
		rec := in.Records[m.RecordIndex]
		rule := in.Rules[m.RuleIndex]

		window, err := recordWindow(rec, rule, in.Date)
		if err != nil {
			issues = append(issues, Issue{
				RecordIndex: m.RecordIndex,
				DisplayName: rec.DisplayName,
				Activity:    rec.Activity,
				Reason:      err.Error(),
			})
			continue
		}

		worker := in.Identities.Resolve(rec.DisplayName)
		displayName := strings.TrimSpace(rec.DisplayName)

		if rule.Kind == KindGap {
			gaps = append(gaps, Segment{
				Worker:            worker,
				DisplayName:       displayName,
				Window:            window,
				Kind:              KindGap,
				CountsTowardHours: rule.CountsTowardHours,
				Label:             rule.Name,
				Effective:         window.Duration(),
				Order:             m.RecordIndex,
			})
			continue
		}

		resourceTypes := capability.DeriveApplicableResourceTypes(in.Catalog, rule.Overrides)
		if len(resourceTypes) == 0 {
			issues = append(issues, Issue{
				RecordIndex: m.RecordIndex,
				DisplayName: rec.DisplayName,
				Activity:    rec.Activity,
				Reason:      fmt.Sprintf("rule %q applies to no known resource type", rule.Name),
			})
			continue
		}

		resolved := capability.Resolve(in.Roster.Baseline(worker), capability.Expand(in.Catalog, rule.Overrides), in.Resolve)
		for _, rt := range resourceTypes {
			shifts = append(shifts, Segment{
				Worker:            worker,
				DisplayName:       displayName,
				ResourceType:      rt,
				Window:            window,
				Kind:              KindShift,
				CountsTowardHours: rule.CountsTowardHours,
				Capabilities:      resolved.Row(in.Catalog, rt),
				Label:             rule.Name,
				Modifier:          rule.Modifier,
				Effective:         window.Duration(),
				Order:             m.RecordIndex,
			})
		}
	}

	return shifts, gaps, issues
}

// recordWindow parses the record's time text, falling back to the rule's default times
func recordWindow(rec Record, rule Rule, date time.Time) (interval.Interval, error) {
	start, err := clockOrDefault(rec.StartText, rule.DefaultStart)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("unparseable start time: %w", err)
	}
	end, err := clockOrDefault(rec.EndText, rule.DefaultEnd)
	if err != nil {
		return interval.Interval{}, fmt.Errorf("unparseable end time: %w", err)
	}
	return interval.New(date, start, end), nil
}

func clockOrDefault(text string, fallback *time.Duration) (time.Duration, error) {
	if strings.TrimSpace(text) == "" {
		if fallback == nil {
			return 0, fmt.Errorf("no time given and rule has no default")
		}
		return *fallback, nil
	}
	return interval.ParseClock(text)
}

// SynthesizeUnavailableEntries adds a zero-duration, non-counting marker per resource type
// for every worker who has gaps but no shift on the day. All capabilities are Excluded.
func SynthesizeUnavailableEntries(shifts, gaps []Segment, catalog *model.Catalog) []Segment {
	hasShift := make(map[model.WorkerID]bool)
	for _, s := range shifts {
		hasShift[s.Worker] = true
	}

	// First gap per worker, in record order
	firstGap := make(map[model.WorkerID]Segment)
	workers := make([]model.WorkerID, 0)
	for _, g := range gaps {
		if hasShift[g.Worker] {
			continue
		}
		if existing, ok := firstGap[g.Worker]; ok && existing.Order <= g.Order {
			continue
		}
		if _, ok := firstGap[g.Worker]; !ok {
			workers = append(workers, g.Worker)
		}
		firstGap[g.Worker] = g
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i] < workers[j] })

	result := make([]Segment, 0, len(shifts)+len(workers)*len(catalog.ResourceTypes()))
	result = append(result, shifts...)

	for _, worker := range workers {
		g := firstGap[worker]
		for _, rt := range catalog.ResourceTypes() {
			excluded := make(map[string]capability.Value, len(catalog.Capabilities()))
			for _, c := range catalog.Capabilities() {
				excluded[c.Name] = capability.Excluded
			}
			result = append(result, Segment{
				Worker:            worker,
				DisplayName:       g.DisplayName,
				ResourceType:      rt,
				Window:            interval.Interval{Start: g.Window.Start, End: g.Window.Start},
				Kind:              KindShift,
				CountsTowardHours: false,
				Capabilities:      excluded,
				Label:             UnavailableLabel,
				Order:             g.Order,
			})
		}
	}

	return result
}

type workerRT struct {
	worker       model.WorkerID
	resourceType string
}

// ResolveOverlaps makes a worker's shifts on one resource type non-overlapping.
// The later-starting shift wins the contested interval; on equal starts the later record wins.
// Shifts left no longer than minDuration are dropped. Unavailable markers pass through.
func ResolveOverlaps(shifts []Segment, minDuration time.Duration) []Segment {
	groups := make(map[workerRT][]Segment)
	keys := make([]workerRT, 0)
	markers := make([]Segment, 0)

	for _, s := range shifts {
		if s.Label == UnavailableLabel && !s.Window.Valid() {
			markers = append(markers, s)
			continue
		}
		k := workerRT{worker: s.Worker, resourceType: s.ResourceType}
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], s)
	}

	result := make([]Segment, 0, len(shifts))
	for _, k := range keys {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool {
			if !group[i].Window.Start.Equal(group[j].Window.Start) {
				return group[i].Window.Start.Before(group[j].Window.Start)
			}
			return group[i].Order < group[j].Order
		})

		for i := range group {
			current := group[i]
			if i+1 < len(group) {
				next := group[i+1]
				if next.Window.Start.Before(current.Window.End) {
					current.Window.End = next.Window.Start
				}
			}
			if current.Window.Duration() <= minDuration {
				continue
			}
			current.Effective = current.Window.Duration()
			result = append(result, current)
		}
	}

	return append(result, markers...)
}

// MergedGaps returns each worker's merged non-counting gap windows
func MergedGaps(gaps []Segment) map[model.WorkerID][]interval.Interval {
	byWorker := make(map[model.WorkerID][]interval.Interval)
	for _, g := range gaps {
		if g.CountsTowardHours {
			continue
		}
		byWorker[g.Worker] = append(byWorker[g.Worker], g.Window)
	}
	for worker, windows := range byWorker {
		byWorker[worker] = interval.Merge(windows)
	}
	return byWorker
}

// ApplyGapDurations sets each shift's effective duration to its window minus the worker's
// non-counting gaps. A shift reduced to nothing stays, marked as not counting.
func ApplyGapDurations(shifts []Segment, gaps []Segment) []Segment {
	merged := MergedGaps(gaps)

	result := make([]Segment, len(shifts))
	for i, s := range shifts {
		remaining := interval.Subtract(s.Window, merged[s.Worker])
		s.Effective = interval.Total(remaining)
		if s.Effective == 0 {
			s.CountsTowardHours = false
		}
		result[i] = s
	}
	return result
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
