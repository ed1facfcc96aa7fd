package balancer

import (
	"fmt"
	"sort"
	"time"

	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/interval"
	"github.com/jakechorley/fairshare/pkg/core/ledger"
	"github.com/jakechorley/fairshare/pkg/core/model"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
)

// Outcome reports how a selection ended
type Outcome int

const (
	NotFound Outcome = iota
	FoundExclusionAware
	FoundFallback
)

func (o Outcome) String() string {
	switch o {
	case FoundExclusionAware:
		return "found"
	case FoundFallback:
		return "found_fallback"
	default:
		return "not_found"
	}
}

// Request asks for the least-loaded eligible worker at an instant
type Request struct {
	Capability    string
	ResourceType  string
	Instant       time.Time
	AllowFallback bool
}

// Candidate is a nominated worker
type Candidate struct {
	Worker       model.WorkerID
	DisplayName  string
	ResourceType string
	Capability   string
	Value        capability.Value
	Ratio        float64
	HoursOnDuty  float64

	// Overflow is set when the candidate comes from a non-primary resource type
	Overflow bool

	// ShiftModifier is the modifier of the segment the candidate is on
	ShiftModifier float64
}

// Result is the outcome of a selection. Candidate is nil when nothing was found.
type Result struct {
	Outcome     Outcome
	Candidate   *Candidate
	Capability  string
	SearchOrder []string
}

// Found reports whether a candidate was selected
func (r Result) Found() bool {
	return r.Candidate != nil
}

// Balancer selects workers by current workload ratio
type Balancer struct {
	catalog *model.Catalog
	cfg     Config
}

// New validates the configuration against the catalog
func New(catalog *model.Catalog, cfg Config) (*Balancer, error) {
	validated, err := cfg.validate(catalog)
	if err != nil {
		return nil, fmt.Errorf("invalid balancer config: %w", err)
	}
	return &Balancer{catalog: catalog, cfg: validated}, nil
}

// Config returns the validated configuration
func (b *Balancer) Config() Config {
	return b.cfg
}

// CanonicalCapability resolves a capability name, falling back to the default capability
func (b *Balancer) CanonicalCapability(name string) string {
	if c, ok := b.catalog.Capability(name); ok {
		return c.Name
	}
	return b.cfg.DefaultCapability
}

// SearchOrder returns the primary resource type followed by its fallback chain,
// deduplicated and restricted to known resource types
func (b *Balancer) SearchOrder(resourceType string) ([]string, error) {
	primary, ok := b.catalog.ResourceType(resourceType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResourceType, resourceType)
	}

	order := []string{primary}
	seen := map[string]bool{primary: true}
	for _, rt := range b.cfg.FallbackChains[primary] {
		canonical, ok := b.catalog.ResourceType(rt)
		if !ok || seen[canonical] {
			continue
		}
		seen[canonical] = true
		order = append(order, canonical)
	}
	return order, nil
}

// Modifiers builds the ledger modifiers for recording an assignment of the candidate
func (b *Balancer) Modifiers(c Candidate, rosterModifier, globalModifier float64) ledger.Modifiers {
	return ledger.Modifiers{
		Roster:          rosterModifier,
		Global:          globalModifier,
		Weighted:        c.Value == capability.Weighted,
		Shift:           c.ShiftModifier,
		DefaultWeighted: b.cfg.DefaultWeightedMultiplier,
	}
}

// Select runs the exclusion-aware phase and, if allowed and needed, the relaxed fallback phase.
// No candidate is a normal result, not an error.
func (b *Balancer) Select(sched *schedule.Schedule, led *ledger.Ledger, req Request) (Result, error) {
	order, err := b.SearchOrder(req.ResourceType)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Outcome:     NotFound,
		Capability:  b.CanonicalCapability(req.Capability),
		SearchOrder: order,
	}
	if sched == nil {
		return result, nil
	}

	if best := pick(b.nominate(sched, led, result.Capability, order, req.Instant, true)); best != nil {
		result.Outcome = FoundExclusionAware
		result.Candidate = best
		return result, nil
	}

	if !req.AllowFallback {
		return result, nil
	}

	if best := pick(b.nominate(sched, led, result.Capability, order, req.Instant, false)); best != nil {
		result.Outcome = FoundFallback
		result.Candidate = best
	}
	return result, nil
}

// pick returns the minimum-ratio nominee; ties go to the earlier resource type
func pick(nominees []Candidate) *Candidate {
	var best *Candidate
	for i := range nominees {
		if best == nil || nominees[i].Ratio < best.Ratio {
			best = &nominees[i]
		}
	}
	return best
}

// nominate returns at most one candidate per resource type, in search order
func (b *Balancer) nominate(sched *schedule.Schedule, led *ledger.Ledger, capName string, order []string, instant time.Time, applyExcludedBy bool) []Candidate {
	nominees := make([]Candidate, 0, len(order))
	for i, rt := range order {
		pool := b.eligible(sched, capName, rt, instant, i > 0, applyExcludedBy)
		pool = b.applyFloor(pool, led, rt)

		var best *Candidate
		for j := range pool {
			c := pool[j]
			c.HoursOnDuty = HoursOnDuty(sched, c.Worker, rt, instant)
			c.Ratio = led.CurrentRatio(c.Worker, c.HoursOnDuty)
			if best == nil || c.Ratio < best.Ratio {
				cc := c
				best = &cc
			}
		}
		if best != nil {
			nominees = append(nominees, *best)
		}
	}
	return nominees
}

// eligible lists workers available on the resource type at the instant, sorted by identity
func (b *Balancer) eligible(sched *schedule.Schedule, capName, rt string, instant time.Time, overflow, applyExcludedBy bool) []Candidate {
	seen := make(map[model.WorkerID]bool)
	pool := make([]Candidate, 0)

	for _, seg := range sched.Segments(rt) {
		if seen[seg.Worker] || !seg.Window.Contains(instant) {
			continue
		}
		if sched.InGap(seg.Worker, instant) {
			continue
		}

		value := seg.Value(capName)
		if !value.Eligible() {
			continue
		}
		if applyExcludedBy && b.excludedBy(seg, capName) {
			continue
		}
		if overflow && seg.Window.End.Sub(instant) <= b.cfg.OverflowBuffer {
			continue
		}

		seen[seg.Worker] = true
		pool = append(pool, Candidate{
			Worker:        seg.Worker,
			DisplayName:   seg.DisplayName,
			ResourceType:  rt,
			Capability:    capName,
			Value:         value,
			Overflow:      overflow,
			ShiftModifier: seg.Modifier,
		})
	}

	sort.Slice(pool, func(i, j int) bool { return pool[i].Worker < pool[j].Worker })
	return pool
}

func (b *Balancer) excludedBy(seg schedule.Segment, capName string) bool {
	for _, excluder := range b.cfg.ExcludedBy[capName] {
		if seg.Value(excluder).Performs() {
			return true
		}
	}
	return false
}

// applyFloor keeps only workers below the minimum-assignment floor when any exist
func (b *Balancer) applyFloor(pool []Candidate, led *ledger.Ledger, rt string) []Candidate {
	if b.cfg.MinAssignments <= 0 {
		return pool
	}

	below := make([]Candidate, 0, len(pool))
	for _, c := range pool {
		if EffectiveLoad(led, c.Worker, rt) < float64(b.cfg.MinAssignments) {
			below = append(below, c)
		}
	}
	if len(below) == 0 {
		return pool
	}
	return below
}

// EffectiveLoad is the larger of the worker's local count on the resource type and
// their global weighted workload
func EffectiveLoad(led *ledger.Ledger, worker model.WorkerID, rt string) float64 {
	local := float64(led.LocalCount(rt, worker))
	global := led.Weighted(worker)
	if global > local {
		return global
	}
	return local
}

// HoursOnDuty returns the counting time the worker has spent on the resource type up to
// the instant, minus non-counting gaps
func HoursOnDuty(sched *schedule.Schedule, worker model.WorkerID, rt string, instant time.Time) float64 {
	gaps := sched.Gaps(worker)
	var total time.Duration
	for _, seg := range sched.WorkerSegments(rt, worker) {
		if !seg.CountsTowardHours || !seg.Window.Start.Before(instant) {
			continue
		}
		elapsed := seg.Window
		if instant.Before(elapsed.End) {
			elapsed.End = instant
		}
		total += interval.Total(interval.Subtract(elapsed, gaps))
	}
	return total.Hours()
}
