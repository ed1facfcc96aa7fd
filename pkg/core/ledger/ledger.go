package ledger

import (
	"sort"

	"github.com/jakechorley/fairshare/pkg/core/model"
)

// MinRatioHours is the floor applied to hours on duty before dividing
const MinRatioHours = 0.5

// Modifiers are the per-assignment workload modifiers. Each factor at or below zero counts as 1.
type Modifiers struct {
	// Roster is the roster-level per-worker modifier
	Roster float64

	// Global applies to every assignment of the worker
	Global float64

	// Weighted marks an assignment made through a Weighted capability
	Weighted bool

	// Shift is the per-shift override used for weighted assignments
	Shift float64

	// DefaultWeighted is used for weighted assignments without a shift override
	DefaultWeighted float64
}

// Combined returns the product of all applicable modifiers
func (m Modifiers) Combined() float64 {
	combined := positive(m.Roster) * positive(m.Global)
	if m.Weighted {
		if m.Shift > 0 {
			combined *= m.Shift
		} else {
			combined *= positive(m.DefaultWeighted)
		}
	}
	return combined
}

func positive(f float64) float64 {
	if f <= 0 {
		return 1
	}
	return f
}

// EffectiveWeight divides the base weight by the combined modifier
func EffectiveWeight(baseWeight float64, mods Modifiers) float64 {
	return baseWeight * (1 / mods.Combined())
}

// Ledger holds cumulative weighted workload and per-resource-type assignment counts.
// It is not synchronised; the owner serialises access.
type Ledger struct {
	weighted map[model.WorkerID]float64

	// resource type -> capability -> worker -> count
	counts map[string]map[string]map[model.WorkerID]int
}

// New creates an empty ledger
func New() *Ledger {
	return &Ledger{
		weighted: make(map[model.WorkerID]float64),
		counts:   make(map[string]map[string]map[model.WorkerID]int),
	}
}

// RecordAssignment adds the effective weight to the worker's accumulator and counts the
// assignment for the resource type and capability. It returns the effective weight.
func (l *Ledger) RecordAssignment(worker model.WorkerID, capabilityName, resourceType string, baseWeight float64, mods Modifiers) float64 {
	weight := EffectiveWeight(baseWeight, mods)
	l.weighted[worker] += weight
	l.increment(resourceType, capabilityName, worker, 1)
	return weight
}

func (l *Ledger) increment(resourceType, capabilityName string, worker model.WorkerID, n int) {
	byCap, ok := l.counts[resourceType]
	if !ok {
		byCap = make(map[string]map[model.WorkerID]int)
		l.counts[resourceType] = byCap
	}
	byWorker, ok := byCap[capabilityName]
	if !ok {
		byWorker = make(map[model.WorkerID]int)
		byCap[capabilityName] = byWorker
	}
	byWorker[worker] += n
}

// ResetAll zeroes every accumulator and clears all counts
func (l *Ledger) ResetAll() {
	l.weighted = make(map[model.WorkerID]float64)
	l.counts = make(map[string]map[string]map[model.WorkerID]int)
}

// Weighted returns the worker's cumulative weighted workload
func (l *Ledger) Weighted(worker model.WorkerID) float64 {
	return l.weighted[worker]
}

// Count returns the assignments of one worker for a resource type and capability
func (l *Ledger) Count(resourceType, capabilityName string, worker model.WorkerID) int {
	return l.counts[resourceType][capabilityName][worker]
}

// LocalCount returns the worker's assignments on a resource type across all capabilities
func (l *Ledger) LocalCount(resourceType string, worker model.WorkerID) int {
	total := 0
	for _, byWorker := range l.counts[resourceType] {
		total += byWorker[worker]
	}
	return total
}

// CurrentRatio divides the weighted workload by hours on duty, floored at MinRatioHours.
// Workers without hours are compared on their raw workload.
func (l *Ledger) CurrentRatio(worker model.WorkerID, hoursOnDuty float64) float64 {
	return Ratio(l.weighted[worker], hoursOnDuty)
}

// Ratio is the workload-per-hour measure used for comparison
func Ratio(weighted, hoursOnDuty float64) float64 {
	if hoursOnDuty <= 0 {
		return weighted
	}
	if hoursOnDuty < MinRatioHours {
		hoursOnDuty = MinRatioHours
	}
	return weighted / hoursOnDuty
}

// WorkerState is one worker's accumulator in a snapshot
type WorkerState struct {
	Worker   model.WorkerID
	Weighted float64
}

// CountState is one count cell in a snapshot
type CountState struct {
	ResourceType string
	Capability   string
	Worker       model.WorkerID
	Count        int
}

// State is a point-in-time copy of the ledger, ordered for stable persistence
type State struct {
	Workload []WorkerState
	Counts   []CountState
}

// Snapshot copies the ledger state
func (l *Ledger) Snapshot() State {
	state := State{
		Workload: make([]WorkerState, 0, len(l.weighted)),
		Counts:   make([]CountState, 0),
	}
	for worker, w := range l.weighted {
		state.Workload = append(state.Workload, WorkerState{Worker: worker, Weighted: w})
	}
	sort.Slice(state.Workload, func(i, j int) bool {
		return state.Workload[i].Worker < state.Workload[j].Worker
	})

	for rt, byCap := range l.counts {
		for c, byWorker := range byCap {
			for worker, n := range byWorker {
				state.Counts = append(state.Counts, CountState{ResourceType: rt, Capability: c, Worker: worker, Count: n})
			}
		}
	}
	sort.Slice(state.Counts, func(i, j int) bool {
		a, b := state.Counts[i], state.Counts[j]
		if a.ResourceType != b.ResourceType {
			return a.ResourceType < b.ResourceType
		}
		if a.Capability != b.Capability {
			return a.Capability < b.Capability
		}
		return a.Worker < b.Worker
	})

	return state
}

// Restore replaces the ledger contents with a snapshot
func (l *Ledger) Restore(state State) {
	l.ResetAll()
	for _, w := range state.Workload {
		l.weighted[w.Worker] = w.Weighted
	}
	for _, c := range state.Counts {
		l.increment(c.ResourceType, c.Capability, c.Worker, c.Count)
	}
}
