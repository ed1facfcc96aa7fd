package services

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/interval"
	"github.com/jakechorley/fairshare/pkg/core/ledger"
	"github.com/jakechorley/fairshare/pkg/core/model"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
	"github.com/jakechorley/fairshare/pkg/db"
)

// SegmentRows converts a compiled schedule into storage rows, shifts first then gaps
func SegmentRows(sched *schedule.Schedule) ([]db.SegmentRow, error) {
	date := sched.Date.Format("2006-01-02")
	segments := sched.All()

	rows := make([]db.SegmentRow, 0, len(segments))
	for i, seg := range segments {
		capabilities := seg.Capabilities
		if capabilities == nil {
			capabilities = map[string]capability.Value{}
		}
		encoded, err := json.Marshal(capabilities)
		if err != nil {
			return nil, fmt.Errorf("failed to encode capabilities for %s: %w", seg.Worker, err)
		}

		rows = append(rows, db.SegmentRow{
			Date:              date,
			Position:          i,
			Worker:            string(seg.Worker),
			DisplayName:       seg.DisplayName,
			ResourceType:      seg.ResourceType,
			Kind:              seg.Kind.String(),
			Label:             seg.Label,
			Start:             seg.Window.Start,
			End:               seg.Window.End,
			CountsTowardHours: seg.CountsTowardHours,
			Modifier:          seg.Modifier,
			EffectiveSeconds:  int64(seg.Effective / time.Second),
			Capabilities:      string(encoded),
		})
	}
	return rows, nil
}

// ScheduleFromRows rebuilds a schedule from stored segment rows.
// Display names are registered with the identity map so they stay stable across restarts.
func ScheduleFromRows(rows []db.SegmentRow, catalog *model.Catalog, ids *model.Identities, date time.Time) (*schedule.Schedule, error) {
	shifts := make([]schedule.Segment, 0, len(rows))
	gaps := make([]schedule.Segment, 0)

	for _, row := range rows {
		if row.DisplayName != "" {
			ids.Resolve(row.DisplayName)
		}

		var capabilities map[string]capability.Value
		if row.Capabilities != "" {
			if err := json.Unmarshal([]byte(row.Capabilities), &capabilities); err != nil {
				return nil, fmt.Errorf("failed to decode capabilities of segment %d: %w", row.Position, err)
			}
		}

		seg := schedule.Segment{
			Worker:            model.WorkerID(row.Worker),
			DisplayName:       row.DisplayName,
			ResourceType:      row.ResourceType,
			Window:            interval.Interval{Start: row.Start, End: row.End},
			CountsTowardHours: row.CountsTowardHours,
			Capabilities:      capabilities,
			Label:             row.Label,
			Modifier:          row.Modifier,
			Effective:         time.Duration(row.EffectiveSeconds) * time.Second,
			Order:             row.Position,
		}

		switch row.Kind {
		case schedule.KindGap.String():
			seg.Kind = schedule.KindGap
			gaps = append(gaps, seg)
		case schedule.KindShift.String():
			if _, ok := catalog.ResourceType(row.ResourceType); !ok {
				return nil, fmt.Errorf("segment %d has unknown resource type %q", row.Position, row.ResourceType)
			}
			shifts = append(shifts, seg)
		default:
			return nil, fmt.Errorf("segment %d has unknown kind %q", row.Position, row.Kind)
		}
	}

	return schedule.Emit(date, catalog.ResourceTypes(), shifts, gaps, nil), nil
}

// StateRows converts a ledger snapshot into storage rows
func StateRows(state ledger.State, at time.Time) ([]db.WorkloadRow, []db.AssignmentCountRow) {
	workload := make([]db.WorkloadRow, 0, len(state.Workload))
	for _, w := range state.Workload {
		workload = append(workload, db.WorkloadRow{Worker: string(w.Worker), Weighted: w.Weighted, UpdatedAt: at})
	}

	counts := make([]db.AssignmentCountRow, 0, len(state.Counts))
	for _, c := range state.Counts {
		counts = append(counts, db.AssignmentCountRow{
			ResourceType: c.ResourceType,
			Capability:   c.Capability,
			Worker:       string(c.Worker),
			Count:        c.Count,
		})
	}
	return workload, counts
}

// StateFromRows converts stored rows back into a ledger snapshot
func StateFromRows(workload []db.WorkloadRow, counts []db.AssignmentCountRow) ledger.State {
	state := ledger.State{
		Workload: make([]ledger.WorkerState, 0, len(workload)),
		Counts:   make([]ledger.CountState, 0, len(counts)),
	}
	for _, w := range workload {
		state.Workload = append(state.Workload, ledger.WorkerState{Worker: model.WorkerID(w.Worker), Weighted: w.Weighted})
	}
	for _, c := range counts {
		state.Counts = append(state.Counts, ledger.CountState{
			ResourceType: c.ResourceType,
			Capability:   c.Capability,
			Worker:       model.WorkerID(c.Worker),
			Count:        c.Count,
		})
	}
	return state
}
