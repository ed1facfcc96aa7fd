package api

import (
	"time"

	"github.com/jakechorley/fairshare/pkg/core/balancer"
	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/ledger"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
	"github.com/jakechorley/fairshare/pkg/core/services"
	"github.com/jakechorley/fairshare/pkg/db"
)

// SelectRequest is the body of POST /api/select and POST /api/assign
type SelectRequest struct {
	Capability    string     `json:"capability"`
	ResourceType  string     `json:"resource_type" validate:"required"`
	Instant       *time.Time `json:"instant,omitempty"`
	AllowFallback bool       `json:"allow_fallback"`
}

// RecordRequest is the body of POST /api/record
type RecordRequest struct {
	Worker        string  `json:"worker" validate:"required"`
	Capability    string  `json:"capability" validate:"required"`
	ResourceType  string  `json:"resource_type" validate:"required"`
	BaseWeight    float64 `json:"base_weight,omitempty" validate:"gte=0"`
	Weighted      bool    `json:"weighted,omitempty"`
	ShiftModifier float64 `json:"shift_modifier,omitempty" validate:"gte=0"`
}

// RecordResponse returns the canonical identity the assignment was recorded for
type RecordResponse struct {
	Worker string `json:"worker"`
}

// CandidateDTO is a selected worker
type CandidateDTO struct {
	Worker       string  `json:"worker"`
	DisplayName  string  `json:"display_name"`
	ResourceType string  `json:"resource_type"`
	Capability   string  `json:"capability"`
	Value        string  `json:"value"`
	Ratio        float64 `json:"ratio"`
	HoursOnDuty  float64 `json:"hours_on_duty"`
	Overflow     bool    `json:"overflow"`
}

// SelectionDTO is a selection result. Candidate is null when nobody was found.
type SelectionDTO struct {
	Outcome     string        `json:"outcome"`
	Capability  string        `json:"capability"`
	SearchOrder []string      `json:"search_order"`
	Candidate   *CandidateDTO `json:"candidate"`
}

// AssignmentDTO is the result of POST /api/assign
type AssignmentDTO struct {
	ID              string       `json:"id,omitempty"`
	Selection       SelectionDTO `json:"selection"`
	BaseWeight      float64      `json:"base_weight"`
	EffectiveWeight float64      `json:"effective_weight"`
	AssignedAt      *time.Time   `json:"assigned_at,omitempty"`
}

// SegmentDTO is one compiled segment
type SegmentDTO struct {
	Worker            string                      `json:"worker"`
	DisplayName       string                      `json:"display_name"`
	Kind              string                      `json:"kind"`
	Label             string                      `json:"label"`
	Start             time.Time                   `json:"start"`
	End               time.Time                   `json:"end"`
	EffectiveMinutes  float64                     `json:"effective_minutes"`
	CountsTowardHours bool                        `json:"counts_toward_hours"`
	Capabilities      map[string]capability.Value `json:"capabilities,omitempty"`
}

// IssueDTO is a skipped record
type IssueDTO struct {
	Record   int    `json:"record"`
	Name     string `json:"name"`
	Activity string `json:"activity"`
	Reason   string `json:"reason"`
}

// ScheduleDTO is the response of GET /api/schedule/{resourceType}
type ScheduleDTO struct {
	Date         string       `json:"date"`
	ResourceType string       `json:"resource_type"`
	Segments     []SegmentDTO `json:"segments"`
	Gaps         []SegmentDTO `json:"gaps"`
	Issues       []IssueDTO   `json:"issues"`
}

// WorkerLoadDTO is one worker's weighted workload
type WorkerLoadDTO struct {
	Worker   string  `json:"worker"`
	Weighted float64 `json:"weighted"`
}

// CountDTO is one assignment count
type CountDTO struct {
	ResourceType string `json:"resource_type"`
	Capability   string `json:"capability"`
	Worker       string `json:"worker"`
	Count        int    `json:"count"`
}

// WorkloadDTO is the response of GET /api/workload
type WorkloadDTO struct {
	Workers []WorkerLoadDTO `json:"workers"`
	Counts  []CountDTO      `json:"counts"`
}

// AssignmentRecordDTO is one entry of GET /api/assignments
type AssignmentRecordDTO struct {
	ID              string    `json:"id"`
	Worker          string    `json:"worker"`
	Capability      string    `json:"capability"`
	ResourceType    string    `json:"resource_type"`
	BaseWeight      float64   `json:"base_weight"`
	EffectiveWeight float64   `json:"effective_weight"`
	Outcome         string    `json:"outcome"`
	AssignedAt      time.Time `json:"assigned_at"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (r SelectRequest) toBalancer() balancer.Request {
	req := balancer.Request{
		Capability:    r.Capability,
		ResourceType:  r.ResourceType,
		AllowFallback: r.AllowFallback,
	}
	if r.Instant != nil {
		req.Instant = *r.Instant
	}
	return req
}

func (r RecordRequest) toService() services.RecordRequest {
	return services.RecordRequest{
		Worker:        r.Worker,
		Capability:    r.Capability,
		ResourceType:  r.ResourceType,
		BaseWeight:    r.BaseWeight,
		Weighted:      r.Weighted,
		ShiftModifier: r.ShiftModifier,
	}
}

func toSelectionDTO(result balancer.Result) SelectionDTO {
	dto := SelectionDTO{
		Outcome:     result.Outcome.String(),
		Capability:  result.Capability,
		SearchOrder: result.SearchOrder,
	}
	if c := result.Candidate; c != nil {
		dto.Candidate = &CandidateDTO{
			Worker:       string(c.Worker),
			DisplayName:  c.DisplayName,
			ResourceType: c.ResourceType,
			Capability:   c.Capability,
			Value:        c.Value.String(),
			Ratio:        c.Ratio,
			HoursOnDuty:  c.HoursOnDuty,
			Overflow:     c.Overflow,
		}
	}
	return dto
}

func toAssignmentDTO(a services.Assignment) AssignmentDTO {
	dto := AssignmentDTO{
		ID:              a.ID,
		Selection:       toSelectionDTO(a.Result),
		BaseWeight:      a.BaseWeight,
		EffectiveWeight: a.EffectiveWeight,
	}
	if !a.AssignedAt.IsZero() {
		at := a.AssignedAt
		dto.AssignedAt = &at
	}
	return dto
}

func toSegmentDTOs(segments []schedule.Segment) []SegmentDTO {
	dtos := make([]SegmentDTO, 0, len(segments))
	for _, seg := range segments {
		dtos = append(dtos, SegmentDTO{
			Worker:            string(seg.Worker),
			DisplayName:       seg.DisplayName,
			Kind:              seg.Kind.String(),
			Label:             seg.Label,
			Start:             seg.Window.Start,
			End:               seg.Window.End,
			EffectiveMinutes:  seg.Effective.Minutes(),
			CountsTowardHours: seg.CountsTowardHours,
			Capabilities:      seg.Capabilities,
		})
	}
	return dtos
}

func toScheduleDTO(sched *schedule.Schedule, resourceType string) ScheduleDTO {
	dto := ScheduleDTO{
		ResourceType: resourceType,
		Segments:     toSegmentDTOs(sched.Segments(resourceType)),
		Gaps:         toSegmentDTOs(sched.GapSegments()),
		Issues:       make([]IssueDTO, 0, len(sched.Issues)),
	}
	if !sched.Date.IsZero() {
		dto.Date = sched.Date.Format("2006-01-02")
	}
	for _, issue := range sched.Issues {
		dto.Issues = append(dto.Issues, IssueDTO{
			Record:   issue.RecordIndex + 1,
			Name:     issue.DisplayName,
			Activity: issue.Activity,
			Reason:   issue.Reason,
		})
	}
	return dto
}

func toWorkloadDTO(state ledger.State) WorkloadDTO {
	dto := WorkloadDTO{
		Workers: make([]WorkerLoadDTO, 0, len(state.Workload)),
		Counts:  make([]CountDTO, 0, len(state.Counts)),
	}
	for _, w := range state.Workload {
		dto.Workers = append(dto.Workers, WorkerLoadDTO{Worker: string(w.Worker), Weighted: w.Weighted})
	}
	for _, c := range state.Counts {
		dto.Counts = append(dto.Counts, CountDTO{
			ResourceType: c.ResourceType,
			Capability:   c.Capability,
			Worker:       string(c.Worker),
			Count:        c.Count,
		})
	}
	return dto
}

func toAssignmentRecordDTOs(rows []db.AssignmentRow) []AssignmentRecordDTO {
	dtos := make([]AssignmentRecordDTO, 0, len(rows))
	for _, row := range rows {
		dtos = append(dtos, AssignmentRecordDTO{
			ID:              row.ID,
			Worker:          row.Worker,
			Capability:      row.Capability,
			ResourceType:    row.ResourceType,
			BaseWeight:      row.BaseWeight,
			EffectiveWeight: row.EffectiveWeight,
			Outcome:         row.Outcome,
			AssignedAt:      row.AssignedAt,
		})
	}
	return dtos
}
