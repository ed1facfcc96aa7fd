package db

import "time"

// WorkloadRow is one worker's cumulative weighted workload
type WorkloadRow struct {
	Worker    string
	Weighted  float64
	UpdatedAt time.Time
}

// AssignmentCountRow is one per-resource-type, per-capability assignment count
type AssignmentCountRow struct {
	ResourceType string
	Capability   string
	Worker       string
	Count        int
}

// AssignmentRow is one entry of the assignment audit trail
type AssignmentRow struct {
	ID              string
	Worker          string
	Capability      string
	ResourceType    string
	BaseWeight      float64
	EffectiveWeight float64
	Outcome         string
	AssignedAt      time.Time
}

// SegmentRow is one compiled availability or gap segment for a date
type SegmentRow struct {
	Date              string // 2006-01-02
	Position          int
	Worker            string
	DisplayName       string
	ResourceType      string
	Kind              string
	Label             string
	Start             time.Time
	End               time.Time
	CountsTowardHours bool
	Modifier          float64
	EffectiveSeconds  int64

	// Capabilities is a JSON object of capability name to external value (-1, 0, 1, "w")
	Capabilities string
}
