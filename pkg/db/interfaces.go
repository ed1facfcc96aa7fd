package db

import (
	"context"
	"time"
)

// LedgerStore persists the workload ledger as a whole
type LedgerStore interface {
	SaveLedger(ctx context.Context, workload []WorkloadRow, counts []AssignmentCountRow) error
	LoadLedger(ctx context.Context) ([]WorkloadRow, []AssignmentCountRow, error)
}

// AssignmentStore records the assignment audit trail
type AssignmentStore interface {
	InsertAssignment(ctx context.Context, assignment AssignmentRow) error
	GetAssignments(ctx context.Context, since time.Time) ([]AssignmentRow, error)
}

// ScheduleStore persists compiled segments per date
type ScheduleStore interface {
	ReplaceSegments(ctx context.Context, date string, segments []SegmentRow) error
	GetSegments(ctx context.Context, date string) ([]SegmentRow, error)
}

// Store defines all database operations.
// Both postgres.DB and sqlite.Store implement this interface.
type Store interface {
	LedgerStore
	AssignmentStore
	ScheduleStore
	Close()
}
