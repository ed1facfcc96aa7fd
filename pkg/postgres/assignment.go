package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jakechorley/fairshare/pkg/db"
)

// InsertAssignment appends an entry to the assignment audit trail
func (d *DB) InsertAssignment(ctx context.Context, a db.AssignmentRow) error {
	_, err := d.pool.Exec(ctx, `
		INSERT INTO assignment (id, worker, capability, resource_type, base_weight, effective_weight, outcome, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, a.ID, a.Worker, a.Capability, a.ResourceType, a.BaseWeight, a.EffectiveWeight, a.Outcome, a.AssignedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// GetAssignments retrieves audit entries assigned at or after since, oldest first
func (d *DB) GetAssignments(ctx context.Context, since time.Time) ([]db.AssignmentRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT id::text, worker, capability, resource_type, base_weight, effective_weight, outcome, assigned_at
		FROM assignment
		WHERE assigned_at >= $1
		ORDER BY assigned_at, id
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]db.AssignmentRow, 0)
	for rows.Next() {
		var a db.AssignmentRow
		if err := rows.Scan(&a.ID, &a.Worker, &a.Capability, &a.ResourceType, &a.BaseWeight, &a.EffectiveWeight, &a.Outcome, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assignments, nil
}
