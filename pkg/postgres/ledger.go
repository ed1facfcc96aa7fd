package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/fairshare/pkg/db"
)

// SaveLedger replaces the stored workload and counts with the given rows
func (d *DB) SaveLedger(ctx context.Context, workload []db.WorkloadRow, counts []db.AssignmentCountRow) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM workload`); err != nil {
			return fmt.Errorf("failed to clear workload: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM assignment_count`); err != nil {
			return fmt.Errorf("failed to clear assignment counts: %w", err)
		}

		batch := &pgx.Batch{}
		for _, w := range workload {
			batch.Queue(`
				INSERT INTO workload (worker, weighted, updated_at)
				VALUES ($1, $2, $3)
			`, w.Worker, w.Weighted, w.UpdatedAt.UTC())
		}
		for _, c := range counts {
			batch.Queue(`
				INSERT INTO assignment_count (resource_type, capability, worker, count)
				VALUES ($1, $2, $3, $4)
			`, c.ResourceType, c.Capability, c.Worker, c.Count)
		}
		if batch.Len() == 0 {
			return nil
		}

		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert ledger rows: %w", err)
		}
		return nil
	})
}

// LoadLedger retrieves the stored workload and counts
func (d *DB) LoadLedger(ctx context.Context) ([]db.WorkloadRow, []db.AssignmentCountRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT worker, weighted, updated_at
		FROM workload
		ORDER BY worker
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query workload: %w", err)
	}
	defer rows.Close()

	workload := make([]db.WorkloadRow, 0)
	for rows.Next() {
		var w db.WorkloadRow
		if err := rows.Scan(&w.Worker, &w.Weighted, &w.UpdatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan workload: %w", err)
		}
		workload = append(workload, w)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating workload: %w", err)
	}

	countRows, err := d.pool.Query(ctx, `
		SELECT resource_type, capability, worker, count
		FROM assignment_count
		ORDER BY resource_type, capability, worker
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query assignment counts: %w", err)
	}
	defer countRows.Close()

	counts := make([]db.AssignmentCountRow, 0)
	for countRows.Next() {
		var c db.AssignmentCountRow
		if err := countRows.Scan(&c.ResourceType, &c.Capability, &c.Worker, &c.Count); err != nil {
			return nil, nil, fmt.Errorf("failed to scan assignment count: %w", err)
		}
		counts = append(counts, c)
	}
	if err := countRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating assignment counts: %w", err)
	}

	return workload, counts, nil
}
