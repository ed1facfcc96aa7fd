package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jakechorley/fairshare/pkg/db"
)

// ReplaceSegments stores the compiled segments for a date, replacing any earlier compile
func (d *DB) ReplaceSegments(ctx context.Context, date string, segments []db.SegmentRow) error {
	return d.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM segment WHERE schedule_date = $1`, date); err != nil {
			return fmt.Errorf("failed to clear segments for %s: %w", date, err)
		}

		for _, s := range segments {
			_, err := tx.Exec(ctx, `
				INSERT INTO segment (schedule_date, position, worker, display_name, resource_type, kind, label,
					start_at, end_at, counts_toward_hours, modifier, effective_seconds, capabilities)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			`, date, s.Position, s.Worker, s.DisplayName, s.ResourceType, s.Kind, s.Label,
				s.Start.UTC(), s.End.UTC(), s.CountsTowardHours, s.Modifier, s.EffectiveSeconds, s.Capabilities)
			if err != nil {
				return fmt.Errorf("failed to insert segment: %w", err)
			}
		}
		return nil
	})
}

// GetSegments retrieves the stored segments for a date in their original order
func (d *DB) GetSegments(ctx context.Context, date string) ([]db.SegmentRow, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT schedule_date, position, worker, display_name, resource_type, kind, label,
			start_at, end_at, counts_toward_hours, modifier, effective_seconds, capabilities::text
		FROM segment
		WHERE schedule_date = $1
		ORDER BY position
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	segments := make([]db.SegmentRow, 0)
	for rows.Next() {
		var s db.SegmentRow
		var scheduleDate time.Time
		if err := rows.Scan(&scheduleDate, &s.Position, &s.Worker, &s.DisplayName, &s.ResourceType, &s.Kind, &s.Label,
			&s.Start, &s.End, &s.CountsTowardHours, &s.Modifier, &s.EffectiveSeconds, &s.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		s.Date = scheduleDate.Format("2006-01-02")
		segments = append(segments, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating segments: %w", err)
	}

	return segments, nil
}
