// Package sqlite provides an embedded implementation of db.Store.
// It suits single-node deployments and local runs of the CLI.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jakechorley/fairshare/pkg/db"
)

// Store implements db.Store using SQLite
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at path and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared
	conn.SetMaxOpenConns(1)

	store := &Store{db: conn}
	if err := store.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() {
	s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS workload (
		worker TEXT PRIMARY KEY,
		weighted REAL NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS assignment_count (
		resource_type TEXT NOT NULL,
		capability TEXT NOT NULL,
		worker TEXT NOT NULL,
		count INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (resource_type, capability, worker)
	);

	CREATE TABLE IF NOT EXISTS assignment (
		id TEXT PRIMARY KEY,
		worker TEXT NOT NULL,
		capability TEXT NOT NULL,
		resource_type TEXT NOT NULL,
		base_weight REAL NOT NULL,
		effective_weight REAL NOT NULL,
		outcome TEXT NOT NULL,
		assigned_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assignment_assigned_at
		ON assignment(assigned_at);

	CREATE TABLE IF NOT EXISTS segment (
		schedule_date TEXT NOT NULL,
		position INTEGER NOT NULL,
		worker TEXT NOT NULL,
		display_name TEXT NOT NULL,
		resource_type TEXT NOT NULL DEFAULT '',
		kind TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT '',
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		counts_toward_hours BOOLEAN NOT NULL,
		modifier REAL NOT NULL DEFAULT 0,
		effective_seconds INTEGER NOT NULL DEFAULT 0,
		capabilities TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (schedule_date, position)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveLedger replaces the stored workload and counts with the given rows
func (s *Store) SaveLedger(ctx context.Context, workload []db.WorkloadRow, counts []db.AssignmentCountRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM workload`); err != nil {
		return fmt.Errorf("failed to clear workload: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM assignment_count`); err != nil {
		return fmt.Errorf("failed to clear assignment counts: %w", err)
	}

	for _, w := range workload {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO workload (worker, weighted, updated_at) VALUES (?, ?, ?)
		`, w.Worker, w.Weighted, w.UpdatedAt.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return fmt.Errorf("failed to insert workload: %w", err)
		}
	}
	for _, c := range counts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO assignment_count (resource_type, capability, worker, count) VALUES (?, ?, ?, ?)
		`, c.ResourceType, c.Capability, c.Worker, c.Count)
		if err != nil {
			return fmt.Errorf("failed to insert assignment count: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadLedger retrieves the stored workload and counts
func (s *Store) LoadLedger(ctx context.Context) ([]db.WorkloadRow, []db.AssignmentCountRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT worker, weighted, updated_at FROM workload ORDER BY worker`)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query workload: %w", err)
	}
	defer rows.Close()

	workload := make([]db.WorkloadRow, 0)
	for rows.Next() {
		var w db.WorkloadRow
		var updatedAt string
		if err := rows.Scan(&w.Worker, &w.Weighted, &updatedAt); err != nil {
			return nil, nil, fmt.Errorf("failed to scan workload: %w", err)
		}
		w.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		workload = append(workload, w)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating workload: %w", err)
	}

	countRows, err := s.db.QueryContext(ctx, `
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

// InsertAssignment appends an entry to the assignment audit trail
func (s *Store) InsertAssignment(ctx context.Context, a db.AssignmentRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment (id, worker, capability, resource_type, base_weight, effective_weight, outcome, assigned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Worker, a.Capability, a.ResourceType, a.BaseWeight, a.EffectiveWeight, a.Outcome,
		a.AssignedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// GetAssignments retrieves audit entries assigned at or after since, oldest first
func (s *Store) GetAssignments(ctx context.Context, since time.Time) ([]db.AssignmentRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker, capability, resource_type, base_weight, effective_weight, outcome, assigned_at
		FROM assignment
		ORDER BY assigned_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	assignments := make([]db.AssignmentRow, 0)
	for rows.Next() {
		var a db.AssignmentRow
		var assignedAt string
		if err := rows.Scan(&a.ID, &a.Worker, &a.Capability, &a.ResourceType, &a.BaseWeight, &a.EffectiveWeight, &a.Outcome, &assignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.AssignedAt, err = time.Parse(time.RFC3339Nano, assignedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse assigned_at %q: %w", assignedAt, err)
		}
		// Fractional seconds vary in width, so compare parsed times
		if a.AssignedAt.Before(since) {
			continue
		}
		assignments = append(assignments, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	return assignments, nil
}

// ReplaceSegments stores the compiled segments for a date, replacing any earlier compile
func (s *Store) ReplaceSegments(ctx context.Context, date string, segments []db.SegmentRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM segment WHERE schedule_date = ?`, date); err != nil {
		return fmt.Errorf("failed to clear segments for %s: %w", date, err)
	}

	for _, seg := range segments {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO segment (schedule_date, position, worker, display_name, resource_type, kind, label,
				start_at, end_at, counts_toward_hours, modifier, effective_seconds, capabilities)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, date, seg.Position, seg.Worker, seg.DisplayName, seg.ResourceType, seg.Kind, seg.Label,
			seg.Start.Format(time.RFC3339Nano), seg.End.Format(time.RFC3339Nano),
			seg.CountsTowardHours, seg.Modifier, seg.EffectiveSeconds, seg.Capabilities)
		if err != nil {
			return fmt.Errorf("failed to insert segment: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetSegments retrieves the stored segments for a date in their original order
func (s *Store) GetSegments(ctx context.Context, date string) ([]db.SegmentRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT schedule_date, position, worker, display_name, resource_type, kind, label,
			start_at, end_at, counts_toward_hours, modifier, effective_seconds, capabilities
		FROM segment
		WHERE schedule_date = ?
		ORDER BY position
	`, date)
	if err != nil {
		return nil, fmt.Errorf("failed to query segments: %w", err)
	}
	defer rows.Close()

	segments := make([]db.SegmentRow, 0)
	for rows.Next() {
		var seg db.SegmentRow
		var start, end string
		if err := rows.Scan(&seg.Date, &seg.Position, &seg.Worker, &seg.DisplayName, &seg.ResourceType, &seg.Kind, &seg.Label,
			&start, &end, &seg.CountsTowardHours, &seg.Modifier, &seg.EffectiveSeconds, &seg.Capabilities); err != nil {
			return nil, fmt.Errorf("failed to scan segment: %w", err)
		}
		if seg.Start, err = time.Parse(time.RFC3339Nano, start); err != nil {
			return nil, fmt.Errorf("failed to parse segment start %q: %w", start, err)
		}
		if seg.End, err = time.Parse(time.RFC3339Nano, end); err != nil {
			return nil, fmt.Errorf("failed to parse segment end %q: %w", end, err)
		}
		segments = append(segments, seg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating segments: %w", err)
	}

	return segments, nil
}
