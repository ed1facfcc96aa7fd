package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/fairshare/pkg/db"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "fairshare.db"))
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

var _ db.Store = (*Store)(nil)

func TestLedgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	workload, counts, err := store.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Empty(t, workload)
	assert.Empty(t, counts)

	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveLedger(ctx,
		[]db.WorkloadRow{{Worker: "B", Weighted: 1.35, UpdatedAt: now}, {Worker: "A", Weighted: 0.6, UpdatedAt: now}},
		[]db.AssignmentCountRow{{ResourceType: "ct", Capability: "urgent", Worker: "A", Count: 2}},
	))

	workload, counts, err = store.LoadLedger(ctx)
	require.NoError(t, err)
	require.Len(t, workload, 2)
	assert.Equal(t, "A", workload[0].Worker)
	assert.InDelta(t, 0.6, workload[0].Weighted, 1e-9)
	assert.True(t, now.Equal(workload[0].UpdatedAt))
	assert.Equal(t, []db.AssignmentCountRow{{ResourceType: "ct", Capability: "urgent", Worker: "A", Count: 2}}, counts)

	// Saving replaces everything
	require.NoError(t, store.SaveLedger(ctx, nil, nil))
	workload, counts, err = store.LoadLedger(ctx)
	require.NoError(t, err)
	assert.Empty(t, workload)
	assert.Empty(t, counts)
}

func TestAssignments(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a1", "a2", "a3"} {
		require.NoError(t, store.InsertAssignment(ctx, db.AssignmentRow{
			ID:              id,
			Worker:          "A",
			Capability:      "urgent",
			ResourceType:    "ct",
			BaseWeight:      1,
			EffectiveWeight: 1,
			Outcome:         "found",
			AssignedAt:      base.Add(time.Duration(i) * time.Hour),
		}))
	}

	assert.Error(t, store.InsertAssignment(ctx, db.AssignmentRow{ID: "a1", AssignedAt: base}), "duplicate id")

	all, err := store.GetAssignments(ctx, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	recent, err := store.GetAssignments(ctx, base.Add(90*time.Minute))
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "a3", recent[0].ID)
}

func TestSegments(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	start := time.Date(2026, 3, 2, 7, 30, 0, 0, time.UTC)
	rows := []db.SegmentRow{
		{Position: 1, Worker: "B", DisplayName: "Bert", ResourceType: "ct", Kind: "shift", Start: start, End: start.Add(8 * time.Hour), CountsTowardHours: true, EffectiveSeconds: 28800, Capabilities: `{"urgent":1}`},
		{Position: 0, Worker: "A", DisplayName: "Anna", Kind: "gap", Label: "meeting", Start: start, End: start.Add(time.Hour), Capabilities: `{}`},
	}
	require.NoError(t, store.ReplaceSegments(ctx, "2026-03-02", rows))

	got, err := store.GetSegments(ctx, "2026-03-02")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A", got[0].Worker)
	assert.Equal(t, "2026-03-02", got[0].Date)
	assert.Equal(t, `{"urgent":1}`, got[1].Capabilities)
	assert.True(t, start.Equal(got[1].Start))
	assert.True(t, got[1].CountsTowardHours)

	require.NoError(t, store.ReplaceSegments(ctx, "2026-03-02", rows[:1]))
	got, err = store.GetSegments(ctx, "2026-03-02")
	require.NoError(t, err)
	assert.Len(t, got, 1)

	other, err := store.GetSegments(ctx, "2026-03-03")
	require.NoError(t, err)
	assert.Empty(t, other)
}
