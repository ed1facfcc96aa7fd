package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jakechorley/fairshare/pkg/core/model"
)

func TestModifiers_Combined(t *testing.T) {
	tests := []struct {
		name     string
		mods     Modifiers
		expected float64
	}{
		{"zero value is neutral", Modifiers{}, 1},
		{"roster and global multiply", Modifiers{Roster: 0.5, Global: 0.8}, 0.4},
		{"non-positive modifiers count as one", Modifiers{Roster: -2, Global: 0}, 1},
		{"shift override ignored for non-weighted", Modifiers{Roster: 0.5, Shift: 2}, 0.5},
		{"shift override applies to weighted", Modifiers{Roster: 0.5, Weighted: true, Shift: 2, DefaultWeighted: 4}, 1},
		{"default weighted multiplier without shift override", Modifiers{Weighted: true, DefaultWeighted: 0.5}, 0.5},
		{"unset default weighted multiplier", Modifiers{Weighted: true}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, tt.mods.Combined(), 1e-9)
		})
	}
}

func TestRecordAssignment(t *testing.T) {
	l := New()

	w := l.RecordAssignment("A", "notfall", "ct", 1.5, Modifiers{Roster: 0.5})
	assert.InDelta(t, 3.0, w, 1e-9)
	assert.InDelta(t, 3.0, l.Weighted("A"), 1e-9)
	assert.Equal(t, 1, l.Count("ct", "notfall", "A"))

	before := l.Weighted("A")
	w = l.RecordAssignment("A", "normal", "ct", 1, Modifiers{Roster: 1, Global: 1})
	assert.Greater(t, l.Weighted("A"), before)
	assert.InDelta(t, before+w, l.Weighted("A"), 1e-9)

	l.RecordAssignment("A", "normal", "mr", 1, Modifiers{})
	assert.Equal(t, 2, l.LocalCount("ct", "A"))
	assert.Equal(t, 1, l.LocalCount("mr", "A"))
	assert.Equal(t, 0, l.LocalCount("xray", "A"))
	assert.Equal(t, 0, l.Count("ct", "normal", "B"))
}

func TestRecordAssignment_NegativeModifierNeverFlipsSign(t *testing.T) {
	l := New()
	w := l.RecordAssignment("A", "normal", "ct", 1, Modifiers{Roster: -1, Global: -0.5})
	assert.InDelta(t, 1.0, w, 1e-9)
}

func TestResetAll(t *testing.T) {
	l := New()
	l.RecordAssignment("A", "normal", "ct", 1, Modifiers{})
	l.RecordAssignment("B", "notfall", "mr", 2, Modifiers{})

	l.ResetAll()

	assert.Zero(t, l.Weighted("A"))
	assert.Zero(t, l.Weighted("B"))
	assert.Zero(t, l.Count("ct", "normal", "A"))
	assert.Empty(t, l.Snapshot().Workload)
	assert.Empty(t, l.Snapshot().Counts)
}

func TestCurrentRatio(t *testing.T) {
	l := New()
	l.RecordAssignment("A", "normal", "ct", 0.6, Modifiers{})

	assert.InDelta(t, 0.6, l.CurrentRatio("A", 0), 1e-9, "no hours compares raw workload")
	assert.InDelta(t, 1.2, l.CurrentRatio("A", 0.25), 1e-9, "hours floored at half an hour")
	assert.InDelta(t, 0.4, l.CurrentRatio("A", 1.5), 1e-9)
	assert.Zero(t, l.CurrentRatio("nobody", 3))
}

func TestSnapshotRestore(t *testing.T) {
	l := New()
	l.RecordAssignment("B", "normal", "ct", 1, Modifiers{})
	l.RecordAssignment("A", "notfall", "ct", 1.5, Modifiers{})
	l.RecordAssignment("A", "notfall", "ct", 1.5, Modifiers{})

	state := l.Snapshot()
	require.Len(t, state.Workload, 2)
	assert.Equal(t, model.WorkerID("A"), state.Workload[0].Worker)
	assert.Equal(t, []CountState{
		{ResourceType: "ct", Capability: "normal", Worker: "B", Count: 1},
		{ResourceType: "ct", Capability: "notfall", Worker: "A", Count: 2},
	}, state.Counts)

	restored := New()
	restored.RecordAssignment("Z", "normal", "mr", 1, Modifiers{})
	restored.Restore(state)

	assert.Equal(t, state, restored.Snapshot())
	assert.Zero(t, restored.Weighted("Z"))
}
