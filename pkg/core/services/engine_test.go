package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jakechorley/fairshare/pkg/core/balancer"
	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/model"
	"github.com/jakechorley/fairshare/pkg/core/roster"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
	"github.com/jakechorley/fairshare/pkg/db"
)

var testDate = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

// mockStore records what the engine persists
type mockStore struct {
	mu          sync.Mutex
	workload    []db.WorkloadRow
	counts      []db.AssignmentCountRow
	saves       int
	assignments []db.AssignmentRow
	segments    map[string][]db.SegmentRow
	replaces    int

	saveLedgerErr     error
	loadLedgerErr     error
	getSegmentErr     error
	getAssignmentsErr error
}

func newMockStore() *mockStore {
	return &mockStore{segments: make(map[string][]db.SegmentRow)}
}

func (m *mockStore) SaveLedger(ctx context.Context, workload []db.WorkloadRow, counts []db.AssignmentCountRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveLedgerErr != nil {
		return m.saveLedgerErr
	}
	m.workload, m.counts = workload, counts
	m.saves++
	return nil
}

func (m *mockStore) LoadLedger(ctx context.Context) ([]db.WorkloadRow, []db.AssignmentCountRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadLedgerErr != nil {
		return nil, nil, m.loadLedgerErr
	}
	return m.workload, m.counts, nil
}

func (m *mockStore) InsertAssignment(ctx context.Context, row db.AssignmentRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assignments = append(m.assignments, row)
	return nil
}

func (m *mockStore) GetAssignments(ctx context.Context, since time.Time) ([]db.AssignmentRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getAssignmentsErr != nil {
		return nil, m.getAssignmentsErr
	}
	rows := make([]db.AssignmentRow, 0, len(m.assignments))
	for _, row := range m.assignments {
		if !row.AssignedAt.Before(since) {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

func (m *mockStore) ReplaceSegments(ctx context.Context, date string, rows []db.SegmentRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments[date] = rows
	m.replaces++
	return nil
}

func (m *mockStore) GetSegments(ctx context.Context, date string) ([]db.SegmentRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getSegmentErr != nil {
		return nil, m.getSegmentErr
	}
	return m.segments[date], nil
}

func (m *mockStore) Close() {}

func (m *mockStore) weighted(worker string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.workload {
		if w.Worker == worker {
			return w.Weighted
		}
	}
	return 0
}

func testCatalog(t *testing.T) *model.Catalog {
	t.Helper()
	catalog, err := model.NewCatalog([]model.Capability{
		{Name: "normal", Weight: 1},
		{Name: "urgent", Weight: 1},
	}, []string{"ct", "mr"})
	require.NoError(t, err)
	return catalog
}

type fixture struct {
	engine  *Engine
	store   *mockStore
	catalog *model.Catalog
}

func newFixture(t *testing.T, store db.Store) fixture {
	t.Helper()
	catalog := testCatalog(t)
	ids := model.NewIdentities()

	r := roster.New(catalog)
	r.Add(&roster.Worker{ID: ids.Resolve("Anna (AN)"), DisplayName: "Anna (AN)"})
	r.Add(&roster.Worker{ID: ids.Resolve("Bert (BE)"), DisplayName: "Bert (BE)", Modifier: 2})

	rules := []schedule.Rule{
		{Name: "meeting", Match: []string{"meeting"}, Kind: schedule.KindGap},
		{Name: "ct duty", Match: []string{"ct dienst"}, Kind: schedule.KindShift, Overrides: capability.Overrides{"ct": capability.Active}, CountsTowardHours: true},
	}
	compiler := schedule.NewCompiler(catalog, r, ids, rules, schedule.CompilerOptions{}, zap.NewNop())

	bal, err := balancer.New(catalog, balancer.Config{})
	require.NoError(t, err)

	engine := NewEngine(catalog, ids, r, compiler, bal, EngineOptions{
		Store:   store,
		Workers: 3,
		Now:     func() time.Time { return testDate.Add(9 * time.Hour) },
	}, zap.NewNop())

	f := fixture{engine: engine, catalog: catalog}
	if ms, ok := store.(*mockStore); ok {
		f.store = ms
	}
	return f
}

func testBatch() schedule.Batch {
	return schedule.Batch{
		Date: testDate,
		Records: []schedule.Record{
			{DisplayName: "Anna (AN)", Activity: "CT Dienst", StartText: "07:30", EndText: "16:00"},
			{DisplayName: "Bert (BE)", Activity: "CT Dienst", StartText: "07:30", EndText: "16:00"},
			{DisplayName: "Carl", Activity: "Meeting", StartText: "08:00", EndText: "10:00"},
			{DisplayName: "Dora", Activity: "Kaffee"},
		},
	}
}

func compiled(t *testing.T, f fixture) *schedule.Schedule {
	t.Helper()
	sched, err := f.engine.CompileSchedule(context.Background(), testBatch(), testDate)
	require.NoError(t, err)
	return sched
}

func ctRequest() balancer.Request {
	return balancer.Request{Capability: "urgent", ResourceType: "ct"}
}

func TestCompileSchedule(t *testing.T) {
	f := newFixture(t, newMockStore())
	sched := compiled(t, f)

	assert.Same(t, sched, f.engine.Schedule())
	// Anna, Bert and the unavailable marker for Carl
	assert.Len(t, sched.Segments("ct"), 3)
	require.Len(t, sched.Issues, 1)
	assert.Equal(t, 3, sched.Issues[0].RecordIndex)

	f.engine.Flush()
	rows := f.store.segments["2026-03-02"]
	assert.NotEmpty(t, rows)
}

func TestCompileSchedule_InvalidBatch(t *testing.T) {
	f := newFixture(t, nil)
	before := f.engine.Schedule()

	_, err := f.engine.CompileSchedule(context.Background(), schedule.Batch{}, time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, schedule.ErrInvalidBatch))
	assert.Same(t, before, f.engine.Schedule(), "failed compile leaves the current schedule in place")
}

func TestCompileSchedule_FailureAppliesNothing(t *testing.T) {
	f := newFixture(t, newMockStore())
	sched := compiled(t, f)
	f.engine.Flush()

	want, err := SegmentRows(sched)
	require.NoError(t, err)
	assert.Equal(t, want, f.store.segments["2026-03-02"])
	require.Equal(t, 1, f.store.replaces)

	_, err = f.engine.CompileSchedule(context.Background(), schedule.Batch{Date: testDate}, testDate)
	require.Error(t, err)
	f.engine.Flush()

	assert.Same(t, sched, f.engine.Schedule())
	assert.Equal(t, 1, f.store.replaces)
	assert.Equal(t, want, f.store.segments["2026-03-02"])
}

func TestAssign_AlternatesBetweenEquallyAvailableWorkers(t *testing.T) {
	f := newFixture(t, newMockStore())
	compiled(t, f)
	ctx := context.Background()

	want := []model.WorkerID{"AN", "BE", "BE", "AN"}
	for i, w := range want {
		a, err := f.engine.Assign(ctx, ctRequest())
		require.NoError(t, err)
		require.True(t, a.Result.Found(), "assignment %d", i)
		assert.Equal(t, w, a.Result.Candidate.Worker, "assignment %d", i)
	}

	// Bert's roster modifier of 2 halves his effective weight
	state := f.engine.Workload()
	require.Len(t, state.Workload, 2)
	assert.InDelta(t, 2.0, state.Workload[0].Weighted, 1e-9)
	assert.InDelta(t, 1.0, state.Workload[1].Weighted, 1e-9)
}

func TestAssign_Persists(t *testing.T) {
	f := newFixture(t, newMockStore())
	compiled(t, f)

	a, err := f.engine.Assign(context.Background(), ctRequest())
	require.NoError(t, err)
	f.engine.Flush()

	_, err = uuid.Parse(a.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1.0, a.EffectiveWeight)
	assert.Equal(t, testDate.Add(9*time.Hour), a.AssignedAt)

	require.Len(t, f.store.assignments, 1)
	row := f.store.assignments[0]
	assert.Equal(t, a.ID, row.ID)
	assert.Equal(t, "AN", row.Worker)
	assert.Equal(t, "urgent", row.Capability)
	assert.Equal(t, "found", row.Outcome)

	assert.InDelta(t, 1.0, f.store.weighted("AN"), 1e-9)
	assert.Equal(t, []db.AssignmentCountRow{{ResourceType: "ct", Capability: "urgent", Worker: "AN", Count: 1}}, f.store.counts)
}

func TestAssignments(t *testing.T) {
	f := newFixture(t, newMockStore())
	compiled(t, f)

	for i := 0; i < 2; i++ {
		_, err := f.engine.Assign(context.Background(), ctRequest())
		require.NoError(t, err)
	}
	f.engine.Flush()

	rows, err := f.engine.Assignments(context.Background(), time.Time{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.ElementsMatch(t, []string{"AN", "BE"}, []string{rows[0].Worker, rows[1].Worker})

	rows, err = f.engine.Assignments(context.Background(), testDate.Add(10*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, rows)

	f.store.getAssignmentsErr = errors.New("db down")
	_, err = f.engine.Assignments(context.Background(), time.Time{})
	assert.ErrorContains(t, err, "failed to load assignments")
}

func TestAssignments_NoStore(t *testing.T) {
	f := newFixture(t, nil)
	compiled(t, f)
	_, err := f.engine.Assign(context.Background(), ctRequest())
	require.NoError(t, err)

	rows, err := f.engine.Assignments(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestAssign_NotFound(t *testing.T) {
	f := newFixture(t, newMockStore())
	compiled(t, f)

	a, err := f.engine.Assign(context.Background(), balancer.Request{Capability: "urgent", ResourceType: "mr"})
	require.NoError(t, err)
	assert.False(t, a.Result.Found())
	assert.Equal(t, balancer.NotFound, a.Result.Outcome)
	assert.Empty(t, a.ID)

	f.engine.Flush()
	assert.Empty(t, f.store.assignments)
	assert.Equal(t, 0, f.store.saves)
}

func TestAssign_UnknownResourceType(t *testing.T) {
	f := newFixture(t, nil)
	compiled(t, f)

	_, err := f.engine.Assign(context.Background(), balancer.Request{Capability: "urgent", ResourceType: "pet"})
	assert.True(t, errors.Is(err, balancer.ErrUnknownResourceType))
}

func TestSelect_DoesNotRecord(t *testing.T) {
	f := newFixture(t, nil)
	compiled(t, f)

	for i := 0; i < 3; i++ {
		result, err := f.engine.Select(ctRequest())
		require.NoError(t, err)
		require.True(t, result.Found())
		assert.Equal(t, model.WorkerID("AN"), result.Candidate.Worker)
	}
	assert.Empty(t, f.engine.Workload().Workload)
}

func TestSelect_ExplicitInstant(t *testing.T) {
	f := newFixture(t, nil)
	compiled(t, f)

	req := ctRequest()
	req.Instant = testDate.Add(18 * time.Hour)
	result, err := f.engine.Select(req)
	require.NoError(t, err)
	assert.False(t, result.Found(), "nobody is on duty at 18:00")
}

func TestAssignBatch(t *testing.T) {
	f := newFixture(t, newMockStore())
	compiled(t, f)

	reqs := make([]balancer.Request, 12)
	for i := range reqs {
		reqs[i] = ctRequest()
	}

	assignments, err := f.engine.AssignBatch(context.Background(), reqs)
	require.NoError(t, err)
	require.Len(t, assignments, 12)

	perWorker := make(map[model.WorkerID]int)
	for _, a := range assignments {
		require.True(t, a.Result.Found())
		perWorker[a.Result.Candidate.Worker]++
	}
	assert.Equal(t, 12, perWorker["AN"]+perWorker["BE"])

	// Bert counts half per assignment, so he takes two for each of Anna's
	assert.Equal(t, 4, perWorker["AN"])
	assert.Equal(t, 8, perWorker["BE"])

	f.engine.Flush()
	assert.Len(t, f.store.assignments, 12)
	assert.InDelta(t, 4.0, f.store.weighted("AN"), 1e-9, "latest snapshot wins")
	assert.InDelta(t, 4.0, f.store.weighted("BE"), 1e-9)
}

func TestAssignBatch_Error(t *testing.T) {
	f := newFixture(t, nil)
	compiled(t, f)

	_, err := f.engine.AssignBatch(context.Background(), []balancer.Request{ctRequest(), {ResourceType: "pet"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, balancer.ErrUnknownResourceType))
	assert.Contains(t, err.Error(), "request 1")
}

func TestAssignBatch_Cancelled(t *testing.T) {
	f := newFixture(t, nil)
	compiled(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine.AssignBatch(ctx, []balancer.Request{ctRequest(), ctRequest()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.engine.Workload().Workload)
}

func TestRecordAssignment(t *testing.T) {
	f := newFixture(t, newMockStore())
	ctx := context.Background()

	worker, err := f.engine.RecordAssignment(ctx, RecordRequest{Worker: "Anna (AN)", Capability: "URGENT", ResourceType: "CT"})
	require.NoError(t, err)
	assert.Equal(t, model.WorkerID("AN"), worker)

	worker, err = f.engine.RecordAssignment(ctx, RecordRequest{Worker: "Bert (BE)", Capability: "normal", ResourceType: "mr", BaseWeight: 3})
	require.NoError(t, err)
	assert.Equal(t, model.WorkerID("BE"), worker)

	worker, err = f.engine.RecordAssignment(ctx, RecordRequest{Worker: "Emil", Capability: "normal", ResourceType: "ct", Weighted: true, ShiftModifier: 4})
	require.NoError(t, err)
	assert.Equal(t, model.WorkerID("Emil"), worker)

	state := f.engine.Workload()
	require.Len(t, state.Workload, 3)
	assert.InDelta(t, 1.0, state.Workload[0].Weighted, 1e-9)  // AN
	assert.InDelta(t, 1.5, state.Workload[1].Weighted, 1e-9)  // BE: 3 / 2
	assert.InDelta(t, 0.25, state.Workload[2].Weighted, 1e-9) // Emil: 1 / 4

	f.engine.Flush()
	require.Len(t, f.store.assignments, 3)
	assert.Equal(t, "recorded", f.store.assignments[0].Outcome)
}

func TestRecordAssignment_Errors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.engine.RecordAssignment(ctx, RecordRequest{Worker: "Anna", Capability: "urgent", ResourceType: "pet"})
	assert.True(t, errors.Is(err, balancer.ErrUnknownResourceType))

	_, err = f.engine.RecordAssignment(ctx, RecordRequest{Worker: "Anna", Capability: "sleeping", ResourceType: "ct"})
	assert.True(t, errors.Is(err, ErrUnknownCapability))

	assert.Empty(t, f.engine.Workload().Workload)
}

func TestResetAll(t *testing.T) {
	f := newFixture(t, newMockStore())
	sched := compiled(t, f)
	ctx := context.Background()

	_, err := f.engine.Assign(ctx, ctRequest())
	require.NoError(t, err)

	f.engine.ResetAll(ctx)
	f.engine.Flush()

	state := f.engine.Workload()
	assert.Empty(t, state.Workload)
	assert.Empty(t, state.Counts)
	assert.Same(t, sched, f.engine.Schedule(), "reset leaves the schedule alone")
	assert.Empty(t, f.store.workload)
	assert.Empty(t, f.store.counts)
}

func TestSetRosterValue(t *testing.T) {
	f := newFixture(t, nil)

	worker, err := f.engine.SetRosterValue("Anna (AN)", "urgent_ct", capability.Excluded)
	require.NoError(t, err)
	assert.Equal(t, model.WorkerID("AN"), worker)

	compiled(t, f)
	result, err := f.engine.Select(ctRequest())
	require.NoError(t, err)
	require.True(t, result.Found())
	assert.Equal(t, model.WorkerID("BE"), result.Candidate.Worker, "Anna is excluded from urgent on ct")

	_, err = f.engine.SetRosterValue("Nobody", "ct", capability.Active)
	assert.Error(t, err)

	workers := f.engine.Roster()
	require.Len(t, workers, 2)
	assert.Equal(t, capability.Excluded, workers[0].Baseline.Get("urgent", "ct"))

	workers[0].Baseline[capability.Key{Capability: "urgent", ResourceType: "ct"}] = capability.Active
	assert.Equal(t, capability.Excluded, f.engine.Roster()[0].Baseline.Get("urgent", "ct"), "Roster returns copies")
}

func TestRestore(t *testing.T) {
	store := newMockStore()
	first := newFixture(t, store)
	compiled(t, first)
	_, err := first.engine.Assign(context.Background(), ctRequest())
	require.NoError(t, err)
	first.engine.Flush()

	second := newFixture(t, store)
	require.NoError(t, second.engine.Restore(context.Background(), testDate))

	assert.Equal(t, first.engine.Workload(), second.engine.Workload())

	restored := second.engine.Schedule()
	assert.Equal(t, first.engine.Schedule().Segments("ct"), restored.Segments("ct"))
	assert.Equal(t, first.engine.Schedule().Workers(), restored.Workers())

	result, err := second.engine.Select(ctRequest())
	require.NoError(t, err)
	require.True(t, result.Found())
	assert.Equal(t, model.WorkerID("BE"), result.Candidate.Worker)
}

func TestRestore_Errors(t *testing.T) {
	store := newMockStore()
	store.loadLedgerErr = errors.New("connection refused")
	f := newFixture(t, store)

	err := f.engine.Restore(context.Background(), testDate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load ledger")

	store.loadLedgerErr = nil
	store.getSegmentErr = errors.New("connection refused")
	err = f.engine.Restore(context.Background(), testDate)
	assert.Contains(t, err.Error(), "failed to load segments")
}

func TestRestore_NoStore(t *testing.T) {
	f := newFixture(t, nil)
	assert.NoError(t, f.engine.Restore(context.Background(), testDate))
}

func TestPersistFailureIsLogged(t *testing.T) {
	store := newMockStore()
	store.saveLedgerErr = errors.New("disk full")
	f := newFixture(t, store)
	compiled(t, f)

	a, err := f.engine.Assign(context.Background(), ctRequest())
	require.NoError(t, err)
	assert.True(t, a.Result.Found(), "persistence failures do not fail the assignment")
	f.engine.Flush()
	assert.Equal(t, 0, store.saves)
}

func TestConcurrentAssignIsSerialised(t *testing.T) {
	f := newFixture(t, nil)
	compiled(t, f)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.Assign(context.Background(), ctRequest())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	total := 0
	for _, c := range f.engine.Workload().Counts {
		total += c.Count
	}
	assert.Equal(t, 50, total)
}
