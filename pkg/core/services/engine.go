package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jakechorley/fairshare/pkg/core/balancer"
	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/ledger"
	"github.com/jakechorley/fairshare/pkg/core/model"
	"github.com/jakechorley/fairshare/pkg/core/roster"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
	"github.com/jakechorley/fairshare/pkg/db"
)

// ErrUnknownCapability is returned when a manual record names a capability outside the catalog
var ErrUnknownCapability = errors.New("unknown capability")

// EngineOptions configures an Engine
type EngineOptions struct {
	// Store persists ledger state, assignments and segments (nil = in-memory only)
	Store db.Store

	// Workers bounds AssignBatch parallelism (0 = unbounded)
	Workers int

	// Now is the clock (nil = time.Now)
	Now func() time.Time
}

// Engine owns the workload ledger and the current schedule behind a single lock.
// Selection and the ledger write that follows it run as one critical section.
type Engine struct {
	mu       sync.Mutex
	ledger   *ledger.Ledger
	schedule *schedule.Schedule

	rosterMu sync.RWMutex
	roster   *roster.Roster

	catalog    *model.Catalog
	identities *model.Identities
	compiler   *schedule.Compiler
	balancer   *balancer.Balancer

	store   db.Store
	workers int
	now     func() time.Time
	logger  *zap.Logger

	persistMu  sync.Mutex
	persistSeq uint64
	savedSeq   uint64
	persistWG  sync.WaitGroup
}

// Assignment is the outcome of Assign: the selection plus what was recorded
type Assignment struct {
	ID              string
	Result          balancer.Result
	BaseWeight      float64
	EffectiveWeight float64
	AssignedAt      time.Time
}

// RecordRequest is a manual assignment made outside Select
type RecordRequest struct {
	// Worker is a display name or canonical identity
	Worker       string
	Capability   string
	ResourceType string

	// BaseWeight overrides the catalog weight when positive
	BaseWeight float64

	// Weighted marks an assignment through a Weighted capability
	Weighted      bool
	ShiftModifier float64
}

// NewEngine wires the engine. The roster is read through a BaselineProvider by the compiler,
// so roster edits must go through SetRosterValue.
func NewEngine(
	catalog *model.Catalog,
	identities *model.Identities,
	r *roster.Roster,
	compiler *schedule.Compiler,
	bal *balancer.Balancer,
	opts EngineOptions,
	logger *zap.Logger,
) *Engine {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		ledger:     ledger.New(),
		schedule:   schedule.Empty(catalog.ResourceTypes()),
		roster:     r,
		catalog:    catalog,
		identities: identities,
		compiler:   compiler,
		balancer:   bal,
		store:      opts.Store,
		workers:    opts.Workers,
		now:        now,
		logger:     logger,
	}
}

// Catalog returns the capability and resource-type catalog
func (e *Engine) Catalog() *model.Catalog {
	return e.catalog
}

// Schedule returns the current compiled schedule (read-only)
func (e *Engine) Schedule() *schedule.Schedule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.schedule
}

// Workload returns a snapshot of the ledger
func (e *Engine) Workload() ledger.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Snapshot()
}

// Roster returns copies of the roster entries ordered by identity
func (e *Engine) Roster() []roster.Worker {
	e.rosterMu.RLock()
	defer e.rosterMu.RUnlock()

	workers := make([]roster.Worker, 0, e.roster.Len())
	for _, w := range e.roster.Workers() {
		c := *w
		c.Baseline = w.Baseline.Clone()
		workers = append(workers, c)
	}
	return workers
}

// CompileSchedule compiles the batch and swaps it in as the current schedule.
// Compilation runs outside the ledger lock; only the swap holds it.
func (e *Engine) CompileSchedule(ctx context.Context, batch schedule.Batch, date time.Time) (*schedule.Schedule, error) {
	e.rosterMu.RLock()
	compiled, err := e.compiler.Compile(batch, date)
	e.rosterMu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("failed to compile schedule: %w", err)
	}

	var rows []db.SegmentRow
	if e.store != nil {
		if rows, err = SegmentRows(compiled); err != nil {
			return nil, err
		}
	}

	e.mu.Lock()
	e.schedule = compiled
	e.mu.Unlock()

	e.logger.Info("Activated schedule",
		zap.String("date", compiled.Date.Format("2006-01-02")),
		zap.Int("workers", len(compiled.Workers())),
		zap.Int("issues", len(compiled.Issues)))

	if e.store != nil {
		e.background(ctx, func(ctx context.Context) {
			if err := e.store.ReplaceSegments(ctx, compiled.Date.Format("2006-01-02"), rows); err != nil {
				e.logger.Warn("Failed to persist segments", zap.Error(err))
			}
		})
	}

	return compiled, nil
}

// Select finds the least-loaded eligible worker without recording anything.
// A zero instant means now.
func (e *Engine) Select(req balancer.Request) (balancer.Result, error) {
	if req.Instant.IsZero() {
		req.Instant = e.now()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.balancer.Select(e.schedule, e.ledger, req)
}

// Assign selects a worker and records the assignment in the same critical section.
// A NotFound result is returned without error and records nothing.
func (e *Engine) Assign(ctx context.Context, req balancer.Request) (Assignment, error) {
	if req.Instant.IsZero() {
		req.Instant = e.now()
	}

	e.mu.Lock()
	result, err := e.balancer.Select(e.schedule, e.ledger, req)
	if err != nil {
		e.mu.Unlock()
		return Assignment{}, err
	}
	if !result.Found() {
		e.mu.Unlock()
		e.logger.Info("No candidate found",
			zap.String("capability", result.Capability),
			zap.String("resourceType", req.ResourceType),
			zap.Strings("searchOrder", result.SearchOrder))
		return Assignment{Result: result}, nil
	}

	c := *result.Candidate
	rosterMod, globalMod := e.modifiers(c.Worker)
	base := e.catalog.Weight(c.Capability)
	effective := e.ledger.RecordAssignment(c.Worker, c.Capability, c.ResourceType, base, e.balancer.Modifiers(c, rosterMod, globalMod))
	state, seq := e.snapshotLocked()
	e.mu.Unlock()

	assignment := Assignment{
		ID:              uuid.New().String(),
		Result:          result,
		BaseWeight:      base,
		EffectiveWeight: effective,
		AssignedAt:      e.now(),
	}

	e.logger.Info("Assigned worker",
		zap.String("worker", string(c.Worker)),
		zap.String("capability", c.Capability),
		zap.String("resourceType", c.ResourceType),
		zap.String("outcome", result.Outcome.String()),
		zap.Float64("ratio", c.Ratio),
		zap.Float64("weight", effective))

	e.persist(ctx, state, seq, &db.AssignmentRow{
		ID:              assignment.ID,
		Worker:          string(c.Worker),
		Capability:      c.Capability,
		ResourceType:    c.ResourceType,
		BaseWeight:      base,
		EffectiveWeight: effective,
		Outcome:         result.Outcome.String(),
		AssignedAt:      assignment.AssignedAt,
	})

	return assignment, nil
}

// AssignBatch issues requests concurrently, bounded by the configured worker count.
// Each request is an independent greedy decision serialised by the ledger lock, so the
// order of decisions between requests is not defined. Results keep the request order.
func (e *Engine) AssignBatch(ctx context.Context, reqs []balancer.Request) ([]Assignment, error) {
	results := make([]Assignment, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}

	for i, req := range reqs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			assignment, err := e.Assign(gctx, req)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = assignment
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RecordAssignment records an assignment decided outside Select and returns the
// worker's canonical identity. Calls are not idempotent.
func (e *Engine) RecordAssignment(ctx context.Context, req RecordRequest) (model.WorkerID, error) {
	rt, ok := e.catalog.ResourceType(req.ResourceType)
	if !ok {
		return "", fmt.Errorf("%w: %q", balancer.ErrUnknownResourceType, req.ResourceType)
	}
	c, ok := e.catalog.Capability(req.Capability)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownCapability, req.Capability)
	}

	worker := e.identities.Resolve(req.Worker)
	base := req.BaseWeight
	if base <= 0 {
		base = c.Weight
	}

	value := capability.Active
	if req.Weighted {
		value = capability.Weighted
	}
	candidate := balancer.Candidate{Worker: worker, ResourceType: rt, Capability: c.Name, Value: value, ShiftModifier: req.ShiftModifier}

	e.mu.Lock()
	rosterMod, globalMod := e.modifiers(worker)
	effective := e.ledger.RecordAssignment(worker, c.Name, rt, base, e.balancer.Modifiers(candidate, rosterMod, globalMod))
	state, seq := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Info("Recorded assignment",
		zap.String("worker", string(worker)),
		zap.String("capability", c.Name),
		zap.String("resourceType", rt),
		zap.Float64("weight", effective))

	e.persist(ctx, state, seq, &db.AssignmentRow{
		ID:              uuid.New().String(),
		Worker:          string(worker),
		Capability:      c.Name,
		ResourceType:    rt,
		BaseWeight:      base,
		EffectiveWeight: effective,
		Outcome:         "recorded",
		AssignedAt:      e.now(),
	})

	return worker, nil
}

// ResetAll zeroes every workload accumulator and assignment count.
// Capability matrices and the schedule are left untouched.
func (e *Engine) ResetAll(ctx context.Context) {
	e.mu.Lock()
	e.ledger.ResetAll()
	state, seq := e.snapshotLocked()
	e.mu.Unlock()

	e.logger.Info("Ledger reset")
	e.persist(ctx, state, seq, nil)
}

// SetRosterValue edits a worker's baseline using a shorthand key.
// The change applies from the next compilation.
func (e *Engine) SetRosterValue(displayName, key string, value capability.Value) (model.WorkerID, error) {
	worker := e.identities.Resolve(displayName)

	e.rosterMu.Lock()
	defer e.rosterMu.Unlock()

	if err := e.roster.SetValue(worker, key, value); err != nil {
		return "", err
	}
	return worker, nil
}

// Assignments returns the recorded assignment trail from since onwards, oldest first.
// Without a store nothing is kept and the trail is empty.
func (e *Engine) Assignments(ctx context.Context, since time.Time) ([]db.AssignmentRow, error) {
	if e.store == nil {
		return []db.AssignmentRow{}, nil
	}
	rows, err := e.store.GetAssignments(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}
	return rows, nil
}

// Restore reloads the ledger and the segments for date from the store
func (e *Engine) Restore(ctx context.Context, date time.Time) error {
	if e.store == nil {
		return nil
	}

	workload, counts, err := e.store.LoadLedger(ctx)
	if err != nil {
		return fmt.Errorf("failed to load ledger: %w", err)
	}
	rows, err := e.store.GetSegments(ctx, date.Format("2006-01-02"))
	if err != nil {
		return fmt.Errorf("failed to load segments: %w", err)
	}
	restored, err := ScheduleFromRows(rows, e.catalog, e.identities, date)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.ledger.Restore(StateFromRows(workload, counts))
	if len(rows) > 0 {
		e.schedule = restored
	}
	e.mu.Unlock()

	e.logger.Info("Restored state",
		zap.Int("workers", len(workload)),
		zap.Int("counts", len(counts)),
		zap.Int("segments", len(rows)))

	return nil
}

// Flush waits for background persistence to finish
func (e *Engine) Flush() {
	e.persistWG.Wait()
}

// modifiers returns the roster and global modifiers of a worker (0 when not on the roster)
func (e *Engine) modifiers(worker model.WorkerID) (float64, float64) {
	e.rosterMu.RLock()
	defer e.rosterMu.RUnlock()

	if w, ok := e.roster.Lookup(worker); ok {
		return w.Modifier, w.GlobalModifier
	}
	return 0, 0
}

// snapshotLocked copies the ledger and numbers the copy. Caller holds e.mu.
func (e *Engine) snapshotLocked() (ledger.State, uint64) {
	e.persistSeq++
	return e.ledger.Snapshot(), e.persistSeq
}

// persist saves a ledger snapshot and an optional audit row after the lock is released.
// Snapshots older than one already saved are skipped.
func (e *Engine) persist(ctx context.Context, state ledger.State, seq uint64, row *db.AssignmentRow) {
	if e.store == nil {
		return
	}

	at := e.now()
	e.background(ctx, func(ctx context.Context) {
		if row != nil {
			if err := e.store.InsertAssignment(ctx, *row); err != nil {
				e.logger.Warn("Failed to persist assignment", zap.String("id", row.ID), zap.Error(err))
			}
		}

		e.persistMu.Lock()
		defer e.persistMu.Unlock()
		if seq <= e.savedSeq {
			return
		}

		workload, counts := StateRows(state, at)
		if err := e.store.SaveLedger(ctx, workload, counts); err != nil {
			e.logger.Warn("Failed to persist ledger", zap.Uint64("seq", seq), zap.Error(err))
			return
		}
		e.savedSeq = seq
	})
}

// background runs fn detached from the caller's cancellation
func (e *Engine) background(ctx context.Context, fn func(ctx context.Context)) {
	e.persistWG.Add(1)
	go func() {
		defer e.persistWG.Done()
		fn(context.WithoutCancel(ctx))
	}()
}
