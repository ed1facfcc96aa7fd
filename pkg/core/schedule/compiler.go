package schedule

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/interval"
	"github.com/jakechorley/fairshare/pkg/core/model"
)

// DefaultMinSegment is the shortest shift kept after overlap resolution
const DefaultMinSegment = 6 * time.Minute

// Compiler turns a dated batch of external records into per-resource-type segments
type Compiler struct {
	catalog    *model.Catalog
	roster     BaselineProvider
	identities *model.Identities
	rules      []Rule
	minSegment time.Duration
	resolve    capability.Options
	logger     *zap.Logger
}

// CompilerOptions configures NewCompiler
type CompilerOptions struct {
	// MinSegment defaults to DefaultMinSegment when zero
	MinSegment time.Duration
	Resolve    capability.Options
}

// NewCompiler creates a compiler. Shift rules without any capability override are
// skipped with a warning.
func NewCompiler(catalog *model.Catalog, roster BaselineProvider, identities *model.Identities, rules []Rule, opts CompilerOptions, logger *zap.Logger) *Compiler {
	kept := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if rule.Kind == KindShift && len(rule.Overrides) == 0 {
			logger.Warn("Skipping shift rule without capability overrides", zap.String("rule", rule.Name))
			continue
		}
		kept = append(kept, rule)
	}

	minSegment := opts.MinSegment
	if minSegment <= 0 {
		minSegment = DefaultMinSegment
	}

	return &Compiler{
		catalog:    catalog,
		roster:     roster,
		identities: identities,
		rules:      kept,
		minSegment: minSegment,
		resolve:    opts.Resolve,
		logger:     logger,
	}
}

// Rules returns the rules in effect after construction-time filtering
func (c *Compiler) Rules() []Rule {
	return c.rules
}

// Compile runs every pass over the batch for the target date.
// A structurally invalid batch is rejected with ErrInvalidBatch; record-level
// problems are logged and returned in Schedule.Issues.
func (c *Compiler) Compile(batch Batch, date time.Time) (*Schedule, error) {
	if date.IsZero() {
		date = batch.Date
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: no target date", ErrInvalidBatch)
	}
	if batch.Records == nil {
		return nil, fmt.Errorf("%w: batch has no records collection", ErrInvalidBatch)
	}
	day := interval.StartOfDay(date)

	c.logger.Debug("Compiling schedule",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("records", len(batch.Records)),
		zap.Int("rules", len(c.rules)))

	kept, issues := CollectRecords(batch.Records, day)

	matches, classifyIssues := ClassifyRules(batch.Records, kept, c.rules, day)
	issues = append(issues, classifyIssues...)

	shifts, gaps, buildIssues := BuildSegments(SegmentInput{
		Records:    batch.Records,
		Matches:    matches,
		Rules:      c.rules,
		Date:       day,
		Catalog:    c.catalog,
		Roster:     c.roster,
		Identities: c.identities,
		Resolve:    c.resolve,
	})
	issues = append(issues, buildIssues...)

	shifts = SynthesizeUnavailableEntries(shifts, gaps, c.catalog)
	shifts = ResolveOverlaps(shifts, c.minSegment)
	shifts = ApplyGapDurations(shifts, gaps)

	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].RecordIndex < issues[j].RecordIndex
	})
	for _, issue := range issues {
		c.logger.Warn("Skipped record",
			zap.Int("record", issue.RecordIndex),
			zap.String("name", issue.DisplayName),
			zap.String("activity", issue.Activity),
			zap.String("reason", issue.Reason))
	}

	sched := Emit(day, c.catalog.ResourceTypes(), shifts, gaps, issues)

	c.logger.Info("Schedule compiled",
		zap.String("date", day.Format("2006-01-02")),
		zap.Int("segments", len(shifts)),
		zap.Int("gaps", len(gaps)),
		zap.Int("issues", len(issues)))

	return sched, nil
}
