package schedule

import (
	"errors"
	"time"

	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/interval"
	"github.com/jakechorley/fairshare/pkg/core/model"
)

// ErrInvalidBatch is returned for structurally invalid input. Nothing is compiled.
var ErrInvalidBatch = errors.New("invalid schedule batch")

// Kind distinguishes availability segments from unavailability segments
type Kind int

const (
	KindShift Kind = iota
	KindGap
)

func (k Kind) String() string {
	if k == KindGap {
		return "gap"
	}
	return "shift"
}

// UnavailableLabel marks synthesized entries for workers with only gaps on the day
const UnavailableLabel = "unavailable"

// Rule classifies external records by substring match on their activity description
type Rule struct {
	// Name identifies the rule in logs and segment labels
	Name string

	// Match holds case-insensitive substrings; any one matching is enough
	Match []string

	Kind Kind

	// Overrides are applied on top of the worker's roster baseline (shift rules only)
	Overrides capability.Overrides

	// CountsTowardHours marks whether the time counts as time on duty
	CountsTowardHours bool

	// Modifier is the per-shift workload modifier for weighted assignments (0 = unset)
	Modifier float64

	// DefaultStart and DefaultEnd are used when a record carries no time text
	DefaultStart *time.Duration
	DefaultEnd   *time.Duration

	// AppliesOn restricts the rule to certain dates (nil = every day)
	AppliesOn func(date time.Time) bool
}

// Record is one raw activity line from the external feed
type Record struct {
	// Date of the activity; zero means the batch date
	Date time.Time

	// DateText holds the raw date cell when it could not be read
	DateText string

	DisplayName string
	Activity    string
	StartText   string
	EndText     string
}

// Batch is one dated collection of external records
type Batch struct {
	Date    time.Time
	Records []Record
}

// Segment is one compiled availability or unavailability window
type Segment struct {
	Worker      model.WorkerID
	DisplayName string

	// ResourceType is empty for gaps, which apply to every resource type
	ResourceType string

	Window            interval.Interval
	Kind              Kind
	CountsTowardHours bool

	// Capabilities holds capability → value for ResourceType (shifts only)
	Capabilities map[string]capability.Value

	Label    string
	Modifier float64

	// Effective is the window duration minus non-counting gaps
	Effective time.Duration

	// Order is the index of the source record, used to break start-time ties
	Order int
}

// Value returns the segment's value for a capability, Excluded when unknown
func (s Segment) Value(capabilityName string) capability.Value {
	if v, ok := s.Capabilities[capabilityName]; ok {
		return v
	}
	return capability.Excluded
}

// Issue is a record-level problem: the record was skipped, the batch continued
type Issue struct {
	RecordIndex int
	DisplayName string
	Activity    string
	Reason      string
}
