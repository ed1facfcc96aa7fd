package sheetsclient

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jakechorley/fairshare/pkg/core/capability"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
	"github.com/jakechorley/fairshare/pkg/db"
)

// Schedule tab column headers
var scheduleHeader = []interface{}{
	"Resource type", "Worker", "Name", "Kind", "Label", "Start", "End", "Hours", "Counts", "Capabilities",
}

// AssignmentHeader is the header row of the assignments tab
var AssignmentHeader = []interface{}{
	"Assigned at", "ID", "Worker", "Capability", "Resource type", "Base weight", "Effective weight", "Outcome",
}

// PublishSchedule writes the compiled schedule to a tab titled "<prefix> Mon Jan 02 2006".
// The tab is created if missing, otherwise its contents are replaced.
func (c *Client) PublishSchedule(ctx context.Context, spreadsheetID, prefix string, sched *schedule.Schedule) (string, error) {
	tabTitle := scheduleTabTitle(prefix, sched.Date)

	exists, err := c.HasSheet(ctx, spreadsheetID, tabTitle)
	if err != nil {
		return "", err
	}
	if !exists {
		if _, err := c.CreateSheet(ctx, spreadsheetID, tabTitle); err != nil {
			return "", fmt.Errorf("failed to create tab: %w", err)
		}
	}

	rows := ScheduleRows(sched)
	if err := c.ReplaceValues(ctx, spreadsheetID, tabTitle, rows); err != nil {
		return "", err
	}

	c.logger.Info("Published schedule",
		zap.String("tab", tabTitle),
		zap.Bool("created", !exists),
		zap.Int("rows", len(rows)-1))

	return tabTitle, nil
}

// AppendAssignment appends one audit row to the assignments tab
func (c *Client) AppendAssignment(ctx context.Context, spreadsheetID, tab string, row db.AssignmentRow) error {
	return c.AppendRows(ctx, spreadsheetID, tab, [][]interface{}{AssignmentValues(row)})
}

// scheduleTabTitle creates a tab title such as "Schedule Mon Mar 02 2026"
func scheduleTabTitle(prefix string, date time.Time) string {
	if prefix == "" {
		prefix = "Schedule"
	}
	return fmt.Sprintf("%s %s", prefix, date.Format("Mon Jan 02 2006"))
}

// ScheduleRows renders a schedule as sheet rows: header, shifts per resource type, gaps,
// then an issue section after a blank row when there are record-level issues
func ScheduleRows(sched *schedule.Schedule) [][]interface{} {
	rows := [][]interface{}{scheduleHeader}

	for _, seg := range sched.All() {
		rows = append(rows, []interface{}{
			seg.ResourceType,
			string(seg.Worker),
			seg.DisplayName,
			seg.Kind.String(),
			seg.Label,
			seg.Window.Start.Format("15:04"),
			seg.Window.End.Format("15:04"),
			fmt.Sprintf("%.2f", seg.Effective.Hours()),
			seg.CountsTowardHours,
			formatCapabilities(seg.Capabilities),
		})
	}

	if len(sched.Issues) > 0 {
		rows = append(rows, []interface{}{}, []interface{}{"Record", "Name", "Activity", "Issue"})
		for _, issue := range sched.Issues {
			rows = append(rows, []interface{}{issue.RecordIndex + 1, issue.DisplayName, issue.Activity, issue.Reason})
		}
	}

	return rows
}

// AssignmentValues renders one assignment audit row
func AssignmentValues(row db.AssignmentRow) []interface{} {
	return []interface{}{
		row.AssignedAt.Format(time.RFC3339),
		row.ID,
		row.Worker,
		row.Capability,
		row.ResourceType,
		row.BaseWeight,
		row.EffectiveWeight,
		row.Outcome,
	}
}

// formatCapabilities renders "name=value" pairs in name order
func formatCapabilities(values map[string]capability.Value) string {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%s", name, values[name]))
	}
	return strings.Join(parts, " ")
}
