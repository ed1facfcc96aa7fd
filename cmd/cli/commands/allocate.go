package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/fairshare/pkg/core/balancer"
	"github.com/jakechorley/fairshare/pkg/core/services"
	"github.com/jakechorley/fairshare/pkg/db"
)

// SelectCmd creates the select command
func SelectCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "select <capability> <resource_type>",
		Short: "Show which worker would be assigned, without recording anything",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestFromFlags(app, cmd, args)
			if err != nil {
				return err
			}

			result, err := app.Engine.Select(req)
			if err != nil {
				return err
			}

			printResult(result)
			return nil
		},
	}

	addRequestFlags(cmd)
	return cmd
}

// AssignCmd creates the assign command
func AssignCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assign <capability> <resource_type>",
		Short: "Assign the least-loaded eligible worker and record the assignment",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := requestFromFlags(app, cmd, args)
			if err != nil {
				return err
			}
			count, _ := cmd.Flags().GetInt("count")
			if count < 1 {
				return fmt.Errorf("count must be a positive integer, got: %d", count)
			}

			app.Logger.Debug("assign command",
				zap.String("capability", req.Capability),
				zap.String("resourceType", req.ResourceType),
				zap.Int("count", count))

			reqs := make([]balancer.Request, count)
			for i := range reqs {
				reqs[i] = req
			}

			var assignments []services.Assignment
			if count == 1 {
				a, err := app.Engine.Assign(app.Ctx, req)
				if err != nil {
					return err
				}
				assignments = []services.Assignment{a}
			} else {
				assignments, err = app.Engine.AssignBatch(app.Ctx, reqs)
				if err != nil {
					return err
				}
			}

			for _, a := range assignments {
				printResult(a.Result)
				if a.Result.Found() {
					fmt.Printf("  Weight:   %.2f (base %.2f)\n\n", a.EffectiveWeight, a.BaseWeight)
					mirrorAssignment(app, a)
				}
			}

			return nil
		},
	}

	addRequestFlags(cmd)
	cmd.Flags().Int("count", 1, "Number of assignments to issue concurrently")

	return cmd
}

// RecordCmd creates the record command
func RecordCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <worker> <capability> <resource_type>",
		Short: "Record an assignment decided outside the balancer",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			weight, _ := cmd.Flags().GetFloat64("weight")
			weighted, _ := cmd.Flags().GetBool("weighted")
			modifier, _ := cmd.Flags().GetFloat64("modifier")

			worker, err := app.Engine.RecordAssignment(app.Ctx, services.RecordRequest{
				Worker:        args[0],
				Capability:    args[1],
				ResourceType:  args[2],
				BaseWeight:    weight,
				Weighted:      weighted,
				ShiftModifier: modifier,
			})
			if err != nil {
				return err
			}

			fmt.Printf("\n✓ Recorded %s for %s on %s\n\n", args[1], worker, args[2])
			return nil
		},
	}

	cmd.Flags().Float64("weight", 0, "Base weight (defaults to the capability weight)")
	cmd.Flags().Bool("weighted", false, "Apply the weighted-capability multiplier")
	cmd.Flags().Float64("modifier", 0, "Shift modifier of the segment the worker was on")

	return cmd
}

// ResetCmd creates the reset command
func ResetCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Zero every workload accumulator and assignment count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Engine.ResetAll(app.Ctx)
			fmt.Printf("\n✓ Workload reset\n\n")
			return nil
		},
	}
}

// WorkloadCmd creates the workload command
func WorkloadCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "workload",
		Short: "Show the weighted workload and assignment counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			state := app.Engine.Workload()
			if len(state.Workload) == 0 {
				fmt.Println("No assignments recorded.")
				return nil
			}

			fmt.Printf("\n%-20s %10s\n", "Worker", "Weighted")
			for _, w := range state.Workload {
				fmt.Printf("%-20s %10.2f\n", w.Worker, w.Weighted)
			}

			fmt.Printf("\n%-12s %-12s %-20s %6s\n", "Resource", "Capability", "Worker", "Count")
			for _, c := range state.Counts {
				fmt.Printf("%-12s %-12s %-20s %6d\n", c.ResourceType, c.Capability, c.Worker, c.Count)
			}
			fmt.Println()

			return nil
		},
	}
}

// AssignmentsCmd creates the assignments command
func AssignmentsCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assignments",
		Short: "List the recorded assignment trail",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sinceText, _ := cmd.Flags().GetString("since")

			var since time.Time
			if sinceText != "" {
				var err error
				if since, err = app.ParseDate(sinceText); err != nil {
					return err
				}
			}

			rows, err := app.Engine.Assignments(app.Ctx, since)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				fmt.Println("No assignments recorded.")
				return nil
			}

			fmt.Printf("\n%-17s %-20s %-12s %-12s %8s %-10s\n", "Assigned", "Worker", "Capability", "Resource", "Weight", "Outcome")
			for _, row := range rows {
				fmt.Printf("%-17s %-20s %-12s %-12s %8.2f %-10s\n",
					row.AssignedAt.In(app.Location).Format("2006-01-02 15:04"),
					row.Worker, row.Capability, row.ResourceType, row.EffectiveWeight, row.Outcome)
			}
			fmt.Println()

			return nil
		},
	}

	cmd.Flags().String("since", "", "Only list assignments from this date on (YYYY-MM-DD)")

	return cmd
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().String("at", "", "Clock time to select at, e.g. 14:30 (defaults to now)")
	cmd.Flags().Bool("fallback", false, "Allow the fallback phase to ignore exclusions")
}

func requestFromFlags(app *AppContext, cmd *cobra.Command, args []string) (balancer.Request, error) {
	at, _ := cmd.Flags().GetString("at")
	fallback, _ := cmd.Flags().GetBool("fallback")

	instant, err := app.ParseInstant(at)
	if err != nil {
		return balancer.Request{}, err
	}

	return balancer.Request{
		Capability:    args[0],
		ResourceType:  args[1],
		Instant:       instant,
		AllowFallback: fallback,
	}, nil
}

func printResult(result balancer.Result) {
	if !result.Found() {
		fmt.Printf("\n✗ No worker available for %s (searched %s)\n\n", result.Capability, strings.Join(result.SearchOrder, ", "))
		return
	}

	c := result.Candidate
	fmt.Printf("\n✓ %s\n", c.DisplayName)
	fmt.Printf("  Resource: %s\n", c.ResourceType)
	fmt.Printf("  Skill:    %s (%s)\n", c.Capability, c.Value)
	fmt.Printf("  Ratio:    %.3f over %s on duty\n", c.Ratio, formatHours(c.HoursOnDuty))
	if result.Outcome == balancer.FoundFallback {
		fmt.Printf("  ⚠️  Found by fallback, exclusions were ignored\n")
	}
	if c.Overflow {
		fmt.Printf("  ⚠️  Overflow from another resource type\n")
	}
}

// mirrorAssignment appends the assignment to the assignments tab when one is configured.
// Failures are logged; the ledger is already updated.
func mirrorAssignment(app *AppContext, a services.Assignment) {
	tab := app.Cfg.Sheets.AssignmentsTab
	if tab == "" {
		return
	}
	client, err := app.Sheets()
	if err != nil {
		app.Logger.Warn("Failed to open sheets client", zap.Error(err))
		return
	}

	c := a.Result.Candidate
	row := db.AssignmentRow{
		ID:              a.ID,
		Worker:          string(c.Worker),
		Capability:      c.Capability,
		ResourceType:    c.ResourceType,
		BaseWeight:      a.BaseWeight,
		EffectiveWeight: a.EffectiveWeight,
		Outcome:         a.Result.Outcome.String(),
		AssignedAt:      a.AssignedAt,
	}
	if err := client.AppendAssignment(app.Ctx, app.Cfg.Sheets.SpreadsheetID, tab, row); err != nil {
		app.Logger.Warn("Failed to mirror assignment", zap.String("id", a.ID), zap.Error(err))
	}
}
