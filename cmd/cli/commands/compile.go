package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/fairshare/pkg/core/interval"
	"github.com/jakechorley/fairshare/pkg/core/schedule"
	"github.com/jakechorley/fairshare/pkg/feed"
)

// CompileCmd creates the compile command
func CompileCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile the day's schedule from a CSV export or the feed tab",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			feedPath, _ := cmd.Flags().GetString("feed")
			dateText, _ := cmd.Flags().GetString("date")
			publish, _ := cmd.Flags().GetBool("publish")

			date, err := app.ParseDate(dateText)
			if err != nil {
				return err
			}

			app.Logger.Debug("compile command",
				zap.String("feed", feedPath),
				zap.Time("date", date),
				zap.Bool("publish", publish))

			batch, err := loadBatch(app, feedPath, date)
			if err != nil {
				return err
			}

			sched, err := app.Engine.CompileSchedule(app.Ctx, batch, date)
			if err != nil {
				return err
			}

			printSchedule(sched)

			if publish {
				client, err := app.Sheets()
				if err != nil {
					return err
				}
				tab, err := client.PublishSchedule(app.Ctx, app.Cfg.Sheets.SpreadsheetID, app.Cfg.Sheets.ScheduleTab, sched)
				if err != nil {
					return err
				}
				fmt.Printf("Published to tab %q\n\n", tab)
			}

			return nil
		},
	}

	cmd.Flags().String("feed", "", "CSV export to read (defaults to the configured feed tab)")
	cmd.Flags().String("date", "", "Target date YYYY-MM-DD (defaults to today)")
	cmd.Flags().Bool("publish", false, "Publish the compiled schedule to the spreadsheet")

	return cmd
}

// loadBatch reads the batch from a CSV file, or from the feed tab when no file is given
func loadBatch(app *AppContext, feedPath string, date time.Time) (schedule.Batch, error) {
	if feedPath == "" {
		client, err := app.Sheets()
		if err != nil {
			return schedule.Batch{}, err
		}
		if app.Cfg.Sheets.FeedTab == "" {
			return schedule.Batch{}, fmt.Errorf("no --feed given and sheets.feedTab is not configured")
		}
		return client.ReadBatch(app.Ctx, app.Cfg.Sheets.SpreadsheetID, app.Cfg.Sheets.FeedTab, date)
	}

	f, err := os.Open(feedPath)
	if err != nil {
		return schedule.Batch{}, fmt.Errorf("failed to open feed: %w", err)
	}
	defer f.Close()

	raw, err := feed.ReadCSV(f)
	if err != nil {
		return schedule.Batch{}, err
	}
	return feed.ParseBatch(raw, date)
}

func printSchedule(sched *schedule.Schedule) {
	fmt.Printf("\n✓ Schedule compiled for %s\n\n", sched.Date.Format("Mon Jan 02 2006"))

	for _, rt := range sched.ResourceTypes() {
		segments := sched.Segments(rt)
		fmt.Printf("%s (%d segments):\n", rt, len(segments))
		for _, seg := range segments {
			fmt.Printf("  %-24s %s-%s  %s\n",
				seg.DisplayName,
				seg.Window.Start.Format("15:04"),
				seg.Window.End.Format("15:04"),
				seg.Label)
		}
		fmt.Println()
	}

	if gaps := sched.GapSegments(); len(gaps) > 0 {
		fmt.Printf("Gaps:\n")
		for _, g := range gaps {
			fmt.Printf("  %-24s %s-%s  %s\n",
				g.DisplayName,
				g.Window.Start.Format("15:04"),
				g.Window.End.Format("15:04"),
				g.Label)
		}
		fmt.Println()
	}

	if len(sched.Issues) > 0 {
		fmt.Printf("⚠️  Skipped %d records:\n", len(sched.Issues))
		for _, issue := range sched.Issues {
			fmt.Printf("  ✗ #%d %s (%s): %s\n", issue.RecordIndex+1, issue.DisplayName, issue.Activity, issue.Reason)
		}
		fmt.Println()
	}
}

// formatHours renders an hours-on-duty figure as H:MM
func formatHours(hours float64) string {
	return interval.FormatClock(time.Duration(hours * float64(time.Hour)))
}
