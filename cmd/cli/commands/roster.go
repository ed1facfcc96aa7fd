package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/fairshare/pkg/core/capability"
)

// RosterCmd creates the roster command group
func RosterCmd(app *AppContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roster",
		Short: "Inspect or edit the roster",
	}

	cmd.AddCommand(rosterListCmd(app))
	cmd.AddCommand(rosterSetCmd(app))

	return cmd
}

func rosterListCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List roster workers with their baseline skills",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workers := app.Engine.Roster()
			fmt.Printf("\nFound %d workers:\n\n", len(workers))

			for _, w := range workers {
				fmt.Printf("- %s (%s)", w.DisplayName, w.ID)
				if w.Modifier > 0 {
					fmt.Printf(" modifier=%.2f", w.Modifier)
				}
				fmt.Println()

				for _, rt := range app.Catalog.ResourceTypes() {
					row := w.Baseline.Row(app.Catalog, rt)
					cells := make([]string, 0, len(row))
					for _, name := range app.Catalog.CapabilityNames() {
						if v := row[name]; v != capability.Inactive {
							cells = append(cells, fmt.Sprintf("%s=%s", name, v))
						}
					}
					if len(cells) > 0 {
						fmt.Printf("    %-8s %s\n", rt, strings.Join(cells, " "))
					}
				}
			}
			fmt.Println()

			return nil
		},
	}
}

func rosterSetCmd(app *AppContext) *cobra.Command {
	return &cobra.Command{
		Use:   "set <worker> <key> <value>",
		Short: "Set a baseline skill for the session (key: capability, resource type, capability_resource or w)",
		Long: `Set a baseline skill for a roster worker. The edit applies from the next compile
in this process, so use it from an interactive or serve session.

Values are -1 (excluded), 0 (inactive), 1 (active) or w (weighted).`,
		Args: cobra.ExactArgs(3),
		// -1 must reach RunE as a value, not a shorthand flag
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := capability.ParseValue(args[2])
			if err != nil {
				return err
			}

			worker, err := app.Engine.SetRosterValue(args[0], args[1], value)
			if err != nil {
				return err
			}

			app.Logger.Info("Roster edited",
				zap.String("worker", string(worker)),
				zap.String("key", args[1]),
				zap.String("value", value.String()))
			fmt.Printf("\n✓ %s: %s=%s\n\n", worker, args[1], value)

			return nil
		},
	}
}
