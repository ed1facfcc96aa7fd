package commands

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// InteractiveCmd creates the interactive command. The engine, and with it the ledger,
// the compiled schedule and any roster edits, lives for the whole session.
func InteractiveCmd(app *AppContext, in io.Reader) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Start an interactive session (load once, run multiple commands)",
		Long: `Start an interactive session where you can run multiple commands against the same
in-memory schedule, ledger and roster. The session runs until you type 'exit' or 'quit'.

Type 'help' to see available commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("\n🚀 Starting interactive session...")
			fmt.Println("Type 'help' for available commands, 'exit' or 'quit' to leave")

			root := cmd.Root()
			scanner := bufio.NewScanner(in)

			for {
				fmt.Print("> ")

				if !scanner.Scan() {
					break
				}

				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}

				parts, err := parseCommandLine(line)
				if err != nil {
					fmt.Printf("❌ Error parsing command: %v\n\n", err)
					continue
				}
				if len(parts) == 0 {
					continue
				}

				switch parts[0] {
				case "exit", "quit":
					fmt.Println("👋 Goodbye!")
					return nil
				case "help":
					printInteractiveHelp(root)
					continue
				}

				if err := runLine(root, parts); err != nil {
					fmt.Printf("❌ Error: %v\n\n", err)
				}
			}

			if err := scanner.Err(); err != nil {
				return fmt.Errorf("error reading input: %w", err)
			}

			return nil
		},
	}
}

// runLine executes the command named by parts directly, bypassing Execute so that
// PersistentPreRunE does not rebuild the application
func runLine(root *cobra.Command, parts []string) error {
	target, rest, err := root.Find(parts)
	if err != nil || target == root || !interactiveAllowed(target) {
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", strings.Join(parts, " "))
	}

	target.Flags().VisitAll(func(flag *pflag.Flag) {
		flag.Changed = false
		flag.Value.Set(flag.DefValue)
	})

	args := rest
	if !target.DisableFlagParsing {
		if err := target.ParseFlags(rest); err != nil {
			return fmt.Errorf("failed to parse flags: %w", err)
		}
		args = target.Flags().Args()
	}

	if target.Args != nil {
		if err := target.Args(target, args); err != nil {
			return err
		}
	}

	switch {
	case target.RunE != nil:
		return target.RunE(target, args)
	case target.Run != nil:
		target.Run(target, args)
		return nil
	default:
		return target.Help()
	}
}

func interactiveAllowed(cmd *cobra.Command) bool {
	switch cmd.Name() {
	case "interactive", "completion", "help":
		return false
	}
	return true
}

// leafCommands returns every runnable command below root, keyed by its full path
func leafCommands(root *cobra.Command) map[string]*cobra.Command {
	commands := make(map[string]*cobra.Command)
	var walk func(cmd *cobra.Command)
	walk = func(cmd *cobra.Command) {
		for _, sub := range cmd.Commands() {
			if !interactiveAllowed(sub) {
				continue
			}
			if sub.Runnable() {
				path := strings.TrimPrefix(sub.CommandPath(), root.Name()+" ")
				commands[path] = sub
			}
			walk(sub)
		}
	}
	walk(root)
	return commands
}

func printInteractiveHelp(root *cobra.Command) {
	fmt.Println("\nAvailable commands:")

	commands := leafCommands(root)
	paths := make([]string, 0, len(commands))
	for path := range commands {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	for _, path := range paths {
		cmd := commands[path]
		use := strings.TrimSuffix(path, cmd.Name()) + cmd.Use
		fmt.Printf("  %-50s %s\n", use, cmd.Short)
	}

	fmt.Println("\n  help                                               Show this help message")
	fmt.Println("  exit, quit                                         Exit the interactive session")
}

// parseCommandLine splits a command line into arguments, respecting single and double quotes
func parseCommandLine(line string) ([]string, error) {
	var args []string
	var current strings.Builder
	var inQuote rune
	quoted := false

	for _, r := range line {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			} else {
				current.WriteRune(r)
			}
		case r == '"' || r == '\'':
			inQuote = r
			quoted = true
		case unicode.IsSpace(r):
			if current.Len() > 0 || quoted {
				args = append(args, current.String())
				current.Reset()
				quoted = false
			}
		default:
			current.WriteRune(r)
		}
	}

	if inQuote != 0 {
		return nil, fmt.Errorf("unclosed quote: %c", inQuote)
	}
	if current.Len() > 0 || quoted {
		args = append(args, current.String())
	}

	return args, nil
}
