package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blamescope/blamescope/internal/blamerr"
	"github.com/blamescope/blamescope/internal/output"
	"github.com/blamescope/blamescope/internal/session"
)

var logCmd = &cobra.Command{
	Use:   "log [file]",
	Short: "Walk the history of one line backwards through its commits",
	Long: `Starting from a line in the working copy, repeatedly drill into the
commit before the one that last touched it, printing the attribution at
each step. This follows the line through renames and stops at the root
commit.

Examples:
  # Walk line 42 of a file back through history
  blamescope log src/auth.go --line 42

  # Limit the walk to 5 steps
  blamescope log src/auth.go --line 42 --max 5`,
	Args: cobra.ExactArgs(1),
	RunE: runLog,
}

func init() {
	logCmd.Flags().IntP("line", "l", 1, "Line to walk backwards")
	logCmd.Flags().Int("max", 10, "Maximum number of steps")
	logCmd.Flags().String("format", "", "Output format: table, json")
}

func runLog(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Git.Timeout)
	defer cancel()

	path := args[0]
	line, _ := cmd.Flags().GetInt("line")
	maxSteps, _ := cmd.Flags().GetInt("max")
	format, _ := cmd.Flags().GetString("format")
	if format == "" {
		format = cfg.Output.Format
	}

	engine, gateway, err := buildEngine(ctx)
	if err != nil {
		return err
	}

	sess, err := session.New(ctx, path, line, engine, gateway, logger)
	if err != nil {
		return err
	}

	formatter := output.NewBlameFormatter(format)
	cursorLine := line
	for step := 0; step < maxSteps; step++ {
		_, records := sess.Current()
		rec, ok := recordForLine(records, cursorLine)
		if !ok {
			break
		}
		if err := formatter.FormatLine(os.Stdout, rec); err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout)

		if err := sess.VisitParent(ctx, cursorLine); err != nil {
			if blamerr.IsKind(err, blamerr.KindNavigationBoundary) {
				break
			}
			// A path that never existed before its first commit ends
			// the walk rather than failing it.
			if blamerr.IsKind(err, blamerr.KindPathNotFound) {
				break
			}
			return err
		}
		cursorLine = rec.OrigLine
	}
	return nil
}
