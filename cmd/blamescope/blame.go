package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/blamescope/blamescope/internal/blame"
	"github.com/blamescope/blamescope/internal/cache"
	"github.com/blamescope/blamescope/internal/gitexec"
	"github.com/blamescope/blamescope/internal/output"
	"github.com/blamescope/blamescope/internal/resolve"
)

var blameCmd = &cobra.Command{
	Use:   "blame [file]",
	Short: "Show per-line attribution for a file",
	Long: `Show which commit, author, and summary last touched each line of a
file, grouped into contiguous hunks.

Examples:
  # Blame the working copy of a file
  blamescope blame src/auth.go

  # Blame the file as it was at a revision (follows renames)
  blamescope blame src/auth.go --rev v1.2.0

  # Full attribution of a single line
  blamescope blame src/auth.go --line 42

  # Output as JSON
  blamescope blame --format=json src/auth.go`,
	Args: cobra.ExactArgs(1),
	RunE: runBlame,
}

func init() {
	blameCmd.Flags().String("rev", "", "Revision to blame (default: working copy)")
	blameCmd.Flags().IntP("line", "l", 0, "Show full attribution for one line")
	blameCmd.Flags().String("format", "", "Output format: table, json, csv")
	blameCmd.Flags().Bool("stats", false, "Print cache statistics after the result")
}

func runBlame(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Git.Timeout)
	defer cancel()

	path := args[0]
	revision, _ := cmd.Flags().GetString("rev")
	line, _ := cmd.Flags().GetInt("line")
	format, _ := cmd.Flags().GetString("format")
	showStats, _ := cmd.Flags().GetBool("stats")

	if format == "" {
		format = cfg.Output.Format
	}
	if format != "table" && format != "json" && format != "csv" {
		return fmt.Errorf("invalid format %q, must be: table, json, or csv", format)
	}

	engine, _, err := buildEngine(ctx)
	if err != nil {
		return err
	}

	records, err := engine.GetAttribution(ctx, path, revision, nil)
	if err != nil {
		return err
	}

	formatter := output.NewBlameFormatter(format)
	if line > 0 {
		rec, ok := recordForLine(records, line)
		if !ok {
			return fmt.Errorf("no attribution for line %d of %s", line, path)
		}
		if err := formatter.FormatLine(os.Stdout, rec); err != nil {
			return err
		}
	} else {
		hunks := blame.GroupHunks(records)
		if err := formatter.FormatHunks(os.Stdout, path, revision, hunks); err != nil {
			return err
		}
	}

	if showStats {
		fmt.Fprintln(os.Stdout)
		return formatter.FormatStats(os.Stdout, engine.CacheStats())
	}
	return nil
}

// buildEngine wires the gateway, resolver, and cache for the current
// working directory, failing early when it is not inside a repository.
// The gateway is returned alongside the engine so callers needing raw
// git access share the one runner.
func buildEngine(ctx context.Context) (*cache.Engine, *gitexec.Gateway, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}

	gateway := gitexec.NewGateway(cfg.Git.Binary, wd, cfg.Prewarm.RatePerSecond, cfg.Prewarm.Burst, logger)
	if err := gitexec.IsRepository(ctx, gateway); err != nil {
		return nil, nil, err
	}

	resolver := resolve.NewResolver(gateway, logger)
	engine := cache.NewEngine(cache.Config{
		AttributionCapacity: cfg.Cache.AttributionCapacity,
		ContentCapacity:     cfg.Cache.ContentCapacity,
		RepoPath:            wd,
	}, gateway, resolver, logger)
	return engine, gateway, nil
}

func recordForLine(records []blame.LineAttribution, line int) (blame.LineAttribution, bool) {
	for _, r := range records {
		if r.FinalLine == line {
			return r, true
		}
	}
	return blame.LineAttribution{}, false
}
