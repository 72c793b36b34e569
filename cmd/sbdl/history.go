package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/sbdl/internal/config"
	"github.com/nao1215/sbdl/internal/database"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is how many runs are listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
// This command shows runs, soundboards and files stored in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past runs and downloaded soundboards",
		Long: `History displays what earlier crawl and scrape runs recorded in the
history database.

Examples:
  # List recent runs
  sbdl history

  # List every soundboard that has been scraped
  sbdl history --soundboards

  # Show the full report of one run
  sbdl history --run 6f1c1b0e-2b8e-4a57-9d4f-0d1f4c1f7a52

  # List the files downloaded for a soundboard
  sbdl history --artifacts https://www.realmofdarkness.net/sb/koth-hank/

  # Output run list as JSON
  sbdl history --json`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	// Selection flags
	cmd.Flags().Bool("runs", false,
		"List recent runs (default)")
	cmd.Flags().BoolP("soundboards", "s", false,
		"List all soundboards in the database")
	cmd.Flags().String("run", "",
		"Show the report of a single run by ID")
	cmd.Flags().String("artifacts", "",
		"List the files downloaded for a soundboard URL")
	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Maximum number of runs to list (0 = all)")

	// Output format flags
	cmd.Flags().Bool("json", false,
		"Output in JSON format")
	cmd.Flags().Bool("markdown", false,
		"Output a run report in Markdown format (with --run)")

	cmd.Flags().String("data-dir", config.XDGDataDir(),
		"Directory holding the history database")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()

	listSoundboards, err := flags.GetBool("soundboards")
	if err != nil {
		return err
	}
	runID, err := flags.GetString("run")
	if err != nil {
		return err
	}
	artifactsURL, err := flags.GetString("artifacts")
	if err != nil {
		return err
	}
	limit, err := flags.GetInt("limit")
	if err != nil {
		return err
	}
	jsonOutput, err := flags.GetBool("json")
	if err != nil {
		return err
	}
	markdownOutput, err := flags.GetBool("markdown")
	if err != nil {
		return err
	}
	dataDir, err := flags.GetString("data-dir")
	if err != nil {
		return err
	}

	// Validate before opening the database.
	if jsonOutput && markdownOutput {
		return config.ErrConflictingReportFormats
	}
	selected := 0
	for _, on := range []bool{listSoundboards, runID != "", artifactsURL != ""} {
		if on {
			selected++
		}
	}
	if selected > 1 {
		return errors.New("--soundboards, --run and --artifacts cannot be used together")
	}

	db, err := database.Open(dataDir, database.DefaultOptions())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	out := cmd.OutOrStdout()

	switch {
	case listSoundboards:
		return listSoundboardHistory(ctx, out, db, jsonOutput)
	case runID != "":
		return showRun(ctx, out, db, runID, jsonOutput, markdownOutput)
	case artifactsURL != "":
		return listArtifactHistory(ctx, out, db, artifactsURL, jsonOutput)
	default:
		return listRunHistory(ctx, out, db, limit, jsonOutput)
	}
}

// listRunHistory lists the most recent runs.
func listRunHistory(ctx context.Context, out io.Writer, db *database.HistoryDB, limit int, jsonOutput bool) error {
	runs, err := db.ListRuns(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, runs)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs found in the database.")
		fmt.Fprintln(out, "\nUse 'sbdl crawl' or 'sbdl scrape <url>' to download soundboards.")
		return nil
	}

	fmt.Fprintf(out, "Recent runs (%d):\n\n", len(runs))
	fmt.Fprintf(out, "  %-36s  %-6s  %-19s  %6s  %6s  %6s  %6s\n",
		"ID", "Cmd", "Started", "Boards", "Got", "Skip", "Fail")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 98))

	for _, r := range runs {
		fmt.Fprintf(out, "  %-36s  %-6s  %-19s  %6d  %6d  %6d  %6d\n",
			r.ID,
			r.Command,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Soundboards,
			r.Downloaded,
			r.Skipped,
			r.Failed,
		)
	}

	fmt.Fprintln(out, "\nUse 'sbdl history --run <id>' to see the full report of a run.")
	return nil
}

// listSoundboardHistory lists every stored soundboard.
func listSoundboardHistory(ctx context.Context, out io.Writer, db *database.HistoryDB, jsonOutput bool) error {
	boards, err := db.ListSoundboards(ctx)
	if err != nil {
		return fmt.Errorf("failed to list soundboards: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, boards)
	}

	if len(boards) == 0 {
		fmt.Fprintln(out, "No soundboards found in the database.")
		return nil
	}

	fmt.Fprintf(out, "Soundboards (%d):\n\n", len(boards))
	for _, b := range boards {
		fmt.Fprintf(out, "  • %s\n", b.DisplayName)
		fmt.Fprintf(out, "    %s\n", b.URL)
		fmt.Fprintf(out, "    %d sounds, %d downloaded by sbdl, last scraped %s\n",
			b.SoundCount, b.Artifacts, b.LastScraped.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(out, "\nUse 'sbdl history --artifacts <url>' to list the files of a soundboard.")

	return nil
}

// listArtifactHistory lists the files recorded for one soundboard.
func listArtifactHistory(ctx context.Context, out io.Writer, db *database.HistoryDB, soundboardURL string, jsonOutput bool) error {
	artifacts, err := db.ListArtifacts(ctx, soundboardURL)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}

	if jsonOutput {
		return writeJSON(out, artifacts)
	}

	if len(artifacts) == 0 {
		fmt.Fprintf(out, "No downloaded files recorded for %s\n", soundboardURL)
		return nil
	}

	fmt.Fprintf(out, "Files for %s (%d):\n\n", soundboardURL, len(artifacts))
	for _, a := range artifacts {
		fmt.Fprintf(out, "  %-40s  %10d  %s\n", a.Path, a.Size, shortChecksum(a.Checksum))
	}
	return nil
}

// showRun writes the stored report of a single run.
func showRun(ctx context.Context, out io.Writer, db *database.HistoryDB, id string, jsonOutput, markdownOutput bool) error {
	summary, err := db.GetRun(ctx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return fmt.Errorf("no run with ID %s (use 'sbdl history' to list runs)", id)
		}
		return err
	}

	cfg := &config.Config{JSONReport: jsonOutput, MarkdownReport: markdownOutput, Verbose: true}
	_, err = newReportWriter(cfg, out).Write(summary)
	return err
}

// writeJSON writes v as indented JSON.
func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// shortChecksum abbreviates a hex digest for display.
func shortChecksum(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}
