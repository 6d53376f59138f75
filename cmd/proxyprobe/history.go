package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/nao1215/proxyprobe/internal/config"
	"github.com/nao1215/proxyprobe/internal/database"
	"github.com/nao1215/proxyprobe/internal/model"
	"github.com/nao1215/proxyprobe/internal/report"
	"github.com/spf13/cobra"
)

// defaultHistoryLimit is the number of runs listed by default.
const defaultHistoryLimit = 20

// errNotEnoughRuns is returned when a comparison needs two runs but the
// history holds fewer.
var errNotEnoughRuns = errors.New("at least two runs are required for comparison (run 'proxyprobe probe' again)")

// NewHistoryCmd creates the history command.
// This command lists, shows and compares runs stored in the database.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List, show and compare stored probe runs",
		Long: `History works with the runs stored by 'proxyprobe probe'.

Without flags it lists the most recent runs. Servers are matched across runs
by a fingerprint of protocol, credentials, host and port, so a renamed or
re-encoded share link still counts as the same server.

Examples:
  # List the last 20 runs
  proxyprobe history

  # Show the full report of run 7
  proxyprobe history --show 7

  # Which servers came up or went down since the previous run?
  proxyprobe history --compare

  # Compare two specific runs
  proxyprobe history --compare --old 3 --new 7

  # Output in JSON format
  proxyprobe history --compare --json`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "n", defaultHistoryLimit,
		"Number of runs to list (0 lists all)")
	cmd.Flags().Int64P("show", "s", 0,
		"Show the report of the run with this ID")
	cmd.Flags().Bool("compare", false,
		"Compare two runs (default: the latest two)")
	cmd.Flags().Int64("old", 0,
		"Older run ID for --compare")
	cmd.Flags().Int64("new", 0,
		"Newer run ID for --compare")
	cmd.Flags().BoolP("json", "j", false,
		"Output in JSON format")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output --show reports in Markdown format")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	return cmd
}

// historyOptions holds the parsed history flags.
type historyOptions struct {
	limit    int
	show     int64
	compare  bool
	oldID    int64
	newID    int64
	asJSON   bool
	markdown bool
	dbDir    string
}

func parseHistoryOptions(cmd *cobra.Command) (*historyOptions, error) {
	flags := cmd.Flags()
	opts := &historyOptions{}

	var err error
	if opts.limit, err = flags.GetInt("limit"); err != nil {
		return nil, err
	}
	if opts.show, err = flags.GetInt64("show"); err != nil {
		return nil, err
	}
	if opts.compare, err = flags.GetBool("compare"); err != nil {
		return nil, err
	}
	if opts.oldID, err = flags.GetInt64("old"); err != nil {
		return nil, err
	}
	if opts.newID, err = flags.GetInt64("new"); err != nil {
		return nil, err
	}
	if opts.asJSON, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if opts.markdown, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if opts.dbDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}

	if opts.asJSON && opts.markdown {
		return nil, config.ErrConflictingReportFormats
	}
	if opts.show != 0 && opts.compare {
		return nil, errors.New("--show and --compare cannot be used together")
	}
	if (opts.oldID != 0 || opts.newID != 0) && !opts.compare {
		return nil, errors.New("--old and --new require --compare")
	}
	if (opts.oldID == 0) != (opts.newID == 0) {
		return nil, errors.New("--old and --new must be given together")
	}
	if opts.dbDir == "" {
		opts.dbDir = config.XDGDataDir()
	}
	return opts, nil
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	opts, err := parseHistoryOptions(cmd)
	if err != nil {
		return err
	}

	dbOpts := database.DefaultOptions()
	dbOpts.CreateIfNotExists = false
	db, err := database.Open(opts.dbDir, dbOpts)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	switch {
	case opts.show != 0:
		return showRun(ctx, db, opts, out)
	case opts.compare:
		return compareRuns(ctx, db, opts, out)
	default:
		return listRuns(ctx, db, opts, out)
	}
}

// listRuns prints the most recent runs.
func listRuns(ctx context.Context, db *database.ResultDB, opts *historyOptions, out io.Writer) error {
	runs, err := db.ListRuns(ctx, opts.limit)
	if err != nil {
		return err
	}

	if opts.asJSON {
		type runJSON struct {
			ID          int64     `json:"id"`
			StartedAt   time.Time `json:"started_at"`
			DurationMS  int64     `json:"duration_ms"`
			Concurrency int       `json:"concurrency"`
			TimeoutMS   int64     `json:"timeout_ms"`
			Total       int       `json:"total"`
			Alive       int       `json:"alive"`
			Dead        int       `json:"dead"`
		}
		list := make([]runJSON, len(runs))
		for i, r := range runs {
			list[i] = runJSON{
				ID:          r.ID,
				StartedAt:   r.StartedAt,
				DurationMS:  r.Duration.Milliseconds(),
				Concurrency: r.Concurrency,
				TimeoutMS:   r.Timeout.Milliseconds(),
				Total:       r.Total,
				Alive:       r.Alive,
				Dead:        r.Dead(),
			}
		}
		return writeJSON(out, list)
	}

	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tTOTAL\tALIVE\tDEAD")
	for _, r := range runs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d\t%d\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Duration.Round(time.Millisecond),
			r.Total, r.Alive, r.Dead(),
		)
	}
	return tw.Flush()
}

// showRun writes the stored report of one run.
func showRun(ctx context.Context, db *database.ResultDB, opts *historyOptions, out io.Writer) error {
	batch, err := db.GetRun(ctx, opts.show)
	if err != nil {
		return err
	}

	var w report.Writer
	switch {
	case opts.asJSON:
		w = report.NewFullJSONWriter(out, getVersion(), report.WithPrettyPrint())
	case opts.markdown:
		w = report.NewMarkdownWriter(out, report.WithVerbose(true))
	default:
		w = report.NewSimpleWriter(out, report.WithVerbose(true))
	}
	_, err = w.Write(batch)
	return err
}

// compareRuns prints which servers came up or went down between two runs.
func compareRuns(ctx context.Context, db *database.ResultDB, opts *historyOptions, out io.Writer) error {
	oldID, newID := opts.oldID, opts.newID
	if oldID == 0 {
		runs, err := db.ListRuns(ctx, 2)
		if err != nil {
			return err
		}
		if len(runs) < 2 {
			return errNotEnoughRuns
		}
		newID, oldID = runs[0].ID, runs[1].ID
	}

	diff, err := db.CompareRuns(ctx, oldID, newID)
	if err != nil {
		return err
	}

	if opts.asJSON {
		return writeJSON(out, struct {
			OldRunID   int64                `json:"old_run_id"`
			NewRunID   int64                `json:"new_run_id"`
			NewlyAlive []*model.ProbeResult `json:"newly_alive"`
			NewlyDead  []*model.ProbeResult `json:"newly_dead"`
			StillAlive int                  `json:"still_alive"`
		}{
			OldRunID:   diff.OldRunID,
			NewRunID:   diff.NewRunID,
			NewlyAlive: nonNil(diff.NewlyAlive),
			NewlyDead:  nonNil(diff.NewlyDead),
			StillAlive: diff.StillAlive,
		})
	}

	fmt.Fprintf(out, "Comparing run #%d -> run #%d\n\n", diff.OldRunID, diff.NewRunID)

	fmt.Fprintf(out, "Newly alive (%d):\n", len(diff.NewlyAlive))
	for _, r := range diff.NewlyAlive {
		fmt.Fprintf(out, "  + %-6s %6s  %s\n", r.Protocol.DisplayName(), formatPing(r), r.Link)
	}
	fmt.Fprintf(out, "\nNewly dead (%d):\n", len(diff.NewlyDead))
	for _, r := range diff.NewlyDead {
		fmt.Fprintf(out, "  - %-6s %s\n", r.Protocol.DisplayName(), r.Link)
	}
	fmt.Fprintf(out, "\nStill alive: %d\n", diff.StillAlive)
	return nil
}

func nonNil(results []*model.ProbeResult) []*model.ProbeResult {
	if results == nil {
		return []*model.ProbeResult{}
	}
	return results
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
