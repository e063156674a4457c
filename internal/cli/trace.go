package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/trigsync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database   string
	RunToken   string
	Aggregates bool
}

// TraceEvent is one emitted event with its aggregates.
type TraceEvent struct {
	store.EventRecord
	Aggregates []store.AggregateRecord `json:"aggregates,omitempty"`
}

// TraceResult holds the complete trace output for one run.
type TraceResult struct {
	Run     store.Run             `json:"run"`
	Events  []TraceEvent          `json:"events"`
	Ditches []store.DitchRecord   `json:"ditches"`
	Resyncs []store.ResyncRecord  `json:"resyncs"`
	Dropped []store.DroppedRecord `json:"dropped"`
	Stats   TraceStats            `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Events         int            `json:"events"`
	Ditches        int            `json:"ditches"`
	Resyncs        int            `json:"resyncs"`
	DroppedPackets int            `json:"dropped_packets"`
	ByReason       map[string]int `json:"by_reason"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show what a run recorded",
		Long: `List runs stored in a database, or show one run in detail.

Without --run every stored run is listed. With --run the output includes:
- Events: composite events in emission order
- Ditches: event numbers that left the pool unresolved, with the reason
- Resyncs: forced resynchronizations
- Dropped: final drop counts per packet identifier

--aggregates adds the per-category aggregates published with each event.

Examples:
  trigsync trace --db ./events.db
  trigsync trace --db ./events.db --run 0190a3c2-...
  trigsync trace --db ./events.db --run 0190a3c2-... --aggregates --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.RunToken, "run", "", "run token to show")
	cmd.Flags().BoolVar(&opts.Aggregates, "aggregates", false, "include per-category aggregates")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// store.Open creates missing databases; a trace never should.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.RunToken == "" {
		runs, err := st.ReadRuns(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read runs", err)
		}
		if opts.Format == "json" {
			return formatter.Respond(CLIResponse{Status: "ok", Data: runs})
		}
		writeRunList(cmd.OutOrStdout(), runs)
		return nil
	}

	result, err := buildTrace(ctx, st, opts.RunToken, opts.Aggregates)
	if errors.Is(err, store.ErrNotFound) {
		_ = formatter.Error(ErrCodeRunNotFound, fmt.Sprintf("run not found: %s", opts.RunToken), nil)
		return WrapExitError(ExitFailure, "run not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	if opts.Format == "json" {
		return formatter.Respond(CLIResponse{Status: "ok", Data: result, RunToken: opts.RunToken})
	}
	writeTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

func buildTrace(ctx context.Context, st *store.Store, token string, withAggregates bool) (TraceResult, error) {
	run, err := st.ReadRun(ctx, token)
	if err != nil {
		return TraceResult{}, err
	}
	events, err := st.ReadEvents(ctx, token)
	if err != nil {
		return TraceResult{}, err
	}
	ditches, err := st.ReadDitches(ctx, token)
	if err != nil {
		return TraceResult{}, err
	}
	resyncs, err := st.ReadResyncs(ctx, token)
	if err != nil {
		return TraceResult{}, err
	}
	dropped, err := st.ReadDropped(ctx, token)
	if err != nil {
		return TraceResult{}, err
	}
	byReason, err := st.CountDitches(ctx, token)
	if err != nil {
		return TraceResult{}, err
	}

	result := TraceResult{
		Run:     run,
		Events:  make([]TraceEvent, 0, len(events)),
		Ditches: ditches,
		Resyncs: resyncs,
		Dropped: dropped,
		Stats: TraceStats{
			Events:   len(events),
			Ditches:  len(ditches),
			Resyncs:  len(resyncs),
			ByReason: byReason,
		},
	}
	for _, d := range dropped {
		result.Stats.DroppedPackets += d.Count
	}
	for _, ev := range events {
		te := TraceEvent{EventRecord: ev}
		if withAggregates {
			aggs, err := st.ReadAggregates(ctx, ev.ID)
			if err != nil {
				return TraceResult{}, err
			}
			te.Aggregates = aggs
		}
		result.Events = append(result.Events, te)
	}
	return result, nil
}

func writeRunList(w io.Writer, runs []store.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  run %d  (format %s, sync %s)\n", r.Token, r.RunNumber, r.FormatVersion, r.SyncVersion)
	}
}

func writeTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Run: %s (run number %d)\n", result.Run.Token, result.Run.RunNumber)
	if verbose {
		fmt.Fprintf(w, "Settings: %s\n", result.Run.Settings)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Events ===")
	if len(result.Events) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Events {
		fmt.Fprintf(w, "  [%d] event %d  clock %d  %d packet(s)  %d word(s)\n",
			ev.Seq, ev.EventNumber, ev.ClockBase, ev.PacketCount, ev.Words)
		if verbose {
			fmt.Fprintf(w, "       ID: %s\n", truncateID(ev.ID))
		}
		for _, a := range ev.Aggregates {
			fmt.Fprintf(w, "       %s (%s): %d packet(s)\n", a.Name, a.Category, len(a.Packets))
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Ditches ===")
	if len(result.Ditches) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range result.Ditches {
		fmt.Fprintf(w, "  event %d  %s  %d packet(s)\n", d.EventNumber, d.Reason, d.Packets)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Resyncs ===")
	if len(result.Resyncs) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, r := range result.Resyncs {
		fmt.Fprintf(w, "  cycle %d  %s  ditched %d, %d packet(s)\n", r.Cycle, r.Reason, r.Ditched, r.Packets)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Dropped ===")
	if len(result.Dropped) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range result.Dropped {
		fmt.Fprintf(w, "  packet %d: %d\n", d.PacketID, d.Count)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Events:  %d\n", result.Stats.Events)
	fmt.Fprintf(w, "  Ditches: %d\n", result.Stats.Ditches)
	fmt.Fprintf(w, "  Resyncs: %d\n", result.Stats.Resyncs)
	fmt.Fprintf(w, "  Dropped: %d packet(s)\n", result.Stats.DroppedPackets)
	reasons := make([]string, 0, len(result.Stats.ByReason))
	for r := range result.Stats.ByReason {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "    %s: %d\n", r, result.Stats.ByReason[r])
	}
}

// truncateID shortens a content-addressed ID for display.
func truncateID(id string) string {
	if len(id) > 16 {
		return id[:16] + "..."
	}
	return id
}
