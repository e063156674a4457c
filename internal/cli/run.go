package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/trigsync/internal/config"
	"github.com/roach88/trigsync/internal/daq"
	"github.com/roach88/trigsync/internal/engine"
	"github.com/roach88/trigsync/internal/source"
	"github.com/roach88/trigsync/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Config   string

	// Tokens overrides the run token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Tokens engine.TokenGenerator

	// IdleWait overrides the pause between cycles that made no progress.
	IdleWait time.Duration
}

// RunSummary is the outcome of one run.
type RunSummary struct {
	RunToken    string       `json:"run_token"`
	RunNumber   int          `json:"run_number"`
	Stats       engine.Stats `json:"stats"`
	Dropped     map[int]int  `json:"dropped"`
	Interrupted bool         `json:"interrupted"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <feed.yaml>",
		Short: "Synchronize a recorded feed into the event store",
		Long: `Drive the synchronizer over the streams described by a feed file.

Every source in the feed is registered in its category and the source marked
reference becomes the timing reference. Composite events, per-category
aggregates, ditches and resynchronizations are written to a SQLite database
(created if it doesn't exist). The run ends when every source is drained, on
a fatal startup error, or on SIGINT/SIGTERM.

Configuration is read from --config (YAML or CUE) and then from TRIGSYNC_*
environment variables.

Example:
  trigsync run --db ./events.db ./feed.yaml
  trigsync run --db ./events.db --config ./config.yaml ./feed.yaml --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to configuration file (.yaml, .yml or .cue)")

	return cmd
}

func runEngine(opts *RunOptions, feedPath string, cmd *cobra.Command) error {
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := config.Load(opts.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	settings, err := cfg.Settings()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}

	feed, err := source.LoadFeed(feedPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load feed", err)
	}
	logger.Info("feed loaded", "path", feedPath, "sources", len(feed.Sources))

	logger.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	tokens := opts.Tokens
	if tokens == nil {
		tokens = engine.UUIDv7Generator{}
	}
	sink := store.NewSink(st, logger)
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithTokens(tokens),
		engine.WithObserver(sink),
	}
	if opts.IdleWait > 0 {
		engineOpts = append(engineOpts, engine.WithIdleWait(opts.IdleWait))
	}
	eng, err := engine.New(settings, sink, engineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}
	if err := registerFeed(eng, feed); err != nil {
		return WrapExitError(ExitCommandError, "failed to register sources", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	if err := st.WriteRun(ctx, eng.RunToken(), eng.RunNumber(), cfg.Map()); err != nil {
		return WrapExitError(ExitCommandError, "failed to record run", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := eng.Run(ctx)
	interrupted := errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded)
	if interrupted {
		runErr = nil
	}

	// ctx may be cancelled by now; the final counts are written regardless.
	dropped := eng.DroppedPackets()
	if err := st.WriteDropped(context.Background(), eng.RunToken(), dropped); err != nil {
		return WrapExitError(ExitCommandError, "failed to record dropped packets", err)
	}

	if runErr != nil {
		var re *engine.RuntimeError
		if errors.As(runErr, &re) {
			_ = formatter.Error(ErrCodeFatal, re.Message, map[string]string{
				"code":      string(re.Code),
				"run_token": eng.RunToken(),
			})
		}
		return WrapExitError(ExitFailure, "engine error", runErr)
	}

	summary := RunSummary{
		RunToken:    eng.RunToken(),
		RunNumber:   eng.RunNumber(),
		Stats:       eng.Stats(),
		Dropped:     dropped,
		Interrupted: interrupted,
	}
	if opts.Format == "json" {
		return formatter.Respond(CLIResponse{Status: "ok", Data: summary, RunToken: summary.RunToken})
	}
	writeRunSummary(cmd.OutOrStdout(), summary)
	return nil
}

// registerFeed registers every feed source in feed order and designates the
// reference.
func registerFeed(eng *engine.Engine, feed *source.Feed) error {
	sources, _ := feed.BuildAll()
	for _, spec := range feed.Sources {
		name := daq.NormalizeName(spec.Name)
		h, err := eng.Register(sources[name], spec.ParsedCategory())
		if err != nil {
			return fmt.Errorf("source %s: %w", name, err)
		}
		if spec.Reference {
			if err := eng.SetReference(h); err != nil {
				return fmt.Errorf("source %s: %w", name, err)
			}
		}
	}
	return nil
}

func writeRunSummary(w io.Writer, s RunSummary) {
	status := "completed"
	if s.Interrupted {
		status = "interrupted"
	}
	fmt.Fprintf(w, "Run %s (run number %d) %s\n", s.RunToken, s.RunNumber, status)
	fmt.Fprintf(w, "  Cycles:  %d\n", s.Stats.Cycles)
	fmt.Fprintf(w, "  Emitted: %d\n", s.Stats.Emitted)
	fmt.Fprintf(w, "  Ditched: %d\n", s.Stats.Ditched)
	fmt.Fprintf(w, "  Late:    %d\n", s.Stats.Late)
	fmt.Fprintf(w, "  Resyncs: %d\n", s.Stats.Resyncs)
	fmt.Fprintf(w, "  Dropped: %d packet(s)\n", s.Stats.DroppedPackets)

	reasons := make([]string, 0, len(s.Stats.ByReason))
	for r := range s.Stats.ByReason {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Fprintf(w, "    %s: %d\n", r, s.Stats.ByReason[engine.DitchReason(r)])
	}
}
