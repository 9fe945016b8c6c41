package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/team-wildflyer/mapsync/internal/engine"
	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/scene"
	"github.com/team-wildflyer/mapsync/internal/store"
	"github.com/team-wildflyer/mapsync/internal/testutil"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Database string

	// Tokens overrides the pass token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	Tokens engine.PassTokenGenerator
}

// PlanResult is the outcome of reconciling a scene onto its base style.
type PlanResult struct {
	Scene     string          `json:"scene"`
	Style     string          `json:"style,omitempty"`
	Layers    []string        `json:"layers"`
	Sources   []string        `json:"sources"`
	Passes    []ir.PassRecord `json:"passes"`
	SyncError string          `json:"sync_error,omitempty"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <scene.cue>",
		Short: "Reconcile a scene against an in-memory target",
		Long: `Apply a scene to an in-memory target seeded with the scene's base
layers, drive it through load and the debounced sync, and print the final
layer order together with every mutation the engine issued.

With --db (or journal in the config file) the passes are also appended to
the sync journal, numbered after the passes already there.

Example:
  mapsync plan ./scene.cue
  mapsync plan ./scene.cue --db ./mapsync.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (optional)")

	return cmd
}

func runPlan(opts *PlanOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	cfg, err := opts.Config()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	logger := opts.Logger(cmd.ErrOrStderr())

	s, err := LoadScene(path)
	if err != nil {
		loadErr := loadErrorOf(err)
		return outputValidateError(formatter, loadErr.Code, loadErr.Error(), nil)
	}
	if errs := scene.Validate(s); len(errs) > 0 {
		return outputValidationErrors(formatter, errs, scene.AnalyzeCycles(s.Groups))
	}

	mem := &engine.MemoryRecorder{}
	recorder := teeRecorder{mem}
	clock := engine.NewClock()

	journal := opts.Database
	if journal == "" {
		journal = cfg.Journal
	}
	if journal != "" {
		logger.Info("opening journal", "path", journal)
		st, err := store.Open(journal)
		if err != nil {
			return outputJournalError(formatter, "failed to open journal", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing journal", "error", closeErr)
			}
		}()
		last, err := st.LastSeq(ctx)
		if err != nil {
			return outputJournalError(formatter, "failed to read journal", err)
		}
		clock = engine.NewClockAt(last)
		recorder = append(recorder, st)
	}

	tokens := opts.Tokens
	if tokens == nil {
		tokens = engine.UUIDv7Generator{}
	}

	tgt := scene.NewTarget(s)
	sched := testutil.NewManualScheduler()
	engineOpts := append(cfg.EngineOptions(),
		engine.WithLogger(logger),
		engine.WithScheduler(sched),
		engine.WithRecorder(recorder),
		engine.WithClock(clock),
		engine.WithPassTokens(tokens),
	)
	eng := engine.New(tgt, engineOpts...)
	defer eng.Dispose()

	if _, err := scene.Apply(eng, s); err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, err.Error(), nil)
	}
	eng.HandleLoad()
	eng.HandleIdle()
	eng.HandleSourceData()
	fired := sched.Flush()
	logger.Debug("plan settled", "timers_fired", fired, "pending", eng.PendingOperations())

	result := PlanResult{
		Scene:   path,
		Style:   tgt.Style(),
		Layers:  tgt.LayerIDs(),
		Sources: tgt.SourceIDs(),
		Passes:  mem.Passes(),
	}
	syncErr := eng.LastSyncError()
	if syncErr != nil {
		result.SyncError = syncErr.Error()
	}

	if err := outputPlan(formatter, result); err != nil {
		return err
	}
	if syncErr != nil {
		return WrapExitError(ExitFailure, "sync pass aborted", syncErr)
	}
	return nil
}

// teeRecorder journals every pass to each recorder in turn.
type teeRecorder []engine.Recorder

// RecordPass implements engine.Recorder.
func (t teeRecorder) RecordPass(ctx context.Context, rec ir.PassRecord) error {
	var errs []error
	for _, r := range t {
		if err := r.RecordPass(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func outputJournalError(formatter *OutputFormatter, message string, err error) error {
	_ = formatter.Error(ErrCodeJournal, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitCommandError, message, err)
}

func outputPlan(formatter *OutputFormatter, result PlanResult) error {
	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if result.SyncError != "" {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodePlanAborted, Message: result.SyncError}
		}
		return formatter.encode(resp)
	}

	w := formatter.Writer
	if result.Style != "" {
		fmt.Fprintf(w, "Plan for %s (style %s)\n", result.Scene, result.Style)
	} else {
		fmt.Fprintf(w, "Plan for %s\n", result.Scene)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Layers ===")
	for i, id := range result.Layers {
		fmt.Fprintf(w, "  %2d %s\n", i, id)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Sources ===")
	if len(result.Sources) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, id := range result.Sources {
		fmt.Fprintf(w, "  %s\n", id)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Passes ===")
	for _, p := range result.Passes {
		writePass(w, p, formatter.Verbose)
	}

	if result.SyncError != "" {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "✗ Sync aborted: %s\n", result.SyncError)
	}
	return nil
}

// writePass prints one journaled pass and its mutations.
func writePass(w io.Writer, p ir.PassRecord, verbose bool) {
	fmt.Fprintf(w, "  [%d] %s: %d mutation(s)", p.Seq, p.Trigger, len(p.Mutations))
	if failed := len(p.Failed()); failed > 0 {
		fmt.Fprintf(w, ", %d failed", failed)
	}
	fmt.Fprintln(w)
	if verbose {
		fmt.Fprintf(w, "       Token: %s\n", truncateID(p.Token))
	}
	if p.Error != "" {
		fmt.Fprintf(w, "       Error: %s\n", p.Error)
	}
	for _, m := range p.Mutations {
		fmt.Fprintf(w, "       %s\n", formatMutation(m))
	}
}

func formatMutation(m ir.MutationRecord) string {
	s := m.Op + " " + m.TargetID
	if m.Before != "" {
		s += " before=" + m.Before
	}
	if m.Error != "" {
		s += " (" + m.Error + ")"
	}
	return s
}

// truncateID shortens a long token for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
