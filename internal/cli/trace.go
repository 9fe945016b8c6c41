package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/queryir"
	"github.com/team-wildflyer/mapsync/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Pass     string // optional - show one pass
	Layer    string // optional - history of one layer or source id
	Trigger  string
	Op       string
	Failed   bool
	Since    int64
	Limit    int
}

// query builds the mutation filter selected by the history flags, or nil
// when none is set.
func (o *TraceOptions) query() queryir.Query {
	var preds []queryir.Predicate
	if o.Layer != "" {
		preds = append(preds, queryir.Equals{Field: queryir.FieldTargetID, Value: o.Layer})
	}
	if o.Trigger != "" {
		preds = append(preds, queryir.Equals{Field: queryir.FieldTrigger, Value: o.Trigger})
	}
	if o.Op != "" {
		preds = append(preds, queryir.Equals{Field: queryir.FieldOp, Value: o.Op})
	}
	if o.Failed {
		preds = append(preds, queryir.Failed{})
	}
	if o.Since > 0 {
		preds = append(preds, queryir.SeqAtLeast{Seq: o.Since})
	}
	if len(preds) == 0 {
		return nil
	}
	return queryir.Select{Filter: queryir.All(preds...)}
}

// TraceResult holds the journal entries selected by the trace flags.
type TraceResult struct {
	Passes  []ir.PassRecord `json:"passes,omitempty"`
	History []HistoryEvent  `json:"history,omitempty"`
	Stats   TraceStats      `json:"stats"`
}

// HistoryEvent is one mutation of the traced id.
type HistoryEvent struct {
	Seq      int64             `json:"seq"`
	Pass     string            `json:"pass"`
	Trigger  string            `json:"trigger"`
	Mutation ir.MutationRecord `json:"mutation"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	Passes    int `json:"passes"`
	Mutations int `json:"mutations"`
	Failed    int `json:"failed"`
	Aborted   int `json:"aborted"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show journaled sync passes",
		Long: `Read the sync journal.

By default the most recent passes are listed oldest first, each with the
mutations it issued. --pass shows a single pass.

--layer, --trigger, --op, --failed and --since switch to history mode:
every journaled mutation matching all of the given filters is listed in
journal order.

Examples:
  mapsync trace --db ./mapsync.db
  mapsync trace --db ./mapsync.db --limit 5
  mapsync trace --db ./mapsync.db --pass 0190c5e4-...
  mapsync trace --db ./mapsync.db --layer parcels-fill --format json
  mapsync trace --db ./mapsync.db --failed --since 40`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (default: journal from config)")
	cmd.Flags().StringVar(&opts.Pass, "pass", "", "pass token to show")
	cmd.Flags().StringVar(&opts.Layer, "layer", "", "layer or source id to trace")
	cmd.Flags().StringVar(&opts.Trigger, "trigger", "", "only mutations of passes with this trigger")
	cmd.Flags().StringVar(&opts.Op, "op", "", "only mutations with this operation (add_layer, move_layer, ...)")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only mutations the target rejected")
	cmd.Flags().Int64Var(&opts.Since, "since", 0, "only mutations of passes at or after this seq")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of recent passes to list (0 for all)")
	for _, f := range []string{"layer", "trigger", "op", "failed", "since"} {
		cmd.MarkFlagsMutuallyExclusive("pass", f)
	}

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := opts.formatter(cmd)

	journal := opts.Database
	if journal == "" {
		cfg, err := opts.Config()
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		journal = cfg.Journal
	}
	if journal == "" {
		return NewExitError(ExitCommandError, "no journal: pass --db or set journal in the config file")
	}

	st, err := store.Open(journal)
	if err != nil {
		return outputJournalError(formatter, "failed to open journal", err)
	}
	defer st.Close()

	result, err := readTrace(ctx, st, opts)
	if errors.Is(err, store.ErrPassNotFound) {
		_ = formatter.Error(ErrCodeNotFound, fmt.Sprintf("pass not found: %s", opts.Pass), nil)
		return WrapExitError(ExitCommandError, "pass not found", err)
	}
	if err != nil {
		return outputJournalError(formatter, "failed to read journal", err)
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputTraceText(formatter, opts, result)
}

func readTrace(ctx context.Context, st *store.Store, opts *TraceOptions) (TraceResult, error) {
	var result TraceResult

	if q := opts.query(); q != nil {
		history, err := st.FindMutations(ctx, q)
		if err != nil {
			return TraceResult{}, err
		}
		passes := make(map[string]bool)
		for _, h := range history {
			result.History = append(result.History, HistoryEvent{
				Seq:      h.Seq,
				Pass:     h.PassToken,
				Trigger:  h.Trigger,
				Mutation: h.Mutation,
			})
			passes[h.PassToken] = true
			result.Stats.Mutations++
			if h.Mutation.Error != "" {
				result.Stats.Failed++
			}
		}
		result.Stats.Passes = len(passes)
		return result, nil
	}

	switch {
	case opts.Pass != "":
		p, err := st.ReadPass(ctx, opts.Pass)
		if err != nil {
			return TraceResult{}, err
		}
		result.Passes = []ir.PassRecord{p}

	default:
		passes, err := st.ReadPasses(ctx, opts.Limit)
		if err != nil {
			return TraceResult{}, err
		}
		result.Passes = passes
	}

	for _, p := range result.Passes {
		result.Stats.Passes++
		result.Stats.Mutations += len(p.Mutations)
		result.Stats.Failed += len(p.Failed())
		if p.Error != "" {
			result.Stats.Aborted++
		}
	}
	return result, nil
}

func outputTraceText(formatter *OutputFormatter, opts *TraceOptions, result TraceResult) error {
	w := formatter.Writer

	history := opts.query() != nil
	if history {
		if opts.Layer != "" {
			fmt.Fprintf(w, "History of %s\n", opts.Layer)
		} else {
			fmt.Fprintln(w, "Matching mutations")
		}
		fmt.Fprintln(w)
		if len(result.History) == 0 {
			fmt.Fprintln(w, "  (no mutations)")
		}
		for _, h := range result.History {
			fmt.Fprintf(w, "  [%d] %s: %s\n", h.Seq, h.Trigger, formatMutation(h.Mutation))
			if formatter.Verbose {
				fmt.Fprintf(w, "       Pass: %s\n", truncateID(h.Pass))
			}
		}
	} else {
		fmt.Fprintln(w, "=== Passes ===")
		if len(result.Passes) == 0 {
			fmt.Fprintln(w, "  (no passes)")
		}
		for _, p := range result.Passes {
			writePass(w, p, formatter.Verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Passes:    %d\n", result.Stats.Passes)
	fmt.Fprintf(w, "  Mutations: %d\n", result.Stats.Mutations)
	fmt.Fprintf(w, "  Failed:    %d\n", result.Stats.Failed)
	if !history {
		fmt.Fprintf(w, "  Aborted:   %d\n", result.Stats.Aborted)
	}
	return nil
}
