package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/team-wildflyer/mapsync/internal/scene"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                    `json:"valid"`
	Errors []scene.ValidationError `json:"errors,omitempty"`
	Cycles []scene.CycleWarning    `json:"cycles,omitempty"`
	Stats  *SceneStats             `json:"stats,omitempty"`
}

// SceneStats counts what a scene declares.
type SceneStats struct {
	Groups        int `json:"groups"`
	Sources       int `json:"sources"`
	Layers        int `json:"layers"`
	Polygons      int `json:"polygons"`
	FeatureStates int `json:"feature_states"`
}

func statsOf(s *scene.Scene) *SceneStats {
	return &SceneStats{
		Groups:        len(s.Groups),
		Sources:       len(s.Sources),
		Layers:        len(s.Layers),
		Polygons:      len(s.Polygons),
		FeatureStates: len(s.FeatureStates),
	}
}

func (s *SceneStats) String() string {
	return fmt.Sprintf("%d group(s), %d source(s), %d layer(s), %d polygon(s), %d feature state(s)",
		s.Groups, s.Sources, s.Layers, s.Polygons, s.FeatureStates)
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <scene.cue>",
		Short: "Validate a scene without applying it",
		Long: `Compile a CUE scene and check it: group orderings and anchors, source
and group references, duplicate ids, polygon line styles and group cycles.

Every problem is reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := LoadScene(path)
	if err != nil {
		loadErr := loadErrorOf(err)
		if !isCompileFailure(loadErr.Code) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidationErrors(formatter, []scene.ValidationError{{
			Field:   "scene",
			Message: loadErr.Message,
			Code:    loadErr.Code,
			Line:    lineOf(loadErr),
		}}, nil)
	}

	formatter.VerboseLog("Compiled %s: %s", path, statsOf(s))

	cycles := scene.AnalyzeCycles(s.Groups)
	for _, c := range cycles {
		formatter.VerboseLog("Cycle: %s", c.Message)
	}

	if errs := scene.Validate(s); len(errs) > 0 {
		return outputValidationErrors(formatter, errs, cycles)
	}
	return outputValidateSuccess(formatter, s)
}

// isCompileFailure reports whether a load error code describes the scene
// content rather than the file.
func isCompileFailure(code string) bool {
	return code == ErrCodeBuildFailed || code == ErrCodeInvalidField
}

func lineOf(e *LoadError) int {
	if e.Pos.IsValid() {
		return e.Pos.Line()
	}
	return 0
}

func outputValidateSuccess(formatter *OutputFormatter, s *scene.Scene) error {
	stats := statsOf(s)
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Stats: stats})
	}
	fmt.Fprintf(formatter.Writer, "✓ Scene valid: %s\n", stats)
	return nil
}

// outputValidateError reports a command-level error (exit code 2).
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports scene problems (exit code 1).
func outputValidationErrors(formatter *OutputFormatter, errs []scene.ValidationError, cycles []scene.CycleWarning) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		err := formatter.encode(CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Errors: errs,
				Cycles: cycles,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		})
		if err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}
	return exitErr
}
