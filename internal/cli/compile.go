package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/team-wildflyer/mapsync/internal/ir"
	"github.com/team-wildflyer/mapsync/internal/scene"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult is the compiled scene together with its fingerprint.
type CompilationResult struct {
	Scene       *scene.Scene `json:"scene"`
	Fingerprint string       `json:"fingerprint"`
	Stats       *SceneStats  `json:"stats"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <scene.cue>",
		Short: "Compile a scene to canonical JSON",
		Long: `Compile and validate a CUE scene and print it as canonical JSON.

Two scenes with the same canonical form have the same fingerprint, whatever
their CUE layout.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, path string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	s, err := LoadScene(path)
	if err != nil {
		loadErr := loadErrorOf(err)
		return outputValidateError(formatter, loadErr.Code, loadErr.Error(), nil)
	}
	if errs := scene.Validate(s); len(errs) > 0 {
		return outputValidationErrors(formatter, errs, scene.AnalyzeCycles(s.Groups))
	}

	data, err := ir.MarshalCanonical(s)
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, fmt.Sprintf("encoding scene: %v", err), nil)
	}
	fingerprint, err := ir.Fingerprint(ir.DomainScene, s)
	if err != nil {
		return outputValidateError(formatter, ErrCodeGeneric, fmt.Sprintf("fingerprinting scene: %v", err), nil)
	}
	formatter.VerboseLog("Scene %s fingerprint %s", path, fingerprint)

	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, data, 0o644); err != nil {
			return outputValidateError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(CompilationResult{
			Scene:       s,
			Fingerprint: fingerprint,
			Stats:       statsOf(s),
		})
	}
	if opts.Output != "" {
		fmt.Fprintf(formatter.Writer, "✓ Compiled %s to %s (%s)\n", path, opts.Output, statsOf(s))
		return nil
	}
	fmt.Fprintln(formatter.Writer, string(data))
	return nil
}
