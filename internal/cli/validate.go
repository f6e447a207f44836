package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/veil/internal/compiler"
	"github.com/roach88/veil/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Rules  int                        `json:"rules"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <rules.cue|rules-dir>",
		Short: "Validate a rule set",
		Long: `Compile a CUE rule set against the rule-set schema and check it
without registering anything.

Reports every problem found: malformed paths, duplicate paths, unknown
kinds, unknown actions or bad action arguments, and invalid settings.

Exit codes:
  0 - Rule set is valid
  1 - Rule set failed to compile or validate
  2 - Command error (path not found, etc.)

Examples:
  veil validate ./rules.cue
  veil validate ./rules --format json`,
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
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	rs, errs, err := ValidatePath(path)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, "cannot read rule set", err)
	}
	if len(errs) > 0 {
		return outputValidationErrors(formatter, errs)
	}

	formatter.VerboseLog("Compiled %d rule(s) from %s", len(rs.Rules), path)
	for _, r := range rs.Rules {
		formatter.VerboseLog("  %s", r.Path)
	}

	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Rules: len(rs.Rules)})
	}
	fmt.Fprintf(formatter.Writer, "✓ All rules valid (%d)\n", len(rs.Rules))
	return nil
}

// ValidatePath compiles the rule set at path (a CUE file or a directory
// holding one CUE package) and validates it.
//
// A non-nil error means path could not be read at all. Compile errors are
// reported as validation errors so callers can present them uniformly.
func ValidatePath(path string) (*ir.RuleSet, []compiler.ValidationError, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}

	var rs *ir.RuleSet
	if info.IsDir() {
		rs, err = compiler.CompileDir(path)
	} else {
		rs, err = compiler.CompileFile(path)
	}
	if err != nil {
		return nil, []compiler.ValidationError{compileErrorToValidation(err)}, nil
	}

	return rs, compiler.Validate(rs), nil
}

func compileErrorToValidation(err error) compiler.ValidationError {
	var cErr *compiler.CompileError
	if errors.As(err, &cErr) {
		line := 0
		if cErr.Pos.IsValid() {
			line = cErr.Pos.Line()
		}
		return compiler.ValidationError{
			Field:   cErr.Field,
			Message: cErr.Message,
			Code:    ErrCodeCompile,
			Line:    line,
		}
	}
	return compiler.ValidationError{
		Field:   "rule_set",
		Message: err.Error(),
		Code:    ErrCodeCompile,
	}
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))

	if formatter.Format == "json" {
		err := formatter.Response(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		})
		if err != nil {
			return err
		}
		return failure
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return failure
}
