package cli

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/veil/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run every scenario in a directory through the harness.

A scenario passes when its step expectations and assertions hold and,
if <scenarios-dir>/golden/<name>.golden exists, its trace matches the
golden snapshot byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  veil test ./scenarios
  veil test ./scenarios --filter "guard_*"
  veil test ./scenarios --update
  veil test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return formatter.fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenarios directory not found: %s", scenariosDir), nil)
	}

	log, err := opts.Logger(cmd)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "failed to configure logging", err)
	}
	defer func() { _ = log.Close() }()
	cfg, err := opts.EngineConfig()
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "failed to load config", err)
	}

	scenarioFiles, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeGeneric, "failed to find scenarios", err)
	}

	result := TestResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}

	if len(scenarioFiles) == 0 {
		if opts.Format == "json" {
			return formatter.Response(CLIResponse{Status: "ok", Data: result})
		}
		fmt.Fprintln(formatter.Writer, "No scenarios found.")
		return nil
	}

	runner := &scenarioRunner{
		opts:      opts,
		formatter: formatter,
		runOpts:   []harness.Option{harness.WithLogger(log), harness.WithBaseConfig(cfg)},
	}
	for _, scenarioFile := range scenarioFiles {
		scenResult := runner.run(scenarioFile)
		result.Scenarios = append(result.Scenarios, scenResult)

		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	if opts.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(formatter, result)
}

// findScenarioFiles finds all YAML scenario files under dir, skipping the
// golden directory.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if d.Name() == "golden" && path != dir {
				return filepath.SkipDir
			}
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

type scenarioRunner struct {
	opts      *TestOptions
	formatter *OutputFormatter
	runOpts   []harness.Option
}

// run executes a single scenario and returns the result.
func (r *scenarioRunner) run(scenarioFile string) ScenarioResult {
	name := strings.TrimSuffix(filepath.Base(scenarioFile), filepath.Ext(scenarioFile))

	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return r.report(ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)}})
	}
	name = scenario.Name

	result, err := harness.Run(scenario, r.runOpts...)
	if err != nil {
		return r.report(ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("execution failed: %v", err)}})
	}

	snapshot, err := harness.MarshalSnapshot(scenario.Name, result)
	if err != nil {
		return r.report(ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("failed to marshal trace: %v", err)}})
	}

	goldenPath := goldenFilePath(scenarioFile)
	if r.opts.Update {
		if err := writeGolden(goldenPath, snapshot); err != nil {
			return r.report(ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("failed to update golden file: %v", err)}})
		}
		r.formatter.VerboseLog("updated %s", goldenPath)
	} else if golden, err := os.ReadFile(goldenPath); err == nil {
		if !bytes.Equal(golden, snapshot) {
			errs := append([]string{"trace does not match golden file (run with --update to regenerate)"}, result.Errors...)
			return r.report(ScenarioResult{Name: name, Errors: errs})
		}
	} else if !os.IsNotExist(err) {
		return r.report(ScenarioResult{Name: name, Errors: []string{fmt.Sprintf("failed to read golden file: %v", err)}})
	}

	return r.report(ScenarioResult{Name: name, Pass: result.Pass, Errors: result.Errors})
}

// report prints one scenario line in text mode and returns res unchanged.
func (r *scenarioRunner) report(res ScenarioResult) ScenarioResult {
	if r.opts.Format == "json" {
		return res
	}
	w := r.formatter.Writer
	switch {
	case res.Pass && r.opts.Update:
		fmt.Fprintf(w, "✓ %s (golden updated)\n", res.Name)
	case res.Pass:
		fmt.Fprintf(w, "✓ %s\n", res.Name)
	default:
		fmt.Fprintf(w, "✗ %s\n", res.Name)
		for _, e := range res.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	return res
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(scenarioFile string) string {
	dir := filepath.Dir(scenarioFile)
	base := filepath.Base(scenarioFile)
	name := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, "golden", name+".golden")
}

func writeGolden(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(formatter *OutputFormatter, result TestResult) error {
	response := CLIResponse{
		Status: "ok",
		Data:   result,
	}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    ErrCodeTestFailed,
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	if err := formatter.Response(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test summary as text.
func outputTestText(formatter *OutputFormatter, result TestResult) error {
	w := formatter.Writer

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

