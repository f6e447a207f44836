package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/veil/internal/engine"
	"github.com/roach88/veil/internal/harness"
	"github.com/roach88/veil/internal/ir"
	"github.com/roach88/veil/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Session  string

	// SessionGenerator names the session when the run is journaled to a
	// database and neither the flag nor the scenario names one. Defaults to
	// UUIDv7Generator; tests override it.
	SessionGenerator engine.IDGenerator
}

// RunResult is the outcome of one scenario run.
type RunResult struct {
	Name    string     `json:"name"`
	Session string     `json:"session"`
	Pass    bool       `json:"pass"`
	Events  int        `json:"events"`
	Errors  []string   `json:"errors,omitempty"`
	Trace   []ir.Event `json:"trace,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run one scenario against the engine",
		Long: `Build the scenario's namespace, register its rules, drive its steps
through the engine and evaluate its assertions.

With --db the journal is written to a SQLite database so it can be read
back later with "veil trace". Without it the journal lives in memory.

Examples:
  veil run ./scenarios/random_clamp.yaml
  veil run ./scenarios/guard_redefine.yaml --db ./veil.db --session s1
  veil run ./scenarios/guard_redefine.yaml --format json -v`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarioFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database for the journal")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session ID to journal under")

	return cmd
}

func runScenarioFile(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
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

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeScenario, "failed to load scenario", err)
	}

	runOpts := []harness.Option{harness.WithLogger(log), harness.WithBaseConfig(cfg)}

	if opts.Session != "" {
		scenario.Session = opts.Session
	}
	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			return formatter.fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				log.Err(closeErr, "error closing database")
			}
		}()
		if scenario.Session == "" {
			gen := opts.SessionGenerator
			if gen == nil {
				gen = engine.UUIDv7Generator{}
			}
			scenario.Session = gen.Generate()
		}
		runOpts = append(runOpts, harness.WithStore(st))
	}

	log.Info("running scenario", "name", scenario.Name, "db", opts.Database)
	result, err := harness.Run(scenario, runOpts...)
	if err != nil {
		return formatter.fail(ExitCommandError, ErrCodeScenario, "scenario could not run", err)
	}

	out := RunResult{
		Name:    scenario.Name,
		Session: result.Session,
		Pass:    result.Pass,
		Events:  len(result.Trace),
		Errors:  result.Errors,
	}
	if opts.Verbose {
		out.Trace = result.Trace
	}

	if formatter.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: out}
		if !result.Pass {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeScenarioRun,
				Message: fmt.Sprintf("scenario %s failed", scenario.Name),
			}
		}
		if err := formatter.Response(resp); err != nil {
			return err
		}
	} else {
		printRunText(formatter, out, result.Trace)
	}

	if !result.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

func printRunText(f *OutputFormatter, r RunResult, trace []ir.Event) {
	w := f.Writer
	if r.Pass {
		fmt.Fprintf(w, "✓ %s (session %s, %d events)\n", r.Name, r.Session, r.Events)
	} else {
		fmt.Fprintf(w, "✗ %s (session %s, %d events)\n", r.Name, r.Session, r.Events)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	if f.Verbose {
		for _, ev := range trace {
			fmt.Fprintf(w, "  %s\n", formatEvent(ev))
		}
	}
}
