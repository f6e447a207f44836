package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/veil/internal/engine"
	"github.com/roach88/veil/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	LogFile    string // rotating log file; logs go to stderr only when verbose
	ConfigPath string // engine config YAML
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the veil CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "veil",
		Short: "veil - intercept rules for a host namespace",
		Long: `Register, validate and exercise intercept rules that wrap functions
and constructibles at symbolic paths, guard them against redefinition,
and journal every observed call.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogFile, "log-file", "", "write logs to a rotating file")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "engine config file (YAML)")

	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// Logger builds the logger selected by the global flags: the log file when
// --log-file is set, stderr when verbose, nothing otherwise. Callers close it
// when the command finishes.
func (o *RootOptions) Logger(cmd *cobra.Command) (logger.Logger, error) {
	level := "info"
	if o.Verbose {
		level = "debug"
	}

	var writers []string
	if o.Verbose {
		writers = append(writers, "console")
	}
	if o.LogFile != "" {
		writers = append(writers, "file")
	}
	if len(writers) == 0 {
		return logger.NewNop(), nil
	}

	return logger.New(logger.Options{
		Level:   level,
		Writer:  writers,
		File:    o.LogFile,
		Console: cmd.ErrOrStderr(),
	})
}

// EngineConfig returns the engine configuration named by --config, or the
// defaults when the flag is unset.
func (o *RootOptions) EngineConfig() (engine.Config, error) {
	if o.ConfigPath == "" {
		return engine.DefaultConfig(), nil
	}
	return engine.LoadConfig(o.ConfigPath)
}
