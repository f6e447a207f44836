package engine

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/veil/internal/ir"
)

// Defaults for Config.
const (
	DefaultGuardWindow    = 10 * time.Second
	DefaultGuardAllowance = 2
)

// DefaultConstructibleNames are host constructibles treated as constructors
// without structural probing.
var DefaultConstructibleNames = []string{
	"TextDecoder",
	"TextEncoder",
	"XMLHttpRequest",
	"Blob",
	"File",
	"FileReader",
}

// Config holds engine settings.
type Config struct {
	// StealthMode installs wrappers through the captured definition primitive
	// and enables the anti-tamper guard.
	StealthMode bool `yaml:"stealth_mode"`

	// DebugMode enables diagnostic logging.
	DebugMode bool `yaml:"debug_mode"`

	// AutoApply applies a rule as soon as it is registered.
	AutoApply bool `yaml:"auto_apply"`

	// AutoRestore restores every applied rule when the engine is closed.
	AutoRestore bool `yaml:"auto_restore"`

	// GuardWindow is how long the anti-tamper guard stays active.
	GuardWindow time.Duration `yaml:"guard_window"`

	// GuardAllowance is how many redefinitions per property are refused
	// before later ones pass through.
	GuardAllowance int `yaml:"guard_allowance"`

	// ConstructibleNames are final path segments routed as constructibles.
	ConstructibleNames []string `yaml:"constructible_names"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	names := make([]string, len(DefaultConstructibleNames))
	copy(names, DefaultConstructibleNames)
	return Config{
		StealthMode:        true,
		DebugMode:          false,
		AutoApply:          true,
		AutoRestore:        false,
		GuardWindow:        DefaultGuardWindow,
		GuardAllowance:     DefaultGuardAllowance,
		ConstructibleNames: names,
	}
}

// LoadConfig reads a YAML config file. Fields missing from the file keep
// their defaults; unknown fields are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Merge applies rule-set settings on top of c.
func (c Config) Merge(s ir.Settings) (Config, error) {
	if s.StealthMode != nil {
		c.StealthMode = *s.StealthMode
	}
	if s.DebugMode != nil {
		c.DebugMode = *s.DebugMode
	}
	if s.AutoApply != nil {
		c.AutoApply = *s.AutoApply
	}
	if s.AutoRestore != nil {
		c.AutoRestore = *s.AutoRestore
	}
	if s.GuardWindow != "" {
		d, err := time.ParseDuration(s.GuardWindow)
		if err != nil {
			return c, fmt.Errorf("guard_window: %w", err)
		}
		c.GuardWindow = d
	}
	if s.GuardAllowance != nil {
		c.GuardAllowance = *s.GuardAllowance
	}
	return c, c.validate()
}

func (c Config) validate() error {
	if c.GuardWindow < 0 {
		return fmt.Errorf("guard_window must not be negative, got %s", c.GuardWindow)
	}
	if c.GuardAllowance < 0 {
		return fmt.Errorf("guard_allowance must not be negative, got %d", c.GuardAllowance)
	}
	return nil
}
