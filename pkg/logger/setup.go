package logger

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

// FromFlags reads the persistent log flags. fallbackLevel applies when
// --log-level is empty; output switches to JSON when stdout is not a
// terminal unless --log-json was given explicitly.
func FromFlags(cmd *cobra.Command, fallbackLevel string) (*Config, error) {
	flags := cmd.Flags()
	level, err := flags.GetString("log-level")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-level flag: %w", err)
	}
	if level == "" {
		level = fallbackLevel
	}
	logJSON, err := flags.GetBool("log-json")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-json flag: %w", err)
	}
	if !flags.Changed("log-json") && !isTerminal(os.Stdout) {
		logJSON = true
	}
	logSource, err := flags.GetBool("log-source")
	if err != nil {
		return nil, fmt.Errorf("failed to get log-source flag: %w", err)
	}
	cfg := DefaultConfig()
	cfg.Level = LogLevel(level)
	cfg.JSON = logJSON
	cfg.AddSource = logSource
	return cfg, nil
}

// Setup builds the process logger and installs it as the default.
func Setup(cfg *Config) Logger {
	l := NewLogger(cfg)
	SetDefault(l)
	return l
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
