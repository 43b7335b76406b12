package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/compozy/blockgate/pkg/config"
	"github.com/compozy/blockgate/pkg/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const defaultEnvFile = ".env"

// RootCmd builds the blockgate command tree.
func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "blockgate",
		Short:         "Service-to-service block execution gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return setupCommand(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "Path to a YAML configuration file")
	flags.String("env-file", defaultEnvFile, "Path to a .env file loaded before configuration")
	flags.String("log-level", "", "Log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "Emit logs as JSON")
	flags.Bool("log-source", false, "Include source locations in logs")
	root.AddCommand(
		ServeCmd(),
		MigrateCmd(),
		KeysCmd(),
		VersionCmd(),
	)
	return root
}

// setupCommand loads the env file and configuration, then attaches the
// configuration and logger to the command context.
func setupCommand(cmd *cobra.Command) error {
	envFile, err := cmd.Flags().GetString("env-file")
	if err != nil {
		return err
	}
	if err := loadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logCfg, err := logger.FromFlags(cmd, cfg.Runtime.LogLevel)
	if err != nil {
		return err
	}
	log := logger.Setup(logCfg)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = logger.ContextWithLogger(ctx, log)
	ctx = config.ContextWithConfig(ctx, cfg)
	cmd.SetContext(ctx)
	return nil
}

// loadEnvFile tolerates a missing default file.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var sources []config.Source
	file, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if file != "" {
		sources = append(sources, config.NewYAMLSource(file))
	}
	sources = append(sources, config.NewCLISource(cliOverrides(cmd)))
	cfg, err := config.NewLoader().Load(cmd.Context(), sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// flagPaths maps command flags to configuration paths.
var flagPaths = map[string]string{
	"host":         "server.host",
	"port":         "server.port",
	"auto-migrate": "database.auto_migrate",
	"db-url":       "database.conn_string",
	"redis-url":    "redis.url",
}

// cliOverrides collects explicitly set flags only, so defaults never mask
// values from the file or the environment.
func cliOverrides(cmd *cobra.Command) map[string]any {
	out := map[string]any{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		path, ok := flagPaths[f.Name]
		if !ok {
			return
		}
		switch f.Value.Type() {
		case "int":
			v, _ := cmd.Flags().GetInt(f.Name)
			out[path] = v
		case "bool":
			v, _ := cmd.Flags().GetBool(f.Name)
			out[path] = v
		default:
			out[path] = f.Value.String()
		}
	})
	return out
}
