// Command sanction runs the punishment engine as a service and exposes the
// operator commands as one-shot subcommands against the same database.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/sanction/pkg/config"
	"github.com/NicolasHaas/sanction/pkg/logging"
)

type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:           "sanction",
		Short:         "Punishment lifecycle engine: bans, mutes, warnings and kicks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&o.configPath, "config", "c", "", "YAML config file (built-in defaults when empty)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "Log level: "+logging.LevelNames()+" (overrides the config)")
	root.PersistentFlags().StringVar(&o.logFormat, "log-format", "", "Log format: text or json (overrides the config)")

	root.AddCommand(
		newServeCmd(o),
		newConfigCmd(o),
		newVersionCmd(),
	)
	root.AddGroup(&cobra.Group{ID: "operator", Title: "Operator Commands:"})
	root.AddCommand(newOperatorCmds(o)...)
	return root
}

// load reads the config and installs the global logger.
func (o *rootOptions) load() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := o.setupLogging(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func (o *rootOptions) setupLogging(cfg *config.Config) (*slog.Logger, error) {
	opts := logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr}
	if o.logLevel != "" {
		opts.Level = o.logLevel
	}
	if o.logFormat != "" {
		opts.Format = o.logFormat
	}
	logger, err := logging.Setup(opts)
	if err != nil {
		return nil, fmt.Errorf("invalid logging config: %w", err)
	}
	return logger, nil
}
