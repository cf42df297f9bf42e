package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/sanction/pkg/config"
	"github.com/NicolasHaas/sanction/pkg/version"
)

func newConfigCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "default",
			Short: "Print the built-in configuration as a starting point",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				_, err := cmd.OutOrStdout().Write(config.DefaultYAML())
				return err
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Validate the config file and environment overrides",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(o.configPath)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "ok: driver=%s layouts=%d warn_actions=%d\n",
					cfg.Database.Driver, len(cfg.TimeLayouts), len(cfg.WarnActions))
				return err
			},
		},
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "sanction", version.Full())
			return err
		},
	}
}
