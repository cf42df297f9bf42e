package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/sanction/pkg/config"
	"github.com/NicolasHaas/sanction/pkg/events"
	"github.com/NicolasHaas/sanction/pkg/server"
	"github.com/NicolasHaas/sanction/pkg/version"
)

func newServeCmd(o *rootOptions) *cobra.Command {
	var noConsole bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the punishment service with an operator console on stdin",
		Long: `Run the punishment service: the side-effect queue, the expiry sweeper,
the metrics endpoint and, when configured, the Redis event publisher.

Lines read from stdin are operator commands. The console also simulates the
host with "join <name> <address> [role]", "quit <name>", "chat <name> <text>",
"as <name> <command>", "who" and "sweep".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.serve(cmd, !noConsole)
		},
	}
	cmd.Flags().BoolVar(&noConsole, "no-console", false, "Do not read operator commands from stdin")
	return cmd
}

func (o *rootOptions) serve(cmd *cobra.Command, withConsole bool) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := o.load()
	if err != nil {
		return err
	}

	var source config.Source = config.NewStatic(cfg)
	var watcher *config.Watcher
	if o.configPath != "" {
		watcher, err = config.NewWatcher(o.configPath, logger)
		if err != nil {
			return err
		}
		source = watcher
	}

	rt, err := openRuntime(ctx, source, logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	var publisher *events.RedisPublisher
	if addr := cfg.Events.RedisAddr; addr != "" {
		client := events.NewRedisClient(addr)
		defer func() { _ = client.Close() }()
		publisher = events.NewRedisPublisher(client, cfg.Events.RedisChannel, logger)
	}

	srv := server.New(server.Dependencies{
		Config:    source,
		Cache:     rt.cache,
		Sessions:  rt.sessions,
		Queue:     rt.queue,
		Metrics:   rt.metrics,
		Publisher: publisher,
		Watcher:   watcher,
		Logger:    logger,
	})

	if withConsole {
		c := &console{srv: srv, dispatcher: rt.dispatcher, out: cmd.OutOrStdout()}
		go c.Run(ctx, cmd.InOrStdin())
	}

	logger.Info("starting sanction", "version", version.String(),
		"driver", cfg.Database.Driver, "metrics", cfg.MetricsAddr, "redis", cfg.Events.RedisAddr)
	return srv.Run(ctx)
}
