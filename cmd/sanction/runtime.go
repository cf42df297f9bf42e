package main

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/NicolasHaas/sanction/pkg/command"
	"github.com/NicolasHaas/sanction/pkg/config"
	"github.com/NicolasHaas/sanction/pkg/datastore"
	"github.com/NicolasHaas/sanction/pkg/host"
	"github.com/NicolasHaas/sanction/pkg/punish"
	"github.com/NicolasHaas/sanction/pkg/server"
)

// runtime is the wired engine shared by serve and the one-shot commands.
type runtime struct {
	store      *datastore.SQLStore
	sessions   *server.SessionManager
	queue      *host.Queue
	cache      *punish.Cache
	dispatcher *command.Dispatcher
	registry   *prometheus.Registry
	metrics    *server.Metrics
}

func openRuntime(ctx context.Context, source config.Source, logger *slog.Logger) (*runtime, error) {
	cfg := source.Current()
	st, err := datastore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	rt := &runtime{
		store:    st,
		sessions: server.NewSessionManager(server.LogTransport{Logger: logger}),
		queue:    host.NewQueue(cfg.Host.QueueSize, logger),
		registry: prometheus.NewRegistry(),
	}
	rt.metrics = server.NewMetrics(rt.registry)

	// Warn actions run through the dispatcher, which needs the cache first.
	commands := host.CommandFunc(func(ctx context.Context, line string) error {
		return rt.dispatcher.Execute(ctx, line)
	})
	rt.cache = punish.New(punish.Options{
		Store:     st,
		Config:    source,
		Sessions:  rt.sessions,
		Commands:  commands,
		Scheduler: rt.queue,
		Observer:  rt.metrics,
		Logger:    logger,
	})
	rt.dispatcher = command.New(command.Options{
		Cache:    rt.cache,
		Config:   source,
		Sessions: rt.sessions,
		Logger:   logger,
	})
	rt.metrics.Watch(rt.registry, rt.cache, rt.sessions, rt.queue)
	return rt, nil
}

func (rt *runtime) Close() error {
	return rt.store.Close()
}
