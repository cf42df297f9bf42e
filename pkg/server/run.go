package server

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Run opens the cache and runs the background services until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	if s.cache == nil || s.queue == nil || s.sessions == nil || s.cfg == nil {
		return fmt.Errorf("server: missing dependency")
	}

	s.cache.Open(ctx)
	defer s.cache.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.queue.Run(ctx) })
	g.Go(func() error { return s.sweep(ctx) })
	if s.publisher != nil {
		unsubscribe := s.cache.Events().Subscribe(s.publisher.Listen)
		defer unsubscribe()
		g.Go(func() error { return s.publisher.Run(ctx) })
	}
	if s.watcher != nil {
		g.Go(func() error { return s.watcher.Run(ctx) })
	}
	if s.metrics != nil {
		if addr := s.cfg.Current().MetricsAddr; addr != "" {
			g.Go(func() error { return s.ServeMetrics(ctx, addr) })
		}
	}

	s.logger.Info("sanction server running", "sweep_interval", s.cfg.Current().Sweep())
	err := g.Wait()
	s.queue.Close()
	s.logger.Info("shutting down...")
	return err
}

// sweep periodically removes expired punishments from the cache. The
// interval is re-read after every sweep so config reloads take effect.
func (s *Server) sweep(ctx context.Context) error {
	timer := time.NewTimer(s.cfg.Current().Sweep())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			if n := s.SweepOnce(ctx); n > 0 {
				s.logger.Info("expired punishments removed", "count", n)
			}
			timer.Reset(s.cfg.Current().Sweep())
		}
	}
}

// SweepOnce runs one expiry pass and returns the number of removed
// punishments. Stale PreLogin data is dropped on the same pass.
func (s *Server) SweepOnce(ctx context.Context) int {
	if n := s.prunePending(); n > 0 {
		s.logger.Debug("abandoned logins dropped", "count", n)
	}
	return s.cache.PurgeExpired(ctx)
}
