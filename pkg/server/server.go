// Package server wires the punishment cache into the host's connection
// flow and runs the background services: the primary task queue, the expiry
// sweeper, event publishing and the metrics endpoint.
package server

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/sanction/pkg/config"
	"github.com/NicolasHaas/sanction/pkg/events"
	"github.com/NicolasHaas/sanction/pkg/host"
	"github.com/NicolasHaas/sanction/pkg/model"
	"github.com/NicolasHaas/sanction/pkg/punish"
)

// Dependencies holds the collaborators of a Server. Cache, Sessions, Queue
// and Config are required.
type Dependencies struct {
	Config    config.Source
	Cache     *punish.Cache
	Sessions  *SessionManager
	Queue     *host.Queue
	Metrics   *Metrics
	Publisher *events.RedisPublisher
	Watcher   *config.Watcher
	Logger    *slog.Logger
	Now       func() time.Time
}

// pendingTTL bounds how long PreLogin data waits for its Join. Logins the
// host abandons without a Quit are dropped by the sweeper after it.
const pendingTTL = time.Minute

type pendingLogin struct {
	data punish.InterimData
	at   time.Time
}

// Server is the punishment service.
type Server struct {
	cfg       config.Source
	cache     *punish.Cache
	sessions  *SessionManager
	queue     *host.Queue
	metrics   *Metrics
	publisher *events.RedisPublisher
	watcher   *config.Watcher
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending map[uuid.UUID]pendingLogin
}

// New creates a new Server instance.
func New(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Server{
		cfg:       deps.Config,
		cache:     deps.Cache,
		sessions:  deps.Sessions,
		queue:     deps.Queue,
		metrics:   deps.Metrics,
		publisher: deps.Publisher,
		watcher:   deps.Watcher,
		logger:    deps.Logger,
		now:       deps.Now,
		pending:   make(map[uuid.UUID]pendingLogin),
	}
}

// Sessions returns the session manager.
func (s *Server) Sessions() *SessionManager {
	return s.sessions
}

// Cache returns the punishment cache.
func (s *Server) Cache() *punish.Cache {
	return s.cache
}

// PreLogin loads the punishments of a connecting identity. It returns the
// refusal message and false when the identity or its address is banned.
// Otherwise the loaded data is kept until Join, Quit or the sweep after
// pendingTTL.
func (s *Server) PreLogin(ctx context.Context, id uuid.UUID, name string, addr netip.Addr) ([]string, bool) {
	data := s.cache.Load(ctx, model.AccountID(id), name, addr)
	if ban, ok := s.cache.Ban(data); ok {
		s.logger.Info("refusing banned identity", "name", name, "addr", addr, "type", ban.Type())
		if s.metrics != nil {
			s.metrics.refused.Inc()
		}
		return s.cache.Layout(ctx, ban), false
	}

	s.mu.Lock()
	s.pending[id] = pendingLogin{data: data, at: s.now()}
	s.mu.Unlock()
	return nil, true
}

// Join registers the session and caches its punishments.
func (s *Server) Join(ctx context.Context, sess *model.Session) {
	s.mu.Lock()
	login, ok := s.pending[sess.UUID]
	delete(s.pending, sess.UUID)
	s.mu.Unlock()

	data := login.data
	if !ok || s.now().Sub(login.at) > pendingTTL {
		account, _ := sess.Identifiers()
		data = s.cache.Load(ctx, account, sess.Name, sess.Address)
	}
	s.sessions.Add(sess)
	s.cache.AcceptData(data)
	if s.metrics != nil {
		s.metrics.joins.Inc()
	}
	s.logger.Debug("session joined", "name", sess.Name, "uuid", sess.UUID)
}

// prunePending drops PreLogin data older than pendingTTL and returns how
// many entries it dropped.
func (s *Server) prunePending() int {
	cutoff := s.now().Add(-pendingTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, login := range s.pending {
		if login.at.Before(cutoff) {
			delete(s.pending, id)
			n++
		}
	}
	return n
}

// Quit removes the session and drops its punishments from memory.
func (s *Server) Quit(sess *model.Session) {
	s.mu.Lock()
	delete(s.pending, sess.UUID)
	s.mu.Unlock()

	s.sessions.Remove(sess.UUID)
	account, _ := sess.Identifiers()
	s.cache.Discard(account, sess.Name, sess.Address)
	s.logger.Debug("session quit", "name", sess.Name, "uuid", sess.UUID)
}

// CanChat reports whether sess may chat. A muted session gets the mute
// notice and false.
func (s *Server) CanChat(ctx context.Context, sess *model.Session) ([]string, bool) {
	account, _ := sess.Identifiers()
	mute, ok := s.cache.Punishment(ctx, account, model.Mute, true)
	if !ok {
		return nil, true
	}
	return s.cache.Layout(ctx, mute), false
}
