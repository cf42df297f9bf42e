package server

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/NicolasHaas/sanction/pkg/host"
	"github.com/NicolasHaas/sanction/pkg/model"
	"github.com/NicolasHaas/sanction/pkg/rbac"
)

// Transport delivers text to connected clients and closes their connections.
type Transport interface {
	Send(s *model.Session, lines []string)
	Close(s *model.Session, reason []string)
}

// SessionManager manages connected sessions and implements host.Sessions.
type SessionManager struct {
	mu        sync.RWMutex
	sessions  map[uuid.UUID]*model.Session
	transport Transport
}

var _ host.Sessions = (*SessionManager)(nil)

// NewSessionManager creates a new session manager.
func NewSessionManager(transport Transport) *SessionManager {
	return &SessionManager{
		sessions:  make(map[uuid.UUID]*model.Session),
		transport: transport,
	}
}

// Add registers a session, replacing any earlier session of the same account.
func (sm *SessionManager) Add(s *model.Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.sessions[s.UUID] = s
}

// Get retrieves a session by account id.
func (sm *SessionManager) Get(id uuid.UUID) *model.Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// Remove removes a session.
func (sm *SessionManager) Remove(id uuid.UUID) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	delete(sm.sessions, id)
}

// Count returns the number of active sessions.
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Online returns all active sessions (snapshot).
func (sm *SessionManager) Online() []*model.Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	result := make([]*model.Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		result = append(result, s)
	}
	return result
}

// Connected returns the sessions a punishment against id applies to: the
// account's session, or every session sharing the address.
func (sm *SessionManager) Connected(id model.Identifier) []*model.Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	var result []*model.Session
	for _, s := range sm.sessions {
		if s.Matches(id) {
			result = append(result, s)
		}
	}
	return result
}

// ByName finds a session by display name, ignoring case.
func (sm *SessionManager) ByName(name string) *model.Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for _, s := range sm.sessions {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

func (sm *SessionManager) SendMessage(s *model.Session, lines []string) {
	sm.transport.Send(s, lines)
}

func (sm *SessionManager) Disconnect(s *model.Session, reason []string) {
	sm.transport.Close(s, reason)
}

// Broadcast sends lines to every session whose role grants perm.
func (sm *SessionManager) Broadcast(perm model.Permission, lines []string) {
	for _, s := range sm.Online() {
		if rbac.HasPermission(s.Role, perm) {
			sm.transport.Send(s, lines)
		}
	}
}

// LogTransport writes outgoing text to a logger. It backs the standalone
// server, where there is no game client to deliver to.
type LogTransport struct {
	Logger *slog.Logger
}

func (t LogTransport) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func (t LogTransport) Send(s *model.Session, lines []string) {
	t.logger().Info("message", "to", s.Name, "text", strings.Join(lines, "\n"))
}

func (t LogTransport) Close(s *model.Session, reason []string) {
	t.logger().Info("disconnect", "name", s.Name, "reason", strings.Join(reason, "\n"))
}
