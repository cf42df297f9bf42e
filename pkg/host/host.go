// Package host describes what the punishment engine needs from the hosting
// server: session lookups, message delivery, command execution and a
// single-threaded context for side effects.
package host

import (
	"context"

	"github.com/NicolasHaas/sanction/pkg/model"
)

// Sessions is the host's view of connected identities. Methods that mutate
// session state must only be called from the primary task queue.
type Sessions interface {
	// Connected returns every online session a punishment against id applies to.
	Connected(id model.Identifier) []*model.Session

	// ByName finds an online session by display name (case-insensitive).
	ByName(name string) *model.Session

	// Online returns a snapshot of all sessions.
	Online() []*model.Session

	SendMessage(s *model.Session, lines []string)

	// Disconnect closes the session and shows reason to the user.
	Disconnect(s *model.Session, reason []string)

	// Broadcast delivers lines to every session whose role grants perm.
	Broadcast(perm model.Permission, lines []string)
}

// Commands executes host command lines such as escalation actions.
type Commands interface {
	Execute(ctx context.Context, line string) error
}

// Scheduler runs side effects on the host's primary context.
type Scheduler interface {
	Schedule(name string, fn func()) error
}

// CommandFunc adapts a function to Commands.
type CommandFunc func(ctx context.Context, line string) error

// Execute calls f.
func (f CommandFunc) Execute(ctx context.Context, line string) error {
	return f(ctx, line)
}
