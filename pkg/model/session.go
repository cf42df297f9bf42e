package model

import (
	"net/netip"
	"time"

	"github.com/google/uuid"
)

// Session represents a connected identity (in-memory only).
type Session struct {
	UUID     uuid.UUID
	Name     string
	Address  netip.Addr
	Role     Role
	JoinedAt time.Time
}

// Matches reports whether a punishment issued against id applies to this session.
func (s *Session) Matches(id Identifier) bool {
	if account, ok := id.Account(); ok {
		return account == s.UUID
	}
	if addr, ok := id.Address(); ok {
		return addr == s.Address
	}
	return false
}

// Identifiers returns the account and address identifiers of the session.
func (s *Session) Identifiers() (account, address Identifier) {
	return AccountID(s.UUID), AddressID(s.Address)
}
