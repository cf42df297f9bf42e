package model

import (
	"fmt"
	"net/netip"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// IdentifierKind tells which half of an Identifier is set.
type IdentifierKind int

const (
	IdentifierNone IdentifierKind = iota
	IdentifierAccount
	IdentifierAddress
)

// Identifier names who a punishment applies to: either an account UUID or a
// network address. The zero value identifies nobody. Identifiers are
// comparable and safe to use as map keys.
type Identifier struct {
	kind    IdentifierKind
	account uuid.UUID
	address netip.Addr
}

// AccountID wraps an account UUID.
func AccountID(id uuid.UUID) Identifier {
	return Identifier{kind: IdentifierAccount, account: id}
}

// AddressID wraps a network address. IPv4-mapped IPv6 addresses are unmapped
// so that both spellings identify the same target.
func AddressID(addr netip.Addr) Identifier {
	return Identifier{kind: IdentifierAddress, address: addr.Unmap()}
}

// ipv4Shape matches strings stored as dotted IPv4 addresses.
var ipv4Shape = regexp.MustCompile(`^(?:[0-9]{1,3}\.){3}[0-9]{1,3}$`)

// ParseIdentifier classifies a stored identifier string. Strings shaped like
// an IPv4 address are tried as addresses first; if that fails the string is
// parsed as an account UUID. A "/" (as produced by some address
// printers) is ignored.
func ParseIdentifier(s string) (Identifier, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "/", "")
	if ipv4Shape.MatchString(s) {
		if addr, err := netip.ParseAddr(s); err == nil {
			return AddressID(addr), nil
		}
	}
	id, err := uuid.Parse(s)
	if err == nil {
		return AccountID(id), nil
	}
	// IPv6 addresses never look like IPv4 but are still addresses.
	if addr, aerr := netip.ParseAddr(s); aerr == nil {
		return AddressID(addr), nil
	}
	return Identifier{}, fmt.Errorf("model: parse identifier %q: %w", s, err)
}

// Kind returns which kind of identifier this is.
func (i Identifier) Kind() IdentifierKind { return i.kind }

// IsZero reports whether the identifier is unset.
func (i Identifier) IsZero() bool { return i.kind == IdentifierNone }

// Account returns the account UUID if this is an account identifier.
func (i Identifier) Account() (uuid.UUID, bool) {
	return i.account, i.kind == IdentifierAccount
}

// Address returns the network address if this is an address identifier.
func (i Identifier) Address() (netip.Addr, bool) {
	return i.address, i.kind == IdentifierAddress
}

// String returns the storage form: the UUID string or the dotted address.
func (i Identifier) String() string {
	switch i.kind {
	case IdentifierAccount:
		return i.account.String()
	case IdentifierAddress:
		return i.address.String()
	default:
		return ""
	}
}
