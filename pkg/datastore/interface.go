package datastore

import (
	"context"
	"errors"
)

// ErrStorageUnavailable wraps every failure reported by a Gateway.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Table selects between the active and the history table.
type Table int

const (
	Active Table = iota
	History
)

func (t Table) String() string {
	if t == History {
		return "history"
	}
	return "active"
}

// Gateway is the durable store for punishments. Implementations include the
// SQL store in this package and the in-memory store in package store.
//
// Lookups that find nothing return (nil, nil) or an empty slice. Every other
// failure wraps ErrStorageUnavailable.
type Gateway interface {
	// SelectByIdentifierOrAddress returns rows whose identifier is either the
	// account id or the address.
	SelectByIdentifierOrAddress(ctx context.Context, table Table, identifier, address string) ([]Row, error)

	// SelectByIdentifier returns rows for one identifier, restricted to the
	// given type tags when types is non-empty.
	SelectByIdentifier(ctx context.Context, table Table, identifier string, types []string) ([]Row, error)

	// SelectByID looks up an active row by primary key.
	SelectByID(ctx context.Context, id int64) (*Row, error)

	// SelectExact finds the active row for identifier that started at start.
	SelectExact(ctx context.Context, identifier string, start int64) (*Row, error)

	// CountByCalculation counts history rows for identifier with the given
	// calculation layout (case-insensitive).
	CountByCalculation(ctx context.Context, identifier, calculation string) (int, error)

	// InsertActive stores row in the active table and returns the generated id.
	InsertActive(ctx context.Context, row Row) (int64, error)

	// InsertHistory stores row in the history table and returns the generated id.
	InsertHistory(ctx context.Context, row Row) (int64, error)

	// UpdateReason replaces the reason of an active row.
	UpdateReason(ctx context.Context, id int64, reason *string) error

	// Delete removes an active row.
	Delete(ctx context.Context, id int64) error

	Close() error
}
