package model

import (
	"sync"
	"time"
)

// Punishment is a single punitive action against an Identifier.
//
// Everything except the reason and the persisted id is fixed at
// construction. The persisted id is assigned once, after the first
// successful write to durable storage; until then the punishment is
// unregistered and may only be inserted.
type Punishment struct {
	identifier  Identifier
	name        string
	operator    string
	calculation string
	start       time.Time
	end         time.Time
	typ         PunishmentType

	mu     sync.RWMutex
	reason *string
	id     int64
}

// NewPunishment creates an unregistered punishment. For permanent types end
// is ignored.
func NewPunishment(identifier Identifier, name, operator, calculation string, start, end time.Time, typ PunishmentType) *Punishment {
	if !typ.IsTemp() {
		end = time.Time{}
	}
	return &Punishment{
		identifier:  identifier,
		name:        name,
		operator:    operator,
		calculation: calculation,
		start:       start,
		end:         end,
		typ:         typ,
	}
}

func (p *Punishment) Identifier() Identifier { return p.identifier }
func (p *Punishment) Name() string           { return p.name }
func (p *Punishment) Operator() string       { return p.operator }
func (p *Punishment) Calculation() string    { return p.calculation }
func (p *Punishment) Start() time.Time       { return p.start }
func (p *Punishment) Type() PunishmentType   { return p.typ }

// End returns the end time. It is the zero time for permanent punishments.
func (p *Punishment) End() time.Time { return p.end }

// Reason returns the reason, if one was attached.
func (p *Punishment) Reason() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.reason == nil {
		return "", false
	}
	return *p.reason, true
}

// SetReason attaches or replaces the reason. An empty string clears it.
func (p *Punishment) SetReason(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if reason == "" {
		p.reason = nil
		return
	}
	p.reason = &reason
}

// ID returns the persisted id and whether one has been assigned.
func (p *Punishment) ID() (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id, p.id != 0
}

// Registered reports whether a persisted id has been assigned.
func (p *Punishment) Registered() bool {
	_, ok := p.ID()
	return ok
}

// SetID assigns the persisted id. It fails if an id is already assigned.
func (p *Punishment) SetID(id int64) error {
	if id <= 0 {
		return ErrInvalidPersistedID
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.id != 0 {
		return ErrAlreadyRegistered
	}
	p.id = id
	return nil
}

// IsExpired reports whether the punishment is no longer in effect at now.
// Permanent punishments never expire.
func (p *Punishment) IsExpired(now time.Time) bool {
	if !p.typ.IsTemp() {
		return false
	}
	return !p.end.After(now)
}

// Key identifies a punishment inside in-memory sets. Registered punishments
// differ by persisted id, unregistered ones by value. The value fields are
// kept for registered punishments too, because active and history rows are
// numbered independently.
type Key struct {
	ID         int64
	Identifier Identifier
	StartMilli int64
	Type       PunishmentType
}

// Key returns the set key for p. It changes once when the id is assigned.
func (p *Punishment) Key() Key {
	id, _ := p.ID()
	return Key{ID: id, Identifier: p.identifier, StartMilli: p.start.UnixMilli(), Type: p.typ}
}

// SameRecord reports whether p and o describe the same issued punishment,
// regardless of registration.
func (p *Punishment) SameRecord(o *Punishment) bool {
	return p.identifier == o.identifier && p.typ == o.typ && p.start.UnixMilli() == o.start.UnixMilli()
}
