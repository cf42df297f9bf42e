// Package events fans punishment lifecycle events out to subscribers.
package events

import (
	"sync"
	"time"

	"github.com/NicolasHaas/sanction/pkg/model"
)

// Kind of a lifecycle event.
type Kind string

const (
	Created Kind = "punishment.created"
	Revoked Kind = "punishment.revoked"
)

// Event describes a punishment that was created or revoked. MassClear is set
// for revocations performed in bulk, such as expiry sweeps.
type Event struct {
	Kind       Kind
	Punishment *model.Punishment
	MassClear  bool
	At         time.Time
}

// Listener receives events synchronously on the publishing goroutine and
// must not block.
type Listener func(Event)

// Bus is a synchronous in-process event bus.
type Bus struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]Listener
	now       func() time.Time
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		listeners: make(map[int]Listener),
		now:       time.Now,
	}
}

// Subscribe registers l and returns a function removing it again.
func (b *Bus) Subscribe(l Listener) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	b.listeners[id] = l
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
	}
}

// Created announces a new punishment.
func (b *Bus) Created(p *model.Punishment) {
	b.publish(Event{Kind: Created, Punishment: p})
}

// Revoked announces a removed punishment.
func (b *Bus) Revoked(p *model.Punishment, massClear bool) {
	b.publish(Event{Kind: Revoked, Punishment: p, MassClear: massClear})
}

func (b *Bus) publish(ev Event) {
	ev.At = b.now()
	b.mu.RLock()
	listeners := make([]Listener, 0, len(b.listeners))
	for _, l := range b.listeners {
		listeners = append(listeners, l)
	}
	b.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
