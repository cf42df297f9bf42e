package punish_test

import (
	"context"
	"net/netip"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/sanction/pkg/config"
	"github.com/NicolasHaas/sanction/pkg/datastore"
	"github.com/NicolasHaas/sanction/pkg/events"
	"github.com/NicolasHaas/sanction/pkg/host"
	"github.com/NicolasHaas/sanction/pkg/model"
	"github.com/NicolasHaas/sanction/pkg/punish"
	"github.com/NicolasHaas/sanction/pkg/rbac"
	"github.com/NicolasHaas/sanction/pkg/store"
)

var (
	steveUUID = uuid.MustParse("069a79f4-44e9-4726-a5be-fca90e38aaf5")
	steve     = model.AccountID(steveUUID)
	steveAddr = netip.MustParseAddr("10.0.0.7")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type broadcast struct {
	perm  model.Permission
	lines []string
}

type fakeSessions struct {
	mu           sync.Mutex
	online       []*model.Session
	messages     map[string][][]string
	disconnected map[string][]string
	broadcasts   []broadcast
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		messages:     make(map[string][][]string),
		disconnected: make(map[string][]string),
	}
}

func (f *fakeSessions) add(s *model.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, s)
}

func (f *fakeSessions) Connected(id model.Identifier) []*model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Session
	for _, s := range f.online {
		if s.Matches(id) {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeSessions) ByName(name string) *model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.online {
		if strings.EqualFold(s.Name, name) {
			return s
		}
	}
	return nil
}

func (f *fakeSessions) Online() []*model.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.Session(nil), f.online...)
}

func (f *fakeSessions) SendMessage(s *model.Session, lines []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages[s.Name] = append(f.messages[s.Name], lines)
}

func (f *fakeSessions) Disconnect(s *model.Session, reason []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnected[s.Name] = reason
}

func (f *fakeSessions) Broadcast(perm model.Permission, lines []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcasts = append(f.broadcasts, broadcast{perm: perm, lines: lines})
}

// visibleTo returns the broadcasts a role would have received.
func (f *fakeSessions) visibleTo(role model.Role) []broadcast {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []broadcast
	for _, b := range f.broadcasts {
		if rbac.HasPermission(role, b.perm) {
			out = append(out, b)
		}
	}
	return out
}

type fakeCommands struct {
	mu    sync.Mutex
	lines []string
}

func (f *fakeCommands) Execute(_ context.Context, line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line)
	return nil
}

func (f *fakeCommands) executed() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lines...)
}

type env struct {
	cache    *punish.Cache
	store    *store.MemoryStore
	cfg      *config.Config
	clock    *fakeClock
	sessions *fakeSessions
	commands *fakeCommands
	queue    *host.Queue

	mu     sync.Mutex
	events []events.Event
}

func (e *env) recorded() []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]events.Event(nil), e.events...)
}

func newEnv(t *testing.T) *env {
	t.Helper()
	return newEnvWith(t, nil)
}

// newEnvWith builds an env whose cache talks to wrap(memory store).
func newEnvWith(t *testing.T, wrap func(*store.MemoryStore) datastore.Gateway) *env {
	t.Helper()

	cfg := config.Default()
	e := &env{
		store:    store.NewMemory(),
		cfg:      cfg,
		clock:    &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		sessions: newFakeSessions(),
		commands: &fakeCommands{},
		queue:    host.NewQueue(1024, nil),
	}
	bus := events.NewBus()
	bus.Subscribe(func(ev events.Event) {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.events = append(e.events, ev)
	})
	var gw datastore.Gateway = e.store
	if wrap != nil {
		gw = wrap(e.store)
	}
	e.cache = punish.New(punish.Options{
		Store:     gw,
		Config:    config.NewStatic(cfg),
		Sessions:  e.sessions,
		Commands:  e.commands,
		Scheduler: e.queue,
		Events:    bus,
		Now:       e.clock.Now,
	})
	t.Cleanup(e.cache.Close)
	return e
}

// connect runs the connect-time flow for steve.
func (e *env) connect(t *testing.T) punish.InterimData {
	t.Helper()
	data := e.cache.Load(context.Background(), steve, "Steve", steveAddr)
	e.cache.AcceptData(data)
	return data
}

func (e *env) online() *model.Session {
	s := &model.Session{UUID: steveUUID, Name: "Steve", Address: steveAddr, Role: model.RoleUser}
	e.sessions.add(s)
	return s
}

func (e *env) punishment(typ model.PunishmentType, length time.Duration) *model.Punishment {
	now := e.clock.Now()
	return model.NewPunishment(steve, "Steve", "Admin", "", now, now.Add(length), typ)
}

func (e *env) add(t *testing.T, p *model.Punishment) *model.Punishment {
	t.Helper()
	if err := e.cache.Add(context.Background(), p, false); err != nil {
		t.Fatalf("Add: unexpected error: %v", err)
	}
	return p
}
