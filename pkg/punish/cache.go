// Package punish implements the punishment cache: the in-memory view of
// active and historical punishments for connected identities, the
// write-through lifecycle that keeps it consistent with durable storage, and
// the notification and escalation side effects of each change.
package punish

import (
	"context"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"

	"github.com/NicolasHaas/sanction/pkg/config"
	"github.com/NicolasHaas/sanction/pkg/datastore"
	"github.com/NicolasHaas/sanction/pkg/events"
	"github.com/NicolasHaas/sanction/pkg/host"
	"github.com/NicolasHaas/sanction/pkg/model"
)

// Options configures a Cache. Store, Config, Sessions, Commands and Scheduler
// are required.
type Options struct {
	Store     datastore.Gateway
	Config    config.Source
	Sessions  host.Sessions
	Commands  host.Commands
	Scheduler host.Scheduler
	Events    *events.Bus
	Observer  Observer
	Logger    *slog.Logger
	Now       func() time.Time
}

// Cache holds the active and history sets of cached identities.
type Cache struct {
	store     datastore.Gateway
	cfg       config.Source
	sessions  host.Sessions
	commands  host.Commands
	scheduler host.Scheduler
	events    *events.Bus
	obs       Observer
	logger    *slog.Logger
	now       func() time.Time

	active   *xsync.MapOf[model.Key, *model.Punishment]
	history  *xsync.MapOf[model.Key, *model.Punishment]
	cached   *xsync.MapOf[string, struct{}]
	retiring *xsync.MapOf[int64, struct{}] // stored rows claimed by an uncached read

	loads singleflight.Group
}

// New creates an empty cache. Call Open to warm it with online sessions.
func New(opts Options) *Cache {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Events == nil {
		opts.Events = events.NewBus()
	}
	return &Cache{
		store:     opts.Store,
		cfg:       opts.Config,
		sessions:  opts.Sessions,
		commands:  opts.Commands,
		scheduler: opts.Scheduler,
		events:    opts.Events,
		obs:       opts.Observer,
		logger:    opts.Logger,
		now:       opts.Now,
		active:    xsync.NewMapOf[model.Key, *model.Punishment](),
		history:   xsync.NewMapOf[model.Key, *model.Punishment](),
		cached:    xsync.NewMapOf[string, struct{}](),
		retiring:  xsync.NewMapOf[int64, struct{}](),
	}
}

// Open loads every online session into the cache.
func (c *Cache) Open(ctx context.Context) {
	for _, s := range c.sessions.Online() {
		account, _ := s.Identifiers()
		c.AcceptData(c.Load(ctx, account, s.Name, s.Address))
	}
	c.logger.Info("punishment cache opened",
		"active", c.active.Size(),
		"history", c.history.Size(),
		"identities", c.cached.Size(),
	)
}

// Close empties the cache. Durable storage is untouched.
func (c *Cache) Close() {
	c.active.Clear()
	c.history.Clear()
	c.cached.Clear()
}

// Events returns the bus lifecycle events are published on.
func (c *Cache) Events() *events.Bus {
	return c.events
}

// InterimData is what Load gathers for a connecting identity.
type InterimData struct {
	Identifier  model.Identifier
	Name        string
	Address     netip.Addr
	Punishments []*model.Punishment
	History     []*model.Punishment
}

type loadResult struct {
	active, history []*model.Punishment
}

// Load reads all active and historical punishments for account and address
// from storage. On storage failure the identity is treated as clean and the
// failure is logged. Concurrent loads of the same identity share one query.
func (c *Cache) Load(ctx context.Context, account model.Identifier, name string, address netip.Addr) InterimData {
	data := InterimData{Identifier: account, Name: name, Address: address}
	addr := addressKey(address)

	v, err, _ := c.loads.Do(account.String()+"|"+addr, func() (any, error) {
		active, err := c.store.SelectByIdentifierOrAddress(ctx, datastore.Active, account.String(), addr)
		if err != nil {
			return nil, err
		}
		history, err := c.store.SelectByIdentifierOrAddress(ctx, datastore.History, account.String(), addr)
		if err != nil {
			return nil, err
		}
		return loadResult{active: c.convert(active), history: c.convert(history)}, nil
	})
	if err != nil {
		c.storageFailed("load", err, "identifier", account, "name", name)
		return data
	}
	res := v.(loadResult)
	data.Punishments = res.active
	data.History = res.history
	return data
}

// AcceptData merges data into the live sets and marks the identity cached.
func (c *Cache) AcceptData(data InterimData) {
	for _, p := range data.Punishments {
		c.active.Store(p.Key(), p)
	}
	for _, p := range data.History {
		c.history.Store(p.Key(), p)
	}
	for _, key := range identityKeys(data.Identifier, data.Name, data.Address) {
		c.cached.Store(key, struct{}{})
	}
}

// Discard drops an identity from memory when it disconnects.
func (c *Cache) Discard(account model.Identifier, name string, address netip.Addr) {
	for _, key := range identityKeys(account, name, address) {
		c.cached.Delete(key)
	}
	addrID := model.Identifier{}
	if address.IsValid() {
		addrID = model.AddressID(address)
	}
	matches := func(p *model.Punishment) bool {
		id := p.Identifier()
		return id == account || (!addrID.IsZero() && id == addrID)
	}
	for _, set := range []*xsync.MapOf[model.Key, *model.Punishment]{c.active, c.history} {
		var drop []model.Key
		set.Range(func(k model.Key, p *model.Punishment) bool {
			if matches(p) {
				drop = append(drop, k)
			}
			return true
		})
		for _, k := range drop {
			set.Delete(k)
		}
	}
}

// Cached reports whether the full history of id is held in memory.
func (c *Cache) Cached(id model.Identifier) bool {
	if id.IsZero() {
		return false
	}
	_, ok := c.cached.Load(id.String())
	return ok
}

// CachedName reports whether an identity with this name is cached.
func (c *Cache) CachedName(name string) bool {
	_, ok := c.cached.Load(nameKey(name))
	return ok
}

// Size returns the number of active entries, history entries and cached
// identity markers.
func (c *Cache) Size() (active, history, identities int) {
	return c.active.Size(), c.history.Size(), c.cached.Size()
}

func identityKeys(account model.Identifier, name string, address netip.Addr) []string {
	var keys []string
	if name != "" {
		keys = append(keys, nameKey(name))
	}
	if !account.IsZero() {
		keys = append(keys, account.String())
	}
	if address.IsValid() {
		keys = append(keys, addressKey(address))
	}
	return keys
}

func nameKey(name string) string {
	return "name:" + strings.ToLower(name)
}

func addressKey(address netip.Addr) string {
	if !address.IsValid() {
		return ""
	}
	return model.AddressID(address).String()
}

// convert turns rows into punishments, skipping rows that cannot be parsed.
func (c *Cache) convert(rows []datastore.Row) []*model.Punishment {
	out := make([]*model.Punishment, 0, len(rows))
	for _, row := range rows {
		p, err := row.Punishment()
		if err != nil {
			c.logger.Warn("skipping unreadable punishment row", "id", row.ID, "err", err)
			continue
		}
		out = append(out, p)
	}
	return out
}

func (c *Cache) storageFailed(op string, err error, args ...any) {
	c.obs.StorageFailure(op)
	c.logger.Warn("storage "+op+" failed", append(args, "err", err)...)
}

func (c *Cache) config() *config.Config {
	return c.cfg.Current()
}
