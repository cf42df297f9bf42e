package punish

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NicolasHaas/sanction/pkg/datastore"
	"github.com/NicolasHaas/sanction/pkg/duration"
	"github.com/NicolasHaas/sanction/pkg/model"
)

// ErrUnknownLayout is returned by ComputeExpiry for unconfigured layouts.
var ErrUnknownLayout = errors.New("punish: unknown time layout")

// Punishments returns the punishments of id whose basic kind matches kind.
// A zero kind matches every kind. With current set, only active punishments
// are returned and expired ones found on the way are deleted as a mass
// clear; otherwise the history is returned.
//
// Cached identities are answered from memory. Others are looked up in
// storage without being cached; storage failures yield no results.
func (c *Cache) Punishments(ctx context.Context, id model.Identifier, kind model.PunishmentType, current bool) []*model.Punishment {
	if c.Cached(id) {
		return c.cachedPunishments(ctx, id, kind, current)
	}

	table := datastore.History
	if current {
		table = datastore.Active
	}
	var tags []string
	if kind != 0 {
		tags = datastore.TypeTags(kind.Family())
	}
	rows, err := c.store.SelectByIdentifier(ctx, table, id.String(), tags)
	if err != nil {
		c.storageFailed("select", err, "identifier", id)
		return nil
	}

	out := make([]*model.Punishment, 0, len(rows))
	var expired []*model.Punishment
	now := c.now()
	for _, p := range c.convert(rows) {
		if current && p.IsExpired(now) {
			expired = append(expired, p)
			continue
		}
		out = append(out, p)
	}
	for _, p := range expired {
		c.expireStored(ctx, p, true)
	}
	return out
}

func (c *Cache) cachedPunishments(ctx context.Context, id model.Identifier, kind model.PunishmentType, current bool) []*model.Punishment {
	matches := func(p *model.Punishment) bool {
		return p.Identifier() == id && (kind == 0 || p.Type().Basic() == kind.Basic())
	}

	var out []*model.Punishment
	if !current {
		c.history.Range(func(_ model.Key, p *model.Punishment) bool {
			if matches(p) {
				out = append(out, p)
			}
			return true
		})
		sortByStart(out)
		return out
	}

	now := c.now()
	var expired []*model.Punishment
	c.active.Range(func(_ model.Key, p *model.Punishment) bool {
		if p.Identifier() != id {
			return true
		}
		if p.IsExpired(now) {
			expired = append(expired, p)
			return true
		}
		if matches(p) {
			out = append(out, p)
		}
		return true
	})
	for _, p := range expired {
		c.expire(ctx, p, true)
	}
	sortByStart(out)
	return out
}

// Punishment returns the first punishment Punishments would return.
func (c *Cache) Punishment(ctx context.Context, id model.Identifier, kind model.PunishmentType, current bool) (*model.Punishment, bool) {
	all := c.Punishments(ctx, id, kind, current)
	if len(all) == 0 {
		return nil, false
	}
	return all[0], true
}

// PunishmentByID looks up an active punishment by persisted id in storage.
// Missing and expired punishments are reported as not found.
func (c *Cache) PunishmentByID(ctx context.Context, id int64) (*model.Punishment, bool) {
	row, err := c.store.SelectByID(ctx, id)
	if err != nil {
		c.storageFailed("select by id", err, "id", id)
		return nil, false
	}
	if row == nil {
		return nil, false
	}
	p, err := row.Punishment()
	if err != nil {
		c.logger.Warn("unreadable punishment row", "id", id, "err", err)
		return nil, false
	}
	if p.IsExpired(c.now()) {
		return nil, false
	}
	return p, true
}

// Warn is PunishmentByID restricted to warnings.
func (c *Cache) Warn(ctx context.Context, id int64) (*model.Punishment, bool) {
	p, ok := c.PunishmentByID(ctx, id)
	if !ok || p.Type().Basic() != model.Warning {
		return nil, false
	}
	return p, true
}

// Ban returns a live ban among data's active punishments.
func (c *Cache) Ban(data InterimData) (*model.Punishment, bool) {
	now := c.now()
	for _, p := range data.Punishments {
		if p.Type().Basic() == model.Ban && !p.IsExpired(now) {
			return p, true
		}
	}
	return nil, false
}

// IsBanned reports whether id has an active ban.
func (c *Cache) IsBanned(ctx context.Context, id model.Identifier) bool {
	_, ok := c.Punishment(ctx, id, model.Ban, true)
	return ok
}

// IsMuted reports whether id has an active mute.
func (c *Cache) IsMuted(ctx context.Context, id model.Identifier) bool {
	_, ok := c.Punishment(ctx, id, model.Mute, true)
	return ok
}

// Warns returns the active warnings of id.
func (c *Cache) Warns(ctx context.Context, id model.Identifier) []*model.Punishment {
	return c.Punishments(ctx, id, model.Warning, true)
}

// CurrentWarns counts the active warnings of id.
func (c *Cache) CurrentWarns(ctx context.Context, id model.Identifier) int {
	return len(c.Warns(ctx, id))
}

// CalculationLevel counts the historical punishments of id issued with the
// given calculation layout. Storage failures count as zero.
func (c *Cache) CalculationLevel(ctx context.Context, id model.Identifier, layout string) int {
	if c.Cached(id) {
		n := 0
		c.history.Range(func(_ model.Key, p *model.Punishment) bool {
			if p.Identifier() == id && strings.EqualFold(p.Calculation(), layout) {
				n++
			}
			return true
		})
		return n
	}
	n, err := c.store.CountByCalculation(ctx, id.String(), layout)
	if err != nil {
		c.storageFailed("count", err, "identifier", id, "layout", layout)
		return 0
	}
	return n
}

// ComputeExpiry returns the end time of the next punishment for id under
// layout. The n-th punishment with the same layout uses the n-th configured
// duration; the last duration repeats.
func (c *Cache) ComputeExpiry(ctx context.Context, layout string, id model.Identifier) (time.Time, error) {
	tiers, ok := c.config().TimeLayout(layout)
	if !ok || len(tiers) == 0 {
		return time.Time{}, fmt.Errorf("%w: %q", ErrUnknownLayout, layout)
	}
	level := min(c.CalculationLevel(ctx, id, layout), len(tiers)-1)
	d, err := duration.Parse(tiers[level])
	if err != nil {
		return time.Time{}, fmt.Errorf("punish: layout %s: %w", layout, err)
	}
	return c.now().Add(d), nil
}

// LoadedPunishments returns a snapshot of the active set. With checkExpired
// set, expired entries are deleted as a mass clear and left out.
func (c *Cache) LoadedPunishments(ctx context.Context, checkExpired bool) []*model.Punishment {
	live, _ := c.loaded(ctx, checkExpired)
	return live
}

// PurgeExpired removes every expired active punishment and returns how many
// were removed.
func (c *Cache) PurgeExpired(ctx context.Context) int {
	_, n := c.loaded(ctx, true)
	return n
}

func (c *Cache) loaded(ctx context.Context, checkExpired bool) ([]*model.Punishment, int) {
	now := c.now()
	var live, expired []*model.Punishment
	c.active.Range(func(_ model.Key, p *model.Punishment) bool {
		if checkExpired && p.IsExpired(now) {
			expired = append(expired, p)
			return true
		}
		live = append(live, p)
		return true
	})
	for _, p := range expired {
		c.expire(ctx, p, true)
	}
	sortByStart(live)
	return live, len(expired)
}
