package punish

import (
	"context"
	"fmt"
	"slices"

	"github.com/NicolasHaas/sanction/pkg/datastore"
	"github.com/NicolasHaas/sanction/pkg/model"
)

// Add records a new punishment. It is written to storage first, then the
// escalation, notification and disconnect side effects are scheduled, then
// the in-memory sets are updated and the creation event is fired. Storage
// failures are returned and leave memory untouched.
func (c *Cache) Add(ctx context.Context, p *model.Punishment, silent bool) error {
	if p.Registered() {
		return fmt.Errorf("punish: add: %w", model.ErrAlreadyRegistered)
	}

	row := datastore.RowFrom(p)
	if _, err := c.store.InsertHistory(ctx, row); err != nil {
		c.obs.StorageFailure("insert history")
		return fmt.Errorf("punish: add: %w", err)
	}

	if !p.Type().IsOneShot() {
		id, err := c.store.InsertActive(ctx, row)
		if err != nil {
			c.obs.StorageFailure("insert active")
			return fmt.Errorf("punish: add: %w", err)
		}
		if id == 0 {
			id = c.recoverID(ctx, p)
		}
		if id > 0 {
			if err := p.SetID(id); err != nil {
				return fmt.Errorf("punish: add: %w", err)
			}
		}
	}

	count := 0
	if p.Type().Basic() == model.Warning {
		count = c.warnCount(ctx, p)
		c.escalate(p, count)
	}

	cfg := c.config()
	if !silent {
		lines := c.render(cfg, p, cfg.Catalog().Lines(p.Type().ConfSection()+".Notification"), true, count)
		c.broadcast(model.NotifyPermission(p.Type()), lines)
	}

	if sessions := c.sessions.Connected(p.Identifier()); len(sessions) > 0 {
		layout := c.layout(cfg, p, count)
		basic := p.Type().Basic()
		for _, s := range sessions {
			if basic == model.Ban || basic == model.Kick {
				c.schedule("disconnect", func() { c.sessions.Disconnect(s, layout) })
			} else {
				c.schedule("message", func() { c.sessions.SendMessage(s, layout) })
			}
		}
	}
	if !p.Type().IsOneShot() && c.Cached(p.Identifier()) {
		c.active.Store(p.Key(), p)
	}
	c.history.Store(p.Key(), p)

	c.obs.Created(p.Type())
	c.events.Created(p)
	return nil
}

// recoverID looks the freshly inserted row up by identifier and start time,
// for drivers that cannot report the generated id.
func (c *Cache) recoverID(ctx context.Context, p *model.Punishment) int64 {
	row, err := c.store.SelectExact(ctx, p.Identifier().String(), p.Start().UnixMilli())
	if err != nil {
		c.storageFailed("select exact", err, "identifier", p.Identifier())
	}
	if row == nil || row.ID <= 0 {
		c.logger.Warn("could not recover persisted id, punishment stays unregistered until restart",
			"identifier", p.Identifier(), "type", p.Type(), "start", p.Start().UnixMilli())
		return 0
	}
	return row.ID
}

// warnCount returns the number of active warnings of p's identity including
// p, counting p once whether or not storage already reports it.
func (c *Cache) warnCount(ctx context.Context, p *model.Punishment) int {
	count := 1
	for _, w := range c.Warns(ctx, p.Identifier()) {
		if !w.SameRecord(p) {
			count++
		}
	}
	return count
}

// escalate schedules the warn action configured for count, if any.
func (c *Cache) escalate(p *model.Punishment, count int) {
	cfg := c.config()
	action, ok := ResolveEscalation(cfg.WarnActions, count)
	if !ok {
		return
	}
	line := renderAction(action, p.Name(), count, c.reasonText(cfg, p))
	c.schedule("escalation", func() {
		c.logger.Info("running warn action", "name", p.Name(), "count", count, "command", line)
		if err := c.commands.Execute(context.Background(), line); err != nil {
			c.logger.Error("warn action failed", "command", line, "err", err)
			return
		}
		c.obs.Escalated()
	})
}

// ResolveEscalation picks the action of the highest configured tier not
// above count.
func ResolveEscalation(actions map[int]string, count int) (string, bool) {
	tiers := make([]int, 0, len(actions))
	for tier := range actions {
		if tier > 0 && tier <= count {
			tiers = append(tiers, tier)
		}
	}
	if len(tiers) == 0 {
		return "", false
	}
	return actions[slices.Max(tiers)], true
}

// Delete revokes a registered punishment. The storage delete happens first;
// on failure memory is left untouched and the error is returned.
func (c *Cache) Delete(ctx context.Context, p *model.Punishment, massClear bool) error {
	id, ok := p.ID()
	if !ok {
		return fmt.Errorf("punish: delete: %w", model.ErrNotRegistered)
	}
	if err := c.store.Delete(ctx, id); err != nil {
		c.obs.StorageFailure("delete")
		return fmt.Errorf("punish: delete #%d: %w", id, err)
	}
	c.active.Delete(p.Key())
	c.logger.Debug("punishment deleted", "id", id, "type", p.Type(), "mass_clear", massClear)

	c.obs.Revoked(p.Type(), massClear)
	c.events.Revoked(p, massClear)
	return nil
}

// DeleteBy revokes p on behalf of operator and announces it to everyone
// allowed to see revocations of that kind.
func (c *Cache) DeleteBy(ctx context.Context, p *model.Punishment, operator string) error {
	cfg := c.config()
	key := "Un" + p.Type().Basic().ConfSection() + ".Notification"
	lines := c.render(cfg, p, cfg.Catalog().Lines(key), true, 0, "OPERATOR", operator)
	if err := c.Delete(ctx, p, false); err != nil {
		return err
	}
	c.broadcast(model.UndoNotifyPermission(p.Type()), lines)
	return nil
}

// Update writes the reason of a registered punishment through to storage.
// Every other field is immutable.
func (c *Cache) Update(ctx context.Context, p *model.Punishment) error {
	id, ok := p.ID()
	if !ok {
		return fmt.Errorf("punish: update: %w", model.ErrNotRegistered)
	}
	var reason *string
	if r, ok := p.Reason(); ok {
		reason = &r
	}
	if err := c.store.UpdateReason(ctx, id, reason); err != nil {
		c.obs.StorageFailure("update reason")
		return fmt.Errorf("punish: update #%d: %w", id, err)
	}
	if cached, ok := c.active.Load(p.Key()); ok && cached != p {
		cached.SetReason(derefReason(reason))
	}
	return nil
}

// expire retires an expired punishment found in the active set. Only the
// caller that takes it out of memory deletes and reports it. Memory stays
// clear even when the storage delete fails; the row is retried on the next
// uncached read.
func (c *Cache) expire(ctx context.Context, p *model.Punishment, massClear bool) {
	if _, ok := c.active.LoadAndDelete(p.Key()); !ok {
		return
	}
	c.retire(ctx, p, massClear)
}

// expireStored retires an expired punishment read from storage for an
// uncached identity. Readers share one claim per id and the row is read
// again under the claim, so a reader holding a stale copy does nothing.
func (c *Cache) expireStored(ctx context.Context, p *model.Punishment, massClear bool) {
	id, ok := p.ID()
	if !ok {
		return
	}
	if _, busy := c.retiring.LoadOrStore(id, struct{}{}); busy {
		return
	}
	defer c.retiring.Delete(id)

	row, err := c.store.SelectByID(ctx, id)
	if err != nil {
		c.storageFailed("select by id", err, "id", id)
		return
	}
	if row == nil {
		return
	}
	c.retire(ctx, p, massClear)
}

func (c *Cache) retire(ctx context.Context, p *model.Punishment, massClear bool) {
	c.obs.Expired(p.Type())
	if !p.Registered() {
		return
	}
	if err := c.Delete(ctx, p, massClear); err != nil {
		c.logger.Warn("deleting expired punishment failed", "identifier", p.Identifier(), "type", p.Type(), "err", err)
	}
}

func (c *Cache) schedule(name string, fn func()) {
	if err := c.scheduler.Schedule(name, fn); err != nil {
		c.logger.Error("could not schedule side effect", "task", name, "err", err)
	}
}

func (c *Cache) broadcast(perm model.Permission, lines []string) {
	c.schedule("broadcast", func() { c.sessions.Broadcast(perm, lines) })
}

func derefReason(r *string) string {
	if r == nil {
		return ""
	}
	return *r
}
