package command

import (
	"context"
	"strconv"
	"strings"

	"github.com/NicolasHaas/sanction/pkg/model"
)

func parseID(arg string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	return id, err == nil && id > 0
}

// unpunish removes an active punishment by its persisted id.
func (d *Dispatcher) unpunish(ctx context.Context, s Sender, args []string) error {
	id, ok := parseID(args[0])
	if !ok {
		return d.usage(s, "unpunish <id>")
	}
	p, ok := d.cache.PunishmentByID(ctx, id)
	if !ok {
		s.Reply(d.text("UnPunish.NotFound", "ID", args[0]))
		return nil
	}
	if err := d.cache.Delete(ctx, p, false); err != nil {
		return err
	}
	s.Reply(d.text("UnPunish.Done", "ID", args[0]))
	return nil
}

// revoke builds unban and unmute. The revocation is announced to everyone
// allowed to see it.
func (d *Dispatcher) revoke(kind model.PunishmentType, word string) handler {
	verb := "un" + kind.PermissionName()
	run := func(ctx context.Context, s Sender, args []string) error {
		t, ok := d.resolve(args[0], model.IdentifierNone)
		if !ok {
			s.Reply(d.text("General.NoTarget", "NAME", args[0]))
			return nil
		}
		p, ok := d.cache.Punishment(ctx, t.id, kind, true)
		if !ok {
			s.Reply(d.text("Un.NotPunished", "NAME", t.name, "TYPE", word))
			return nil
		}
		if err := d.cache.DeleteBy(ctx, p, s.Name()); err != nil {
			return err
		}
		s.Reply(d.text("Un.Done", "NAME", t.name, "TYPE", word))
		return nil
	}
	return handler{usage: verb + " <target>", minArgs: 1, run: run}
}

// changeReason replaces the reason of an active punishment. An empty reason
// clears it.
func (d *Dispatcher) changeReason(ctx context.Context, s Sender, args []string) error {
	id, ok := parseID(args[0])
	if !ok {
		return d.usage(s, "change-reason <id> [reason]")
	}
	p, ok := d.cache.PunishmentByID(ctx, id)
	if !ok {
		s.Reply(d.text("UnPunish.NotFound", "ID", args[0]))
		return nil
	}

	old, _ := p.Reason()
	p.SetReason(strings.Join(args[1:], " "))
	if err := d.cache.Update(ctx, p); err != nil {
		p.SetReason(old)
		return err
	}
	s.Reply(d.cache.Message(ctx, p, "ChangeReason.Done"))
	return nil
}
