package command

import (
	"context"
	"strconv"

	"github.com/NicolasHaas/sanction/pkg/model"
)

func (d *Dispatcher) check(ctx context.Context, s Sender, args []string) error {
	t, ok := d.resolve(args[0], model.IdentifierNone)
	if !ok {
		s.Reply(d.text("General.NoTarget", "NAME", args[0]))
		return nil
	}

	status := func(kind model.PunishmentType) string {
		p, ok := d.cache.Punishment(ctx, t.id, kind, true)
		if !ok {
			return d.cfg.Current().Catalog().Message("Check.Clear")
		}
		return d.cache.Duration(p, false)
	}

	var lines []string
	lines = append(lines, d.text("Check.Header", "NAME", t.name)...)
	lines = append(lines, d.text("Check.Ban", "STATUS", status(model.Ban))...)
	lines = append(lines, d.text("Check.Mute", "STATUS", status(model.Mute))...)
	lines = append(lines, d.text("Check.Warns", "COUNT", strconv.Itoa(d.cache.CurrentWarns(ctx, t.id)))...)
	s.Reply(lines)
	return nil
}

func (d *Dispatcher) history(ctx context.Context, s Sender, args []string) error {
	t, ok := d.resolve(args[0], model.IdentifierNone)
	if !ok {
		s.Reply(d.text("General.NoTarget", "NAME", args[0]))
		return nil
	}
	all := d.cache.Punishments(ctx, t.id, 0, false)
	if len(all) == 0 {
		s.Reply(d.text("History.Empty", "NAME", t.name))
		return nil
	}

	lines := d.text("History.Header", "NAME", t.name, "COUNT", strconv.Itoa(len(all)))
	for _, p := range all {
		lines = append(lines, d.cache.Message(ctx, p, "History.Entry", "TYPE", p.Type().String())...)
	}
	s.Reply(lines)
	return nil
}

func (d *Dispatcher) warns(ctx context.Context, s Sender, args []string) error {
	t, ok := d.resolve(args[0], model.IdentifierNone)
	if !ok {
		s.Reply(d.text("General.NoTarget", "NAME", args[0]))
		return nil
	}
	warns := d.cache.Warns(ctx, t.id)

	lines := d.text("Warns.Header", "NAME", t.name, "COUNT", strconv.Itoa(len(warns)))
	for _, p := range warns {
		lines = append(lines, d.cache.Message(ctx, p, "Warns.Entry")...)
	}
	s.Reply(lines)
	return nil
}
