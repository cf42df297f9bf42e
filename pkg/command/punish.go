package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NicolasHaas/sanction/pkg/duration"
	"github.com/NicolasHaas/sanction/pkg/model"
	"github.com/NicolasHaas/sanction/pkg/punish"
)

const silentFlag = "-s"

// punish builds the handler issuing punishments of typ:
//
//	<verb> <target> [-s] [<duration>|#<layout>] [reason...]
//
// The duration is required for temporary types. "#layout" picks the next
// duration of a configured time layout.
func (d *Dispatcher) punish(typ model.PunishmentType) handler {
	usage := typ.PermissionName() + " <target> [-s]"
	minArgs := 1
	if typ.IsTemp() {
		usage += " <duration|#layout>"
		minArgs = 2
	}
	usage += " [reason]"

	want := model.IdentifierAccount
	if typ.IsIPOrientated() {
		want = model.IdentifierAddress
	}

	run := func(ctx context.Context, s Sender, args []string) error {
		rest := args[1:]
		silent := false
		if len(rest) > 0 && rest[0] == silentFlag {
			silent = true
			rest = rest[1:]
		}

		t, ok := d.resolve(args[0], want)
		if !ok || (typ == model.Kick && t.session == nil) {
			s.Reply(d.text("General.NoTarget", "NAME", args[0]))
			return nil
		}

		now := d.now()
		var end time.Time
		var calculation string
		if typ.IsTemp() {
			if len(rest) == 0 {
				return d.usage(s, usage)
			}
			var err error
			end, calculation, err = d.expiry(ctx, rest[0], t.id, now)
			if err != nil {
				s.Reply(d.text("General.InvalidDuration", "INPUT", rest[0]))
				return err
			}
			rest = rest[1:]
		}

		if key, done := d.alreadyDone(ctx, typ, t.id); done {
			s.Reply(d.text(key, "NAME", t.name))
			return nil
		}

		p := model.NewPunishment(t.id, t.name, s.Name(), calculation, now, end, typ)
		p.SetReason(strings.Join(rest, " "))
		if err := d.cache.Add(ctx, p, silent); err != nil {
			return err
		}
		s.Reply(d.cache.Message(ctx, p, typ.ConfSection()+".Done"))
		return nil
	}
	return handler{usage: usage, minArgs: minArgs, run: run}
}

// expiry reads a duration argument. It returns the end time and, for
// "#layout" arguments, the layout name to store as calculation.
func (d *Dispatcher) expiry(ctx context.Context, arg string, id model.Identifier, now time.Time) (time.Time, string, error) {
	if layout, ok := strings.CutPrefix(arg, "#"); ok {
		end, err := d.cache.ComputeExpiry(ctx, layout, id)
		if err != nil {
			if errors.Is(err, punish.ErrUnknownLayout) {
				return time.Time{}, "", fmt.Errorf("%w: %w", ErrUsage, err)
			}
			return time.Time{}, "", err
		}
		return end, layout, nil
	}
	dur, err := duration.Parse(arg)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("%w: %w", ErrUsage, err)
	}
	return now.Add(dur), "", nil
}

// alreadyDone reports the AlreadyDone message key when id already carries a
// ban or mute of the kind being issued.
func (d *Dispatcher) alreadyDone(ctx context.Context, typ model.PunishmentType, id model.Identifier) (string, bool) {
	switch typ.Basic() {
	case model.Ban:
		if d.cache.IsBanned(ctx, id) {
			return "Ban.AlreadyDone", true
		}
	case model.Mute:
		if d.cache.IsMuted(ctx, id) {
			return "Mute.AlreadyDone", true
		}
	}
	return "", false
}
