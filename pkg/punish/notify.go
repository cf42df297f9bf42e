package punish

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/NicolasHaas/sanction/pkg/config"
	"github.com/NicolasHaas/sanction/pkg/duration"
	"github.com/NicolasHaas/sanction/pkg/message"
	"github.com/NicolasHaas/sanction/pkg/model"
)

// Duration renders the time left on p, or its full length with fromStart.
// Permanent punishments render as the General.Permanent message.
func (c *Cache) Duration(p *model.Punishment, fromStart bool) string {
	return c.duration(c.config(), p, fromStart)
}

func (c *Cache) duration(cfg *config.Config, p *model.Punishment, fromStart bool) string {
	catalog := cfg.Catalog()
	if !p.Type().IsTemp() {
		return catalog.Message("General.Permanent")
	}
	base := c.now()
	if fromStart {
		base = p.Start()
	}
	seconds := max(duration.CeilDiv(p.End().UnixMilli()-base.UnixMilli(), 1000), 0)
	unit, params := duration.Split(seconds)
	return catalog.Message("General.TimeLayout"+unit.String(), params...)
}

// Layout renders the message shown to the punished identity: the disconnect
// reason for bans and kicks, the chat notice otherwise.
func (c *Cache) Layout(ctx context.Context, p *model.Punishment) []string {
	count := 0
	if p.Type().Basic() == model.Warning {
		count = c.CurrentWarns(ctx, p.Identifier())
	}
	return c.layout(c.config(), p, count)
}

// LayoutText is Layout joined by newlines.
func (c *Cache) LayoutText(ctx context.Context, p *model.Punishment) string {
	return strings.Join(c.Layout(ctx, p), "\n")
}

// Message renders the catalog entry key with the placeholders of p. Extra
// key/value parameters take precedence over the built-in ones.
func (c *Cache) Message(ctx context.Context, p *model.Punishment, key string, extra ...string) []string {
	cfg := c.config()
	count := 0
	if p.Type().Basic() == model.Warning {
		count = c.CurrentWarns(ctx, p.Identifier())
	}
	return c.render(cfg, p, cfg.Catalog().Lines(key), true, count, extra...)
}

// layout uses the named layout when the reason starts with @name or ~name,
// and the type's own Layout message otherwise.
func (c *Cache) layout(cfg *config.Config, p *model.Punishment, count int) []string {
	reason := c.reasonText(cfg, p)
	if name, rest, ok := layoutReference(reason); ok {
		if lines, ok := cfg.Catalog().Layout(name); ok {
			return c.render(cfg, p, lines, false, count, "REASON", rest)
		}
	}
	return c.render(cfg, p, cfg.Catalog().Lines(p.Type().ConfSection()+".Layout"), false, count)
}

// layoutReference splits "@name rest" into its layout name and the rest.
func layoutReference(reason string) (name, rest string, ok bool) {
	if !strings.HasPrefix(reason, "@") && !strings.HasPrefix(reason, "~") {
		return "", "", false
	}
	name, rest, _ = strings.Cut(reason[1:], " ")
	if name == "" {
		return "", "", false
	}
	return name, strings.TrimSpace(rest), true
}

func (c *Cache) reasonText(cfg *config.Config, p *model.Punishment) string {
	if reason, ok := p.Reason(); ok {
		return reason
	}
	return cfg.DefaultReason
}

// render fills the punishment placeholders into lines. Parameters in extra
// take precedence over the defaults.
func (c *Cache) render(cfg *config.Config, p *model.Punishment, lines []string, fromStart bool, count int, extra ...string) []string {
	id, registered := p.ID()
	idText, hexText := "-1", "-1"
	if registered {
		idText = strconv.FormatInt(id, 10)
		hexText = fmt.Sprintf("%X", id)
	}

	params := append(slices.Clone(extra),
		"OPERATOR", p.Operator(),
		"PREFIX", cfg.PrefixText(),
		"DURATION", c.duration(cfg, p, fromStart),
		"REASON", c.reasonText(cfg, p),
		"NAME", p.Name(),
		"ID", idText,
		"HEXID", hexText,
		"DATE", p.Start().Format(cfg.DateFormat),
		"COUNT", strconv.Itoa(count),
	)
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = message.Render(line, params...)
	}
	return out
}

func renderAction(action, name string, count int, reason string) string {
	return message.Render(action,
		"PLAYER", name,
		"COUNT", strconv.Itoa(count),
		"REASON", reason,
	)
}

func sortByStart(ps []*model.Punishment) {
	slices.SortStableFunc(ps, func(a, b *model.Punishment) int {
		if c := a.Start().Compare(b.Start()); c != 0 {
			return c
		}
		ai, _ := a.ID()
		bi, _ := b.ID()
		return int(ai - bi)
	})
}
