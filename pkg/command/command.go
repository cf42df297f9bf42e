// Package command implements the operator commands: issuing and revoking
// punishments, changing reasons and inspecting the record of an identity.
//
// Commands are plain text lines such as "tempban alice 1d spamming". A
// Dispatcher parses them, checks the sender's permission and replies with
// catalog messages. It also implements host.Commands so warn actions run
// through the same code.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/NicolasHaas/sanction/pkg/config"
	"github.com/NicolasHaas/sanction/pkg/host"
	"github.com/NicolasHaas/sanction/pkg/model"
	"github.com/NicolasHaas/sanction/pkg/punish"
	"github.com/NicolasHaas/sanction/pkg/rbac"
)

var (
	ErrUnknownCommand = errors.New("command: unknown command")
	ErrUsage          = errors.New("command: usage")
	ErrPermission     = errors.New("command: permission denied")
)

// Sender is whoever runs a command.
type Sender interface {
	Name() string
	Role() model.Role
	Reply(lines []string)
}

// Console is the server console. It holds every permission. Replies go to
// Out, or to Logger when Out is nil.
type Console struct {
	Out    io.Writer
	Logger *slog.Logger
}

func (Console) Name() string     { return "CONSOLE" }
func (Console) Role() model.Role { return model.RoleAdmin }

func (c Console) Reply(lines []string) {
	if c.Out != nil {
		for _, line := range lines {
			_, _ = fmt.Fprintln(c.Out, line)
		}
		return
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("command reply", "text", strings.Join(lines, "\n"))
}

// SessionSender runs commands on behalf of a connected session.
type SessionSender struct {
	Session  *model.Session
	Sessions host.Sessions
}

func (s SessionSender) Name() string         { return s.Session.Name }
func (s SessionSender) Role() model.Role     { return s.Session.Role }
func (s SessionSender) Reply(lines []string) { s.Sessions.SendMessage(s.Session, lines) }

// Permission returns the permission required to run the named command.
func Permission(name string) model.Permission {
	return model.Permission("sanction.command." + name)
}

// Options configures a Dispatcher. Cache, Config and Sessions are required.
type Options struct {
	Cache    *punish.Cache
	Config   config.Source
	Sessions host.Sessions
	Logger   *slog.Logger
	Now      func() time.Time
}

type handler struct {
	usage   string
	minArgs int
	run     func(ctx context.Context, s Sender, args []string) error
}

// Dispatcher routes command lines to their handlers.
type Dispatcher struct {
	cache    *punish.Cache
	cfg      config.Source
	sessions host.Sessions
	logger   *slog.Logger
	now      func() time.Time

	handlers map[string]handler
}

var _ host.Commands = (*Dispatcher)(nil)

// New creates a Dispatcher with every command registered.
func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	d := &Dispatcher{
		cache:    opts.Cache,
		cfg:      opts.Config,
		sessions: opts.Sessions,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	d.handlers = map[string]handler{
		"unpunish":      {"unpunish <id>", 1, d.unpunish},
		"unban":         d.revoke(model.Ban, "banned"),
		"unmute":        d.revoke(model.Mute, "muted"),
		"change-reason": {"change-reason <id> [reason]", 1, d.changeReason},
		"check":         {"check <target>", 1, d.check},
		"history":       {"history <target>", 1, d.history},
		"warns":         {"warns <target>", 1, d.warns},
	}
	for _, typ := range model.AllTypes() {
		d.handlers[typ.PermissionName()] = d.punish(typ)
	}
	return d
}

// Names returns the registered command names.
func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.handlers))
	for name := range d.handlers {
		names = append(names, name)
	}
	return names
}

// Usage returns the usage line of a command.
func (d *Dispatcher) Usage(name string) (string, bool) {
	h, ok := d.handlers[name]
	return h.usage, ok
}

// Execute runs line as the console. Replies are logged.
func (d *Dispatcher) Execute(ctx context.Context, line string) error {
	return d.Run(ctx, Console{Logger: d.logger}, line)
}

// Run parses and runs one command line on behalf of sender. Failures other
// than usage and permission errors are logged in full and reported to the
// sender as General.Failed.
func (d *Dispatcher) Run(ctx context.Context, sender Sender, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return fmt.Errorf("%w: empty line", ErrUnknownCommand)
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	h, ok := d.handlers[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	if !rbac.HasPermission(sender.Role(), Permission(name)) {
		sender.Reply(d.text("General.NoPermission", "COMMAND", name))
		return fmt.Errorf("%w: %s", ErrPermission, name)
	}

	args := fields[1:]
	if len(args) < h.minArgs {
		return d.usage(sender, h.usage)
	}
	err := h.run(ctx, sender, args)
	if err != nil && !errors.Is(err, ErrUsage) {
		d.logger.Error("command failed", "command", name, "sender", sender.Name(), "err", err)
		sender.Reply(d.text("General.Failed"))
	}
	return err
}

func (d *Dispatcher) usage(sender Sender, usage string) error {
	sender.Reply(d.text("General.Usage", "USAGE", usage))
	return fmt.Errorf("%w: %s", ErrUsage, usage)
}

// text renders a catalog message that is not tied to a punishment.
func (d *Dispatcher) text(key string, params ...string) []string {
	cfg := d.cfg.Current()
	return cfg.Catalog().Lines(key, append(params, "PREFIX", cfg.PrefixText())...)
}

type target struct {
	id      model.Identifier
	name    string
	session *model.Session
}

// resolve turns a command argument into a target. Online names, account
// UUIDs and addresses are accepted. With want set, the identifier must be of
// that kind; an online account can stand in for its address.
func (d *Dispatcher) resolve(arg string, want model.IdentifierKind) (target, bool) {
	if sess := d.sessions.ByName(arg); sess != nil {
		account, address := sess.Identifiers()
		if want == model.IdentifierAddress {
			return target{id: address, name: sess.Name, session: sess}, true
		}
		return target{id: account, name: sess.Name, session: sess}, true
	}

	id, err := model.ParseIdentifier(arg)
	if err != nil {
		return target{}, false
	}
	t := target{id: id, name: arg}
	if online := d.sessions.Connected(id); len(online) > 0 {
		t.session = online[0]
		t.name = online[0].Name
	}
	switch {
	case want == model.IdentifierNone || want == id.Kind():
		return t, true
	case want == model.IdentifierAddress && t.session != nil:
		t.id = model.AddressID(t.session.Address)
		return t, true
	}
	return target{}, false
}
