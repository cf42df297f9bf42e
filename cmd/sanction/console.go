package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NicolasHaas/sanction/pkg/command"
	"github.com/NicolasHaas/sanction/pkg/model"
	"github.com/NicolasHaas/sanction/pkg/server"
)

// console reads operator commands from stdin. Besides the operator commands
// it drives the connection flow so the engine can be tried without a host.
type console struct {
	srv        *server.Server
	dispatcher *command.Dispatcher
	out        io.Writer
}

// Run handles lines until in is exhausted or ctx is cancelled.
func (c *console) Run(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			c.handle(ctx, line)
		}
	}
}

func (c *console) handle(ctx context.Context, line string) {
	fields := strings.Fields(line)
	args := fields[1:]
	switch strings.ToLower(fields[0]) {
	case "join":
		c.join(ctx, args)
	case "quit":
		c.quit(args)
	case "chat":
		c.chat(ctx, args)
	case "as":
		c.as(ctx, args)
	case "who":
		c.who()
	case "sweep":
		c.printf("%d expired punishments removed", c.srv.SweepOnce(ctx))
	case "help":
		c.help()
	default:
		c.run(ctx, command.Console{Out: c.out}, line)
	}
}

func (c *console) run(ctx context.Context, sender command.Sender, line string) {
	if err := c.dispatcher.Run(ctx, sender, line); errors.Is(err, command.ErrUnknownCommand) {
		c.printf("unknown command %q, try help", strings.Fields(line)[0])
	}
}

// offlineID derives a stable account id from a name for simulated sessions.
func offlineID(name string) uuid.UUID {
	return uuid.NewMD5(uuid.Nil, []byte("OfflinePlayer:"+strings.ToLower(name)))
}

func (c *console) join(ctx context.Context, args []string) {
	if len(args) < 2 {
		c.printf("usage: join <name> <address> [user|moderator|admin]")
		return
	}
	name := args[0]
	if c.srv.Sessions().ByName(name) != nil {
		c.printf("%s is already online", name)
		return
	}
	addr, err := netip.ParseAddr(args[1])
	if err != nil {
		c.printf("invalid address %q", args[1])
		return
	}
	role := model.RoleUser
	if len(args) > 2 {
		role = model.ParseRole(strings.ToLower(args[2]))
	}

	id := offlineID(name)
	if reason, ok := c.srv.PreLogin(ctx, id, name, addr); !ok {
		c.printf("%s was refused:\n%s", name, strings.Join(reason, "\n"))
		return
	}
	c.srv.Join(ctx, &model.Session{UUID: id, Name: name, Address: addr, Role: role, JoinedAt: time.Now()})
	c.printf("%s joined as %s (%s)", name, role, id)
}

func (c *console) session(name string) *model.Session {
	sess := c.srv.Sessions().ByName(name)
	if sess == nil {
		c.printf("%s is not online", name)
	}
	return sess
}

func (c *console) quit(args []string) {
	if len(args) < 1 {
		c.printf("usage: quit <name>")
		return
	}
	if sess := c.session(args[0]); sess != nil {
		c.srv.Quit(sess)
		c.printf("%s left", sess.Name)
	}
}

func (c *console) chat(ctx context.Context, args []string) {
	if len(args) < 2 {
		c.printf("usage: chat <name> <text>")
		return
	}
	sess := c.session(args[0])
	if sess == nil {
		return
	}
	if notice, ok := c.srv.CanChat(ctx, sess); !ok {
		c.printf("%s", strings.Join(notice, "\n"))
		return
	}
	c.printf("<%s> %s", sess.Name, strings.Join(args[1:], " "))
}

func (c *console) as(ctx context.Context, args []string) {
	if len(args) < 2 {
		c.printf("usage: as <name> <command>")
		return
	}
	sess := c.session(args[0])
	if sess == nil {
		return
	}
	c.run(ctx, command.SessionSender{Session: sess, Sessions: c.srv.Sessions()}, strings.Join(args[1:], " "))
}

func (c *console) who() {
	online := c.srv.Sessions().Online()
	slices.SortFunc(online, func(a, b *model.Session) int { return strings.Compare(a.Name, b.Name) })
	c.printf("%d online", len(online))
	for _, s := range online {
		c.printf("  %s %s %s", s.Name, s.Address, s.Role)
	}
}

func (c *console) help() {
	names := c.dispatcher.Names()
	slices.Sort(names)
	c.printf("host: join, quit, chat, as, who, sweep")
	for _, name := range names {
		usage, _ := c.dispatcher.Usage(name)
		c.printf("  %s", usage)
	}
}

func (c *console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format+"\n", args...)
}
