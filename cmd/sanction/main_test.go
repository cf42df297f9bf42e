package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/NicolasHaas/sanction/pkg/config"
	"github.com/NicolasHaas/sanction/pkg/server"
)

func newTestConsole(t *testing.T) (*console, *runtime, *bytes.Buffer) {
	t.Helper()
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "sanction.db")
	source := config.NewStatic(cfg)

	rt, err := openRuntime(context.Background(), source, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	srv := server.New(server.Dependencies{
		Config:   source,
		Cache:    rt.cache,
		Sessions: rt.sessions,
		Queue:    rt.queue,
		Metrics:  rt.metrics,
	})
	out := &bytes.Buffer{}
	return &console{srv: srv, dispatcher: rt.dispatcher, out: out}, rt, out
}

func TestConsoleFlow(t *testing.T) {
	c, rt, out := newTestConsole(t)
	ctx := context.Background()

	script := strings.Join([]string{
		"join alice 10.0.0.1 Admin",
		"join mallory 10.0.0.9",
		"tempmute mallory 10m spam",
		"chat mallory hello",
		"chat alice hi",
		"ban mallory cheating",
		"quit mallory",
		"join mallory 10.0.0.9",
		"who",
		"frobnicate",
	}, "\n")
	c.Run(ctx, strings.NewReader(script))
	rt.queue.RunPending()

	text := out.String()
	require.Contains(t, text, "alice joined as admin")
	require.Contains(t, text, "[Sanction] mallory is now muted for 10 minutes and 0 seconds.")
	require.Contains(t, text, "You are muted for")
	require.Contains(t, text, "<alice> hi")
	require.Contains(t, text, "[Sanction] mallory is now banned.")
	require.Contains(t, text, "mallory was refused:\nYou are permanently banned.")
	require.Contains(t, text, "1 online")
	require.Contains(t, text, `unknown command "frobnicate", try help`)
}

func TestConsoleAsSession(t *testing.T) {
	c, _, out := newTestConsole(t)
	ctx := context.Background()

	c.handle(ctx, "join bob 10.0.0.2")
	c.handle(ctx, "join carol 10.0.0.3")
	c.handle(ctx, "as bob kick carol")
	require.NotContains(t, out.String(), "carol was kicked")

	c.handle(ctx, "as nobody check carol")
	require.Contains(t, out.String(), "nobody is not online")
}

func TestOfflineIDIsStable(t *testing.T) {
	require.Equal(t, offlineID("Steve"), offlineID("steve"))
	require.NotEqual(t, offlineID("steve"), offlineID("alex"))
}

func TestRootCommands(t *testing.T) {
	run := func(args ...string) string {
		t.Helper()
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetErr(&out)
		root.SetArgs(args)
		require.NoError(t, root.Execute())
		return out.String()
	}

	require.True(t, strings.HasPrefix(run("version"), "sanction "))
	require.Contains(t, run("config", "default"), "warn_actions:")
	require.Contains(t, run("config", "check"), "ok: driver=sqlite")
}

func TestOneShotCommand(t *testing.T) {
	t.Setenv("SANCTION_DB_DSN", filepath.Join(t.TempDir(), "sanction.db"))
	id := "069a79f4-44e9-4726-a5be-fca90e38aaf5"

	run := func(args ...string) string {
		t.Helper()
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(args)
		require.NoError(t, root.Execute())
		return out.String()
	}

	require.Equal(t, "[Sanction] "+id+" is now banned for 1 days, 0 hours, 0 minutes and 0 seconds.\n",
		run("tempban", "-s", id, "1d", "spam"))
	require.Contains(t, run("check", id), "Banned: ")
	require.Equal(t, "[Sanction] "+id+" is no longer banned.\n", run("unban", id))
}
