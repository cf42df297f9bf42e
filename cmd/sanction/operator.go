package main

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/sanction/pkg/command"
	"github.com/NicolasHaas/sanction/pkg/config"
	"github.com/NicolasHaas/sanction/pkg/model"
)

// newOperatorCmds exposes every operator command as a one-shot subcommand,
// e.g. "sanction tempban 069a79f4-44e9-4726-a5be-fca90e38aaf5 1d spam".
// Targets must be account ids or addresses since nobody is online.
func newOperatorCmds(o *rootOptions) []*cobra.Command {
	verbs := make(map[string]bool)
	for _, typ := range model.AllTypes() {
		verbs[typ.PermissionName()] = true
	}

	// Names and usage lines do not depend on the dispatcher's options.
	catalog := command.New(command.Options{})
	names := catalog.Names()
	slices.Sort(names)

	cmds := make([]*cobra.Command, 0, len(names))
	for _, name := range names {
		usage, _ := catalog.Usage(name)
		cmd := &cobra.Command{
			Use:     strings.Replace(usage, " [-s]", "", 1),
			Short:   "Run the " + name + " operator command",
			GroupID: "operator",
			Args:    cobra.MinimumNArgs(1),
		}
		var silent bool
		if verbs[name] {
			cmd.Flags().BoolVarP(&silent, "silent", "s", false, "Do not broadcast the punishment")
		}
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			words := append([]string{name, args[0]}, args[1:]...)
			if silent {
				words = slices.Insert(words, 2, "-s")
			}
			return o.runOnce(cmd, strings.Join(words, " "))
		}
		cmds = append(cmds, cmd)
	}
	return cmds
}

// runOnce opens the store, runs line as the console and flushes the side
// effects it scheduled.
func (o *rootOptions) runOnce(cmd *cobra.Command, line string) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd.Context(), config.NewStatic(cfg), logger)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	err = rt.dispatcher.Run(cmd.Context(), command.Console{Out: cmd.OutOrStdout()}, line)
	rt.queue.RunPending()
	return err
}
