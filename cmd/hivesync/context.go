package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hivelog/hivesync/internal/replica/scope"
)

var contextCmd = &cobra.Command{
	Use:     "context",
	GroupID: "sync",
	Short:   "Show or switch the partition this device edits",
	Long: `Each account has a personal partition and one per configured team.
Without a subcommand, show the current context and the ones available.`,
	Run: func(cmd *cobra.Command, args []string) {
		cl, err := openLocal(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer cl.Close()

		synced := make(map[scope.Context]bool)
		if list, err := cl.store.Contexts(context.Background()); err == nil {
			for _, c := range list {
				synced[c] = true
			}
		}

		current := cl.resolver.Current()
		available := []scope.Context{scope.PersonalContext()}
		for _, t := range cl.resolver.Teams() {
			available = append(available, scope.TeamContext(t))
		}
		for _, c := range available {
			marker := "  "
			if c == current {
				marker = "* "
			}
			line := marker + c.String()
			if !synced[c] {
				line += out.Subtle("  (not synced on this device)")
			}
			fmt.Println(line)
		}
	},
}

var contextSwitchCmd = &cobra.Command{
	Use:   "switch <personal|team-id>",
	Short: "Make another partition current",
	Long: `Switch the context this device edits. Switching is not a merge: the
replica of the new context is seeded from the remote before edits are
accepted. Edits of the old context that were not pushed yet stay on this
device and are pushed when you switch back.

Restart the daemon after switching.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		target, err := scope.Parse(args[0])
		if err != nil {
			fatal("%v", err)
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		cl, err := openClient(ctx, cfg, nil, newLogger("scheduler"))
		if err != nil {
			fatal("%v", err)
		}
		defer cl.Close()

		previous := cl.resolver.Current()
		s, err := cl.resolver.Switch(ctx, target)
		if err != nil {
			fatal("%v", err)
		}
		if previous == target {
			out.Info("Already on %s", target)
			return
		}
		out.Success("Switched %s -> %s", previous, target)

		seedCtx, seedCancel := context.WithTimeout(ctx, cfg.Sync.Timeout)
		defer seedCancel()
		if err := s.Authenticate(seedCtx); err != nil {
			out.Warning("could not seed %s now (%v); it will be seeded on the next sync", target, err)
		}
	},
}

func init() {
	contextCmd.AddCommand(contextSwitchCmd)
	rootCmd.AddCommand(contextCmd)
}
