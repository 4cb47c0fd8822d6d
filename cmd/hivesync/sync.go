package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivelog/hivesync/internal/inbox"
	"github.com/hivelog/hivesync/internal/replica/scheduler"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Apply queued edits and flush once",
	Long: `Apply every edit waiting in the inbox and run one flush: pull the remote,
merge, and push the result. Use this when the daemon is not running.

The replica is seeded from the remote first if this device has never
synced the current context.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		logger := newLogger("sync")
		var hist *history
		cl, err := openClient(ctx, cfg, func(e scheduler.Event) {
			if hist != nil {
				hist.Observe(e)
			}
		}, newLogger("scheduler"))
		if err != nil {
			fatal("%v", err)
		}
		defer cl.Close()
		hist = newHistory(cl.store, logger)
		defer hist.Flush()

		current := cl.resolver.Current()
		s, err := cl.resolver.Session(ctx)
		if err != nil {
			fatal("%v", err)
		}

		start := time.Now()
		callCtx, callCancel := context.WithTimeout(ctx, 2*cfg.Sync.Timeout)
		defer callCancel()

		if err := s.Authenticate(callCtx); err != nil {
			errOut.Warning("could not reach the remote: %v", err)
		}

		applied, err := inbox.Drain(cfg.InboxDir(), s, logger)
		if err != nil {
			if errors.Is(err, scheduler.ErrNotSeeded) {
				fatal("%s has never been synced and the remote is unreachable; %d queued edits stay in the inbox", current, countPending())
			}
			fatal("applying inbox: %v", err)
		}

		if err := s.FlushNow(callCtx); err != nil {
			fatal("flush of %s failed: %v (%d edits applied locally, they will be pushed later)", current, err, applied)
		}

		st, err := s.Status()
		if err != nil {
			fatal("%v", err)
		}
		out.Success("Synced %s in %v", current, time.Since(start).Round(time.Millisecond))
		out.Fields(
			"Edits applied", strconv.Itoa(applied),
			"Version", string(st.Version),
			"Tombstones", strconv.Itoa(st.Tombstones),
		)
	},
}

func countPending() int {
	paths, _ := inbox.Pending(cfg.InboxDir())
	return len(paths)
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
