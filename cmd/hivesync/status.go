package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivelog/hivesync/internal/inbox"
	"github.com/hivelog/hivesync/internal/replica/localstore"
	"github.com/hivelog/hivesync/internal/replica/schema"
)

// statusReport is the --json form of status.
type statusReport struct {
	Context    string                `json:"context"`
	Teams      []string              `json:"teams,omitempty"`
	Remote     string                `json:"remote"`
	Database   string                `json:"database"`
	Seeded     bool                  `json:"seeded"`
	Dirty      bool                  `json:"dirty"`
	Version    string                `json:"version,omitempty"`
	Counts     entityCounts          `json:"counts"`
	Tombstones int                   `json:"tombstones"`
	Pending    int                   `json:"pendingEdits"`
	Rejected   int                   `json:"rejectedEdits"`
	Recent     []localstore.LogEntry `json:"recent,omitempty"`
}

type entityCounts struct {
	Apiaries    int `json:"apiaries"`
	Hives       int `json:"hives"`
	Inspections int `json:"inspections"`
	Harvests    int `json:"harvests"`
	Events      int `json:"events"`
	Notes       int `json:"notes"`
}

func countEntities(ds *schema.Dataset) entityCounts {
	c := entityCounts{
		Apiaries: len(ds.Apiaries),
		Events:   len(ds.CalendarEvents),
		Notes:    len(ds.SeasonalNotes),
	}
	for _, a := range ds.Apiaries {
		c.Hives += len(a.Hives)
		for _, h := range a.Hives {
			c.Inspections += len(h.Inspections)
			c.Harvests += len(h.Production)
		}
	}
	return c
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show the local replica and recent syncs",
	Long: `Show the current context, whether local edits wait for a push, what the
replica holds and the outcome of recent syncs.

Status reads the local replica only; it never contacts the remote.`,
	Run: func(cmd *cobra.Command, args []string) {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		limit, _ := cmd.Flags().GetInt("recent")
		ctx := context.Background()

		cl, err := openLocal(cfg)
		if err != nil {
			fatal("%v", err)
		}
		defer cl.Close()

		r, err := cl.replica(ctx)
		if err != nil {
			fatal("%v", err)
		}
		recent, err := cl.store.RecentLog(ctx, r.Context, limit)
		if err != nil {
			fatal("%v", err)
		}
		pending, _ := inbox.Pending(cfg.InboxDir())
		rejected, _ := inbox.Pending(filepath.Join(cfg.InboxDir(), inbox.RejectedDir))

		report := statusReport{
			Context:    r.Context.String(),
			Teams:      cl.resolver.Teams(),
			Remote:     cfg.Remote.Driver,
			Database:   cl.store.Path(),
			Seeded:     r.Seeded,
			Dirty:      r.Dirty,
			Version:    string(r.Version),
			Counts:     countEntities(r.Dataset),
			Tombstones: r.Tombstones.Len(),
			Pending:    len(pending),
			Rejected:   len(rejected),
			Recent:     recent,
		}

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				fatal("%v", err)
			}
			return
		}
		printStatus(report)
	},
}

func printStatus(r statusReport) {
	state := "idle"
	if r.Dirty {
		state = "dirty"
	}
	version := r.Version
	if version == "" {
		version = "none"
	}

	fmt.Println(out.Title("Replica " + r.Context))
	out.Fields(
		"State", out.State(state),
		"Remote", r.Remote,
		"Database", r.Database,
		"Version", version,
		"Apiaries", strconv.Itoa(r.Counts.Apiaries),
		"Hives", strconv.Itoa(r.Counts.Hives),
		"Inspections", strconv.Itoa(r.Counts.Inspections),
		"Harvests", strconv.Itoa(r.Counts.Harvests),
		"Events", strconv.Itoa(r.Counts.Events),
		"Notes", strconv.Itoa(r.Counts.Notes),
		"Tombstones", strconv.Itoa(r.Tombstones),
		"Queued edits", strconv.Itoa(r.Pending),
	)
	if !r.Seeded {
		out.Warning("never synced; run 'hivesync sync' or start the daemon")
	}
	if r.Rejected > 0 {
		out.Warning("%d rejected edits in %s", r.Rejected, filepath.Join(cfg.InboxDir(), inbox.RejectedDir))
	}

	if len(r.Recent) == 0 {
		return
	}
	out.Rule()
	for _, e := range r.Recent {
		line := fmt.Sprintf("%s  %-5s %v", e.At.Local().Format(time.DateTime), e.Kind, e.Duration)
		if e.Version != "" {
			line += "  v" + e.Version
		}
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		if e.Outcome == "ok" {
			out.Info("%s", line)
		} else {
			out.Error("%s", line)
		}
	}
}

func init() {
	statusCmd.Flags().Bool("json", false, "Output as JSON")
	statusCmd.Flags().Int("recent", 5, "Number of recent syncs to show")
	rootCmd.AddCommand(statusCmd)
}
