// Command hivesync keeps a device's beekeeping records in sync with the
// shared remote replica.
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/hivelog/hivesync/internal/config"
	"github.com/hivelog/hivesync/internal/ui"
)

// skipConfig marks commands that run without the client configuration.
const skipConfig = "skip-config"

var (
	v       = config.New()
	cfg     *config.Config
	out     = ui.New(os.Stdout)
	errOut  = ui.New(os.Stderr)
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "hivesync",
	Short: "Offline-first sync for beekeeping records",
	Long: `hivesync keeps the apiaries, hives, inspections, harvests, calendar events
and seasonal notes on this device in sync with a shared remote replica.

Edits are recorded locally first and reach the remote on the next flush,
a short debounce after the last edit. While idle the daemon polls the remote
and absorbs changes made on other devices. Deletions are remembered as
tombstones so a stale copy elsewhere can never bring a record back.

Each account has a personal partition and one per team; the current
context decides which one this device edits.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[skipConfig] == "true" {
			return nil
		}
		c, err := config.Load(v)
		if err != nil {
			return err
		}
		cfg = c
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "records", Title: "Records:"},
		&cobra.Group{ID: "data", Title: "Import and export:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	pf := rootCmd.PersistentFlags()
	pf.String("data-dir", "", "Data directory (default ~/.hivesync)")
	pf.String("remote", "", "Remote driver: http, sql, s3 or memory")
	pf.String("url", "", "Remote URL for the http driver")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Log sync activity to stderr")

	err := config.BindFlags(v, pf, map[string]string{
		"data_dir":      "data-dir",
		"remote.driver": "remote",
		"remote.url":    "url",
	})
	if err != nil {
		panic(err)
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		errOut.Error("%v", err)
		os.Exit(1)
	}
}

// fatal prints an error and exits.
func fatal(format string, args ...any) {
	errOut.Error(format, args...)
	os.Exit(1)
}

// newLogger returns a component logger for one-shot commands: silent unless
// --verbose is set.
func newLogger(prefix string) *log.Logger {
	var w io.Writer = io.Discard
	if verbose {
		w = os.Stderr
	}
	return log.New(w, fmt.Sprintf("[%s] ", prefix), log.LstdFlags)
}
