package main

import (
	"github.com/spf13/cobra"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Run the daemon with the live status dashboard",
	Long: `Run the sync daemon with a WebSocket dashboard that shows the scheduler
state and every sync as it happens.

WebSocket messages:
- state:    scheduler state changed (idle, dirty, flushing, polling)
- mutation: a local edit was accepted
- sync:     a seed, flush or poll finished, with merge counts
- status:   per-context summary, sent on connect and every second

Example usage:
  hivesync dashboard                 # Start on default port 7420
  hivesync dashboard --port 9000     # Start on custom port

Connect with a WebSocket client:
  ws://localhost:7420/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg.Dashboard.Enabled = true
		if cmd.Flags().Changed("port") {
			cfg.Dashboard.Port, _ = cmd.Flags().GetInt("port")
		}
		if err := runDaemon(cfg, ""); err != nil {
			fatal("daemon stopped: %v", err)
		}
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 7420, "Port to listen on")
	rootCmd.AddCommand(dashboardCmd)
}
