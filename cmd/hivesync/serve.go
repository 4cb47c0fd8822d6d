package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hivelog/hivesync/internal/replica/remote/server"
	"github.com/hivelog/hivesync/internal/replica/remote/sqlstore"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Run the remote replica server",
	Long: `Serve remote replicas over HTTP for clients using the http driver.
Replicas are kept in SQLite or Postgres.

Configuration comes from the environment:
  HIVESYNC_LISTEN_ADDR       listen address (default :8080)
  HIVESYNC_STORE_DRIVER      sqlite or pgx (default sqlite)
  HIVESYNC_STORE_DSN         database path or URL (default ./data/replicas.db)
  HIVESYNC_API_KEYS          comma-separated bearer keys; empty disables auth
  HIVESYNC_LOG_FORMAT        json or text
  HIVESYNC_LOG_LEVEL         debug, info, warn or error
  HIVESYNC_SHUTDOWN_TIMEOUT  graceful shutdown limit (default 30s)`,
	Annotations: map[string]string{skipConfig: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		scfg, err := server.LoadConfig()
		if err != nil {
			fatal("%v", err)
		}
		if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
			scfg.ListenAddr = addr
		}

		logger := server.NewLogger(os.Stderr, scfg.LogFormat, scfg.LogLevel)
		slog.SetDefault(logger)

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		store, err := sqlstore.Open(ctx, scfg.StoreDriver, scfg.StoreDSN)
		if err != nil {
			fatal("%v", err)
		}
		defer store.Close()

		srv, err := server.NewServer(scfg, store)
		if err != nil {
			fatal("%v", err)
		}
		if err := srv.Start(); err != nil {
			fatal("%v", err)
		}
		if len(scfg.APIKeys) == 0 {
			logger.Warn("no API keys configured, authentication is disabled")
		}
		logger.Info("serving replicas", "addr", srv.Addr(), "driver", scfg.StoreDriver)

		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), scfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "err", err)
		}
		logger.Info("server stopped")
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (overrides HIVESYNC_LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
