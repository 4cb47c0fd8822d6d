package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/hivelog/hivesync/internal/config"
	"github.com/hivelog/hivesync/internal/dashboard"
	"github.com/hivelog/hivesync/internal/inbox"
	"github.com/hivelog/hivesync/internal/replica/metrics"
	"github.com/hivelog/hivesync/internal/replica/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Run the sync daemon (foreground)",
	Long: `Run the sync daemon in the foreground.

The daemon:
  1. Seeds the replica of the current context from the remote
  2. Watches the inbox for edits written by the record commands
  3. Flushes a short debounce after the last edit
  4. Polls the remote while idle and absorbs changes from other devices

Logs go to stderr and to a rotated log file in the data directory.

Examples:
  hivesync daemon
  hivesync daemon --dashboard --port 7420
  hivesync daemon --metrics-addr 127.0.0.1:9464`,
	Run: func(cmd *cobra.Command, args []string) {
		if cmd.Flags().Changed("dashboard") {
			cfg.Dashboard.Enabled, _ = cmd.Flags().GetBool("dashboard")
		}
		if cmd.Flags().Changed("port") {
			cfg.Dashboard.Port, _ = cmd.Flags().GetInt("port")
		}
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		if err := runDaemon(cfg, metricsAddr); err != nil {
			fatal("daemon stopped: %v", err)
		}
	},
}

// logOutput returns stderr teed into the rotated daemon log.
func logOutput(c *config.Config) (io.Writer, io.Closer) {
	rotated := &lumberjack.Logger{
		Filename:   c.LogPath(),
		MaxSize:    c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		Compress:   true,
	}
	return io.MultiWriter(os.Stderr, rotated), rotated
}

func runDaemon(c *config.Config, metricsAddr string) error {
	logw, logCloser := logOutput(c)
	defer logCloser.Close()
	newLog := func(prefix string) *log.Logger {
		return log.New(logw, "["+prefix+"] ", log.LstdFlags)
	}
	logger := newLog("daemon")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.New(reg)

	observers := []scheduler.Observer{collector.Observer()}

	var (
		dash    *dashboard.Server
		handler *dashboard.Handler
	)
	if c.Dashboard.Enabled {
		dash = dashboard.NewServer(&dashboard.Config{
			Host:   "127.0.0.1",
			Port:   c.Dashboard.Port,
			Logger: newLog("dashboard"),
		})
		handler = dashboard.NewHandler(dash, newLog("dashboard"))
		observers = append(observers, handler.Observer())
	}

	// The history needs the store, which the client opens; route its
	// events through a forwarder set once the client exists.
	var hist *history
	observers = append(observers, func(e scheduler.Event) {
		if hist != nil {
			hist.Observe(e)
		}
	})

	cl, err := openClient(ctx, c, scheduler.Observers(observers...), newLog("scheduler"))
	if err != nil {
		return err
	}
	defer func() {
		if err := cl.Close(); err != nil {
			logger.Printf("Error closing: %v", err)
		}
	}()
	hist = newHistory(cl.store, logger)

	logger.Printf("Starting: context=%s remote=%s data=%s", cl.resolver.Current(), c.Remote.Driver, c.DataDir)
	if _, err := cl.resolver.Session(ctx); err != nil {
		return err
	}

	watcher, err := inbox.NewWithConfig(c.InboxDir(), sessionApplier{ctx: ctx, resolver: cl.resolver}, &inbox.Config{
		DebounceInterval: 100 * time.Millisecond,
		RetryInterval:    2 * time.Second,
		Logger:           newLog("inbox"),
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return watcher.Start(gctx) })
	g.Go(func() error { return hist.Run(gctx) })

	if dash != nil {
		if err := dash.Start(); err != nil {
			return err
		}
		fmt.Printf("Dashboard: http://%s (WebSocket ws://%s/ws)\n", dash.GetAddr(), dash.GetAddr())
		g.Go(func() error {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return dash.Stop()
				case <-ticker.C:
					s, err := cl.resolver.Session(gctx)
					if err != nil {
						continue
					}
					if st, err := s.Status(); err == nil {
						handler.Track(st)
					}
				}
			}
		})
	}

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Printf("Metrics on http://%s/metrics", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	fmt.Println("Press Ctrl+C to stop")
	err = g.Wait()
	logger.Printf("Stopping (inbox applied %d edits)", watcher.Applied())
	return err
}

func init() {
	daemonCmd.Flags().Bool("dashboard", false, "Serve the live status dashboard")
	daemonCmd.Flags().IntP("port", "p", 7420, "Dashboard port")
	daemonCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.AddCommand(daemonCmd)
}
