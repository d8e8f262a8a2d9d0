package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pixeltennis/pixeltennis/internal/daemon"
	"github.com/pixeltennis/pixeltennis/internal/gamify"
	"github.com/pixeltennis/pixeltennis/internal/status"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Keep the journal in sync in the background",
	Long: `Run in the foreground and keep the local journal in sync.

The daemon probes the remote store, backing off while it is unreachable, and
flushes the sync queue as soon as it comes back. It watches the data directory
so changes made by other pt commands are picked up and sent.

With --status-addr (or daemon.status_addr) it also serves:
  ws://ADDR/ws       live status, flush_complete, level_up and storage_warning
  http://ADDR/status current status as JSON
  http://ADDR/health liveness
  http://ADDR/metrics Prometheus metrics`,
	Run: func(cmd *cobra.Command, args []string) {
		statusAddr, _ := cmd.Flags().GetString("status-addr")
		if !cmd.Flags().Changed("status-addr") {
			statusAddr = cfg.Daemon.StatusAddr
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a := mustOpenApp(cmd)
		defer a.close()

		var statusServer *status.Server
		if statusAddr != "" {
			statusServer = status.NewServer(status.Config{
				Addr:       statusAddr,
				Snapshot:   a.engine.Status,
				LevelTitle: gamify.Title,
				Logger:     logger.With("component", "status"),
			})
			if err := statusServer.Start(); err != nil {
				fatalf("failed to start status server: %v", err)
			}
			defer statusServer.Stop()
			fmt.Printf("Status server on http://%s (WebSocket ws://%s/ws)\n", statusServer.Addr(), statusServer.Addr())
		}

		d, err := daemon.New(a.engine, a.store, a.queue, a.remote, daemon.Config{
			DataDir:          cfg.DataDir,
			ProbeInterval:    cfg.Daemon.ProbeInterval,
			ProbeTimeout:     cfg.Remote.Timeout,
			DebounceInterval: cfg.Daemon.Debounce,
			Status:           statusServer,
			Logger:           logger.With("component", "daemon"),
		})
		if err != nil {
			fatalf("failed to create daemon: %v", err)
		}

		fmt.Printf("Watching %s\n", cfg.DataDir)
		if a.remote == nil || cfg.UserID == "" {
			fmt.Println(a.out.Warning("No remote or user configured; changes stay local"))
		}
		fmt.Println("Press Ctrl+C to stop...")

		if err := d.Start(ctx); err != nil {
			fatalf("daemon failed: %v", err)
		}
		fmt.Println("\nDaemon stopped")
	},
}

func init() {
	daemonCmd.Flags().String("status-addr", "", "Serve status and metrics on this address, e.g. 127.0.0.1:7788")

	rootCmd.AddCommand(daemonCmd)
}
