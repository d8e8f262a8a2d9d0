package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pixeltennis/pixeltennis/internal/loadtest"
)

var loadtestCmd = &cobra.Command{
	Use:     "loadtest",
	GroupID: "advanced",
	Short:   "Load test the configured remote store",
	Long: `Simulate concurrent players uploading their journals to the configured
remote (remote.mode http or postgres) and report request latency.

Simulated users are named <prefix>-0000, <prefix>-0001 and so on. Point this
at a test server: the generated logs are left in place.

Example:
  pt loadtest --players 50 --logs 100 --batch 20`,
	Run: func(cmd *cobra.Command, args []string) {
		ltCfg := loadtest.DefaultConfig()
		ltCfg.Players, _ = cmd.Flags().GetInt("players")
		ltCfg.LogsPerPlayer, _ = cmd.Flags().GetInt("logs")
		ltCfg.BatchSize, _ = cmd.Flags().GetInt("batch")
		ltCfg.UserPrefix, _ = cmd.Flags().GetString("prefix")
		ltCfg.Seed, _ = cmd.Flags().GetInt64("seed")

		rs, closeRemote, err := openRemote(cfg, logger)
		if err != nil {
			fatalf("%v", err)
		}
		if rs == nil {
			fatalf("no remote configured (set remote.mode to http or postgres)")
		}
		if closeRemote != nil {
			defer closeRemote()
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Printf("Running %d players x %d logs...\n", ltCfg.Players, ltCfg.LogsPerPlayer)
		res, err := loadtest.Run(ctx, rs, ltCfg)
		if err != nil {
			fatalf("load test failed: %v", err)
		}
		res.Print(os.Stdout)
		if res.Writes.Errors+res.Reads.Errors > 0 || res.Missing > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	def := loadtest.DefaultConfig()
	loadtestCmd.Flags().Int("players", def.Players, "Concurrent simulated players")
	loadtestCmd.Flags().Int("logs", def.LogsPerPlayer, "Logs uploaded per player")
	loadtestCmd.Flags().Int("batch", def.BatchSize, "Logs per upload request (1 sends them one by one)")
	loadtestCmd.Flags().String("prefix", def.UserPrefix, "Prefix of the simulated user ids")
	loadtestCmd.Flags().Int64("seed", def.Seed, "Random seed for the generated journals")

	rootCmd.AddCommand(loadtestCmd)
}
