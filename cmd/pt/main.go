package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pixeltennis/pixeltennis/internal/config"
	"github.com/pixeltennis/pixeltennis/internal/logging"
)

var (
	cfgFile   string
	cfg       *config.Config
	logger    *slog.Logger
	logCloser io.Closer = io.NopCloser(nil)
)

var rootCmd = &cobra.Command{
	Use:   "pt",
	Short: "Pixel Tennis: an offline-first tennis training journal",
	Long: `Pixel Tennis records lessons, games and practice sessions, turns them into
experience and skill points, and keeps the journal in sync with a remote
store when one is configured.

The journal always lives on this machine first. Changes made while offline
are queued and sent once the remote is reachable again.

Configuration is read from ~/.config/pixeltennis/config.yaml (or --config),
a .env file in the working directory and PT_ environment variables.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			fatalf("failed to load config: %v", err)
		}
		if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
			loaded.DataDir = dir
		}
		if cmd.Flags().Changed("user") {
			loaded.UserID, _ = cmd.Flags().GetString("user")
		}
		if err := loaded.Validate(); err != nil {
			fatalf("invalid config: %v", err)
		}

		lg, closer, err := logging.New(os.Stderr, loaded.Log)
		if err != nil {
			fatalf("failed to set up logging: %v", err)
		}
		cfg, logger, logCloser = loaded, lg, closer
		slog.SetDefault(logger)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logCloser.Close()
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "journal", Title: "Journal:"},
		&cobra.Group{ID: "progress", Title: "Progress:"},
		&cobra.Group{ID: "sync", Title: "Sync:"},
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default ~/.config/pixeltennis/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory holding the journal (overrides data_dir)")
	rootCmd.PersistentFlags().String("user", "", "Signed-in user id; empty keeps the journal local only")
}

// fatalf reports err on stderr and exits with status 1.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	_ = logCloser.Close()
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
