package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixeltennis/pixeltennis/internal/migrate"
	"github.com/pixeltennis/pixeltennis/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Send queued changes and pull remote ones",
	Long: `Manage synchronization with the remote store.

Every change is saved locally first. While the remote is reachable it is
sent right away; otherwise it waits in the sync queue until the next flush.`,
}

var syncFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Send every queued change now",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.close()
		a.requireSync()
		if !a.engine.Online() {
			fatalf("remote is unreachable; %d changes stay queued", a.queue.Len())
		}

		res, err := a.engine.Flush(cmd.Context())
		if err != nil {
			fatalf("flush failed: %v", err)
		}
		if res.Failed > 0 {
			fmt.Println(a.out.Warning(fmt.Sprintf("Sent %d, %d failed and stay queued", res.Succeeded, res.Failed)))
			return
		}
		fmt.Println(a.out.Success(fmt.Sprintf("Sent %d queued changes", res.Succeeded)))
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Merge the remote journal into the local one",
	Long: `Fetch every remote log and merge by id: remote copies replace local ones,
local-only logs are kept. Skill stats move by the difference in each pulled
log's gained points. Queued changes are sent first so they are not overwritten by older remote copies.`,
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.close()
		a.requireSync()
		if !a.engine.Online() {
			fatalf("remote is unreachable")
		}

		ctx := cmd.Context()
		if a.queue.Len() > 0 {
			if _, err := a.engine.Flush(ctx); err != nil {
				fatalf("flush failed: %v", err)
			}
		}
		res, err := a.engine.PullAndMerge(ctx)
		if err != nil {
			fatalf("pull failed: %v", err)
		}
		fmt.Println(a.out.Success(fmt.Sprintf("Fetched %d logs: %d new, %d replaced, %d local only",
			res.Fetched, res.Merge.Added, res.Merge.Replaced, res.Merge.LocalOnly)))
		if res.ProfileUpdated {
			fmt.Println("Profile name and gear color updated from remote")
		}
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity and the sync queue",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		verbose, _ := cmd.Flags().GetBool("verbose")
		a := mustOpenApp(cmd)
		defer a.close()

		st := a.engine.Status()
		if asJSON {
			printJSON(st)
			return
		}
		fmt.Println(a.out.SyncStatus(st))
		if verbose {
			for _, op := range a.queue.Snapshot() {
				fmt.Printf("  %-14s %s  %s\n", op.Type, op.Key(), time.UnixMilli(op.Timestamp).Format(time.DateTime))
			}
		}
	},
}

var syncMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Upload a journal recorded before signing in",
	Long: `Upload the local profile and every local log to the remote store.

This runs once per journal: after a complete upload a marker is stored and
later runs do nothing unless --force is given. A partial upload leaves no
marker and is retried in full next time.`,
	Run: func(cmd *cobra.Command, args []string) {
		force, _ := cmd.Flags().GetBool("force")
		batch, _ := cmd.Flags().GetInt("batch-size")
		a := mustOpenApp(cmd)
		defer a.close()
		a.requireSync()

		ctx := cmd.Context()
		doc := a.store.Snapshot()
		if !force {
			pending, err := migrate.HasLocalDataToMigrate(ctx, a.backend, doc)
			if err != nil {
				fatalf("%v", err)
			}
			if !pending {
				fmt.Println("Nothing to migrate")
				return
			}
		}

		progress := ui.IsTerminal(os.Stdout)
		res, err := migrate.ToRemote(ctx, a.remote, a.backend, a.cfg.UserID, doc, migrate.RemoteOptions{
			BatchSize: batch,
			Logger:    a.logger.With("component", "migrate"),
			OnProgress: func(done, total int) {
				if progress {
					fmt.Printf("\rUploading %d/%d", done, total)
				}
			},
		})
		if progress {
			fmt.Println()
		}
		if err != nil {
			fatalf("migration failed: %v", err)
		}
		if !res.Success {
			for _, msg := range res.BatchErrors {
				fmt.Fprintln(os.Stderr, a.out.Error(msg))
			}
			if res.ProfileErr != nil {
				fmt.Fprintln(os.Stderr, a.out.Error("profile: "+res.ProfileErr.Error()))
			}
			fatalf("migrated %d logs, %d failed; run again to retry", res.Migrated, res.Errors)
		}
		fmt.Println(a.out.Success(fmt.Sprintf("Migrated %d logs", res.Migrated)))
	},
}

func init() {
	syncStatusCmd.Flags().Bool("json", false, "Output JSON")
	syncStatusCmd.Flags().BoolP("verbose", "v", false, "List queued changes")

	syncMigrateCmd.Flags().Bool("force", false, "Upload even if this journal was migrated before")
	syncMigrateCmd.Flags().Int("batch-size", migrate.DefaultBatchSize, "Logs per upload request")

	syncCmd.AddCommand(syncFlushCmd, syncPullCmd, syncStatusCmd, syncMigrateCmd)
	rootCmd.AddCommand(syncCmd)
}
