package main

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pixeltennis/pixeltennis/internal/kv"
	"github.com/pixeltennis/pixeltennis/internal/migrate"
	"github.com/pixeltennis/pixeltennis/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "data",
	Short:   "Write the journal as JSON",
	Long: `Write the whole journal as JSON to file, or to stdout when no file is given.
An existing file is kept as file.backup.<timestamp> before it is replaced.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.close()

		if len(args) == 0 {
			if err := a.store.Export(os.Stdout); err != nil {
				fatalf("export failed: %v", err)
			}
			return
		}

		var buf bytes.Buffer
		if err := a.store.Export(&buf); err != nil {
			fatalf("export failed: %v", err)
		}
		if err := kv.WriteFileAtomic(args[0], buf.Bytes(), true); err != nil {
			fatalf("failed to write %s: %v", args[0], err)
		}
		fmt.Fprintln(os.Stderr, a.out.Success(fmt.Sprintf("Exported %d logs to %s", len(a.store.Logs()), args[0])))
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "data",
	Short:   "Replace the journal with an exported one",
	Long: `Replace the local journal with one written by pt export. Files from older
versions are upgraded; files from newer versions are rejected. Nothing changes
when the file is invalid.

Imported logs are not sent to the remote. Run pt sync migrate --force to upload
them.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		f, err := os.Open(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		defer f.Close()

		a := mustOpenApp(cmd)
		defer a.close()

		res, err := a.store.Import(cmd.Context(), f)
		if err != nil {
			fatalf("import failed: %v", err)
		}
		msg := fmt.Sprintf("Imported %d logs", len(a.store.Logs()))
		if res.From != res.To {
			msg += fmt.Sprintf(" (upgraded from %s)", displayVersion(res.From))
		}
		fmt.Println(a.out.Success(msg))
	},
}

func displayVersion(v string) string {
	if v == "" {
		return "unversioned"
	}
	return v
}

var resetCmd = &cobra.Command{
	Use:     "reset",
	GroupID: "data",
	Short:   "Erase the local journal and the sync queue",
	Long: `Erase every local log, the profile and the sync queue, and forget that the
journal was migrated. Remote data is not touched.`,
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !ui.IsTerminal(os.Stdin) {
				fatalf("refusing to reset without --yes")
			}
			ok, err := confirm("Erase the local journal? This cannot be undone.")
			if err != nil || !ok {
				fmt.Println("Cancelled")
				return
			}
		}

		a := mustOpenApp(cmd)
		defer a.close()

		ctx := cmd.Context()
		if err := a.store.Reset(ctx); err != nil {
			fatalf("reset failed: %v", err)
		}
		if err := a.queue.Clear(ctx); err != nil {
			fatalf("failed to clear sync queue: %v", err)
		}
		if err := a.backend.Delete(ctx, migrate.MigratedKey); err != nil {
			fatalf("failed to clear migration marker: %v", err)
		}
		fmt.Println(a.out.Success("Journal reset"))
	},
}

func init() {
	resetCmd.Flags().BoolP("yes", "y", false, "Reset without asking")

	rootCmd.AddCommand(exportCmd, importCmd, resetCmd)
}
