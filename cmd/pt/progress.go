package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/pixeltennis/pixeltennis/internal/gamify"
)

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "progress",
	Short:   "Show level, experience and skill stats",
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.close()

		doc := a.store.Snapshot()
		fmt.Println(a.out.Profile(doc.Profile))
		fmt.Printf("%d sessions, %d skill points\n", len(doc.Logs), doc.Stats.Total())
	},
}

var streakCmd = &cobra.Command{
	Use:     "streak",
	GroupID: "progress",
	Short:   "Show the training streak",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		a := mustOpenApp(cmd)
		defer a.close()

		s := gamify.ComputeStreak(a.store.Snapshot().LogDates(), time.Now())
		if asJSON {
			printJSON(s)
			return
		}
		fmt.Println(a.out.Streak(s))
	},
}

var achievementsCmd = &cobra.Command{
	Use:     "achievements",
	GroupID: "progress",
	Short:   "Show unlocked achievements and progress on the rest",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		a := mustOpenApp(cmd)
		defer a.close()

		doc := a.store.Snapshot()
		list := gamify.DefaultCatalog().Evaluate(doc.Logs, doc.Level, doc.Stats, time.Now())
		if asJSON {
			printJSON(list)
			return
		}
		fmt.Println(a.out.Achievements(list))
	},
}

var reportCmd = &cobra.Command{
	Use:     "report",
	GroupID: "progress",
	Short:   "Show training minutes per month",
	Run: func(cmd *cobra.Command, args []string) {
		months, _ := cmd.Flags().GetInt("months")
		asJSON, _ := cmd.Flags().GetBool("json")
		if months < 1 {
			fatalf("--months must be at least 1")
		}
		a := mustOpenApp(cmd)
		defer a.close()

		totals := gamify.AggregateByMonth(a.store.Logs(), months, time.Now())
		if asJSON {
			printJSON(totals)
			return
		}
		fmt.Println(a.out.Report(totals))
	},
}

func init() {
	for _, c := range []*cobra.Command{streakCmd, achievementsCmd, reportCmd} {
		c.Flags().Bool("json", false, "Output JSON")
	}
	reportCmd.Flags().Int("months", gamify.DefaultReportMonths, "Number of months to show, ending with the current one")

	rootCmd.AddCommand(statsCmd, streakCmd, achievementsCmd, reportCmd)
}
