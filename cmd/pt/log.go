package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/pixeltennis/pixeltennis/internal/gamify"
	"github.com/pixeltennis/pixeltennis/internal/schema"
	"github.com/pixeltennis/pixeltennis/internal/ui"
)

var logCmd = &cobra.Command{
	Use:     "log",
	GroupID: "journal",
	Short:   "Add, edit, delete and list training logs",
}

var logAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a training session",
	Long: `Record a lesson, game or practice session.

On a terminal, running without --duration opens an interactive form. Otherwise
the log is built from flags. A new session earns skill points by length
(under 20 min: 0, under 60: 1, under 90: 2, otherwise 3) and every point must
be allocated with --stat.

Examples:
  pt log add --type lesson --duration 60 --stat forehand=1 --stat serve=1
  pt log add --date yesterday --type practice --duration 30 --stat footwork=1 --tag 벽치기
  pt log add --type game --duration 90 --match singles:6-4 --match doubles:3-6 --weather sunny \
      --stat mental=2 --stat serve=1`,
	Run: func(cmd *cobra.Command, args []string) {
		now := time.Now()
		var (
			in  logInput
			err error
		)
		if !cmd.Flags().Changed("duration") && ui.IsTerminal(os.Stdin) && ui.IsTerminal(os.Stdout) {
			in, err = runLogWizard(now, gamify.DefaultCatalog())
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("Cancelled")
				return
			}
		} else {
			in, err = logFromFlags(cmd, now)
		}
		if err != nil {
			fatalf("%v", err)
		}
		if err := gamify.CheckAllocation(in.Log.Duration, in.Gained); err != nil {
			fatalf("%v", err)
		}

		a := mustOpenApp(cmd)
		defer a.close()

		res, err := a.engine.SaveLog(cmd.Context(), in.Log, in.Gained)
		if err != nil {
			fatalf("failed to save log: %v", err)
		}
		fmt.Println(a.out.Success(fmt.Sprintf("Saved %s on %s (+%d exp)", res.Log.Type, res.Log.Date, res.ExpGained)))
		if res.LevelsGained > 0 {
			fmt.Println(a.out.Success(fmt.Sprintf("Level up! Lv.%d %s", res.Profile.Level, gamify.Title(res.Profile.Level))))
		}
		fmt.Println(res.Log.ID)
	},
}

// logFromFlags builds a new log from the add flags.
func logFromFlags(cmd *cobra.Command, now time.Time) (logInput, error) {
	dateText, _ := cmd.Flags().GetString("date")
	typ, _ := cmd.Flags().GetString("type")
	duration, _ := cmd.Flags().GetInt("duration")
	satisfaction, _ := cmd.Flags().GetInt("satisfaction")
	note, _ := cmd.Flags().GetString("note")
	statPairs, _ := cmd.Flags().GetStringArray("stat")
	tags, _ := cmd.Flags().GetStringArray("tag")
	matches, _ := cmd.Flags().GetStringArray("match")
	weather, _ := cmd.Flags().GetString("weather")

	date, err := parseDate(dateText, now)
	if err != nil {
		return logInput{}, err
	}
	gained, err := parseStats(statPairs)
	if err != nil {
		return logInput{}, err
	}
	t := schema.LogType(strings.ToLower(typ))
	details, err := buildDetails(t, tags, matches, weather)
	if err != nil {
		return logInput{}, err
	}
	return logInput{
		Log: schema.TrainingLog{
			Date:         date,
			Type:         t,
			Duration:     duration,
			Satisfaction: satisfaction,
			Note:         note,
			Details:      details,
		},
		Gained: gained,
	}, nil
}

var logEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Change a recorded session",
	Long: `Change fields of a recorded session. Only the flags given are changed.

Editing never grants experience. Passing any --stat replaces the session's
skill points as a whole; the profile totals are adjusted by the difference.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := mustOpenApp(cmd)
		defer a.close()

		l, err := a.store.Log(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		gained, err := applyEditFlags(cmd, &l, time.Now())
		if err != nil {
			fatalf("%v", err)
		}

		res, err := a.engine.SaveLog(cmd.Context(), l, gained)
		if err != nil {
			fatalf("failed to save log: %v", err)
		}
		fmt.Println(a.out.Success(fmt.Sprintf("Updated %s on %s", res.Log.Type, res.Log.Date)))
	},
}

// applyEditFlags changes l in place for every edit flag that was set and
// returns the stat delta to save with it.
func applyEditFlags(cmd *cobra.Command, l *schema.TrainingLog, now time.Time) (schema.Stats, error) {
	flags := cmd.Flags()
	if flags.Changed("date") {
		text, _ := flags.GetString("date")
		date, err := parseDate(text, now)
		if err != nil {
			return schema.Stats{}, err
		}
		l.Date = date
	}
	if flags.Changed("type") {
		typ, _ := flags.GetString("type")
		t := schema.LogType(strings.ToLower(typ))
		if t != l.Type {
			l.Type = t
			l.Details = nil
		}
	}
	if flags.Changed("duration") {
		l.Duration, _ = flags.GetInt("duration")
	}
	if flags.Changed("satisfaction") {
		l.Satisfaction, _ = flags.GetInt("satisfaction")
	}
	if flags.Changed("note") {
		l.Note, _ = flags.GetString("note")
	}
	if flags.Changed("tag") || flags.Changed("match") || flags.Changed("weather") {
		tags, _ := flags.GetStringArray("tag")
		matches, _ := flags.GetStringArray("match")
		weather, _ := flags.GetString("weather")
		details, err := buildDetails(l.Type, tags, matches, weather)
		if err != nil {
			return schema.Stats{}, err
		}
		l.Details = details
	}

	gained := l.GainedStats
	if flags.Changed("stat") {
		pairs, _ := flags.GetStringArray("stat")
		var err error
		if gained, err = parseStats(pairs); err != nil {
			return schema.Stats{}, err
		}
	}
	return gained, nil
}

var logDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a recorded session",
	Long: `Delete a recorded session. Its skill points are taken back from the
profile, never below 1. Experience and level are kept.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		yes, _ := cmd.Flags().GetBool("yes")
		a := mustOpenApp(cmd)
		defer a.close()

		l, err := a.store.Log(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		if !yes && ui.IsTerminal(os.Stdin) {
			ok, err := confirm(fmt.Sprintf("Delete the %s on %s?", l.Type, l.Date))
			if err != nil || !ok {
				fmt.Println("Cancelled")
				return
			}
		}

		if _, err := a.engine.DeleteLog(cmd.Context(), l.ID); err != nil {
			fatalf("failed to delete log: %v", err)
		}
		fmt.Println(a.out.Success("Deleted " + l.ID))
	},
}

var logListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List recorded sessions, newest first",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		typ, _ := cmd.Flags().GetString("type")
		asJSON, _ := cmd.Flags().GetBool("json")

		a := mustOpenApp(cmd)
		defer a.close()

		logs := filterLogs(a.store.Logs(), schema.LogType(strings.ToLower(typ)), limit)
		if asJSON {
			printJSON(logs)
			return
		}
		fmt.Println(a.out.LogTable(logs))
	},
}

// filterLogs keeps logs of type t (all when empty), at most limit of them
// (all when limit <= 0).
func filterLogs(logs []schema.TrainingLog, t schema.LogType, limit int) []schema.TrainingLog {
	out := make([]schema.TrainingLog, 0, len(logs))
	for _, l := range logs {
		if t != "" && l.Type != t {
			continue
		}
		out = append(out, l)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fatalf("failed to encode output: %v", err)
	}
}

func addLogFlags(cmd *cobra.Command) {
	cmd.Flags().String("date", "", "Session date: YYYY-MM-DD or a phrase like \"yesterday\" (default today)")
	cmd.Flags().String("type", string(schema.LogLesson), "Session type: lesson, game or practice")
	cmd.Flags().Int("duration", 0, "Length in minutes (1-480)")
	cmd.Flags().Int("satisfaction", 3, "How it went, 0-5")
	cmd.Flags().String("note", "", "Free-form note")
	cmd.Flags().StringArray("stat", nil, "Skill points as key=n (repeatable)")
	cmd.Flags().StringArray("tag", nil, "Tag for lessons and practice (repeatable)")
	cmd.Flags().StringArray("match", nil, "Game match as type:mine-theirs, e.g. singles:6-4 (repeatable)")
	cmd.Flags().String("weather", "", "Game weather: sunny, cloudy, rain, snow or wind")
}

func init() {
	addLogFlags(logAddCmd)
	addLogFlags(logEditCmd)

	logDeleteCmd.Flags().BoolP("yes", "y", false, "Delete without asking")

	logListCmd.Flags().IntP("limit", "n", 20, "Show at most n sessions (0 for all)")
	logListCmd.Flags().String("type", "", "Only sessions of this type")
	logListCmd.Flags().Bool("json", false, "Output JSON")

	logCmd.AddCommand(logAddCmd, logEditCmd, logDeleteCmd, logListCmd)
	rootCmd.AddCommand(logCmd)
}
