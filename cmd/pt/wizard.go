package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/pixeltennis/pixeltennis/internal/gamify"
	"github.com/pixeltennis/pixeltennis/internal/schema"
	"github.com/pixeltennis/pixeltennis/internal/ui"
)

// logInput is a new log before it is saved.
type logInput struct {
	Log    schema.TrainingLog
	Gained schema.Stats
}

func validateMinutes(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return errors.New("enter a number of minutes")
	}
	if n < schema.MinDuration || n > schema.MaxDuration {
		return fmt.Errorf("between %d and %d minutes", schema.MinDuration, schema.MaxDuration)
	}
	return nil
}

func validateNonNegative(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return errors.New("enter 0 or more")
	}
	return nil
}

// runLogWizard asks for a new log interactively.
func runLogWizard(now time.Time, catalog *gamify.Catalog) (logInput, error) {
	var (
		dateText     = "today"
		typ          = string(schema.LogLesson)
		minutes      = "60"
		satisfaction = 3
		note         string
	)
	typeOptions := make([]huh.Option[string], 0, len(schema.LogTypes))
	for _, t := range schema.LogTypes {
		typeOptions = append(typeOptions, huh.NewOption(string(t), string(t)))
	}
	satisfactionOptions := make([]huh.Option[int], 0, schema.MaxSatisfaction+1)
	for n := schema.MaxSatisfaction; n >= 0; n-- {
		satisfactionOptions = append(satisfactionOptions, huh.NewOption(strings.Repeat("★", n)+strings.Repeat("☆", schema.MaxSatisfaction-n), n))
	}

	basics := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Date").Description("YYYY-MM-DD, today, yesterday, last friday...").
			Value(&dateText).
			Validate(func(s string) error {
				_, err := parseDate(s, now)
				return err
			}),
		huh.NewSelect[string]().Title("Type").Options(typeOptions...).Value(&typ),
		huh.NewInput().Title("Minutes").Value(&minutes).Validate(validateMinutes),
		huh.NewSelect[int]().Title("How did it go?").Options(satisfactionOptions...).Value(&satisfaction),
		huh.NewText().Title("Note").Value(&note),
	))
	if err := basics.Run(); err != nil {
		return logInput{}, err
	}

	date, _ := parseDate(dateText, now)
	duration, _ := strconv.Atoi(strings.TrimSpace(minutes))
	in := logInput{Log: schema.TrainingLog{
		Date:         date,
		Type:         schema.LogType(typ),
		Duration:     duration,
		Satisfaction: satisfaction,
		Note:         strings.TrimSpace(note),
	}}

	details, err := askDetails(in.Log.Type, catalog)
	if err != nil {
		return logInput{}, err
	}
	in.Log.Details = details

	in.Gained, err = askAllocation(duration)
	if err != nil {
		return logInput{}, err
	}
	return in, nil
}

func askDetails(t schema.LogType, catalog *gamify.Catalog) (schema.Details, error) {
	if t == schema.LogGame {
		var (
			matches = "1"
			weather string
		)
		weatherOptions := []huh.Option[string]{huh.NewOption("(skip)", "")}
		for _, w := range schema.Weathers {
			weatherOptions = append(weatherOptions, huh.NewOption(string(w), string(w)))
		}
		form := huh.NewForm(huh.NewGroup(
			huh.NewInput().Title("Matches played").Value(&matches).Validate(func(s string) error {
				n, err := strconv.Atoi(strings.TrimSpace(s))
				if err != nil || n < 1 || n > schema.MaxMatchCount {
					return fmt.Errorf("between 1 and %d", schema.MaxMatchCount)
				}
				return nil
			}),
			huh.NewSelect[string]().Title("Weather").Options(weatherOptions...).Value(&weather),
		))
		if err := form.Run(); err != nil {
			return nil, err
		}
		n, _ := strconv.Atoi(strings.TrimSpace(matches))
		return &schema.GameDetails{MatchCount: n, Weather: schema.Weather(weather)}, nil
	}

	suggested := catalog.SuggestedTags(t)
	if len(suggested) == 0 {
		return nil, nil
	}
	var tags []string
	form := huh.NewForm(huh.NewGroup(
		huh.NewMultiSelect[string]().Title("Tags").Options(huh.NewOptions(suggested...)...).Value(&tags),
	))
	if err := form.Run(); err != nil {
		return nil, err
	}
	if len(tags) == 0 {
		return nil, nil
	}
	return &schema.SessionDetails{Tags: tags}, nil
}

// askAllocation repeats until the points are spent exactly.
func askAllocation(duration int) (schema.Stats, error) {
	budget := gamify.PointsForDuration(duration)
	if budget == 0 {
		return schema.Stats{}, nil
	}

	values := make([]string, len(schema.StatKeys))
	for {
		fields := make([]huh.Field, 0, len(schema.StatKeys)+1)
		fields = append(fields, huh.NewNote().Title(fmt.Sprintf("Spend %d skill points", budget)))
		for i, k := range schema.StatKeys {
			fields = append(fields, huh.NewInput().Title(string(k)).Value(&values[i]).Validate(validateNonNegative))
		}
		if err := huh.NewForm(huh.NewGroup(fields...)).Run(); err != nil {
			return schema.Stats{}, err
		}

		var gained schema.Stats
		for i, k := range schema.StatKeys {
			n, _ := strconv.Atoi(strings.TrimSpace(values[i]))
			gained.Set(k, n)
		}
		err := gamify.CheckAllocation(duration, gained)
		if err == nil {
			return gained, nil
		}
		fmt.Fprintln(os.Stderr, ui.New(os.Stderr).Warning(err.Error()))
	}
}

// confirm asks a yes/no question.
func confirm(title string) (bool, error) {
	var ok bool
	err := huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&ok).Run()
	return ok, err
}
