package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/pixeltennis/pixeltennis/internal/schema"
	"github.com/pixeltennis/pixeltennis/internal/store"
	"github.com/pixeltennis/pixeltennis/internal/ui"
)

// gearColors are the presets offered during onboarding.
var gearColors = []string{"#2a9d8f", "#e76f51", "#264653", "#e9c46a", "#6a4c93", "#1d3557"}

var profileCmd = &cobra.Command{
	Use:     "profile",
	GroupID: "journal",
	Short:   "Show or change the player profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the profile card",
	Run: func(cmd *cobra.Command, args []string) {
		asJSON, _ := cmd.Flags().GetBool("json")
		a := mustOpenApp(cmd)
		defer a.close()

		p := a.store.Profile()
		if asJSON {
			printJSON(p)
			return
		}
		fmt.Println(a.out.Profile(p))
	},
}

var profileSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change the profile name or gear color",
	Run: func(cmd *cobra.Command, args []string) {
		u, err := profileUpdateFromFlags(cmd)
		if err != nil {
			fatalf("%v", err)
		}
		if u.IsEmpty() {
			fatalf("nothing to change (use --name or --gear-color)")
		}

		a := mustOpenApp(cmd)
		defer a.close()
		p, err := a.engine.UpdateProfile(cmd.Context(), u)
		if err != nil {
			fatalf("failed to update profile: %v", err)
		}
		fmt.Println(a.out.Profile(p))
	},
}

func profileUpdateFromFlags(cmd *cobra.Command) (store.ProfileUpdate, error) {
	var u store.ProfileUpdate
	if cmd.Flags().Changed("name") {
		name, _ := cmd.Flags().GetString("name")
		name = strings.TrimSpace(name)
		u.ProfileName = &name
	}
	if cmd.Flags().Changed("gear-color") {
		color, _ := cmd.Flags().GetString("gear-color")
		if err := schema.ValidateGearColor(color); err != nil {
			return store.ProfileUpdate{}, err
		}
		u.GearColor = &color
	}
	return u, nil
}

var onboardCmd = &cobra.Command{
	Use:     "onboard",
	GroupID: "journal",
	Short:   "Set up the player profile",
	Long: `Pick a profile name and gear color and mark onboarding as done.

On a terminal without flags this opens an interactive form.`,
	Run: func(cmd *cobra.Command, args []string) {
		u, err := profileUpdateFromFlags(cmd)
		if err != nil {
			fatalf("%v", err)
		}

		a := mustOpenApp(cmd)
		defer a.close()

		if u.IsEmpty() && ui.IsTerminal(os.Stdin) {
			u, err = runOnboardWizard(a.store.Profile())
			if errors.Is(err, huh.ErrUserAborted) {
				fmt.Println("Cancelled")
				return
			}
			if err != nil {
				fatalf("%v", err)
			}
		}
		done := true
		u.OnboardingComplete = &done

		p, err := a.engine.UpdateProfile(cmd.Context(), u)
		if err != nil {
			fatalf("failed to update profile: %v", err)
		}
		fmt.Println(a.out.Profile(p))
		fmt.Println(a.out.Success("Ready. Record your first session with `pt log add`."))
	},
}

func runOnboardWizard(current schema.Profile) (store.ProfileUpdate, error) {
	name := current.ProfileName
	color := current.GearColor
	options := make([]huh.Option[string], 0, len(gearColors))
	for _, c := range gearColors {
		options = append(options, huh.NewOption(c, c))
	}
	form := huh.NewForm(huh.NewGroup(
		huh.NewInput().Title("Player name").Value(&name).CharLimit(32),
		huh.NewSelect[string]().Title("Gear color").Options(options...).Value(&color),
	))
	if err := form.Run(); err != nil {
		return store.ProfileUpdate{}, err
	}
	name = strings.TrimSpace(name)
	return store.ProfileUpdate{ProfileName: &name, GearColor: &color}, nil
}

func init() {
	profileShowCmd.Flags().Bool("json", false, "Output JSON")

	for _, c := range []*cobra.Command{profileSetCmd, onboardCmd} {
		c.Flags().String("name", "", "Player name")
		c.Flags().String("gear-color", "", "Gear color as #rrggbb")
	}

	profileCmd.AddCommand(profileShowCmd, profileSetCmd)
	rootCmd.AddCommand(profileCmd, onboardCmd)
}
