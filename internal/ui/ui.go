// Package ui renders journal data for the terminal.
package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/pixeltennis/pixeltennis/internal/gamify"
	"github.com/pixeltennis/pixeltennis/internal/schema"
	"github.com/pixeltennis/pixeltennis/internal/syncengine"
)

const barWidth = 20

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Renderer formats output for one writer.
type Renderer struct {
	r *lipgloss.Renderer

	heading lipgloss.Style
	label   lipgloss.Style
	muted   lipgloss.Style
	good    lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	box     lipgloss.Style
}

// New returns a renderer with the color profile detected for w.
func New(w io.Writer) *Renderer {
	return newRenderer(lipgloss.NewRenderer(w))
}

// NewPlain returns a renderer that never emits escape sequences.
func NewPlain(w io.Writer) *Renderer {
	r := lipgloss.NewRenderer(w)
	r.SetColorProfile(termenv.Ascii)
	return newRenderer(r)
}

func newRenderer(r *lipgloss.Renderer) *Renderer {
	return &Renderer{
		r:       r,
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#2a9d8f")),
		label:   r.NewStyle().Width(10),
		muted:   r.NewStyle().Foreground(lipgloss.Color("#888888")),
		good:    r.NewStyle().Foreground(lipgloss.Color("#2ecc71")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#f4a261")),
		bad:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("#e63946")),
		box:     r.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1),
	}
}

func (r *Renderer) Success(msg string) string { return r.good.Render("✓ " + msg) }
func (r *Renderer) Warning(msg string) string { return r.warn.Render("! " + msg) }
func (r *Renderer) Error(msg string) string   { return r.bad.Render("✗ " + msg) }

// Profile renders the profile card with its stat bars.
func (r *Renderer) Profile(p schema.Profile) string {
	name := p.ProfileName
	if name == "" {
		name = "(unnamed)"
	}
	gear := r.r.NewStyle().Foreground(lipgloss.Color(p.GearColor)).Render("●")

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", gear, r.heading.Render(name))
	fmt.Fprintf(&b, "Lv.%d %s\n", p.Level, gamify.Title(p.Level))
	fmt.Fprintf(&b, "%s %s\n\n", r.ExpBar(p.Exp), r.muted.Render(fmt.Sprintf("%d/%d exp", p.Exp, schema.MaxExp)))
	b.WriteString(r.StatBars(p.Stats))
	return r.box.Render(strings.TrimRight(b.String(), "\n"))
}

// ExpBar renders progress towards the next level.
func (r *Renderer) ExpBar(exp int) string {
	filled := min(max(exp, 0)*barWidth/schema.MaxExp, barWidth)
	return r.good.Render(strings.Repeat("█", filled)) + r.muted.Render(strings.Repeat("░", barWidth-filled))
}

// StatBars renders one bar per skill scaled to the highest value.
func (r *Renderer) StatBars(stats schema.Stats) string {
	top := 1
	for _, k := range schema.StatKeys {
		top = max(top, stats.Get(k))
	}
	var b strings.Builder
	for _, k := range schema.StatKeys {
		v := stats.Get(k)
		n := max(v, 0) * barWidth / top
		fmt.Fprintf(&b, "%s %s %d\n", r.label.Render(string(k)), strings.Repeat("▇", n), v)
	}
	return b.String()
}

// LogTable renders logs one per line, newest first as given.
func (r *Renderer) LogTable(logs []schema.TrainingLog) string {
	if len(logs) == 0 {
		return r.muted.Render("No training logs yet.")
	}
	var b strings.Builder
	for _, l := range logs {
		fmt.Fprintf(&b, "%s  %-8s %4d min  %s  %s",
			l.Date, l.Type, l.Duration, stars(l.Satisfaction), r.muted.Render(l.ID))
		if g := describeGain(l.GainedStats); g != "" {
			fmt.Fprintf(&b, "  %s", g)
		}
		if l.Note != "" {
			fmt.Fprintf(&b, "\n            %s", l.Note)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func stars(n int) string {
	n = min(max(n, 0), 5)
	return strings.Repeat("★", n) + strings.Repeat("☆", 5-n)
}

func describeGain(s schema.Stats) string {
	parts := make([]string, 0, len(schema.StatKeys))
	for _, k := range schema.StatKeys {
		if v := s.Get(k); v != 0 {
			parts = append(parts, fmt.Sprintf("%s+%d", k, v))
		}
	}
	return strings.Join(parts, " ")
}

// Streak renders the streak summary.
func (r *Renderer) Streak(s gamify.Streak) string {
	return fmt.Sprintf("%s %d days (longest %d, %d this week)",
		r.heading.Render("Streak"), s.Current, s.Longest, s.ThisWeek)
}

// Achievements renders unlocked achievements first, then progress on the
// rest.
func (r *Renderer) Achievements(list []gamify.Achievement) string {
	var unlocked, locked []string
	for _, a := range list {
		if a.Unlocked {
			unlocked = append(unlocked, fmt.Sprintf("%s %s %s", r.good.Render("🏆"), a.Title, r.muted.Render(a.Description)))
			continue
		}
		locked = append(locked, fmt.Sprintf("%s %s %s", r.muted.Render("·"), a.Title,
			r.muted.Render(fmt.Sprintf("%d/%d", a.Progress, a.Threshold))))
	}
	out := append(unlocked, locked...)
	return fmt.Sprintf("%s %d/%d\n%s", r.heading.Render("Achievements"), len(unlocked), len(list), strings.Join(out, "\n"))
}

// Report renders monthly minutes as a bar chart.
func (r *Renderer) Report(months []gamify.MonthTotal) string {
	top := 1
	for _, m := range months {
		top = max(top, m.TotalMinutes)
	}
	var b strings.Builder
	for _, m := range months {
		n := m.TotalMinutes * barWidth / top
		fmt.Fprintf(&b, "%s %-4s %s %d min (%d)\n", m.YearMonth, m.Month, strings.Repeat("▇", n), m.TotalMinutes, m.Count)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SyncStatus renders the engine status line.
func (r *Renderer) SyncStatus(st syncengine.Status) string {
	var indicator string
	switch st.Indicator {
	case syncengine.IndicatorSynced:
		indicator = r.good.Render("● synced")
	case syncengine.IndicatorSyncing:
		indicator = r.warn.Render("◌ syncing")
	case syncengine.IndicatorPending:
		indicator = r.warn.Render(fmt.Sprintf("● %d pending", st.Pending))
	default:
		indicator = r.muted.Render(fmt.Sprintf("○ offline (%d pending)", st.Pending))
	}

	var b strings.Builder
	b.WriteString(indicator)
	if !st.SignedIn {
		b.WriteString(r.muted.Render("  local only: not signed in"))
	}
	if !st.LastFlush.IsZero() {
		fmt.Fprintf(&b, "\nlast flush %s", st.LastFlush.Format("2006-01-02 15:04:05"))
		if res := st.LastResult; res != nil {
			fmt.Fprintf(&b, " (%d sent, %d failed)", res.Succeeded, res.Failed)
		}
	}
	if st.StorageWarning != "" {
		b.WriteString("\n" + r.Warning(st.StorageWarning))
	}
	return b.String()
}
