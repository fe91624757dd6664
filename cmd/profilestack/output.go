package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/kalambet/profilestack/internal/profile"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+msg))
}

func printError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+msg))
}

func printWarning(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+msg))
}

func printStatus(label string, format string, args ...any) {
	val := fmt.Sprintf(format, args...)
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, val)
}

func printStep(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+msg))
}

// setupLogging installs a text handler on stderr at the given level name.
func setupLogging(level string) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// describeProfile renders a one-line summary used when choosing between
// two profiles.
func describeProfile(p profile.Profile) string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if name == "" {
		name = "(no name)"
	}
	c := p.Counts()
	return fmt.Sprintf("%s: %d education, %d experience, %d skills, %d projects, %d certifications",
		name, c.Education, c.Experience, c.Skills, c.Projects, c.Certifications)
}

func printProfile(w io.Writer, p profile.Profile) {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	fmt.Fprintln(w, colorize(colorBold, name))
	for _, f := range []struct{ label, value string }{
		{"Email", p.Email},
		{"Phone", p.Phone},
		{"Location", p.Location},
		{"LinkedIn", p.LinkedIn},
		{"GitHub", p.GitHub},
		{"Portfolio", p.Portfolio},
	} {
		if f.value != "" {
			fmt.Fprintf(w, "  %s: %s\n", f.label, f.value)
		}
	}
	if p.Bio != "" {
		fmt.Fprintf(w, "\n  %s\n", p.Bio)
	}
	for _, kind := range profile.Kinds() {
		entries := p.Entries(kind)
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s\n", colorize(colorCyan, string(kind)))
		for _, e := range entries {
			fmt.Fprintf(w, "  %s  %s\n", colorize(colorYellow, e.EntryID()), entryLabel(e))
		}
	}
}

func entryLabel(e profile.Entry) string {
	switch v := e.(type) {
	case profile.Education:
		return v.Degree + ", " + v.Institution
	case profile.Experience:
		return v.Position + " at " + v.Company
	case profile.Skill:
		return fmt.Sprintf("%s (%s)", v.Name, v.Level)
	case profile.Project:
		return v.Title
	case profile.Certification:
		return v.Name + ", " + v.IssuingOrg
	}
	return e.EntryID()
}
