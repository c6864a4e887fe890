// Package gaps renders the diagnostics report for humans. The JSON shape
// itself lives in models; this is the terminal-facing view of it.
package gaps

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/vincentbai/browsetrace-scribe/internal/models"
)

// Render produces the human-readable text for a diagnostics report.
func Render(report *models.UiGapsReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "UI gaps report for session %s (generated %s)\n",
		report.SessionID, humanize.Time(report.GeneratedAt))
	if report.DraftPath != "" {
		fmt.Fprintf(&b, "  draft:  %s\n", report.DraftPath)
	}
	if report.UimapPath != "" {
		fmt.Fprintf(&b, "  ui map: %s\n", report.UimapPath)
	}
	fmt.Fprintf(&b, "  %s: %d %s, %d %s, %d info\n",
		humanize.Comma(int64(report.Stats.Total))+" findings",
		report.Stats.Errors, plural(report.Stats.Errors, "error", "errors"),
		report.Stats.Warnings, plural(report.Stats.Warnings, "warning", "warnings"),
		report.Stats.Infos)

	if len(report.Findings) == 0 {
		b.WriteString("\nno findings: every reference resolved cleanly\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, f := range report.Findings {
		fmt.Fprintf(&b, "%s [%s] %s line %d: %s\n",
			f.ID, strings.ToUpper(string(f.Severity)), f.Code, f.DraftLine, f.Message)
		if f.Route != "" {
			fmt.Fprintf(&b, "    route: %s\n", f.Route)
		}
		if text := strings.TrimSpace(f.StepText); text != "" {
			fmt.Fprintf(&b, "    step:  %s\n", text)
		}
	}
	return b.String()
}

// HasErrors reports whether the run should fail a CI gate.
func HasErrors(report *models.UiGapsReport) bool {
	return report.Stats.Errors > 0
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
