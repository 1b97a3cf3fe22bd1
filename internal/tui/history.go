package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/echodoc-ai/echodoc/pkg/doctors"
	"github.com/echodoc-ai/echodoc/pkg/sessions"
)

// RenderHistory lays out past consultations in the order given (the API
// returns newest first). Dates are shown relative to now.
func RenderHistory(recs []sessions.Record, now time.Time) string {
	if len(recs) == 0 {
		return dimStyle.Render("No consultations yet.")
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("%-22s  %-30s  %-12s  %-7s  %s", "SPECIALIST", "NOTES", "WHEN", "REPORT", "SESSION")))
	b.WriteString("\n")
	for _, rec := range recs {
		tag := pendingTag.Render("pending")
		if rec.HasReport() {
			tag = reportTag.Render("ready  ")
		}
		fmt.Fprintf(&b, " %-22s  %-30s  %-12s  %s  %s\n",
			truncate(rec.SelectedDoctor.Specialist, 22),
			truncate(oneLine(rec.Notes), 30),
			relativeTime(rec.CreatedOn, now),
			tag,
			dimStyle.Render(rec.SessionID),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

// RenderDoctors lists the specialist catalog.
func RenderDoctors(agents []doctors.Agent) string {
	rows := make([]string, 0, len(agents)+1)
	rows = append(rows, headerStyle.Render("Available specialists"))
	for _, a := range agents {
		line := lipgloss.JoinHorizontal(lipgloss.Top,
			titleStyle.Render(fmt.Sprintf("%-22s", a.Specialist)),
			dimStyle.Render(a.Description),
		)
		if a.SubscriptionRequired {
			line += " " + pendingTag.Render("(premium)")
		}
		rows = append(rows, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func relativeTime(raw string, now time.Time) string {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d/time.Minute))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d/time.Hour))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d/(24*time.Hour)))
	}
	return t.Format("2006-01-02")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
