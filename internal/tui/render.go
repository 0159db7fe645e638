package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kingrea/stubflow/internal/logbook"
	"github.com/kingrea/stubflow/internal/orchestrator"
	"github.com/kingrea/stubflow/internal/phase"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	statusStyles = map[orchestrator.Status]lipgloss.Style{
		orchestrator.StatusSucceeded: lipgloss.NewStyle().Foreground(lipgloss.Color("#4CD964")),
		orchestrator.StatusSatisfied: lipgloss.NewStyle().Foreground(lipgloss.Color("#4CD964")),
		orchestrator.StatusFailed:    errorStyle,
		orchestrator.StatusSkipped:   mutedStyle,
	}
	levelStyles = map[logbook.Level]lipgloss.Style{
		logbook.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F5A623")),
		logbook.LevelError: errorStyle,
	}
	statusGlyphs = map[orchestrator.Status]string{
		orchestrator.StatusSucceeded: "✓",
		orchestrator.StatusSatisfied: "=",
		orchestrator.StatusFailed:    "✗",
		orchestrator.StatusSkipped:   "-",
	}
)

// RenderPhaseTable renders phases with their requirements and descriptions.
func RenderPhaseTable(phases []phase.Phase) string {
	rows := make([][]string, 0, len(phases))
	for _, p := range phases {
		requires := "-"
		if len(p.Requires) > 0 {
			requires = strings.Join(p.Requires, ", ")
		}
		rows = append(rows, []string{p.Name, requires, p.Description})
	}
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers("PHASE", "REQUIRES", "DESCRIPTION").
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.Render()
}

// RenderPlan renders a resolved dispatch order.
func RenderPlan(plan []string) string {
	var b strings.Builder
	for i, name := range plan {
		fmt.Fprintf(&b, "%2d. %s\n", i+1, name)
	}
	return b.String()
}

// RenderReport summarizes a dispatch, one line per phase and step.
func RenderReport(report orchestrator.Report) string {
	var b strings.Builder
	title := fmt.Sprintf("%s %s", report.Target, report.Status)
	if report.DryRun {
		title += " (dry run)"
	}
	b.WriteString(headerStyle.UnsetPadding().Render(title))
	b.WriteString(mutedStyle.Render("  run " + report.RunID))
	b.WriteString("\n")
	for _, p := range report.Phases {
		fmt.Fprintf(&b, "%s %s\n", glyph(p.Status), p.Name)
		for _, s := range p.Steps {
			fmt.Fprintf(&b, "    %s %s\n", glyph(s.Status), s.Op)
			if s.Status == orchestrator.StatusFailed && s.Error != "" {
				b.WriteString("      " + errorStyle.Render(s.Error) + "\n")
			}
		}
	}
	if len(report.Phases) == 0 && report.Error != "" {
		b.WriteString(errorStyle.Render(report.Error) + "\n")
	}
	return b.String()
}

// RenderJournal renders journal entries oldest first in local time.
// earlier is the number of older lines not shown.
func RenderJournal(entries []logbook.Entry, earlier int) string {
	var b strings.Builder
	if earlier > 0 {
		b.WriteString(mutedStyle.Render(fmt.Sprintf("... %d earlier journal lines", earlier)) + "\n")
	}
	for _, e := range entries {
		level := fmt.Sprintf("%-5s", e.Level)
		if style, ok := levelStyles[e.Level]; ok {
			level = style.Render(level)
		}
		fmt.Fprintf(&b, "%s %s %s\n", mutedStyle.Render(e.Time.Local().Format("2006-01-02 15:04:05")), level, e.Message)
	}
	return b.String()
}

func glyph(status orchestrator.Status) string {
	g, ok := statusGlyphs[status]
	if !ok {
		g = "?"
	}
	style, ok := statusStyles[status]
	if !ok {
		return g
	}
	return style.Render(g)
}
