package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/sketchd/internal/sketch"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1)
)

// renderResult formats a run for the terminal.
func renderResult(res *runResult) string {
	var sections []string

	sections = append(sections, headerStyle.Render("sketchd "+res.SketchID))
	sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top,
		field("document", res.Document), "  ",
		field("revision", fmt.Sprint(res.Revision)), "  ",
		field("elapsed", res.Elapsed.Round(time.Microsecond).String()),
	))

	sections = append(sections, sectionStyle.Render(fmt.Sprintf("Shapes (%d)", len(res.Shapes))))
	for _, sh := range res.Shapes {
		line := fmt.Sprintf("%-10s %-8s %s  %s",
			shortID(string(sh.ID)),
			typeLabel(sh.Type),
			valueStyle.Render(fmt.Sprintf("%.3f", sh.Probability)),
			joinStrokes(sh.Strokes))
		if sh.Unresolved {
			line += "  " + warningStyle.Render(fmt.Sprintf("unresolved (%d)", len(sh.Errors)))
		}
		sections = append(sections, line)
	}

	if res.Report != nil {
		r := res.Report
		sections = append(sections, sectionStyle.Render("Verification"))
		sections = append(sections, lipgloss.JoinHorizontal(lipgloss.Top,
			field("submitted", fmt.Sprint(r.Submitted)), "  ",
			field("skipped", fmt.Sprint(r.Skipped)), "  ",
			field("pruned", fmt.Sprint(r.StrokesPruned)), "  ",
			field("unresolved", fmt.Sprint(r.Unresolved)), "  ",
			field("failed", fmt.Sprint(r.Failed)),
		))
	}

	if len(res.Final) > 0 {
		sections = append(sections, sectionStyle.Render(fmt.Sprintf("Final clusters (%d)", len(res.Final))))
		for _, fc := range res.Final {
			score := 0.0
			if fc.Candidate.Score != nil {
				score = fc.Candidate.Score.Value()
			}
			sections = append(sections, fmt.Sprintf("%-10s %s  %s",
				shortID(string(fc.Shape)),
				valueStyle.Render(fmt.Sprintf("%.3f", score)),
				joinStrokes(fc.Candidate.Cluster.StrokeIDs())))
		}
	}

	return containerStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func field(label, value string) string {
	return labelStyle.Render(label+": ") + valueStyle.Render(value)
}

func typeLabel(t string) string {
	if t == "" {
		return dimStyle.Render("-")
	}
	return t
}

func joinStrokes(ids []sketch.StrokeID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return dimStyle.Render("[" + strings.Join(parts, " ") + "]")
}

// shortID trims UUID shape ids for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
