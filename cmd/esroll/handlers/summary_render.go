package handlers

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/esctl/esroll/internal/rollout"
)

var (
	summaryColorGreen  = lipgloss.Color("#22c55e")
	summaryColorYellow = lipgloss.Color("#eab308")
	summaryColorRed    = lipgloss.Color("#ef4444")
	summaryColorDim    = lipgloss.Color("#6b7280")
	summaryColorWhite  = lipgloss.Color("#f9fafb")
)

var (
	summaryTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(summaryColorWhite)

	summaryDimStyle = lipgloss.NewStyle().
			Foreground(summaryColorDim)

	summaryGreenStyle = lipgloss.NewStyle().
				Foreground(summaryColorGreen)

	summaryYellowStyle = lipgloss.NewStyle().
				Foreground(summaryColorYellow)

	summaryRedStyle = lipgloss.NewStyle().
			Foreground(summaryColorRed)
)

// renderRunSummary produces a styled per-node summary of a run. When stdout
// is not a terminal the output degrades to plain text.
func renderRunSummary(summary *rollout.RunSummary) string {
	if summary == nil {
		return ""
	}

	styled := isTerminal()
	var b strings.Builder

	b.WriteString("\n")
	title := "  esroll summary"
	if !summary.Target.IsZero() {
		title = fmt.Sprintf("  esroll summary (target %s)", summary.Target)
	}
	b.WriteString(render(styled, summaryTitleStyle, title))
	b.WriteString("\n")
	b.WriteString(render(styled, summaryDimStyle, "  "+strings.Repeat("─", 40)))
	b.WriteString("\n")

	for _, outcome := range summary.Outcomes {
		b.WriteString(renderOutcomeLine(styled, outcome))
	}

	b.WriteString(render(styled, summaryDimStyle, "  "+strings.Repeat("─", 40)))
	b.WriteString("\n")

	status := render(styled, summaryRedStyle, "failed")
	if summary.Succeeded {
		status = render(styled, summaryGreenStyle, "succeeded")
	}
	fmt.Fprintf(&b, "  %d nodes processed, %s in %s\n",
		len(summary.Outcomes), status, summary.Duration.Round(100*time.Millisecond))

	return b.String()
}

// renderOutcomeLine renders one node's result line.
func renderOutcomeLine(styled bool, outcome rollout.NodeOutcome) string {
	var indicator, detail string
	var style lipgloss.Style

	switch outcome.Kind {
	case rollout.OutcomeSkipped:
		indicator, style = "○", summaryDimStyle
		detail = "already up to date"
	case rollout.OutcomeUpgraded:
		indicator, style = "✓", summaryGreenStyle
		detail = "upgraded"
	case rollout.OutcomeRebooted:
		indicator, style = "✓", summaryGreenStyle
		detail = "upgraded and rebooted"
	case rollout.OutcomeFailed:
		indicator, style = "✗", summaryRedStyle
		detail = outcome.Err.Error()
	default:
		indicator, style = "?", summaryYellowStyle
		detail = string(outcome.Kind)
	}

	if outcome.OSChanged && outcome.Kind != rollout.OutcomeFailed {
		detail += ", OS updated"
	}

	return fmt.Sprintf("  %s %-24s %s\n",
		render(styled, style, indicator),
		outcome.Node,
		render(styled, summaryDimStyle, detail),
	)
}

// render applies a style only when stdout is a terminal.
func render(styled bool, style lipgloss.Style, s string) string {
	if !styled {
		return s
	}
	return style.Render(s)
}

// isTerminal reports whether stdout is an interactive terminal.
func isTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}
