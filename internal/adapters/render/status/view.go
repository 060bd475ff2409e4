package status

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/botsmith/internal/application"
	"github.com/bnema/botsmith/internal/domain"
)

type RenderOptions struct {
	Now time.Time
}

func renderView(rows []application.StatusRow, summary boardSummary, opts RenderOptions, s styles) string {
	header := fmt.Sprintf("bots: %d  live: %d", summary.total, summary.live)
	if summary.attention > 0 {
		header += fmt.Sprintf("  needs attention: %d", summary.attention)
	}
	if !opts.Now.IsZero() {
		header += "  as of " + opts.Now.Format("15:04:05")
	}
	lines := []string{
		s.title.Render("Bot Status"),
		s.header.Render(header),
	}

	if len(rows) == 0 {
		lines = append(lines, s.empty.Render("No bots to show."))
		return lipgloss.JoinVertical(lipgloss.Left, lines...)
	}

	for _, row := range rows {
		lines = append(lines, s.section.Render(renderBot(row, s)))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderBot(row application.StatusRow, s styles) string {
	badge := lipgloss.NewStyle().Bold(true).Foreground(stateColor(row.Status.Status)).Render(stateLabel(row.Status.Status))
	title := lipgloss.JoinHorizontal(lipgloss.Top, s.bot.Render(row.Strategy), " ", badge)

	parts := []string{
		title,
		s.detail.Render(podLine(row.Status)),
		s.detail.Render(fmt.Sprintf("open trades: %d", row.Status.OpenTradesCount)),
		streamLine(row, s),
	}
	if row.Status.Reason != "" {
		parts = append(parts, s.warning.Render("reason: "+row.Status.Reason))
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func stateLabel(state domain.BotState) string {
	if state == "" {
		state = domain.BotStateUnknown
	}
	return "[" + strings.ReplaceAll(string(state), "_", " ") + "]"
}

func podLine(status domain.BotStatus) string {
	phase := status.Phase
	if phase == "" {
		phase = "n/a"
	}
	return fmt.Sprintf("pod: %s, ready: %s, live: %s", phase, yesNo(status.Ready), yesNo(status.Running))
}

func streamLine(row application.StatusRow, s styles) string {
	switch {
	case row.StreamErr != nil:
		return s.warning.Render("events: " + row.StreamErr.Error())
	case row.Connected:
		return s.live.Render("events: connected")
	default:
		return s.offline.Render("events: offline")
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
