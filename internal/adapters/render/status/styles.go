package status

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/botsmith/internal/domain"
)

type styles struct {
	title   lipgloss.Style
	header  lipgloss.Style
	bot     lipgloss.Style
	detail  lipgloss.Style
	warning lipgloss.Style
	section lipgloss.Style
	empty   lipgloss.Style
	live    lipgloss.Style
	offline lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:   lipgloss.NewStyle().Bold(true),
		header:  lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		bot:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		detail:  lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		warning: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		section: lipgloss.NewStyle().MarginTop(1),
		empty:   lipgloss.NewStyle().Faint(true),
		live:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		offline: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
}

func stateColor(state domain.BotState) lipgloss.Color {
	switch state {
	case domain.BotStateRunning:
		return lipgloss.Color("42")
	case domain.BotStatePending, domain.BotStateStarting, domain.BotStateStopping:
		return lipgloss.Color("214")
	case domain.BotStateFailed, domain.BotStateError:
		return lipgloss.Color("203")
	case domain.BotStateStopped, domain.BotStateNotDeployed:
		return lipgloss.Color("245")
	default:
		return lipgloss.Color("250")
	}
}
