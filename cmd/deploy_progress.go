package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/bnema/botsmith/internal/ports"
)

type deployFinishedMsg struct {
	result ports.DeployResult
	err    error
}

// deployProgressModel animates while a strategy deploys and leaves a one-line outcome.
type deployProgressModel struct {
	strategy string
	spinner  spinner.Model
	deploy   tea.Cmd
	finished bool
	result   ports.DeployResult
	err      error
	okStyle  lipgloss.Style
	errStyle lipgloss.Style
}

func newDeployProgressModel(strategy string, deploy tea.Cmd) deployProgressModel {
	return deployProgressModel{
		strategy: strategy,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.MiniDot),
			spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("69"))),
		),
		deploy:   deploy,
		okStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		errStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("203")),
	}
}

func (m deployProgressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.deploy)
}

func (m deployProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case deployFinishedMsg:
		m.finished = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m deployProgressModel) View() string {
	switch {
	case !m.finished:
		return fmt.Sprintf("%s deploying %s", m.spinner.View(), m.strategy)
	case m.err != nil:
		return m.errStyle.Render("deploy of "+m.strategy+" failed") + "\n"
	default:
		return m.okStyle.Render("deployed "+m.strategy) + "\n"
	}
}

// deployWithProgress runs deploy while progress is drawn on output.
func deployWithProgress(ctx context.Context, output io.Writer, strategy string, deploy func(context.Context) (ports.DeployResult, error)) (ports.DeployResult, error) {
	deployCmd := func() tea.Msg {
		result, err := deploy(ctx)
		return deployFinishedMsg{result: result, err: err}
	}

	p := tea.NewProgram(
		newDeployProgressModel(strategy, deployCmd),
		tea.WithInput(nil),
		tea.WithOutput(output),
		tea.WithContext(ctx),
	)

	finalModel, err := p.Run()
	if err != nil {
		return ports.DeployResult{}, fmt.Errorf("deploy progress: %w", err)
	}

	progress, ok := finalModel.(deployProgressModel)
	if !ok {
		return ports.DeployResult{}, fmt.Errorf("unexpected final deploy progress model %T", finalModel)
	}
	return progress.result, progress.err
}
