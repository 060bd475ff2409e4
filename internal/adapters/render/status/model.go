package status

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bnema/botsmith/internal/application"
	"github.com/bnema/botsmith/internal/domain"
)

var ErrUnexpectedBoardModel = errors.New("unexpected final status board model")

type boardLaidOutMsg struct{}

type boardSummary struct {
	total     int
	live      int
	attention int
}

// boardModel lays the rows out once: bots needing attention first, then by name.
type boardModel struct {
	rows    []application.StatusRow
	opts    RenderOptions
	styles  styles
	summary boardSummary
	output  string
}

func newBoardModel(rows []application.StatusRow, opts RenderOptions) boardModel {
	return boardModel{
		rows:   slices.Clone(rows),
		opts:   opts,
		styles: newStyles(),
	}
}

func (m boardModel) Init() tea.Cmd {
	return func() tea.Msg {
		return boardLaidOutMsg{}
	}
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if _, ok := msg.(boardLaidOutMsg); !ok {
		return m, nil
	}

	slices.SortStableFunc(m.rows, func(a, b application.StatusRow) int {
		if na, nb := needsAttention(a), needsAttention(b); na != nb {
			if na {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Strategy, b.Strategy)
	})
	m.summary = summarize(m.rows)
	m.output = renderView(m.rows, m.summary, m.opts, m.styles)
	return m, tea.Quit
}

func (m boardModel) View() string {
	return m.output
}

func needsAttention(row application.StatusRow) bool {
	if row.StreamErr != nil {
		return true
	}
	switch row.Status.Status {
	case domain.BotStateError, domain.BotStateFailed, domain.BotStateStopped:
		return true
	}
	return false
}

func summarize(rows []application.StatusRow) boardSummary {
	summary := boardSummary{total: len(rows)}
	for _, row := range rows {
		if row.Status.Running {
			summary.live++
		}
		if needsAttention(row) {
			summary.attention++
		}
	}
	return summary
}

// Render draws the status board once and returns it as a string.
func Render(rows []application.StatusRow, opts RenderOptions) (string, error) {
	p := tea.NewProgram(
		newBoardModel(rows, opts),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", fmt.Errorf("render status board: %w", err)
	}

	board, ok := finalModel.(boardModel)
	if !ok {
		return "", fmt.Errorf("%w: %T", ErrUnexpectedBoardModel, finalModel)
	}
	return board.View(), nil
}
