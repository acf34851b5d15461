package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/tutu529/qilin-check-bag/internal/review"
)

type Model struct {
	provider        SnapshotProvider
	decider         Decider
	snapshot        review.Snapshot
	refreshInterval time.Duration
	width           int
}

type tickMsg time.Time

func NewModel(provider SnapshotProvider, decider Decider, refreshInterval time.Duration) Model {
	return Model{
		provider:        provider,
		decider:         decider,
		snapshot:        provider.Snapshot(),
		refreshInterval: refreshInterval,
	}
}

func (m Model) Init() tea.Cmd {
	return tickCmd(m.refreshInterval)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.decider.RequestDecision(review.DecisionRelease)
			m.snapshot = m.provider.Snapshot()
			return m, nil
		case "f":
			m.decider.RequestDecision(review.DecisionFlag)
			m.snapshot = m.provider.Snapshot()
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.snapshot = m.provider.Snapshot()
		return m, tickCmd(m.refreshInterval)
	}

	return m, nil
}

func (m Model) View() string {
	return renderView(m.snapshot)
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
