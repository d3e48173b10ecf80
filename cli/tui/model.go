// Package tui is the interactive session browser of the mcfs command.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/LeonardSander/motioncam-fs/registry"
)

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Refresh key.Binding
	Toggle  key.Binding
	Quit    key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Refresh, k.Toggle, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	Toggle:  key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "all/active")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	closedStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Model lists sessions from the persistent registry.
type Model struct {
	reg *registry.Registry

	sessions []registry.Session
	cursor   int
	showAll  bool
	err      error

	help help.Model
}

// New builds the browser model.
func New(reg *registry.Registry) Model {
	m := Model{reg: reg, help: help.New()}
	m.reload()
	return m
}

// Run starts the browser and blocks until the user quits.
func Run(reg *registry.Registry) error {
	_, err := tea.NewProgram(New(reg)).Run()
	return err
}

func (m *Model) reload() {
	var err error
	if m.showAll {
		m.sessions, err = m.reg.History()
	} else {
		m.sessions, err = m.reg.Active()
	}
	m.err = err

	if m.cursor >= len(m.sessions) {
		m.cursor = len(m.sessions) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, keys.Down):
			if m.cursor < len(m.sessions)-1 {
				m.cursor++
			}
		case key.Matches(msg, keys.Refresh):
			m.reload()
		case key.Matches(msg, keys.Toggle):
			m.showAll = !m.showAll
			m.reload()
		}
	}
	return m, nil
}

func (m Model) View() string {
	header := "active sessions"
	if m.showAll {
		header = "all sessions"
	}

	s := titleStyle.Render("mcfs "+header) + "\n\n"

	if m.err != nil {
		s += errorStyle.Render(fmt.Sprintf("registry error: %v", m.err)) + "\n"
	}

	if len(m.sessions) == 0 {
		s += "  no sessions\n"
	}

	for i, session := range m.sessions {
		state := "mounted"
		if session.UnmountedAt != nil {
			state = "closed"
		}

		line := fmt.Sprintf("  [%d] %s -> %s  (%s, %s)",
			session.MountID,
			session.SourcePath,
			session.TargetPath,
			state,
			session.MountedAt.Format("2006-01-02 15:04"),
		)

		switch {
		case i == m.cursor:
			line = selectedStyle.Render(line)
		case session.UnmountedAt != nil:
			line = closedStyle.Render(line)
		}
		s += line + "\n"
	}

	s += "\n" + m.help.View(keys)
	return s
}
