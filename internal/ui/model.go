// ABOUTME: Bubbletea model for the audio session harness
// ABOUTME: Backend radio plus Play, Stop and Uninit actions over one session handle
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/miniaud/minitester/pkg/session"
)

// Status lines shown after a successful action
const (
	StatusIdle          = "Select a backend and press Play."
	StatusPlaying       = "Playing..."
	StatusPaused        = "Paused."
	StatusUninitialized = "Device uninitialized."
)

const maxEvents = 6

// Controller is the handle API the harness drives. *session.Engine
// implements it.
type Controller interface {
	Play(h session.Handle, backend session.Backend) session.Handle
	Pause(h session.Handle) session.Handle
	Uninitialize(h session.Handle) session.Handle
	HasError(h session.Handle) bool
	Error(h session.Handle) string
	Delete(h session.Handle)
	Info(h session.Handle) (session.Info, bool)
}

// action is a harness button
type action int

const (
	actionPlay action = iota
	actionStop
	actionUninit
)

var actions = []struct {
	action action
	label  string
	key    string
}{
	{actionPlay, "Play", "p"},
	{actionStop, "Stop", "s"},
	{actionUninit, "Uninit", "u"},
}

// EventMsg carries a session state change into the model
type EventMsg session.StateChanged

// Model is the harness state. The handle is replaced by the result of
// every action, the way a host must.
type Model struct {
	ctrl    Controller
	handle  session.Handle
	backend session.Backend
	focus   action

	status   string
	hasError bool
	info     session.Info
	bound    bool
	events   []string

	quitting bool
	width    int
}

// NewModel creates a harness with backend preselected
func NewModel(ctrl Controller, backend session.Backend) Model {
	if !backend.Valid() {
		backend = session.BackendAuto
	}
	return Model{
		ctrl:    ctrl,
		backend: backend,
		status:  StatusIdle,
	}
}

// Handle returns the session handle the harness currently holds
func (m Model) Handle() session.Handle {
	return m.handle
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case EventMsg:
		m.recordEvent(session.StateChanged(msg))
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m.quit()
	case "left", "h":
		m.backend = session.Backends[(int(m.backend)+len(session.Backends)-1)%len(session.Backends)]
	case "right", "l":
		m.backend = session.Backends[(int(m.backend)+1)%len(session.Backends)]
	case "1", "2", "3":
		m.backend = session.Backends[int(msg.String()[0]-'1')]
	case "tab", "down", "j":
		m.focus = (m.focus + 1) % action(len(actions))
	case "shift+tab", "up", "k":
		m.focus = (m.focus + action(len(actions)) - 1) % action(len(actions))
	case "enter", " ":
		m.run(m.focus)
	case "p":
		m.run(actionPlay)
	case "s":
		m.run(actionStop)
	case "u":
		m.run(actionUninit)
	}
	return m, nil
}

// run performs one button action and refreshes the status line
func (m *Model) run(a action) {
	m.focus = a

	var ok string
	switch a {
	case actionPlay:
		m.handle = m.ctrl.Play(m.handle, m.backend)
		ok = StatusPlaying
	case actionStop:
		m.handle = m.ctrl.Pause(m.handle)
		ok = StatusPaused
	case actionUninit:
		m.handle = m.ctrl.Uninitialize(m.handle)
		ok = StatusUninitialized
	}

	m.hasError = m.ctrl.HasError(m.handle)
	if m.hasError {
		m.status = m.ctrl.Error(m.handle)
	} else {
		m.status = ok
	}
	m.info, m.bound = m.ctrl.Info(m.handle)
}

// quit deletes the session before leaving
func (m Model) quit() (tea.Model, tea.Cmd) {
	if m.handle != 0 {
		m.ctrl.Delete(m.handle)
		m.handle = 0
	}
	m.quitting = true
	return m, tea.Quit
}

func (m *Model) recordEvent(ev session.StateChanged) {
	line := fmt.Sprintf("%s  %s -> %s", ev.At.Format("15:04:05.000"), ev.Previous, ev.State)
	if ev.Deleted {
		line = fmt.Sprintf("%s  deleted", ev.At.Format("15:04:05.000"))
	} else if ev.Error != "" {
		line += "  (" + ev.Error + ")"
	}

	m.events = append(m.events, line)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}

	if ev.Handle == m.handle {
		m.info, m.bound = m.ctrl.Info(m.handle)
	}
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("220"))
	buttonStyle   = lipgloss.NewStyle().Padding(0, 1).Border(lipgloss.RoundedBorder())
	focusedStyle  = buttonStyle.BorderForeground(lipgloss.Color("205")).Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	faintStyle    = lipgloss.NewStyle().Faint(true)
)

// View renders the harness
func (m Model) View() string {
	if m.quitting {
		return "Session deleted.\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Audio Session Tester"))
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Backend: "))
	for i, backend := range session.Backends {
		mark := "( )"
		label := fmt.Sprintf("%s %d:%s", mark, i+1, backend)
		if backend == m.backend {
			label = selectedStyle.Render(fmt.Sprintf("(•) %d:%s", i+1, backend))
		}
		b.WriteString(label)
		b.WriteString("  ")
	}
	b.WriteString("\n\n")

	buttons := make([]string, 0, len(actions))
	for _, a := range actions {
		style := buttonStyle
		if a.action == m.focus {
			style = focusedStyle
		}
		buttons = append(buttons, style.Render(a.label))
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, buttons...))
	b.WriteString("\n\n")

	if m.hasError {
		b.WriteString(errorStyle.Render(m.status))
	} else {
		b.WriteString(statusStyle.Render(m.status))
	}
	b.WriteString("\n\n")

	b.WriteString(headerStyle.Render("Handle: "))
	b.WriteString(valueStyle.Render(m.handle.String()))
	if m.bound {
		b.WriteString(headerStyle.Render("  State: "))
		b.WriteString(valueStyle.Render(m.info.State.String()))
		if m.info.Driver != "" {
			b.WriteString(headerStyle.Render("  Device: "))
			b.WriteString(valueStyle.Render(fmt.Sprintf("%s %s", m.info.Driver, m.info.Format)))
		}
	}
	b.WriteString("\n")

	if len(m.events) > 0 {
		b.WriteString("\n")
		b.WriteString(headerStyle.Render("Events"))
		b.WriteString("\n")
		for _, line := range m.events {
			b.WriteString(faintStyle.Render("  " + line))
			b.WriteString("\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(faintStyle.Render("←/→ or 1-3: backend  p: play  s: stop  u: uninit  tab/enter: buttons  q: quit"))
	b.WriteString("\n")

	return b.String()
}
