// ABOUTME: Harness program setup
// ABOUTME: Wires engine state events into the bubbletea program
package ui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/miniaud/minitester/pkg/session"
)

// Run shows the harness over engine until the user quits. The session the
// harness created is deleted on the way out.
func Run(engine *session.Engine, backend session.Backend, opts ...tea.ProgramOption) error {
	if len(opts) == 0 {
		opts = []tea.ProgramOption{tea.WithAltScreen()}
	}
	p := tea.NewProgram(NewModel(engine, backend), opts...)

	unsubscribe := engine.Subscribe(func(ev session.StateChanged) {
		p.Send(EventMsg(ev))
	})
	defer unsubscribe()

	final, err := p.Run()
	if err != nil {
		return err
	}

	// ctrl+c from a signal skips the quit key path
	if m, ok := final.(Model); ok && m.handle != 0 {
		engine.Delete(m.handle)
	}
	return nil
}
