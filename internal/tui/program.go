package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, deps Deps) error {
	model := NewModel(ctx, deps)
	program := tea.NewProgram(model, tea.WithAltScreen())
	model.SetSender(program.Send)
	subscribeSession(deps.Session, program.Send)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			program.Quit()
		case <-done:
		}
	}()

	_, err := program.Run()
	model.closeRoom()
	return err
}
