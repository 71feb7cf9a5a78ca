package tui

import (
	"errors"

	tea "github.com/charmbracelet/bubbletea"
)

// Result 返回 TUI 退出时的会话信息。
type Result struct {
	SessionID string
	Messages  int
}

// Run 封装 Bubble Tea 入口。
func Run(opts Options) (Result, error) {
	model := New(opts)
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion())
	model.Attach(program.Send)
	m, err := program.Run()
	if err != nil {
		return Result{}, err
	}
	tuiModel, ok := m.(*Model)
	if !ok {
		return Result{}, errors.New("unexpected tui model")
	}
	return Result{
		SessionID: tuiModel.SessionID(),
		Messages:  len(tuiModel.Activities()),
	}, nil
}
