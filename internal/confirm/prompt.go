package confirm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrInterrupted is returned when the operator presses Ctrl+C at a prompt.
var ErrInterrupted = errors.New("interrupted at prompt")

// ttyConfirmer runs a one-question bubbletea program on a terminal.
type ttyConfirmer struct {
	in  io.Reader
	out io.Writer
}

func (t *ttyConfirmer) Confirm(ctx context.Context, prompt string) (bool, error) {
	p := tea.NewProgram(newPromptModel(prompt),
		tea.WithContext(ctx),
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
	)
	result, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("prompt: %w", err)
	}
	final, ok := result.(promptModel)
	if !ok {
		return false, nil
	}
	if final.interrupted {
		return false, ErrInterrupted
	}
	return final.answer(), nil
}

// promptModel asks a single y/N question.
type promptModel struct {
	prompt      string
	input       textinput.Model
	done        bool
	cancelled   bool
	interrupted bool
}

func newPromptModel(prompt string) promptModel {
	ti := textinput.New()
	ti.Placeholder = "y/N"
	ti.CharLimit = 16
	ti.Focus()
	return promptModel{prompt: prompt, input: ti}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC:
			m.interrupted = true
			return m, tea.Quit
		case tea.KeyEsc:
			m.cancelled = true
			return m, tea.Quit
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || m.cancelled || m.interrupted {
		// Leave the answered question on screen.
		return fmt.Sprintf("%s%s\n", m.prompt, m.input.Value())
	}
	return fmt.Sprintf("%s%s\n", m.prompt, m.input.View())
}

func (m promptModel) answer() bool {
	return m.done && isYes(m.input.Value())
}
