package prompt

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// Interactive shows each prompt as a small inline bubbletea program with
// line editing and masked secret entry.
type Interactive struct {
	in  io.Reader
	out io.Writer
}

// NewInteractive creates an interactive prompter on the given terminal streams
func NewInteractive(in io.Reader, out io.Writer) *Interactive {
	return &Interactive{in: in, out: out}
}

// Prompt implements Prompter
func (p *Interactive) Prompt(text string) (string, error) {
	return p.run(newInputModel(text, false))
}

// PromptSecret implements SecretPrompter
func (p *Interactive) PromptSecret(text string) (string, error) {
	return p.run(newInputModel(text, true))
}

func (p *Interactive) run(m inputModel) (string, error) {
	program := tea.NewProgram(m, tea.WithInput(p.in), tea.WithOutput(p.out))
	final, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("prompt failed: %w", err)
	}

	result, ok := final.(inputModel)
	if !ok || result.aborted {
		return "", ErrAborted
	}
	return result.input.Value(), nil
}

// inputModel is a single-line bubbletea model around textinput
type inputModel struct {
	input   textinput.Model
	secret  bool
	done    bool
	aborted bool
}

func newInputModel(text string, secret bool) inputModel {
	ti := textinput.New()
	ti.Prompt = text
	ti.CharLimit = 0
	if secret {
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '*'
	}
	ti.Focus()
	return inputModel{input: ti, secret: secret}
}

func (m inputModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m inputModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.done = true
			return m, tea.Quit
		case tea.KeyCtrlC, tea.KeyEsc:
			m.aborted = true
			return m, tea.Quit
		case tea.KeyCtrlD:
			if m.input.Value() == "" {
				m.aborted = true
				return m, tea.Quit
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m inputModel) View() string {
	if m.done || m.aborted {
		// Leave the answered prompt on screen without the cursor
		value := m.input.Value()
		if m.secret {
			value = ""
		}
		return m.input.Prompt + value + "\n"
	}
	return m.input.View()
}
