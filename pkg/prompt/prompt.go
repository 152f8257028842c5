// Package prompt collects single lines of user input.
package prompt

import (
	"errors"
)

// ErrAborted is returned when the user interrupts a prompt (Ctrl+C, Esc,
// or Ctrl+D on an empty line).
var ErrAborted = errors.New("input aborted")

// Prompter shows text and returns one line typed by the user, without the
// line terminator.
type Prompter interface {
	Prompt(text string) (string, error)
}

// SecretPrompter is implemented by prompters that can read input without
// echoing it.
type SecretPrompter interface {
	PromptSecret(text string) (string, error)
}

// Secret reads a line without echo when p supports it, and falls back to a
// normal prompt otherwise.
func Secret(p Prompter, text string) (string, error) {
	if sp, ok := p.(SecretPrompter); ok {
		return sp.PromptSecret(text)
	}
	return p.Prompt(text)
}
