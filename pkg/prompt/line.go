package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Line reads prompts line by line. It works for piped input as well as for
// terminals; secrets are only hidden when the input is a terminal.
type Line struct {
	in  *bufio.Reader
	out io.Writer
	fd  int // -1 when in is not a terminal
}

// NewLine creates a line prompter reading from in and writing prompts to out
func NewLine(in io.Reader, out io.Writer) *Line {
	fd := -1
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd = int(f.Fd())
	}
	return &Line{in: bufio.NewReader(in), out: out, fd: fd}
}

// Prompt implements Prompter
func (l *Line) Prompt(text string) (string, error) {
	if _, err := fmt.Fprint(l.out, text); err != nil {
		return "", err
	}

	line, err := l.in.ReadString('\n')
	if err != nil {
		// A final line without a newline still counts
		if !errors.Is(err, io.EOF) || line == "" {
			return "", err
		}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// PromptSecret implements SecretPrompter
func (l *Line) PromptSecret(text string) (string, error) {
	if l.fd < 0 {
		return l.Prompt(text)
	}

	if _, err := fmt.Fprint(l.out, text); err != nil {
		return "", err
	}
	secret, err := term.ReadPassword(l.fd)
	fmt.Fprintln(l.out)
	if err != nil {
		return "", err
	}
	return string(secret), nil
}
