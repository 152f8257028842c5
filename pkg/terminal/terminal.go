// Package terminal drives the local terminal on behalf of the server:
// clearing, cursor placement, resizing and size reporting.
package terminal

import (
	"errors"
	"io"
	"os"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/term"
)

// resizeTextAreaWinOp is the XTWINOPS operation that resizes the text area
// in characters (CSI 8 ; height ; width t).
const resizeTextAreaWinOp = 8

// ErrNotTerminal is returned by Size when the output is not a terminal.
var ErrNotTerminal = errors.New("output is not a terminal")

// Terminal writes control sequences to an output stream.
type Terminal struct {
	out io.Writer
	fd  int // -1 when out is not backed by a file descriptor
}

// New creates a Terminal writing to out. Size reporting only works when
// out is an *os.File attached to a terminal.
func New(out io.Writer) *Terminal {
	fd := -1
	if f, ok := out.(*os.File); ok {
		fd = int(f.Fd())
	}
	return &Terminal{out: out, fd: fd}
}

// IsTerminal reports whether the output is an interactive terminal
func (t *Terminal) IsTerminal() bool {
	return t.fd >= 0 && term.IsTerminal(t.fd)
}

// Clear erases the screen and moves the cursor to the top-left corner
func (t *Terminal) Clear() error {
	_, err := io.WriteString(t.out, ansi.EraseEntireScreen+ansi.CursorHomePosition)
	return err
}

// MoveCursor places the cursor at the zero-based column x and row y
func (t *Terminal) MoveCursor(x, y uint16) error {
	_, err := io.WriteString(t.out, ansi.CursorPosition(int(x)+1, int(y)+1))
	return err
}

// Resize asks the terminal emulator to resize its text area
func (t *Terminal) Resize(width, height uint16) error {
	_, err := io.WriteString(t.out, ansi.WindowOp(resizeTextAreaWinOp, int(height), int(width)))
	return err
}

// Size returns the current width and height in cells
func (t *Terminal) Size() (int, int, error) {
	if t.fd < 0 {
		return 0, 0, ErrNotTerminal
	}
	return term.GetSize(t.fd)
}
