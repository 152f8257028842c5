package command

import (
	"fmt"
	"io"
	"strconv"
	"strings"
)

// TerminalControl is the terminal state the server may drive remotely.
type TerminalControl interface {
	Clear() error
	MoveCursor(x, y uint16) error
	Resize(width, height uint16) error
}

// RegisterBuiltins installs the standard server-driven commands:
//
//	clear
//	cursor <x> <y>
//	size <width> <height>
//	print <text...>
//	println <text...>
func RegisterBuiltins(r *Registry, term TerminalControl, out io.Writer) {
	r.Register("clear", func(args []string) error {
		return term.Clear()
	})

	r.Register("cursor", func(args []string) error {
		x, y, err := parsePair("cursor", args)
		if err != nil {
			return err
		}
		return term.MoveCursor(x, y)
	})

	r.Register("size", func(args []string) error {
		w, h, err := parsePair("size", args)
		if err != nil {
			return err
		}
		return term.Resize(w, h)
	})

	r.Register("print", func(args []string) error {
		_, err := fmt.Fprint(out, strings.Join(args, " "))
		return err
	})

	r.Register("println", func(args []string) error {
		_, err := fmt.Fprintln(out, strings.Join(args, " "))
		return err
	})
}

// parsePair validates exactly two u16 arguments
func parsePair(command string, args []string) (uint16, uint16, error) {
	const reason = "takes two parameters of type u16"

	if len(args) != 2 {
		return 0, 0, &ArgumentError{
			Command: command,
			Reason:  fmt.Sprintf("%s, got %d", reason, len(args)),
		}
	}

	a, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return 0, 0, &ArgumentError{Command: command, Reason: reason, Err: err}
	}
	b, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil {
		return 0, 0, &ArgumentError{Command: command, Reason: reason, Err: err}
	}
	return uint16(a), uint16(b), nil
}
