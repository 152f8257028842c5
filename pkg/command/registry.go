package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrEmptyCommand is returned when Dispatch is given an empty line.
var ErrEmptyCommand = errors.New("can not process an empty command")

// UnknownCommandError is returned when no handler is registered for a name.
type UnknownCommandError struct {
	Name string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("the command '%s' does not exist", e.Name)
}

// ArgumentError reports a handler rejecting its arguments.
type ArgumentError struct {
	Command string
	Reason  string
	Err     error // underlying parse error, if any
}

func (e *ArgumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid parameters: %s command %s: %v", e.Command, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid parameters: %s command %s", e.Command, e.Reason)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// Handler runs one command with the arguments that followed its name.
type Handler func(args []string) error

// Registry maps command names to handlers.
//
// It is filled before the event loop starts and only read afterwards, so it
// carries no locking.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty command registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for name
func (r *Registry) Register(name string, h Handler) {
	r.handlers[name] = h
}

// Unregister removes the handler for name, if any
func (r *Registry) Unregister(name string) {
	delete(r.handlers, name)
}

// Has reports whether a handler is registered for name
func (r *Registry) Has(name string) bool {
	_, ok := r.handlers[name]
	return ok
}

// Names returns all registered command names, sorted
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch parses line and runs the matching handler, returning its error
// unchanged.
//
// The line is split on single spaces with no normalization: "a  b" yields
// the arguments ["", "b"].
func (r *Registry) Dispatch(line string) error {
	if line == "" {
		return ErrEmptyCommand
	}

	tokens := strings.Split(line, " ")
	name, args := tokens[0], tokens[1:]

	h, ok := r.handlers[name]
	if !ok {
		return &UnknownCommandError{Name: name}
	}
	return h(args)
}
