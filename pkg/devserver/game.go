package devserver

import (
	"fmt"
	"strconv"
	"strings"
)

// Reply is what the server sends back for one line of player input.
// Commands are encoded into the event's command batch.
type Reply struct {
	Text       string
	Commands   []string
	Disconnect bool
}

// Game turns player input into replies. Implementations must be safe for
// concurrent use; every session calls into the same Game.
type Game interface {
	Welcome(player string) Reply
	Handle(player, input string, width, height int) Reply
}

// Lobby is a tiny built-in game that exercises every client command
type Lobby struct{}

const lobbyHelp = `Commands:
  look            describe the room
  say <text>      say something
  size            show your terminal size
  resize <w> <h>  ask your terminal to resize
  banner <text>   draw a banner
  clear           clear your screen
  quit            leave`

func (Lobby) Welcome(player string) Reply {
	return Reply{Text: line("Welcome to the lobby, %s. Type 'help' for commands.", player)}
}

func (Lobby) Handle(player, input string, width, height int) Reply {
	verb, rest, _ := strings.Cut(strings.TrimSpace(input), " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "help":
		return Reply{Text: lobbyHelp + "\n"}
	case "look":
		return Reply{Text: line("You are in a small lobby. A sign on the wall reads: mind the semicolons!")}
	case "say":
		if rest == "" {
			return Reply{Text: line("Say what?")}
		}
		return Reply{Text: line("%s says: %s", player, rest)}
	case "size":
		return Reply{Text: line("Your terminal is %dx%d.", width, height)}
	case "resize":
		w, h, ok := parseSize(rest)
		if !ok {
			return Reply{Text: line("Usage: resize <width> <height>")}
		}
		return Reply{Text: line("Resizing."), Commands: []string{fmt.Sprintf("size %d %d", w, h)}}
	case "banner":
		if rest == "" {
			rest = player
		}
		border := strings.Repeat("*", len(rest)+4)
		return Reply{Commands: []string{
			"println " + border,
			"println * " + rest + " *",
			"println " + border,
		}}
	case "clear":
		return Reply{Commands: []string{"clear", "cursor 0 0"}}
	case "quit":
		return Reply{Text: "Goodbye.", Disconnect: true}
	case "":
		return Reply{Text: line("Nothing happens.")}
	default:
		return Reply{Text: line("I don't know how to %q.", verb)}
	}
}

func parseSize(s string) (int, int, bool) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return 0, 0, false
	}
	w, err := strconv.ParseUint(fields[0], 10, 16)
	if err != nil {
		return 0, 0, false
	}
	h, err := strconv.ParseUint(fields[1], 10, 16)
	if err != nil {
		return 0, 0, false
	}
	return int(w), int(h), true
}

// parseStatus reads the "width,height" status the client sends with input
func parseStatus(status string) (int, int) {
	ws, hs, ok := strings.Cut(status, ",")
	if !ok {
		return 0, 0
	}
	w, _ := strconv.Atoi(ws)
	h, _ := strconv.Atoi(hs)
	return w, h
}

// line formats one line of output text
func line(format string, args ...interface{}) string {
	return fmt.Sprintf(format, args...) + "\n"
}
