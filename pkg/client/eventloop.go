package client

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/aeolun/mudclient/pkg/command"
	"github.com/aeolun/mudclient/pkg/prompt"
	"github.com/aeolun/mudclient/pkg/protocol"
	"github.com/aeolun/mudclient/pkg/terminal"
)

const (
	inputPrompt       = "> "
	invalidPacket     = "Invalid packet received from the server."
	disconnectedText  = "You have been disconnected."
	commandFailedText = "Encountered error in munching command: %v"
	inputRejectedText = "Your input could not be sent (%v). Please try again."
)

// StopReason tells why the event loop ended. The user sees the same notice
// for a requested disconnect and a dropped connection.
type StopReason int

const (
	StopRequested  StopReason = iota // the server set the disconnect flag
	StopDropped                      // the connection failed
	StopInputEnded                   // the input prompt failed
)

func (r StopReason) String() string {
	switch r {
	case StopRequested:
		return "requested"
	case StopDropped:
		return "dropped"
	default:
		return "input ended"
	}
}

// LoopResult is returned when the event loop reaches its disconnected state
type LoopResult struct {
	Reason StopReason
	Err    error // StopDropped, StopInputEnded
	Events int
}

// EventLoop drives the logged-in session over one connection.
type EventLoop struct {
	Channel    Channel
	Dispatcher Dispatcher
	Prompt     prompt.Prompter
	Out        io.Writer
	Styles     terminal.Styles
	Sizer      Sizer

	// Reported as the terminal size when Sizer is nil or fails
	FallbackWidth  int
	FallbackHeight int

	Recorder Recorder
	Metrics  *Metrics
	Logger   *log.Logger

	// Now supplies keepalive timestamps; defaults to time.Now
	Now func() time.Time
}

func (l *EventLoop) logf(format string, args ...interface{}) {
	if l.Logger != nil {
		l.Logger.Printf(format, args...)
	}
}

// Run reads events until the server disconnects or the connection fails.
// It does not close the channel.
func (l *EventLoop) Run() LoopResult {
	events := 0
	for {
		ev, err := l.Channel.ReadEvent()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedPayload) || errors.Is(err, protocol.ErrUnexpectedType) {
				// The frame was read whole, so the stream is still in sync
				events++
				l.logf("Unreadable event: %v", err)
				l.Metrics.RecordEvent("malformed")
				fmt.Fprintln(l.Out, l.Styles.Warning.Render(invalidPacket))
				if ev != nil && ev.Disconnect {
					return l.requestedStop(events)
				}
				continue
			}
			l.logf("Event read failed: %v", err)
			l.Metrics.RecordPhaseFailure("event_loop")
			fmt.Fprintln(l.Out, l.Styles.Error.Render(disconnectedText))
			return LoopResult{Reason: StopDropped, Err: err, Events: events}
		}
		events++

		if err := l.handle(ev); err != nil {
			var inputErr *inputError
			if errors.As(err, &inputErr) {
				l.logf("Input ended: %v", inputErr.err)
				return LoopResult{Reason: StopInputEnded, Err: inputErr.err, Events: events}
			}
			l.logf("Reply failed: %v", err)
			l.Metrics.RecordPhaseFailure("event_loop")
			fmt.Fprintln(l.Out, l.Styles.Error.Render(disconnectedText))
			return LoopResult{Reason: StopDropped, Err: err, Events: events}
		}

		if ev.Disconnect {
			return l.requestedStop(events)
		}
	}
}

func (l *EventLoop) requestedStop(events int) LoopResult {
	l.logf("Server requested disconnect")
	fmt.Fprintln(l.Out, l.Styles.Error.Render(disconnectedText))
	return LoopResult{Reason: StopRequested, Events: events}
}

// inputError marks a prompt failure so Run can tell it from a send failure
type inputError struct{ err error }

func (e *inputError) Error() string { return e.err.Error() }
func (e *inputError) Unwrap() error { return e.err }

func (l *EventLoop) handle(ev *protocol.EventMessage) error {
	l.Metrics.RecordEvent(eventLabel(ev.Kind))

	switch ev.Kind {
	case protocol.EventText:
		return l.handleMessage(ev.Message)
	case protocol.EventKeepalive:
		ts := l.now().Unix()
		l.logf("Keepalive %d, replying with %d", ev.Keepalive, ts)
		return l.Channel.Send(protocol.TypeEvent, &protocol.EventMessage{
			Kind:      protocol.EventKeepalive,
			Keepalive: uint64(ts),
		})
	case protocol.EventError:
		fmt.Fprintln(l.Out, ev.Error)
	default:
		fmt.Fprintln(l.Out, l.Styles.Warning.Render(invalidPacket))
	}
	return nil
}

func (l *EventLoop) handleMessage(msg protocol.ServerMessage) error {
	fmt.Fprint(l.Out, msg.Text)
	if l.Recorder != nil {
		l.Recorder.RecordInbound(msg.Text, msg.Data)
	}

	for _, line := range command.Decode(msg.Data) {
		l.dispatch(line)
	}

	for {
		input, err := l.Prompt.Prompt(inputPrompt)
		if err != nil {
			return &inputError{err: err}
		}

		status := l.sizeStatus()
		err = l.Channel.Send(protocol.TypeEvent, &protocol.EventMessage{
			Kind:    protocol.EventText,
			Message: protocol.ServerMessage{Text: input, Data: status},
		})
		if errors.Is(err, protocol.ErrEncode) {
			// Nothing reached the wire; ask again
			l.logf("Input rejected: %v", err)
			fmt.Fprintln(l.Out, l.Styles.Warning.Render(fmt.Sprintf(inputRejectedText, inputProblem(err))))
			continue
		}
		if err == nil && l.Recorder != nil {
			l.Recorder.RecordOutbound(input, status)
		}
		return err
	}
}

// inputProblem names what is wrong with text the user typed
func inputProblem(err error) string {
	switch {
	case errors.Is(err, protocol.ErrInvalidUTF8):
		return "it is not valid UTF-8"
	case errors.Is(err, protocol.ErrStringTooLong):
		return "it is too long"
	default:
		return err.Error()
	}
}

func (l *EventLoop) dispatch(line string) {
	var err error
	if l.Dispatcher != nil {
		err = l.Dispatcher.Dispatch(line)
	}
	if l.Recorder != nil {
		l.Recorder.RecordCommand(line, err)
	}

	var unknown *command.UnknownCommandError
	switch {
	case err == nil:
		l.Metrics.RecordCommand("ok")
		return
	case errors.Is(err, command.ErrEmptyCommand):
		l.Metrics.RecordCommand("empty")
	case errors.As(err, &unknown):
		l.Metrics.RecordCommand("unknown")
	default:
		l.Metrics.RecordCommand("error")
	}
	l.logf("Command %q failed: %v", line, err)
	fmt.Fprintln(l.Out, l.Styles.Error.Render(fmt.Sprintf(commandFailedText, err)))
}

// sizeStatus formats the terminal size as "<width>,<height>"
func (l *EventLoop) sizeStatus() string {
	width, height := l.FallbackWidth, l.FallbackHeight
	if l.Sizer != nil {
		if w, h, err := l.Sizer.Size(); err == nil && w > 0 && h > 0 {
			width, height = w, h
		}
	}
	return fmt.Sprintf("%d,%d", width, height)
}

func (l *EventLoop) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func eventLabel(kind protocol.EventKind) string {
	switch kind {
	case protocol.EventText:
		return "message"
	case protocol.EventKeepalive:
		return "keepalive"
	case protocol.EventError:
		return "error"
	default:
		return "malformed"
	}
}
