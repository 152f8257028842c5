package client

import (
	"github.com/aeolun/mudclient/pkg/protocol"
)

// Channel is one framed connection to the server.
// *protocol.Channel implements it; tests use scripted fakes.
type Channel interface {
	Send(msgType uint8, msg protocol.Encoder) error
	ReadEntryResponse() (*protocol.EntryResponseMessage, error)
	ReadEvent() (*protocol.EventMessage, error)
	Close() error
}

// Opener dials a new Channel on every call
type Opener interface {
	Open() (Channel, error)
}

// Sizer reports the current terminal dimensions in columns and rows
type Sizer interface {
	Size() (width, height int, err error)
}

// Dispatcher runs one decoded command line
type Dispatcher interface {
	Dispatch(line string) error
}

// Recorder keeps a local log of the session. Implementations must not fail
// the session on write errors.
type Recorder interface {
	RecordInbound(text, commands string)
	RecordCommand(line string, err error)
	RecordOutbound(text, status string)
}

// Notifier raises an out-of-band notice, such as a desktop notification
type Notifier interface {
	Notify(title, message string) error
}
