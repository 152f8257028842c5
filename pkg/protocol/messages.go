package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Message type constants (Client → Server)
const (
	TypeVersionCheck = 0x01
	TypeLoginAttempt = 0x02
	TypeEvent        = 0x03
)

// Message type constants (Server → Client)
const (
	TypeEntryResponse = 0x81
	TypeServerEvent   = 0x83
)

var (
	ErrEmptyUsername = errors.New("username cannot be empty")
	ErrMissingEmail  = errors.New("sign-up requires an email address")
)

// Encoder is implemented by every message that can be written to the wire.
type Encoder interface {
	Encode() ([]byte, error)
}

// TypeName returns a human readable name for a message type, used in logs.
func TypeName(msgType uint8) string {
	switch msgType {
	case TypeVersionCheck:
		return "VersionCheck"
	case TypeLoginAttempt:
		return "LoginAttempt"
	case TypeEvent:
		return "Event"
	case TypeEntryResponse:
		return "EntryResponse"
	case TypeServerEvent:
		return "ServerEvent"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", msgType)
	}
}

func encodeWith(fn func(w io.Writer) error) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := fn(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// VersionCheckMessage (0x01) - Announce the client version before login
type VersionCheckMessage struct {
	Version string
}

func (m *VersionCheckMessage) EncodeTo(w io.Writer) error {
	return WriteString(w, m.Version)
}

func (m *VersionCheckMessage) Encode() ([]byte, error) {
	return encodeWith(m.EncodeTo)
}

func (m *VersionCheckMessage) Decode(payload []byte) error {
	version, err := ReadString(bytes.NewReader(payload))
	if err != nil {
		return err
	}
	m.Version = version
	return nil
}

// EntryKind selects which payload an EntryResponse carries.
type EntryKind uint8

const (
	EntryNone    EntryKind = 0
	EntryMotd    EntryKind = 1
	EntryVersion EntryKind = 2
	EntryError   EntryKind = 3
)

func (k EntryKind) String() string {
	switch k {
	case EntryMotd:
		return "motd"
	case EntryVersion:
		return "version"
	case EntryError:
		return "error"
	default:
		return "none"
	}
}

// EntryResponseMessage (0x81) - Answer to a VersionCheck or LoginAttempt
//
// Exactly one of motd, version or error is carried in Text, selected by Kind.
// An unknown kind on the wire decodes as EntryNone.
type EntryResponseMessage struct {
	Valid bool
	Kind  EntryKind
	Text  string
}

// Motd returns the message of the day if this response carries one.
func (m *EntryResponseMessage) Motd() (string, bool) {
	return m.Text, m.Kind == EntryMotd
}

// ServerVersion returns the server version if this response carries one.
func (m *EntryResponseMessage) ServerVersion() (string, bool) {
	return m.Text, m.Kind == EntryVersion
}

// ErrorText returns the error description if this response carries one.
func (m *EntryResponseMessage) ErrorText() (string, bool) {
	return m.Text, m.Kind == EntryError
}

func (m *EntryResponseMessage) EncodeTo(w io.Writer) error {
	if err := WriteBool(w, m.Valid); err != nil {
		return err
	}
	if err := WriteUint8(w, uint8(m.Kind)); err != nil {
		return err
	}
	if m.Kind == EntryNone {
		return nil
	}
	return WriteString(w, m.Text)
}

func (m *EntryResponseMessage) Encode() ([]byte, error) {
	return encodeWith(m.EncodeTo)
}

func (m *EntryResponseMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	valid, err := ReadBool(buf)
	if err != nil {
		return err
	}
	kind, err := ReadUint8(buf)
	if err != nil {
		return err
	}

	m.Valid = valid
	m.Kind = EntryNone
	m.Text = ""

	switch EntryKind(kind) {
	case EntryMotd, EntryVersion, EntryError:
		text, err := ReadString(buf)
		if err != nil {
			return err
		}
		m.Kind = EntryKind(kind)
		m.Text = text
	}
	return nil
}

// LoginAttemptMessage (0x02) - Sign in or sign up
type LoginAttemptMessage struct {
	Email    *string // Only present when signing up
	Username string
	Password string
	IsSignup bool
}

func (m *LoginAttemptMessage) EncodeTo(w io.Writer) error {
	if m.Username == "" {
		return ErrEmptyUsername
	}
	if m.IsSignup && m.Email == nil {
		return ErrMissingEmail
	}

	if err := WriteOptionalString(w, m.Email); err != nil {
		return err
	}
	if err := WriteString(w, m.Username); err != nil {
		return err
	}
	if err := WriteString(w, m.Password); err != nil {
		return err
	}
	return WriteBool(w, m.IsSignup)
}

func (m *LoginAttemptMessage) Encode() ([]byte, error) {
	return encodeWith(m.EncodeTo)
}

func (m *LoginAttemptMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	email, err := ReadOptionalString(buf)
	if err != nil {
		return err
	}
	username, err := ReadString(buf)
	if err != nil {
		return err
	}
	password, err := ReadString(buf)
	if err != nil {
		return err
	}
	signup, err := ReadBool(buf)
	if err != nil {
		return err
	}

	m.Email = email
	m.Username = username
	m.Password = password
	m.IsSignup = signup
	return nil
}

// EventKind selects which payload an Event carries.
type EventKind uint8

const (
	EventNone      EventKind = 0
	EventText      EventKind = 1
	EventKeepalive EventKind = 2
	EventError     EventKind = 3
)

func (k EventKind) String() string {
	switch k {
	case EventText:
		return "message"
	case EventKeepalive:
		return "keepalive"
	case EventError:
		return "error"
	default:
		return "none"
	}
}

// ServerMessage is the text shown to the user plus the encoded command batch
// (or, client → server, the status string) that rides along with it.
type ServerMessage struct {
	Text string
	Data string
}

// EventMessage (0x03 client → server, 0x83 server → client)
//
// Disconnect is independent of the payload. An unknown kind on the wire
// decodes as EventNone and the rest of the payload is ignored.
type EventMessage struct {
	Disconnect bool
	Kind       EventKind
	Message    ServerMessage // EventText
	Keepalive  uint64        // EventKeepalive, unix seconds
	Error      string        // EventError
}

func (m *EventMessage) EncodeTo(w io.Writer) error {
	if err := WriteBool(w, m.Disconnect); err != nil {
		return err
	}
	if err := WriteUint8(w, uint8(m.Kind)); err != nil {
		return err
	}

	switch m.Kind {
	case EventText:
		if err := WriteString(w, m.Message.Text); err != nil {
			return err
		}
		return WriteString(w, m.Message.Data)
	case EventKeepalive:
		return WriteUint64(w, m.Keepalive)
	case EventError:
		return WriteString(w, m.Error)
	}
	return nil
}

func (m *EventMessage) Encode() ([]byte, error) {
	return encodeWith(m.EncodeTo)
}

func (m *EventMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	disconnect, err := ReadBool(buf)
	if err != nil {
		return err
	}
	// Kept even if the rest of the payload is truncated
	*m = EventMessage{Disconnect: disconnect}

	kind, err := ReadUint8(buf)
	if err != nil {
		return err
	}

	switch EventKind(kind) {
	case EventText:
		text, err := ReadString(buf)
		if err != nil {
			return err
		}
		data, err := ReadString(buf)
		if err != nil {
			return err
		}
		m.Message = ServerMessage{Text: text, Data: data}
	case EventKeepalive:
		ts, err := ReadUint64(buf)
		if err != nil {
			return err
		}
		m.Keepalive = ts
	case EventError:
		text, err := ReadString(buf)
		if err != nil {
			return err
		}
		m.Error = text
	default:
		return nil
	}

	m.Kind = EventKind(kind)
	return nil
}
