package client

import (
	"fmt"
	"log"

	"github.com/aeolun/mudclient/pkg/protocol"
)

// HandshakeKind is the result class of a version check
type HandshakeKind int

const (
	HandshakeCompatible HandshakeKind = iota
	HandshakeIncompatible
	HandshakeRejected
	HandshakeUnreachable
)

func (k HandshakeKind) String() string {
	switch k {
	case HandshakeCompatible:
		return "compatible"
	case HandshakeIncompatible:
		return "incompatible"
	case HandshakeRejected:
		return "rejected"
	default:
		return "unreachable"
	}
}

// HandshakeOutcome is the result of Handshake
type HandshakeOutcome struct {
	Kind          HandshakeKind
	ServerVersion string // HandshakeIncompatible
	Reason        string // HandshakeRejected
	Err           error  // HandshakeUnreachable
}

// Handshake opens a short-lived connection, announces clientVersion and
// classifies the server's answer. The connection is closed before returning.
func Handshake(opener Opener, clientVersion string, logger *log.Logger) HandshakeOutcome {
	ch, err := opener.Open()
	if err != nil {
		return HandshakeOutcome{Kind: HandshakeUnreachable, Err: err}
	}
	defer ch.Close()

	if err := ch.Send(protocol.TypeVersionCheck, &protocol.VersionCheckMessage{Version: clientVersion}); err != nil {
		return HandshakeOutcome{Kind: HandshakeUnreachable, Err: err}
	}

	resp, err := ch.ReadEntryResponse()
	if err != nil {
		return HandshakeOutcome{Kind: HandshakeUnreachable, Err: err}
	}

	if logger != nil {
		logger.Printf("Handshake response: valid=%v kind=%s", resp.Valid, resp.Kind)
	}

	switch resp.Kind {
	case protocol.EntryVersion:
		if resp.Text == clientVersion {
			return HandshakeOutcome{Kind: HandshakeCompatible}
		}
		return HandshakeOutcome{Kind: HandshakeIncompatible, ServerVersion: resp.Text}
	case protocol.EntryError:
		return HandshakeOutcome{Kind: HandshakeRejected, Reason: resp.Text}
	default:
		return HandshakeOutcome{
			Kind:   HandshakeRejected,
			Reason: fmt.Sprintf("unexpected handshake response (%s)", resp.Kind),
		}
	}
}
