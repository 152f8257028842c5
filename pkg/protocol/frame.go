package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	// MaxFrameSize is the maximum allowed frame size (1 MB)
	MaxFrameSize = 1024 * 1024

	// ProtocolVersion is the current protocol version
	ProtocolVersion = 1

	// frameHeaderSize covers version, type and flags
	frameHeaderSize = 3
)

var (
	ErrFrameTooLarge      = errors.New("frame exceeds maximum size (1 MB)")
	ErrInvalidVersion     = errors.New("invalid protocol version")
	ErrInvalidFrameLength = errors.New("invalid frame length")
)

// Frame represents a protocol frame
// Format: [Length (4 bytes)][Version (1 byte)][Type (1 byte)][Flags (1 byte)][Payload (N bytes)]
type Frame struct {
	Version uint8  // Protocol version (currently 1)
	Type    uint8  // Message type
	Flags   uint8  // Reserved, always 0 for now
	Payload []byte // Message payload
}

// EncodeFrame writes a frame to the writer in a single Write call so that
// message-oriented transports (WebSocket) receive one frame per message.
func EncodeFrame(w io.Writer, f *Frame) error {
	length := uint32(frameHeaderSize + len(f.Payload))
	if length > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf[0:4], length)
	buf[4] = f.Version
	buf[5] = f.Type
	buf[6] = f.Flags
	copy(buf[7:], f.Payload)

	_, err := w.Write(buf)
	return err
}

// DecodeFrame reads a frame from the reader
func DecodeFrame(r io.Reader) (*Frame, error) {
	length, err := ReadUint32(r)
	if err != nil {
		return nil, err
	}

	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if length < frameHeaderSize {
		return nil, ErrInvalidFrameLength
	}

	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	payload := make([]byte, length-frameHeaderSize)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}

	if header[0] != ProtocolVersion {
		return nil, ErrInvalidVersion
	}

	return &Frame{
		Version: header[0],
		Type:    header[1],
		Flags:   header[2],
		Payload: payload,
	}, nil
}
