package protocol

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"sync/atomic"
)

var (
	// ErrUnexpectedType is returned when a frame of a different schema arrives
	// than the one the caller is waiting for. The stream is still usable.
	ErrUnexpectedType = errors.New("unexpected message type")

	// ErrMalformedPayload wraps payload decode failures. The frame boundary
	// was intact, so the stream is still usable.
	ErrMalformedPayload = errors.New("malformed message payload")

	// ErrEncode is returned by Send when a message cannot be put on the wire.
	// Nothing was written.
	ErrEncode = errors.New("cannot encode")
)

// Channel sends and receives framed messages over one connection.
// It is not safe for concurrent use; every phase of the client drives its
// channel from a single goroutine.
type Channel struct {
	rw     io.ReadWriteCloser
	logger *log.Logger

	closeOnce sync.Once
	closeErr  error

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
}

// NewChannel wraps an established connection.
func NewChannel(rw io.ReadWriteCloser) *Channel {
	return &Channel{rw: rw}
}

// SetLogger sets a logger for frame-level tracing
func (c *Channel) SetLogger(logger *log.Logger) {
	c.logger = logger
}

func (c *Channel) logf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}

// Send encodes msg and writes it as one frame.
func (c *Channel) Send(msgType uint8, msg Encoder) error {
	payload, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("%w %s: %w", ErrEncode, TypeName(msgType), err)
	}

	frame := &Frame{
		Version: ProtocolVersion,
		Type:    msgType,
		Payload: payload,
	}

	w := &countingWriter{w: c.rw, counter: &c.bytesSent}
	if err := EncodeFrame(w, frame); err != nil {
		c.logf("Write error: %v", err)
		return fmt.Errorf("write %s: %w", TypeName(msgType), err)
	}

	c.logf("→ SEND: Type=%s PayloadLen=%d", TypeName(msgType), len(payload))
	return nil
}

// Receive blocks until one complete frame has been read.
func (c *Channel) Receive() (*Frame, error) {
	r := &countingReader{r: c.rw, counter: &c.bytesReceived}
	frame, err := DecodeFrame(r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			c.logf("Connection closed by server (EOF)")
		} else {
			c.logf("Read error: %v", err)
		}
		return nil, err
	}

	c.logf("← RECV: Type=%s PayloadLen=%d", TypeName(frame.Type), len(frame.Payload))
	return frame, nil
}

// ReadEntryResponse reads the server's answer to a VersionCheck or LoginAttempt.
func (c *Channel) ReadEntryResponse() (*EntryResponseMessage, error) {
	frame, err := c.Receive()
	if err != nil {
		return nil, err
	}
	if frame.Type != TypeEntryResponse {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedType, TypeName(TypeEntryResponse), TypeName(frame.Type))
	}

	msg := &EntryResponseMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return msg, nil
}

// ReadEvent reads one server event. On ErrMalformedPayload the returned
// message holds whatever was decoded before the failure, so its Disconnect
// flag can still be honoured.
func (c *Channel) ReadEvent() (*EventMessage, error) {
	frame, err := c.Receive()
	if err != nil {
		return nil, err
	}
	if frame.Type != TypeServerEvent {
		return nil, fmt.Errorf("%w: want %s, got %s", ErrUnexpectedType, TypeName(TypeServerEvent), TypeName(frame.Type))
	}

	msg := &EventMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		return msg, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return msg, nil
}

// Close closes the underlying connection. Safe to call more than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.rw.Close()
	})
	return c.closeErr
}

// BytesSent returns the total bytes written on this channel
func (c *Channel) BytesSent() uint64 {
	return c.bytesSent.Load()
}

// BytesReceived returns the total bytes read on this channel
func (c *Channel) BytesReceived() uint64 {
	return c.bytesReceived.Load()
}

// countingReader wraps an io.Reader and counts bytes read using atomic counter
type countingReader struct {
	r       io.Reader
	counter *atomic.Uint64
}

func (cr *countingReader) Read(p []byte) (n int, err error) {
	n, err = cr.r.Read(p)
	if n > 0 && cr.counter != nil {
		cr.counter.Add(uint64(n))
	}
	return n, err
}

// countingWriter wraps an io.Writer and counts bytes written using atomic counter
type countingWriter struct {
	w       io.Writer
	counter *atomic.Uint64
}

func (cw *countingWriter) Write(p []byte) (n int, err error) {
	n, err = cw.w.Write(p)
	if n > 0 && cw.counter != nil {
		cw.counter.Add(uint64(n))
	}
	return n, err
}
