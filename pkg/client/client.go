// Package client runs a session against a text game server: version
// handshake, login dialogue, then the event loop.
package client

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/aeolun/mudclient/pkg/prompt"
	"github.com/aeolun/mudclient/pkg/terminal"
)

const (
	connectFailedText = "Failed to connect to the server."
	loginSuccessText  = "Logged in successfully!"
)

// ErrUnreachable is returned when the server cannot be reached during the
// handshake or a login attempt.
var ErrUnreachable = errors.New("failed to connect to the server")

// ProtocolMismatchError is returned when the server runs a different version
type ProtocolMismatchError struct {
	ClientVersion string
	ServerVersion string
}

func (e *ProtocolMismatchError) Error() string {
	switch compareVersions(e.ClientVersion, e.ServerVersion) {
	case -1:
		return fmt.Sprintf("client version %s is older than server version %s", e.ClientVersion, e.ServerVersion)
	case 1:
		return fmt.Sprintf("client version %s is newer than server version %s", e.ClientVersion, e.ServerVersion)
	default:
		return fmt.Sprintf("client version %s does not match server version %s", e.ClientVersion, e.ServerVersion)
	}
}

// Notice is the sentence shown to the user in place of Error.
func (e *ProtocolMismatchError) Notice() string {
	switch compareVersions(e.ClientVersion, e.ServerVersion) {
	case -1:
		return fmt.Sprintf("Your client is outdated! The server is running %s while you're still on %s! Please make sure to update!", e.ServerVersion, e.ClientVersion)
	case 1:
		return fmt.Sprintf("Your client (%s) is newer than the server (%s).", e.ClientVersion, e.ServerVersion)
	default:
		return fmt.Sprintf("Your client version %s does not match the server version %s.", e.ClientVersion, e.ServerVersion)
	}
}

// RejectedError is returned when the server refuses the version check
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("server rejected the connection: %s", e.Reason)
}

// trafficCounter is implemented by *protocol.Channel
type trafficCounter interface {
	BytesSent() uint64
	BytesReceived() uint64
}

// Options configures a Client. Opener, Version and Prompt are required.
type Options struct {
	Opener  Opener
	Version string
	Prompt  prompt.Prompter

	// Out receives every user-visible notice; defaults to os.Stdout
	Out        io.Writer
	Dispatcher Dispatcher
	Sizer      Sizer

	FallbackWidth  int
	FallbackHeight int

	Logger     *log.Logger
	Metrics    *Metrics
	Transcript *Transcript
	Notifier   Notifier
}

// Client runs one session from handshake to disconnect
type Client struct {
	opts   Options
	out    io.Writer
	styles terminal.Styles
}

// New validates opts and creates a Client
func New(opts Options) (*Client, error) {
	if opts.Opener == nil {
		return nil, errors.New("client: opener is required")
	}
	if opts.Prompt == nil {
		return nil, errors.New("client: prompt is required")
	}
	if opts.Version == "" {
		return nil, errors.New("client: version is required")
	}
	if opts.FallbackWidth <= 0 {
		opts.FallbackWidth = 80
	}
	if opts.FallbackHeight <= 0 {
		opts.FallbackHeight = 24
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Client{opts: opts, out: out, styles: terminal.NewStyles(out)}, nil
}

func (c *Client) logf(format string, args ...interface{}) {
	if c.opts.Logger != nil {
		c.opts.Logger.Printf(format, args...)
	}
}

// Run performs the handshake, logs in and runs the event loop until the
// session ends. It returns nil after a normal disconnect.
func (c *Client) Run() error {
	if s, ok := c.opts.Opener.(fmt.Stringer); ok {
		fmt.Fprintf(c.out, "Connecting to %s\n", s)
	}

	hs := Handshake(c.opts.Opener, c.opts.Version, c.opts.Logger)
	c.logf("Handshake outcome: %s", hs.Kind)
	switch hs.Kind {
	case HandshakeUnreachable:
		c.opts.Metrics.RecordPhaseFailure("handshake")
		fmt.Fprintln(c.out, c.styles.Error.Render(connectFailedText))
		return fmt.Errorf("%w: %w", ErrUnreachable, hs.Err)
	case HandshakeIncompatible:
		err := &ProtocolMismatchError{ClientVersion: c.opts.Version, ServerVersion: hs.ServerVersion}
		fmt.Fprintln(c.out, c.styles.Error.Render(err.Notice()))
		return err
	case HandshakeRejected:
		err := &RejectedError{Reason: hs.Reason}
		fmt.Fprintln(c.out, c.styles.Error.Render(err.Error()))
		return err
	}

	auth := &AuthSession{
		Opener:  c.opts.Opener,
		Prompt:  c.opts.Prompt,
		Out:     c.out,
		Styles:  c.styles,
		Metrics: c.opts.Metrics,
		Logger:  c.opts.Logger,
	}
	outcome := auth.Authenticate()
	c.logf("Authentication outcome: %s", outcome.Kind)
	switch outcome.Kind {
	case AuthUnreachable:
		fmt.Fprintln(c.out, c.styles.Error.Render(connectFailedText))
		return fmt.Errorf("%w: %w", ErrUnreachable, outcome.Err)
	case AuthAborted:
		return outcome.Err
	}

	fmt.Fprintln(c.out, c.styles.Success.Render(loginSuccessText))
	fmt.Fprintln(c.out, outcome.Motd)

	return c.session(outcome.Channel)
}

func (c *Client) session(ch Channel) error {
	defer ch.Close()

	loop := &EventLoop{
		Channel:        ch,
		Dispatcher:     c.opts.Dispatcher,
		Prompt:         c.opts.Prompt,
		Out:            c.out,
		Styles:         c.styles,
		Sizer:          c.opts.Sizer,
		FallbackWidth:  c.opts.FallbackWidth,
		FallbackHeight: c.opts.FallbackHeight,
		Metrics:        c.opts.Metrics,
		Logger:         c.opts.Logger,
	}

	if t := c.opts.Transcript; t != nil {
		server := "unknown"
		if s, ok := c.opts.Opener.(fmt.Stringer); ok {
			server = s.String()
		}
		if err := t.StartSession(server); err != nil {
			c.logf("Transcript disabled for this session: %v", err)
		} else {
			loop.Recorder = t
		}
	}

	result := loop.Run()
	c.logf("Event loop ended (%s) after %d events: %v", result.Reason, result.Events, result.Err)

	if c.opts.Transcript != nil {
		c.opts.Transcript.EndSession(result.Reason.String())
	}
	if tc, ok := ch.(trafficCounter); ok {
		c.opts.Metrics.RecordTraffic(tc.BytesSent(), tc.BytesReceived())
		c.logf("Session traffic: sent=%d received=%d", tc.BytesSent(), tc.BytesReceived())
	}
	if c.opts.Notifier != nil && result.Reason != StopInputEnded {
		if err := c.opts.Notifier.Notify("mudclient", disconnectedText); err != nil {
			c.logf("Notification failed: %v", err)
		}
	}

	if result.Reason == StopInputEnded && !errors.Is(result.Err, io.EOF) && !errors.Is(result.Err, prompt.ErrAborted) {
		return result.Err
	}
	return nil
}
