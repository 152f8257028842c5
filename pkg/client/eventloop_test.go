package client

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aeolun/mudclient/pkg/command"
	"github.com/aeolun/mudclient/pkg/protocol"
	"github.com/aeolun/mudclient/pkg/terminal"
)

type recordingDispatcher struct {
	lines []string
	reg   *command.Registry
}

func (d *recordingDispatcher) Dispatch(line string) error {
	d.lines = append(d.lines, line)
	return d.reg.Dispatch(line)
}

func newLoop(ch *fakeChannel, answers ...string) (*EventLoop, *recordingDispatcher, *bytes.Buffer) {
	out := &bytes.Buffer{}
	reg := command.NewRegistry()
	reg.Register("println", func(args []string) error {
		fmt.Fprintln(out, strings.Join(args, " "))
		return nil
	})
	dispatcher := &recordingDispatcher{reg: reg}
	return &EventLoop{
		Channel:        ch,
		Dispatcher:     dispatcher,
		Prompt:         &scriptedPrompt{answers: answers},
		Out:            out,
		Styles:         terminal.NewStyles(out),
		FallbackWidth:  80,
		FallbackHeight: 24,
		Now:            func() time.Time { return time.Unix(1700000000, 0) },
	}, dispatcher, out
}

func TestEventLoopMessage(t *testing.T) {
	ch := &fakeChannel{events: []eventResult{textEvent("Hello> ", "println a!;b;nosuch", false)}}
	loop, dispatcher, out := newLoop(ch, "look")
	loop.Sizer = fixedSizer{w: 120, h: 40}

	result := loop.Run()

	assert.Equal(t, StopDropped, result.Reason)
	assert.Equal(t, 1, result.Events)
	assert.Equal(t, []string{"println a;b", "nosuch"}, dispatcher.lines)
	assert.Equal(t,
		"Hello> a;b\n"+
			"Encountered error in munching command: the command 'nosuch' does not exist\n"+
			disconnectedText+"\n",
		out.String())

	require.Len(t, ch.sent, 1)
	assert.Equal(t, uint8(protocol.TypeEvent), ch.sent[0].Type)
	assert.Equal(t, &protocol.EventMessage{
		Kind:    protocol.EventText,
		Message: protocol.ServerMessage{Text: "look", Data: "120,40"},
	}, ch.sent[0].Msg)
}

func TestEventLoopEmptyCommandField(t *testing.T) {
	ch := &fakeChannel{events: []eventResult{textEvent("Room\n", "", false)}}
	loop, dispatcher, out := newLoop(ch, "")
	metrics, reg := newTestMetrics()
	loop.Metrics = metrics

	loop.Run()

	assert.Equal(t, []string{""}, dispatcher.lines)
	assert.Equal(t,
		"Room\n"+
			"Encountered error in munching command: "+command.ErrEmptyCommand.Error()+"\n"+
			disconnectedText+"\n",
		out.String())
	assert.Equal(t, 1.0, counterValue(t, reg, "mudclient_commands_dispatched_total", "empty"))
	require.Len(t, ch.sent, 1)
}

// pipeServer runs serve against the far end of an in-memory connection and
// returns the client's channel. A failing serve closes the connection so the
// loop under test does not block forever.
func pipeServer(t *testing.T, serve func(conn net.Conn) error) (*protocol.Channel, <-chan error) {
	t.Helper()
	clientConn, serverConn := net.Pipe()
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})

	done := make(chan error, 1)
	go func() {
		err := serve(serverConn)
		if err != nil {
			serverConn.Close()
		}
		done <- err
	}()
	return protocol.NewChannel(clientConn), done
}

func TestEventLoopRejectsUnencodableInput(t *testing.T) {
	var reply protocol.EventMessage
	ch, done := pipeServer(t, func(conn net.Conn) error {
		server := protocol.NewChannel(conn)
		err := server.Send(protocol.TypeServerEvent, &protocol.EventMessage{
			Kind:    protocol.EventText,
			Message: protocol.ServerMessage{Text: "hi\n", Data: "println ready"},
		})
		if err != nil {
			return err
		}

		frame, err := server.Receive()
		if err != nil {
			return err
		}
		if frame.Type != protocol.TypeEvent {
			return fmt.Errorf("got %s", protocol.TypeName(frame.Type))
		}
		if err := reply.Decode(frame.Payload); err != nil {
			return err
		}

		return server.Send(protocol.TypeServerEvent, &protocol.EventMessage{Disconnect: true, Kind: protocol.EventError, Error: "bye"})
	})

	loop, _, out := newLoop(nil, "caf\xe9", strings.Repeat("x", 70000), "look")
	loop.Channel = ch

	result := loop.Run()
	require.NoError(t, <-done)

	assert.Equal(t, StopRequested, result.Reason)
	assert.Equal(t, 2, result.Events)
	assert.Equal(t, protocol.ServerMessage{Text: "look", Data: "80,24"}, reply.Message)
	assert.Equal(t,
		"hi\nready\n"+
			"Your input could not be sent (it is not valid UTF-8). Please try again.\n"+
			"Your input could not be sent (it is too long). Please try again.\n"+
			"bye\n"+
			disconnectedText+"\n",
		out.String())
	assert.Equal(t, []string{inputPrompt, inputPrompt, inputPrompt}, loop.Prompt.(*scriptedPrompt).asked)
}

func TestEventLoopHonoursDisconnectOfMalformedEvent(t *testing.T) {
	ch, done := pipeServer(t, func(conn net.Conn) error {
		// Both payloads stop short of the message text; only the second
		// has the disconnect flag set
		_, err := conn.Write([]byte{
			0x00, 0x00, 0x00, 0x05, protocol.ProtocolVersion, protocol.TypeServerEvent, 0x00, 0x00, 0x01,
			0x00, 0x00, 0x00, 0x06, protocol.ProtocolVersion, protocol.TypeServerEvent, 0x00, 0x01, 0x01, 0x00,
		})
		return err
	})

	loop, _, out := newLoop(nil, "never asked")
	loop.Channel = ch
	metrics, reg := newTestMetrics()
	loop.Metrics = metrics

	result := loop.Run()
	require.NoError(t, <-done)

	assert.Equal(t, StopRequested, result.Reason)
	assert.NoError(t, result.Err)
	assert.Equal(t, 2, result.Events)
	assert.Equal(t, invalidPacket+"\n"+invalidPacket+"\n"+disconnectedText+"\n", out.String())
	assert.Empty(t, loop.Prompt.(*scriptedPrompt).asked)
	assert.Equal(t, 2.0, counterValue(t, reg, "mudclient_events_received_total", "malformed"))
	assert.Zero(t, counterValue(t, reg, "mudclient_phase_failures_total", "event_loop"))
}

func TestEventLoopSizeFallback(t *testing.T) {
	ch := &fakeChannel{events: []eventResult{textEvent("", "", false)}}
	loop, _, _ := newLoop(ch, "x")
	loop.Sizer = fixedSizer{err: terminal.ErrNotTerminal}

	loop.Run()

	require.Len(t, ch.sent, 1)
	msg := ch.sent[0].Msg.(*protocol.EventMessage)
	assert.Equal(t, "80,24", msg.Message.Data)
}

func TestEventLoopKeepalive(t *testing.T) {
	ch := &fakeChannel{events: []eventResult{{msg: &protocol.EventMessage{Kind: protocol.EventKeepalive, Keepalive: 42}}}}
	loop, _, _ := newLoop(ch) // no answers: prompting would end the loop

	result := loop.Run()

	assert.Equal(t, StopDropped, result.Reason, "keepalive must not prompt")
	require.Len(t, ch.sent, 1)
	assert.Equal(t, &protocol.EventMessage{Kind: protocol.EventKeepalive, Keepalive: 1700000000}, ch.sent[0].Msg)
}

func TestEventLoopErrorAndMalformed(t *testing.T) {
	ch := &fakeChannel{events: []eventResult{
		{msg: &protocol.EventMessage{Kind: protocol.EventError, Error: "You cannot go that way."}},
		{msg: &protocol.EventMessage{Kind: protocol.EventNone}},
		{err: fmt.Errorf("%w: short buffer", protocol.ErrMalformedPayload)},
		{err: fmt.Errorf("%w: want ServerEvent", protocol.ErrUnexpectedType)},
	}}
	loop, _, out := newLoop(ch)
	metrics, reg := newTestMetrics()
	loop.Metrics = metrics

	result := loop.Run()

	assert.Equal(t, StopDropped, result.Reason)
	assert.Equal(t, 4, result.Events)
	assert.Empty(t, ch.sent)
	assert.Equal(t,
		"You cannot go that way.\n"+
			invalidPacket+"\n"+
			invalidPacket+"\n"+
			invalidPacket+"\n"+
			disconnectedText+"\n",
		out.String())
	assert.Equal(t, 3.0, counterValue(t, reg, "mudclient_events_received_total", "malformed"))
	assert.Equal(t, 1.0, counterValue(t, reg, "mudclient_events_received_total", "error"))
	assert.Equal(t, 1.0, counterValue(t, reg, "mudclient_phase_failures_total", "event_loop"))
}

func TestEventLoopReadFailureLooksLikeDisconnect(t *testing.T) {
	requested := &fakeChannel{events: []eventResult{{msg: &protocol.EventMessage{Disconnect: true}}}}
	dropped := &fakeChannel{events: []eventResult{{err: io.ErrUnexpectedEOF}}}

	loopA, _, outA := newLoop(requested)
	loopB, _, outB := newLoop(dropped)

	resultA := loopA.Run()
	resultB := loopB.Run()

	assert.Equal(t, StopRequested, resultA.Reason)
	assert.Equal(t, StopDropped, resultB.Reason)
	assert.ErrorIs(t, resultB.Err, io.ErrUnexpectedEOF)

	// A none-kind event also prints the invalid packet notice before the flag is honoured
	assert.Equal(t, invalidPacket+"\n"+disconnectedText+"\n", outA.String())
	assert.Equal(t, disconnectedText+"\n", outB.String())
}

func TestEventLoopDisconnectCheckedLast(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		kind := protocol.EventKind(rapid.IntRange(0, 3).Draw(t, "kind"))
		ev := &protocol.EventMessage{
			Disconnect: true,
			Kind:       kind,
			Message:    protocol.ServerMessage{Text: "bye", Data: rapid.SampledFrom([]string{"", "println x", "nosuch"}).Draw(t, "data")},
			Keepalive:  7,
			Error:      "closing",
		}
		ch := &fakeChannel{events: []eventResult{{msg: ev}, textEvent("never read", "", false)}}
		loop, _, out := newLoop(ch, "answer")

		result := loop.Run()

		if result.Reason != StopRequested || result.Events != 1 {
			t.Fatalf("kind %s: got %s after %d events", kind, result.Reason, result.Events)
		}
		if len(ch.events) != 1 {
			t.Fatalf("kind %s: loop read past the disconnect", kind)
		}
		if !strings.HasSuffix(out.String(), disconnectedText+"\n") {
			t.Fatalf("kind %s: disconnect notice not last: %q", kind, out.String())
		}

		wantSent := 0
		if kind == protocol.EventText || kind == protocol.EventKeepalive {
			wantSent = 1
		}
		if len(ch.sent) != wantSent {
			t.Fatalf("kind %s: sent %d replies, want %d", kind, len(ch.sent), wantSent)
		}
	})
}

func TestEventLoopInputEnded(t *testing.T) {
	ch := &fakeChannel{events: []eventResult{textEvent("prompt", "", false)}}
	loop, _, out := newLoop(ch)

	result := loop.Run()

	assert.Equal(t, StopInputEnded, result.Reason)
	assert.ErrorIs(t, result.Err, io.EOF)
	assert.Empty(t, ch.sent)
	assert.NotContains(t, out.String(), disconnectedText)
}

func TestEventLoopSendFailure(t *testing.T) {
	broken := errors.New("broken pipe")
	ch := &fakeChannel{
		events:  []eventResult{textEvent("", "", false), textEvent("unread", "", false)},
		sendErr: broken,
	}
	loop, _, out := newLoop(ch, "go north")

	result := loop.Run()

	assert.Equal(t, StopDropped, result.Reason)
	assert.ErrorIs(t, result.Err, broken)
	assert.Len(t, ch.events, 1)
	assert.Contains(t, out.String(), disconnectedText)
}

type memRecorder struct{ lines []string }

func (r *memRecorder) RecordInbound(text, commands string) {
	r.lines = append(r.lines, "in:"+text+"|"+commands)
}

func (r *memRecorder) RecordCommand(line string, err error) {
	r.lines = append(r.lines, fmt.Sprintf("cmd:%s|%v", line, err != nil))
}

func (r *memRecorder) RecordOutbound(text, status string) {
	r.lines = append(r.lines, "out:"+text+"|"+status)
}

func TestEventLoopRecordsTranscript(t *testing.T) {
	ch := &fakeChannel{events: []eventResult{textEvent("Hi", "println x;bad", true)}}
	loop, _, _ := newLoop(ch, "wave")
	rec := &memRecorder{}
	loop.Recorder = rec

	loop.Run()

	assert.Equal(t, []string{
		"in:Hi|println x;bad",
		"cmd:println x|false",
		"cmd:bad|true",
		"out:wave|80,24",
	}, rec.lines)
}
