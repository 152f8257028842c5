package client

import (
	"errors"
	"io"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/mudclient/pkg/protocol"
)

var errDial = errors.New("dial refused")

type sentMsg struct {
	Type uint8
	Msg  protocol.Encoder
}

type entryResult struct {
	msg *protocol.EntryResponseMessage
	err error
}

type eventResult struct {
	msg *protocol.EventMessage
	err error
}

// fakeChannel replays scripted responses and records what is sent.
// Reads past the end of the script return io.EOF.
type fakeChannel struct {
	entries []entryResult
	events  []eventResult
	sendErr error

	sent   []sentMsg
	closed int
}

func (c *fakeChannel) Send(msgType uint8, msg protocol.Encoder) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentMsg{Type: msgType, Msg: msg})
	return nil
}

func (c *fakeChannel) ReadEntryResponse() (*protocol.EntryResponseMessage, error) {
	if len(c.entries) == 0 {
		return nil, io.EOF
	}
	next := c.entries[0]
	c.entries = c.entries[1:]
	return next.msg, next.err
}

func (c *fakeChannel) ReadEvent() (*protocol.EventMessage, error) {
	if len(c.events) == 0 {
		return nil, io.EOF
	}
	next := c.events[0]
	c.events = c.events[1:]
	return next.msg, next.err
}

func (c *fakeChannel) Close() error {
	c.closed++
	return nil
}

// fakeOpener hands out its channels in order, then fails to dial
type fakeOpener struct {
	channels []*fakeChannel
	opened   int
}

func (o *fakeOpener) Open() (Channel, error) {
	if o.opened >= len(o.channels) {
		return nil, errDial
	}
	ch := o.channels[o.opened]
	o.opened++
	return ch, nil
}

// scriptedPrompt answers prompts from a fixed list, then returns io.EOF
type scriptedPrompt struct {
	answers []string
	asked   []string
}

func (p *scriptedPrompt) Prompt(text string) (string, error) {
	p.asked = append(p.asked, text)
	if len(p.answers) == 0 {
		return "", io.EOF
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

func (p *scriptedPrompt) PromptSecret(text string) (string, error) {
	return p.Prompt("secret:" + text)
}

type fixedSizer struct {
	w, h int
	err  error
}

func (s fixedSizer) Size() (int, int, error) {
	return s.w, s.h, s.err
}

func entry(valid bool, kind protocol.EntryKind, text string) entryResult {
	return entryResult{msg: &protocol.EntryResponseMessage{Valid: valid, Kind: kind, Text: text}}
}

func textEvent(text, data string, disconnect bool) eventResult {
	return eventResult{msg: &protocol.EventMessage{
		Disconnect: disconnect,
		Kind:       protocol.EventText,
		Message:    protocol.ServerMessage{Text: text, Data: data},
	}}
}

func newTestMetrics() (*Metrics, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

// counterValue reads one labelled counter from reg, or 0 if it was never set
func counterValue(t *testing.T, reg *prometheus.Registry, name, labelValue string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetValue() == labelValue {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
