package devserver

import (
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/mudclient/pkg/protocol"
)

func startTestServer(t *testing.T, config Config) *Server {
	t.Helper()
	if config.TCPAddr == "" {
		config.TCPAddr = "127.0.0.1:0"
	}
	if config.Version == "" {
		config.Version = "1.2.3"
	}
	if config.Motd == "" {
		config.Motd = "Hello from the test server"
	}

	srv := New(config, nil, nil)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })
	return srv
}

func dialTest(t *testing.T, srv *Server) *protocol.Channel {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.TCPAddr(), 2*time.Second)
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	ch := protocol.NewChannel(conn)
	t.Cleanup(func() { ch.Close() })
	return ch
}

func readEntry(t *testing.T, ch *protocol.Channel) *protocol.EntryResponseMessage {
	t.Helper()
	msg, err := ch.ReadEntryResponse()
	require.NoError(t, err)
	return msg
}

func readEvent(t *testing.T, ch *protocol.Channel) *protocol.EventMessage {
	t.Helper()
	ev, err := ch.ReadEvent()
	require.NoError(t, err)
	return ev
}

func sendInput(t *testing.T, ch *protocol.Channel, input, status string) {
	t.Helper()
	require.NoError(t, ch.Send(protocol.TypeEvent, &protocol.EventMessage{
		Kind:    protocol.EventText,
		Message: protocol.ServerMessage{Text: input, Data: status},
	}))
}

func login(t *testing.T, ch *protocol.Channel, signup bool, username, password string) *protocol.EntryResponseMessage {
	t.Helper()
	msg := &protocol.LoginAttemptMessage{Username: username, Password: password, IsSignup: signup}
	if signup {
		email := username + "@example.com"
		msg.Email = &email
	}
	require.NoError(t, ch.Send(protocol.TypeLoginAttempt, msg))
	return readEntry(t, ch)
}

func TestVersionCheck(t *testing.T) {
	srv := startTestServer(t, Config{Version: "1.2.3"})

	tests := []struct {
		client string
		valid  bool
	}{
		{"1.2.3", true},
		{"1.2.4", false},
		{"", false},
	}

	for _, tt := range tests {
		ch := dialTest(t, srv)
		require.NoError(t, ch.Send(protocol.TypeVersionCheck, &protocol.VersionCheckMessage{Version: tt.client}))

		resp := readEntry(t, ch)
		assert.Equal(t, tt.valid, resp.Valid, tt.client)
		version, ok := resp.ServerVersion()
		assert.True(t, ok)
		assert.Equal(t, "1.2.3", version)

		// The server hangs up after answering
		_, err := ch.Receive()
		assert.Error(t, err)
	}
}

func TestUnexpectedFirstFrame(t *testing.T) {
	srv := startTestServer(t, Config{})
	ch := dialTest(t, srv)

	require.NoError(t, ch.Send(protocol.TypeEvent, &protocol.EventMessage{Kind: protocol.EventKeepalive, Keepalive: 1}))

	resp := readEntry(t, ch)
	assert.False(t, resp.Valid)
	text, ok := resp.ErrorText()
	assert.True(t, ok)
	assert.Contains(t, text, "expected a version check or login attempt")
}

func TestLoginRefused(t *testing.T) {
	srv := startTestServer(t, Config{})

	resp := login(t, dialTest(t, srv), false, "nobody", "secret")
	assert.False(t, resp.Valid)
	text, ok := resp.ErrorText()
	assert.True(t, ok)
	assert.Equal(t, ErrBadCredentials.Error(), text)

	resp = login(t, dialTest(t, srv), true, "bad name", "secret")
	text, _ = resp.ErrorText()
	assert.Equal(t, ErrInvalidUsername.Error(), text)
}

func TestSessionFlow(t *testing.T) {
	srv := startTestServer(t, Config{Motd: "Mind the gap"})
	ch := dialTest(t, srv)

	resp := login(t, ch, true, "alice", "hunter2")
	require.True(t, resp.Valid)
	motd, ok := resp.Motd()
	require.True(t, ok)
	assert.Equal(t, "Mind the gap", motd)

	welcome := readEvent(t, ch)
	assert.Equal(t, protocol.EventText, welcome.Kind)
	assert.Contains(t, welcome.Message.Text, "Welcome to the lobby, alice.")
	assert.Equal(t, noopCommand, welcome.Message.Data)

	sendInput(t, ch, "size", "100,30")
	ev := readEvent(t, ch)
	assert.Equal(t, "Your terminal is 100x30.\n", ev.Message.Text)
	assert.Equal(t, noopCommand, ev.Message.Data, "replies without commands still carry one")

	sendInput(t, ch, "resize 90 20", "100,30")
	ev = readEvent(t, ch)
	assert.Equal(t, "size 90 20", ev.Message.Data)

	// Keepalive replies are absorbed without an answer
	require.NoError(t, ch.Send(protocol.TypeEvent, &protocol.EventMessage{Kind: protocol.EventKeepalive, Keepalive: 42}))

	sendInput(t, ch, "quit", "100,30")
	ev = readEvent(t, ch)
	assert.True(t, ev.Disconnect)
	assert.Equal(t, protocol.EventError, ev.Kind)
	assert.Equal(t, "Goodbye.", ev.Error)

	_, err := ch.Receive()
	assert.Error(t, err, "server closes after a disconnect")
}

func TestSignInAfterSignUp(t *testing.T) {
	srv := startTestServer(t, Config{})
	require.NoError(t, srv.Accounts().SignUp("bob@example.com", "bob", "swordfish"))

	resp := login(t, dialTest(t, srv), false, "bob", "swordfish")
	assert.True(t, resp.Valid)

	resp = login(t, dialTest(t, srv), false, "bob", "wrong")
	assert.False(t, resp.Valid)
}

func TestKeepalives(t *testing.T) {
	srv := startTestServer(t, Config{KeepaliveInterval: 20 * time.Millisecond})
	ch := dialTest(t, srv)
	require.True(t, login(t, ch, true, "carol", "hunter2").Valid)

	readEvent(t, ch) // welcome

	before := uint64(time.Now().Add(-time.Second).Unix())
	ev := readEvent(t, ch)
	assert.Equal(t, protocol.EventKeepalive, ev.Kind)
	assert.GreaterOrEqual(t, ev.Keepalive, before)
	assert.False(t, ev.Disconnect)
}

func TestStopEndsSessions(t *testing.T) {
	srv := New(Config{TCPAddr: "127.0.0.1:0", Version: "1", Motd: "m"}, nil, nil)
	require.NoError(t, srv.Start())

	ch := dialTest(t, srv)
	require.True(t, login(t, ch, true, "dave", "hunter2").Valid)
	readEvent(t, ch) // welcome

	stopped := make(chan struct{})
	go func() {
		srv.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	// Either the shutdown notice or a closed stream, then nothing more
	for i := 0; i < 2; i++ {
		ev, err := ch.ReadEvent()
		if err != nil {
			return
		}
		assert.True(t, ev.Disconnect)
	}
	t.Fatal("connection stayed open after Stop")
}

func TestStartWithoutListeners(t *testing.T) {
	srv := New(Config{}, nil, nil)
	assert.Error(t, srv.Start())
}

func TestServerMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	srv := New(Config{TCPAddr: "127.0.0.1:0", Version: "1", Motd: "m"}, nil, nil)
	srv.SetMetrics(metrics)
	require.NoError(t, srv.Start())
	t.Cleanup(func() { srv.Stop() })

	login(t, dialTest(t, srv), false, "ghost", "nope")

	ch := dialTest(t, srv)
	require.True(t, login(t, ch, true, "erin", "hunter2").Valid)
	readEvent(t, ch)
	sendInput(t, ch, "look", "80,24")
	readEvent(t, ch)

	assert.Equal(t, 1.0, metricValue(t, reg, "mudserver_logins_total", "refused"))
	assert.Equal(t, 1.0, metricValue(t, reg, "mudserver_logins_total", "signup"))
	assert.Equal(t, 1.0, metricValue(t, reg, "mudserver_sessions_total", "tcp"))
	assert.Equal(t, 1.0, metricValue(t, reg, "mudserver_active_sessions", "tcp"))
	assert.Equal(t, 1.0, metricValue(t, reg, "mudserver_events_received_total", "message"))

	sendInput(t, ch, "quit", "80,24")
	readEvent(t, ch)
	assert.Eventually(t, func() bool {
		return metricValue(t, reg, "mudserver_active_sessions", "tcp") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

// metricValue reads one labelled counter or gauge from reg, or 0 if it was never set
func metricValue(t *testing.T, reg *prometheus.Registry, name, labelValue string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetValue() != labelValue {
					continue
				}
				if g := metric.GetGauge(); g != nil {
					return g.GetValue()
				}
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
