package client

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aeolun/mudclient/pkg/protocol"
)

// startWSServer answers one version check over a WebSocket at /ws. The
// reply frame is split across two binary messages.
func startWSServer(t *testing.T, version string) string {
	t.Helper()
	upgrader := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		frame, err := protocol.DecodeFrame(bytes.NewReader(data))
		if err != nil || frame.Type != protocol.TypeVersionCheck {
			t.Errorf("expected version check, got %v %v", frame, err)
			return
		}

		payload, _ := (&protocol.EntryResponseMessage{Valid: true, Kind: protocol.EntryVersion, Text: version}).Encode()
		buf := new(bytes.Buffer)
		protocol.EncodeFrame(buf, &protocol.Frame{Version: protocol.ProtocolVersion, Type: protocol.TypeEntryResponse, Payload: payload})
		reply := buf.Bytes()
		ws.WriteMessage(websocket.BinaryMessage, reply[:5])
		ws.WriteMessage(websocket.BinaryMessage, reply[5:])
		ws.ReadMessage() // wait for the client to close
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestWebSocketHandshake(t *testing.T) {
	addr := startWSServer(t, "2.0.0")

	ep, err := ParseEndpoint("ws://" + addr)
	require.NoError(t, err)

	outcome := Handshake(ep, "2.0.0", nil)
	assert.Equal(t, HandshakeCompatible, outcome.Kind, "err: %v", outcome.Err)
}

func TestWebSocketConnCloseIsIdempotent(t *testing.T) {
	addr := startWSServer(t, "1")

	conn, err := DialWebSocket(addr, false)
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = conn.Write([]byte{1})
	assert.Error(t, err)
}

func TestDialWebSocketRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := strings.TrimPrefix(srv.URL, "http://")
	defer srv.Close()

	_, err := DialWebSocket(addr, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "try wss://")
}
