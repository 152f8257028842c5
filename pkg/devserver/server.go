// Package devserver is a small local game server speaking the client's wire
// protocol over TCP, WebSocket and SSH. It exists for trying the client out
// and for end-to-end tests.
package devserver

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/aeolun/mudclient/pkg/command"
	"github.com/aeolun/mudclient/pkg/protocol"
)

// Config holds server configuration. An empty address disables that listener.
type Config struct {
	TCPAddr           string
	WSAddr            string
	SSHAddr           string
	SSHHostKeyPath    string // empty means an in-memory key
	Version           string
	Motd              string
	KeepaliveInterval time.Duration // zero disables keepalives
}

// DefaultConfig returns a configuration listening on the client's default ports
func DefaultConfig() Config {
	return Config{
		TCPAddr:           ":2277",
		WSAddr:            ":8080",
		SSHAddr:           ":2278",
		SSHHostKeyPath:    "~/.config/mudclient/devserver_host_key",
		Version:           "0.1.0",
		Motd:              "Welcome to the mudclient development server!",
		KeepaliveInterval: 30 * time.Second,
	}
}

// Server accepts connections on every configured transport
type Server struct {
	config   Config
	game     Game
	accounts *Accounts
	metrics  *Metrics
	logger   *log.Logger

	listener    net.Listener
	wsListener  net.Listener
	sshListener net.Listener
	httpServer  *http.Server

	keyMu   sync.Mutex
	hostKey ssh.Signer

	nextID   atomic.Uint64
	connMu   sync.Mutex
	conns    map[uint64]io.Closer
	shutdown chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a server. A nil game runs the Lobby and a nil accounts table
// starts empty.
func New(config Config, game Game, accounts *Accounts) *Server {
	if game == nil {
		game = Lobby{}
	}
	if accounts == nil {
		accounts = NewAccounts()
	}
	return &Server{
		config:   config,
		game:     game,
		accounts: accounts,
		conns:    make(map[uint64]io.Closer),
		shutdown: make(chan struct{}),
	}
}

// SetLogger sets the server logger. Without one the server is silent.
func (s *Server) SetLogger(logger *log.Logger) {
	s.logger = logger
}

// SetMetrics attaches metrics to the server
func (s *Server) SetMetrics(metrics *Metrics) {
	s.metrics = metrics
}

func (s *Server) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// Start opens every configured listener
func (s *Server) Start() error {
	if s.config.TCPAddr == "" && s.config.WSAddr == "" && s.config.SSHAddr == "" {
		return errors.New("no listeners configured")
	}

	if s.config.TCPAddr != "" {
		listener, err := net.Listen("tcp", s.config.TCPAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.config.TCPAddr, err)
		}
		s.listener = listener
		s.logf("TCP server listening on %s", listener.Addr())

		s.wg.Add(1)
		go s.acceptLoop(listener)
	}

	if s.config.WSAddr != "" {
		if err := s.startWebSocketServer(); err != nil {
			s.Stop()
			return fmt.Errorf("failed to start WebSocket server: %w", err)
		}
	}

	if s.config.SSHAddr != "" {
		if err := s.startSSHServer(); err != nil {
			s.Stop()
			return fmt.Errorf("failed to start SSH server: %w", err)
		}
	}

	return nil
}

// Stop closes the listeners and every open connection, then waits for
// session goroutines to finish
func (s *Server) Stop() error {
	s.stopOnce.Do(func() {
		close(s.shutdown)

		if s.listener != nil {
			s.listener.Close()
		}
		if s.sshListener != nil {
			s.sshListener.Close()
		}
		if s.httpServer != nil {
			s.httpServer.Close()
		}

		s.connMu.Lock()
		for _, c := range s.conns {
			c.Close()
		}
		s.connMu.Unlock()
	})

	s.wg.Wait()
	return nil
}

// TCPAddr returns the bound TCP address, or "" when TCP is disabled
func (s *Server) TCPAddr() string {
	return listenerAddr(s.listener)
}

// WSAddr returns the bound WebSocket address, or "" when disabled
func (s *Server) WSAddr() string {
	return listenerAddr(s.wsListener)
}

// SSHAddr returns the bound SSH address, or "" when disabled
func (s *Server) SSHAddr() string {
	return listenerAddr(s.sshListener)
}

// Accounts returns the server's account table
func (s *Server) Accounts() *Accounts {
	return s.accounts
}

func listenerAddr(l net.Listener) string {
	if l == nil {
		return ""
	}
	return l.Addr().String()
}

func (s *Server) acceptLoop(listener net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logf("Accept error: %v", err)
			continue
		}

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetNoDelay(true)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn, "tcp")
		}()
	}
}

// track registers c so Stop can close it. It reports false when the server
// is already shutting down.
func (s *Server) track(c io.Closer) (uint64, bool) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	select {
	case <-s.shutdown:
		return 0, false
	default:
	}

	id := s.nextID.Add(1)
	s.conns[id] = c
	return id, true
}

func (s *Server) untrack(id uint64) {
	s.connMu.Lock()
	delete(s.conns, id)
	s.connMu.Unlock()
}

// handleConnection serves one connection: either a version check or a login
// attempt followed, on success, by a game session
func (s *Server) handleConnection(conn io.ReadWriteCloser, transport string) {
	id, ok := s.track(conn)
	if !ok {
		conn.Close()
		return
	}
	defer s.untrack(id)

	ch := protocol.NewChannel(conn)
	ch.SetLogger(s.logger)
	defer ch.Close()

	frame, err := ch.Receive()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.logf("Connection %d (%s) read error: %v", id, transport, err)
		}
		return
	}

	switch frame.Type {
	case protocol.TypeVersionCheck:
		s.handleVersionCheck(ch, id, frame)
	case protocol.TypeLoginAttempt:
		player, ok := s.handleLogin(ch, id, frame)
		if !ok {
			return
		}
		s.logf("Connection %d (%s) logged in as %s", id, transport, player)
		s.metrics.SessionStarted(transport)
		defer s.metrics.SessionEnded(transport)
		s.play(ch, id, player)
	default:
		s.sendEntry(ch, &protocol.EntryResponseMessage{
			Kind: protocol.EntryError,
			Text: fmt.Sprintf("expected a version check or login attempt, got %s", protocol.TypeName(frame.Type)),
		})
	}
}

func (s *Server) handleVersionCheck(ch *protocol.Channel, id uint64, frame *protocol.Frame) {
	msg := &protocol.VersionCheckMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		s.sendEntry(ch, &protocol.EntryResponseMessage{Kind: protocol.EntryError, Text: "malformed version check"})
		return
	}

	s.logf("Connection %d version check: client=%s server=%s", id, msg.Version, s.config.Version)
	s.sendEntry(ch, &protocol.EntryResponseMessage{
		Valid: msg.Version == s.config.Version,
		Kind:  protocol.EntryVersion,
		Text:  s.config.Version,
	})
}

func (s *Server) handleLogin(ch *protocol.Channel, id uint64, frame *protocol.Frame) (string, bool) {
	msg := &protocol.LoginAttemptMessage{}
	if err := msg.Decode(frame.Payload); err != nil {
		s.metrics.RecordLogin("malformed")
		s.sendEntry(ch, &protocol.EntryResponseMessage{Kind: protocol.EntryError, Text: "malformed login attempt"})
		return "", false
	}

	var err error
	result := "signin"
	if msg.IsSignup {
		result = "signup"
		email := ""
		if msg.Email != nil {
			email = *msg.Email
		}
		err = s.accounts.SignUp(email, msg.Username, msg.Password)
	} else {
		err = s.accounts.SignIn(msg.Username, msg.Password)
	}

	if err != nil {
		s.logf("Connection %d login as %q refused: %v", id, msg.Username, err)
		s.metrics.RecordLogin("refused")
		s.sendEntry(ch, &protocol.EntryResponseMessage{Kind: protocol.EntryError, Text: err.Error()})
		return "", false
	}

	s.metrics.RecordLogin(result)
	if err := s.sendEntry(ch, &protocol.EntryResponseMessage{Valid: true, Kind: protocol.EntryMotd, Text: s.config.Motd}); err != nil {
		return "", false
	}
	return msg.Username, true
}

func (s *Server) sendEntry(ch *protocol.Channel, msg *protocol.EntryResponseMessage) error {
	if err := ch.Send(protocol.TypeEntryResponse, msg); err != nil {
		s.logf("Failed to send entry response: %v", err)
		return err
	}
	return nil
}

type received struct {
	frame *protocol.Frame
	err   error
}

// play runs a logged-in session. All writes happen on this goroutine; a
// reader goroutine feeds inbound frames.
func (s *Server) play(ch *protocol.Channel, id uint64, player string) {
	done := make(chan struct{})
	defer close(done)

	inbound := make(chan received)
	go func() {
		for {
			frame, err := ch.Receive()
			select {
			case inbound <- received{frame: frame, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var keepalive <-chan time.Time
	if s.config.KeepaliveInterval > 0 {
		ticker := time.NewTicker(s.config.KeepaliveInterval)
		defer ticker.Stop()
		keepalive = ticker.C
	}

	if err := s.sendReply(ch, s.game.Welcome(player)); err != nil {
		return
	}

	for {
		select {
		case <-s.shutdown:
			ch.Send(protocol.TypeServerEvent, &protocol.EventMessage{
				Disconnect: true,
				Kind:       protocol.EventError,
				Error:      "The server is shutting down.",
			})
			return

		case <-keepalive:
			err := ch.Send(protocol.TypeServerEvent, &protocol.EventMessage{
				Kind:      protocol.EventKeepalive,
				Keepalive: uint64(time.Now().Unix()),
			})
			if err != nil {
				return
			}

		case in := <-inbound:
			if in.err != nil {
				if errors.Is(in.err, io.EOF) {
					s.logf("Connection %d (%s) disconnected", id, player)
				} else {
					s.logf("Connection %d (%s) read error: %v", id, player, in.err)
				}
				return
			}
			if in.frame.Type != protocol.TypeEvent {
				s.logf("Connection %d ignoring %s", id, protocol.TypeName(in.frame.Type))
				continue
			}

			ev := &protocol.EventMessage{}
			if err := ev.Decode(in.frame.Payload); err != nil {
				s.logf("Connection %d malformed event: %v", id, err)
				continue
			}
			s.metrics.RecordEvent(ev.Kind.String())

			switch ev.Kind {
			case protocol.EventText:
				width, height := parseStatus(ev.Message.Data)
				reply := s.game.Handle(player, ev.Message.Text, width, height)
				if err := s.sendReply(ch, reply); err != nil || reply.Disconnect {
					return
				}
			case protocol.EventKeepalive:
				s.logf("Connection %d keepalive answered at %d", id, ev.Keepalive)
			}
		}
	}
}

// sendReply sends a game reply. A disconnecting reply goes out as an error
// event so the client shows the text without asking for more input.
// noopCommand fills the command field of replies without commands. Clients
// report an empty field as an empty-command error.
const noopCommand = "print"

func (s *Server) sendReply(ch *protocol.Channel, reply Reply) error {
	ev := &protocol.EventMessage{Disconnect: reply.Disconnect}
	if reply.Disconnect {
		ev.Kind = protocol.EventError
		ev.Error = reply.Text
	} else {
		ev.Kind = protocol.EventText
		commands := reply.Commands
		if len(commands) == 0 {
			commands = []string{noopCommand}
		}
		ev.Message = protocol.ServerMessage{Text: reply.Text, Data: command.Encode(commands)}
	}
	return ch.Send(protocol.TypeServerEvent, ev)
}
