package devserver

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"
)

// startSSHServer serves the protocol over "session" channels. Clients are
// not authenticated at the SSH layer; the game login happens in-band.
func (s *Server) startSSHServer() error {
	hostKey, err := s.loadOrGenerateHostKey()
	if err != nil {
		return fmt.Errorf("failed to load host key: %w", err)
	}

	config := &ssh.ServerConfig{
		NoClientAuth:  true,
		ServerVersion: "SSH-2.0-mudclient-devserver",
	}
	config.AddHostKey(hostKey)

	listener, err := net.Listen("tcp", s.config.SSHAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.SSHAddr, err)
	}
	s.sshListener = listener
	s.logf("SSH server listening on %s (host key %s)", listener.Addr(), ssh.FingerprintSHA256(hostKey.PublicKey()))

	s.wg.Add(1)
	go s.acceptSSHLoop(listener, config)
	return nil
}

// HostKey returns the public host key when SSH is enabled
func (s *Server) HostKey() (ssh.PublicKey, error) {
	signer, err := s.loadOrGenerateHostKey()
	if err != nil {
		return nil, err
	}
	return signer.PublicKey(), nil
}

func (s *Server) acceptSSHLoop(listener net.Listener, config *ssh.ServerConfig) {
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
			s.logf("SSH accept error: %v", err)
			continue
		}

		s.wg.Add(1)
		go s.handleSSHConnection(conn, config)
	}
}

func (s *Server) handleSSHConnection(conn net.Conn, config *ssh.ServerConfig) {
	defer s.wg.Done()
	defer conn.Close()

	id, ok := s.track(conn)
	if !ok {
		return
	}
	defer s.untrack(id)

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		s.logf("SSH handshake failed: %v", err)
		return
	}
	defer sshConn.Close()

	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unknown channel type")
			continue
		}

		channel, requests, err := newChannel.Accept()
		if err != nil {
			s.logf("Could not accept SSH channel: %v", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			go replyToChannelRequests(requests)
			s.handleConnection(channel, "ssh")
		}()
	}
}

func replyToChannelRequests(requests <-chan *ssh.Request) {
	for req := range requests {
		if !req.WantReply {
			continue
		}
		switch req.Type {
		case "shell", "pty-req", "env", "window-change":
			req.Reply(true, nil)
		default:
			req.Reply(false, nil)
		}
	}
}

// loadOrGenerateHostKey loads the SSH host key, creating an ed25519 key when
// the file does not exist. An empty path keeps a per-process key in memory.
func (s *Server) loadOrGenerateHostKey() (ssh.Signer, error) {
	s.keyMu.Lock()
	defer s.keyMu.Unlock()

	if s.hostKey != nil {
		return s.hostKey, nil
	}

	keyPath := strings.TrimSpace(s.config.SSHHostKeyPath)
	if strings.HasPrefix(keyPath, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		keyPath = filepath.Join(homeDir, keyPath[2:])
	}

	if keyPath != "" {
		keyBytes, err := os.ReadFile(keyPath)
		if err == nil {
			key, err := ssh.ParsePrivateKey(keyBytes)
			if err != nil {
				return nil, fmt.Errorf("failed to parse host key %s: %w", keyPath, err)
			}
			s.logf("Loaded SSH host key from %s", keyPath)
			s.hostKey = key
			return key, nil
		}
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read host key: %w", err)
		}
	}

	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(privateKey, "mudclient devserver")
	if err != nil {
		return nil, fmt.Errorf("failed to encode key: %w", err)
	}

	if keyPath != "" {
		if err := os.MkdirAll(filepath.Dir(keyPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		if err := os.WriteFile(keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
			return nil, fmt.Errorf("failed to write key: %w", err)
		}
		s.logf("Generated new SSH host key at %s", keyPath)
	}

	key, err := ssh.NewSignerFromKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load generated key: %w", err)
	}
	s.hostKey = key
	return key, nil
}
