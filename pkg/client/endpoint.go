package client

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aeolun/mudclient/pkg/protocol"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const (
	defaultTCPPort = "2277"
	defaultSSHPort = "2278"
	defaultWSPort  = "8080"

	dialTimeout = 10 * time.Second
)

// Scheme identifies the transport used to reach the server
type Scheme string

const (
	SchemeTCP Scheme = "tcp"
	SchemeSSH Scheme = "ssh"
	SchemeWS  Scheme = "ws"
	SchemeWSS Scheme = "wss"
)

// Endpoint is a parsed server address. Every call to Open dials a new
// connection; the handshake, each login attempt and the session all use
// their own.
type Endpoint struct {
	Scheme Scheme
	Host   string
	Port   string
	User   string // ssh only

	// Warning is set when the connection will be made with reduced security
	Warning string

	dial   func() (io.ReadWriteCloser, error)
	logger *log.Logger
}

// ParseEndpoint parses host[:port], tcp://, ssh://[user@], ws:// and wss://
// server addresses.
func ParseEndpoint(raw string) (*Endpoint, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("server address is empty")
	}

	scheme := SchemeTCP
	user := ""
	hostPort := trimmed
	if strings.Contains(trimmed, "://") {
		u, err := url.Parse(trimmed)
		if err != nil {
			return nil, fmt.Errorf("invalid server address %q: %w", raw, err)
		}
		if u.Scheme != "" {
			scheme = Scheme(strings.ToLower(u.Scheme))
		}
		if u.User != nil {
			user = u.User.Username()
		}
		hostPort = u.Host
	}

	ep := &Endpoint{Scheme: scheme}

	var defaultPort string
	switch scheme {
	case SchemeTCP:
		defaultPort = defaultTCPPort
	case SchemeSSH:
		defaultPort = defaultSSHPort
	case SchemeWS, SchemeWSS:
		defaultPort = defaultWSPort
	default:
		return nil, fmt.Errorf("unsupported server scheme %q", scheme)
	}

	host, port, err := splitHostPortWithDefault(hostPort, defaultPort)
	if err != nil {
		return nil, err
	}
	ep.Host = host
	ep.Port = port
	address := net.JoinHostPort(host, port)

	switch scheme {
	case SchemeTCP:
		ep.dial = func() (io.ReadWriteCloser, error) {
			return net.DialTimeout("tcp", address, dialTimeout)
		}
	case SchemeSSH:
		if user == "" {
			user = defaultSSHUser()
		}
		ep.User = user
		verifier := newHostKeyVerifier()
		ep.Warning = verifier.warning
		ep.dial = func() (io.ReadWriteCloser, error) {
			return dialSSH(user, address, verifier)
		}
	case SchemeWS, SchemeWSS:
		ep.dial = func() (io.ReadWriteCloser, error) {
			return DialWebSocket(address, scheme == SchemeWSS)
		}
	}

	return ep, nil
}

// SetLogger sets the logger handed to every channel this endpoint opens
func (e *Endpoint) SetLogger(logger *log.Logger) {
	e.logger = logger
}

func (e *Endpoint) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}

// String returns the address in URL form
func (e *Endpoint) String() string {
	address := net.JoinHostPort(e.Host, e.Port)
	if e.Scheme == SchemeSSH && e.User != "" {
		return fmt.Sprintf("ssh://%s@%s", e.User, address)
	}
	return fmt.Sprintf("%s://%s", e.Scheme, address)
}

// Open dials a new connection and wraps it in a protocol channel
func (e *Endpoint) Open() (Channel, error) {
	if e.dial == nil {
		return nil, errors.New("no dialer configured")
	}

	e.logf("Connecting to %s...", e)
	conn, err := e.dial()
	if err != nil {
		e.logf("Connection failed: %v", err)
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	if e.Warning != "" {
		e.logf("WARNING: %s", e.Warning)
	}
	e.logf("Connected to %s", e)

	ch := protocol.NewChannel(conn)
	ch.SetLogger(e.logger)
	return ch, nil
}

func splitHostPortWithDefault(hostPort, defaultPort string) (string, string, error) {
	hostPort = strings.TrimSpace(hostPort)
	if hostPort == "" {
		return "", "", errors.New("missing host in server address")
	}

	host, port, err := net.SplitHostPort(hostPort)
	if err == nil {
		if host == "" {
			return "", "", errors.New("missing host in server address")
		}
		return host, port, nil
	}

	var addrErr *net.AddrError
	if errors.As(err, &addrErr) && strings.Contains(strings.ToLower(addrErr.Err), "missing port") {
		host = hostPort
		if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
			host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
		}
		return host, defaultPort, nil
	}

	return "", "", err
}

func defaultSSHUser() string {
	if user := os.Getenv("MUDCLIENT_SSH_USER"); user != "" {
		return user
	}
	if user := os.Getenv("USER"); user != "" {
		return user
	}
	if user := os.Getenv("USERNAME"); user != "" {
		return user
	}
	return "anonymous"
}

// hostKeyVerifier checks server keys against every readable known_hosts file.
// With no known_hosts file at all it accepts any key and records a warning.
type hostKeyVerifier struct {
	paths     []string
	callbacks []ssh.HostKeyCallback
	warning   string
}

func newHostKeyVerifier() *hostKeyVerifier {
	paths := knownHostPaths()
	var callbacks []ssh.HostKeyCallback
	for _, path := range paths {
		if cb, err := knownhosts.New(path); err == nil {
			callbacks = append(callbacks, cb)
		}
	}

	v := &hostKeyVerifier{paths: paths, callbacks: callbacks}
	if len(callbacks) == 0 {
		v.warning = "SSH host key verification is disabled (known_hosts not found); connection is vulnerable to MITM attacks"
	}
	return v
}

func (v *hostKeyVerifier) callback(hostname string, remote net.Addr, key ssh.PublicKey) error {
	if len(v.callbacks) == 0 {
		return nil
	}

	var lastErr error
	for _, cb := range v.callbacks {
		if err := cb(hostname, remote, key); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	var keyErr *knownhosts.KeyError
	if errors.As(lastErr, &keyErr) {
		fingerprint := ssh.FingerprintSHA256(key)
		if len(keyErr.Want) == 0 {
			return fmt.Errorf("ssh host key %s for %s is not trusted; add it to %s and retry", fingerprint, hostname, strings.Join(v.paths, ", "))
		}
		return fmt.Errorf("ssh host key verification failed for %s: the server presented key %s but known_hosts expects %s. This could indicate a man-in-the-middle attack", hostname, fingerprint, ssh.FingerprintSHA256(keyErr.Want[0].Key))
	}
	return lastErr
}

func knownHostPaths() []string {
	if env := os.Getenv("SSH_KNOWN_HOSTS"); env != "" {
		var paths []string
		for _, p := range strings.Split(env, string(os.PathListSeparator)) {
			if p = strings.TrimSpace(p); p != "" {
				paths = append(paths, p)
			}
		}
		return paths
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(home, ".ssh", "known_hosts")}
}

func dialSSH(user, address string, verifier *hostKeyVerifier) (io.ReadWriteCloser, error) {
	signers, err := loadSSHSigners()
	if err != nil {
		return nil, fmt.Errorf("failed to load SSH keys: %w", err)
	}
	if len(signers) == 0 {
		return nil, errors.New("no SSH keys found - generate one with: ssh-keygen -t ed25519 -f ~/.ssh/id_ed25519")
	}

	config := &ssh.ClientConfig{
		User:            user,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signers...)},
		HostKeyCallback: verifier.callback,
		Timeout:         dialTimeout,
	}

	client, err := ssh.Dial("tcp", address, config)
	if err != nil {
		return nil, err
	}

	channel, requests, err := client.OpenChannel("session", nil)
	if err != nil {
		client.Close()
		return nil, err
	}
	go ssh.DiscardRequests(requests)

	return &sshClientConn{channel: channel, client: client}, nil
}

// loadSSHSigners loads unencrypted private keys from ~/.ssh
func loadSSHSigners() ([]ssh.Signer, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New("cannot determine home directory")
	}

	var signers []ssh.Signer
	for _, name := range []string{"id_ed25519", "id_ecdsa", "id_rsa"} {
		keyBytes, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			// Passphrase-protected keys are skipped
			continue
		}
		signers = append(signers, signer)
	}
	return signers, nil
}

// sshClientConn carries frames over an SSH session channel
type sshClientConn struct {
	channel ssh.Channel
	client  *ssh.Client
}

func (c *sshClientConn) Read(b []byte) (int, error) {
	return c.channel.Read(b)
}

func (c *sshClientConn) Write(b []byte) (int, error) {
	return c.channel.Write(b)
}

func (c *sshClientConn) Close() error {
	c.channel.Close()
	return c.client.Close()
}
