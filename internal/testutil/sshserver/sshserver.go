// Package sshserver provides an in-process SSH server for integration
// testing the client controller end to end: it accepts a session channel,
// allocates a real pty for it, and execs the requested command against it —
// enough for rossh's bootstrap handshake and agent launch command to run
// exactly as they would against a real sshd.
//
// The server generates an SSH config file that can be passed to `ssh -F` so
// the system SSH binary can connect without any manual configuration.
package sshserver

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"

	"github.com/creack/pty"
	"golang.org/x/crypto/ssh"
)

// Server is an in-process SSH server for testing.
type Server struct {
	t    testing.TB
	opts Options

	config   *ssh.ServerConfig
	listener net.Listener
	wg       sync.WaitGroup
	done     chan struct{}

	configDir     string // t.TempDir() for SSH config and host key
	sshConfigPath string
	alias         string
}

// Options configures the test SSH server.
type Options struct {
	Username       string         // Required
	Password       string         // Enables password auth if set
	AuthorizedKeys []ssh.PublicKey // Enables pubkey auth if set
	HostKey        ssh.Signer     // Generated if nil
	Alias          string         // Defaults to "test-<port>"
}

// New creates a test SSH server. Call Start() to begin listening.
func New(t testing.TB, opts Options) *Server {
	t.Helper()

	if opts.Username == "" {
		t.Fatal("sshserver: Username is required")
	}

	return &Server{
		t:    t,
		opts: opts,
		done: make(chan struct{}),
	}
}

// Start begins listening on a random port and generates SSH config files.
func (s *Server) Start() {
	s.t.Helper()

	// Generate host key if not provided
	hostKey := s.opts.HostKey
	if hostKey == nil {
		hostKey = generateED25519Key(s.t)
	}

	// Configure server authentication
	s.config = &ssh.ServerConfig{}
	s.config.AddHostKey(hostKey)

	if s.opts.Password != "" {
		s.config.PasswordCallback = func(conn ssh.ConnMetadata, password []byte) (*ssh.Permissions, error) {
			if conn.User() == s.opts.Username && string(password) == s.opts.Password {
				return nil, nil
			}
			return nil, fmt.Errorf("authentication failed for user %q", conn.User())
		}
	}

	if len(s.opts.AuthorizedKeys) > 0 {
		s.config.PublicKeyCallback = func(conn ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if conn.User() != s.opts.Username {
				return nil, fmt.Errorf("unknown user %q", conn.User())
			}
			keyBytes := key.Marshal()
			for _, authorized := range s.opts.AuthorizedKeys {
				if bytes.Equal(keyBytes, authorized.Marshal()) {
					return nil, nil
				}
			}
			return nil, fmt.Errorf("unknown public key")
		}
	}

	// Listen on a random port
	var err error
	s.listener, err = net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		s.t.Fatalf("sshserver: failed to listen: %v", err)
	}

	// Set alias
	s.alias = s.opts.Alias
	if s.alias == "" {
		s.alias = fmt.Sprintf("test-%d", s.Port())
	}

	// Generate SSH config
	s.configDir = s.t.TempDir()
	s.generateSSHConfig()

	// Start accept loop
	s.wg.Add(1)
	go s.acceptLoop()
}

// Stop closes the listener and waits for all connections to finish.
func (s *Server) Stop() {
	close(s.done)
	s.listener.Close()
	s.wg.Wait()
}

// Port returns the port the server is listening on.
func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Addr returns the server address as "127.0.0.1:<port>".
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// SSHConfigPath returns the path to the generated SSH config file.
func (s *Server) SSHConfigPath() string {
	return s.sshConfigPath
}

// Alias returns the SSH config host alias.
func (s *Server) Alias() string {
	return s.alias
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				s.t.Logf("sshserver: accept error: %v", err)
				return
			}
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	// Perform SSH handshake
	sshConn, chans, reqs, err := ssh.NewServerConn(conn, s.config)
	if err != nil {
		// Authentication failures are expected in tests
		s.t.Logf("sshserver: handshake failed: %v", err)
		return
	}
	defer sshConn.Close()

	// Handle global requests (keepalive, no-more-sessions)
	go s.handleGlobalRequests(reqs)

	// Handle channels
	for {
		select {
		case <-s.done:
			return
		case newChan, ok := <-chans:
			if !ok {
				return
			}
			switch newChan.ChannelType() {
			case "session":
				s.wg.Add(1)
				go s.handleSession(newChan)
			default:
				newChan.Reject(ssh.UnknownChannelType, "unknown channel type")
			}
		}
	}
}

func (s *Server) handleGlobalRequests(reqs <-chan *ssh.Request) {
	for req := range reqs {
		switch req.Type {
		case "keepalive@openssh.com":
			if req.WantReply {
				req.Reply(true, nil)
			}
		case "no-more-sessions@openssh.com":
			if req.WantReply {
				req.Reply(true, nil)
			}
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
}

// ptyRequestPayload is the RFC 4254 payload for a pty-req.
type ptyRequestPayload struct {
	Term     string
	Columns  uint32
	Rows     uint32
	Width    uint32
	Height   uint32
	ModeList string
}

// execRequestPayload is the RFC 4254 payload for an exec request.
type execRequestPayload struct {
	Command string
}

// windowChangePayload is the RFC 4254 payload for a window-change request.
type windowChangePayload struct {
	Columns uint32
	Rows    uint32
	Width   uint32
	Height  uint32
}

// handleSession allocates a real pty for the channel and execs whatever
// "shell" or "exec" asks for against it — the same contract a real sshd
// gives rossh's bootstrap handshake and agent launch command.
func (s *Server) handleSession(newChan ssh.NewChannel) {
	defer s.wg.Done()

	ch, reqs, err := newChan.Accept()
	if err != nil {
		s.t.Logf("sshserver: failed to accept session: %v", err)
		return
	}
	defer ch.Close()

	var (
		ptmx *os.File
		cmd  *exec.Cmd
		term = "xterm"
	)
	started := make(chan struct{})

	go func() {
		defer close(started)
		for req := range reqs {
			switch req.Type {
			case "pty-req":
				var p ptyRequestPayload
				if ssh.Unmarshal(req.Payload, &p) == nil {
					term = p.Term
				}
				if req.WantReply {
					req.Reply(true, nil)
				}
			case "window-change":
				var p windowChangePayload
				if ptmx != nil && ssh.Unmarshal(req.Payload, &p) == nil {
					pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(p.Rows), Cols: uint16(p.Columns)})
				}
			case "env":
				if req.WantReply {
					req.Reply(true, nil)
				}
			case "shell", "exec":
				var shellCmd string
				if req.Type == "exec" {
					var p execRequestPayload
					ssh.Unmarshal(req.Payload, &p)
					shellCmd = p.Command
				}
				ptmx, cmd = s.spawnPTY(shellCmd, term)
				if req.WantReply {
					req.Reply(ptmx != nil, nil)
				}
				return
			default:
				if req.WantReply {
					req.Reply(false, nil)
				}
			}
		}
	}()

	select {
	case <-started:
	case <-s.done:
		return
	}
	if ptmx == nil {
		return
	}
	defer ptmx.Close()

	var copyWg sync.WaitGroup
	copyWg.Add(2)
	go func() { defer copyWg.Done(); io.Copy(ptmx, ch) }()
	go func() {
		defer copyWg.Done()
		io.Copy(ch, ptmx)
		ch.CloseWrite()
	}()

	waitDone := make(chan struct{})
	go func() {
		cmd.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-s.done:
		cmd.Process.Kill()
	}
}

// spawnPTY starts shellCmd (or, if empty, an interactive /bin/sh) attached
// to a freshly allocated pty.
func (s *Server) spawnPTY(shellCmd, term string) (*os.File, *exec.Cmd) {
	var cmd *exec.Cmd
	if shellCmd != "" {
		cmd = exec.Command("/bin/sh", "-c", shellCmd)
	} else {
		cmd = exec.Command("/bin/sh", "-i")
	}
	cmd.Env = append(os.Environ(), "TERM="+term)

	ptmx, err := pty.Start(cmd)
	if err != nil {
		s.t.Logf("sshserver: failed to start pty: %v", err)
		return nil, nil
	}
	return ptmx, cmd
}

func (s *Server) generateSSHConfig() {
	s.sshConfigPath = filepath.Join(s.configDir, "ssh_config")

	config := fmt.Sprintf(`Host %s
    HostName 127.0.0.1
    Port %d
    User %s
    StrictHostKeyChecking no
    UserKnownHostsFile /dev/null
    LogLevel ERROR
`, s.alias, s.Port(), s.opts.Username)

	// Password-only auth needs additional config to prevent pubkey attempts
	if s.opts.Password != "" && len(s.opts.AuthorizedKeys) == 0 {
		config += "    PreferredAuthentications password\n"
		config += "    PubkeyAuthentication no\n"
	}

	if err := os.WriteFile(s.sshConfigPath, []byte(config), 0600); err != nil {
		s.t.Fatalf("sshserver: failed to write SSH config: %v", err)
	}
}

func generateED25519Key(t testing.TB) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshserver: failed to generate ED25519 key: %v", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("sshserver: failed to create signer: %v", err)
	}

	return signer
}

// PublicKeys wraps one or more ssh.PublicKey values into a slice.
// Convenience helper for constructing Options.AuthorizedKeys.
func PublicKeys(keys ...ssh.PublicKey) []ssh.PublicKey {
	return keys
}

// GenerateClientKeyPair generates a temporary ED25519 keypair for testing.
// Returns the signer, the public key, and the path to the private key file.
func GenerateClientKeyPair(t testing.TB, dir string) (ssh.Signer, ssh.PublicKey, string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("sshserver: failed to generate client key: %v", err)
	}

	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("sshserver: failed to create client signer: %v", err)
	}

	// Write private key in OpenSSH format using the library
	keyPath := filepath.Join(dir, "id_ed25519_test")
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("sshserver: failed to marshal private key: %v", err)
	}

	keyBytes := pem.EncodeToMemory(block)
	if err := os.WriteFile(keyPath, keyBytes, 0600); err != nil {
		t.Fatalf("sshserver: failed to write private key: %v", err)
	}

	return signer, signer.PublicKey(), keyPath
}
