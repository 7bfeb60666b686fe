package uplink

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/fleetbridge/fleetbridge/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
)

// --- Test SSH server ---

func generateTestHostKey(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("create signer: %v", err)
	}
	return signer
}

// newTestSSHServer starts an in-process SSH server that accepts password
// auth. Shell sessions echo stdin back; exec requests write "ran: <cmd>"
// and exit 0, except commands containing "exit 3" which write to stderr
// and exit 3, and "hang" which never finishes.
func newTestSSHServer(t *testing.T, username, password string) (addr string, cleanup func()) {
	t.Helper()

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == username && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("invalid credentials")
		},
	}
	config.AddHostKey(generateTestHostKey(t))

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handleTestSSHConn(conn, config)
		}
	}()

	return listener.Addr().String(), func() {
		listener.Close()
		<-done
	}
}

func handleTestSSHConn(conn net.Conn, config *ssh.ServerConfig) {
	defer conn.Close()

	sshConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
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
			return
		}

		go func(channel ssh.Channel, requests <-chan *ssh.Request) {
			for req := range requests {
				switch req.Type {
				case "pty-req", "window-change":
					if req.WantReply {
						req.Reply(true, nil)
					}
				case "shell":
					if req.WantReply {
						req.Reply(true, nil)
					}
					go func() {
						defer channel.Close()
						_, _ = io.Copy(channel, channel)
					}()
				case "exec":
					var payload struct{ Command string }
					_ = ssh.Unmarshal(req.Payload, &payload)
					if req.WantReply {
						req.Reply(true, nil)
					}
					if strings.Contains(payload.Command, "hang") {
						continue
					}
					go func(cmd string) {
						status := struct{ Status uint32 }{0}
						if strings.Contains(cmd, "exit 3") {
							_, _ = channel.Stderr().Write([]byte("boom\n"))
							status.Status = 3
						} else {
							_, _ = io.WriteString(channel, "ran: "+cmd)
						}
						_, _ = channel.SendRequest("exit-status", false, ssh.Marshal(status))
						channel.Close()
					}(payload.Command)
				default:
					if req.WantReply {
						req.Reply(false, nil)
					}
				}
			}
		}(channel, requests)
	}
}

// --- Dialer fixtures ---

func newTestSSHDialer(t *testing.T) *sshDialer {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DialTimeout = 5 * time.Second
	// Point away from the developer's real ~/.ssh/config.
	cfg.SSHConfigPath = filepath.Join(t.TempDir(), "no_such_config")
	return &sshDialer{cfg: cfg, logger: zap.NewNop()}
}

func sshTarget(addr, user, password string) Target {
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)
	return Target{
		DeviceID: "edge-01",
		Host:     host,
		Port:     port,
		User:     user,
		Credential: &models.Credential{
			Kind:   models.CredentialPassword,
			Secret: password,
		},
	}
}

// --- Tests ---

func TestSSHDialer_password_auth(t *testing.T) {
	addr, cleanup := newTestSSHServer(t, "admin", "secret")
	defer cleanup()

	transport, err := newTestSSHDialer(t).Dial(context.Background(), sshTarget(addr, "admin", "secret"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer transport.Close()

	if err := transport.KeepAlive(); err != nil {
		t.Errorf("KeepAlive: %v", err)
	}
}

func TestSSHDialer_auth_failure(t *testing.T) {
	addr, cleanup := newTestSSHServer(t, "admin", "secret")
	defer cleanup()

	_, err := newTestSSHDialer(t).Dial(context.Background(), sshTarget(addr, "admin", "wrong"))
	if err == nil {
		t.Fatal("expected auth failure")
	}
	if got := diagnose(context.Background(), "127.0.0.1", err, false, zap.NewNop()); got != ReasonAuth {
		t.Errorf("reason = %q, want %q", got, ReasonAuth)
	}
}

func TestSSHDialer_connection_refused(t *testing.T) {
	// Grab a port that nothing listens on.
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	_, err = newTestSSHDialer(t).Dial(context.Background(), sshTarget(addr, "admin", "secret"))
	if err == nil {
		t.Fatal("expected connection failure")
	}
	if got := diagnose(context.Background(), "127.0.0.1", err, false, zap.NewNop()); got != ReasonUnreachable {
		t.Errorf("reason = %q, want %q", got, ReasonUnreachable)
	}
}

func TestSSHDialer_no_credential_no_identity(t *testing.T) {
	target := Target{DeviceID: "edge-01", Host: "127.0.0.1", Port: 22, User: "admin"}

	_, err := newTestSSHDialer(t).Dial(context.Background(), target)
	if err == nil {
		t.Fatal("expected error without credential or identity file")
	}
	if !strings.Contains(err.Error(), "no credential") {
		t.Errorf("err = %v, want credential hint", err)
	}
}

func TestSSHTransport_exec_captures_output(t *testing.T) {
	addr, cleanup := newTestSSHServer(t, "admin", "secret")
	defer cleanup()

	transport, err := newTestSSHDialer(t).Dial(context.Background(), sshTarget(addr, "admin", "secret"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer transport.Close()

	result, err := transport.Exec(context.Background(), "uptime")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if result.Stdout != "ran: uptime" {
		t.Errorf("stdout = %q, want %q", result.Stdout, "ran: uptime")
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code = %d, want 0", result.ExitCode)
	}
}

func TestSSHTransport_exec_nonzero_exit_in_result(t *testing.T) {
	addr, cleanup := newTestSSHServer(t, "admin", "secret")
	defer cleanup()

	transport, err := newTestSSHDialer(t).Dial(context.Background(), sshTarget(addr, "admin", "secret"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer transport.Close()

	result, err := transport.Exec(context.Background(), "exit 3")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("exit code = %d, want 3", result.ExitCode)
	}
	if result.Stderr != "boom\n" {
		t.Errorf("stderr = %q, want %q", result.Stderr, "boom\n")
	}
}

func TestSSHTransport_exec_honors_context(t *testing.T) {
	addr, cleanup := newTestSSHServer(t, "admin", "secret")
	defer cleanup()

	transport, err := newTestSSHDialer(t).Dial(context.Background(), sshTarget(addr, "admin", "secret"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer transport.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = transport.Exec(ctx, "hang")
	if err == nil {
		t.Fatal("expected context error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("exec took %v, want prompt cancellation", elapsed)
	}
}

func TestSSHTransport_terminal_echo_and_resize(t *testing.T) {
	addr, cleanup := newTestSSHServer(t, "admin", "secret")
	defer cleanup()

	transport, err := newTestSSHDialer(t).Dial(context.Background(), sshTarget(addr, "admin", "secret"))
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer transport.Close()

	term, err := transport.OpenTerminal(80, 24)
	if err != nil {
		t.Fatalf("OpenTerminal: %v", err)
	}
	defer term.Close()

	if _, err := term.Write([]byte("hello shell")); err != nil {
		t.Fatalf("write: %v", err)
	}

	echoed := make(chan string, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := term.Read(buf)
		echoed <- string(buf[:n])
	}()

	select {
	case got := <-echoed:
		if got != "hello shell" {
			t.Errorf("echo = %q, want %q", got, "hello shell")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for echo")
	}

	if err := term.Resize(100, 40); err != nil {
		t.Errorf("Resize: %v", err)
	}
}

func TestResolveTarget_ssh_config_fills_blanks(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "ssh_config")
	content := strings.Join([]string{
		"Host edge-42",
		"    HostName 192.168.7.42",
		"    Port 2200",
		"    User deploy",
		"    IdentityFile " + filepath.Join(dir, "edge-42.key"),
		"",
	}, "\n")
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write ssh config: %v", err)
	}

	cfg := DefaultConfig()
	cfg.SSHConfigPath = configPath
	dialer := &sshDialer{cfg: cfg, logger: zap.NewNop()}

	host, port, user, identityFile := dialer.resolveTarget(Target{DeviceID: "edge-42"})
	if host != "192.168.7.42" {
		t.Errorf("host = %q, want 192.168.7.42", host)
	}
	if port != 2200 {
		t.Errorf("port = %d, want 2200", port)
	}
	if user != "deploy" {
		t.Errorf("user = %q, want deploy", user)
	}
	if identityFile != filepath.Join(dir, "edge-42.key") {
		t.Errorf("identity file = %q, want %q", identityFile, filepath.Join(dir, "edge-42.key"))
	}
}

func TestResolveTarget_roster_values_win(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "ssh_config")
	content := "Host edge-42\n    HostName 192.168.7.42\n    Port 2200\n    User deploy\n"
	if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write ssh config: %v", err)
	}

	cfg := DefaultConfig()
	cfg.SSHConfigPath = configPath
	dialer := &sshDialer{cfg: cfg, logger: zap.NewNop()}

	host, port, user, _ := dialer.resolveTarget(Target{
		DeviceID: "edge-42",
		Host:     "10.1.1.1",
		Port:     2022,
		User:     "pi",
	})
	if host != "10.1.1.1" || port != 2022 || user != "pi" {
		t.Errorf("resolved = %s@%s:%d, want pi@10.1.1.1:2022", user, host, port)
	}
}

func TestResolveTarget_device_id_is_last_resort_host(t *testing.T) {
	dialer := newTestSSHDialer(t)

	host, port, _, _ := dialer.resolveTarget(Target{DeviceID: "edge-07"})
	if host != "edge-07" {
		t.Errorf("host = %q, want device id fallback", host)
	}
	if port != 22 {
		t.Errorf("port = %d, want 22", port)
	}
}
