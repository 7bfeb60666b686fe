package uplink

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// Transport is the device-side endpoint of a live connection. It hides the
// SSH client so tests and future transports can fake it.
type Transport interface {
	// KeepAlive performs a round trip to verify the transport is live.
	KeepAlive() error

	// OpenTerminal opens an interactive PTY shell channel.
	OpenTerminal(cols, rows int) (TerminalChannel, error)

	// Exec runs a one-shot command and captures its output. A non-zero
	// exit code is reported in the result, not as an error.
	Exec(ctx context.Context, command string) (ExecResult, error)

	// Files returns the shared file client, creating it on first use.
	Files() (FileClient, error)

	// Close tears down the transport and every channel on it.
	Close() error
}

// TerminalChannel is an open PTY shell. Reads return shell output, writes
// feed stdin.
type TerminalChannel interface {
	io.Reader
	io.Writer
	io.Closer

	// Resize changes the remote PTY window size.
	Resize(cols, rows int) error
}

// ExecResult holds the output of a one-shot command.
type ExecResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// FileClient is the slice of SFTP the console and rollout modules use.
type FileClient interface {
	Getwd() (string, error)
	Stat(path string) (os.FileInfo, error)
	ReadDir(path string) ([]os.FileInfo, error)
	Open(path string) (io.ReadCloser, error)
	Create(path string) (io.WriteCloser, error)
	Remove(path string) error
	RemoveDirectory(path string) error
	Mkdir(path string) error
}

// sshTransport implements Transport over a crypto/ssh client. The client
// multiplexes channels internally, so one transport serves the shell,
// exec, and SFTP traffic for a device concurrently.
type sshTransport struct {
	client *ssh.Client

	mu    sync.Mutex
	files *sftp.Client
}

func newSSHTransport(client *ssh.Client) *sshTransport {
	return &sshTransport{client: client}
}

func (t *sshTransport) KeepAlive() error {
	_, _, err := t.client.SendRequest("keepalive@fleetbridge.dev", true, nil)
	return err
}

func (t *sshTransport) OpenTerminal(cols, rows int) (TerminalChannel, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return nil, err
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := session.RequestPty("xterm", rows, cols, modes); err != nil {
		session.Close()
		return nil, err
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, err
	}
	if err := session.Shell(); err != nil {
		session.Close()
		return nil, err
	}

	return &sshTerminal{session: session, stdin: stdin, stdout: stdout}, nil
}

func (t *sshTransport) Exec(ctx context.Context, command string) (ExecResult, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return ExecResult{}, err
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		// Closing the session tears down the remote command.
		session.Close()
		<-done
		return ExecResult{}, ctx.Err()
	case err = <-done:
	}

	result := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, err
	}
	return result, nil
}

func (t *sshTransport) Files() (FileClient, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.files == nil {
		c, err := sftp.NewClient(t.client)
		if err != nil {
			return nil, err
		}
		t.files = c
	}
	return &sftpFiles{c: t.files}, nil
}

func (t *sshTransport) Close() error {
	t.mu.Lock()
	if t.files != nil {
		t.files.Close()
		t.files = nil
	}
	t.mu.Unlock()
	return t.client.Close()
}

// sshTerminal is a PTY shell channel on an sshTransport.
type sshTerminal struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
}

func (s *sshTerminal) Read(p []byte) (int, error)  { return s.stdout.Read(p) }
func (s *sshTerminal) Write(p []byte) (int, error) { return s.stdin.Write(p) }

func (s *sshTerminal) Resize(cols, rows int) error {
	return s.session.WindowChange(rows, cols)
}

func (s *sshTerminal) Close() error {
	s.stdin.Close()
	return s.session.Close()
}

// sftpFiles adapts *sftp.Client to the FileClient interface (the concrete
// Open/Create return *sftp.File).
type sftpFiles struct {
	c *sftp.Client
}

func (f *sftpFiles) Getwd() (string, error)                  { return f.c.Getwd() }
func (f *sftpFiles) Stat(path string) (os.FileInfo, error)   { return f.c.Stat(path) }
func (f *sftpFiles) ReadDir(p string) ([]os.FileInfo, error) { return f.c.ReadDir(p) }
func (f *sftpFiles) Remove(path string) error                { return f.c.Remove(path) }
func (f *sftpFiles) RemoveDirectory(path string) error       { return f.c.RemoveDirectory(path) }
func (f *sftpFiles) Mkdir(path string) error                 { return f.c.Mkdir(path) }

func (f *sftpFiles) Open(path string) (io.ReadCloser, error) {
	return f.c.Open(path)
}

func (f *sftpFiles) Create(path string) (io.WriteCloser, error) {
	return f.c.Create(path)
}
