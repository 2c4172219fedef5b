package gerrit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/ryo246912/gerrit-bridge/internal/models"
	"golang.org/x/crypto/ssh"
)

// Runner executes one command on the review server's command channel
type Runner interface {
	Run(ctx context.Context, command string) ([]byte, error)
}

// CommandError means the channel ran the command but it exited non-zero
type CommandError struct {
	Command    string
	ExitStatus int
	Stderr     string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with status %d", e.Command, e.ExitStatus)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

// SSHRunner opens a fresh SSH connection for every command
type SSHRunner struct {
	addr   string
	config *ssh.ClientConfig
	dialer net.Dialer
}

// NewSSHRunner creates a runner for host:port using the given client config
func NewSSHRunner(host string, port int, config *ssh.ClientConfig) *SSHRunner {
	return &SSHRunner{
		addr:   net.JoinHostPort(host, strconv.Itoa(port)),
		config: config,
		dialer: net.Dialer{Timeout: config.Timeout},
	}
}

// Addr returns the host:port the runner dials
func (r *SSHRunner) Addr() string {
	return r.addr
}

func (r *SSHRunner) Run(ctx context.Context, command string) ([]byte, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		return nil, &models.ConnectionError{Host: r.addr, Err: fmt.Errorf("failed to open session: %w", err)}
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	if err := session.Run(command); err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), &CommandError{
				Command:    command,
				ExitStatus: exitErr.ExitStatus(),
				Stderr:     strings.TrimSpace(stderr.String()),
			}
		}
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &models.ConnectionError{Host: r.addr, Err: err}
	}
	return stdout.Bytes(), nil
}

func (r *SSHRunner) dial(ctx context.Context) (*ssh.Client, error) {
	conn, err := r.dialer.DialContext(ctx, "tcp", r.addr)
	if err != nil {
		return nil, &models.ConnectionError{Host: r.addr, Err: err}
	}

	// the handshake does not take a context, bound it with a deadline instead
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, r.addr, r.config)
	if err != nil {
		conn.Close()
		return nil, &models.ConnectionError{Host: r.addr, Err: err}
	}
	_ = conn.SetDeadline(time.Time{})

	return ssh.NewClient(sshConn, chans, reqs), nil
}

// shellQuote wraps s in single quotes for the server-side command parser
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
