package vboxmanage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alessio/shellescape"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	"vmplex/internal/endpoint"
	"vmplex/internal/logging"
)

const sshDialTimeout = 30 * time.Second

// sshRunner runs VBoxManage on a remote host over SSH
type sshRunner struct {
	binary string
	conn   *ssh.Client
	host   string
	logger *logging.Logger

	// agentConn is the SSH agent socket, open only while authenticating.
	agentConn net.Conn
}

// dialSSH establishes an SSH connection to the endpoint's host on port
func dialSSH(ctx context.Context, ep endpoint.Endpoint, port int, binary string, logger *logging.Logger) (*sshRunner, error) {
	r := &sshRunner{binary: binary, host: ep.Host, logger: logger}

	config, err := r.buildSSHConfig(ep)
	if err != nil {
		r.closeAgent()
		return nil, fmt.Errorf("failed to build SSH config: %w", err)
	}
	defer r.closeAgent()

	address := net.JoinHostPort(ep.Host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: sshDialTimeout}

	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, address, config)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("SSH handshake failed for %s: %w", address, err)
	}

	r.conn = ssh.NewClient(sshConn, chans, reqs)
	return r, nil
}

func (r *sshRunner) command(args []string) string {
	return shellescape.QuoteCommand(append([]string{r.binary}, args...))
}

func (r *sshRunner) Run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	if r.conn == nil {
		return nil, nil, errors.New("not connected to any host")
	}

	session, err := r.conn.NewSession()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(r.command(args))
	}()

	select {
	case err := <-done:
		if err != nil {
			var exitErr *ssh.ExitError
			if errors.As(err, &exitErr) {
				return stdout.Bytes(), stderr.Bytes(), &ExitError{Code: exitErr.ExitStatus(), Stderr: stderr.String()}
			}
			return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("SSH execution error: %w", err)
		}
		return stdout.Bytes(), stderr.Bytes(), nil

	case <-ctx.Done():
		_ = session.Signal(ssh.SIGTERM)
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			_ = session.Signal(ssh.SIGKILL)
		}
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("command execution interrupted: %w", ctx.Err())
	}
}

func (r *sshRunner) Start(_ context.Context, out io.Writer, args ...string) (Process, error) {
	if r.conn == nil {
		return nil, errors.New("not connected to any host")
	}

	session, err := r.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	session.Stdout = out
	session.Stderr = out

	if err := session.Start(r.command(args)); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start remote command: %w", err)
	}
	return &sshProcess{session: session}, nil
}

func (r *sshRunner) Close() error {
	r.closeAgent()
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	if err != nil && r.logger != nil {
		r.logger.Error("SSH connection close error", "error", err, "host", r.host)
	}
	return nil
}

// buildSSHConfig creates an SSH client configuration with authentication methods
func (r *sshRunner) buildSSHConfig(ep endpoint.Endpoint) (*ssh.ClientConfig, error) {
	user := ep.User
	if user == "" {
		user = os.Getenv("USER")
	}

	config := &ssh.ClientConfig{
		User:            user,
		HostKeyCallback: r.getHostKeyCallback(),
		Timeout:         sshDialTimeout,
	}

	var authMethods []ssh.AuthMethod
	if agentConn := dialAgent(); agentConn != nil {
		r.agentConn = agentConn
		authMethods = append(authMethods, ssh.PublicKeysCallback(agent.NewClient(agentConn).Signers))
	}
	if ep.Password != "" {
		authMethods = append(authMethods, ssh.Password(ep.Password))
	}
	if len(authMethods) == 0 {
		return nil, errors.New("no authentication methods available")
	}
	config.Auth = authMethods

	return config, nil
}

// dialAgent connects to the SSH agent if one is running
func dialAgent() net.Conn {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil
	}
	agentConn, err := net.Dial("unix", sock)
	if err != nil {
		return nil
	}
	return agentConn
}

func (r *sshRunner) closeAgent() {
	if r.agentConn != nil {
		r.agentConn.Close()
		r.agentConn = nil
	}
}

// getHostKeyCallback verifies against the user's and then the system
// known_hosts file. Without either it accepts any key and logs a warning.
func (r *sshRunner) getHostKeyCallback() ssh.HostKeyCallback {
	if homeDir, err := os.UserHomeDir(); err == nil {
		knownHostsFile := filepath.Join(homeDir, ".ssh", "known_hosts")
		if _, err := os.Stat(knownHostsFile); err == nil {
			if hostKeyCallback, err := knownhosts.New(knownHostsFile); err == nil {
				return hostKeyCallback
			}
		}
	}

	if hostKeyCallback, err := knownhosts.New("/etc/ssh/ssh_known_hosts"); err == nil {
		return hostKeyCallback
	}

	return func(hostname string, _ net.Addr, _ ssh.PublicKey) error {
		if r.logger != nil {
			r.logger.Warn("host key verification disabled", "host", hostname)
		}
		return nil
	}
}

type sshProcess struct {
	session *ssh.Session
}

func (p *sshProcess) Wait() error {
	defer p.session.Close()
	err := p.session.Wait()
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitStatus()}
	}
	return err
}

func (p *sshProcess) Kill() error {
	if err := p.session.Signal(ssh.SIGKILL); err != nil {
		return p.session.Close()
	}
	return nil
}
