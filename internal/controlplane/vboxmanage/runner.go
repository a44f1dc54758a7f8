package vboxmanage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner executes VBoxManage with the given arguments
type Runner interface {
	// Run executes the command and waits for it to finish
	Run(ctx context.Context, args ...string) (stdout, stderr []byte, err error)

	// Start launches the command with stdout and stderr both written to out
	Start(ctx context.Context, out io.Writer, args ...string) (Process, error)

	// Close releases the runner's transport
	Close() error
}

// Process is a started VBoxManage invocation
type Process interface {
	Wait() error
	Kill() error
}

// ExitError reports a VBoxManage invocation that exited non-zero
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := errorText(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("VBoxManage exited with status %d", e.Code)
	}
	return fmt.Sprintf("VBoxManage exited with status %d: %s", e.Code, msg)
}

// errorText extracts the "VBoxManage: error:" lines from output, or the
// trimmed output when there are none.
func errorText(out string) string {
	var lines []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "VBoxManage: error:"); ok {
			lines = append(lines, strings.TrimSpace(rest))
		}
	}
	if len(lines) > 0 {
		return strings.Join(lines, "; ")
	}
	return strings.TrimSpace(out)
}

// localRunner runs VBoxManage on this machine
type localRunner struct {
	binary string
}

func newLocalRunner(binary string) *localRunner {
	return &localRunner{binary: binary}
}

func (r *localRunner) Run(ctx context.Context, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, r.binary, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.Bytes(), stderr.Bytes(), &ExitError{Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return stdout.Bytes(), stderr.Bytes(), fmt.Errorf("failed to run %s: %w", r.binary, err)
	}
	return stdout.Bytes(), stderr.Bytes(), nil
}

// Start does not bind the process to ctx; long operations are stopped
// through Process.Kill so that a cancel is reported by the progress handle.
func (r *localRunner) Start(_ context.Context, out io.Writer, args ...string) (Process, error) {
	cmd := exec.Command(r.binary, args...)
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", r.binary, err)
	}
	return &localProcess{cmd: cmd}, nil
}

func (r *localRunner) Close() error {
	return nil
}

type localProcess struct {
	cmd *exec.Cmd
}

func (p *localProcess) Wait() error {
	err := p.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Code: exitErr.ExitCode()}
	}
	return err
}

func (p *localProcess) Kill() error {
	if p.cmd.Process == nil {
		return nil
	}
	return p.cmd.Process.Kill()
}
