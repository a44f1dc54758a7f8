// Package vboxmanage drives VirtualBox through the VBoxManage command line
// tool, either on this machine or on a remote host over SSH.
package vboxmanage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"vmplex/internal/controlplane"
	"vmplex/internal/endpoint"
	"vmplex/internal/logging"
)

// Defaults for Options.
const (
	DefaultBinary  = "VBoxManage"
	DefaultSSHPort = 22
)

// Options configures the driver
type Options struct {
	Binary  string          // VBoxManage binary name or path
	SSHPort int             // SSH port for remote hosts
	Logger  *logging.Logger // Optional
}

// Platform implements controlplane.Platform on top of VBoxManage
type Platform struct {
	opts      Options
	newRunner func(ctx context.Context, ep endpoint.Endpoint) (Runner, error)
}

// New creates a VBoxManage platform. Remote endpoints are reached over SSH,
// local ones run the binary directly.
func New(opts Options) *Platform {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.SSHPort == 0 {
		opts.SSHPort = DefaultSSHPort
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}

	p := &Platform{opts: opts}
	p.newRunner = func(ctx context.Context, ep endpoint.Endpoint) (Runner, error) {
		if !ep.Remote {
			return newLocalRunner(opts.Binary), nil
		}
		return dialSSH(ctx, ep, opts.SSHPort, opts.Binary, opts.Logger)
	}
	return p
}

// Connect opens a session and checks that VBoxManage answers on the host.
func (p *Platform) Connect(ctx context.Context, ep endpoint.Endpoint) (controlplane.Session, error) {
	runner, err := p.newRunner(ctx, ep)
	if err != nil {
		return nil, err
	}

	out, _, err := runner.Run(ctx, "--version")
	if err != nil {
		runner.Close()
		return nil, fmt.Errorf("VBoxManage not available on %s: %w", ep.Host, err)
	}
	p.opts.Logger.Info("control plane ready", "host", ep.Host, "version", strings.TrimSpace(string(out)))

	return &session{runner: runner, ep: ep, logger: p.opts.Logger}, nil
}

type session struct {
	runner Runner
	ep     endpoint.Endpoint
	logger *logging.Logger
	closed bool
}

func (s *session) Disconnect() error {
	if s.closed {
		return controlplane.ErrNotConnected
	}
	s.closed = true
	return s.runner.Close()
}

func (s *session) run(ctx context.Context, args ...string) (string, error) {
	if s.closed {
		return "", controlplane.ErrNotConnected
	}
	stdout, _, err := s.runner.Run(ctx, args...)
	if err != nil {
		return string(stdout), err
	}
	return string(stdout), nil
}

func (s *session) start(ctx context.Context, args ...string) (controlplane.Progress, error) {
	if s.closed {
		return nil, controlplane.ErrNotConnected
	}
	return startProgress(ctx, s.runner, args...)
}

func isNotFound(err error) bool {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	return strings.Contains(exitErr.Stderr, "Could not find a registered machine")
}

func (s *session) info(ctx context.Context, name string) (map[string]string, error) {
	out, err := s.run(ctx, "showvminfo", name, "--machinereadable")
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", name, controlplane.ErrMachineNotFound)
		}
		return nil, err
	}
	return parseMachineReadable(out), nil
}

func (s *session) FindMachine(ctx context.Context, name string) (*controlplane.Machine, error) {
	values, err := s.info(ctx, name)
	if err != nil {
		return nil, err
	}
	m := machineFromInfo(values)
	return &m, nil
}

func (s *session) Machines(ctx context.Context) ([]controlplane.Machine, error) {
	out, err := s.run(ctx, "list", "vms")
	if err != nil {
		return nil, err
	}

	var machines []controlplane.Machine
	for _, entry := range parseList(out) {
		values, err := s.info(ctx, entry.ID)
		if err != nil {
			// The machine may have been unregistered since the listing.
			if errors.Is(err, controlplane.ErrMachineNotFound) {
				continue
			}
			return nil, err
		}
		machines = append(machines, machineFromInfo(values))
	}
	return machines, nil
}

func (s *session) CreateMachine(ctx context.Context, spec controlplane.MachineSpec) error {
	name := spec.Name
	if _, err := s.run(ctx, "createvm", "--name", name, "--ostype", spec.OSType, "--register"); err != nil {
		return fmt.Errorf("failed to create machine %s: %w", name, err)
	}

	if err := s.configure(ctx, spec); err != nil {
		if _, cleanupErr := s.run(ctx, "unregistervm", name, "--delete"); cleanupErr != nil {
			s.logger.Error("failed to clean up partially created machine", "machine", name, "error", cleanupErr.Error())
		}
		return err
	}
	return nil
}

func (s *session) configure(ctx context.Context, spec controlplane.MachineSpec) error {
	name := spec.Name
	if _, err := s.run(ctx, "modifyvm", name,
		"--memory", strconv.Itoa(spec.MemoryMB),
		"--cpus", strconv.Itoa(spec.CPUs)); err != nil {
		return fmt.Errorf("failed to configure machine %s: %w", name, err)
	}

	values, err := s.info(ctx, name)
	if err != nil {
		return err
	}
	cfg := strings.ReplaceAll(values["CfgFile"], `\`, "/")
	disk := path.Join(path.Dir(cfg), name+".vdi")

	if _, err := s.run(ctx, "createmedium", "disk",
		"--filename", disk,
		"--size", strconv.Itoa(spec.DiskMB),
		"--format", "VDI"); err != nil {
		return fmt.Errorf("failed to create disk for %s: %w", name, err)
	}

	if _, err := s.run(ctx, "storagectl", name, "--name", "sata1", "--add", "sata"); err != nil {
		return fmt.Errorf("failed to add storage controller to %s: %w", name, err)
	}

	if _, err := s.run(ctx, "storageattach", name,
		"--storagectl", "sata1",
		"--port", "0",
		"--device", "0",
		"--type", "hdd",
		"--medium", disk); err != nil {
		return fmt.Errorf("failed to attach disk to %s: %w", name, err)
	}
	return nil
}

func (s *session) RemoveMachine(ctx context.Context, name string) (controlplane.Progress, error) {
	if _, err := s.info(ctx, name); err != nil {
		return nil, err
	}
	return s.start(ctx, "unregistervm", name, "--delete")
}

func (s *session) Start(ctx context.Context, name string) (controlplane.Progress, error) {
	return s.start(ctx, "startvm", name, "--type", "headless")
}

func (s *session) control(ctx context.Context, name, action string) error {
	if _, err := s.run(ctx, "controlvm", name, action); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", name, controlplane.ErrMachineNotFound)
		}
		return fmt.Errorf("%s %s: %w", action, name, err)
	}
	return nil
}

func (s *session) Reset(ctx context.Context, name string) error {
	return s.control(ctx, name, "reset")
}

func (s *session) Pause(ctx context.Context, name string) error {
	return s.control(ctx, name, "pause")
}

func (s *session) Resume(ctx context.Context, name string) error {
	return s.control(ctx, name, "resume")
}

func (s *session) PowerOff(ctx context.Context, name string) (controlplane.Progress, error) {
	return s.start(ctx, "controlvm", name, "poweroff")
}

func (s *session) PowerButton(ctx context.Context, name string) error {
	return s.control(ctx, name, "acpipowerbutton")
}

func (s *session) SleepButton(ctx context.Context, name string) error {
	return s.control(ctx, name, "acpisleepbutton")
}

func (s *session) Export(ctx context.Context, name, output, format string) (controlplane.Progress, error) {
	return s.start(ctx, "export", name, "--output", output, exportFormatFlag(format))
}

func (s *session) Import(ctx context.Context, image string) (controlplane.Progress, error) {
	return s.start(ctx, "import", image)
}

func (s *session) SetMemory(ctx context.Context, name string, mb int) error {
	if _, err := s.run(ctx, "modifyvm", name, "--memory", strconv.Itoa(mb)); err != nil {
		return fmt.Errorf("failed to set memory of %s: %w", name, err)
	}
	return nil
}

func (s *session) SetCPUs(ctx context.Context, name string, n int) error {
	if _, err := s.run(ctx, "modifyvm", name, "--cpus", strconv.Itoa(n)); err != nil {
		return fmt.Errorf("failed to set CPU count of %s: %w", name, err)
	}
	return nil
}

func (s *session) HostInfo(ctx context.Context) (*controlplane.HostInfo, error) {
	out, err := s.run(ctx, "list", "hostinfo")
	if err != nil {
		return nil, err
	}
	return parseHostInfo(out), nil
}

// guestTimeout bounds a guest process started by GuestRun.
const guestTimeout = 10 * time.Minute

func (s *session) GuestRun(ctx context.Context, cmd controlplane.GuestCommand) (*controlplane.GuestResult, error) {
	if s.closed {
		return nil, controlplane.ErrNotConnected
	}

	args := []string{
		"guestcontrol", cmd.Machine, "run",
		"--exe", cmd.Exe,
		"--username", cmd.User,
		"--password", cmd.Password,
		"--timeout", strconv.FormatInt(guestTimeout.Milliseconds(), 10),
		"--wait-stdout", "--wait-stderr",
		"--", cmd.Exe,
	}
	args = append(args, cmd.Args...)

	stdout, stderr, err := s.runner.Run(ctx, args...)
	result := &controlplane.GuestResult{Stdout: string(stdout), Stderr: string(stderr)}
	if err != nil {
		var exitErr *ExitError
		if !errors.As(err, &exitErr) {
			return nil, err
		}
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", cmd.Machine, controlplane.ErrMachineNotFound)
		}
		result.ExitCode = exitErr.Code
	}
	return result, nil
}

func (s *session) copy(ctx context.Context, direction string, cp controlplane.GuestCopy) (controlplane.Progress, error) {
	return s.start(ctx,
		"guestcontrol", cp.Machine, direction,
		"--username", cp.User,
		"--password", cp.Password,
		"--recursive",
		"--target-directory", cp.Target,
		cp.Source,
	)
}

func (s *session) CopyTo(ctx context.Context, cp controlplane.GuestCopy) (controlplane.Progress, error) {
	return s.copy(ctx, "copyto", cp)
}

func (s *session) CopyFrom(ctx context.Context, cp controlplane.GuestCopy) (controlplane.Progress, error) {
	return s.copy(ctx, "copyfrom", cp)
}
