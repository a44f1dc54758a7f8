// Package fake provides an in-memory control plane for tests.
package fake

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"vmplex/internal/controlplane"
	"vmplex/internal/endpoint"
)

// Call records one operation issued against a host.
type Call struct {
	Op      string
	Machine string
	Args    []string
}

// Host is the state of one fake hypervisor.
type Host struct {
	Machines     map[string]*controlplane.Machine
	Info         controlplane.HostInfo
	Failures     map[string]error // machine name -> error returned by every machine operation
	GuestResults map[string]*controlplane.GuestResult
	Calls        []Call

	// NewProgress, when set, supplies the handle returned by long operations.
	NewProgress func(op string) controlplane.Progress
}

// AddMachine registers a powered-off machine on the host.
func (h *Host) AddMachine(name, osType string) *controlplane.Machine {
	m := &controlplane.Machine{
		Name:     name,
		ID:       fmt.Sprintf("%08x-0000-0000-0000-000000000000", len(h.Machines)+1),
		OSType:   osType,
		State:    controlplane.StatePoweredOff,
		MemoryMB: 1024,
		CPUs:     1,
	}
	h.Machines[name] = m
	return m
}

// CallsFor returns the operations issued for op, in order.
func (h *Host) CallsFor(op string) []Call {
	var out []Call
	for _, c := range h.Calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Platform is an in-memory controlplane.Platform. Hosts are created on first
// connect unless marked unreachable.
type Platform struct {
	mu          sync.Mutex
	hosts       map[string]*Host
	unreachable map[string]bool
	connects    map[string]int
	disconnects map[string]int
}

// NewPlatform creates an empty fake platform.
func NewPlatform() *Platform {
	return &Platform{
		hosts:       make(map[string]*Host),
		unreachable: make(map[string]bool),
		connects:    make(map[string]int),
		disconnects: make(map[string]int),
	}
}

// Host returns the state of host, creating it if needed.
func (p *Platform) Host(host string) *Host {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hostLocked(host)
}

func (p *Platform) hostLocked(host string) *Host {
	h, ok := p.hosts[host]
	if !ok {
		h = &Host{
			Machines:     make(map[string]*controlplane.Machine),
			Failures:     make(map[string]error),
			GuestResults: make(map[string]*controlplane.GuestResult),
			Info: controlplane.HostInfo{
				Processor:     "Fake CPU",
				PhysicalCores: 4,
				LogicalCores:  8,
				OS:            "Linux",
				OSVersion:     "6.1",
				MemoryMB:      16384,
			},
		}
		p.hosts[host] = h
	}
	return h
}

// SetUnreachable makes connects to host fail or succeed again.
func (p *Platform) SetUnreachable(host string, down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unreachable[host] = down
}

// ConnectCount returns the number of successful connects to host.
func (p *Platform) ConnectCount(host string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects[host]
}

// DisconnectCount returns the number of disconnects from host.
func (p *Platform) DisconnectCount(host string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects[host]
}

// Connect implements controlplane.Platform.
func (p *Platform) Connect(ctx context.Context, ep endpoint.Endpoint) (controlplane.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unreachable[ep.Host] {
		return nil, fmt.Errorf("dial %s: connection refused", ep.URL())
	}
	p.connects[ep.Host]++
	return &Session{platform: p, host: p.hostLocked(ep.Host), ep: ep}, nil
}

// Session is a fake controlplane.Session bound to one host.
type Session struct {
	platform *Platform
	host     *Host
	ep       endpoint.Endpoint
	closed   bool
}

// Disconnect implements controlplane.Session.
func (s *Session) Disconnect() error {
	if s.closed {
		return controlplane.ErrNotConnected
	}
	s.closed = true
	s.platform.mu.Lock()
	s.platform.disconnects[s.ep.Host]++
	s.platform.mu.Unlock()
	return nil
}

func (s *Session) record(op, machine string, args ...string) error {
	if s.closed {
		return controlplane.ErrNotConnected
	}
	s.platform.mu.Lock()
	defer s.platform.mu.Unlock()
	s.host.Calls = append(s.host.Calls, Call{Op: op, Machine: machine, Args: args})
	if machine == "" {
		return nil
	}
	if err := s.host.Failures[machine]; err != nil {
		return err
	}
	return nil
}

func (s *Session) machine(op, name string, args ...string) (*controlplane.Machine, error) {
	if err := s.record(op, name, args...); err != nil {
		return nil, err
	}
	s.platform.mu.Lock()
	defer s.platform.mu.Unlock()
	m, ok := s.host.Machines[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, controlplane.ErrMachineNotFound)
	}
	return m, nil
}

func (s *Session) progress(op string) controlplane.Progress {
	if s.host.NewProgress != nil {
		return s.host.NewProgress(op)
	}
	return controlplane.Finished(0, "")
}

// FindMachine implements controlplane.Session.
func (s *Session) FindMachine(_ context.Context, name string) (*controlplane.Machine, error) {
	m, err := s.machine("find", name)
	if err != nil {
		return nil, err
	}
	cp := *m
	return &cp, nil
}

// Machines implements controlplane.Session.
func (s *Session) Machines(context.Context) ([]controlplane.Machine, error) {
	if err := s.record("list", ""); err != nil {
		return nil, err
	}
	s.platform.mu.Lock()
	defer s.platform.mu.Unlock()
	out := make([]controlplane.Machine, 0, len(s.host.Machines))
	for _, m := range s.host.Machines {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateMachine implements controlplane.Session.
func (s *Session) CreateMachine(_ context.Context, spec controlplane.MachineSpec) error {
	if err := s.record("create", spec.Name, spec.OSType); err != nil {
		return err
	}
	s.platform.mu.Lock()
	defer s.platform.mu.Unlock()
	if _, exists := s.host.Machines[spec.Name]; exists {
		return fmt.Errorf("machine %s already exists", spec.Name)
	}
	m := s.host.AddMachine(spec.Name, spec.OSType)
	m.CPUs = spec.CPUs
	m.MemoryMB = spec.MemoryMB
	return nil
}

// RemoveMachine implements controlplane.Session.
func (s *Session) RemoveMachine(ctx context.Context, name string) (controlplane.Progress, error) {
	if _, err := s.machine("remove", name); err != nil {
		return nil, err
	}
	s.platform.mu.Lock()
	delete(s.host.Machines, name)
	s.platform.mu.Unlock()
	return s.progress("remove"), nil
}

func (s *Session) setState(op, name, state string) error {
	m, err := s.machine(op, name)
	if err != nil {
		return err
	}
	s.platform.mu.Lock()
	m.State = state
	s.platform.mu.Unlock()
	return nil
}

// Start implements controlplane.Session.
func (s *Session) Start(_ context.Context, name string) (controlplane.Progress, error) {
	if err := s.setState("start", name, controlplane.StateRunning); err != nil {
		return nil, err
	}
	return s.progress("start"), nil
}

// Reset implements controlplane.Session.
func (s *Session) Reset(_ context.Context, name string) error {
	return s.setState("reset", name, controlplane.StateRunning)
}

// Pause implements controlplane.Session.
func (s *Session) Pause(_ context.Context, name string) error {
	return s.setState("pause", name, controlplane.StatePaused)
}

// Resume implements controlplane.Session.
func (s *Session) Resume(_ context.Context, name string) error {
	return s.setState("resume", name, controlplane.StateRunning)
}

// PowerOff implements controlplane.Session.
func (s *Session) PowerOff(_ context.Context, name string) (controlplane.Progress, error) {
	if err := s.setState("poweroff", name, controlplane.StatePoweredOff); err != nil {
		return nil, err
	}
	return s.progress("poweroff"), nil
}

// PowerButton implements controlplane.Session.
func (s *Session) PowerButton(_ context.Context, name string) error {
	return s.setState("powerbutton", name, controlplane.StatePoweredOff)
}

// SleepButton implements controlplane.Session.
func (s *Session) SleepButton(_ context.Context, name string) error {
	_, err := s.machine("sleepbutton", name)
	return err
}

// Export implements controlplane.Session.
func (s *Session) Export(_ context.Context, name, path, format string) (controlplane.Progress, error) {
	if _, err := s.machine("export", name, path, format); err != nil {
		return nil, err
	}
	return s.progress("export"), nil
}

// Import implements controlplane.Session.
func (s *Session) Import(_ context.Context, path string) (controlplane.Progress, error) {
	if err := s.record("import", "", path); err != nil {
		return nil, err
	}
	return s.progress("import"), nil
}

// SetMemory implements controlplane.Session.
func (s *Session) SetMemory(_ context.Context, name string, mb int) error {
	m, err := s.machine("setmemory", name, fmt.Sprint(mb))
	if err != nil {
		return err
	}
	s.platform.mu.Lock()
	m.MemoryMB = mb
	s.platform.mu.Unlock()
	return nil
}

// SetCPUs implements controlplane.Session.
func (s *Session) SetCPUs(_ context.Context, name string, n int) error {
	m, err := s.machine("setcpus", name, fmt.Sprint(n))
	if err != nil {
		return err
	}
	s.platform.mu.Lock()
	m.CPUs = n
	s.platform.mu.Unlock()
	return nil
}

// HostInfo implements controlplane.Session.
func (s *Session) HostInfo(context.Context) (*controlplane.HostInfo, error) {
	if err := s.record("hostinfo", ""); err != nil {
		return nil, err
	}
	info := s.host.Info
	return &info, nil
}

// GuestRun implements controlplane.Session. The recorded call carries the
// guest user, never the password.
func (s *Session) GuestRun(_ context.Context, cmd controlplane.GuestCommand) (*controlplane.GuestResult, error) {
	args := append([]string{cmd.User, cmd.Exe}, cmd.Args...)
	if _, err := s.machine("guestrun", cmd.Machine, args...); err != nil {
		return nil, err
	}
	s.platform.mu.Lock()
	defer s.platform.mu.Unlock()
	if r, ok := s.host.GuestResults[cmd.Machine]; ok {
		cp := *r
		return &cp, nil
	}
	return &controlplane.GuestResult{}, nil
}

// CopyTo implements controlplane.Session.
func (s *Session) CopyTo(_ context.Context, cp controlplane.GuestCopy) (controlplane.Progress, error) {
	if _, err := s.machine("copyto", cp.Machine, cp.User, cp.Source, cp.Target); err != nil {
		return nil, err
	}
	return s.progress("copyto"), nil
}

// CopyFrom implements controlplane.Session.
func (s *Session) CopyFrom(_ context.Context, cp controlplane.GuestCopy) (controlplane.Progress, error) {
	if _, err := s.machine("copyfrom", cp.Machine, cp.User, cp.Source, cp.Target); err != nil {
		return nil, err
	}
	return s.progress("copyfrom"), nil
}

// Progress is a scripted controlplane.Progress. Each WaitForCompletion call
// advances to the next entry of Steps; the operation completes after the last.
type Progress struct {
	mu        sync.Mutex
	Steps     []int
	Code      int
	Text      string
	CanCancel bool
	step      int
	canceled  bool
	waits     int
}

// Percent implements controlplane.Progress.
func (p *Progress) Percent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.step == 0 || len(p.Steps) == 0 {
		return 0
	}
	return p.Steps[p.step-1]
}

// Completed implements controlplane.Progress.
func (p *Progress) Completed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canceled || p.step >= len(p.Steps)
}

// WaitForCompletion implements controlplane.Progress.
func (p *Progress) WaitForCompletion(time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waits++
	if p.step < len(p.Steps) {
		p.step++
	}
	return nil
}

// ResultCode implements controlplane.Progress.
func (p *Progress) ResultCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.canceled {
		return 1
	}
	return p.Code
}

// ErrorText implements controlplane.Progress.
func (p *Progress) ErrorText() string { return p.Text }

// Cancelable implements controlplane.Progress.
func (p *Progress) Cancelable() bool { return p.CanCancel }

// Cancel implements controlplane.Progress.
func (p *Progress) Cancel() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.CanCancel {
		return fmt.Errorf("operation cannot be canceled")
	}
	p.canceled = true
	return nil
}

// Canceled reports whether Cancel succeeded.
func (p *Progress) Canceled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.canceled
}

// Waits returns the number of WaitForCompletion calls.
func (p *Progress) Waits() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}
