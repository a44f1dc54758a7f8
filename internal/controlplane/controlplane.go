// Package controlplane defines the virtualization control API that vmplex
// drives. Drivers such as vboxmanage implement it against a real hypervisor.
package controlplane

import (
	"context"
	"errors"
	"strings"
	"time"

	"vmplex/internal/endpoint"
)

// Limits enforced by the hypervisor for machine resources.
const (
	MinMemoryMB = 4
	MaxMemoryMB = 2097152
	MinCPUs     = 1
	MaxCPUs     = 32
)

// DefaultExportFormat is used by exports when no format is requested.
const DefaultExportFormat = "ovf-1.0"

// OSTypes lists the guest OS types accepted when creating a machine.
var OSTypes = []string{"RedHat", "RedHat_64", "Ubuntu", "Ubuntu_64", "Windows7", "Windows7_64"}

// ExportFormats lists the appliance formats accepted by Export. The ova
// variants produce a single archive instead of a descriptor plus disks.
var ExportFormats = []string{"ovf-0.9", "ovf-1.0", "ovf-2.0", "ova-0.9", "ova-1.0", "ova-2.0", "opc-1.0"}

var (
	// ErrMachineNotFound is returned when a machine is not registered on the host.
	ErrMachineNotFound = errors.New("machine not found")

	// ErrNotConnected is returned by a session that has been disconnected.
	ErrNotConnected = errors.New("session not connected")
)

// Machine state names as reported by the control plane.
const (
	StatePoweredOff = "poweroff"
	StateRunning    = "running"
	StatePaused     = "paused"
	StateSaved      = "saved"
	StateAborted    = "aborted"
)

// Machine describes a registered virtual machine
type Machine struct {
	Name     string
	ID       string
	OSType   string
	State    string
	MemoryMB int
	CPUs     int
}

// Running reports whether the machine is online.
func (m Machine) Running() bool {
	return m.State == StateRunning || m.State == StatePaused
}

// MachineSpec carries the parameters used to create a machine
type MachineSpec struct {
	Name     string
	OSType   string
	CPUs     int
	MemoryMB int
	DiskMB   int
}

// HostInfo describes the hypervisor host
type HostInfo struct {
	Processor     string
	PhysicalCores int
	LogicalCores  int
	OS            string
	OSVersion     string
	MemoryMB      int
}

// GuestCommand describes a process to run inside a guest
type GuestCommand struct {
	Machine  string
	User     string
	Password string
	Exe      string
	Args     []string
}

// GuestResult is the outcome of a guest process
type GuestResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// GuestCopy describes a file transfer between host and guest
type GuestCopy struct {
	Machine  string
	User     string
	Password string
	Source   string
	Target   string
}

// Progress is a poll-based handle for a long-running operation
type Progress interface {
	// Percent returns the completion percentage, 0-100
	Percent() int

	// Completed reports whether the operation has finished
	Completed() bool

	// WaitForCompletion blocks until the operation finishes or timeout
	// elapses. A negative timeout waits indefinitely.
	WaitForCompletion(timeout time.Duration) error

	// ResultCode is the final status, 0 on success. Valid once completed.
	ResultCode() int

	// ErrorText describes a failed operation
	ErrorText() string

	// Cancelable reports whether Cancel can stop the operation
	Cancelable() bool

	// Cancel requests the operation to stop
	Cancel() error
}

// Session is a live connection to one hypervisor host
type Session interface {
	Disconnect() error

	FindMachine(ctx context.Context, name string) (*Machine, error)
	Machines(ctx context.Context) ([]Machine, error)

	CreateMachine(ctx context.Context, spec MachineSpec) error
	RemoveMachine(ctx context.Context, name string) (Progress, error)

	Start(ctx context.Context, name string) (Progress, error)
	Reset(ctx context.Context, name string) error
	Pause(ctx context.Context, name string) error
	Resume(ctx context.Context, name string) error
	PowerOff(ctx context.Context, name string) (Progress, error)
	PowerButton(ctx context.Context, name string) error
	SleepButton(ctx context.Context, name string) error

	Export(ctx context.Context, name, path, format string) (Progress, error)
	Import(ctx context.Context, path string) (Progress, error)

	SetMemory(ctx context.Context, name string, mb int) error
	SetCPUs(ctx context.Context, name string, n int) error

	HostInfo(ctx context.Context) (*HostInfo, error)

	GuestRun(ctx context.Context, cmd GuestCommand) (*GuestResult, error)
	CopyTo(ctx context.Context, cp GuestCopy) (Progress, error)
	CopyFrom(ctx context.Context, cp GuestCopy) (Progress, error)
}

// Platform opens sessions against hypervisor hosts
type Platform interface {
	Connect(ctx context.Context, ep endpoint.Endpoint) (Session, error)
}

// PlatformFunc adapts a function to the Platform interface.
type PlatformFunc func(ctx context.Context, ep endpoint.Endpoint) (Session, error)

// Connect calls f(ctx, ep).
func (f PlatformFunc) Connect(ctx context.Context, ep endpoint.Endpoint) (Session, error) {
	return f(ctx, ep)
}

// ValidOSType reports whether t is an accepted guest OS type.
func ValidOSType(t string) bool {
	for _, known := range OSTypes {
		if known == t {
			return true
		}
	}
	return false
}

// ExportExtension returns the file extension an export in format produces.
func ExportExtension(format string) string {
	if strings.Contains(format, "ova") {
		return "ova"
	}
	return "ovf"
}

// ValidExportFormat reports whether f is an accepted appliance format.
func ValidExportFormat(f string) bool {
	for _, known := range ExportFormats {
		if known == f {
			return true
		}
	}
	return false
}
