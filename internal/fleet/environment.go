package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"vmplex/internal/controlplane"
	"vmplex/internal/endpoint"
	vmerrors "vmplex/internal/errors"
	"vmplex/internal/logging"
)

// Environment is one virtualization host: how to reach it, the live
// control-plane session and the credentials of machines it knows about.
type Environment struct {
	ep       endpoint.Endpoint
	platform controlplane.Platform
	logger   *logging.Logger
	session  controlplane.Session
	machines map[string]Credentials
}

// NewEnvironment creates an unconnected environment. The display name
// defaults to the host and the port to endpoint.DefaultPort.
func NewEnvironment(ep endpoint.Endpoint, platform controlplane.Platform, logger *logging.Logger) *Environment {
	if ep.Name == "" {
		ep.Name = ep.Host
	}
	if ep.Port == 0 {
		ep.Port = endpoint.DefaultPort
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Environment{
		ep:       ep,
		platform: platform,
		logger:   logger,
		machines: make(map[string]Credentials),
	}
}

// Name returns the display name the environment is registered under.
func (e *Environment) Name() string { return e.ep.Name }

// Host returns the hostname or address of the hypervisor.
func (e *Environment) Host() string { return e.ep.Host }

// Port returns the control-plane port.
func (e *Environment) Port() int { return e.ep.Port }

// User returns the control-plane user, empty when none is set.
func (e *Environment) User() string { return e.ep.User }

// Password returns the control-plane password.
func (e *Environment) Password() string { return e.ep.Password }

// IsRemote reports whether the hypervisor is reached over the network.
func (e *Environment) IsRemote() bool { return e.ep.Remote }

// URL returns the control-plane URL.
func (e *Environment) URL() string { return e.ep.URL() }

// Endpoint returns the endpoint the environment was created from.
func (e *Environment) Endpoint() endpoint.Endpoint { return e.ep }

// Prompt returns the interactive prompt for this host.
func (e *Environment) Prompt() string {
	if e.ep.User != "" {
		return e.ep.User + "@" + e.ep.Name + ">"
	}
	return e.ep.Name + ">"
}

// Connect establishes a control-plane session
func (e *Environment) Connect(ctx context.Context) error {
	start := time.Now()
	session, err := e.platform.Connect(ctx, e.ep)
	if err != nil {
		e.logger.LogConnectError(e.ep.Name, e.ep.Host, e.ep.Port, err)
		return vmerrors.NewConnectionError(fmt.Sprintf("could not connect to host %s", e.ep.Host), err)
	}
	e.session = session
	e.logger.LogConnect(e.ep.Name, e.ep.Host, e.ep.Port, e.ep.Remote, time.Since(start))
	return nil
}

// Reconnect drops the current session, if any, and connects again. On
// failure the environment is left without a session.
func (e *Environment) Reconnect(ctx context.Context) error {
	e.drop()
	return e.Connect(ctx)
}

// Disconnect releases the session. It is safe to call repeatedly.
func (e *Environment) Disconnect() {
	if e.session != nil {
		e.drop()
		e.logger.LogDisconnect(e.ep.Name)
	}
}

func (e *Environment) drop() {
	if e.session == nil {
		return
	}
	if err := e.session.Disconnect(); err != nil && !errors.Is(err, controlplane.ErrNotConnected) {
		e.logger.Error("disconnect failed", "name", e.ep.Name, "error", err.Error())
	}
	e.session = nil
}

// Connected reports whether the environment holds a session.
func (e *Environment) Connected() bool {
	return e.session != nil
}

// Session returns the live control-plane session
func (e *Environment) Session() (controlplane.Session, error) {
	if e.session == nil {
		return nil, vmerrors.NewNotConnectedError(fmt.Sprintf("host %s is not connected, use 'reconnect'", e.ep.Name))
	}
	return e.session, nil
}

// AddMachine records credentials for machine. A half credential pair is
// rejected; an existing entry is kept as is.
func (e *Environment) AddMachine(machine, user, password string) error {
	creds, err := NewCredentials(user, password)
	if err != nil {
		return err
	}
	if _, exists := e.machines[machine]; !exists {
		e.machines[machine] = creds
	}
	return nil
}

// RemoveMachine forgets machine. Unknown names are ignored.
func (e *Environment) RemoveMachine(machine string) {
	delete(e.machines, machine)
}

// Machine returns the credentials recorded for machine.
func (e *Environment) Machine(machine string) (Credentials, bool) {
	creds, ok := e.machines[machine]
	return creds, ok
}

// Machines returns a copy of the machine table.
func (e *Environment) Machines() map[string]Credentials {
	out := make(map[string]Credentials, len(e.machines))
	for name, creds := range e.machines {
		out[name] = creds
	}
	return out
}

// MachineNames returns the known machine names, sorted.
func (e *Environment) MachineNames() []string {
	names := make([]string, 0, len(e.machines))
	for name := range e.machines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
