package dispatcher

import (
	"fmt"
	"strings"

	"vmplex/internal/endpoint"
	vmerrors "vmplex/internal/errors"
	"vmplex/internal/fleet"
)

func (d *Dispatcher) cmdAddHost(c *Context, args []string) (int, error) {
	cmd := d.commands["addhost"]
	if len(args) < 1 || len(args) > 5 {
		return 0, cmd.usageError()
	}

	ep := endpoint.New(args[0], d.remote)
	if len(args) > 1 && args[1] != "" {
		port, err := endpoint.ParsePort(args[1])
		if err != nil {
			return 0, err
		}
		ep.Port = port
	}
	if len(args) > 2 {
		ep.User = args[2]
	}
	if len(args) > 3 {
		ep.Password = args[3]
	}
	if len(args) > 4 && args[4] != "" {
		ep.Name = args[4]
	}
	if err := ep.Validate(); err != nil {
		return 0, err
	}

	if _, exists := d.topo.Environment(ep.Name); exists {
		return 0, vmerrors.NewInvalidArgumentError("Host already exists", nil)
	}

	err := d.AddHost(c.Ctx, ep)
	d.printer.Printf("Environments: %s\n", strings.Join(d.topo.EnvironmentNames(), ", "))
	return 0, err
}

func (d *Dispatcher) cmdRemoveHost(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["removehost"].usageError()
	}

	env, ok := d.topo.RemoveEnvironment(args[0])
	if !ok {
		return 0, vmerrors.NewInvalidArgumentError("Unknown host, could not be deleted", nil)
	}
	env.Disconnect()
	d.printer.Println("Host successfully removed")
	return 0, nil
}

func (d *Dispatcher) cmdSwitchHost(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["switchhost"].usageError()
	}

	env, ok := d.topo.Environment(args[0])
	if !ok {
		return 0, vmerrors.NewInvalidArgumentError("Host does not exist", nil)
	}
	if err := d.switchTo(c.Ctx, env); err != nil {
		return 0, vmerrors.NewConnectionError("Could not switch to host, unable to connect", err)
	}
	d.printer.Println("Host successfully switched to " + env.Name())
	return 0, nil
}

func (d *Dispatcher) cmdConnect(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["connect"].usageError()
	}

	env, ok := d.topo.Environment(args[0])
	if !ok {
		return 0, vmerrors.NewInvalidArgumentError("Unknown host", nil)
	}
	if env.Connected() {
		return 0, env.Reconnect(c.Ctx)
	}
	return 0, env.Connect(c.Ctx)
}

func (d *Dispatcher) cmdDisconnect(c *Context, args []string) (int, error) {
	if len(args) > 1 {
		return 0, d.commands["disconnect"].usageError()
	}

	env, err := d.targetHost(c, args)
	if err != nil {
		return 0, err
	}
	env.Disconnect()
	return 0, nil
}

func (d *Dispatcher) cmdReconnect(c *Context, args []string) (int, error) {
	if len(args) > 1 {
		return 0, d.commands["reconnect"].usageError()
	}

	env, err := d.targetHost(c, args)
	if err != nil {
		return 0, vmerrors.NewInvalidArgumentError("Trying to reconnect to the unknown host machine", err)
	}
	return 0, env.Reconnect(c.Ctx)
}

// targetHost returns the host named by the optional argument, or the
// active host.
func (d *Dispatcher) targetHost(c *Context, args []string) (*fleet.Environment, error) {
	if len(args) == 0 {
		if c.Active == nil {
			return nil, vmerrors.NewNotConnectedError("No active host, select one with 'switchhost'")
		}
		return c.Active, nil
	}
	env, ok := d.topo.Environment(args[0])
	if !ok {
		return nil, vmerrors.NewInvalidArgumentError(fmt.Sprintf("Unknown host %s", args[0]), nil)
	}
	return env, nil
}
