package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"vmplex/internal/controlplane"
	vmerrors "vmplex/internal/errors"
)

// Shells used by gshell
const (
	unixShell    = "/bin/sh"
	windowsShell = `C:\Windows\System32\cmd.exe`
)

func (d *Dispatcher) cmdGcmd(c *Context, args []string) (int, error) {
	if len(args) < 2 {
		return 0, d.commands["gcmd"].usageError()
	}
	machine, exe := args[0], args[1]

	session, err := c.session()
	if err != nil {
		return 0, err
	}
	creds, err := d.credentials(c, machine)
	if err != nil {
		return 0, err
	}

	res, err := session.GuestRun(c.Ctx, controlplane.GuestCommand{
		Machine:  machine,
		User:     creds.User,
		Password: creds.Password,
		Exe:      exe,
		Args:     args[2:],
	})
	if err != nil {
		return 0, vmerrors.NewExecutionError(fmt.Sprintf("failed to run %s on %s", exe, machine), err)
	}
	return 0, d.printer.GuestResult(machine, res)
}

// cmdGshell reads command lines from the operator and runs each through the
// guest's shell until exit or end of input.
func (d *Dispatcher) cmdGshell(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["gshell"].usageError()
	}
	if c.Unattended {
		return 0, vmerrors.NewInvalidArgumentError("This command is not supported in auto mode", nil)
	}
	if d.prompter == nil {
		return 0, vmerrors.NewInvalidArgumentError("no input to read guest commands from", nil)
	}
	machine := args[0]

	session, err := c.session()
	if err != nil {
		return 0, err
	}
	m, err := session.FindMachine(c.Ctx, machine)
	if err != nil {
		return 0, vmerrors.NewExecutionError("failed to look up machine "+machine, err)
	}
	creds, err := d.credentials(c, machine)
	if err != nil {
		return 0, err
	}

	shell, flag := unixShell, "-c"
	if strings.HasPrefix(m.OSType, "Windows") {
		shell, flag = windowsShell, "/c"
	}

	for {
		line, err := d.prompter.Prompt(c.Ctx, "cmd> ")
		if err != nil {
			if errors.Is(err, io.EOF) {
				return 0, nil
			}
			return 0, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			return 0, nil
		}

		res, err := session.GuestRun(c.Ctx, controlplane.GuestCommand{
			Machine:  machine,
			User:     creds.User,
			Password: creds.Password,
			Exe:      shell,
			Args:     []string{flag, line},
		})
		if err != nil {
			d.printer.Error(vmerrors.NewExecutionError("guest command failed", err))
			continue
		}
		if err := d.printer.GuestResult(machine, res); err != nil {
			return 0, err
		}
	}
}

func (d *Dispatcher) cmdCopyTo(c *Context, args []string) (int, error) {
	if len(args) != 3 {
		return 0, d.commands["copyto"].usageError()
	}
	if c.Active != nil && !c.Active.IsRemote() {
		if _, err := os.Stat(args[1]); err != nil {
			return 0, vmerrors.NewInvalidArgumentError("Source does not exist on host machine", err)
		}
	}
	return 0, d.copyFiles(c, args, "Copying to ", controlplane.Session.CopyTo)
}

func (d *Dispatcher) cmdCopyFrom(c *Context, args []string) (int, error) {
	if len(args) != 3 {
		return 0, d.commands["copyfrom"].usageError()
	}
	return 0, d.copyFiles(c, args, "Copying from ", controlplane.Session.CopyFrom)
}

func (d *Dispatcher) copyFiles(c *Context, args []string, verb string, copyFn func(controlplane.Session, context.Context, controlplane.GuestCopy) (controlplane.Progress, error)) error {
	machine := args[0]
	creds, err := d.credentials(c, machine)
	if err != nil {
		return err
	}
	cp := controlplane.GuestCopy{
		Machine:  machine,
		User:     creds.User,
		Password: creds.Password,
		Source:   args[1],
		Target:   args[2],
	}
	return d.runProgress(c, verb+machine, func(s controlplane.Session) (controlplane.Progress, error) {
		return copyFn(s, c.Ctx, cp)
	})
}
