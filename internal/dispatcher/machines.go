package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"vmplex/internal/controlplane"
	vmerrors "vmplex/internal/errors"
	"vmplex/internal/prompt"
)

// Defaults for machines created unattended
const (
	defaultMachineName = "VirtualMachine"
	defaultOSType      = "Ubuntu_64"
	defaultCPUs        = 2
	defaultMemoryMB    = 2048
	defaultDiskMB      = 32768
)

var errAborted = errors.New("aborted")

func (d *Dispatcher) cmdCreateVM(c *Context, args []string) (int, error) {
	if len(args) > 5 {
		return 0, d.commands["createvm"].usageError()
	}
	session, err := c.session()
	if err != nil {
		return 0, err
	}

	arg := func(i int) string {
		if i < len(args) {
			return args[i]
		}
		return ""
	}

	spec := controlplane.MachineSpec{Name: arg(0), OSType: arg(1)}
	numbers := []struct {
		value string
		dst   *int
	}{
		{arg(2), &spec.CPUs},
		{arg(3), &spec.MemoryMB},
		{arg(4), &spec.DiskMB},
	}
	for _, n := range numbers {
		if n.value == "" {
			continue
		}
		v, err := strconv.Atoi(n.value)
		if err != nil {
			return 0, vmerrors.NewInvalidArgumentError("Some of the arguments could not be properly converted", err)
		}
		*n.dst = v
	}
	if spec.OSType != "" && !controlplane.ValidOSType(spec.OSType) {
		return 0, vmerrors.NewInvalidArgumentError("Invalid value, must be a valid OS Type", nil)
	}

	if spec.Name != "" {
		if err := d.checkMachineFree(c.Ctx, session, spec.Name); err != nil {
			return 0, err
		}
	}

	if c.Unattended {
		fillDefaults(&spec)
	} else {
		if err := d.askMachineSpec(c, &spec); err != nil {
			if errors.Is(err, errAborted) {
				d.printer.Println("Aborting VM creation")
				return 0, nil
			}
			return 0, err
		}
		if arg(0) == "" {
			if err := d.checkMachineFree(c.Ctx, session, spec.Name); err != nil {
				return 0, err
			}
		}
	}

	if spec.CPUs < controlplane.MinCPUs || spec.CPUs > controlplane.MaxCPUs {
		return 0, vmerrors.NewInvalidArgumentError(fmt.Sprintf("CPU count size must be in range <%d; %d>", controlplane.MinCPUs, controlplane.MaxCPUs), nil)
	}
	if spec.MemoryMB < controlplane.MinMemoryMB || spec.MemoryMB > controlplane.MaxMemoryMB {
		return 0, vmerrors.NewInvalidArgumentError(fmt.Sprintf("Memory size must be in range <%d; %d> MB", controlplane.MinMemoryMB, controlplane.MaxMemoryMB), nil)
	}
	if spec.DiskMB < 1 {
		return 0, vmerrors.NewInvalidArgumentError("Disk size must be a positive number", nil)
	}

	d.printer.Println("Creating machine " + spec.Name)
	if err := session.CreateMachine(c.Ctx, spec); err != nil {
		return 0, vmerrors.NewExecutionError(fmt.Sprintf("failed to create machine %s", spec.Name), err)
	}
	return 0, nil
}

func fillDefaults(spec *controlplane.MachineSpec) {
	if spec.Name == "" {
		spec.Name = defaultMachineName
	}
	if spec.OSType == "" {
		spec.OSType = defaultOSType
	}
	if spec.CPUs == 0 {
		spec.CPUs = defaultCPUs
	}
	if spec.MemoryMB == 0 {
		spec.MemoryMB = defaultMemoryMB
	}
	if spec.DiskMB == 0 {
		spec.DiskMB = defaultDiskMB
	}
}

// checkMachineFree fails when a machine called name already exists
func (d *Dispatcher) checkMachineFree(ctx context.Context, session controlplane.Session, name string) error {
	_, err := session.FindMachine(ctx, name)
	switch {
	case err == nil:
		return vmerrors.NewInvalidArgumentError("Machine with given name already exists, please choose another name", nil)
	case errors.Is(err, controlplane.ErrMachineNotFound):
		return nil
	default:
		return vmerrors.NewExecutionError("failed to look up machine "+name, err)
	}
}

// askMachineSpec prompts for every missing field. Answering with an abort
// word returns errAborted.
func (d *Dispatcher) askMachineSpec(c *Context, spec *controlplane.MachineSpec) error {
	if d.prompter == nil {
		return vmerrors.NewInvalidArgumentError("missing machine parameters", nil)
	}

	ask := func(label string, accept func(string) error) error {
		for {
			answer, err := d.prompter.Prompt(c.Ctx, label)
			if err != nil {
				return err
			}
			answer = strings.TrimSpace(answer)
			if answer == "" {
				d.printer.Println("Missing value, if you wish to abort machine creation, enter Cancel or Quit")
				continue
			}
			if prompt.IsAbort(answer) {
				return errAborted
			}
			if err := accept(answer); err != nil {
				d.printer.Println(err.Error())
				continue
			}
			return nil
		}
	}

	number := func(dst *int) func(string) error {
		return func(s string) error {
			v, err := strconv.Atoi(s)
			if err != nil {
				return errors.New("Invalid value, must be a number")
			}
			*dst = v
			return nil
		}
	}

	if spec.Name == "" {
		err := ask("Enter machine's Name: ", func(s string) error {
			spec.Name = s
			return nil
		})
		if err != nil {
			return err
		}
	}
	if spec.OSType == "" {
		label := fmt.Sprintf("Enter machine's OS Type, choose one of the following: %s\nOSType: ", strings.Join(controlplane.OSTypes, " "))
		err := ask(label, func(s string) error {
			if !controlplane.ValidOSType(s) {
				return errors.New("Invalid value, must be a valid OS Type")
			}
			spec.OSType = s
			return nil
		})
		if err != nil {
			return err
		}
	}
	fields := []struct {
		label string
		dst   *int
	}{
		{"Enter machine's CPU Count: ", &spec.CPUs},
		{"Enter machine's RAM Size [MB]: ", &spec.MemoryMB},
		{"Enter machine's Disk Size [MB]: ", &spec.DiskMB},
	}
	for _, f := range fields {
		if *f.dst != 0 {
			continue
		}
		if err := ask(f.label, number(f.dst)); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) cmdRemoveVM(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["removevm"].usageError()
	}
	return 0, d.runProgress(c, "Removing "+args[0], func(s controlplane.Session) (controlplane.Progress, error) {
		return s.RemoveMachine(c.Ctx, args[0])
	})
}

func (d *Dispatcher) cmdStart(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["start"].usageError()
	}
	return 0, d.runProgress(c, "Starting "+args[0], func(s controlplane.Session) (controlplane.Progress, error) {
		return s.Start(c.Ctx, args[0])
	})
}

func (d *Dispatcher) cmdPowerOff(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["poweroff"].usageError()
	}
	return 0, d.runProgress(c, "Powering off "+args[0], func(s controlplane.Session) (controlplane.Progress, error) {
		return s.PowerOff(c.Ctx, args[0])
	})
}

func (d *Dispatcher) cmdRestart(c *Context, args []string) (int, error) {
	return d.machineControl(c, "restart", args, controlplane.Session.Reset)
}

func (d *Dispatcher) cmdPause(c *Context, args []string) (int, error) {
	return d.machineControl(c, "pause", args, controlplane.Session.Pause)
}

func (d *Dispatcher) cmdResume(c *Context, args []string) (int, error) {
	return d.machineControl(c, "resume", args, controlplane.Session.Resume)
}

func (d *Dispatcher) cmdPowerButton(c *Context, args []string) (int, error) {
	return d.machineControl(c, "powerbutton", args, controlplane.Session.PowerButton)
}

func (d *Dispatcher) cmdSleepButton(c *Context, args []string) (int, error) {
	return d.machineControl(c, "sleepbutton", args, controlplane.Session.SleepButton)
}

// machineControl runs a single-machine console action that completes
// immediately.
func (d *Dispatcher) machineControl(c *Context, name string, args []string, action func(controlplane.Session, context.Context, string) error) (int, error) {
	if len(args) != 1 {
		return 0, d.commands[name].usageError()
	}
	session, err := c.session()
	if err != nil {
		return 0, err
	}
	if err := action(session, c.Ctx, args[0]); err != nil {
		return 0, vmerrors.NewExecutionError(fmt.Sprintf("%s %s failed", name, args[0]), err)
	}
	return 0, nil
}

// runProgress starts a long-running operation and waits for it.
func (d *Dispatcher) runProgress(c *Context, description string, start func(controlplane.Session) (controlplane.Progress, error)) error {
	session, err := c.session()
	if err != nil {
		return err
	}
	prog, err := start(session)
	if err != nil {
		return vmerrors.NewExecutionError(description+" failed", err)
	}
	return d.wait(c, prog, description)
}

func (d *Dispatcher) cmdExportVM(c *Context, args []string) (int, error) {
	if len(args) < 2 || len(args) > 3 {
		return 0, d.commands["exportvm"].usageError()
	}
	machine, dir := args[0], args[1]
	format := controlplane.DefaultExportFormat
	if len(args) == 3 {
		format = args[2]
	}
	if !controlplane.ValidExportFormat(format) {
		return 0, vmerrors.NewInvalidArgumentError(fmt.Sprintf("unsupported export format '%s', use one of: %s", format, strings.Join(controlplane.ExportFormats, " ")), nil)
	}

	target := filepath.Join(dir, machine+"."+controlplane.ExportExtension(format))
	if c.Active != nil && !c.Active.IsRemote() {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, vmerrors.NewExecutionError("could not create export directory", err)
		}
	}

	return 0, d.runProgress(c, "Exporting "+machine, func(s controlplane.Session) (controlplane.Progress, error) {
		return s.Export(c.Ctx, machine, target, format)
	})
}

func (d *Dispatcher) cmdImportVM(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["importvm"].usageError()
	}
	return 0, d.runProgress(c, "Importing "+filepath.Base(args[0]), func(s controlplane.Session) (controlplane.Progress, error) {
		return s.Import(c.Ctx, args[0])
	})
}

func (d *Dispatcher) cmdListHostVMs(c *Context, args []string) (int, error) {
	if len(args) != 0 {
		return 0, d.commands["listhostvms"].usageError()
	}
	return 0, d.listMachines(c, func(controlplane.Machine) bool { return true })
}

func (d *Dispatcher) cmdListRunningVMs(c *Context, args []string) (int, error) {
	if len(args) != 0 {
		return 0, d.commands["listrunningvms"].usageError()
	}
	return 0, d.listMachines(c, controlplane.Machine.Running)
}

func (d *Dispatcher) listMachines(c *Context, keep func(controlplane.Machine) bool) error {
	session, err := c.session()
	if err != nil {
		return err
	}
	machines, err := session.Machines(c.Ctx)
	if err != nil {
		return vmerrors.NewExecutionError("failed to list machines", err)
	}

	var rows [][]string
	for _, m := range machines {
		if keep(m) {
			rows = append(rows, []string{m.Name, m.OSType, d.printer.StateLabel(m.State)})
		}
	}
	d.printer.Table([]string{"NAME", "OS TYPE", "STATE"}, rows)
	return nil
}

func (d *Dispatcher) cmdSetRAM(c *Context, args []string) (int, error) {
	if len(args) != 2 {
		return 0, d.commands["setram"].usageError()
	}
	size, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, vmerrors.NewInvalidArgumentError("Memory size must be a number", err)
	}
	if size < controlplane.MinMemoryMB || size > controlplane.MaxMemoryMB {
		return 0, vmerrors.NewInvalidArgumentError(fmt.Sprintf("Memory size must be in range <%d; %d> MB", controlplane.MinMemoryMB, controlplane.MaxMemoryMB), nil)
	}
	session, err := c.session()
	if err != nil {
		return 0, err
	}

	d.printer.Printf("Setting Memory size to %d\n", size)
	if err := session.SetMemory(c.Ctx, args[0], size); err != nil {
		return 0, vmerrors.NewExecutionError("failed to set memory size of "+args[0], err)
	}
	return 0, nil
}

func (d *Dispatcher) cmdSetCPUs(c *Context, args []string) (int, error) {
	if len(args) != 2 {
		return 0, d.commands["setcpus"].usageError()
	}
	count, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, vmerrors.NewInvalidArgumentError("CPU count must be a number", err)
	}
	if count < controlplane.MinCPUs || count > controlplane.MaxCPUs {
		return 0, vmerrors.NewInvalidArgumentError(fmt.Sprintf("CPU count size must be in range <%d; %d>", controlplane.MinCPUs, controlplane.MaxCPUs), nil)
	}
	session, err := c.session()
	if err != nil {
		return 0, err
	}

	d.printer.Printf("Setting CPU count to %d\n", count)
	if err := session.SetCPUs(c.Ctx, args[0], count); err != nil {
		return 0, vmerrors.NewExecutionError("failed to set CPU count of "+args[0], err)
	}
	return 0, nil
}

func (d *Dispatcher) cmdHost(c *Context, args []string) (int, error) {
	if len(args) != 0 {
		return 0, d.commands["host"].usageError()
	}
	session, err := c.session()
	if err != nil {
		return 0, err
	}
	info, err := session.HostInfo(c.Ctx)
	if err != nil {
		return 0, vmerrors.NewExecutionError("failed to read host information", err)
	}

	user := c.Active.User()
	if user == "" {
		user = "No user"
	}
	d.printer.Printf("VBoxWebSrv host:    %s\n", c.Active.Host())
	d.printer.Printf("VBoxWebSrv port:    %d\n", c.Active.Port())
	d.printer.Printf("VBoxWebSrv user:    %s\n", user)
	d.printer.Printf("CPU family:         %s\n", info.Processor)
	d.printer.Printf("CPU physical cores: %d\n", info.PhysicalCores)
	d.printer.Printf("CPU logical cores:  %d\n", info.LogicalCores)
	d.printer.Printf("Operating system:   %s\n", info.OS)
	d.printer.Printf("OS version:         %s\n", info.OSVersion)
	d.printer.Printf("Memory size:        %d MB\n", info.MemoryMB)
	return 0, nil
}
