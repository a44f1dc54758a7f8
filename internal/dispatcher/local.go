package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vmplex/internal/configstore"
	vmerrors "vmplex/internal/errors"
	"vmplex/internal/inventory"
)

func (d *Dispatcher) cmdHelp(c *Context, args []string) (int, error) {
	rows := make([][]string, 0, len(d.commands))
	for _, name := range d.commandNames() {
		cmd := d.commands[name]
		rows = append(rows, []string{cmd.Usage, cmd.Help})
	}
	d.printer.Table([]string{"COMMAND", "DESCRIPTION"}, rows)
	return 0, nil
}

func (d *Dispatcher) cmdExit(c *Context, args []string) (int, error) {
	return 1, nil
}

func (d *Dispatcher) cmdBatch(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["batch"].usageError()
	}
	res, err := d.runBatch(c.Session, args[0], c.Unattended)
	if err != nil {
		return 0, err
	}
	if res.Report.Failed() > 0 {
		d.printer.Notice("%s", res.Report.Summary())
	}
	return 0, nil
}

func (d *Dispatcher) cmdSleep(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["sleep"].usageError()
	}
	seconds, err := strconv.ParseFloat(args[0], 64)
	if err != nil || seconds < 0 {
		return 0, vmerrors.NewInvalidArgumentError(fmt.Sprintf("invalid sleep time '%s'", args[0]), err)
	}
	return 0, d.sleep(c.Ctx, time.Duration(seconds*float64(time.Second)))
}

func (d *Dispatcher) cmdListKnownVMs(c *Context, args []string) (int, error) {
	for _, env := range d.topo.Environments() {
		machines := env.Machines()
		if len(machines) == 0 {
			continue
		}
		d.printer.Println(env.Name())
		for _, name := range env.MachineNames() {
			creds := machines[name]
			d.printer.Printf("    Machine: %s, User: %s, Password: %s\n", name, creds.User, creds.Password)
		}
	}
	return 0, nil
}

func (d *Dispatcher) cmdGroups(c *Context, args []string) (int, error) {
	if len(args) > 0 {
		return 0, vmerrors.NewInvalidArgumentError("Too much arguments for groups", nil)
	}

	groups := d.topo.Groups()
	if len(groups) == 0 {
		d.printer.Println("No existing groups found. Use command 'creategroup' to create one")
		return 0, nil
	}

	for _, g := range groups {
		d.printer.Println(g.Name())
		if g.Empty() {
			d.printer.Println("    <empty>")
			continue
		}
		for _, host := range g.Hosts() {
			d.printer.Println("    " + host)
			for _, name := range g.MachineNames(host) {
				creds, _ := g.Machine(host, name)
				d.printer.Printf("        %s (%s, %s)\n", name, creds.User, creds.Password)
			}
		}
	}
	return 0, nil
}

func (d *Dispatcher) cmdCreateGroup(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["creategroup"].usageError()
	}
	if _, err := d.topo.AddGroup(args[0]); err != nil {
		return 0, vmerrors.NewInvalidArgumentError("Group already exists", nil)
	}
	return 0, nil
}

func (d *Dispatcher) cmdRemoveGroup(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["removegroup"].usageError()
	}
	if !d.topo.RemoveGroup(args[0]) {
		return 0, vmerrors.NewInvalidArgumentError(fmt.Sprintf("Group '%s' not found", args[0]), nil)
	}
	return 0, nil
}

func (d *Dispatcher) cmdAddToGroup(c *Context, args []string) (int, error) {
	if len(args) < 3 || len(args) > 5 {
		return 0, d.commands["addtogroup"].usageError()
	}
	groupName, host, machine := args[0], args[1], args[2]
	var user, password string
	if len(args) > 3 {
		user = args[3]
	}
	if len(args) > 4 {
		password = args[4]
	}

	if _, ok := d.topo.Environment(host); !ok {
		return 0, vmerrors.NewInvalidArgumentError("Unknown host", nil)
	}

	g, ok := d.topo.Group(groupName)
	if !ok {
		d.printer.Println("Creating a new group")
		g, _ = d.topo.EnsureGroup(groupName)
	}
	d.printer.Println("Adding to group")
	return 0, g.AddMachine(host, machine, user, password)
}

func (d *Dispatcher) cmdRemoveFromGroup(c *Context, args []string) (int, error) {
	if len(args) < 2 || len(args) > 3 {
		return 0, d.commands["removefromgroup"].usageError()
	}
	g, ok := d.topo.Group(args[0])
	if !ok {
		return 0, vmerrors.NewInvalidArgumentError(fmt.Sprintf("Group '%s' not found", args[0]), nil)
	}
	machine := ""
	if len(args) == 3 {
		machine = args[2]
	}
	g.RemoveMachine(args[1], machine)
	return 0, nil
}

func (d *Dispatcher) cmdLoad(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["load"].usageError()
	}
	return 0, d.LoadConfig(c.Ctx, args[0])
}

func (d *Dispatcher) cmdLoadInventory(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["loadinventory"].usageError()
	}
	return 0, d.LoadInventory(c.Ctx, args[0])
}

// LoadConfig applies a topology file all-or-nothing and reports the outcome
func (d *Dispatcher) LoadConfig(ctx context.Context, path string) error {
	res, err := d.store.Load(ctx, path)
	return d.reportLoad(res, err)
}

// LoadInventory applies a YAML inventory all-or-nothing and reports the
// outcome
func (d *Dispatcher) LoadInventory(ctx context.Context, path string) error {
	inv, err := inventory.LoadInventoryFromFile(path)
	if err != nil {
		return err
	}
	records, err := inv.Records()
	if err != nil {
		return err
	}
	res, err := d.store.Apply(ctx, inv.Path(), records)
	return d.reportLoad(res, err)
}

// reportLoad prints load warnings and explains a rollback.
func (d *Dispatcher) reportLoad(res *configstore.Result, err error) error {
	if res != nil {
		for _, w := range res.Warnings {
			d.printer.Notice("%s", w.String())
		}
	}
	if err != nil {
		var ce *vmerrors.ClassifiedError
		if errors.As(err, &ce) && ce.Line > 0 {
			d.printer.Notice("Error while loading configuration on line %d, restoring the state before loading configuration file", ce.Line)
		}
		return err
	}
	if res != nil {
		d.printer.Printf("Loaded %d hosts and %d machines from %s\n", res.Hosts, res.Machines, res.Source)
	}
	if names := d.topo.EnvironmentNames(); len(names) > 0 {
		d.printer.Printf("Environments: %s\n", strings.Join(names, ", "))
	}
	return nil
}

func (d *Dispatcher) cmdSave(c *Context, args []string) (int, error) {
	if len(args) != 1 {
		return 0, d.commands["save"].usageError()
	}
	return 0, configstore.Save(args[0], d.topo)
}
