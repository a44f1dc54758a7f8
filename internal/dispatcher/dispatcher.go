// Package dispatcher interprets vmplex commands against the active host or,
// for group arguments, against every member of a group.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/google/shlex"

	"vmplex/internal/batch"
	"vmplex/internal/configstore"
	"vmplex/internal/controlplane"
	"vmplex/internal/endpoint"
	vmerrors "vmplex/internal/errors"
	"vmplex/internal/fleet"
	"vmplex/internal/logging"
	"vmplex/internal/output"
	"vmplex/internal/progress"
	"vmplex/internal/report"
)

// Locality tells whether a command talks to the control plane
type Locality int

const (
	Local Locality = iota
	Network
)

func (l Locality) String() string {
	if l == Network {
		return "network"
	}
	return "local"
}

// Context is what a handler gets to work with
type Context struct {
	Ctx context.Context

	// Session outlives a single command: an operator interrupt cancels Ctx
	// but not Session.
	Session context.Context

	Active     *fleet.Environment
	Unattended bool
	Log        *logging.Logger
}

// Handler runs one command. A non-zero status stops the command loop.
type Handler func(d *Dispatcher, c *Context, args []string) (int, error)

// Command is an entry of the command table
type Command struct {
	Name     string
	Usage    string
	Help     string
	Locality Locality

	// TakesMachine marks commands whose first argument is a machine and
	// may therefore name a group instead.
	TakesMachine bool

	// ManagesHosts marks the host management commands. They run without an
	// active host and skip the reconnect done before network commands.
	ManagesHosts bool

	Run Handler
}

func (cmd *Command) needsActive() bool {
	return cmd.Locality == Network && !cmd.ManagesHosts
}

// usageError reports wrong arguments for cmd
func (cmd *Command) usageError() error {
	return vmerrors.NewInvalidArgumentError(fmt.Sprintf("Wrong arguments for %s. Usage: %s", cmd.Name, cmd.Usage), nil)
}

// Options configures a Dispatcher
type Options struct {
	Platform controlplane.Platform
	Remote   bool // networked style; enables the host management commands
	Output   io.Writer
	Prompter fleet.Prompter
	Logger   *logging.Logger
	Poller   *progress.Poller
	BatchLog string

	// Interrupts derives the context of one command or prompt. The default
	// cancels it on SIGINT.
	Interrupts func(context.Context) (context.Context, context.CancelFunc)
}

// Dispatcher owns the topology and runs commands against it. It is not
// safe for concurrent use.
type Dispatcher struct {
	topo       *fleet.Topology
	platform   controlplane.Platform
	remote     bool
	printer    *output.Printer
	prompter   fleet.Prompter
	logger     *logging.Logger
	poller     *progress.Poller
	store      *configstore.Store
	batchOpts  batch.Options
	interrupts func(context.Context) (context.Context, context.CancelFunc)
	commands   map[string]*Command
	sleep      func(ctx context.Context, d time.Duration) error
}

// New creates a dispatcher with an empty topology
func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = logging.NewNopLogger()
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Poller == nil {
		opts.Poller = progress.NewPoller(progress.DefaultInterval, opts.Output, false)
	}
	if opts.Interrupts == nil {
		opts.Interrupts = func(ctx context.Context) (context.Context, context.CancelFunc) {
			return signal.NotifyContext(ctx, os.Interrupt)
		}
	}

	d := &Dispatcher{
		topo:       fleet.NewTopology(),
		platform:   opts.Platform,
		remote:     opts.Remote,
		printer:    output.NewPrinter(opts.Output),
		prompter:   opts.Prompter,
		logger:     opts.Logger,
		poller:     opts.Poller,
		interrupts: opts.Interrupts,
		sleep:      sleepContext,
	}
	d.store = configstore.New(d, opts.Logger)
	d.batchOpts = batch.Options{
		LogPath:    opts.BatchLog,
		Output:     opts.Output,
		Logger:     opts.Logger,
		Interrupts: opts.Interrupts,
		OnError: func(command string, err error) {
			d.printer.Error(err)
		},
	}
	d.commands = buildCommands(opts.Remote)
	return d
}

// Topology returns the hosts and groups the dispatcher manages
func (d *Dispatcher) Topology() *fleet.Topology {
	return d.topo
}

// Command returns the command table entry for name
func (d *Dispatcher) Command(name string) (*Command, bool) {
	cmd, ok := d.commands[name]
	return cmd, ok
}

// Store returns the configuration store bound to this dispatcher
func (d *Dispatcher) Store() *configstore.Store {
	return d.store
}

// Printer returns the printer used for command output
func (d *Dispatcher) Printer() *output.Printer {
	return d.printer
}

// AddHost registers an environment for ep and connects it. The first host
// that connects becomes active. A failed connect leaves the environment
// registered and is returned as a connection error.
func (d *Dispatcher) AddHost(ctx context.Context, ep endpoint.Endpoint) error {
	ep.Remote = d.remote
	env := fleet.NewEnvironment(ep, d.platform, d.logger)
	if err := d.topo.AddEnvironment(env); err != nil {
		return err
	}
	// Registered before connecting: an unreachable host stays known, and
	// later machine lines of a config file bind to it. 'connect' or
	// 'switchhost' retries it.
	if err := env.Connect(ctx); err != nil {
		return err
	}
	if d.topo.Active() == nil {
		d.printer.Printf("This is the first known host (%s), setting it as active\n", env.Name())
		_ = d.topo.SetActive(env.Name())
	}
	return nil
}

// Close disconnects every environment
func (d *Dispatcher) Close() {
	for _, env := range d.topo.Environments() {
		env.Disconnect()
	}
}

// Execute runs line and prints any error. The returned status is non-zero
// only when the command asked to stop.
func (d *Dispatcher) Execute(ctx context.Context, line string, unattended bool) int {
	return d.execute(ctx, ctx, line, unattended)
}

func (d *Dispatcher) execute(session, ctx context.Context, line string, unattended bool) int {
	status, err := d.dispatch(session, ctx, line, unattended)
	if err != nil {
		d.printer.Error(err)
	}
	return status
}

// Dispatch runs one command line and returns its status and error. Errors
// are logged but not printed.
func (d *Dispatcher) Dispatch(ctx context.Context, line string, unattended bool) (int, error) {
	return d.dispatch(ctx, ctx, line, unattended)
}

// dispatch runs line on ctx. session is the context nested batches run on.
func (d *Dispatcher) dispatch(session, ctx context.Context, line string, unattended bool) (int, error) {
	args, err := shlex.Split(line)
	if err != nil {
		err = vmerrors.NewInvalidArgumentError("could not parse command line", err)
		d.logger.LogCommandError(line, err)
		return 0, err
	}
	if len(args) == 0 {
		return 0, nil
	}

	name, args := args[0], args[1:]
	status, err := d.run(session, ctx, name, args, unattended)
	if err != nil {
		d.logger.LogCommandError(name, err)
	}
	return status, err
}

func (d *Dispatcher) run(session, ctx context.Context, name string, args []string, unattended bool) (int, error) {
	if len(d.topo.Environments()) == 0 && name != "addhost" && name != "exit" && name != "quit" {
		return 0, vmerrors.NewNotConnectedError("Program is not connected to any host, please add some with 'addhost' command")
	}

	cmd, ok := d.commands[name]
	if !ok {
		return 0, vmerrors.NewUnknownCommandError(name)
	}

	c := &Context{
		Ctx:        ctx,
		Session:    session,
		Active:     d.topo.Active(),
		Unattended: unattended,
		Log:        d.logger,
	}

	if cmd.needsActive() {
		if c.Active == nil {
			return 0, vmerrors.NewNotConnectedError("No active host, select one with 'switchhost'")
		}
		if c.Active.IsRemote() {
			if err := c.Active.Reconnect(ctx); err != nil {
				return 0, err
			}
		}
	}

	if cmd.TakesMachine && len(args) > 0 {
		if g, ok := d.topo.Group(args[0]); ok {
			rep := d.fanOut(c, cmd, g, args)
			if err := rep.Err(); err != nil {
				return 0, vmerrors.NewGroupFanoutError(rep.Summary(), err)
			}
			return 0, nil
		}
	}

	return cmd.Run(d, c, args)
}

// fanOut runs cmd once per machine of group, switching the active host as
// needed. The active host is restored afterwards whatever happened.
func (d *Dispatcher) fanOut(c *Context, cmd *Command, group *fleet.Group, args []string) *report.Report {
	rep := report.New(cmd.Name + " " + group.Name())
	origin := d.topo.Active()
	defer func() {
		if origin != nil {
			_ = d.topo.SetActive(origin.Name())
		} else {
			d.topo.ClearActive()
		}
	}()

	for _, host := range group.Hosts() {
		machines := group.MachineNames(host)

		env, ok := d.topo.Environment(host)
		if !ok {
			err := vmerrors.NewInvalidArgumentError(fmt.Sprintf("Unexisting host %s", host), nil)
			d.printer.Notice("Unexisting host %s", host)
			for _, m := range machines {
				rep.Skip(cmd.Name, host, m, err)
			}
			continue
		}

		if active := d.topo.Active(); active != env {
			if err := d.switchTo(c.Ctx, env); err != nil {
				for _, m := range machines {
					rep.Fail(cmd.Name, host, m, err)
					d.logger.LogFanoutError(cmd.Name, group.Name(), host, m, err)
				}
				continue
			}
		}

		hc := &Context{Ctx: c.Ctx, Session: c.Session, Active: env, Unattended: c.Unattended, Log: c.Log}
		for _, m := range machines {
			margs := append([]string{m}, args[1:]...)
			if _, err := cmd.Run(d, hc, margs); err != nil {
				rep.Fail(cmd.Name, host, m, err)
				d.logger.LogFanoutError(cmd.Name, group.Name(), host, m, err)
				continue
			}
			rep.Succeed(cmd.Name, host, m)
		}
	}

	d.logger.LogFanout(cmd.Name, group.Name(), rep.Succeeded(), rep.Failed(), rep.Skipped(), rep.Duration())
	return rep
}

// switchTo makes env active and reconnects it when remote.
func (d *Dispatcher) switchTo(ctx context.Context, env *fleet.Environment) error {
	from := ""
	if active := d.topo.Active(); active != nil {
		from = active.Name()
	}
	if err := d.topo.SetActive(env.Name()); err != nil {
		return err
	}
	d.logger.LogHostSwitch(from, env.Name())
	if env.IsRemote() {
		return env.Reconnect(ctx)
	}
	return nil
}

// Interact reads commands from the prompter until end of input or a
// command asks to stop. An interrupt at the prompt only prints a hint.
func (d *Dispatcher) Interact(ctx context.Context) error {
	if d.prompter == nil {
		return vmerrors.NewInvalidArgumentError("no input to read commands from", nil)
	}
	if d.topo.Active() == nil {
		d.printer.Println("Program is not connected to any host, please add some with 'addhost' command")
	}

	for {
		label := ">"
		if active := d.topo.Active(); active != nil {
			label = active.Prompt()
		}

		pctx, stop := d.interrupts(ctx)
		line, err := d.prompter.Prompt(pctx, label+" ")
		interrupted := pctx.Err() != nil && ctx.Err() == nil
		stop()

		if interrupted {
			d.printer.Println()
			d.printer.Println("Type quit to exit application")
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				d.printer.Println()
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		cctx, stop := d.interrupts(ctx)
		status := d.execute(ctx, cctx, line, false)
		stop()
		if status != 0 {
			return nil
		}
	}
}

// RunBatch runs file unattended
func (d *Dispatcher) RunBatch(ctx context.Context, file string) (*batch.Result, error) {
	return d.runBatch(ctx, file, true)
}

// runBatch runs file on session. Each command gets its own interruptible
// context, so an interrupt skips that command and the batch goes on.
func (d *Dispatcher) runBatch(session context.Context, file string, unattended bool) (*batch.Result, error) {
	return batch.NewRunner(batchExecutor{d: d, session: session}, d.batchOpts).Run(session, file, unattended)
}

// batchExecutor dispatches batch lines with the session of the batch.
type batchExecutor struct {
	d       *Dispatcher
	session context.Context
}

func (e batchExecutor) Dispatch(ctx context.Context, line string, unattended bool) (int, error) {
	return e.d.dispatch(e.session, ctx, line, unattended)
}

// wait polls prog with the progress bar
func (d *Dispatcher) wait(c *Context, prog controlplane.Progress, description string) error {
	return d.poller.Wait(c.Ctx, prog, description)
}

// credentials resolves the guest login for machine on the active host
func (d *Dispatcher) credentials(c *Context, machine string) (fleet.Credentials, error) {
	return fleet.ResolveCredentials(c.Ctx, machine, c.Active, d.topo.Groups(), c.Unattended, d.prompter)
}

// session returns the control-plane session of the active host
func (c *Context) session() (controlplane.Session, error) {
	if c.Active == nil {
		return nil, vmerrors.NewNotConnectedError("No active host, select one with 'switchhost'")
	}
	return c.Active.Session()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
