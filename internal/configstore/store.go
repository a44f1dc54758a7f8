package configstore

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"

	"vmplex/internal/endpoint"
	vmerrors "vmplex/internal/errors"
	"vmplex/internal/fleet"
	"vmplex/internal/logging"
)

// Registry is the owner of the topology a load is applied to. AddHost
// creates, registers and connects an environment; it may return an error
// after registering when only the connect failed.
type Registry interface {
	Topology() *fleet.Topology
	AddHost(ctx context.Context, ep endpoint.Endpoint) error
}

// Result describes an applied configuration
type Result struct {
	Source   string
	Hosts    int
	Machines int
	Warnings []Warning
}

// Store loads and saves topology files
type Store struct {
	registry Registry
	logger   *logging.Logger
}

// New creates a store for registry
func New(registry Registry, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Store{registry: registry, logger: logger}
}

// Load reads path and applies it. Either every line is applied or, on a
// fatal line, the topology is restored to its state before the load.
func (s *Store) Load(ctx context.Context, path string) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		err = vmerrors.NewConfigParseError(0, "could not open or read configuration file", err)
		s.logger.LogConfigError(path, err)
		return nil, err
	}
	defer f.Close()

	records, warnings, err := Parse(f)
	if err != nil {
		s.logger.LogConfigError(path, err)
		return nil, err
	}

	res, err := s.Apply(ctx, path, records)
	if res != nil {
		res.Warnings = append(warnings, res.Warnings...)
	}
	return res, err
}

// Apply applies records to the registry's topology all-or-nothing.
func (s *Store) Apply(ctx context.Context, source string, records []Record) (*Result, error) {
	topo := s.registry.Topology()
	snap := topo.Snapshot()
	res := &Result{Source: source}

	for _, rec := range records {
		var err error
		switch rec.Kind {
		case KindHost:
			err = s.applyHost(ctx, rec, res)
		case KindMachine:
			err = s.applyMachine(topo, rec, res)
		default:
			err = vmerrors.NewConfigParseError(rec.Line, fmt.Sprintf("unknown record kind '%s'", rec.Kind), nil)
		}
		if err != nil {
			for _, env := range topo.Restore(snap) {
				env.Disconnect()
			}
			s.logger.LogConfigError(source, err)
			return res, err
		}
	}

	s.logger.LogConfigLoad(source, res.Hosts, res.Machines)
	return res, nil
}

func (s *Store) applyHost(ctx context.Context, rec Record, res *Result) error {
	if rec.Has(KeyGroup) {
		return vmerrors.NewConfigParseError(rec.Line, "cannot assign host to group", nil)
	}
	name := rec.Get(KeyName)
	if name == "" {
		return vmerrors.NewConfigParseError(rec.Line, "missing host name", nil)
	}

	address := rec.Get(KeyAddress)
	if address == "" {
		address = name
	}
	ep := endpoint.Endpoint{
		Name:     name,
		Host:     address,
		Port:     endpoint.DefaultPort,
		User:     rec.Get(KeyUser),
		Password: rec.Get(KeyPassword),
	}
	if p := rec.Get(KeyPort); p != "" {
		port, err := endpoint.ParsePort(p)
		if err != nil {
			return vmerrors.NewConfigParseError(rec.Line, "invalid port", err)
		}
		ep.Port = port
	}
	if err := ep.Validate(); err != nil {
		return vmerrors.NewConfigParseError(rec.Line, "invalid host", err)
	}

	if err := s.registry.AddHost(ctx, ep); err != nil {
		res.Warnings = append(res.Warnings, Warning{Line: rec.Line, Message: err.Error()})
		if vmerrors.TypeOf(err) != vmerrors.ConnectionErrorType {
			return nil
		}
	}
	res.Hosts++
	return nil
}

func (s *Store) applyMachine(topo *fleet.Topology, rec Record, res *Result) error {
	if rec.Has(KeyPort) {
		return vmerrors.NewConfigParseError(rec.Line, "cannot assign port to virtual machine", nil)
	}
	host := rec.Get(KeyHost)
	if host == "" {
		return vmerrors.NewConfigParseError(rec.Line, "missing machine hostname", nil)
	}
	name := rec.Get(KeyName)
	if name == "" {
		return vmerrors.NewConfigParseError(rec.Line, "missing machine name", nil)
	}
	user, password := rec.Get(KeyUser), rec.Get(KeyPassword)

	if groupName := rec.Get(KeyGroup); groupName != "" {
		if _, err := fleet.NewCredentials(user, password); err != nil {
			res.Warnings = append(res.Warnings, Warning{Line: rec.Line, Message: err.Error()})
			return nil
		}
		g, _ := topo.EnsureGroup(groupName)
		if err := g.AddMachine(host, name, user, password); err != nil {
			res.Warnings = append(res.Warnings, Warning{Line: rec.Line, Message: err.Error()})
			return nil
		}
		res.Machines++
		return nil
	}

	env, ok := topo.Environment(host)
	if !ok {
		return vmerrors.NewConfigParseError(rec.Line,
			fmt.Sprintf("host %s undefined, define it before registering a machine to it", host), nil)
	}
	if err := env.AddMachine(name, user, password); err != nil {
		res.Warnings = append(res.Warnings, Warning{Line: rec.Line, Message: err.Error()})
		return nil
	}
	res.Machines++
	return nil
}

// Save writes the topology to path, replacing the file. A failed write can
// leave a partial file behind; the topology itself is never modified.
func Save(path string, topo *fleet.Topology) error {
	f, err := os.Create(path)
	if err != nil {
		return vmerrors.NewExecutionError("could not open file to save configuration", err)
	}

	if err := WriteTo(f, topo); err != nil {
		f.Close()
		return vmerrors.NewExecutionError("failed to write configuration", err)
	}
	if err := f.Close(); err != nil {
		return vmerrors.NewExecutionError("failed to write configuration", err)
	}
	return nil
}

// WriteTo serializes the topology: every environment followed by its
// machines, then the machines of every group. Output is sorted by name.
func WriteTo(w io.Writer, topo *fleet.Topology) error {
	bw := bufio.NewWriter(w)

	for _, env := range topo.Environments() {
		fields := []string{KindHost, param(KeyName, env.Name())}
		if env.Host() != env.Name() {
			fields = append(fields, param(KeyAddress, env.Host()))
		}
		fields = append(fields, param(KeyPort, strconv.Itoa(env.Port())))
		fields = appendOptional(fields, KeyUser, env.User())
		fields = appendOptional(fields, KeyPassword, env.Password())
		writeLine(bw, fields)

		machines := env.Machines()
		for _, name := range env.MachineNames() {
			creds := machines[name]
			fields := []string{KindMachine, param(KeyHost, env.Name()), param(KeyName, name)}
			fields = appendOptional(fields, KeyUser, creds.User)
			fields = appendOptional(fields, KeyPassword, creds.Password)
			writeLine(bw, fields)
		}
	}

	for _, g := range topo.Groups() {
		for _, host := range g.Hosts() {
			for _, name := range g.MachineNames(host) {
				creds, _ := g.Machine(host, name)
				fields := []string{KindMachine, param(KeyHost, host), param(KeyName, name), param(KeyGroup, g.Name())}
				fields = appendOptional(fields, KeyUser, creds.User)
				fields = appendOptional(fields, KeyPassword, creds.Password)
				writeLine(bw, fields)
			}
		}
	}

	return bw.Flush()
}

// param renders key=value, quoted when the value needs it
func param(key, value string) string {
	return shellescape.Quote(key + "=" + value)
}

func appendOptional(fields []string, key, value string) []string {
	if value == "" {
		return fields
	}
	return append(fields, param(key, value))
}

func writeLine(w *bufio.Writer, fields []string) {
	w.WriteString(strings.Join(fields, " "))
	w.WriteByte('\n')
}
