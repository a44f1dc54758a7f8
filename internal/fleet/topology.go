package fleet

import (
	"fmt"
	"sort"

	vmerrors "vmplex/internal/errors"
)

// Topology holds the known environments, the groups and the active host.
type Topology struct {
	envs   map[string]*Environment
	groups map[string]*Group
	active *Environment
}

// NewTopology creates an empty topology
func NewTopology() *Topology {
	return &Topology{
		envs:   make(map[string]*Environment),
		groups: make(map[string]*Group),
	}
}

// Environment returns the environment registered under name.
func (t *Topology) Environment(name string) (*Environment, bool) {
	env, ok := t.envs[name]
	return env, ok
}

// Environments returns all environments sorted by name.
func (t *Topology) Environments() []*Environment {
	envs := make([]*Environment, 0, len(t.envs))
	for _, env := range t.envs {
		envs = append(envs, env)
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].Name() < envs[j].Name() })
	return envs
}

// EnvironmentNames returns all environment names, sorted.
func (t *Topology) EnvironmentNames() []string {
	names := make([]string, 0, len(t.envs))
	for name := range t.envs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddEnvironment registers env under its name. Names are unique.
func (t *Topology) AddEnvironment(env *Environment) error {
	if _, exists := t.envs[env.Name()]; exists {
		return vmerrors.NewInvalidArgumentError(fmt.Sprintf("host %s already exists", env.Name()), nil)
	}
	t.envs[env.Name()] = env
	return nil
}

// RemoveEnvironment unregisters and returns the environment called name.
// Removing the active environment clears the active selection. The caller
// is responsible for disconnecting it.
func (t *Topology) RemoveEnvironment(name string) (*Environment, bool) {
	env, ok := t.envs[name]
	if !ok {
		return nil, false
	}
	delete(t.envs, name)
	if t.active == env {
		t.active = nil
	}
	return env, true
}

// Group returns the group called name.
func (t *Topology) Group(name string) (*Group, bool) {
	g, ok := t.groups[name]
	return g, ok
}

// Groups returns all groups sorted by name.
func (t *Topology) Groups() []*Group {
	groups := make([]*Group, 0, len(t.groups))
	for _, g := range t.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name() < groups[j].Name() })
	return groups
}

// AddGroup creates an empty group. Names are unique.
func (t *Topology) AddGroup(name string) (*Group, error) {
	if _, exists := t.groups[name]; exists {
		return nil, vmerrors.NewInvalidArgumentError(fmt.Sprintf("group %s already exists", name), nil)
	}
	g := NewGroup(name)
	t.groups[name] = g
	return g, nil
}

// EnsureGroup returns the group called name, creating it if needed. The
// boolean reports whether it was created.
func (t *Topology) EnsureGroup(name string) (*Group, bool) {
	if g, ok := t.groups[name]; ok {
		return g, false
	}
	g := NewGroup(name)
	t.groups[name] = g
	return g, true
}

// RemoveGroup deletes the group called name.
func (t *Topology) RemoveGroup(name string) bool {
	if _, ok := t.groups[name]; !ok {
		return false
	}
	delete(t.groups, name)
	return true
}

// Active returns the active environment, or nil.
func (t *Topology) Active() *Environment {
	return t.active
}

// SetActive makes the environment called name active.
func (t *Topology) SetActive(name string) error {
	env, ok := t.envs[name]
	if !ok {
		return vmerrors.NewInvalidArgumentError(fmt.Sprintf("host %s does not exist", name), nil)
	}
	t.active = env
	return nil
}

// ClearActive unsets the active environment.
func (t *Topology) ClearActive() {
	t.active = nil
}

// Snapshot is a saved copy of a topology's environments, their machine
// tables, the groups and the active selection.
type Snapshot struct {
	envs        map[string]*Environment
	envMachines map[string]map[string]Credentials
	groups      map[string]*Group
	active      *Environment
}

// Snapshot captures the current state.
func (t *Topology) Snapshot() *Snapshot {
	s := &Snapshot{
		envs:        make(map[string]*Environment, len(t.envs)),
		envMachines: make(map[string]map[string]Credentials, len(t.envs)),
		groups:      make(map[string]*Group, len(t.groups)),
		active:      t.active,
	}
	for name, env := range t.envs {
		s.envs[name] = env
		s.envMachines[name] = env.Machines()
	}
	for name, g := range t.groups {
		s.groups[name] = g.clone()
	}
	return s
}

// Restore puts back the state captured by s. It returns the environments
// registered since the snapshot so the caller can disconnect them.
func (t *Topology) Restore(s *Snapshot) []*Environment {
	var dropped []*Environment
	for name, env := range t.envs {
		if s.envs[name] != env {
			dropped = append(dropped, env)
		}
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i].Name() < dropped[j].Name() })

	t.envs = make(map[string]*Environment, len(s.envs))
	for name, env := range s.envs {
		machines := make(map[string]Credentials, len(s.envMachines[name]))
		for m, creds := range s.envMachines[name] {
			machines[m] = creds
		}
		env.machines = machines
		t.envs[name] = env
	}

	t.groups = make(map[string]*Group, len(s.groups))
	for name, g := range s.groups {
		t.groups[name] = g.clone()
	}

	t.active = s.active
	return dropped
}
