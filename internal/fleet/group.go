package fleet

import "sort"

// Group is a named set of machines that may live on different hosts.
type Group struct {
	name     string
	machines map[string]map[string]Credentials // host name -> machine name -> credentials
}

// NewGroup creates an empty group
func NewGroup(name string) *Group {
	return &Group{
		name:     name,
		machines: make(map[string]map[string]Credentials),
	}
}

// Name returns the group name
func (g *Group) Name() string {
	return g.name
}

// AddMachine inserts or overwrites the entry for machine on host. A half
// credential pair is rejected and leaves the group unchanged.
func (g *Group) AddMachine(host, machine, user, password string) error {
	creds, err := NewCredentials(user, password)
	if err != nil {
		return err
	}
	hostMachines, ok := g.machines[host]
	if !ok {
		hostMachines = make(map[string]Credentials)
		g.machines[host] = hostMachines
	}
	hostMachines[machine] = creds
	return nil
}

// RemoveMachine removes machine from host. An empty machine name removes the
// whole host entry. A host left without machines is pruned.
func (g *Group) RemoveMachine(host, machine string) {
	hostMachines, ok := g.machines[host]
	if !ok {
		return
	}
	if machine == "" {
		delete(g.machines, host)
		return
	}
	delete(hostMachines, machine)
	if len(hostMachines) == 0 {
		delete(g.machines, host)
	}
}

// Machine returns the credentials registered for machine on host.
func (g *Group) Machine(host, machine string) (Credentials, bool) {
	creds, ok := g.machines[host][machine]
	return creds, ok
}

// Machines returns a copy of the membership keyed by host then machine.
func (g *Group) Machines() map[string]map[string]Credentials {
	out := make(map[string]map[string]Credentials, len(g.machines))
	for host, machines := range g.machines {
		cp := make(map[string]Credentials, len(machines))
		for name, creds := range machines {
			cp[name] = creds
		}
		out[host] = cp
	}
	return out
}

// Hosts returns the member host names, sorted.
func (g *Group) Hosts() []string {
	hosts := make([]string, 0, len(g.machines))
	for host := range g.machines {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	return hosts
}

// MachineNames returns the member machines of host, sorted.
func (g *Group) MachineNames(host string) []string {
	names := make([]string, 0, len(g.machines[host]))
	for name := range g.machines[host] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Size returns the number of member machines.
func (g *Group) Size() int {
	n := 0
	for _, machines := range g.machines {
		n += len(machines)
	}
	return n
}

// Empty reports whether the group has no members.
func (g *Group) Empty() bool {
	return len(g.machines) == 0
}

func (g *Group) clone() *Group {
	return &Group{name: g.name, machines: g.Machines()}
}
