// Package inventory imports hosts, machines and groups from an Ansible-style
// YAML inventory for vmplex.
//
// Hosts listed under all.hosts become environments. A host may carry its
// machines under vbox_machines. Every other group, either a child of all or
// a top-level key, becomes a vmplex group holding the machines listed under
// its hosts:
//
//	all:
//	  hosts:
//	    vbox1:
//	      ansible_host: 10.0.0.5
//	      vbox_port: 18083
//	      vbox_machines:
//	        web1: {user: admin, password: secret}
//	  children:
//	    web:
//	      hosts:
//	        vbox1:
//	          vbox_machines:
//	            web1:
package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"vmplex/internal/configstore"
	vmerrors "vmplex/internal/errors"
)

// AnsibleInventory represents an Ansible inventory file
type AnsibleInventory struct {
	path string
}

// NewAnsibleInventory creates a new Ansible inventory reader
func NewAnsibleInventory(path string) *AnsibleInventory {
	return &AnsibleInventory{path: path}
}

// Path returns the inventory file path
func (ai *AnsibleInventory) Path() string {
	return ai.path
}

// AnsibleInventoryData represents the structure of an Ansible inventory
type AnsibleInventoryData struct {
	All    AnsibleGroup             `yaml:"all"`
	Groups map[string]*AnsibleGroup `yaml:",inline"`
}

// AnsibleGroup represents an Ansible inventory group. Host entries are kept
// as nodes so records can point back at their line.
type AnsibleGroup struct {
	Hosts    map[string]yaml.Node     `yaml:"hosts"`
	Children map[string]*AnsibleGroup `yaml:"children"`
}

// AnsibleHost represents the variables vmplex reads from a host entry
type AnsibleHost struct {
	AnsibleHost string                     `yaml:"ansible_host"`
	Port        int                        `yaml:"vbox_port"`
	User        string                     `yaml:"vbox_user"`
	Password    string                     `yaml:"vbox_password"`
	Machines    map[string]*AnsibleMachine `yaml:"vbox_machines"`
	line        int
}

// AnsibleMachine holds guest credentials; both or neither
type AnsibleMachine struct {
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// Records converts the inventory into configuration records: every host
// followed by its machines, then every group's machines. Hosts and groups
// are emitted in name order.
func (ai *AnsibleInventory) Records() ([]configstore.Record, error) {
	data, err := ai.loadInventoryData()
	if err != nil {
		return nil, err
	}

	hosts, err := decodeHosts(data.All.Hosts)
	if err != nil {
		return nil, err
	}

	var records []configstore.Record
	for _, name := range sortedKeys(hosts) {
		host := hosts[name]
		records = append(records, hostRecord(name, host))
		records = append(records, machineRecords(name, "", host)...)
	}

	groups := make(map[string]*AnsibleGroup)
	for name, g := range data.All.Children {
		collectGroups(name, g, groups)
	}
	for name, g := range data.Groups {
		if name == "all" {
			continue
		}
		collectGroups(name, g, groups)
	}

	for _, groupName := range sortedKeys(groups) {
		members, err := decodeHosts(groups[groupName].Hosts)
		if err != nil {
			return nil, err
		}
		for _, hostName := range sortedKeys(members) {
			records = append(records, machineRecords(hostName, groupName, members[hostName])...)
		}
	}

	return records, nil
}

// Groups returns the group names found in the inventory, sorted
func (ai *AnsibleInventory) Groups() ([]string, error) {
	data, err := ai.loadInventoryData()
	if err != nil {
		return nil, err
	}

	groups := make(map[string]*AnsibleGroup)
	for name, g := range data.All.Children {
		collectGroups(name, g, groups)
	}
	for name, g := range data.Groups {
		if name != "all" {
			collectGroups(name, g, groups)
		}
	}
	return sortedKeys(groups), nil
}

// loadInventoryData loads and parses the inventory file. JSON inventories
// parse as YAML.
func (ai *AnsibleInventory) loadInventoryData() (*AnsibleInventoryData, error) {
	content, err := os.ReadFile(ai.path)
	if err != nil {
		return nil, vmerrors.NewConfigParseError(0, "could not open or read inventory file", err)
	}

	var data AnsibleInventoryData
	if err := yaml.Unmarshal(content, &data); err != nil {
		return nil, vmerrors.NewConfigParseError(0, "failed to parse inventory file", err)
	}
	return &data, nil
}

// collectGroups flattens nested children; each child is a group of its own.
// Hosts of a group seen twice are merged.
func collectGroups(name string, g *AnsibleGroup, out map[string]*AnsibleGroup) {
	if g == nil {
		return
	}
	merged, ok := out[name]
	if !ok {
		merged = &AnsibleGroup{Hosts: make(map[string]yaml.Node)}
		out[name] = merged
	}
	for host, node := range g.Hosts {
		if _, dup := merged.Hosts[host]; !dup {
			merged.Hosts[host] = node
		}
	}
	for child, cg := range g.Children {
		collectGroups(child, cg, out)
	}
}

func decodeHosts(nodes map[string]yaml.Node) (map[string]*AnsibleHost, error) {
	hosts := make(map[string]*AnsibleHost, len(nodes))
	for name, node := range nodes {
		host := &AnsibleHost{line: node.Line}
		if node.Kind != 0 && node.Tag != "!!null" {
			if err := node.Decode(host); err != nil {
				return nil, vmerrors.NewConfigParseError(node.Line, fmt.Sprintf("invalid host entry '%s'", name), err)
			}
		}
		hosts[name] = host
	}
	return hosts, nil
}

func hostRecord(name string, host *AnsibleHost) configstore.Record {
	rec := configstore.Record{
		Kind:   configstore.KindHost,
		Line:   host.line,
		Params: map[string]string{configstore.KeyName: name},
	}
	setIfNotEmpty(rec.Params, configstore.KeyAddress, strings.TrimSpace(host.AnsibleHost))
	if host.Port != 0 {
		rec.Params[configstore.KeyPort] = strconv.Itoa(host.Port)
	}
	setIfNotEmpty(rec.Params, configstore.KeyUser, host.User)
	setIfNotEmpty(rec.Params, configstore.KeyPassword, host.Password)
	return rec
}

func machineRecords(hostName, groupName string, host *AnsibleHost) []configstore.Record {
	var records []configstore.Record
	for _, name := range sortedKeys(host.Machines) {
		m := host.Machines[name]
		rec := configstore.Record{
			Kind: configstore.KindMachine,
			Line: host.line,
			Params: map[string]string{
				configstore.KeyHost: hostName,
				configstore.KeyName: name,
			},
		}
		setIfNotEmpty(rec.Params, configstore.KeyGroup, groupName)
		if m != nil {
			setIfNotEmpty(rec.Params, configstore.KeyUser, m.User)
			setIfNotEmpty(rec.Params, configstore.KeyPassword, m.Password)
		}
		records = append(records, rec)
	}
	return records
}

func setIfNotEmpty(params map[string]string, key, value string) {
	if value != "" {
		params[key] = value
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadInventoryFromFile returns a reader for path based on its extension
func LoadInventoryFromFile(path string) (*AnsibleInventory, error) {
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yml", ".yaml", ".json":
		return NewAnsibleInventory(path), nil
	default:
		return nil, vmerrors.NewInvalidArgumentError(fmt.Sprintf("unsupported inventory file format: %s", ext), nil)
	}
}
