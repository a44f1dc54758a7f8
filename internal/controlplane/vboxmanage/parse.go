package vboxmanage

import (
	"bufio"
	"strconv"
	"strings"

	"vmplex/internal/controlplane"
)

// listEntry is one line of "VBoxManage list vms": "name" {uuid}
type listEntry struct {
	Name string
	ID   string
}

func parseList(out string) []listEntry {
	var entries []listEntry
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, `"`) {
			continue
		}
		end := strings.LastIndex(line, `"`)
		if end <= 0 {
			continue
		}
		entry := listEntry{Name: line[1:end]}
		rest := strings.TrimSpace(line[end+1:])
		entry.ID = strings.Trim(rest, "{}")
		entries = append(entries, entry)
	}
	return entries
}

// parseMachineReadable parses "showvminfo --machinereadable" output into
// key/value pairs with surrounding quotes removed.
func parseMachineReadable(out string) map[string]string {
	values := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		key = strings.Trim(strings.TrimSpace(key), `"`)
		value = strings.Trim(strings.TrimSpace(value), `"`)
		if _, seen := values[key]; !seen {
			values[key] = value
		}
	}
	return values
}

func machineFromInfo(values map[string]string) controlplane.Machine {
	m := controlplane.Machine{
		Name:   values["name"],
		ID:     values["UUID"],
		OSType: values["ostype"],
		State:  values["VMState"],
	}
	m.MemoryMB, _ = strconv.Atoi(values["memory"])
	m.CPUs, _ = strconv.Atoi(values["cpus"])
	return m
}

// parseHostInfo parses "VBoxManage list hostinfo" output.
func parseHostInfo(out string) *controlplane.HostInfo {
	info := &controlplane.HostInfo{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch {
		case key == "Processor count":
			info.LogicalCores, _ = strconv.Atoi(value)
		case key == "Processor core count":
			info.PhysicalCores, _ = strconv.Atoi(value)
		case key == "Memory size":
			info.MemoryMB, _ = strconv.Atoi(strings.Fields(value + " 0")[0])
		case key == "Operating system":
			info.OS = value
		case key == "Operating system version":
			info.OSVersion = value
		case strings.HasPrefix(key, "Processor#0 description"):
			info.Processor = value
		}
	}
	return info
}

// exportFormatFlag maps an appliance format name to the VBoxManage flag.
func exportFormatFlag(format string) string {
	switch format {
	case "ovf-0.9", "ova-0.9":
		return "--legacy09"
	case "ovf-2.0", "ova-2.0":
		return "--ovf20"
	case "opc-1.0":
		return "--opc10"
	default:
		return "--ovf10"
	}
}
