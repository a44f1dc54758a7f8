package dispatcher

import "sort"

// buildCommands returns the command table. The host management commands
// only exist in networked style.
func buildCommands(remote bool) map[string]*Command {
	table := []*Command{
		{Name: "help", Usage: "help", Help: "Prints this help", Locality: Local, Run: (*Dispatcher).cmdHelp},

		{Name: "createvm", Usage: "createvm [name] [ostype] [CPUs] [RAM] [DISK_SIZE]", Help: "Create a virtual machine", Locality: Network, Run: (*Dispatcher).cmdCreateVM},
		{Name: "removevm", Usage: "removevm <name>", Help: "Remove a virtual machine", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdRemoveVM},
		{Name: "start", Usage: "start <machine_name>", Help: "Start virtual machine", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdStart},
		{Name: "restart", Usage: "restart <machine_name|machine uuid>", Help: "Restart virtual machine", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdRestart},
		{Name: "pause", Usage: "pause <machine_name|machine uuid>", Help: "Pause virtual machine", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdPause},
		{Name: "resume", Usage: "resume <machine_name|machine uuid>", Help: "Resume virtual machine", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdResume},
		{Name: "poweroff", Usage: "poweroff <machine_name|machine uuid>", Help: "Power off a virtual machine", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdPowerOff},
		{Name: "powerbutton", Usage: "powerbutton <machine_name|machine uuid>", Help: "Press the power button of a virtual machine", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdPowerButton},
		{Name: "sleepbutton", Usage: "sleepbutton <machine_name|machine uuid>", Help: "Sleep a virtual machine", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdSleepButton},
		{Name: "exportvm", Usage: "exportvm <machine_name> <output_dir> [format]", Help: "Export virtual machine to given destination", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdExportVM},
		{Name: "importvm", Usage: "importvm <path_to_image>", Help: "Import virtual machine from image", Locality: Network, Run: (*Dispatcher).cmdImportVM},
		{Name: "listhostvms", Usage: "listhostvms", Help: "List virtual machines on current host", Locality: Network, Run: (*Dispatcher).cmdListHostVMs},
		{Name: "listrunningvms", Usage: "listrunningvms", Help: "List running virtual machine on current host", Locality: Network, Run: (*Dispatcher).cmdListRunningVMs},
		{Name: "gcmd", Usage: "gcmd <machine_name|uuid> <path_to_executable> [args...]", Help: "Execute a command on guest", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdGcmd},
		{Name: "gshell", Usage: "gshell <machine_name|uuid>", Help: "Run an interactive shell on guest", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdGshell},
		{Name: "copyto", Usage: "copyto <machine> <src> <dst>", Help: "Copy file from host to virtual machine", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdCopyTo},
		{Name: "copyfrom", Usage: "copyfrom <machine> <src> <dst>", Help: "Copy file from virtual machine to host", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdCopyFrom},
		{Name: "setram", Usage: "setram <machine> <memory_size_mb>", Help: "Set RAM memory for virtual machine", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdSetRAM},
		{Name: "setcpus", Usage: "setcpus <machine> <cpu_count>", Help: "Set CPU count for virtual machine", Locality: Network, TakesMachine: true, Run: (*Dispatcher).cmdSetCPUs},
		{Name: "host", Usage: "host", Help: "List information about current host", Locality: Network, Run: (*Dispatcher).cmdHost},

		{Name: "batch", Usage: "batch <file>", Help: "Run a batch file", Locality: Local, Run: (*Dispatcher).cmdBatch},
		{Name: "listknownvms", Usage: "listknownvms", Help: "List known virtual machines", Locality: Local, Run: (*Dispatcher).cmdListKnownVMs},
		{Name: "sleep", Usage: "sleep <seconds>", Help: "Sleep for a period of time", Locality: Local, Run: (*Dispatcher).cmdSleep},
		{Name: "groups", Usage: "groups", Help: "Print existing groups", Locality: Local, Run: (*Dispatcher).cmdGroups},
		{Name: "creategroup", Usage: "creategroup <groupname>", Help: "Create a new group", Locality: Local, Run: (*Dispatcher).cmdCreateGroup},
		{Name: "removegroup", Usage: "removegroup <groupname>", Help: "Remove group", Locality: Local, Run: (*Dispatcher).cmdRemoveGroup},
		{Name: "addtogroup", Usage: "addtogroup <groupname> <hostname> <machine> [username] [password]", Help: "Add machine to a group", Locality: Local, Run: (*Dispatcher).cmdAddToGroup},
		{Name: "removefromgroup", Usage: "removefromgroup <groupname> <hostname> [machine]", Help: "Remove machine from a group", Locality: Local, Run: (*Dispatcher).cmdRemoveFromGroup},
		{Name: "load", Usage: "load <config_file>", Help: "Load configuration from file", Locality: Local, Run: (*Dispatcher).cmdLoad},
		{Name: "loadinventory", Usage: "loadinventory <inventory_file>", Help: "Load hosts, machines and groups from a YAML inventory", Locality: Local, Run: (*Dispatcher).cmdLoadInventory},
		{Name: "save", Usage: "save <config_file>", Help: "Save current configuration to the file", Locality: Local, Run: (*Dispatcher).cmdSave},
		{Name: "exit", Usage: "exit", Help: "Exit program", Locality: Local, Run: (*Dispatcher).cmdExit},
		{Name: "quit", Usage: "quit", Help: "Quit program", Locality: Local, Run: (*Dispatcher).cmdExit},
	}

	if remote {
		table = append(table,
			&Command{Name: "addhost", Usage: "addhost <hostname/ip> [port] [user] [password] [displayname]", Help: "Add a new host machine", Locality: Network, ManagesHosts: true, Run: (*Dispatcher).cmdAddHost},
			&Command{Name: "removehost", Usage: "removehost <hostname>", Help: "Remove host from known hosts", Locality: Network, ManagesHosts: true, Run: (*Dispatcher).cmdRemoveHost},
			&Command{Name: "switchhost", Usage: "switchhost <hostname>", Help: "Switch to another host", Locality: Network, ManagesHosts: true, Run: (*Dispatcher).cmdSwitchHost},
			&Command{Name: "connect", Usage: "connect <hostname>", Help: "Connect to remote VirtualBox", Locality: Network, ManagesHosts: true, Run: (*Dispatcher).cmdConnect},
			&Command{Name: "disconnect", Usage: "disconnect [hostname]", Help: "Disconnect from remote VirtualBox", Locality: Network, ManagesHosts: true, Run: (*Dispatcher).cmdDisconnect},
			&Command{Name: "reconnect", Usage: "reconnect [hostname]", Help: "Reconnects to a remote VirtualBox", Locality: Network, ManagesHosts: true, Run: (*Dispatcher).cmdReconnect},
		)
	}

	commands := make(map[string]*Command, len(table))
	for _, cmd := range table {
		commands[cmd.Name] = cmd
	}
	return commands
}

// commandNames returns the names in the command table, sorted
func (d *Dispatcher) commandNames() []string {
	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
