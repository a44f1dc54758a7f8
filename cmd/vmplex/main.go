package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vmplex/internal/config"
	"vmplex/internal/controlplane"
	"vmplex/internal/controlplane/vboxmanage"
	"vmplex/internal/dispatcher"
	"vmplex/internal/endpoint"
	"vmplex/internal/fleet"
	"vmplex/internal/logging"
	"vmplex/internal/progress"
	"vmplex/internal/prompt"
)

var (
	// Build-time variables (set via -ldflags)
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"

	// Global configuration
	cfg *config.Config

	// CLI flags
	batchFile    string
	configFile   string
	webservice   bool
	opts         string
	inventory    string
	batchLog     string
	sshPort      int
	vboxManage   string
	pollInterval time.Duration
	quiet        bool
	logLevel     string
	logFormat    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(getExitCode(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "vmplex [flags]",
	Short: "Manage virtual machines across several VirtualBox hosts",
	Long: `vmplex is an interactive and batch command interpreter for a fleet of
VirtualBox hosts and their virtual machines.

Hosts are reached through VBoxManage, locally or over SSH in webservice
style. Machines on different hosts can be grouped, and a command given a
group name instead of a machine runs once for every member.

Examples:
  # Interactive session on the local host
  vmplex

  # Remote hosts, topology loaded from a file
  vmplex -w -c fleet.conf

  # Startup host given on the command line
  vmplex -w -o host=vbox1,port=18083,user=admin,password=secret

  # Run a batch file unattended
  vmplex -w -c fleet.conf -b nightly.batch`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		// Load configuration from all sources
		configManager := config.NewManager()
		loadedCfg, err := configManager.Load()
		if err != nil {
			return &SetupError{Message: fmt.Sprintf("failed to load configuration: %v", err)}
		}
		cfg = loadedCfg

		// Override config with CLI flags if provided
		return overrideConfigWithFlags(cmd, configManager)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		err := run(os.Stdin, os.Stdout)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	},
}

func init() {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("vmplex %s\n", version)
			fmt.Printf("Commit: %s\n", commit)
			fmt.Printf("Built: %s\n", buildTime)
		},
	}
	rootCmd.AddCommand(versionCmd)

	rootCmd.Flags().StringVarP(&batchFile, "batch-file", "b", "", "Batch file to run unattended")
	rootCmd.Flags().StringVarP(&configFile, "config-file", "c", "", "Topology file with hosts, machines and groups")
	rootCmd.Flags().BoolVarP(&webservice, "webservice", "w", false, "Use remote (webservice style) hosts")
	rootCmd.Flags().StringVarP(&opts, "opts", "o", "", "Startup host options (host=,port=,user=,password=,name=)")
	rootCmd.Flags().StringVar(&inventory, "inventory", "", "Load hosts and groups from a YAML inventory")
	rootCmd.Flags().StringVar(&batchLog, "batch-log", "vmplex_batch.log", "Batch error log file")
	rootCmd.Flags().IntVar(&sshPort, "ssh-port", vboxmanage.DefaultSSHPort, "SSH port of remote hosts")
	rootCmd.Flags().StringVar(&vboxManage, "vboxmanage", vboxmanage.DefaultBinary, "VBoxManage binary")
	rootCmd.Flags().DurationVar(&pollInterval, "poll-interval", progress.DefaultInterval, "Progress polling interval")
	rootCmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress non-error output")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "error", "Log level (info, error)")
	rootCmd.Flags().StringVar(&logFormat, "log-format", "text", "Log format (json, text)")
}

func overrideConfigWithFlags(cmd *cobra.Command, configManager config.Manager) error {
	// Override configuration with CLI flags if they were explicitly set
	if cmd.Flags().Changed("batch-file") {
		cfg.BatchFile = batchFile
	}
	if cmd.Flags().Changed("config-file") {
		cfg.ConfigFile = configFile
	}
	if cmd.Flags().Changed("webservice") {
		cfg.Webservice = webservice
	}
	if cmd.Flags().Changed("opts") {
		cfg.Opts = opts
	}
	if cmd.Flags().Changed("inventory") {
		cfg.Inventory = inventory
	}
	if cmd.Flags().Changed("batch-log") {
		cfg.BatchLog = batchLog
	}
	if cmd.Flags().Changed("ssh-port") {
		cfg.SSHPort = sshPort
	}
	if cmd.Flags().Changed("vboxmanage") {
		cfg.VBoxManage = vboxManage
	}
	if cmd.Flags().Changed("poll-interval") {
		cfg.PollInterval = pollInterval
	}
	if cmd.Flags().Changed("quiet") {
		cfg.Quiet = quiet
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = logFormat
	}

	// Validate the final configuration
	if err := configManager.Validate(cfg); err != nil {
		return &SetupError{Message: fmt.Sprintf("configuration validation failed: %v", err)}
	}
	return nil
}

func run(in *os.File, out io.Writer) error {
	logger := logging.NewLoggerFromConfig(cfg.LogLevel, cfg.LogFormat, cfg.Quiet)
	if logger == nil {
		return &SetupError{Message: "failed to initialize logger"}
	}

	platform := vboxmanage.New(vboxmanage.Options{
		Binary:  cfg.VBoxManage,
		SSHPort: cfg.SSHPort,
		Logger:  logger,
	})

	showBar := !cfg.Quiet && term.IsTerminal(int(os.Stdout.Fd()))
	d := dispatcher.New(dispatcher.Options{
		Platform: platform,
		Remote:   cfg.Webservice,
		Output:   out,
		Prompter: prompt.NewTerminal(in, out),
		Logger:   logger,
		Poller:   progress.NewPoller(cfg.PollInterval, out, showBar),
		BatchLog: cfg.BatchLog,
	})
	defer d.Close()

	// SIGINT is handled per command by the dispatcher; SIGTERM ends the session
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal, canceling operations", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	startup, err := startupEnvironment(ctx, platform, logger)
	if err != nil {
		return err
	}

	if cfg.ConfigFile != "" {
		if err := d.LoadConfig(ctx, cfg.ConfigFile); err != nil {
			d.Printer().Error(err)
		}
	}
	if cfg.Inventory != "" {
		if err := d.LoadInventory(ctx, cfg.Inventory); err != nil {
			d.Printer().Error(err)
		}
	}

	if startup != nil {
		topo := d.Topology()
		switch {
		case topo.Active() != nil:
			startup.Disconnect()
		case topo.AddEnvironment(startup) != nil:
			startup.Disconnect()
			_ = topo.SetActive(startup.Name())
		default:
			_ = topo.SetActive(startup.Name())
		}
	}

	if cfg.BatchFile != "" {
		res, err := d.RunBatch(ctx, cfg.BatchFile)
		if err != nil {
			d.Printer().Error(err)
			return nil
		}
		logger.Info(res.Report.Summary(), "run_id", res.RunID)
		return nil
	}

	return d.Interact(ctx)
}

// startupEnvironment connects the host given by --opts, or the local host.
// Webservice style without options starts with no host.
func startupEnvironment(ctx context.Context, platform controlplane.Platform, logger *logging.Logger) (*fleet.Environment, error) {
	if cfg.Webservice && cfg.Opts == "" {
		return nil, nil
	}

	parsed, err := endpoint.ParseOpts(cfg.Opts)
	if err != nil {
		return nil, &SetupError{Message: fmt.Sprintf("Arguments in wrong format: %v", err)}
	}
	ep, err := endpoint.FromOpts(parsed, cfg.Webservice)
	if err != nil {
		return nil, &SetupError{Message: fmt.Sprintf("invalid startup host: %v", err)}
	}

	env := fleet.NewEnvironment(ep, platform, logger)
	if err := env.Connect(ctx); err != nil {
		return nil, &ExecutionError{Message: err.Error()}
	}
	return env, nil
}

// SetupError represents invalid flags or settings (exit code 2)
type SetupError struct {
	Message string
}

func (e *SetupError) Error() string {
	return e.Message
}

// ExecutionError represents a startup host that could not be reached (exit code 1)
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string {
	return e.Message
}

// getExitCode determines the appropriate exit code based on error type
// Returns:
//   - 0: Success
//   - 1: The startup host could not be connected
//   - 2: Setup error (invalid arguments, configuration issues, etc.)
func getExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch err.(type) {
	case *ExecutionError:
		return 1
	default:
		return 2
	}
}
