package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/loykin/vigil"
	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command with all subcommands attached.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	statusFlags := &StatusFlags{}
	checkFlags := &CheckFlags{}

	vigilCommand := command{out: os.Stdout}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(vigilCommand, statusFlags),
		createCheckCommand(vigilCommand, globalFlags, checkFlags),
	)

	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "vigil",
		Short: "Service watchdog with HTTP health probing",
		Long: `Vigil starts the services declared in its config file, probes them over
HTTP, and restarts them with exponential backoff when they crash or stop
answering. Repeated failures put a service into cooldown instead of a
restart storm.

Examples:
  vigil serve config.toml                # Supervise in the foreground
  vigil serve config.toml --daemonize    # Supervise in the background
  vigil status                           # Snapshots from the local daemon
  vigil status --name=web --json
  vigil check --config=config.toml       # One-shot probe of every service`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file")

	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the vigil daemon",
		Long: `Start the vigil daemon supervising every service in the config file.
The daemon keeps running until it receives SIGINT or SIGTERM, then stops
all supervised services before exiting.

Examples:
  vigil serve config.toml           # Run in the foreground
  vigil serve --config=config.toml  # Same, via the persistent flag
  vigil serve config.toml --daemonize  # Background; pidfile from [server].pidfile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(serveFlags, args)
		},
	}

	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon logs to file")

	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(vigilCommand command, statusFlags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show service status from a running daemon",
		Long: `Show snapshots of the services supervised by a running vigil daemon.

Examples:
  vigil status                      # All services of the local daemon
  vigil status --name=web           # One service
  vigil status --json               # Raw JSON instead of a table
  vigil status --api-url=http://remote:8080/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return vigilCommand.Status(*statusFlags)
		},
	}

	cmd.Flags().StringVar(&statusFlags.Name, "name", "", "service name (optional)")
	cmd.Flags().BoolVar(&statusFlags.JSON, "json", false, "print raw JSON")
	cmd.Flags().StringVar(&statusFlags.APIUrl, "api-url", "", "daemon URL (e.g. http://host:8080/api)")
	cmd.Flags().DurationVar(&statusFlags.APITimeout, "api-timeout", defaultAPITimeout, "request timeout")

	return cmd
}

// createCheckCommand creates the check subcommand
func createCheckCommand(vigilCommand command, globalFlags *GlobalFlags, checkFlags *CheckFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Probe configured services once",
		Long: `Probe every service declared in the config file directly from this
process, without a daemon. Useful to verify health endpoints before
handing the config to 'vigil serve'.

The command exits non-zero when any probe fails.

Examples:
  vigil check --config=config.toml
  vigil check --config=config.toml --name=web
  vigil check --config=config.toml --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			checkFlags.ConfigPath = globalFlags.ConfigPath
			return vigilCommand.Check(*checkFlags)
		},
	}

	cmd.Flags().StringVar(&checkFlags.Name, "name", "", "probe only this service")
	cmd.Flags().BoolVar(&checkFlags.JSON, "json", false, "print raw JSON")

	return cmd
}

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}

	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=config.toml or provide as argument")
	}

	cfg, err := vigil.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	// Daemonize before binding any listener; the re-executed child comes
	// back through here with --daemonize stripped.
	if flags.Daemonize {
		if cfg.Server != nil {
			if flags.PidFile == "" {
				flags.PidFile = cfg.Server.PidFile
			}
			if flags.LogFile == "" {
				flags.LogFile = cfg.Server.LogFile
			}
		}
		return daemonize(flags.PidFile, flags.LogFile)
	}

	slog.SetDefault(cfg.Log.NewSlogger())

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		if err := vigil.RegisterMetricsDefault(); err != nil {
			slog.Warn("failed to register metrics", "error", err)
		}
		if cfg.Metrics.Listen != "" {
			go func() {
				if err := vigil.ServeMetrics(cfg.Metrics.Listen); err != nil {
					slog.Error("metrics server error", "error", err)
				}
			}()
		}
	}

	w, err := vigil.NewFromConfig(cfg)
	if err != nil {
		return err
	}

	var apiServer *http.Server
	if cfg.Server != nil {
		// Without a dedicated metrics listener, /metrics rides on the
		// status API server.
		mountMetrics := cfg.Metrics != nil && cfg.Metrics.Enabled && cfg.Metrics.Listen == ""
		apiServer, err = vigil.NewServerFromConfig(*cfg.Server, mountMetrics, w)
		if err != nil {
			return fmt.Errorf("failed to create status API server: %w", err)
		}
		slog.Info("status API listening", "addr", cfg.Server.Listen, "base_path", cfg.Server.BasePath)
	}

	// The daemonized child owns the pidfile its parent wrote.
	if os.Getppid() == 1 && cfg.Server != nil && cfg.Server.PidFile != "" {
		defer func() { _ = removePidFile(cfg.Server.PidFile) }()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	slog.Info("supervising", "services", len(cfg.Services))
	err = w.Run(ctx)

	if apiServer != nil {
		_ = apiServer.Close()
	}
	return err
}
