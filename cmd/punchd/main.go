package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds minimal global/persistent flags for CLI commands
type GlobalFlags struct {
	ConfigPath string // Only config path for CLI commands
}

// StartFlags holds flags for the start command
type StartFlags struct {
	LogID      string
	TaskID     string
	APIUrl     string
	APITimeout time.Duration
}

// StopFlags holds flags for the stop command
type StopFlags struct {
	IdleSeconds uint64
	ReportIdle  bool
	APIUrl      string
	APITimeout  time.Duration
}

// QueryFlags holds connection flags shared by the read-only verbs
type QueryFlags struct {
	APIUrl     string
	APITimeout time.Duration
}

// EventsFlags holds flags for the events command
type EventsFlags struct {
	Limit      int
	APIUrl     string
	APITimeout time.Duration
}

// AttachFlags holds flags for the attach command
type AttachFlags struct {
	LogID      string
	TaskID     string
	DataDir    string
	APIUrl     string
	APITimeout time.Duration
}

// ServeFlags holds flags for the serve command
type ServeFlags struct {
	ConfigPath string
	Daemonize  bool
	PidFile    string
	LogFile    string
}

// buildRoot creates the root command with all subcommands attached
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	startFlags := &StartFlags{}
	stopFlags := &StopFlags{}
	queryFlags := &QueryFlags{}
	eventsFlags := &EventsFlags{}
	attachFlags := &AttachFlags{}

	punchdCommand := command{}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createServeCommand(globalFlags),
		createStartCommand(punchdCommand, startFlags),
		createStopCommand(punchdCommand, stopFlags),
		createStatusCommand(punchdCommand, queryFlags),
		createReconcileCommand(punchdCommand, queryFlags),
		createInstanceIDCommand(punchdCommand, queryFlags),
		createEventsCommand(punchdCommand, eventsFlags),
		createAttachCommand(punchdCommand, attachFlags),
		createAutostartCommand(punchdCommand, globalFlags),
	)
	return root
}

// createRootCommand creates the root command with minimal persistent flags
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "punchd",
		Short: "Presence-aware work timer daemon",
		Long: `Punchd tracks a running work session against the two system clocks,
detects absences (lock, suspend, shutdown, input inactivity) and reconciles
them into idle events when the machine comes back.

Examples:
  punchd serve                               # Start the daemon
  punchd start --log-id=log-42               # Begin tracking a log entry
  punchd attach --log-id=log-42              # Track with a live terminal view
  punchd status                              # Inspect the daemon state
  punchd stop --idle-seconds=120             # Stop, submitting measured idle`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")

	return root
}

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}

	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the punchd daemon",
		Long: `Run the punchd daemon: the heartbeat writer, the power and input
monitors, the reconciliation engine and the local HTTP API.
Without a config file, built-in defaults are used.

Examples:
  punchd serve                      # Defaults, state under the user config dir
  punchd serve config.toml          # Start with a specific config file
  punchd serve --daemonize          # Run detached in the background`,
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServe(serveFlags, args)
		},
	}

	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run as daemon in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "redirect daemon output to file")

	return cmd
}

// createStartCommand creates the start subcommand
func createStartCommand(punchdCommand command, startFlags *StartFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Begin tracking a log entry",
		Long: `Begin tracking a work session for the given log entry.
The daemon must be running; start it with 'punchd serve'.

Examples:
  punchd start --log-id=log-42
  punchd start --log-id=log-42 --task-id=task-7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return punchdCommand.Start(*startFlags)
		},
	}

	cmd.Flags().StringVar(&startFlags.LogID, "log-id", "", "log entry ID (required)")
	cmd.Flags().StringVar(&startFlags.TaskID, "task-id", "", "task ID the entry belongs to")
	addAPIFlags(cmd, &startFlags.APIUrl, &startFlags.APITimeout)

	if err := cmd.MarkFlagRequired("log-id"); err != nil {
		panic(err)
	}

	return cmd
}

// createStopCommand creates the stop subcommand
func createStopCommand(punchdCommand command, stopFlags *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the running session",
		Long: `Stop the running work session. --idle-seconds submits the
client-side idle total collected for the session (see 'punchd attach').

Examples:
  punchd stop
  punchd stop --idle-seconds=120`,
		RunE: func(cmd *cobra.Command, args []string) error {
			stopFlags.ReportIdle = cmd.Flag("idle-seconds").Changed
			return punchdCommand.Stop(*stopFlags)
		},
	}

	cmd.Flags().Uint64Var(&stopFlags.IdleSeconds, "idle-seconds", 0, "accumulated idle seconds to submit")
	addAPIFlags(cmd, &stopFlags.APIUrl, &stopFlags.APITimeout)

	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(punchdCommand command, queryFlags *QueryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the daemon state",
		Long: `Show the persisted heartbeat record and the running session, if any.

Examples:
  punchd status
  punchd status --api-url=http://127.0.0.1:8412/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return punchdCommand.Status(*queryFlags)
		},
	}
	addAPIFlags(cmd, &queryFlags.APIUrl, &queryFlags.APITimeout)
	return cmd
}

// createReconcileCommand creates the reconcile subcommand
func createReconcileCommand(punchdCommand command, queryFlags *QueryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run a gap check now",
		Long: `Ask the daemon to reconcile the heartbeat record immediately instead
of waiting for the next resume or unlock boundary.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return punchdCommand.Reconcile(*queryFlags)
		},
	}
	addAPIFlags(cmd, &queryFlags.APIUrl, &queryFlags.APITimeout)
	return cmd
}

// createInstanceIDCommand creates the instance-id subcommand
func createInstanceIDCommand(punchdCommand command, queryFlags *QueryFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instance-id",
		Short: "Print the install identifier",
		RunE: func(cmd *cobra.Command, args []string) error {
			return punchdCommand.InstanceID(*queryFlags)
		},
	}
	addAPIFlags(cmd, &queryFlags.APIUrl, &queryFlags.APITimeout)
	return cmd
}

// createEventsCommand creates the events subcommand
func createEventsCommand(punchdCommand command, eventsFlags *EventsFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List recent journal events",
		Long: `List recent session lifecycle events from the daemon's journal,
newest first. Requires a queryable journal sink (SQLite) in the daemon config.

Examples:
  punchd events
  punchd events --limit=20`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return punchdCommand.Events(*eventsFlags)
		},
	}
	cmd.Flags().IntVar(&eventsFlags.Limit, "limit", 0, "maximum events to return (daemon default when 0)")
	addAPIFlags(cmd, &eventsFlags.APIUrl, &eventsFlags.APITimeout)
	return cmd
}

// createAttachCommand creates the attach subcommand
func createAttachCommand(punchdCommand command, attachFlags *AttachFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attach",
		Short: "Track with a live terminal view",
		Long: `Start (or adopt) a session and stay attached to the daemon's event
stream: a live status line shows elapsed and idle time, reconciled absences
are folded into a local idle total, and stopping with Ctrl+C submits that
total with the stop request.

Examples:
  punchd attach --log-id=log-42
  punchd attach --log-id=log-42 --task-id=task-7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return punchdCommand.Attach(*attachFlags)
		},
	}

	cmd.Flags().StringVar(&attachFlags.LogID, "log-id", "", "log entry ID (required unless a session is running)")
	cmd.Flags().StringVar(&attachFlags.TaskID, "task-id", "", "task ID the entry belongs to")
	cmd.Flags().StringVar(&attachFlags.DataDir, "data-dir", "", "directory for the local idle accumulator state")
	addAPIFlags(cmd, &attachFlags.APIUrl, &attachFlags.APITimeout)

	return cmd
}

// createAutostartCommand creates the autostart subcommand
func createAutostartCommand(punchdCommand command, globalFlags *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart [enable|disable]",
		Short: "Manage login autostart for the daemon",
		Long: `Install or remove the OS login item that launches 'punchd serve'
when the user logs in.

Examples:
  punchd autostart enable
  punchd autostart enable --config=/etc/punchd/config.toml
  punchd autostart disable`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"enable", "disable"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return punchdCommand.Autostart(args[0], globalFlags.ConfigPath)
		},
	}
	return cmd
}

// addAPIFlags registers the daemon connection flags shared by client verbs.
func addAPIFlags(cmd *cobra.Command, url *string, timeout *time.Duration) {
	cmd.Flags().StringVar(url, "api-url", "", "daemon URL (default http://127.0.0.1:8412/api)")
	cmd.Flags().DurationVar(timeout, "api-timeout", 10*time.Second, "request timeout")
}
