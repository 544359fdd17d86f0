package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mblakley/soccer-cam/internal/api"
	"github.com/mblakley/soccer-cam/internal/daemonctl"
	"github.com/mblakley/soccer-cam/internal/state"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	var startLogLevel string
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the soccercam daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(ctx.socketPath(), exe, daemonLaunchOptions(ctx, startLogLevel), startWaitTimeout)
			if err != nil {
				return err
			}
			switch result.State {
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			default:
				if result.PID > 0 {
					fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
				} else {
					fmt.Fprintln(stdout, "Daemon started")
				}
			}
			return nil
		},
	}
	startCmd.Flags().StringVar(&startLogLevel, "log-level", "", "Override the configured log level")

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the soccercam daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), stopGracePeriod)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.StopAcknowledged {
				fmt.Fprintln(stdout, "Stopping daemon workflow...")
			} else {
				fmt.Fprintln(stdout, "Stop request sent")
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Killed daemon process (pid %d) after %s\n", result.PID, stopGracePeriod)
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	var restartLogLevel string
	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the soccercam daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}
			result, err := daemonctl.Restart(
				ctx.socketPath(),
				ctx.configValue(),
				exe,
				daemonLaunchOptions(ctx, restartLogLevel),
				stopGracePeriod,
				startWaitTimeout,
			)
			if err != nil {
				return err
			}
			if result.WasRunning {
				if result.Stop.ForcedKill && result.Stop.PID > 0 {
					fmt.Fprintf(stdout, "Killed daemon process (pid %d)\n", result.Stop.PID)
				}
				fmt.Fprintln(stdout, "Daemon stopped")
			}
			fmt.Fprintln(stdout, "Daemon restarted")
			return nil
		},
	}
	restartCmd.Flags().StringVar(&restartLogLevel, "log-level", "", "Override the configured log level")

	var statusJSON bool
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and group status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snapshot, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), ctx.configValue())
			if err != nil {
				return err
			}
			if statusJSON {
				return writeJSON(cmd, snapshot)
			}
			renderStatus(cmd.OutOrStdout(), snapshot, shouldColorize(cmd.OutOrStdout()))
			return nil
		},
	}
	addJSONFlag(statusCmd, &statusJSON)

	return []*cobra.Command{startCmd, stopCmd, restartCmd, statusCmd}
}

func renderStatus(out io.Writer, snapshot *daemonctl.StatusSnapshot, colorize bool) {
	system := make([]string, 0, len(snapshot.SystemChecks))
	for _, line := range snapshot.SystemChecks {
		system = append(system, renderStatusLine(line.Label, statusKindFromSeverity(line.Severity), line.Detail, colorize))
	}
	writeSection(out, "System Status", system, colorize)
	fmt.Fprintln(out)

	writeSection(out, "Dependencies", dependencyLines(snapshot.Daemon.Dependencies, snapshot.DependencySummary, colorize), colorize)
	fmt.Fprintln(out)

	wf := snapshot.Daemon.Workflow
	if snapshot.Daemon.Running {
		writeSection(out, "Workflow", workflowLines(wf, colorize), colorize)
		fmt.Fprintln(out)
	}

	writeSection(out, "Groups", nil, colorize)
	rows := buildStageRows(wf.GroupsByStage)
	if len(rows) == 0 {
		fmt.Fprintln(out, "No recording groups")
		return
	}
	fmt.Fprint(out, renderTable([]string{"Stage", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
}

func workflowLines(wf api.WorkflowStatus, colorize bool) []string {
	lines := make([]string, 0, 4+len(wf.Pools))
	lastTick := "never"
	if t := api.ParseTime(wf.LastTick); !t.IsZero() {
		lastTick = fmt.Sprintf("%s (%d ticks)", t.Local().Format("2006-01-02 15:04:05"), wf.Ticks)
	}
	lines = append(lines, renderStatusLine("Last tick", statusInfo, lastTick, colorize))
	if wf.LastError != "" {
		lines = append(lines, renderStatusLine("Last tick error", statusWarn, wf.LastError, colorize))
	}
	for _, pool := range wf.Pools {
		lines = append(lines, renderStatusLine(pool.Name+" pool", statusInfo, fmt.Sprintf("%d/%d busy", pool.Busy, pool.Size), colorize))
	}
	for _, op := range wf.Inflight {
		lines = append(lines, renderStatusLine(op.Group, statusInfo, op.Operation, colorize))
	}
	return lines
}

// buildStageRows lists non-empty stages in lifecycle order, failed groups
// last.
func buildStageRows(counts map[string]int) [][]string {
	order := make([]string, 0, len(counts)+1)
	for _, s := range state.Stages() {
		order = append(order, string(s))
	}
	order = append(order, "error")
	rows := make([][]string, 0, len(order))
	for _, name := range order {
		if counts[name] == 0 {
			continue
		}
		rows = append(rows, []string{name, strconv.Itoa(counts[name])})
	}
	return rows
}

func daemonExecutable() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("resolve executable: %w", err)
	}
	return exe, nil
}

func daemonLaunchOptions(ctx *commandContext, logLevel string) daemonctl.LaunchOptions {
	opts := daemonctl.LaunchOptions{LogLevel: strings.TrimSpace(logLevel)}
	if path := ctx.configFlagValue(); path != "" {
		opts.ConfigPath = path
	}
	return opts
}
