package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"trashcan/internal/api"
	"trashcan/internal/daemonctl"
	"trashcan/internal/daemonrun"
)

const (
	startWaitTimeout = 10 * time.Second
	stopGracePeriod  = 5 * time.Second
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newStartCommand(ctx),
		newStopCommand(ctx),
		newRestartCommand(ctx),
		newStatusCommand(ctx),
	}
}

func newStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trashcan daemon in the background",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe, client, err := launchInputs(ctx)
			if err != nil {
				return err
			}
			result, err := daemonctl.EnsureStarted(cmd.Context(), client, ctx.configValue(),
				exe, daemonLaunchOptions(ctx), startWaitTimeout)
			if err != nil {
				return fmt.Errorf("%w (see %s)", err, logPointer(ctx))
			}
			if result.State == daemonctl.StartStateAlreadyRunning {
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon already running")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Daemon started (pid %d)\n", result.PID)
			return nil
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the trashcan daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			result, err := daemonctl.StopAndTerminate(cmd.Context(), client, ctx.configValue(), stopGracePeriod)
			switch {
			case errors.Is(err, daemonctl.ErrDaemonNotRunning):
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon is not running")
				return nil
			case err != nil:
				return err
			}
			reportStop(cmd.OutOrStdout(), result, true)
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the trashcan daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			exe, client, err := launchInputs(ctx)
			if err != nil {
				return err
			}
			result, err := daemonctl.Restart(cmd.Context(), client, ctx.configValue(),
				exe, daemonLaunchOptions(ctx), stopGracePeriod, startWaitTimeout)
			if err != nil {
				return err
			}
			if result.WasRunning {
				reportStop(cmd.OutOrStdout(), result.Stop, false)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Daemon restarted")
			return nil
		},
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, store, and retention status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := ctx.apiClient()
			if err != nil {
				return err
			}
			status, err := daemonctl.BuildStatusSnapshot(cmd.Context(), client, ctx.configValue())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")
	return cmd
}

func printStatus(w io.Writer, status api.DaemonStatus) {
	colorize := shouldColorize(w)
	for i, section := range statusSections(status, colorize) {
		if i > 0 {
			fmt.Fprintln(w)
		}
		for _, line := range append(renderSectionHeader(section.title, colorize), section.lines...) {
			fmt.Fprintln(w, line)
		}
	}
	if len(status.Journal.Counts) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, renderTable(
		[]column{{header: "Event"}, {header: "Count", align: alignRight}},
		journalCountRows(status.Journal.Counts),
	))
	fmt.Fprintln(w)
}

// reportStop prints the stop outcome. verbose adds the acknowledgement line
// shown by a plain stop.
func reportStop(w io.Writer, result daemonctl.StopResult, verbose bool) {
	if verbose {
		if result.StopAcknowledged {
			fmt.Fprintln(w, "Stopping daemon...")
		} else {
			fmt.Fprintln(w, "Stop signal sent")
		}
	}
	if result.ForcedKill && result.PID > 0 {
		fmt.Fprintf(w, "Daemon did not exit in time; killed pid %d\n", result.PID)
	}
	fmt.Fprintln(w, "Daemon stopped")
}

func launchInputs(ctx *commandContext) (string, *api.Client, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("resolve executable: %w", err)
	}
	client, err := ctx.apiClient()
	if err != nil {
		return "", nil, err
	}
	return exe, client, nil
}

func journalCountRows(counts map[string]int64) [][]string {
	kinds := make([]string, 0, len(counts))
	for kind := range counts {
		kinds = append(kinds, kind)
	}
	slices.Sort(kinds)
	rows := make([][]string, 0, len(kinds))
	for _, kind := range kinds {
		rows = append(rows, []string{kind, strconv.FormatInt(counts[kind], 10)})
	}
	return rows
}

func daemonLaunchOptions(ctx *commandContext) daemonctl.LaunchOptions {
	var opts daemonctl.LaunchOptions
	if ctx.configFlag != nil {
		if config := strings.TrimSpace(*ctx.configFlag); config != "" {
			opts.ConfigPath = config
		}
	}
	if ctx.logLevelFlag != nil {
		opts.LogLevel = strings.TrimSpace(*ctx.logLevelFlag)
	}
	return opts
}

func logPointer(ctx *commandContext) string {
	cfg := ctx.configValue()
	if cfg == nil {
		return daemonrun.LogPointerName
	}
	return filepath.Join(cfg.Paths.LogDir, daemonrun.LogPointerName)
}
