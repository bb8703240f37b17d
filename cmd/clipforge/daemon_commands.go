package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"clipforge/internal/daemonctl"
	"clipforge/internal/daemonrun"
)

const (
	daemonStartTimeout = 10 * time.Second
	daemonStopTimeout  = 30 * time.Second
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run and control the clipforge daemon",
	}
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	return daemonCmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	var development bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    ctx.logLevel(),
				Development: development,
			})
		},
	}
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log records")
	return cmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Launch the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := daemonctl.NewClient(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if status, err := client.Status(cmd.Context()); err == nil && status.Running {
				fmt.Fprintf(out, "Daemon already running (pid %d)\n", status.PID)
				return nil
			}

			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable: %w", err)
			}
			fmt.Fprintln(out, "Daemon not running, launching...")
			if err := daemonctl.Launch(exe, daemonctl.LaunchOptions{
				ConfigPath: ctx.configFlagValue(),
				LogLevel:   ctx.logLevel(),
			}); err != nil {
				return err
			}
			status, err := client.WaitReady(cmd.Context(), daemonStartTimeout)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Daemon started (pid %d, ops %s)\n", status.PID, status.OpsAddress)
			return nil
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			err = daemonctl.Stop(cfg, daemonStopTimeout)
			if errors.Is(err, daemonctl.ErrNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}
}
