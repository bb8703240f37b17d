package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clipforge/internal/config"
	"clipforge/internal/daemonctl"
	"clipforge/internal/pipeline"
	"clipforge/internal/preflight"
	"clipforge/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show dependency, daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			printSection(out, "System Checks", colorize)
			for _, r := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			fmt.Fprintln(out)

			printSection(out, "Daemon", colorize)
			renderDaemonStatus(cmd.Context(), out, cfg, colorize)
			fmt.Fprintln(out)

			printSection(out, "Queues", colorize)
			return ctx.withPipeline(cmd, func(runCtx context.Context, p *pipeline.Pipeline) error {
				stats, err := p.Jobs.Stats(runCtx)
				if err != nil {
					return err
				}
				rows := buildQueueStatsRows(stats, p.Dispatcher.Queues())
				fmt.Fprint(out, renderTable(
					[]string{"Queue", "Queued", "Running", "Done", "Failed"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	}
}

func renderDaemonStatus(ctx context.Context, out io.Writer, cfg *config.Config, colorize bool) {
	client, err := daemonctl.NewClient(cfg)
	if err != nil {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusInfo, err.Error(), colorize))
		return
	}
	status, err := client.Status(ctx)
	if err != nil || !status.Running {
		fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
		return
	}
	detail := fmt.Sprintf("pid %d", status.PID)
	if status.StartedAt != nil {
		detail += ", started " + humanize.Time(*status.StartedAt)
	}
	fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, detail, colorize))
	fmt.Fprintln(out, renderStatusLine("Ops server", statusInfo, status.OpsAddress, colorize))
	if status.FreeBytes > 0 {
		fmt.Fprintln(out, renderStatusLine("Workspace free", statusInfo, humanize.IBytes(status.FreeBytes), colorize))
	}
	for _, h := range status.Health {
		kind := statusOK
		if !h.Ready {
			kind = statusError
		}
		fmt.Fprintln(out, renderStatusLine(h.Name, kind, h.Detail, colorize))
	}
}

// buildQueueStatsRows lists every registered queue, including ones without
// jobs, followed by any other queue present in the table.
func buildQueueStatsRows(stats map[string]queue.Counts, registered []string) [][]string {
	seen := make(map[string]bool, len(registered))
	names := append([]string(nil), registered...)
	for _, name := range registered {
		seen[name] = true
	}
	var extra []string
	for name := range stats {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	rows := make([][]string, 0, len(names))
	for _, name := range names {
		c := stats[name]
		rows = append(rows, []string{
			name,
			strconv.Itoa(c.Queued),
			strconv.Itoa(c.Running),
			strconv.Itoa(c.Done),
			strconv.Itoa(c.Failed),
		})
	}
	return rows
}
